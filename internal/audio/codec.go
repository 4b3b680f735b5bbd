package audio

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/bogem/id3v2"
	"github.com/dhowden/tag"
	"github.com/h2non/filetype"

	"github.com/handiism/songmesh/internal/model"
	"github.com/handiism/songmesh/internal/songerr"
	"github.com/handiism/songmesh/internal/songtitle"
)

const (
	id3v2HeaderSize = 10
	id3v1TrailerLen = 128

	frameUserText = "TXXX"
	frameUserURL  = "WXXX"

	// MIMETypeMP3 is the only audio container songmesh accepts.
	MIMETypeMP3 = "audio/mpeg"
)

// mp3Type takes over filetype's MP3 matcher, which only knows the ID3 magic
// and the MPEG-1 sync word without CRC.
var mp3Type = filetype.NewType("mp3", MIMETypeMP3)

func init() {
	filetype.AddMatcher(mp3Type, isMP3)
}

func isMP3(buf []byte) bool {
	if len(buf) >= 3 && string(buf[:3]) == "ID3" {
		return true
	}
	return isFrameHeader(buf)
}

// isFrameHeader reports whether buf opens with an MPEG 1, 2 or 2.5 layer III
// frame header, with or without CRC.
func isFrameHeader(buf []byte) bool {
	if len(buf) < 3 || buf[0] != 0xFF || buf[1]&0xE0 != 0xE0 {
		return false
	}
	version := buf[1] >> 3 & 0x03
	layer := buf[1] >> 1 & 0x03
	bitrate := buf[2] >> 4
	sampleRate := buf[2] >> 2 & 0x03
	return version != 0x01 && layer == 0x01 && bitrate != 0x0F && sampleRate != 0x03
}

// Cover is an embedded cover image.
type Cover struct {
	Data     []byte
	MIMEType string
}

// FileInfo describes a rewritten audio binary ready for storage.
type FileInfo struct {
	// Hash is the hex SHA-256 of the whole binary.
	Hash string

	// Ext is the extension without the dot, e.g. "mp3".
	Ext string

	// MIMEType is the sniffed content type.
	MIMEType string

	// Size is the binary length in bytes.
	Size int64
}

// FileName returns the content-addressed storage name "<hash>.<ext>".
func (f FileInfo) FileName() string {
	if f.Ext == "" {
		return f.Hash
	}
	return f.Hash + "." + f.Ext
}

// Codec reads and writes the ID3 tags of MP3 binaries.
//
// Codec never modifies its input: WriteTags builds a new binary made of a
// freshly encoded tag followed by the original audio bytes.
//
// Example:
//
//	codec := NewCodec()
//	tags, err := codec.ReadTags(data)
//	if err != nil {
//	    return err
//	}
//	tags.Set(model.KeyFullTitle, "Artist - Title")
//	out, err := codec.WriteTags(data, tags)
type Codec struct {
	version byte
}

// NewCodec creates a Codec writing ID3v2.4 tags.
func NewCodec() *Codec {
	return &Codec{version: 4}
}

// ReadTags extracts the tag set of an MP3 binary.
//
// Text frames map to text values and the attached picture to a binary APIC
// value. Files without an ID3v2 tag fall back to their ID3v1 trailer. The
// derived fullTitle key is always filled when a title is known.
func (c *Codec) ReadTags(bin []byte) (model.Tags, error) {
	if err := checkContainer(bin); err != nil {
		return nil, err
	}

	size, err := tagContainerSize(bin)
	if err != nil {
		return nil, err
	}

	var tags model.Tags
	if size > 0 {
		tags, err = readID3v2(bin[:size])
	} else {
		tags, err = readID3v1(bin)
	}
	if err != nil {
		return nil, err
	}

	if full := deriveFullTitle(tags); full != "" {
		tags.Set(model.KeyFullTitle, full)
	}
	return tags, nil
}

// WriteTags returns a new binary carrying tags.
//
// Text values replace prior frames of the same ID. The fullTitle key
// writes TIT2 with the full title and TPE1 with the artist part. A binary
// APIC value replaces any embedded picture, a cleared key strips the frame,
// and keys absent from tags leave the existing frames alone. The audio
// payload after the tag container is copied byte for byte.
//
// Supported keys are text frames (TXXX included), W*** link frames, COMM,
// USLT, APIC and fullTitle. Any other key fails with a tag parse error.
func (c *Codec) WriteTags(bin []byte, tags model.Tags) ([]byte, error) {
	if err := checkContainer(bin); err != nil {
		return nil, err
	}

	size, err := tagContainerSize(bin)
	if err != nil {
		return nil, err
	}

	id3, err := parseID3v2(bin[:size])
	if err != nil {
		return nil, err
	}
	id3.SetVersion(c.version)
	id3.SetDefaultEncoding(id3v2.EncodingUTF8)

	for _, id := range writeOrder(tags) {
		if tags.IsCleared(id) {
			if id == model.FramePicture {
				id3.DeleteFrames(id3.CommonID("Attached picture"))
			} else {
				id3.DeleteFrames(id)
			}
			continue
		}

		v, _ := tags.Get(id)
		switch {
		case id == model.KeyFullTitle:
			writeFullTitle(id3, v.Text)
		case id == model.FramePicture:
			updateArtwork(id3, v)
		case id == "COMM":
			id3.DeleteFrames(id)
			id3.AddCommentFrame(id3v2.CommentFrame{
				Encoding: id3v2.EncodingUTF8,
				Language: "eng",
				Text:     v.Text,
			})
		case id == "USLT":
			id3.DeleteFrames(id)
			id3.AddUnsynchronisedLyricsFrame(id3v2.UnsynchronisedLyricsFrame{
				Encoding: id3v2.EncodingUTF8,
				Language: "eng",
				Lyrics:   v.Text,
			})
		case id == frameUserText:
			id3.DeleteFrames(id)
			id3.AddUserDefinedTextFrame(id3v2.UserDefinedTextFrame{
				Encoding: id3v2.EncodingUTF8,
				Value:    v.Text,
			})
		case isTextFrameID(id):
			id3.AddTextFrame(id, id3v2.EncodingUTF8, v.Text)
		case isURLFrameID(id):
			id3.DeleteFrames(id)
			id3.AddFrame(id, id3v2.UnknownFrame{Body: encodeURLFrame(id, v.Text)})
		default:
			return nil, songerr.TagParse(fmt.Errorf("frame %q cannot be encoded", id))
		}
	}

	var out bytes.Buffer
	out.Grow(len(bin) - size + 1024)
	if id3.Count() > 0 {
		if _, err := id3.WriteTo(&out); err != nil {
			return nil, fmt.Errorf("encode tag: %w", err)
		}
	}
	out.Write(bin[size:])
	return out.Bytes(), nil
}

// Probe computes the content hash and type of a binary.
func (c *Codec) Probe(bin []byte) (FileInfo, error) {
	kind, err := filetype.Match(bin)
	if err != nil {
		return FileInfo{}, fmt.Errorf("detect type: %w", err)
	}
	if kind == filetype.Unknown {
		return FileInfo{}, songerr.UnsupportedContainer("unknown file type")
	}

	sum := sha256.Sum256(bin)
	return FileInfo{
		Hash:     hex.EncodeToString(sum[:]),
		Ext:      kind.Extension,
		MIMEType: kind.MIME.Value,
		Size:     int64(len(bin)),
	}, nil
}

// ExtractCover returns a copy of the APIC payload of tags.
func ExtractCover(tags model.Tags) (*Cover, bool) {
	v, ok := tags.Get(model.FramePicture)
	if !ok || len(v.Data) == 0 {
		return nil, false
	}
	return &Cover{
		Data:     append([]byte(nil), v.Data...),
		MIMEType: v.MIMEType,
	}, true
}

// checkContainer rejects anything that is not an MP3 stream.
func checkContainer(bin []byte) error {
	if len(bin) == 0 {
		return songerr.UnsupportedContainer("empty file")
	}
	kind, _ := filetype.Match(bin)
	if kind.MIME.Value != MIMETypeMP3 {
		detail := kind.MIME.Value
		if detail == "" {
			detail = "unknown"
		}
		return songerr.UnsupportedContainer(detail)
	}
	return nil
}

// tagContainerSize returns the length of the leading ID3v2 tag including
// its header and optional footer, or 0 when there is none.
func tagContainerSize(bin []byte) (int, error) {
	if len(bin) < id3v2HeaderSize || string(bin[:3]) != "ID3" {
		return 0, nil
	}

	var body int
	for _, b := range bin[6:10] {
		if b&0x80 != 0 {
			return 0, songerr.TagParse(errors.New("tag size is not synchsafe"))
		}
		body = body<<7 | int(b)
	}

	size := id3v2HeaderSize + body
	if bin[5]&0x10 != 0 {
		size += id3v2HeaderSize
	}
	if size > len(bin) {
		return 0, songerr.TagParse(fmt.Errorf("tag size %d exceeds file size %d", size, len(bin)))
	}
	return size, nil
}

func parseID3v2(container []byte) (*id3v2.Tag, error) {
	if len(container) == 0 {
		return id3v2.NewEmptyTag(), nil
	}
	id3, err := id3v2.ParseReader(bytes.NewReader(container), id3v2.Options{Parse: true})
	if err != nil {
		return nil, songerr.TagParse(err)
	}
	return id3, nil
}

func readID3v2(container []byte) (model.Tags, error) {
	id3, err := parseID3v2(container)
	if err != nil {
		return nil, err
	}

	tags := model.Tags{}
	for id, frames := range id3.AllFrames() {
		if len(frames) == 0 {
			continue
		}
		switch f := frames[0].(type) {
		case id3v2.TextFrame:
			if isTextFrameID(id) {
				tags.Set(id, strings.TrimRight(f.Text, "\x00"))
			}
		case id3v2.UserDefinedTextFrame:
			tags.Set(id, strings.TrimRight(f.Value, "\x00"))
		case id3v2.UnknownFrame:
			if isURLFrameID(id) {
				tags.Set(id, decodeURLFrame(id, f.Body))
			}
		case id3v2.CommentFrame:
			tags.Set(id, f.Text)
		case id3v2.UnsynchronisedLyricsFrame:
			tags.Set(id, f.Lyrics)
		case id3v2.PictureFrame:
			pic := frontCover(frames)
			tags.SetBinary(model.FramePicture, pic.Picture, pic.MimeType)
		}
	}
	return tags, nil
}

func readID3v1(bin []byte) (model.Tags, error) {
	tags := model.Tags{}
	if len(bin) < id3v1TrailerLen || string(bin[len(bin)-id3v1TrailerLen:len(bin)-id3v1TrailerLen+3]) != "TAG" {
		return tags, nil
	}

	md, err := tag.ReadID3v1Tags(bytes.NewReader(bin))
	if err != nil {
		return nil, songerr.TagParse(err)
	}

	setIf := func(id, v string) {
		if v = strings.TrimSpace(v); v != "" {
			tags.Set(id, v)
		}
	}
	setIf(model.FrameTitle, md.Title())
	setIf(model.FrameArtist, md.Artist())
	setIf(model.FrameAlbum, md.Album())
	setIf(model.FrameGenre, md.Genre())
	if md.Year() > 0 {
		tags.Set(model.FrameYear, strconv.Itoa(md.Year()))
	}
	return tags, nil
}

// deriveFullTitle picks the "Artist - Title" value of a tag set.
func deriveFullTitle(tags model.Tags) string {
	title := tags.Text(model.FrameTitle)
	if songtitle.IsSongTitle(title) {
		return title
	}
	artist := tags.Text(model.FrameArtist)
	if artist != "" && title != "" {
		return songtitle.Join(artist, title)
	}
	return title
}

// writeFullTitle stores the full title in TIT2 and its artist in TPE1.
func writeFullTitle(id3 *id3v2.Tag, full string) {
	id3.AddTextFrame(id3.CommonID("Title/Songname/Content description"), id3v2.EncodingUTF8, full)
	if artist, _, err := songtitle.Split(full); err == nil {
		id3.AddTextFrame(id3.CommonID("Lead artist/Lead performer/Soloist/Performing group"), id3v2.EncodingUTF8, artist)
	}
}

// updateArtwork embeds cover art as an attached picture frame.
func updateArtwork(id3 *id3v2.Tag, v model.TagValue) {
	// Remove any existing cover pictures
	id3.DeleteFrames(id3.CommonID("Attached picture"))

	mime := v.MIMEType
	if mime == "" {
		mime = "image/jpeg"
	}
	id3.AddAttachedPicture(id3v2.PictureFrame{
		Encoding:    id3v2.EncodingUTF8,
		MimeType:    mime,
		PictureType: id3v2.PTFrontCover,
		Description: "Cover",
		Picture:     v.Data,
	})
}

func frontCover(frames []id3v2.Framer) id3v2.PictureFrame {
	var (
		first id3v2.PictureFrame
		found bool
	)
	for _, f := range frames {
		pf, ok := f.(id3v2.PictureFrame)
		if !ok {
			continue
		}
		if pf.PictureType == id3v2.PTFrontCover {
			return pf
		}
		if !found {
			first, found = pf, true
		}
	}
	return first
}

// writeOrder returns the keys of tags with fullTitle last so that it wins
// over plain TIT2/TPE1 values in the same set.
func writeOrder(tags model.Tags) []string {
	ids := make([]string, 0, len(tags))
	var hasFull bool
	for id := range tags {
		if id == model.KeyFullTitle {
			hasFull = true
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if hasFull {
		ids = append(ids, model.KeyFullTitle)
	}
	return ids
}

func isTextFrameID(id string) bool {
	return id != frameUserText && isFrameID(id, 'T')
}

// isURLFrameID matches the W*** link frames, WXXX included.
func isURLFrameID(id string) bool {
	return isFrameID(id, 'W')
}

func isFrameID(id string, prefix byte) bool {
	if len(id) != 4 || id[0] != prefix {
		return false
	}
	for _, r := range id {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

// encodeURLFrame builds a link frame body. Links are ISO-8859-1 with no
// encoding byte, except WXXX which leads with an encoding byte and an empty
// description.
func encodeURLFrame(id, url string) []byte {
	if id == frameUserURL {
		return append([]byte{0, 0}, url...)
	}
	return []byte(url)
}

func decodeURLFrame(id string, body []byte) string {
	if id == frameUserURL && len(body) > 0 {
		enc, rest := body[0], body[1:]
		term := []byte{0}
		if enc == 1 || enc == 2 {
			term = []byte{0, 0}
		}
		if i := bytes.Index(rest, term); i >= 0 {
			rest = rest[i+len(term):]
		}
		body = rest
	}
	return strings.TrimRight(string(body), "\x00")
}
