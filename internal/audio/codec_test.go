package audio

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/handiism/songmesh/internal/model"
	"github.com/handiism/songmesh/internal/songerr"
	"github.com/handiism/songmesh/internal/testsupport"
)

func TestCodec_ReadTags(t *testing.T) {
	tests := []struct {
		name      string
		frames    map[string]string
		wantFull  string
		wantAlbum string
	}{
		{
			name:     "full title in TIT2",
			frames:   map[string]string{"TIT2": "Artist - Title"},
			wantFull: "Artist - Title",
		},
		{
			name:      "title and artist frames",
			frames:    map[string]string{"TIT2": "Title", "TPE1": "Artist", "TALB": "Album"},
			wantFull:  "Artist - Title",
			wantAlbum: "Album",
		},
		{
			name:     "title only",
			frames:   map[string]string{"TIT2": "Title"},
			wantFull: "Title",
		},
		{
			name:   "no frames",
			frames: map[string]string{},
		},
	}

	codec := NewCodec()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bin := testsupport.MP3(t, tt.frames, nil)

			tags, err := codec.ReadTags(bin)
			if err != nil {
				t.Fatalf("ReadTags() error = %v", err)
			}
			if got := tags.FullTitle(); got != tt.wantFull {
				t.Errorf("fullTitle = %q, want %q", got, tt.wantFull)
			}
			if got := tags.Text(model.FrameAlbum); got != tt.wantAlbum {
				t.Errorf("TALB = %q, want %q", got, tt.wantAlbum)
			}
		})
	}
}

func TestCodec_ReadTagsCover(t *testing.T) {
	cover := testsupport.JPEG(t, 4, 4)
	bin := testsupport.MP3(t, map[string]string{"TIT2": "A - B"}, cover)

	tags, err := NewCodec().ReadTags(bin)
	if err != nil {
		t.Fatalf("ReadTags() error = %v", err)
	}

	got, ok := ExtractCover(tags)
	if !ok {
		t.Fatal("ExtractCover() found no cover")
	}
	if !bytes.Equal(got.Data, cover) {
		t.Error("cover bytes differ")
	}
	if got.MIMEType != "image/jpeg" {
		t.Errorf("MIMEType = %q", got.MIMEType)
	}

	got.Data[0] ^= 0xFF
	again, _ := ExtractCover(tags)
	if !bytes.Equal(again.Data, cover) {
		t.Error("ExtractCover() must return a copy")
	}
}

func TestCodec_ReadTagsID3v1(t *testing.T) {
	trailer := make([]byte, 128)
	copy(trailer, "TAG")
	copy(trailer[3:], "Title")
	copy(trailer[33:], "Artist")
	copy(trailer[63:], "Album")
	copy(trailer[93:], "1999")
	trailer[127] = 17

	bin := append(testsupport.AudioPayload(), trailer...)

	tags, err := NewCodec().ReadTags(bin)
	if err != nil {
		t.Fatalf("ReadTags() error = %v", err)
	}
	if tags.FullTitle() != "Artist - Title" {
		t.Errorf("fullTitle = %q", tags.FullTitle())
	}
	if tags.Text(model.FrameYear) != "1999" {
		t.Errorf("TYER = %q", tags.Text(model.FrameYear))
	}
	if tags.Text(model.FrameAlbum) != "Album" {
		t.Errorf("TALB = %q", tags.Text(model.FrameAlbum))
	}
}

func TestCodec_UnsupportedContainer(t *testing.T) {
	wav := append([]byte("RIFF\x24\x00\x00\x00WAVEfmt "), make([]byte, 64)...)

	tests := map[string][]byte{
		"empty": nil,
		"wav":   wav,
		"text":  []byte("hello, this is not audio at all"),
	}

	codec := NewCodec()
	for name, bin := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := codec.ReadTags(bin); !errors.Is(err, songerr.ErrUnsupportedContainer) {
				t.Errorf("ReadTags() error = %v, want unsupported container", err)
			}
			if _, err := codec.WriteTags(bin, model.Tags{}); !errors.Is(err, songerr.ErrUnsupportedContainer) {
				t.Errorf("WriteTags() error = %v, want unsupported container", err)
			}
		})
	}
}

func TestCodec_MalformedTag(t *testing.T) {
	// Header claims a 2 MiB tag on a tiny file.
	bin := append([]byte{'I', 'D', '3', 4, 0, 0, 0x01, 0x00, 0x00, 0x00}, testsupport.AudioPayload()...)

	if _, err := NewCodec().ReadTags(bin); !errors.Is(err, songerr.ErrTagParse) {
		t.Errorf("ReadTags() error = %v, want tag parse error", err)
	}
}

func TestCodec_WriteTagsPreservesAudio(t *testing.T) {
	bin := testsupport.MP3(t, map[string]string{"TIT2": "Old - Name", "TALB": "Album"}, nil)
	orig := append([]byte(nil), bin...)
	payload := testsupport.AudioPayload()

	tags := model.Tags{}
	tags.Set(model.KeyFullTitle, "New Artist - New Name")

	codec := NewCodec()
	out, err := codec.WriteTags(bin, tags)
	if err != nil {
		t.Fatalf("WriteTags() error = %v", err)
	}

	if !bytes.Equal(bin, orig) {
		t.Fatal("WriteTags() modified its input")
	}
	if !bytes.HasSuffix(out, payload) {
		t.Fatal("audio payload not preserved")
	}

	size, err := tagContainerSize(out)
	if err != nil {
		t.Fatalf("tagContainerSize() error = %v", err)
	}
	if !bytes.Equal(out[size:], payload) {
		t.Error("bytes after tag container differ from original payload")
	}

	got, err := codec.ReadTags(out)
	if err != nil {
		t.Fatalf("ReadTags() error = %v", err)
	}
	if got.Text(model.FrameTitle) != "New Artist - New Name" {
		t.Errorf("TIT2 = %q", got.Text(model.FrameTitle))
	}
	if got.Text(model.FrameArtist) != "New Artist" {
		t.Errorf("TPE1 = %q", got.Text(model.FrameArtist))
	}
	if got.Text(model.FrameAlbum) != "Album" {
		t.Errorf("absent key should keep TALB, got %q", got.Text(model.FrameAlbum))
	}
}

func TestCodec_WriteTagsCover(t *testing.T) {
	oldCover := testsupport.JPEG(t, 2, 2)
	newCover := testsupport.PNG(t, 3, 3)
	bin := testsupport.MP3(t, map[string]string{"TIT2": "A - B"}, oldCover)
	codec := NewCodec()

	t.Run("replace", func(t *testing.T) {
		tags := model.Tags{}
		tags.SetBinary(model.FramePicture, newCover, "image/png")

		out, err := codec.WriteTags(bin, tags)
		if err != nil {
			t.Fatalf("WriteTags() error = %v", err)
		}
		got, _ := codec.ReadTags(out)
		cover, ok := ExtractCover(got)
		if !ok || !bytes.Equal(cover.Data, newCover) || cover.MIMEType != "image/png" {
			t.Error("cover was not replaced")
		}
	})

	t.Run("remove", func(t *testing.T) {
		tags := model.Tags{}
		tags.Clear(model.FramePicture)

		out, err := codec.WriteTags(bin, tags)
		if err != nil {
			t.Fatalf("WriteTags() error = %v", err)
		}
		got, _ := codec.ReadTags(out)
		if _, ok := ExtractCover(got); ok {
			t.Error("cover was not removed")
		}
		if got.FullTitle() != "A - B" {
			t.Errorf("fullTitle = %q", got.FullTitle())
		}
	})

	t.Run("keep", func(t *testing.T) {
		out, err := codec.WriteTags(bin, model.Tags{})
		if err != nil {
			t.Fatalf("WriteTags() error = %v", err)
		}
		got, _ := codec.ReadTags(out)
		cover, ok := ExtractCover(got)
		if !ok || !bytes.Equal(cover.Data, oldCover) {
			t.Error("existing cover should be kept")
		}
	})
}

func TestCodec_WriteTagsWithoutExistingTag(t *testing.T) {
	bin := testsupport.AudioPayload()

	tags := model.Tags{}
	tags.Set(model.KeyFullTitle, "Artist - Title")

	codec := NewCodec()
	out, err := codec.WriteTags(bin, tags)
	if err != nil {
		t.Fatalf("WriteTags() error = %v", err)
	}
	got, err := codec.ReadTags(out)
	if err != nil {
		t.Fatalf("ReadTags() error = %v", err)
	}
	if got.FullTitle() != "Artist - Title" {
		t.Errorf("fullTitle = %q", got.FullTitle())
	}
}

func TestCodec_Probe(t *testing.T) {
	bin := testsupport.SongMP3(t, "Artist - Title")

	info, err := NewCodec().Probe(bin)
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}

	sum := sha256.Sum256(bin)
	if info.Hash != hex.EncodeToString(sum[:]) {
		t.Errorf("Hash = %q", info.Hash)
	}
	if info.Ext != "mp3" || info.MIMEType != MIMETypeMP3 {
		t.Errorf("type = %q %q", info.Ext, info.MIMEType)
	}
	if info.FileName() != info.Hash+".mp3" {
		t.Errorf("FileName() = %q", info.FileName())
	}
}

func TestCodec_RoundTripsEveryFrame(t *testing.T) {
	bin := testsupport.MP3(t, map[string]string{"TIT2": "Artist - Song"}, nil)

	want := map[string]string{
		"TALB": "Album",
		"TYER": "2001",
		"TCON": "Rock",
		"COMM": "a comment",
		"TXXX": "custom",
		"WOAR": "http://x",
		"WXXX": "http://y/z",
	}
	tags := model.Tags{}
	for id, v := range want {
		tags.Set(id, v)
	}

	codec := NewCodec()
	out, err := codec.WriteTags(bin, tags)
	if err != nil {
		t.Fatalf("WriteTags() error = %v", err)
	}
	got, err := codec.ReadTags(out)
	if err != nil {
		t.Fatalf("ReadTags() error = %v", err)
	}
	for id, v := range want {
		if g := got.Text(id); g != v {
			t.Errorf("frame %s = %q, want %q", id, g, v)
		}
	}
	if got.FullTitle() != "Artist - Song" {
		t.Errorf("fullTitle = %q, want the original title", got.FullTitle())
	}
}

func TestCodec_WriteTagsRejectsUnknownKeys(t *testing.T) {
	bin := testsupport.MP3(t, map[string]string{"TIT2": "Artist - Song"}, nil)

	for _, id := range []string{"PRIV", "mood", "T1"} {
		t.Run(id, func(t *testing.T) {
			tags := model.Tags{}
			tags.Set(id, "x")
			if _, err := NewCodec().WriteTags(bin, tags); !errors.Is(err, songerr.ErrTagParse) {
				t.Errorf("WriteTags(%s) error = %v, want tag parse error", id, err)
			}
		})
	}
}

func TestCodec_AcceptsMPEGFrameSyncs(t *testing.T) {
	tests := []struct {
		name   string
		header [2]byte
	}{
		{"MPEG-1", [2]byte{0xFF, 0xFB}},
		{"MPEG-1 with CRC", [2]byte{0xFF, 0xFA}},
		{"MPEG-2", [2]byte{0xFF, 0xF3}},
		{"MPEG-2 with CRC", [2]byte{0xFF, 0xF2}},
		{"MPEG-2.5", [2]byte{0xFF, 0xE3}},
	}

	codec := NewCodec()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bin := testsupport.AudioPayload()
			for i := 0; i < len(bin); i += 417 {
				bin[i], bin[i+1] = tt.header[0], tt.header[1]
			}

			if _, err := codec.ReadTags(bin); err != nil {
				t.Errorf("ReadTags() error = %v", err)
			}
			info, err := codec.Probe(bin)
			if err != nil {
				t.Fatalf("Probe() error = %v", err)
			}
			if info.Ext != "mp3" || info.MIMEType != MIMETypeMP3 {
				t.Errorf("Probe() = %s %s, want mp3 %s", info.Ext, info.MIMEType, MIMETypeMP3)
			}
		})
	}

	// ADTS AAC shares the sync word but is not layer III.
	aac := append([]byte{0xFF, 0xF1, 0x50, 0x80}, make([]byte, 64)...)
	if _, err := codec.ReadTags(aac); !errors.Is(err, songerr.ErrUnsupportedContainer) {
		t.Errorf("ReadTags(aac) error = %v, want unsupported container", err)
	}
}
