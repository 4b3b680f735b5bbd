package model

import (
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"
)

// SongInfo is one node's view of a title.
//
// A node that holds the file returns a populated record; a node that does
// not returns the zero-ish record (empty tags, no links, priority 0).
//
// Example JSON:
//
//	{
//	    "title": "Artist - Title",
//	    "fileHash": "9f86d08...",
//	    "priority": 1,
//	    "audioLink": "http://node-a:2790/file/9f86d08...",
//	    "coverLink": "http://node-a:2790/cover/9f86d08...",
//	    "tags": {"TIT2": "Artist - Title", "TALB": "Album"}
//	}
type SongInfo struct {
	// Title is the stored title, empty when the node has nothing.
	Title string `json:"title"`

	// FileHash is the content hash of the stored audio file.
	FileHash string `json:"fileHash,omitempty"`

	// Priority orders records from different nodes; higher is stronger.
	Priority int `json:"priority"`

	// AudioLink is a concrete address of the audio file.
	AudioLink string `json:"audioLink"`

	// CoverLink is a concrete address of the cover image, empty if the file
	// has no embedded cover.
	CoverLink string `json:"coverLink"`

	// Tags holds the file's text tags. APIC is never included.
	Tags Tags `json:"tags"`
}

// EmptySongInfo returns the record a node answers with when it does not
// hold the requested title.
func EmptySongInfo() SongInfo {
	return SongInfo{Tags: Tags{}}
}

// Found reports whether the record points at an actual file.
func (s SongInfo) Found() bool {
	return s.AudioLink != ""
}

// Song is the canonical record for a title after merging every node's
// response.
type Song struct {
	Title     string `json:"title"`
	FileHash  string `json:"fileHash,omitempty"`
	Priority  int    `json:"priority"`
	AudioLink string `json:"audioLink"`
	CoverLink string `json:"coverLink,omitempty"`
	Tags      Tags   `json:"tags"`
}

// HasCover reports whether a cover link was resolved.
func (s *Song) HasCover() bool {
	return s.CoverLink != ""
}

// FileName returns a filesystem-safe name for saving the song locally.
//
// Example:
//
//	song.FileName(".mp3") // "Artist - Title.mp3"
func (s *Song) FileName(ext string) string {
	name := s.Title
	if name == "" {
		name = s.Tags.FullTitle()
	}
	return sanitizeFileName(name) + ext
}

// CoverAction tells the upload pipeline what to do with the APIC frame.
type CoverAction int

const (
	// CoverKeep leaves whatever cover the file already embeds.
	CoverKeep CoverAction = iota

	// CoverReplace embeds UploadRequest.CoverData as the new cover.
	CoverReplace

	// CoverRemove strips any embedded cover.
	CoverRemove
)

// UploadRequest describes one song upload.
//
// Either Path or File must be set. When File implements io.Closer the
// upload pipeline takes ownership and closes it.
type UploadRequest struct {
	// Path is a local file to read.
	Path string

	// File is an already opened source.
	File io.Reader

	// Title overrides the tag-derived "Artist - Title" when not empty.
	Title string

	// Cover selects the APIC handling.
	Cover CoverAction

	// CoverData is the new cover image for CoverReplace.
	CoverData []byte
}

// LinkType selects which file of a song a link points at.
type LinkType string

const (
	LinkAudio LinkType = "audio"
	LinkCover LinkType = "cover"
)

// ParseLinkType converts wire input into a LinkType.
func ParseLinkType(s string) (LinkType, error) {
	switch LinkType(s) {
	case LinkAudio, LinkCover:
		return LinkType(s), nil
	}
	return "", fmt.Errorf("unknown link type %q", s)
}

// StoreResult is what a node answers after storing an uploaded song.
type StoreResult struct {
	FileHash string `json:"fileHash"`
	Title    string `json:"title"`
}

// Document is the metadata store record for one stored song.
type Document struct {
	Title       string    `json:"title" bson:"_id"`
	FileHash    string    `json:"fileHash" bson:"file_hash"`
	Priority    int       `json:"priority" bson:"priority"`
	CreatedAt   time.Time `json:"createdAt" bson:"created_at"`
	AccessedAt  time.Time `json:"accessedAt" bson:"accessed_at"`
	AccessCount int64     `json:"accessCount" bson:"access_count"`
}

var (
	invalidNameChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)
	trailingDots     = regexp.MustCompile(`\.+$`)
	whitespaceRuns   = regexp.MustCompile(`\s+`)
)

// sanitizeFileName removes or replaces characters that are invalid in file/folder names.
//
// The following transformations are applied:
//   - Invalid characters (<>:"/\|?* and control chars) are replaced with underscore
//   - Trailing dots are removed (Windows limitation)
//   - Multiple whitespace is collapsed to single space
//   - Trailing whitespace is removed
//
// Example:
//
//	sanitizeFileName("Song: Part 1/2") // Returns "Song_ Part 1_2"
func sanitizeFileName(name string) string {
	name = invalidNameChars.ReplaceAllString(name, "_")
	name = trailingDots.ReplaceAllString(name, "")
	name = whitespaceRuns.ReplaceAllString(name, " ")
	return strings.TrimRight(name, " ")
}
