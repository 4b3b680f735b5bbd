package model

import (
	"encoding/json"
	"sort"
)

// Frame identifiers used throughout songmesh.
//
// Only the frames the system reasons about are named here; any other ID3v2
// frame ID can still be stored in Tags as a plain string key.
const (
	// FrameTitle is the TIT2 (Title) frame. songmesh stores the full
	// "Artist - Title" string in it.
	FrameTitle = "TIT2"

	// FrameArtist is the TPE1 (Lead artist) frame.
	FrameArtist = "TPE1"

	// FrameAlbum is the TALB (Album title) frame.
	FrameAlbum = "TALB"

	// FrameGenre is the TCON (Content type) frame.
	FrameGenre = "TCON"

	// FrameYear is the TYER (Year) frame, ID3v2.3.
	FrameYear = "TYER"

	// FrameRecordingTime is the TDRC (Recording time) frame, ID3v2.4.
	FrameRecordingTime = "TDRC"

	// FramePicture is the APIC (Attached picture) frame holding cover art.
	FramePicture = "APIC"

	// KeyFullTitle is the derived "Artist - Title" key. It is not an ID3 frame.
	KeyFullTitle = "fullTitle"
)

// HeritableTags lists the frames that flow from one record to another when
// several nodes report the same title. Order is fixed.
var HeritableTags = []string{
	FrameAlbum,
	FrameGenre,
	FrameYear,
	FrameRecordingTime,
	"TPE2", // album artist
	"TCOM", // composer
	"TPUB", // publisher
	"TCOP", // copyright
	"TLAN", // language
}

// TagValue is a single tag entry.
//
// Text frames carry Text. The picture frame carries Data and MIMEType.
// A value created with Tags.Clear is a tombstone: it means "remove this
// frame", which is different from the key simply being absent.
type TagValue struct {
	Text     string
	Data     []byte
	MIMEType string

	cleared bool
}

// IsBinary reports whether the value carries a binary payload.
func (v TagValue) IsBinary() bool {
	return v.Data != nil
}

// Tags maps frame IDs to values.
//
// Tags is treated as immutable by the helpers below: every method that
// produces a changed set returns a new map.
type Tags map[string]TagValue

// Get returns the value for id. Tombstoned values are reported as absent.
func (t Tags) Get(id string) (TagValue, bool) {
	v, ok := t[id]
	if !ok || v.cleared {
		return TagValue{}, false
	}
	return v, true
}

// Text returns the text value for id, or "" if absent.
func (t Tags) Text(id string) string {
	v, _ := t.Get(id)
	return v.Text
}

// Has reports whether id holds a live value.
func (t Tags) Has(id string) bool {
	_, ok := t.Get(id)
	return ok
}

// Set stores a text value.
func (t Tags) Set(id, text string) {
	t[id] = TagValue{Text: text}
}

// SetBinary stores a binary value. The slice is copied.
func (t Tags) SetBinary(id string, data []byte, mimeType string) {
	t[id] = TagValue{Data: append([]byte{}, data...), MIMEType: mimeType}
}

// Clear marks id as explicitly removed.
func (t Tags) Clear(id string) {
	t[id] = TagValue{cleared: true}
}

// IsCleared reports whether id carries a tombstone.
func (t Tags) IsCleared(id string) bool {
	v, ok := t[id]
	return ok && v.cleared
}

// FullTitle returns the derived "Artist - Title" value.
func (t Tags) FullTitle() string {
	return t.Text(KeyFullTitle)
}

// Clone returns a copy of t. Binary payloads are shared; they are never
// mutated in place.
func (t Tags) Clone() Tags {
	out := make(Tags, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// Pick returns a new set holding only the live values listed in ids.
func (t Tags) Pick(ids []string) Tags {
	out := make(Tags, len(ids))
	for _, id := range ids {
		if v, ok := t.Get(id); ok {
			out[id] = v
		}
	}
	return out
}

// Without returns a copy of t with the given keys dropped.
func (t Tags) Without(ids ...string) Tags {
	out := t.Clone()
	for _, id := range ids {
		delete(out, id)
	}
	return out
}

// Overlay returns base values overridden by over. A tombstone in over
// removes the key from the result.
func (t Tags) Overlay(over Tags) Tags {
	out := make(Tags, len(t)+len(over))
	for k, v := range t {
		if !v.cleared {
			out[k] = v
		}
	}
	for k, v := range over {
		if v.cleared {
			delete(out, k)
			continue
		}
		out[k] = v
	}
	return out
}

// Keys returns the live keys in sorted order.
func (t Tags) Keys() []string {
	keys := make([]string, 0, len(t))
	for k, v := range t {
		if !v.cleared {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// MarshalJSON encodes the text values as a flat object. Binary values and
// tombstones are left out: covers travel by link, never inline.
func (t Tags) MarshalJSON() ([]byte, error) {
	flat := make(map[string]string, len(t))
	for k, v := range t {
		if v.cleared || v.IsBinary() {
			continue
		}
		flat[k] = v.Text
	}
	return json.Marshal(flat)
}

// UnmarshalJSON decodes a flat object of text values.
func (t *Tags) UnmarshalJSON(data []byte) error {
	var flat map[string]string
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}
	out := make(Tags, len(flat))
	for k, v := range flat {
		out[k] = TagValue{Text: v}
	}
	*t = out
	return nil
}
