// Package songtitle validates and normalizes "Artist - Title" song titles.
package songtitle

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/handiism/songmesh/internal/songerr"
)

// Separator splits the artist from the song name.
const Separator = " - "

// IsSongTitle reports whether title has exactly one separator with a
// non-blank artist and name around it.
func IsSongTitle(title string) bool {
	if strings.Count(title, Separator) != 1 {
		return false
	}
	artist, name, _ := strings.Cut(title, Separator)
	return strings.TrimSpace(artist) != "" && strings.TrimSpace(name) != ""
}

// Validate returns an InvalidTitle error when title is not a song title.
func Validate(title string) error {
	if !IsSongTitle(title) {
		return songerr.InvalidTitle(title)
	}
	return nil
}

// Normalize returns the canonical form of title used as a storage key:
// NFC, runs of whitespace collapsed to one space, trimmed.
func Normalize(title string) string {
	return strings.Join(strings.Fields(norm.NFC.String(title)), " ")
}

// Split returns the artist and name parts of a valid title.
func Split(title string) (artist, name string, err error) {
	if err := Validate(title); err != nil {
		return "", "", err
	}
	artist, name, _ = strings.Cut(title, Separator)
	return strings.TrimSpace(artist), strings.TrimSpace(name), nil
}

// Join builds a title from its parts.
func Join(artist, name string) string {
	return strings.TrimSpace(artist) + Separator + strings.TrimSpace(name)
}
