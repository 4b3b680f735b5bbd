package song

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/handiism/songmesh/internal/model"
)

// Paths served by a node for links it hands out.
const (
	FilePath        = "/file/"
	CoverPath       = "/cover/"
	RequestSongPath = "/client/request-song"
)

// Links builds audio and cover links against a node's public address.
type Links struct {
	BaseURL string
}

// NewLinks returns a Links rooted at baseURL. A trailing slash is dropped.
func NewLinks(baseURL string) Links {
	return Links{BaseURL: strings.TrimRight(baseURL, "/")}
}

// AudioLink returns the concrete address of a stored audio file.
func (l Links) AudioLink(hash string) string {
	return l.BaseURL + FilePath + url.PathEscape(hash)
}

// CoverLink returns the concrete address of the cover embedded in a stored
// audio file.
func (l Links) CoverLink(hash string) string {
	return l.BaseURL + CoverPath + url.PathEscape(hash)
}

// Link returns the concrete link of the given type.
func (l Links) Link(hash string, typ model.LinkType) string {
	switch typ {
	case model.LinkAudio:
		return l.AudioLink(hash)
	case model.LinkCover:
		return l.CoverLink(hash)
	}
	panic(fmt.Sprintf("song: invalid link type %q", typ))
}

// DeferredLink returns a link that asks the network for the song when it is
// opened. It always succeeds for audio and cover; any other type panics.
func (l Links) DeferredLink(title string, typ model.LinkType) string {
	if typ != model.LinkAudio && typ != model.LinkCover {
		panic(fmt.Sprintf("song: invalid link type %q", typ))
	}
	q := url.Values{}
	q.Set("title", title)
	q.Set("type", string(typ))
	return l.BaseURL + RequestSongPath + "?" + q.Encode()
}
