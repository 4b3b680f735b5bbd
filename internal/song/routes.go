package song

import "github.com/handiism/songmesh/internal/model"

// Routes of the node API.
const (
	SlaveGetSongInfoPath  = "/api/slave/get-song-info"
	SlaveRemoveSongPath   = "/api/slave/remove-song"
	ClientGetSongInfoPath = "/client/get-song-info"
	ClientGetSongLinkPath = "/client/get-song-link"
	ClientAddSongPath     = "/client/add-song"
	ClientRemoveSongPath  = "/client/remove-song"
)

// UploadField is the multipart field carrying the audio file on add-song.
const UploadField = "file"

// TitleRequest is the body of every title-addressed request.
type TitleRequest struct {
	Title string `json:"title"`
}

// LinkRequest asks for a link of one type.
type LinkRequest struct {
	Title string         `json:"title"`
	Type  model.LinkType `json:"type"`
}

// InfoResponse lists every node's record for a title, strongest first.
type InfoResponse struct {
	Info []model.SongInfo `json:"info"`
}

// LinkResponse carries a concrete link, empty when no node has the file.
type LinkResponse struct {
	Link string `json:"link"`
}

// RemoveResponse reports how many copies were removed.
type RemoveResponse struct {
	Removed int `json:"removed"`
}
