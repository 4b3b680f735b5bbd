// Package model defines the core data structures used throughout songmesh.
//
// # Tags
//
// Tags is the set of ID3 frames of one song, keyed by frame ID:
//
//	tags := model.Tags{}
//	tags.Set(model.FrameTitle, "Artist - Title")
//	tags.Clear(model.FramePicture) // remove the cover on write
//	merged := base.Overlay(tags)
//
// Tags never change in place once handed out; Overlay, Pick and Without
// return new sets.
//
// # Song records
//
// SongInfo is what a single node reports for a title. Song is the merged,
// canonical record built from every node's SongInfo.
//
// # Path Configuration
//
// PathConfig controls where songs are saved locally using placeholders:
//
//	cfg := &model.PathConfig{
//	    DownloadsPath:  "/music/{artist}",
//	    FileNameFormat: "{artist} - {title}.mp3",
//	    PlaylistFormat: model.PlaylistFormatM3U,
//	}
//	path := song.LocalPath(cfg)
//
// Available placeholders: {artist}, {title}, {album}, {year}, {hash}
package model
