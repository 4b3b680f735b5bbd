package model

import (
	"path/filepath"
	"strings"
)

// PathConfig holds path formatting settings for songs saved locally.
//
// All path fields support placeholders that are replaced with actual values:
//   - {artist} - Artist part of the title
//   - {title} - Name part of the title
//   - {album} - TALB frame, "Unknown Album" when absent
//   - {year} - TYER or the year of TDRC, "0000" when absent
//   - {hash} - content hash
//
// Example configuration:
//
//	cfg := &PathConfig{
//	    DownloadsPath:  "/home/user/Music/{artist}",
//	    FileNameFormat: "{artist} - {title}.mp3",
//	    PlaylistFormat: PlaylistFormatM3U,
//	}
type PathConfig struct {
	// DownloadsPath is the base path template for saving songs.
	DownloadsPath string

	// FileNameFormat is the template for song filenames, extension included.
	FileNameFormat string

	// CoverArtFileNameFormat is the filename template for covers (without extension).
	CoverArtFileNameFormat string

	// PlaylistFileNameFormat is the filename template for playlists (without extension).
	PlaylistFileNameFormat string

	// PlaylistFormat determines the playlist file type and extension.
	PlaylistFormat PlaylistFormat
}

// LocalPath computes where the song should be saved under cfg.
func (s *Song) LocalPath(cfg *PathConfig) string {
	dir := s.expand(cfg.DownloadsPath, true)
	name := s.expand(cfg.FileNameFormat, false)
	if name == "" {
		name = s.FileName(".mp3")
	}
	return limitPath(dir, sanitizeFileName(name))
}

// CoverPath computes where the song cover should be saved under cfg. ext
// includes the dot.
func (s *Song) CoverPath(cfg *PathConfig, ext string) string {
	dir := s.expand(cfg.DownloadsPath, true)
	name := sanitizeFileName(s.expand(cfg.CoverArtFileNameFormat, false))
	return limitPath(dir, name+ext)
}

// PlaylistPath computes the playlist path for a batch of songs saved under
// dir. Song placeholders are not available for playlists; only the literal
// template is used.
func PlaylistPath(dir string, cfg *PathConfig) string {
	name := sanitizeFileName(cfg.PlaylistFileNameFormat)
	if name == "" {
		name = "playlist"
	}
	return limitPath(dir, name+cfg.PlaylistFormat.Extension())
}

func (s *Song) expand(tmpl string, perSegment bool) string {
	artist, name := splitFullTitle(s.Title)
	album := s.Tags.Text(FrameAlbum)
	if album == "" {
		album = "Unknown Album"
	}
	year := s.Tags.Text(FrameYear)
	if year == "" {
		if rec := s.Tags.Text(FrameRecordingTime); len(rec) >= 4 {
			year = rec[:4]
		}
	}
	if year == "" {
		year = "0000"
	}

	clean := func(v string) string {
		if perSegment {
			return sanitizeFileName(v)
		}
		return v
	}

	r := strings.NewReplacer(
		"{artist}", clean(artist),
		"{title}", clean(name),
		"{album}", clean(album),
		"{year}", clean(year),
		"{hash}", clean(s.FileHash),
	)
	return r.Replace(tmpl)
}

func splitFullTitle(title string) (string, string) {
	artist, name, ok := strings.Cut(title, " - ")
	if !ok {
		return "", title
	}
	return strings.TrimSpace(artist), strings.TrimSpace(name)
}

// limitPath joins dir and name and shortens the name when the total path
// would exceed the Windows MAX_PATH limit.
func limitPath(dir, name string) string {
	if len(dir) >= 248 {
		dir = dir[:247]
	}
	p := filepath.Join(dir, name)
	if len(p) >= 260 {
		ext := filepath.Ext(name)
		maxLen := 259 - len(dir) - 1 - len(ext)
		if maxLen > 0 && maxLen < len(name)-len(ext) {
			p = filepath.Join(dir, name[:maxLen]+ext)
		}
	}
	return p
}

// PlaylistFormat represents supported playlist file formats.
type PlaylistFormat int

const (
	// PlaylistFormatM3U creates .m3u playlist files (most widely supported).
	PlaylistFormatM3U PlaylistFormat = iota

	// PlaylistFormatPLS creates .pls playlist files (used by Winamp).
	PlaylistFormatPLS

	// PlaylistFormatWPL creates .wpl playlist files (Windows Media Player).
	PlaylistFormatWPL

	// PlaylistFormatZPL creates .zpl playlist files (Zune Media Player).
	PlaylistFormatZPL
)

// Extension returns the file extension for the playlist format, including the dot.
func (pf PlaylistFormat) Extension() string {
	switch pf {
	case PlaylistFormatPLS:
		return ".pls"
	case PlaylistFormatWPL:
		return ".wpl"
	case PlaylistFormatZPL:
		return ".zpl"
	default:
		return ".m3u"
	}
}

// ParsePlaylistFormat maps a format name ("m3u", "pls", "wpl", "zpl") to a
// PlaylistFormat. Unknown names fall back to M3U.
func ParsePlaylistFormat(name string) PlaylistFormat {
	switch strings.ToLower(strings.TrimPrefix(name, ".")) {
	case "pls":
		return PlaylistFormatPLS
	case "wpl":
		return PlaylistFormatWPL
	case "zpl":
		return PlaylistFormatZPL
	default:
		return PlaylistFormatM3U
	}
}
