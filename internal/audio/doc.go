// Package audio reads and writes the embedded metadata of MP3 files and
// renders playlists of resolved songs.
//
// # Tag Codec
//
// Codec turns an MP3 binary into a model.Tags set and back:
//
//	codec := audio.NewCodec()
//	tags, err := codec.ReadTags(data)
//	tags.Set(model.KeyFullTitle, "Artist - Title")
//	out, err := codec.WriteTags(data, tags)
//
// The codec supports:
//   - ID3v2.3 and ID3v2.4 tags, written back as ID3v2.4 with UTF-8 text
//   - ID3v1 trailers as a read-only fallback
//   - Cover art (APIC) replace and remove
//   - Content hashing and type sniffing with Probe
//
// Only the tag container is rewritten; the audio frames are copied as-is.
//
// # Playlist Generation
//
// Generate playlists of resolved songs:
//
//	creator := audio.NewPlaylistCreator(model.PlaylistFormatM3U, true) // extended M3U
//	content := creator.CreatePlaylist("Favourites", songs)
//
// Supported formats:
//   - M3U (with optional extended info)
//   - PLS
//   - WPL (Windows Media Player)
//   - ZPL (Zune Media Player)
package audio
