// Package song reconciles per-node song records and builds song links.
//
// Merge folds the SongInfo records that several nodes return for one title
// into a single model.Song. Links builds immediate links to stored files and
// deferred links that resolve a title when opened:
//
//	links := song.NewLinks("http://node-a:2790")
//	links.AudioLink(hash)                                 // http://node-a:2790/file/<hash>
//	links.DeferredLink("Artist - Title", model.LinkCover) // .../client/request-song?title=...&type=cover
package song
