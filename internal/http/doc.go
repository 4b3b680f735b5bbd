// Package http provides the transport used to talk to songmesh nodes.
//
// The Client in this package handles:
//   - JSON requests with per-call timeouts
//   - Multipart uploads streamed from an io.Reader
//   - File downloads with progress tracking
//   - Error bodies ({"code","message"}) decoded into songerr errors
//
// # Basic Usage
//
//	client := http.NewClient(http.WithBaseURL("http://localhost:2790"))
//
//	var out struct{ Info []model.SongInfo `json:"info"` }
//	err := client.PostJSON(ctx, "/client/get-song-info", map[string]string{"title": t}, &out, 30*time.Second)
//
// # Timers
//
// RequestTimer splits one budget across sequential phases, such as a link
// lookup followed by the file transfer:
//
//	timer := http.RequestTimer(5 * time.Minute)
//	lookup := timer(30 * time.Second)
//	transfer := timer()
package http
