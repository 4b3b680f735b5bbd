// Package client is the Go client of a songmesh network.
//
// A Client talks to one node, which fans requests out to its peers:
//
//	c := client.New("http://localhost:2790", client.Options{})
//
//	s, err := c.GetSong(ctx, "Artist - Title")      // merged record, nil if unknown
//	err = c.GetSongAudioToPath(ctx, "Artist - Title", "song.mp3")
//	link := c.CreateRequestedSongCoverLink("Artist - Title")
//
// File downloads share one budget (FileGettingTimeout) between the link
// lookup and the transfer. Titles are validated before any request is made.
package client
