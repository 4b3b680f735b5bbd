// Package download fetches batches of songs from the network to local disk.
//
// # Manager
//
// The Manager coordinates a batch:
//
//  1. Parse the input, one "Artist - Title" per line
//  2. Resolve every title into a merged song record
//  3. Download the audio files concurrently
//  4. Save cover images next to them (optional)
//  5. Write a playlist of the saved files (optional)
//
// # Basic Usage
//
//	c := client.New("http://localhost:2790", client.Options{})
//	manager := download.NewManager(settings, c, func(event model.ProgressEvent) {
//	    fmt.Println(event.Message)
//	})
//
//	paths, err := manager.Fetch(ctx, []string{"Artist - Title"}, "")
//
// Titles that are invalid or that no node holds are reported through the
// progress callback and skipped; they do not fail the batch.
//
// # Retry Logic
//
// Failed transfers are retried with exponential backoff, configurable via
// settings.Download.MaxRetries, RetryCooldown and RetryExponent.
package download
