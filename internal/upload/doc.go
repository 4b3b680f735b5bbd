// Package upload prepares local MP3 files for storage on a node.
//
// A Pipeline reads the file's tags, settles the "Artist - Title" it will be
// stored under, rewrites TIT2/TPE1 and the cover, and hands the result to a
// Submitter:
//
//	p := upload.NewPipeline(upload.SubmitFunc(func(ctx context.Context, data []byte) (*model.StoreResult, error) {
//	    return c.AddSong(ctx, data)
//	}), upload.Options{CoverMaxSize: 1000}, onProgress)
//
//	res, err := p.Run(ctx, model.UploadRequest{Path: "song.mp3", Cover: model.CoverRemove})
package upload
