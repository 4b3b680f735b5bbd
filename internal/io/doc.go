// Package ioutils provides file system and image processing utilities.
//
// This package contains functions for:
//   - Atomic file writes for downloaded songs and stored blobs
//   - Size-bounded reads of uploaded files
//   - Directory creation
//   - Cover image checks, resizing and format conversion
//
// # File Operations
//
//	err := ioutils.WriteFileAtomic(ctx, "/music/Artist - Title.mp3", data)
//	data, err := ioutils.ReadAllLimit(r, 200<<20)
//
// # Image Processing
//
// The ImageService handles cover art manipulation:
//
//	svc := ioutils.NewImageService()
//	cover, mime, err := svc.NormalizeCover(ctx, imageData, 1000, true)
package ioutils
