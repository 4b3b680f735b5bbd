package ioutils

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // PNG decoder registration

	"github.com/h2non/filetype"
	"golang.org/x/image/draw"
)

// ErrUnsupportedCover is returned for cover images that are neither JPEG nor PNG.
var ErrUnsupportedCover = errors.New("cover must be a JPEG or PNG image")

// ImageService provides image processing operations for cover art.
//
// ImageService is used to:
//   - Check that an uploaded cover is a JPEG or PNG image
//   - Resize covers to fit maximum dimensions before embedding them in an MP3
//   - Convert covers to JPEG format (for better compatibility)
//
// Example usage:
//
//	svc := NewImageService()
//
//	// Resize to max 500x500 and convert to JPEG
//	cover, mime, err := svc.NormalizeCover(ctx, imageData, 500, true)
type ImageService struct{}

// NewImageService creates a new ImageService.
func NewImageService() *ImageService {
	return &ImageService{}
}

// DetectCover returns the MIME type of a cover image, or ErrUnsupportedCover.
func (s *ImageService) DetectCover(data []byte) (string, error) {
	kind, err := filetype.Match(data)
	if err != nil {
		return "", fmt.Errorf("detect cover type: %w", err)
	}
	switch kind.MIME.Value {
	case "image/jpeg", "image/png":
		return kind.MIME.Value, nil
	}
	return "", ErrUnsupportedCover
}

// NormalizeCover prepares a cover image for embedding.
//
// Images larger than maxSize on either side are scaled down. When toJPEG is
// set, PNG covers are re-encoded as JPEG. A maxSize of 0 disables resizing.
// Returns the image bytes and their MIME type.
func (s *ImageService) NormalizeCover(ctx context.Context, data []byte, maxSize int, toJPEG bool) ([]byte, string, error) {
	mime, err := s.DetectCover(data)
	if err != nil {
		return nil, "", err
	}

	if maxSize > 0 {
		cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return nil, "", fmt.Errorf("decode cover: %w", err)
		}
		if cfg.Width > maxSize || cfg.Height > maxSize {
			resized, err := s.ResizeImage(ctx, data, maxSize, maxSize)
			if err != nil {
				return nil, "", err
			}
			return resized, "image/jpeg", nil
		}
	}

	if toJPEG && mime != "image/jpeg" {
		converted, err := s.ConvertToJPEG(ctx, data)
		if err != nil {
			return nil, "", err
		}
		return converted, "image/jpeg", nil
	}

	return data, mime, nil
}

// ResizeImage resizes an image to fit within the specified maximum dimensions.
//
// The aspect ratio is preserved. If the image is already smaller than the
// maximum dimensions, it will still be processed (re-encoded as JPEG).
//
// Returns the resized image as JPEG-encoded bytes.
//
// The Catmull-Rom algorithm is used for high-quality resizing.
//
// Example:
//
//	// Resize to fit within 1000x1000, maintaining aspect ratio
//	resized, err := svc.ResizeImage(ctx, imageData, 1000, 1000)
//	// A 1500x1000 image becomes 1000x666
//	// A 800x600 image remains 800x600 (but re-encoded)
func (s *ImageService) ResizeImage(ctx context.Context, data []byte, maxWidth, maxHeight int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	// Calculate new dimensions maintaining aspect ratio
	if width > maxWidth || height > maxHeight {
		ratio := float64(width) / float64(height)
		if float64(maxWidth)/float64(maxHeight) > ratio {
			width = int(float64(maxHeight) * ratio)
			height = maxHeight
		} else {
			height = int(float64(maxWidth) / ratio)
			width = maxWidth
		}
	}
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 90}); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// ConvertToJPEG converts an image to JPEG format.
//
// Returns the image as JPEG-encoded bytes with 90% quality. JPEG input is
// re-encoded too.
func (s *ImageService) ConvertToJPEG(ctx context.Context, data []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
