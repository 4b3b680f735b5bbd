package testsupport

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/bogem/id3v2"
)

// AudioPayload returns a few fake MPEG-1 Layer III frames. The bytes are
// not playable but carry a valid frame sync so they sniff as audio/mpeg.
func AudioPayload() []byte {
	frame := make([]byte, 417)
	frame[0], frame[1], frame[2], frame[3] = 0xFF, 0xFB, 0x90, 0x64
	for i := 4; i < len(frame); i++ {
		frame[i] = byte(i % 251)
	}
	return bytes.Repeat(frame, 4)
}

// MP3 builds an in-memory MP3 with an ID3v2.4 tag holding the given text
// frames and, when cover is not nil, a JPEG front cover.
func MP3(t testing.TB, frames map[string]string, cover []byte) []byte {
	t.Helper()

	id3 := id3v2.NewEmptyTag()
	id3.SetVersion(4)
	id3.SetDefaultEncoding(id3v2.EncodingUTF8)
	for id, text := range frames {
		id3.AddTextFrame(id, id3v2.EncodingUTF8, text)
	}
	if cover != nil {
		id3.AddAttachedPicture(id3v2.PictureFrame{
			Encoding:    id3v2.EncodingUTF8,
			MimeType:    "image/jpeg",
			PictureType: id3v2.PTFrontCover,
			Description: "Cover",
			Picture:     cover,
		})
	}

	var buf bytes.Buffer
	if id3.Count() > 0 {
		if _, err := id3.WriteTo(&buf); err != nil {
			t.Fatalf("write id3 tag: %v", err)
		}
	}
	buf.Write(AudioPayload())
	return buf.Bytes()
}

// SongMP3 is a shortcut for an MP3 whose TIT2 holds title.
func SongMP3(t testing.TB, title string) []byte {
	t.Helper()
	return MP3(t, map[string]string{"TIT2": title}, nil)
}

// JPEG encodes a solid w×h image.
func JPEG(t testing.TB, w, h int) []byte {
	t.Helper()

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, solid(w, h), &jpeg.Options{Quality: 80}); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

// PNG encodes a solid w×h image.
func PNG(t testing.TB, w, h int) []byte {
	t.Helper()

	var buf bytes.Buffer
	if err := png.Encode(&buf, solid(w, h)); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func solid(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	c := color.RGBA{R: 200, G: 40, B: 90, A: 255}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}
