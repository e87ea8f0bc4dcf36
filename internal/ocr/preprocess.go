package ocr

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/png"

	xdraw "golang.org/x/image/draw"
)

// minOCRDim is the smallest image edge handed to the recognizer.
// Renders below it are upscaled first; accuracy drops off sharply on
// tiny glyphs.
const minOCRDim = 150

// prepare converts a rendered page to grayscale, upscales undersized
// images, and encodes the result as PNG for the recognizer.
func prepare(img image.Image) ([]byte, error) {
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("ocr: empty page image")
	}

	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)

	if m := min(b.Dx(), b.Dy()); m < minOCRDim {
		s := float64(minOCRDim) / float64(m)
		scaled := image.NewGray(image.Rect(0, 0,
			int(float64(b.Dx())*s+0.5), int(float64(b.Dy())*s+0.5)))
		xdraw.CatmullRom.Scale(scaled, scaled.Bounds(), gray, gray.Bounds(), xdraw.Src, nil)
		gray = scaled
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, gray); err != nil {
		return nil, fmt.Errorf("ocr: encode page image: %w", err)
	}
	return buf.Bytes(), nil
}
