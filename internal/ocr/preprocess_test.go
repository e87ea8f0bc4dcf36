package ocr

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func decode(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	return img
}

func TestPrepareKeepsLargeImageSize(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 400, 300))
	data, err := prepare(src)
	if err != nil {
		t.Fatal(err)
	}
	got := decode(t, data).Bounds()
	if got.Dx() != 400 || got.Dy() != 300 {
		t.Errorf("size = %dx%d, want 400x300", got.Dx(), got.Dy())
	}
}

func TestPrepareUpscalesSmallImage(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 200, 75))
	data, err := prepare(src)
	if err != nil {
		t.Fatal(err)
	}
	got := decode(t, data).Bounds()
	// 75 doubles to the 150 minimum; the width scales with it.
	if got.Dy() != 150 || got.Dx() != 400 {
		t.Errorf("size = %dx%d, want 400x150", got.Dx(), got.Dy())
	}
}

func TestPrepareGrayscales(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 200, 200))
	for y := 0; y < 200; y++ {
		for x := 0; x < 200; x++ {
			src.Set(x, y, color.RGBA{R: 255, A: 255})
		}
	}
	data, err := prepare(src)
	if err != nil {
		t.Fatal(err)
	}
	img := decode(t, data)
	if _, ok := img.(*image.Gray); !ok {
		t.Errorf("decoded as %T, want *image.Gray", img)
	}
}

func TestPrepareRejectsEmptyImage(t *testing.T) {
	if _, err := prepare(image.NewRGBA(image.Rectangle{})); err == nil {
		t.Fatal("expected error for empty image")
	}
}
