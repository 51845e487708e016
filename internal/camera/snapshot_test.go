package camera

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
)

func solid(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestEncoderScalesToFixedResolution(t *testing.T) {
	enc := NewEncoder(64, 48, 60)

	data, err := enc.Encode(solid(320, 240, color.RGBA{R: 200, G: 30, B: 30, A: 255}))
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	decoded, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("output is not a jpeg: %v", err)
	}
	if b := decoded.Bounds(); b.Dx() != 64 || b.Dy() != 48 {
		t.Errorf("expected 64x48, got %dx%d", b.Dx(), b.Dy())
	}
}

func TestEncoderReturnsIndependentSlices(t *testing.T) {
	enc := NewEncoder(16, 16, 50)

	first, err := enc.Encode(solid(16, 16, color.White))
	if err != nil {
		t.Fatal(err)
	}
	snapshot := append([]byte(nil), first...)

	if _, err := enc.Encode(solid(16, 16, color.Black)); err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(first, snapshot) {
		t.Error("expected earlier frame data to be unaffected by later encodes")
	}
}

func TestEncoderRejectsEmptyImage(t *testing.T) {
	enc := NewEncoder(16, 16, 50)

	if _, err := enc.Encode(nil); err == nil {
		t.Error("expected error for nil image")
	}
	if _, err := enc.Encode(image.NewRGBA(image.Rectangle{})); err == nil {
		t.Error("expected error for empty image")
	}
}

func TestFrameMIMEType(t *testing.T) {
	if (Frame{}).MIMEType() != "image/jpeg" {
		t.Errorf("unexpected mime type %q", Frame{}.MIMEType())
	}
}
