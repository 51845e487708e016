package camera

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"
)

// Encoder draws camera images into a fixed-size off-screen buffer and
// encodes them as JPEG. It reuses the buffer between calls and is not safe
// for concurrent use.
type Encoder struct {
	width   int
	height  int
	quality int
	canvas  *image.RGBA
	buf     bytes.Buffer
}

// NewEncoder returns an encoder producing width x height JPEGs.
func NewEncoder(width, height, quality int) *Encoder {
	return &Encoder{
		width:   width,
		height:  height,
		quality: quality,
		canvas:  image.NewRGBA(image.Rect(0, 0, width, height)),
	}
}

// Encode scales src to the encoder resolution and returns a fresh JPEG slice.
func (e *Encoder) Encode(src image.Image) ([]byte, error) {
	if src == nil {
		return nil, fmt.Errorf("nil image")
	}
	if src.Bounds().Empty() {
		return nil, fmt.Errorf("empty image")
	}

	draw.ApproxBiLinear.Scale(e.canvas, e.canvas.Bounds(), src, src.Bounds(), draw.Src, nil)

	e.buf.Reset()
	if err := jpeg.Encode(&e.buf, e.canvas, &jpeg.Options{Quality: e.quality}); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}

	out := make([]byte, e.buf.Len())
	copy(out, e.buf.Bytes())
	return out, nil
}

// Size returns the output resolution.
func (e *Encoder) Size() (width, height int) {
	return e.width, e.height
}
