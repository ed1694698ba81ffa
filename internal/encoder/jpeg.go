package encoder

import (
	"bytes"
	"image"
	"image/jpeg"
	"sync/atomic"
)

// DefaultQuality keeps barcodes legible at a modest frame size.
const DefaultQuality = 80

// JPEGEncoder encodes frames as JPEG. It is safe for concurrent use.
type JPEGEncoder struct {
	quality atomic.Int32
}

// NewJPEGEncoder creates a JPEG encoder with the given quality (1-100).
func NewJPEGEncoder(quality int) *JPEGEncoder {
	e := &JPEGEncoder{}
	e.SetQuality(quality)
	return e
}

// SetQuality changes the quality of subsequent frames, clamped to 1-100.
func (e *JPEGEncoder) SetQuality(quality int) {
	e.quality.Store(int32(clampQuality(quality)))
}

// Quality returns the current quality.
func (e *JPEGEncoder) Quality() int { return int(e.quality.Load()) }

func (e *JPEGEncoder) Encode(img *image.RGBA) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(len(img.Pix) / 8)
	err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: e.Quality()})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func clampQuality(q int) int {
	return min(max(q, 1), 100)
}
