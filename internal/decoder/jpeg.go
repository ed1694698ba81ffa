package decoder

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
)

// Limits on frames arriving from a remote peer.
const (
	MaxFrameBytes  = 4 << 20
	MaxFramePixels = 4096 * 4096
)

// ErrFrameTooLarge is returned for frames over MaxFrameBytes or MaxFramePixels.
var ErrFrameTooLarge = errors.New("frame too large")

// JPEGDecoder decodes JPEG frame bytes into *image.RGBA.
type JPEGDecoder struct{}

func NewJPEGDecoder() *JPEGDecoder {
	return &JPEGDecoder{}
}

// Decode checks the header against the size limits before decoding pixels.
func (d *JPEGDecoder) Decode(data []byte) (*image.RGBA, error) {
	if len(data) > MaxFrameBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(data))
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("jpeg header: %w", err)
	}
	if cfg.Width*cfg.Height > MaxFramePixels {
		return nil, fmt.Errorf("%w: %dx%d", ErrFrameTooLarge, cfg.Width, cfg.Height)
	}

	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba, nil
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba, nil
}
