package capture

import (
	"image"
	"image/draw"
	"time"
)

// Frame represents a captured camera frame.
type Frame struct {
	Image     *image.RGBA
	Timestamp time.Time
	Seq       uint64
}

// Capturer produces frames on a channel until stopped.
type Capturer interface {
	Start() error
	Stop()
	Frames() <-chan *Frame
}

// ToRGBA converts img to *image.RGBA, copying only when needed.
func ToRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba
}
