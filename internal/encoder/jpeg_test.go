package encoder

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func checker(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			c := color.RGBA{A: 255}
			if (x/8+y/8)%2 == 0 {
				c = color.RGBA{R: 255, G: 255, B: 255, A: 255}
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestJPEGEncoder_QualityClamp(t *testing.T) {
	assert.Equal(t, 1, NewJPEGEncoder(0).Quality())
	assert.Equal(t, 100, NewJPEGEncoder(500).Quality())

	e := NewJPEGEncoder(DefaultQuality)
	assert.Equal(t, DefaultQuality, e.Quality())
	e.SetQuality(-3)
	assert.Equal(t, 1, e.Quality())
}

func TestJPEGEncoder_Encode(t *testing.T) {
	img := checker(64, 48)

	data, err := NewJPEGEncoder(90).Encode(img)
	require.NoError(t, err)

	decoded, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, img.Bounds(), decoded.Bounds())
}

func TestJPEGEncoder_LowerQualityIsSmaller(t *testing.T) {
	img := checker(128, 128)

	hi, err := NewJPEGEncoder(95).Encode(img)
	require.NoError(t, err)
	lo, err := NewJPEGEncoder(10).Encode(img)
	require.NoError(t, err)
	assert.Less(t, len(lo), len(hi))
}
