package display

import (
	"context"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/junsooki/AirScan/internal/camera"
	"github.com/junsooki/AirScan/internal/view"
)

func TestAspectFitTransform(t *testing.T) {
	scale, ox, oy := aspectFitTransform(1280, 720, 640, 480)
	assert.InDelta(t, 1.5, scale, 1e-9)
	assert.InDelta(t, 160, ox, 1e-9)
	assert.InDelta(t, 0, oy, 1e-9)

	scale, ox, oy = aspectFitTransform(400, 800, 800, 800)
	assert.InDelta(t, 0.5, scale, 1e-9)
	assert.InDelta(t, 0, ox, 1e-9)
	assert.InDelta(t, 200, oy, 1e-9)
}

func TestViewfinder(t *testing.T) {
	r := viewfinder(640, 480, 1, 0, 0)
	assert.Equal(t, rect{x: 80, y: 80, w: 480, h: 320}, r)

	r = viewfinder(640, 480, 2, 10, 20)
	assert.Equal(t, rect{x: 170, y: 180, w: 960, h: 640}, r)

	// 100px frames keep a quarter inset rather than collapsing.
	r = viewfinder(100, 100, 1, 0, 0)
	assert.Equal(t, rect{x: 25, y: 25, w: 50, h: 50}, r)
}

func TestStatusLines(t *testing.T) {
	assert.Equal(t, []string{"Camera inactive"}, statusLines(view.Model{Indicator: view.IndicatorInactive}))

	m := view.Model{
		Indicator: view.IndicatorActive, Badge: view.BadgeFound,
		Error:     "Error: x",
		HasResult: true, ResultHeading: view.ResultHeading, Result: "ABC", ScannedAt: "10:00:00",
	}
	assert.Equal(t, []string{
		"Camera active  [Code Found!]",
		"Error: x",
		"Last detected code: ABC (10:00:00)",
	}, statusLines(m))
}

type stubFeed struct{ released int }

func (f *stubFeed) CurrentFrame() (*image.RGBA, error) { return image.NewRGBA(image.Rect(0, 0, 4, 4)), nil }
func (f *stubFeed) Release()                           { f.released++ }

type stubSource struct {
	feed *stubFeed
	err  error
}

func (s *stubSource) Acquire(context.Context, camera.Constraints) (camera.Feed, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.feed, nil
}

type recordSink struct{ feeds []FrameSource }

func (r *recordSink) SetFeed(f FrameSource) { r.feeds = append(r.feeds, f) }

func TestTap(t *testing.T) {
	inner := &stubFeed{}
	sink := &recordSink{}
	src := Tap(&stubSource{feed: inner}, sink)

	feed, err := src.Acquire(context.Background(), camera.Constraints{})
	require.NoError(t, err)
	require.Len(t, sink.feeds, 1)
	assert.NotNil(t, sink.feeds[0])

	feed.Release()
	feed.Release()
	assert.Equal(t, 2, inner.released, "release passes through")
	require.Len(t, sink.feeds, 2)
	assert.Nil(t, sink.feeds[1], "sink cleared once")
}

func TestTap_AcquireError(t *testing.T) {
	sink := &recordSink{}
	src := Tap(&stubSource{err: camera.NoDevice("Requested device not found")}, sink)

	_, err := src.Acquire(context.Background(), camera.Constraints{})
	assert.Equal(t, camera.KindNoDevice, camera.KindOf(err))
	assert.Empty(t, sink.feeds)
}
