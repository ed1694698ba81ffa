// Package display shows the camera feed and the scan state in a desktop
// window.
package display

import (
	"context"
	"image"
	"sync"

	"github.com/junsooki/AirScan/internal/camera"
	"github.com/junsooki/AirScan/internal/view"
)

// Display renders frames until closed.
type Display interface {
	Run() error
}

// FrameSource provides frames to the display. camera.Feed satisfies it.
type FrameSource interface {
	CurrentFrame() (*image.RGBA, error)
}

// ModelSink receives view models to draw.
type ModelSink interface {
	SetModel(m view.Model)
}

// FeedSink receives the feed to draw frames from.
type FeedSink interface {
	SetFeed(f FrameSource)
}

type tap struct {
	camera.Source
	sink FeedSink
}

// Tap wraps src so every feed it grants is also shown by sink. The sink stops
// drawing a feed once it is released.
func Tap(src camera.Source, sink FeedSink) camera.Source {
	return &tap{Source: src, sink: sink}
}

func (t *tap) Acquire(ctx context.Context, c camera.Constraints) (camera.Feed, error) {
	feed, err := t.Source.Acquire(ctx, c)
	if err != nil {
		return nil, err
	}
	tf := &tappedFeed{Feed: feed}
	tf.onRelease = func() { t.sink.SetFeed(nil) }
	t.sink.SetFeed(tf)
	return tf, nil
}

type tappedFeed struct {
	camera.Feed
	once      sync.Once
	onRelease func()
}

func (f *tappedFeed) Release() {
	f.once.Do(f.onRelease)
	f.Feed.Release()
}
