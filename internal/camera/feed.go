package camera

import (
	"image"
	"sync"
)

// FrameFeed is a Feed fed by a producer goroutine. It keeps only the latest
// frame; readers always see the newest one.
type FrameFeed struct {
	mu       sync.Mutex
	frame    *image.RGBA
	ended    bool
	released bool

	releaseOnce sync.Once
	onRelease   func()
}

// NewFrameFeed creates an empty feed. onRelease runs once, on the first
// Release call, and should stop the producer.
func NewFrameFeed(onRelease func()) *FrameFeed {
	return &FrameFeed{onRelease: onRelease}
}

// Push replaces the current frame. It reports false once the feed was
// released or ended, telling the producer to stop.
func (f *FrameFeed) Push(img *image.RGBA) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.released || f.ended {
		return false
	}
	f.frame = img
	return true
}

// End marks the feed as stopped by its producer.
func (f *FrameFeed) End() {
	f.mu.Lock()
	f.ended = true
	f.mu.Unlock()
}

func (f *FrameFeed) CurrentFrame() (*image.RGBA, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.released || f.ended {
		return nil, ErrFeedEnded
	}
	if f.frame == nil || f.frame.Bounds().Dx() == 0 || f.frame.Bounds().Dy() == 0 {
		return nil, ErrNotReady
	}
	return f.frame, nil
}

func (f *FrameFeed) Release() {
	f.releaseOnce.Do(func() {
		f.mu.Lock()
		f.released = true
		f.frame = nil
		f.mu.Unlock()
		if f.onRelease != nil {
			f.onRelease()
		}
	})
}

// Released reports whether Release was called.
func (f *FrameFeed) Released() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.released
}
