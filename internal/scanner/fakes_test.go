package scanner

import (
	"context"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/junsooki/AirScan/internal/camera"
	"github.com/junsooki/AirScan/internal/decoder"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeFeed reports ErrNotReady for the first notReady reads. With endAfter
// set it ends once that many frames were read.
type fakeFeed struct {
	endAfter int32
	notReady atomic.Int32
	ended    atomic.Bool
	reads    atomic.Int32
	releases atomic.Int32
}

func (f *fakeFeed) CurrentFrame() (*image.RGBA, error) {
	n := f.reads.Add(1)
	if f.ended.Load() || (f.endAfter > 0 && n > f.endAfter) {
		return nil, camera.ErrFeedEnded
	}
	if f.notReady.Load() > 0 {
		f.notReady.Add(-1)
		return nil, camera.ErrNotReady
	}
	return image.NewRGBA(image.Rect(0, 0, 64, 48)), nil
}

func (f *fakeFeed) Release() { f.releases.Add(1) }

type fakeSource struct {
	feed  camera.Feed
	err   error
	block bool // wait for ctx before answering

	calls       atomic.Int32
	constraints camera.Constraints
}

func (s *fakeSource) Acquire(ctx context.Context, c camera.Constraints) (camera.Feed, error) {
	s.calls.Add(1)
	s.constraints = c
	if s.block {
		<-ctx.Done()
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.feed, nil
}

// scriptDecoder answers from a script of payloads; "" is a miss. Once the
// script runs out every frame misses.
type scriptDecoder struct {
	mu     sync.Mutex
	script []string
	calls  int
}

func (d *scriptDecoder) DecodeSymbol(image.Image) (decoder.Symbol, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if len(d.script) == 0 {
		return decoder.Symbol{}, false
	}
	next := d.script[0]
	d.script = d.script[1:]
	if next == "" {
		return decoder.Symbol{}, false
	}
	return decoder.Symbol{Text: next, Format: decoder.FormatQRCode}, true
}

func (d *scriptDecoder) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

type manualPacer struct {
	ch      chan time.Time
	stopped atomic.Bool
}

func newManualPacer() *manualPacer { return &manualPacer{ch: make(chan time.Time)} }

func (p *manualPacer) C() <-chan time.Time { return p.ch }
func (p *manualPacer) Stop()               { p.stopped.Store(true) }
