package scanner

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/junsooki/AirScan/internal/camera"
	"github.com/junsooki/AirScan/internal/decoder"
	"github.com/junsooki/AirScan/internal/metrics"
)

// DefaultFPS is the loop rate when none is configured.
const DefaultFPS = 30

// FeedEndedMessage is shown when the feed stops on its own.
const FeedEndedMessage = "Camera feed ended"

// Pacer delivers the ticks the loop runs on.
type Pacer interface {
	C() <-chan time.Time
	Stop()
}

type tickerPacer struct{ t *time.Ticker }

// NewTickerPacer ticks fps times per second.
func NewTickerPacer(fps int) Pacer {
	if fps <= 0 {
		fps = DefaultFPS
	}
	return tickerPacer{t: time.NewTicker(time.Second / time.Duration(fps))}
}

func (p tickerPacer) C() <-chan time.Time { return p.t.C }
func (p tickerPacer) Stop()               { p.t.Stop() }

// Options configure a Controller. Zero values pick the defaults.
type Options struct {
	Constraints  camera.Constraints
	DetectWindow time.Duration
	// KeepOnMiss lets the detection window run out instead of closing it on
	// the first frame without a symbol.
	KeepOnMiss bool
	FPS         int
	NewPacer    func() Pacer
	Now         func() time.Time
	Logger      zerolog.Logger
	// OnFound is called from the loop goroutine after each decode.
	OnFound func(decoder.Symbol)
}

// Controller owns a camera feed and runs the capture/decode loop over it.
type Controller struct {
	*session

	source  camera.Source
	decoder decoder.SymbolDecoder
	opts    Options
	log     zerolog.Logger

	feedMu sync.Mutex
	feed   camera.Feed

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewController creates a controller. Nothing happens until Start.
func NewController(source camera.Source, dec decoder.SymbolDecoder, opts Options) *Controller {
	if opts.Constraints.Facing == camera.FacingAny {
		opts.Constraints.Facing = camera.FacingEnvironment
	}
	if opts.NewPacer == nil {
		fps := opts.FPS
		opts.NewPacer = func() Pacer { return NewTickerPacer(fps) }
	}
	return &Controller{
		session: newSession("loop", opts.Now, opts.DetectWindow),
		source:  source,
		decoder: dec,
		opts:    opts,
		log:     opts.Logger,
		done:    make(chan struct{}),
	}
}

// Start acquires the camera and runs the loop in the background. Only the
// first call has an effect.
func (c *Controller) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(ctx)
		c.cancel = cancel
		go func() {
			defer close(c.done)
			c.run(ctx)
		}()
	})
}

// Run is the blocking form of Start: it returns once the loop has exited,
// either because ctx was cancelled or the session hit a terminal error. The
// feed stays owned by the controller until Stop.
func (c *Controller) Run(ctx context.Context) {
	c.Start(ctx)
	<-c.done
}

// Done is closed when the loop has exited.
func (c *Controller) Done() <-chan struct{} { return c.done }

// Stop cancels the loop, waits for it to exit and releases the feed. It is
// safe to call without Start and more than once. It must not be called from
// the loop goroutine (OnFound).
func (c *Controller) Stop() {
	c.stopOnce.Do(func() {
		// Without a prior Start this also turns any later Start into a no-op.
		c.startOnce.Do(func() { close(c.done) })
		if c.cancel != nil {
			c.cancel()
			<-c.done
		}
		c.release()

		c.feedMu.Lock()
		feed := c.feed
		c.feed = nil
		c.feedMu.Unlock()
		if feed != nil {
			feed.Release()
		}
		c.log.Debug().Msg("scan session stopped")
	})
}

// State returns the current session state.
func (c *Controller) State() State { return c.snapshot() }

// Subscribe returns a channel carrying the state after every change, starting
// with the current one. The channel is closed on Stop or when cancel is called.
func (c *Controller) Subscribe() (<-chan State, func()) { return c.subscribe() }

func (c *Controller) run(ctx context.Context) {
	feed, err := c.source.Acquire(ctx, c.opts.Constraints)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		c.log.Warn().Err(err).Str("kind", camera.KindOf(err).String()).Msg("camera acquisition failed")
		c.fail(camera.Message(err))
		return
	}

	c.feedMu.Lock()
	if ctx.Err() != nil {
		c.feedMu.Unlock()
		feed.Release()
		return
	}
	c.feed = feed
	c.feedMu.Unlock()

	pacer := c.opts.NewPacer()
	defer pacer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-pacer.C():
			if !c.step(ctx, feed) {
				return
			}
		}
	}
}

// step runs one loop iteration. It reports false when the loop must end.
func (c *Controller) step(ctx context.Context, feed camera.Feed) bool {
	if ctx.Err() != nil || !c.expire() {
		return false
	}

	img, err := feed.CurrentFrame()
	switch {
	case errors.Is(err, camera.ErrNotReady):
		metrics.SkippedFramesTotal.Inc()
		return true
	case err != nil:
		c.log.Warn().Err(err).Msg("feed ended")
		c.fail(FeedEndedMessage)
		return false
	}

	if !c.activate() {
		return false
	}
	sym, ok := c.decoder.DecodeSymbol(img)
	if ctx.Err() != nil {
		return false
	}
	if !ok {
		return c.miss(!c.opts.KeepOnMiss)
	}
	if !c.found(sym) {
		return false
	}
	c.log.Info().Str("format", string(sym.Format)).Str("text", sym.Text).Msg("code detected")
	if c.opts.OnFound != nil {
		c.opts.OnFound(sym)
	}
	return true
}
