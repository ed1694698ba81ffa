// Package widget is a self-contained scanner: it acquires a camera, samples
// it at its own rate, decodes a centred detection region and reports through
// two callbacks. Misses and failures share the error callback.
package widget

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/junsooki/AirScan/internal/camera"
	"github.com/junsooki/AirScan/internal/decoder"
)

// MissMessage is reported through the error callback for every sampled frame
// without a symbol.
const MissMessage = "QR code parse error, error = NotFoundException: No MultiFormat Readers were able to detect the code."

// MinQRBox is the smallest accepted detection region side.
const MinQRBox = 50

// Options configure a render.
type Options struct {
	QRBox       int              // detection region side in pixels
	FPS         int              // frames sampled per second
	AspectRatio float64          // viewfinder width/height, 0 keeps the frame's
	Formats     []decoder.Format // symbologies to recognise
}

func (o Options) validate() error {
	if o.FPS <= 0 || o.FPS > 60 {
		return fmt.Errorf("fps must be 1-60, got %d", o.FPS)
	}
	if o.QRBox < MinQRBox {
		return fmt.Errorf("qrbox must be at least %d, got %d", MinQRBox, o.QRBox)
	}
	if o.AspectRatio < 0 {
		return fmt.Errorf("aspect ratio must not be negative, got %v", o.AspectRatio)
	}
	return nil
}

// Result carries details of a decode next to its text.
type Result struct {
	Format decoder.Format
}

type (
	DecodeFunc func(text string, res Result)
	ErrorFunc  func(message string)
)

// ErrRunning is returned by Render while a previous render is live.
var ErrRunning = errors.New("widget: scanner already running")

// Scanner renders one scan at a time.
type Scanner struct {
	source     camera.Source
	newDecoder func(formats ...decoder.Format) decoder.SymbolDecoder
	log        zerolog.Logger

	mu        sync.Mutex
	container string
	feed      camera.Feed
	cancel    context.CancelFunc
	done      chan struct{}
}

// New creates a scanner over source.
func New(source camera.Source, log zerolog.Logger) *Scanner {
	return &Scanner{
		source: source,
		newDecoder: func(formats ...decoder.Format) decoder.SymbolDecoder {
			return decoder.NewZXing(formats...)
		},
		log: log,
	}
}

// WithDecoder replaces the decoder factory.
func (s *Scanner) WithDecoder(f func(formats ...decoder.Format) decoder.SymbolDecoder) *Scanner {
	s.newDecoder = f
	return s
}

// Render acquires the environment camera and starts sampling it. It blocks
// only while the camera is being acquired. An acquisition failure is passed
// to onError as "<Name>Error: <message>" and returned.
func (s *Scanner) Render(ctx context.Context, containerID string, opts Options, onDecode DecodeFunc, onError ErrorFunc) error {
	if err := opts.validate(); err != nil {
		return err
	}
	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		cancel()
		return ErrRunning
	}
	s.done, s.cancel, s.container = done, cancel, containerID
	s.mu.Unlock()

	// Clear during acquisition aborts it.
	acqCtx, acqCancel := context.WithCancel(ctx)
	stop := context.AfterFunc(runCtx, acqCancel)
	feed, err := s.source.Acquire(acqCtx, camera.Constraints{Facing: camera.FacingEnvironment})
	stop()
	acqCancel()

	if err == nil && runCtx.Err() != nil {
		feed.Release()
		err = context.Canceled
	}
	if err != nil {
		s.reset(done)
		cancel()
		close(done)
		if ctx.Err() == nil && runCtx.Err() == nil {
			onError(ErrorName(camera.KindOf(err)) + ": " + camera.Message(err))
		}
		return err
	}

	s.mu.Lock()
	s.feed = feed
	s.mu.Unlock()

	s.log.Info().Str("container", containerID).Int("fps", opts.FPS).Int("qrbox", opts.QRBox).Msg("scanner rendered")
	dec := s.newDecoder(opts.Formats...)
	go func() {
		defer close(done)
		s.loop(runCtx, feed, dec, opts, onDecode, onError)
	}()
	return nil
}

// Done is closed once the running scan stops sampling, either because the
// feed ended or because Clear was called. It is nil when nothing is rendered.
func (s *Scanner) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

func (s *Scanner) reset(done chan struct{}) (feed camera.Feed) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != done {
		return nil
	}
	feed = s.feed
	s.cancel, s.done, s.feed = nil, nil, nil
	return feed
}

// Clear stops sampling and releases the camera. Callbacks never fire after
// Clear returns nil.
func (s *Scanner) Clear(ctx context.Context) error {
	s.mu.Lock()
	cancel, done, container := s.cancel, s.done, s.container
	s.mu.Unlock()
	if done == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if feed := s.reset(done); feed != nil {
		feed.Release()
	}
	s.log.Info().Str("container", container).Msg("scanner cleared")
	return nil
}

func (s *Scanner) loop(ctx context.Context, feed camera.Feed, dec decoder.SymbolDecoder, opts Options, onDecode DecodeFunc, onError ErrorFunc) {
	ticker := time.NewTicker(time.Second / time.Duration(opts.FPS))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		img, err := feed.CurrentFrame()
		if errors.Is(err, camera.ErrNotReady) {
			continue
		}
		if err != nil {
			if ctx.Err() == nil {
				onError("NotReadableError: " + err.Error())
			}
			return
		}

		sym, ok := dec.DecodeSymbol(Region(img, opts.QRBox, opts.AspectRatio))
		if ctx.Err() != nil {
			return
		}
		if ok {
			onDecode(sym.Text, Result{Format: sym.Format})
		} else {
			onError(MissMessage)
		}
	}
}

// Region copies the detection region out of img: a qrbox square centred in
// the largest centred viewfinder with the given aspect ratio. The square is
// shrunk to fit the viewfinder.
func Region(img *image.RGBA, qrbox int, aspect float64) *image.RGBA {
	b := img.Bounds()
	vw, vh := b.Dx(), b.Dy()
	if aspect > 0 && vw > 0 && vh > 0 {
		if float64(vw)/float64(vh) > aspect {
			vw = int(float64(vh) * aspect)
		} else {
			vh = int(float64(vw) / aspect)
		}
	}
	side := min(qrbox, vw, vh)
	x0 := b.Min.X + (b.Dx()-side)/2
	y0 := b.Min.Y + (b.Dy()-side)/2

	out := image.NewRGBA(image.Rect(0, 0, side, side))
	draw.Draw(out, out.Bounds(), img, image.Pt(x0, y0), draw.Src)
	return out
}

// ErrorName maps an acquisition failure to the name the error callback
// prefixes it with.
func ErrorName(k camera.ErrorKind) string {
	switch k {
	case camera.KindPermissionDenied:
		return "NotAllowedError"
	case camera.KindNoDevice:
		return "NotFoundError"
	case camera.KindDeviceBusy:
		return "NotReadableError"
	default:
		return "Error"
	}
}
