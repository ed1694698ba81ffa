package scanner

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/junsooki/AirScan/internal/camera"
	"github.com/junsooki/AirScan/internal/decoder"
	"github.com/junsooki/AirScan/internal/widget"
)

// Widget is the delegated scanner a WidgetSession drives.
type Widget interface {
	Render(ctx context.Context, containerID string, opts widget.Options, onDecode widget.DecodeFunc, onError widget.ErrorFunc) error
	Clear(ctx context.Context) error
}

// doneNotifier is implemented by widgets that report when sampling stops on
// its own.
type doneNotifier interface {
	Done() <-chan struct{}
}

// ErrorClass tells apart the messages of the widget error callback.
type ErrorClass int

const (
	// ClassMiss covers routine per-frame notifications; they are dropped.
	ClassMiss ErrorClass = iota
	// ClassFatal covers camera failures; they are shown to the user.
	ClassFatal
)

// FatalSignature marks a widget error message as a camera failure. It is the
// only signature known to be fatal; everything else is treated as a miss.
const FatalSignature = "NotFoundError"

// Classify sorts a widget error message into its class.
func Classify(msg string) ErrorClass {
	if strings.Contains(msg, FatalSignature) {
		return ClassFatal
	}
	return ClassMiss
}

// Widget defaults.
const (
	WidgetFPS         = 10
	WidgetAspectRatio = 1.0
	MinQRBox          = 150
	MaxQRBox          = 400
)

// WidgetFormats are the symbologies a widget session recognises.
var WidgetFormats = []decoder.Format{
	decoder.FormatQRCode,
	decoder.FormatEAN13,
	decoder.FormatCode128,
	decoder.FormatCode39,
}

// QRBoxFor derives the detection region side from the viewport width: 70% of
// it, clamped to [MinQRBox, MaxQRBox].
func QRBoxFor(viewportWidth int) int {
	return max(MinQRBox, min(MaxQRBox, viewportWidth*7/10))
}

// WidgetOptions returns the render options for a viewport width.
func WidgetOptions(viewportWidth int) widget.Options {
	return widget.Options{
		QRBox:       QRBoxFor(viewportWidth),
		FPS:         WidgetFPS,
		AspectRatio: WidgetAspectRatio,
		Formats:     append([]decoder.Format(nil), WidgetFormats...),
	}
}

// WidgetSessionOptions configure a WidgetSession.
type WidgetSessionOptions struct {
	ContainerID   string
	ViewportWidth int
	DetectWindow  time.Duration
	Now           func() time.Time
	Logger        zerolog.Logger
	OnFound       func(decoder.Symbol)
}

// WidgetSession keeps scan state for a delegated widget.
type WidgetSession struct {
	*session

	w    Widget
	opts WidgetSessionOptions
	log  zerolog.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// expiryInterval is how often a widget session re-checks the detection
// window, since the widget has no callback for it.
const expiryInterval = 50 * time.Millisecond

// NewWidgetSession creates a session driving w.
func NewWidgetSession(w Widget, opts WidgetSessionOptions) *WidgetSession {
	if opts.ContainerID == "" {
		opts.ContainerID = "reader"
	}
	return &WidgetSession{
		session: newSession("widget", opts.Now, opts.DetectWindow),
		w:       w,
		opts:    opts,
		log:     opts.Logger,
		stopCh:  make(chan struct{}),
	}
}

// Start renders the widget. A failed render leaves the session inactive with
// the failure as its error.
func (s *WidgetSession) Start(ctx context.Context) error {
	err := s.w.Render(ctx, s.opts.ContainerID, WidgetOptions(s.opts.ViewportWidth), s.onDecode, s.onError)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		s.log.Warn().Err(err).Msg("scanner widget failed to start")
		s.mu.Lock()
		surfaced := s.state.Error != ""
		s.mu.Unlock()
		if !surfaced {
			s.fail(camera.Message(err))
		}
		return err
	}
	if !s.activate() {
		return nil
	}
	var ended <-chan struct{}
	if d, ok := s.w.(doneNotifier); ok {
		ended = d.Done()
	}
	s.wg.Add(1)
	go s.watch(ended)
	return nil
}

func (s *WidgetSession) watch(ended <-chan struct{}) {
	defer s.wg.Done()
	ticker := time.NewTicker(expiryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ended:
			ended = nil
			if !s.end() {
				return
			}
			s.log.Warn().Msg("scanner widget stopped sampling")
		case <-ticker.C:
			if !s.expire() {
				return
			}
		}
	}
}

// Stop clears the widget and freezes the session. Safe to call twice.
func (s *WidgetSession) Stop(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		s.release()
		close(s.stopCh)
		s.wg.Wait()
		err = s.w.Clear(ctx)
	})
	return err
}

// State returns the current session state.
func (s *WidgetSession) State() State { return s.snapshot() }

// Subscribe returns a channel carrying the state after every change.
func (s *WidgetSession) Subscribe() (<-chan State, func()) { return s.subscribe() }

func (s *WidgetSession) onDecode(text string, res widget.Result) {
	sym := decoder.Symbol{Text: text, Format: res.Format}
	if !s.found(sym) {
		return
	}
	s.log.Info().Str("format", string(sym.Format)).Str("text", sym.Text).Msg("code detected")
	if s.opts.OnFound != nil {
		s.opts.OnFound(sym)
	}
}

func (s *WidgetSession) onError(msg string) {
	switch Classify(msg) {
	case ClassFatal:
		s.log.Warn().Str("message", msg).Msg("scanner widget error")
		s.fail(msg)
	default:
		s.miss(false)
	}
}
