package widget

import (
	"context"
	"image"
	"image/color"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/junsooki/AirScan/internal/camera"
	"github.com/junsooki/AirScan/internal/decoder"
)

type stubFeed struct {
	img      *image.RGBA
	err      error
	releases atomic.Int32
}

func (f *stubFeed) CurrentFrame() (*image.RGBA, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.img == nil {
		return nil, camera.ErrNotReady
	}
	return f.img, nil
}
func (f *stubFeed) Release() { f.releases.Add(1) }

type stubSource struct {
	feed  camera.Feed
	err   error
	block bool
	calls atomic.Int32
}

func (s *stubSource) Acquire(ctx context.Context, _ camera.Constraints) (camera.Feed, error) {
	s.calls.Add(1)
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.feed, s.err
}

// sizeDecoder reports the size of the region it was given and finds a symbol
// on every second call.
type sizeDecoder struct {
	mu      sync.Mutex
	calls   int
	size    image.Point
	formats []decoder.Format
}

func (d *sizeDecoder) DecodeSymbol(img image.Image) (decoder.Symbol, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	d.size = img.Bounds().Size()
	if d.calls%2 == 0 {
		return decoder.Symbol{Text: "HIT", Format: decoder.FormatCode39}, true
	}
	return decoder.Symbol{}, false
}

type recorder struct {
	mu      sync.Mutex
	decodes []string
	errs    []string
}

func (r *recorder) onDecode(text string, res Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decodes = append(r.decodes, text+"/"+string(res.Format))
}

func (r *recorder) onError(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, msg)
}

func (r *recorder) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.decodes), len(r.errs)
}

var testOpts = Options{QRBox: 100, FPS: 60, AspectRatio: 1, Formats: []decoder.Format{decoder.FormatQRCode, decoder.FormatCode39}}

func TestOptions_Validate(t *testing.T) {
	assert.NoError(t, testOpts.validate())
	bad := []Options{
		{QRBox: 100, FPS: 0},
		{QRBox: 100, FPS: 61},
		{QRBox: 10, FPS: 10},
		{QRBox: 100, FPS: 10, AspectRatio: -1},
	}
	for _, o := range bad {
		assert.Error(t, o.validate(), "%+v", o)
	}
}

func TestScanner_RenderReportsDecodesAndMisses(t *testing.T) {
	defer goleak.VerifyNone(t)

	feed := &stubFeed{img: image.NewRGBA(image.Rect(0, 0, 640, 480))}
	dec := &sizeDecoder{}
	s := New(&stubSource{feed: feed}, zerolog.Nop()).WithDecoder(func(formats ...decoder.Format) decoder.SymbolDecoder {
		dec.formats = formats
		return dec
	})
	rec := &recorder{}

	require.NoError(t, s.Render(context.Background(), "reader", testOpts, rec.onDecode, rec.onError))
	assert.ErrorIs(t, s.Render(context.Background(), "reader", testOpts, rec.onDecode, rec.onError), ErrRunning)

	require.Eventually(t, func() bool {
		d, e := rec.counts()
		return d >= 1 && e >= 1
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, s.Clear(context.Background()))
	d, e := rec.counts()
	time.Sleep(50 * time.Millisecond)
	d2, e2 := rec.counts()
	assert.Equal(t, d, d2, "no callbacks after Clear")
	assert.Equal(t, e, e2)

	rec.mu.Lock()
	assert.Equal(t, "HIT/"+string(decoder.FormatCode39), rec.decodes[0])
	assert.Equal(t, MissMessage, rec.errs[0])
	rec.mu.Unlock()

	dec.mu.Lock()
	assert.Equal(t, image.Pt(100, 100), dec.size)
	assert.Equal(t, testOpts.Formats, dec.formats)
	dec.mu.Unlock()

	assert.Equal(t, int32(1), feed.releases.Load())
	require.NoError(t, s.Clear(context.Background()))
	assert.Equal(t, int32(1), feed.releases.Load())
}

func TestScanner_AcquisitionFailureGoesToErrorCallback(t *testing.T) {
	tests := []struct {
		err  *camera.AcquisitionError
		want string
	}{
		{camera.NoDevice("no camera"), "NotFoundError: no camera"},
		{camera.PermissionDenied("Permission denied"), "NotAllowedError: Permission denied"},
		{camera.DeviceBusy("Could not start video source"), "NotReadableError: Could not start video source"},
	}
	for _, tt := range tests {
		rec := &recorder{}
		s := New(&stubSource{err: tt.err}, zerolog.Nop())
		err := s.Render(context.Background(), "reader", testOpts, rec.onDecode, rec.onError)
		require.Error(t, err)
		assert.Equal(t, []string{tt.want}, rec.errs)

		// The scanner can render again after a failure.
		assert.NotErrorIs(t, s.Render(context.Background(), "reader", testOpts, rec.onDecode, rec.onError), ErrRunning)
	}
}

func TestScanner_ClearDuringAcquisition(t *testing.T) {
	defer goleak.VerifyNone(t)

	src := &stubSource{block: true}
	s := New(src, zerolog.Nop())
	rec := &recorder{}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Render(context.Background(), "reader", testOpts, rec.onDecode, rec.onError)
	}()
	require.Eventually(t, func() bool { return src.calls.Load() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, s.Clear(context.Background()))
	assert.Error(t, <-errCh)
	_, e := rec.counts()
	assert.Zero(t, e, "an aborted render is not reported")
}

func TestScanner_NotReadyFramesAreSkipped(t *testing.T) {
	defer goleak.VerifyNone(t)

	dec := &sizeDecoder{}
	s := New(&stubSource{feed: &stubFeed{}}, zerolog.Nop()).WithDecoder(func(...decoder.Format) decoder.SymbolDecoder { return dec })
	rec := &recorder{}
	require.NoError(t, s.Render(context.Background(), "reader", testOpts, rec.onDecode, rec.onError))
	time.Sleep(60 * time.Millisecond)
	require.NoError(t, s.Clear(context.Background()))

	dec.mu.Lock()
	defer dec.mu.Unlock()
	assert.Zero(t, dec.calls)
}

func TestScanner_DoneClosesWhenFeedEnds(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := New(&stubSource{feed: &stubFeed{err: camera.ErrFeedEnded}}, zerolog.Nop()).
		WithDecoder(func(...decoder.Format) decoder.SymbolDecoder { return &sizeDecoder{} })
	assert.Nil(t, s.Done())

	rec := &recorder{}
	require.NoError(t, s.Render(context.Background(), "reader", testOpts, rec.onDecode, rec.onError))
	done := s.Done()
	require.NotNil(t, done)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("done never closed")
	}
	rec.mu.Lock()
	require.Len(t, rec.errs, 1)
	assert.Contains(t, rec.errs[0], "NotReadableError")
	rec.mu.Unlock()

	require.NoError(t, s.Clear(context.Background()))
	assert.Nil(t, s.Done())
}

func TestRegion(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 640, 480))
	img.Set(320, 240, color.RGBA{R: 255, A: 255})

	r := Region(img, 100, 0)
	assert.Equal(t, image.Rect(0, 0, 100, 100), r.Bounds())
	assert.Equal(t, color.RGBA{R: 255, A: 255}, r.RGBAAt(50, 50), "region is centred")

	// Shrinks to the viewfinder.
	assert.Equal(t, image.Rect(0, 0, 480, 480), Region(img, 1000, 0).Bounds())
	assert.Equal(t, image.Rect(0, 0, 240, 240), Region(img, 1000, 0.5).Bounds())
}

func TestErrorName(t *testing.T) {
	assert.Equal(t, "NotFoundError", ErrorName(camera.KindNoDevice))
	assert.Equal(t, "Error", ErrorName(camera.KindUnknown))
}
