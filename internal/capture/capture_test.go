package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/junsooki/AirScan/internal/camera"
)

func writePNG(t *testing.T, dir, name string, w, h int) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.NRGBA{R: 255, A: 255})
	fh, err := os.Create(filepath.Join(dir, name))
	require.NoError(t, err)
	defer fh.Close()
	require.NoError(t, png.Encode(fh, img))
}

func TestNewDirCapturer_Validation(t *testing.T) {
	dir := t.TempDir()

	_, err := NewDirCapturer(dir, 0)
	assert.Error(t, err)
	_, err = NewDirCapturer(dir, 61)
	assert.Error(t, err)

	_, err = NewDirCapturer(dir, 10)
	assert.ErrorIs(t, err, os.ErrNotExist, "empty dir has no frames")

	_, err = NewDirCapturer(filepath.Join(dir, "missing"), 10)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestDirCapturer_ProducesFrames(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	writePNG(t, dir, "a.png", 8, 6)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip"), 0o644))

	c, err := NewDirCapturer(dir, 60)
	require.NoError(t, err)
	require.NoError(t, c.Start())
	assert.Error(t, c.Start(), "second start")

	select {
	case f := <-c.Frames():
		require.NotNil(t, f)
		assert.Equal(t, 8, f.Image.Bounds().Dx())
		assert.Equal(t, 6, f.Image.Bounds().Dy())
		assert.Equal(t, uint64(1), f.Seq)
	case <-time.After(2 * time.Second):
		t.Fatal("no frame")
	}

	c.Stop()
	c.Stop()
	for range c.Frames() {
	}
}

type fakeCapturer struct {
	frames   chan *Frame
	startErr error
	stopped  bool
}

func newFakeCapturer() *fakeCapturer { return &fakeCapturer{frames: make(chan *Frame, 1)} }

func (f *fakeCapturer) Start() error { return f.startErr }
func (f *fakeCapturer) Stop() {
	if !f.stopped {
		f.stopped = true
		close(f.frames)
	}
}
func (f *fakeCapturer) Frames() <-chan *Frame { return f.frames }

func TestSource_PrefersFacing(t *testing.T) {
	var opened []string
	src := NewSource([]Device{
		{Name: "front", Facing: camera.FacingUser},
		{Name: "back", Facing: camera.FacingEnvironment},
	}, func(d Device) (Capturer, error) {
		opened = append(opened, d.Name)
		return newFakeCapturer(), nil
	}, zerolog.Nop())

	feed, err := src.Acquire(context.Background(), camera.Constraints{Facing: camera.FacingEnvironment})
	require.NoError(t, err)
	feed.Release()

	feed, err = src.Acquire(context.Background(), camera.Constraints{})
	require.NoError(t, err)
	feed.Release()

	assert.Equal(t, []string{"back", "front"}, opened)
}

func TestSource_SingleDeviceIgnoresPreference(t *testing.T) {
	src := NewSource([]Device{{Name: "only", Facing: camera.FacingUser}}, func(Device) (Capturer, error) {
		return newFakeCapturer(), nil
	}, zerolog.Nop())

	feed, err := src.Acquire(context.Background(), camera.Constraints{Facing: camera.FacingEnvironment})
	require.NoError(t, err)
	feed.Release()
}

func TestSource_Errors(t *testing.T) {
	t.Run("no devices", func(t *testing.T) {
		src := NewSource(nil, nil, zerolog.Nop())
		_, err := src.Acquire(context.Background(), camera.Constraints{})
		assert.Equal(t, camera.KindNoDevice, camera.KindOf(err))
	})

	t.Run("busy until released", func(t *testing.T) {
		src := NewSource([]Device{{Name: "cam"}}, func(Device) (Capturer, error) {
			return newFakeCapturer(), nil
		}, zerolog.Nop())

		feed, err := src.Acquire(context.Background(), camera.Constraints{})
		require.NoError(t, err)

		_, err = src.Acquire(context.Background(), camera.Constraints{})
		assert.Equal(t, camera.KindDeviceBusy, camera.KindOf(err))

		feed.Release()
		feed, err = src.Acquire(context.Background(), camera.Constraints{})
		require.NoError(t, err)
		feed.Release()
	})

	t.Run("permission", func(t *testing.T) {
		src := NewSource([]Device{{Name: "cam"}}, func(Device) (Capturer, error) {
			return nil, fmt.Errorf("open: %w", fs.ErrPermission)
		}, zerolog.Nop())
		_, err := src.Acquire(context.Background(), camera.Constraints{})
		assert.Equal(t, camera.KindPermissionDenied, camera.KindOf(err))
		assert.Equal(t, "Permission denied", err.Error())
	})

	t.Run("start failure frees device", func(t *testing.T) {
		calls := 0
		src := NewSource([]Device{{Name: "cam"}}, func(Device) (Capturer, error) {
			calls++
			c := newFakeCapturer()
			if calls == 1 {
				c.startErr = errors.New("device in use")
			}
			return c, nil
		}, zerolog.Nop())

		_, err := src.Acquire(context.Background(), camera.Constraints{})
		assert.Equal(t, camera.KindDeviceBusy, camera.KindOf(err))

		feed, err := src.Acquire(context.Background(), camera.Constraints{})
		require.NoError(t, err)
		feed.Release()
	})

	t.Run("cancelled context", func(t *testing.T) {
		src := NewSource([]Device{{Name: "cam"}}, nil, zerolog.Nop())
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := src.Acquire(ctx, camera.Constraints{})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestSource_FeedReceivesFrames(t *testing.T) {
	fc := newFakeCapturer()
	src := NewSource([]Device{{Name: "cam"}}, func(Device) (Capturer, error) { return fc, nil }, zerolog.Nop())

	feed, err := src.Acquire(context.Background(), camera.Constraints{})
	require.NoError(t, err)

	_, err = feed.CurrentFrame()
	assert.ErrorIs(t, err, camera.ErrNotReady)

	fc.frames <- &Frame{Image: image.NewRGBA(image.Rect(0, 0, 3, 3))}
	require.Eventually(t, func() bool {
		_, err := feed.CurrentFrame()
		return err == nil
	}, time.Second, 5*time.Millisecond)

	feed.Release()
	assert.True(t, fc.stopped)
}
