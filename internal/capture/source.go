package capture

import (
	"context"
	"errors"
	"io/fs"
	"sync"

	"github.com/rs/zerolog"

	"github.com/junsooki/AirScan/internal/camera"
	"github.com/junsooki/AirScan/internal/metrics"
)

// Device is a local camera backed by a capture directory.
type Device struct {
	Name   string        `yaml:"name"`
	Facing camera.Facing `yaml:"facing"`
	Dir    string        `yaml:"dir"`
	FPS    int           `yaml:"fps"`
}

// Opener creates the capturer for a device.
type Opener func(d Device) (Capturer, error)

// Source implements camera.Source over local devices. A device can be held
// by one feed at a time.
type Source struct {
	devices []Device
	open    Opener
	log     zerolog.Logger

	mu    sync.Mutex
	inUse map[string]bool
}

// NewSource creates a source over devices. A nil opener replays directories.
func NewSource(devices []Device, open Opener, log zerolog.Logger) *Source {
	if open == nil {
		open = func(d Device) (Capturer, error) {
			fps := d.FPS
			if fps == 0 {
				fps = 30
			}
			return NewDirCapturer(d.Dir, fps)
		}
	}
	return &Source{
		devices: devices,
		open:    open,
		log:     log,
		inUse:   make(map[string]bool),
	}
}

func (s *Source) Acquire(ctx context.Context, c camera.Constraints) (camera.Feed, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d, ok := s.pick(c.Facing)
	if !ok {
		metrics.AcquisitionFailuresTotal.WithLabelValues(camera.KindNoDevice.String()).Inc()
		return nil, camera.NoDevice("Requested device not found")
	}

	s.mu.Lock()
	if s.inUse[d.Name] {
		s.mu.Unlock()
		metrics.AcquisitionFailuresTotal.WithLabelValues(camera.KindDeviceBusy.String()).Inc()
		return nil, camera.DeviceBusy("Could not start video source")
	}
	s.inUse[d.Name] = true
	s.mu.Unlock()

	capt, err := s.open(d)
	if err == nil {
		err = capt.Start()
	}
	if err != nil {
		s.free(d.Name)
		acq := classifyOpenError(err)
		metrics.AcquisitionFailuresTotal.WithLabelValues(acq.Kind.String()).Inc()
		return nil, acq
	}

	s.log.Info().Str("device", d.Name).Str("facing", string(d.Facing)).Msg("camera acquired")
	feed := camera.NewFrameFeed(func() {
		capt.Stop()
		s.free(d.Name)
		s.log.Info().Str("device", d.Name).Msg("camera released")
	})
	go pump(capt.Frames(), feed)
	return feed, nil
}

// pick prefers a device facing the requested way, else the first one.
func (s *Source) pick(f camera.Facing) (Device, bool) {
	if len(s.devices) == 0 {
		return Device{}, false
	}
	if f != camera.FacingAny {
		for _, d := range s.devices {
			if d.Facing == f {
				return d, true
			}
		}
	}
	return s.devices[0], true
}

func (s *Source) free(name string) {
	s.mu.Lock()
	delete(s.inUse, name)
	s.mu.Unlock()
}

func pump(frames <-chan *Frame, feed *camera.FrameFeed) {
	for f := range frames {
		metrics.FramesCapturedTotal.Inc()
		// No-op once released; keep draining until the capturer closes.
		feed.Push(f.Image)
	}
	feed.End()
}

func classifyOpenError(err error) *camera.AcquisitionError {
	switch {
	case errors.Is(err, fs.ErrPermission):
		return &camera.AcquisitionError{Kind: camera.KindPermissionDenied, Message: "Permission denied", Err: err}
	case errors.Is(err, fs.ErrNotExist):
		return &camera.AcquisitionError{Kind: camera.KindNoDevice, Message: "Requested device not found", Err: err}
	default:
		return &camera.AcquisitionError{Kind: camera.KindDeviceBusy, Message: "Could not start video source", Err: err}
	}
}
