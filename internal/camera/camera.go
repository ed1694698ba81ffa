// Package camera defines the camera capability the scanner consumes: a Source
// that grants Feeds, and the errors acquisition can end with.
package camera

import (
	"context"
	"errors"
	"image"
)

// Facing selects which way a camera points.
type Facing string

const (
	FacingAny         Facing = ""
	FacingUser        Facing = "user"
	FacingEnvironment Facing = "environment"
)

// Constraints describe the feed a caller wants.
type Constraints struct {
	// Facing is a preference, not a requirement: a source with a single
	// camera grants it regardless.
	Facing Facing
}

// Source grants camera feeds.
type Source interface {
	// Acquire blocks until the feed is granted, acquisition fails or ctx is
	// done. Failures are reported as *AcquisitionError.
	Acquire(ctx context.Context, c Constraints) (Feed, error)
}

// Feed is a live sequence of frames owned by whoever acquired it.
type Feed interface {
	// CurrentFrame returns the latest frame. It returns ErrNotReady while no
	// frame is readable yet and ErrFeedEnded once the feed stopped on its own.
	CurrentFrame() (*image.RGBA, error)
	// Release stops every track of the feed.
	Release()
}

var (
	// ErrNotReady means the feed has no readable frame yet.
	ErrNotReady = errors.New("camera: frame not ready")
	// ErrFeedEnded means the feed stopped without being released.
	ErrFeedEnded = errors.New("camera: feed ended")
)
