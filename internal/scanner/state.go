// Package scanner holds the scan session controllers: Controller drives a
// capture/decode loop over a camera feed, WidgetSession delegates both to a
// scanner widget. Both keep a State and publish it to subscribers.
package scanner

import (
	"sync"
	"time"

	"github.com/junsooki/AirScan/internal/decoder"
	"github.com/junsooki/AirScan/internal/metrics"
)

// DefaultDetectWindow is how long Detecting stays true after a decode.
const DefaultDetectWindow = 1500 * time.Millisecond

// State is the scan session state shown to the user.
type State struct {
	Active       bool           `json:"active"`
	LastResult   string         `json:"lastResult,omitempty"`
	LastFormat   decoder.Format `json:"lastFormat,omitempty"`
	Detecting    bool           `json:"detecting"`
	Error        string         `json:"error,omitempty"`
	LastScanTime time.Time      `json:"lastScanTime,omitzero"`
	Scans        uint64         `json:"scans"`
}

// session is the state shared by both controllers. Every mutation is
// rejected once the session is released.
type session struct {
	variant string
	now     func() time.Time
	window  time.Duration

	mu          sync.Mutex
	state       State
	detectUntil time.Time
	released    bool
	subs        map[chan State]struct{}
}

func newSession(variant string, now func() time.Time, window time.Duration) *session {
	if now == nil {
		now = time.Now
	}
	if window <= 0 {
		window = DefaultDetectWindow
	}
	return &session{
		variant: variant,
		now:     now,
		window:  window,
		subs:    make(map[chan State]struct{}),
	}
}

// snapshotLocked evaluates the detection window against now, so a reader
// never sees a stale Detecting flag even between loop ticks.
func (s *session) snapshotLocked(now time.Time) State {
	st := s.state
	if st.Detecting && !now.Before(s.detectUntil) {
		st.Detecting = false
	}
	return st
}

func (s *session) snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(s.now())
}

func (s *session) publishLocked() {
	snap := s.snapshotLocked(s.now())
	for ch := range s.subs {
		select {
		case ch <- snap:
		default:
			// Keep only the newest snapshot for slow readers.
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}

func (s *session) subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		ch <- s.snapshotLocked(s.now())
		close(ch)
		return ch, func() {}
	}
	s.subs[ch] = struct{}{}
	ch <- s.snapshotLocked(s.now())
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subs[ch]; ok {
			delete(s.subs, ch)
			close(ch)
		}
	}
}

// activate marks the feed live. It reports false once released.
func (s *session) activate() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return false
	}
	if !s.state.Active && s.state.Error == "" {
		s.state.Active = true
		metrics.ActiveSessions.Inc()
		s.publishLocked()
	}
	return true
}

// fail records a terminal error and deactivates the session.
func (s *session) fail(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return
	}
	s.state.Error = msg
	s.deactivateLocked()
	s.publishLocked()
}

// end deactivates the session without an error, for a feed that went away.
// It reports false once released.
func (s *session) end() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return false
	}
	if s.state.Active {
		s.deactivateLocked()
		s.publishLocked()
	}
	return true
}

func (s *session) deactivateLocked() {
	if s.state.Active {
		s.state.Active = false
		metrics.ActiveSessions.Dec()
	}
}

// found records a decode event and restarts the detection window.
func (s *session) found(sym decoder.Symbol) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return false
	}
	now := s.now()
	s.state.LastResult = sym.Text
	s.state.LastFormat = sym.Format
	s.state.LastScanTime = now
	s.state.Scans++
	s.state.Detecting = true
	s.detectUntil = now.Add(s.window)
	metrics.DecodeTotal.WithLabelValues(s.variant, "found").Inc()
	s.publishLocked()
	return true
}

// miss records a frame without a symbol. With closeWindow set the detection
// window closes at once.
func (s *session) miss(closeWindow bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return false
	}
	metrics.DecodeTotal.WithLabelValues(s.variant, "not_found").Inc()
	if closeWindow && s.state.Detecting {
		s.state.Detecting = false
		s.detectUntil = time.Time{}
		s.publishLocked()
	}
	return true
}

// expire clears Detecting once the window has passed. It reports false once
// released.
func (s *session) expire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return false
	}
	if s.state.Detecting && !s.now().Before(s.detectUntil) {
		s.state.Detecting = false
		s.publishLocked()
	}
	return true
}

// release freezes the session: it goes inactive, subscribers get the final
// state and their channels are closed. It reports whether this call did it.
func (s *session) release() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return false
	}
	s.deactivateLocked()
	s.publishLocked()
	s.released = true
	for ch := range s.subs {
		close(ch)
		delete(s.subs, ch)
	}
	return true
}

func (s *session) isReleased() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}
