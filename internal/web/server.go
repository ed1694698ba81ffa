// Package web serves the scan state over HTTP: an HTML page, a JSON endpoint
// and a websocket that pushes every change.
package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/junsooki/AirScan/internal/metrics"
	"github.com/junsooki/AirScan/internal/scanner"
	"github.com/junsooki/AirScan/internal/view"
)

// DefaultPushInterval is the minimum gap between two websocket pushes.
const DefaultPushInterval = 100 * time.Millisecond

const writeWait = 5 * time.Second

// Session is the scan session being served.
type Session interface {
	State() scanner.State
	Subscribe() (<-chan scanner.State, func())
}

// Options configure a Server.
type Options struct {
	PushInterval time.Duration
	Now          func() time.Time
}

// Server exposes a Session over HTTP.
type Server struct {
	session  Session
	log      zerolog.Logger
	now      func() time.Time
	interval time.Duration
	upgrader websocket.Upgrader
	router   chi.Router
}

// NewServer creates the HTTP surface of session.
func NewServer(session Session, log zerolog.Logger, opts Options) *Server {
	if opts.PushInterval <= 0 {
		opts.PushInterval = DefaultPushInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Server{
		session:  session,
		log:      log,
		now:      opts.Now,
		interval: opts.PushInterval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/", s.handlePage)
	r.Get("/api/state", s.handleState)
	r.Get("/ws", s.handleWS)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", handleHealth)
	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// StateResponse is the body of GET /api/state.
type StateResponse struct {
	State scanner.State `json:"state"`
	View  view.Model    `json:"view"`
}

func (s *Server) handlePage(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := view.Render(w, view.Build(s.session.State(), s.now())); err != nil {
		s.log.Error().Err(err).Msg("render page")
	}
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	st := s.session.State()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(StateResponse{State: st, View: view.Build(st, s.now())}); err != nil {
		s.log.Warn().Err(err).Msg("write state")
	}
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

// handleWS pushes view models until the client leaves or the session ends.
// Bursts are coalesced: at most one push per interval, always the newest.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	metrics.StateSubscribers.Inc()
	defer metrics.StateSubscribers.Dec()

	updates, cancel := s.session.Subscribe()
	defer cancel()

	// The client never sends anything we need; reading detects the close.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	limiter := rate.NewLimiter(rate.Every(s.interval), 1)
	var (
		pending *scanner.State
		wait    <-chan time.Time
	)
	push := func() bool {
		m := view.Build(*pending, s.now())
		pending = nil
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(m); err != nil {
			s.log.Debug().Err(err).Msg("websocket write")
			return false
		}
		return true
	}

	for {
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case st, ok := <-updates:
			if !ok {
				if pending != nil {
					push()
				}
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"),
					time.Now().Add(writeWait))
				return
			}
			pending = &st
			if wait != nil {
				continue
			}
			if d := limiter.Reserve().Delay(); d > 0 {
				wait = time.After(d)
				continue
			}
			if !push() {
				return
			}
		case <-wait:
			wait = nil
			if pending != nil && !push() {
				return
			}
		}
	}
}
