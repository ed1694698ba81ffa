package peer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/junsooki/AirScan/internal/camera"
	"github.com/junsooki/AirScan/internal/decoder"
	"github.com/junsooki/AirScan/internal/metrics"
	"github.com/junsooki/AirScan/internal/signaling"
	"github.com/junsooki/AirScan/internal/transport"
)

// ErrNoSession is returned by Report when no remote feed is live.
var ErrNoSession = errors.New("no remote camera session")

// RemoteSource is a camera.Source whose frames come from a camera host over
// WebRTC. The host is found through the signaling server.
type RemoteSource struct {
	signalingURL string
	scannerID    string
	hostID       string // fixed host, or empty to pick by facing
	log          zerolog.Logger

	mu      sync.Mutex
	current *Scanner
}

// NewRemoteSource creates a source. If hostID is empty Acquire picks a host
// whose facing matches the constraints.
func NewRemoteSource(signalingURL, scannerID, hostID string, log zerolog.Logger) *RemoteSource {
	return &RemoteSource{
		signalingURL: signalingURL,
		scannerID:    scannerID,
		hostID:       hostID,
		log:          log,
	}
}

var _ camera.Source = (*RemoteSource)(nil)

// signal carries what the signaling read loop learned to Acquire.
type signal struct {
	hosts    []signaling.HostInfo
	errMsg   string
	closed   bool
	opened   bool
	haveList bool
}

// Acquire registers with the signaling server, connects to a camera host and
// returns a feed of its frames. It blocks until the frames channel opens or
// ctx is done.
func (s *RemoteSource) Acquire(ctx context.Context, c camera.Constraints) (camera.Feed, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	events := make(chan signal, 16)
	notify := func(sig signal) {
		select {
		case events <- sig:
		default:
		}
	}

	var (
		peerMu  sync.Mutex
		scanner *Scanner
		feed    *camera.FrameFeed
		hostID  string
	)
	current := func() (*Scanner, *camera.FrameFeed, string) {
		peerMu.Lock()
		defer peerMu.Unlock()
		return scanner, feed, hostID
	}

	handler := signaling.Handler{
		OnRegistered: func(id string) {
			s.log.Info().Str("id", id).Msg("registered with signaling server")
		},
		OnHostsUpdated: func(hosts []signaling.HostInfo) {
			notify(signal{hosts: hosts, haveList: true})
		},
		OnAnswer: func(from string, payload json.RawMessage) {
			if sc, _, _ := current(); sc != nil {
				if err := sc.HandleAnswer(payload); err != nil {
					s.log.Warn().Err(err).Str("from", from).Msg("handle answer")
				}
			}
		},
		OnICECandidate: func(from string, payload json.RawMessage) {
			if sc, _, _ := current(); sc != nil {
				if err := sc.HandleICECandidate(payload); err != nil {
					s.log.Warn().Err(err).Str("from", from).Msg("add ICE candidate")
				}
			}
		},
		OnHostDisconnected: func(id string) {
			if _, f, h := current(); f != nil && id == h {
				s.log.Info().Str("host", id).Msg("camera host disconnected")
				f.End()
			}
		},
		OnError: func(msg string) {
			notify(signal{errMsg: msg})
		},
		OnClose: func() {
			if _, f, _ := current(); f != nil {
				f.End()
			}
			notify(signal{closed: true})
		},
	}

	client := signaling.NewClient(s.signalingURL, s.scannerID, signaling.ClientTypeScanner, handler, s.log)
	if err := client.Connect(); err != nil {
		return nil, &camera.AcquisitionError{Kind: camera.KindDeviceBusy, Message: "Could not start video source", Err: err}
	}
	fail := func(err error) (camera.Feed, error) {
		client.Close()
		if sc, _, _ := current(); sc != nil {
			sc.Close()
		}
		return nil, err
	}

	if err := client.RequestHostList(); err != nil {
		return fail(&camera.AcquisitionError{Kind: camera.KindDeviceBusy, Message: "Could not start video source", Err: err})
	}

	var target string
	for target == "" {
		select {
		case <-ctx.Done():
			return fail(ctx.Err())
		case ev := <-events:
			switch {
			case ev.closed:
				return fail(camera.DeviceBusy("Could not start video source"))
			case ev.errMsg != "":
				return fail(camera.NoDevice("Requested device not found"))
			case ev.haveList:
				h, ok := PickHost(ev.hosts, s.hostID, string(c.Facing))
				if !ok {
					return fail(camera.NoDevice("Requested device not found"))
				}
				target = h.ID
			}
		}
	}

	jpeg := decoder.NewJPEGDecoder()
	f := camera.NewFrameFeed(func() {
		sc, _, _ := current()
		if sc != nil {
			sc.Close()
		}
		client.Close()
		s.mu.Lock()
		if s.current == sc {
			s.current = nil
		}
		s.mu.Unlock()
	})

	sc, err := NewScanner(client, target, func() { notify(signal{opened: true}) }, func() {
		f.End()
		notify(signal{closed: true})
	}, s.log)
	if err != nil {
		return fail(&camera.AcquisitionError{Kind: camera.KindDeviceBusy, Message: "Could not start video source", Err: err})
	}
	peerMu.Lock()
	scanner, feed, hostID = sc, f, target
	peerMu.Unlock()

	sc.Transport().OnFrame(FrameSink(f, jpeg, s.log))
	sc.Transport().OnFramesClose(f.End)

	if err := sc.Connect(); err != nil {
		return fail(&camera.AcquisitionError{Kind: camera.KindDeviceBusy, Message: "Could not start video source", Err: err})
	}

	for {
		select {
		case <-ctx.Done():
			return fail(ctx.Err())
		case ev := <-events:
			switch {
			case ev.opened:
				s.mu.Lock()
				s.current = sc
				s.mu.Unlock()
				s.log.Info().Str("host", target).Msg("remote camera connected")
				return f, nil
			case ev.closed:
				return fail(camera.DeviceBusy("Could not start video source"))
			case ev.errMsg != "":
				return fail(camera.NoDevice("Requested device not found"))
			}
		}
	}
}

// Report sends a decoded symbol back to the camera host.
func (s *RemoteSource) Report(ev transport.ScanEvent) error {
	s.mu.Lock()
	sc := s.current
	s.mu.Unlock()
	if sc == nil {
		return ErrNoSession
	}
	if err := transport.SendScan(sc.Transport(), ev); err != nil {
		return fmt.Errorf("report scan: %w", err)
	}
	return nil
}

// PickHost chooses the camera host to connect to. A fixed id must be online;
// otherwise the first host with the wanted facing wins, then any host.
func PickHost(hosts []signaling.HostInfo, id, facing string) (signaling.HostInfo, bool) {
	if id != "" {
		for _, h := range hosts {
			if h.ID == id && h.Online {
				return h, true
			}
		}
		return signaling.HostInfo{}, false
	}
	var fallback *signaling.HostInfo
	for i, h := range hosts {
		if !h.Online {
			continue
		}
		if facing != "" && h.Facing == facing {
			return h, true
		}
		if fallback == nil {
			fallback = &hosts[i]
		}
	}
	if fallback == nil {
		return signaling.HostInfo{}, false
	}
	return *fallback, true
}

// FrameSink decodes JPEG frames into feed. Undecodable frames are dropped.
func FrameSink(feed *camera.FrameFeed, dec decoder.Decoder, log zerolog.Logger) func([]byte) {
	return func(data []byte) {
		img, err := dec.Decode(data)
		if err != nil {
			log.Debug().Err(err).Int("bytes", len(data)).Msg("drop undecodable frame")
			return
		}
		if feed.Push(img) {
			metrics.FramesReceivedTotal.Inc()
		}
	}
}
