package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/junsooki/AirScan/internal/capture"
	"github.com/junsooki/AirScan/internal/config"
	"github.com/junsooki/AirScan/internal/encoder"
	applog "github.com/junsooki/AirScan/internal/log"
	"github.com/junsooki/AirScan/internal/peer"
	"github.com/junsooki/AirScan/internal/signaling"
	"github.com/junsooki/AirScan/internal/transport"
)

// host serves one scanner at a time; a new offer replaces the old peer.
type host struct {
	sig    *signaling.Client
	frames <-chan *capture.Frame
	enc    encoder.Encoder
	log    zerolog.Logger

	mu     sync.Mutex
	cam    *peer.Camera
	cancel context.CancelFunc
}

func (h *host) handleOffer(ctx context.Context, from string, payload json.RawMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closeLocked()

	log := h.log.With().Str("scanner", from).Logger()
	log.Info().Msg("Received offer")

	streamCtx, cancel := context.WithCancel(ctx)
	var cam *peer.Camera
	cam, err := peer.NewCamera(h.sig, func() {
		go peer.StreamFrames(streamCtx, h.frames, h.enc, cam.Transport(), log)
	}, cancel, log)
	if err != nil {
		cancel()
		log.Error().Err(err).Msg("create camera peer")
		return
	}

	cam.Transport().OnEvent(func(data []byte) {
		ev, err := transport.ParseScan(data)
		if err != nil {
			log.Warn().Err(err).Msg("unmarshal scan event")
			return
		}
		log.Info().Str("code", ev.Text).Str("format", string(ev.Format)).Int64("at", ev.Timestamp).Msg("scanner decoded a code")
	})

	if err := cam.HandleOffer(from, payload); err != nil {
		cancel()
		cam.Close()
		log.Error().Err(err).Msg("handle offer")
		return
	}
	h.cam, h.cancel = cam, cancel
}

func (h *host) handleICECandidate(payload json.RawMessage) {
	h.mu.Lock()
	cam := h.cam
	h.mu.Unlock()
	if cam == nil {
		return
	}
	if err := cam.HandleICECandidate(payload); err != nil {
		h.log.Warn().Err(err).Msg("handle ICE candidate")
	}
}

func (h *host) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closeLocked()
}

func (h *host) closeLocked() {
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
	if h.cam != nil {
		h.cam.Close()
		h.cam = nil
	}
}

func main() {
	cfg, err := config.ParseCameraFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	applog.Configure(applog.Config{Level: cfg.LogLevel, Service: "airscan-camera"})
	logger := applog.WithComponent("main")
	logger.Info().
		Str("id", cfg.HostID).
		Str("signaling", cfg.SignalingURL).
		Str("dir", cfg.Dir).
		Str("facing", cfg.Facing).
		Int("fps", cfg.FPS).
		Int("quality", cfg.Quality).
		Msg("AirScan camera host starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	capturer, err := capture.NewDirCapturer(cfg.Dir, cfg.FPS)
	if err != nil {
		logger.Fatal().Err(err).Msg("capture init")
	}

	h := &host{
		frames: capturer.Frames(),
		enc:    encoder.NewJPEGEncoder(cfg.Quality),
		log:    applog.WithComponent("peer"),
	}
	h.sig = signaling.NewClient(cfg.SignalingURL, cfg.HostID, signaling.ClientTypeCamera, signaling.Handler{
		OnRegistered: func(id string) {
			logger.Info().Str("id", id).Msg("Registered with signaling server")
		},
		OnOffer: func(from string, payload json.RawMessage) {
			h.handleOffer(ctx, from, payload)
		},
		OnICECandidate: func(_ string, payload json.RawMessage) {
			h.handleICECandidate(payload)
		},
		OnError: func(msg string) {
			logger.Warn().Str("message", msg).Msg("signaling error")
		},
		OnClose: func() {
			logger.Warn().Msg("signaling connection closed")
			stop()
		},
	}, applog.WithComponent("signaling")).WithFacing(cfg.Facing)

	if err := h.sig.Connect(); err != nil {
		logger.Fatal().Err(err).Msg("signaling connect")
	}
	defer h.sig.Close()

	if err := capturer.Start(); err != nil {
		logger.Fatal().Err(err).Msg("capture start")
	}
	defer capturer.Stop()

	logger.Info().Str("id", cfg.HostID).Msg("Camera ready. Scanners can connect to this ID")

	<-ctx.Done()
	logger.Info().Msg("Shutting down")
	h.close()
}
