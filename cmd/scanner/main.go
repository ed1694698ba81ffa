package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/junsooki/AirScan/internal/camera"
	"github.com/junsooki/AirScan/internal/capture"
	"github.com/junsooki/AirScan/internal/config"
	"github.com/junsooki/AirScan/internal/decoder"
	"github.com/junsooki/AirScan/internal/display"
	applog "github.com/junsooki/AirScan/internal/log"
	"github.com/junsooki/AirScan/internal/peer"
	"github.com/junsooki/AirScan/internal/scanner"
	"github.com/junsooki/AirScan/internal/transport"
	"github.com/junsooki/AirScan/internal/view"
	"github.com/junsooki/AirScan/internal/web"
	"github.com/junsooki/AirScan/internal/widget"
)

// session is what both scan modes expose once built.
type session interface {
	web.Session
	run(ctx context.Context)
	stop()
}

type loopSession struct{ *scanner.Controller }

func (s loopSession) run(ctx context.Context) { s.Run(ctx) }
func (s loopSession) stop()                   { s.Stop() }

type widgetSession struct {
	*scanner.WidgetSession
	log zerolog.Logger
}

func (s widgetSession) run(ctx context.Context) {
	if err := s.Start(ctx); err != nil {
		return
	}
	<-ctx.Done()
}

func (s widgetSession) stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		s.log.Warn().Err(err).Msg("clear scanner widget")
	}
}

func main() {
	cfg, err := config.ParseScannerFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	applog.Configure(applog.Config{Level: cfg.LogLevel, Service: "airscan-scanner"})
	logger := applog.WithComponent("main")
	logger.Info().
		Str("id", cfg.ScannerID).
		Str("mode", cfg.Mode).
		Str("source", cfg.Source).
		Str("facing", cfg.Facing).
		Str("listen", cfg.Listen).
		Msg("AirScan scanner starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		src    camera.Source
		remote *peer.RemoteSource
	)
	switch cfg.Source {
	case config.SourceRemote:
		remote = peer.NewRemoteSource(cfg.SignalingURL, cfg.ScannerID, cfg.HostID, applog.WithComponent("peer"))
		src = remote
	default:
		src = capture.NewSource(cfg.Devices, nil, applog.WithComponent("capture"))
	}

	var win *display.Window
	if cfg.Window {
		win = display.NewWindow("AirScan")
		src = display.Tap(src, win)
	}

	onFound := func(sym decoder.Symbol) {
		if remote == nil {
			return
		}
		if err := remote.Report(transport.NewScanEvent(sym, time.Now())); err != nil && !errors.Is(err, peer.ErrNoSession) {
			logger.Warn().Err(err).Msg("report scan to camera host")
		}
	}

	sess := newSession(cfg, src, onFound)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sess.run(gctx)
		return nil
	})
	g.Go(func() error {
		follow(gctx, sess, win, logger)
		return nil
	})
	if cfg.Listen != "" {
		srv := &http.Server{
			Addr:              cfg.Listen,
			Handler:           web.NewServer(sess, applog.WithComponent("web"), web.Options{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info().Str("addr", cfg.Listen).Msg("web server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("web server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	// Ebitengine RunGame must be on the main goroutine (macOS requirement).
	if win != nil {
		go func() {
			<-gctx.Done()
			win.Close()
		}()
		if err := win.Run(); err != nil {
			logger.Error().Err(err).Msg("display")
		}
		stop()
	}

	err = g.Wait()
	sess.stop()
	if err != nil {
		logger.Error().Err(err).Msg("scanner stopped with error")
		os.Exit(1)
	}
	logger.Info().Msg("Shutting down")
}

func newSession(cfg *config.ScannerConfig, src camera.Source, onFound func(decoder.Symbol)) session {
	if cfg.Mode == config.ModeWidget {
		log := applog.WithComponent("widget")
		w := widget.New(src, log)
		return widgetSession{
			WidgetSession: scanner.NewWidgetSession(w, scanner.WidgetSessionOptions{
				ViewportWidth: cfg.ViewportWidth,
				DetectWindow:  cfg.DetectWindow,
				Logger:        log,
				OnFound:       onFound,
			}),
			log: log,
		}
	}
	return loopSession{scanner.NewController(src, decoder.NewZXing(cfg.DecoderFormats()...), scanner.Options{
		Constraints:  camera.Constraints{Facing: camera.Facing(cfg.Facing)},
		DetectWindow: cfg.DetectWindow,
		KeepOnMiss:   cfg.KeepOnMiss,
		FPS:          cfg.FPS,
		Logger:       applog.WithComponent("scanner"),
		OnFound:      onFound,
	})}
}

// follow logs state changes and keeps the window overlay current.
func follow(ctx context.Context, sess web.Session, win *display.Window, log zerolog.Logger) {
	updates, cancel := sess.Subscribe()
	defer cancel()

	var last scanner.State
	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-updates:
			if !ok {
				return
			}
			if st.Active != last.Active {
				log.Info().Bool("active", st.Active).Msg(view.Build(st, time.Now()).Indicator)
			}
			if st.Error != "" && st.Error != last.Error {
				log.Error().Str("error", st.Error).Msg("scan session failed")
			}
			if st.Scans != last.Scans {
				log.Info().Str("code", st.LastResult).Str("format", string(st.LastFormat)).Msg("code detected")
			}
			last = st
			if win != nil {
				win.SetModel(view.Build(st, time.Now()))
			}
		}
	}
}
