// Package config parses the command line of the three binaries. Each binary
// accepts -config pointing at a YAML file; flags given on the command line
// win over values from the file.
package config

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/junsooki/AirScan/internal/camera"
	"github.com/junsooki/AirScan/internal/capture"
	"github.com/junsooki/AirScan/internal/decoder"
	"github.com/junsooki/AirScan/internal/scanner"
)

// Scanner modes and frame sources.
const (
	ModeLoop     = "loop"
	ModeWidget   = "widget"
	SourceLocal  = "local"
	SourceRemote = "remote"
)

const defaultSignalingURL = "ws://localhost:8080"

// ScannerConfig holds configuration for the scanner binary.
type ScannerConfig struct {
	ConfigFile string `yaml:"-"`

	Mode   string `yaml:"mode"`
	Source string `yaml:"source"`
	Facing string `yaml:"facing"`

	Devices      []capture.Device `yaml:"devices"`
	SignalingURL string           `yaml:"signaling"`
	ScannerID    string           `yaml:"id"`
	HostID       string           `yaml:"host"`

	FPS           int           `yaml:"fps"`
	DetectWindow  time.Duration `yaml:"detectWindow"`
	KeepOnMiss    bool          `yaml:"keepOnMiss"`
	Formats       []string      `yaml:"formats"`
	ViewportWidth int           `yaml:"viewportWidth"`

	Listen   string `yaml:"listen"`
	Window   bool   `yaml:"window"`
	LogLevel string `yaml:"logLevel"`
}

// ParseScannerFlags parses flags for the scanner binary.
func ParseScannerFlags(args []string) (*ScannerConfig, error) {
	cfg := &ScannerConfig{
		Mode:          ModeLoop,
		Source:        SourceLocal,
		Facing:        string(camera.FacingEnvironment),
		SignalingURL:  defaultSignalingURL,
		FPS:           scanner.DefaultFPS,
		DetectWindow:  scanner.DefaultDetectWindow,
		Formats:       []string{string(decoder.FormatQRCode)},
		ViewportWidth: 640,
		Listen:        ":8090",
	}

	fs := flag.NewFlagSet("scanner", flag.ContinueOnError)
	fs.StringVar(&cfg.ConfigFile, "config", "", "YAML config file")
	fs.StringVar(&cfg.Mode, "mode", cfg.Mode, "Scan mode: loop or widget")
	fs.StringVar(&cfg.Source, "source", cfg.Source, "Frame source: local or remote")
	fs.StringVar(&cfg.Facing, "facing", cfg.Facing, "Preferred camera facing: user, environment or empty")
	fs.Var((*deviceList)(&cfg.Devices), "device", "Local device as name:facing:dir (repeatable)")
	fs.StringVar(&cfg.SignalingURL, "signaling", cfg.SignalingURL, "Signaling server WebSocket URL")
	fs.StringVar(&cfg.ScannerID, "id", "", "Scanner ID (auto-generated if empty)")
	fs.StringVar(&cfg.HostID, "host", "", "Camera host ID (picked by facing if empty)")
	fs.IntVar(&cfg.FPS, "fps", cfg.FPS, "Capture loop frames per second")
	fs.DurationVar(&cfg.DetectWindow, "detect-window", cfg.DetectWindow, "How long a decode keeps the detection highlight")
	fs.BoolVar(&cfg.KeepOnMiss, "keep-on-miss", false, "Keep the detection highlight for the full window on frames without a code")
	fs.Var((*csvList)(&cfg.Formats), "formats", "Comma-separated symbologies for the loop decoder")
	fs.IntVar(&cfg.ViewportWidth, "viewport", cfg.ViewportWidth, "Viewport width the widget detection box derives from")
	fs.StringVar(&cfg.Listen, "listen", cfg.Listen, "HTTP listen address (empty disables)")
	fs.BoolVar(&cfg.Window, "window", false, "Open a desktop window")
	fs.StringVar(&cfg.LogLevel, "log-level", "", "Log level (default from LOG_LEVEL, else info)")

	if err := parse(fs, args, cfg, &cfg.ConfigFile); err != nil {
		return nil, err
	}
	if cfg.ScannerID == "" {
		cfg.ScannerID = newID("scanner")
	}
	return cfg, cfg.Validate()
}

// Validate checks the scanner configuration.
func (c *ScannerConfig) Validate() error {
	var errs []error
	switch c.Mode {
	case ModeLoop, ModeWidget:
	default:
		errs = append(errs, fmt.Errorf("mode must be %s or %s, got %q", ModeLoop, ModeWidget, c.Mode))
	}
	switch c.Source {
	case SourceLocal:
		if len(c.Devices) == 0 {
			errs = append(errs, errors.New("local source needs at least one -device"))
		}
	case SourceRemote:
		if c.SignalingURL == "" {
			errs = append(errs, errors.New("remote source needs -signaling"))
		}
	default:
		errs = append(errs, fmt.Errorf("source must be %s or %s, got %q", SourceLocal, SourceRemote, c.Source))
	}
	if err := validateFacing(c.Facing); err != nil {
		errs = append(errs, err)
	}
	for _, d := range c.Devices {
		if err := validateFacing(string(d.Facing)); err != nil {
			errs = append(errs, fmt.Errorf("device %s: %w", d.Name, err))
		}
	}
	if c.FPS < 1 || c.FPS > 60 {
		errs = append(errs, fmt.Errorf("fps must be 1-60, got %d", c.FPS))
	}
	if c.DetectWindow <= 0 {
		errs = append(errs, fmt.Errorf("detect-window must be positive, got %s", c.DetectWindow))
	}
	for _, f := range c.Formats {
		if !decoder.KnownFormat(decoder.Format(f)) {
			errs = append(errs, fmt.Errorf("unknown format %q", f))
		}
	}
	if c.ViewportWidth <= 0 {
		errs = append(errs, fmt.Errorf("viewport must be positive, got %d", c.ViewportWidth))
	}
	return errors.Join(errs...)
}

// DecoderFormats returns Formats as decoder formats.
func (c *ScannerConfig) DecoderFormats() []decoder.Format {
	out := make([]decoder.Format, 0, len(c.Formats))
	for _, f := range c.Formats {
		out = append(out, decoder.Format(f))
	}
	return out
}

// CameraConfig holds configuration for the camera host binary.
type CameraConfig struct {
	ConfigFile string `yaml:"-"`

	SignalingURL string `yaml:"signaling"`
	HostID       string `yaml:"id"`
	Facing       string `yaml:"facing"`
	Dir          string `yaml:"dir"`
	FPS          int    `yaml:"fps"`
	Quality      int    `yaml:"quality"`
	LogLevel     string `yaml:"logLevel"`
}

// ParseCameraFlags parses flags for the camera binary.
func ParseCameraFlags(args []string) (*CameraConfig, error) {
	cfg := &CameraConfig{
		SignalingURL: defaultSignalingURL,
		Facing:       string(camera.FacingEnvironment),
		FPS:          15,
		Quality:      80,
	}

	fs := flag.NewFlagSet("camera", flag.ContinueOnError)
	fs.StringVar(&cfg.ConfigFile, "config", "", "YAML config file")
	fs.StringVar(&cfg.SignalingURL, "signaling", cfg.SignalingURL, "Signaling server WebSocket URL")
	fs.StringVar(&cfg.HostID, "id", "", "Host ID (auto-generated if empty)")
	fs.StringVar(&cfg.Facing, "facing", cfg.Facing, "Facing announced to scanners: user or environment")
	fs.StringVar(&cfg.Dir, "dir", "", "Directory of images to replay as camera frames (required)")
	fs.IntVar(&cfg.FPS, "fps", cfg.FPS, "Target frames per second")
	fs.IntVar(&cfg.Quality, "quality", cfg.Quality, "JPEG quality (1-100)")
	fs.StringVar(&cfg.LogLevel, "log-level", "", "Log level (default from LOG_LEVEL, else info)")

	if err := parse(fs, args, cfg, &cfg.ConfigFile); err != nil {
		return nil, err
	}
	if cfg.HostID == "" {
		cfg.HostID = newID("camera")
	}
	return cfg, cfg.Validate()
}

// Validate checks the camera configuration.
func (c *CameraConfig) Validate() error {
	var errs []error
	if c.Dir == "" {
		errs = append(errs, errors.New("-dir is required"))
	}
	if c.SignalingURL == "" {
		errs = append(errs, errors.New("-signaling is required"))
	}
	if err := validateFacing(c.Facing); err != nil {
		errs = append(errs, err)
	}
	if c.FPS < 1 || c.FPS > 60 {
		errs = append(errs, fmt.Errorf("fps must be 1-60, got %d", c.FPS))
	}
	if c.Quality < 1 || c.Quality > 100 {
		errs = append(errs, fmt.Errorf("quality must be 1-100, got %d", c.Quality))
	}
	return errors.Join(errs...)
}

// SignalingConfig holds configuration for the signaling server binary.
type SignalingConfig struct {
	ConfigFile string `yaml:"-"`

	Listen   string `yaml:"listen"`
	LogLevel string `yaml:"logLevel"`
}

// ParseSignalingFlags parses flags for the signaling binary.
func ParseSignalingFlags(args []string) (*SignalingConfig, error) {
	cfg := &SignalingConfig{Listen: ":8080"}

	fs := flag.NewFlagSet("signaling", flag.ContinueOnError)
	fs.StringVar(&cfg.ConfigFile, "config", "", "YAML config file")
	fs.StringVar(&cfg.Listen, "listen", cfg.Listen, "HTTP listen address")
	fs.StringVar(&cfg.LogLevel, "log-level", "", "Log level (default from LOG_LEVEL, else info)")

	if err := parse(fs, args, cfg, &cfg.ConfigFile); err != nil {
		return nil, err
	}
	if cfg.Listen == "" {
		return nil, errors.New("-listen is required")
	}
	return cfg, nil
}

// parse applies defaults, then the config file, then the flags.
func parse(fs *flag.FlagSet, args []string, cfg any, path *string) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *path == "" {
		return nil
	}
	if err := loadFile(*path, cfg); err != nil {
		return err
	}
	// Re-apply explicit flags over the file values. Repeatable flags would
	// append twice, so they are reset first.
	fs.Visit(func(f *flag.Flag) {
		if r, ok := f.Value.(interface{ reset() }); ok {
			r.reset()
		}
	})
	return fs.Parse(args)
}

func loadFile(path string, cfg any) error {
	path = filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func validateFacing(f string) error {
	switch camera.Facing(f) {
	case camera.FacingAny, camera.FacingUser, camera.FacingEnvironment:
		return nil
	}
	return fmt.Errorf("facing must be %s or %s, got %q", camera.FacingUser, camera.FacingEnvironment, f)
}

func newID(prefix string) string {
	return prefix + "-" + uuid.NewString()[:8]
}

// deviceList is a repeatable name:facing:dir flag.
type deviceList []capture.Device

func (l *deviceList) String() string {
	if l == nil {
		return ""
	}
	parts := make([]string, 0, len(*l))
	for _, d := range *l {
		parts = append(parts, d.Name+":"+string(d.Facing)+":"+d.Dir)
	}
	return strings.Join(parts, ",")
}

func (l *deviceList) Set(v string) error {
	d, err := ParseDevice(v)
	if err != nil {
		return err
	}
	*l = append(*l, d)
	return nil
}

func (l *deviceList) reset() { *l = nil }

// ParseDevice parses name:facing:dir[:fps].
func ParseDevice(v string) (capture.Device, error) {
	parts := strings.SplitN(v, ":", 4)
	if len(parts) < 3 || parts[0] == "" || parts[2] == "" {
		return capture.Device{}, fmt.Errorf("device %q: want name:facing:dir[:fps]", v)
	}
	d := capture.Device{Name: parts[0], Facing: camera.Facing(parts[1]), Dir: parts[2]}
	if len(parts) == 4 {
		fps, err := strconv.Atoi(parts[3])
		if err != nil {
			return capture.Device{}, fmt.Errorf("device %q: fps: %w", v, err)
		}
		d.FPS = fps
	}
	return d, nil
}

// csvList is a comma-separated string flag.
type csvList []string

func (l *csvList) String() string {
	if l == nil {
		return ""
	}
	return strings.Join(*l, ",")
}

func (l *csvList) Set(v string) error {
	*l = nil
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			*l = append(*l, p)
		}
	}
	return nil
}
