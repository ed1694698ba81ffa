// Package view turns scan session state into what the user sees. Build is
// pure; Render writes the HTML page, and the desktop window draws the same
// Model.
package view

import (
	"time"

	"github.com/junsooki/AirScan/internal/scanner"
)

// Texts shown by every presentation.
const (
	IndicatorActive   = "Camera active"
	IndicatorInactive = "Camera inactive"
	BadgeFound        = "Code Found!"
	BadgeScanning     = "Scanning..."
	OverlayDetected   = "Code Detected!"
	PulseDetected     = "Code detected!"
	ResultHeading     = "Last detected code:"
	ErrorPrefix       = "Error: "
)

// TimeLayout formats the scan timestamp.
const TimeLayout = "15:04:05"

// Model is the view of one State at one instant.
type Model struct {
	Active    bool   `json:"active"`
	Indicator string `json:"indicator"`
	// Badge is empty while the camera is inactive.
	Badge     string `json:"badge,omitempty"`
	Detecting bool   `json:"detecting"`
	Overlay   string `json:"overlay,omitempty"`
	Pulse     string `json:"pulse,omitempty"`
	Error     string `json:"error,omitempty"`

	HasResult     bool   `json:"hasResult"`
	ResultHeading string `json:"resultHeading,omitempty"`
	Result        string `json:"result,omitempty"`
	Format        string `json:"format,omitempty"`
	ScannedAt     string `json:"scannedAt,omitempty"`
	Scans         uint64 `json:"scans"`
}

// Build derives the model from s. Detection was already evaluated when s was
// taken; now is only used to age the timestamp.
func Build(s scanner.State, now time.Time) Model {
	m := Model{
		Active:    s.Active,
		Indicator: IndicatorInactive,
		Detecting: s.Detecting,
		Scans:     s.Scans,
	}
	if s.Active {
		m.Indicator = IndicatorActive
		m.Badge = BadgeScanning
		if s.Detecting {
			m.Badge = BadgeFound
		}
	}
	if s.Detecting {
		m.Overlay = OverlayDetected
		m.Pulse = PulseDetected
	}
	if s.Error != "" {
		m.Error = ErrorPrefix + s.Error
	}
	if s.LastResult != "" {
		m.HasResult = true
		m.ResultHeading = ResultHeading
		m.Result = s.LastResult
		m.Format = string(s.LastFormat)
		if !s.LastScanTime.IsZero() {
			m.ScannedAt = formatScanTime(s.LastScanTime, now)
		}
	}
	return m
}

func formatScanTime(at, now time.Time) string {
	stamp := at.Local().Format(TimeLayout)
	if age := now.Sub(at); age >= time.Minute {
		return stamp + " (" + age.Truncate(time.Minute).String() + " ago)"
	}
	return stamp
}
