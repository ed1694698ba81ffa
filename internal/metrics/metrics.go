// Package metrics holds the Prometheus collectors of the scanner, the camera
// host and the signaling server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FramesCapturedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "airscan_frames_captured_total",
		Help: "Frames produced by local capture devices.",
	})

	// FramesReceivedTotal counts frames arriving from a remote camera peer.
	FramesReceivedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "airscan_frames_received_total",
		Help: "Frames received from a remote camera peer.",
	})

	FramesSentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "airscan_frames_sent_total",
		Help: "Frames sent to a remote scanner.",
	})

	// DecodeTotal counts decode attempts by outcome (found, not_found).
	DecodeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "airscan_decode_total",
		Help: "Decode attempts, by outcome.",
	}, []string{"variant", "outcome"})

	// SkippedFramesTotal counts loop ticks without a readable frame.
	SkippedFramesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "airscan_skipped_frames_total",
		Help: "Loop iterations skipped because no frame was readable.",
	})

	AcquisitionFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "airscan_acquisition_failures_total",
		Help: "Camera acquisition failures, by kind.",
	}, []string{"kind"})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "airscan_active_sessions",
		Help: "Scan sessions with a live feed.",
	})

	SignalingClients = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "airscan_signaling_clients",
		Help: "Clients registered with the signaling server, by type.",
	}, []string{"type"})

	StateSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "airscan_state_subscribers",
		Help: "Websocket clients following scan state.",
	})
)
