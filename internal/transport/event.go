package transport

import (
	"encoding/json"
	"time"

	"github.com/junsooki/AirScan/internal/decoder"
)

// ScanEvent is the wire format of a decode reported back to the camera host.
type ScanEvent struct {
	Text      string         `json:"text"`
	Format    decoder.Format `json:"format"`
	Timestamp int64          `json:"timestamp"` // unix millis
}

// NewScanEvent stamps sym with at.
func NewScanEvent(sym decoder.Symbol, at time.Time) ScanEvent {
	return ScanEvent{Text: sym.Text, Format: sym.Format, Timestamp: at.UnixMilli()}
}

// SendScan marshals and sends a scan event.
func SendScan(s EventSender, ev ScanEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return s.SendEvent(data)
}

// ParseScan decodes a scan event.
func ParseScan(data []byte) (ScanEvent, error) {
	var ev ScanEvent
	err := json.Unmarshal(data, &ev)
	return ev, err
}
