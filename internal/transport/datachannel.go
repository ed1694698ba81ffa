package transport

import (
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
)

// DataChannelTransport carries frames and scan events over WebRTC DataChannels.
type DataChannelTransport struct {
	mu       sync.RWMutex
	framesDC *webrtc.DataChannel
	eventsDC *webrtc.DataChannel

	onFrame func(data []byte)
	onEvent func(data []byte)
	onClose func()
}

// NewDataChannelTransport wraps two DataChannels (frames + events). Either may
// be nil and set later.
func NewDataChannelTransport(framesDC, eventsDC *webrtc.DataChannel) *DataChannelTransport {
	t := &DataChannelTransport{}
	if framesDC != nil {
		t.SetFramesChannel(framesDC)
	}
	if eventsDC != nil {
		t.SetEventsChannel(eventsDC)
	}
	return t
}

func (t *DataChannelTransport) SendFrame(data []byte) error {
	t.mu.RLock()
	dc := t.framesDC
	t.mu.RUnlock()
	if dc == nil {
		return fmt.Errorf("frames data channel not set")
	}
	return dc.Send(data)
}

func (t *DataChannelTransport) SendEvent(data []byte) error {
	t.mu.RLock()
	dc := t.eventsDC
	t.mu.RUnlock()
	if dc == nil {
		return fmt.Errorf("events data channel not set")
	}
	return dc.Send(data)
}

func (t *DataChannelTransport) OnFrame(cb func(data []byte)) {
	t.mu.Lock()
	t.onFrame = cb
	t.mu.Unlock()
}

func (t *DataChannelTransport) OnEvent(cb func(data []byte)) {
	t.mu.Lock()
	t.onEvent = cb
	t.mu.Unlock()
}

// OnFramesClose is called when the frames channel closes.
func (t *DataChannelTransport) OnFramesClose(cb func()) {
	t.mu.Lock()
	t.onClose = cb
	t.mu.Unlock()
}

// SetFramesChannel sets or replaces the frames DataChannel (used when receiving negotiated channels).
func (t *DataChannelTransport) SetFramesChannel(dc *webrtc.DataChannel) {
	t.mu.Lock()
	t.framesDC = dc
	t.mu.Unlock()
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		t.mu.RLock()
		cb := t.onFrame
		t.mu.RUnlock()
		if cb != nil {
			cb(msg.Data)
		}
	})
	dc.OnClose(func() {
		t.mu.RLock()
		cb := t.onClose
		t.mu.RUnlock()
		if cb != nil {
			cb()
		}
	})
}

// SetEventsChannel sets or replaces the events DataChannel.
func (t *DataChannelTransport) SetEventsChannel(dc *webrtc.DataChannel) {
	t.mu.Lock()
	t.eventsDC = dc
	t.mu.Unlock()
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		t.mu.RLock()
		cb := t.onEvent
		t.mu.RUnlock()
		if cb != nil {
			cb(msg.Data)
		}
	})
}
