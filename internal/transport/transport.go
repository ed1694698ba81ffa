package transport

// FrameSender sends encoded camera frames.
type FrameSender interface {
	SendFrame(data []byte) error
}

// FrameReceiver receives encoded camera frames.
type FrameReceiver interface {
	OnFrame(callback func(data []byte))
}

// EventSender sends serialized scan events.
type EventSender interface {
	SendEvent(data []byte) error
}

// EventReceiver receives serialized scan events.
type EventReceiver interface {
	OnEvent(callback func(data []byte))
}

// Channel labels.
const (
	FramesLabel = "frames"
	EventsLabel = "events"
)
