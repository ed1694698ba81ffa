package peer

import (
	"encoding/json"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/junsooki/AirScan/internal/transport"
)

// Camera manages the camera host side of the WebRTC connection. It answers
// offers and adopts the data channels the scanner created.
type Camera struct {
	pc        *webrtc.PeerConnection
	sig       Signaler
	transport *transport.DataChannelTransport

	mu     sync.Mutex
	peerID string // the scanner we're connected to
}

// NewCamera creates a Camera peer manager. onOpen runs once the frames
// channel is open, onDown once the connection is lost.
func NewCamera(sig Signaler, onOpen, onDown func(), log zerolog.Logger) (*Camera, error) {
	pc, err := NewPeerConnection(log, onDown)
	if err != nil {
		return nil, err
	}

	c := &Camera{
		pc:        pc,
		sig:       sig,
		transport: transport.NewDataChannelTransport(nil, nil),
	}

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		log.Info().Str("label", dc.Label()).Msg("data channel received")
		switch dc.Label() {
		case transport.FramesLabel:
			dc.OnOpen(func() {
				log.Info().Msg("frames data channel open")
				if onOpen != nil {
					onOpen()
				}
			})
			c.transport.SetFramesChannel(dc)
		case transport.EventsLabel:
			c.transport.SetEventsChannel(dc)
		}
	})

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		to := c.PeerID()
		if cand == nil || to == "" {
			return
		}
		data, err := json.Marshal(cand.ToJSON())
		if err != nil {
			log.Warn().Err(err).Msg("marshal ICE candidate")
			return
		}
		_ = sig.SendICECandidate(to, data)
	})

	return c, nil
}

// Transport returns the DataChannelTransport for sending frames and receiving scan events.
func (c *Camera) Transport() *transport.DataChannelTransport {
	return c.transport
}

// PeerID returns the scanner this camera answered.
func (c *Camera) PeerID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peerID
}

// HandleOffer processes an incoming offer from a scanner.
func (c *Camera) HandleOffer(from string, payload json.RawMessage) error {
	c.mu.Lock()
	c.peerID = from
	c.mu.Unlock()

	var offer webrtc.SessionDescription
	if err := json.Unmarshal(payload, &offer); err != nil {
		return err
	}
	if err := c.pc.SetRemoteDescription(offer); err != nil {
		return err
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return err
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return err
	}
	answerJSON, err := json.Marshal(answer)
	if err != nil {
		return err
	}
	return c.sig.SendAnswer(from, answerJSON)
}

// HandleICECandidate adds a remote ICE candidate.
func (c *Camera) HandleICECandidate(payload json.RawMessage) error {
	return addCandidate(c.pc, payload)
}

// Close shuts down the peer connection.
func (c *Camera) Close() {
	if c.pc != nil {
		c.pc.Close()
	}
}
