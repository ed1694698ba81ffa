package peer

import (
	"encoding/json"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/junsooki/AirScan/internal/signaling"
	"github.com/junsooki/AirScan/internal/transport"
)

// Signaler is the part of the signaling client a peer needs.
type Signaler interface {
	SendOffer(target string, payload json.RawMessage) error
	SendAnswer(target string, payload json.RawMessage) error
	SendICECandidate(target string, payload json.RawMessage) error
}

var _ Signaler = (*signaling.Client)(nil)

// Scanner manages the scanner side of the WebRTC connection. It offers, and
// creates both data channels so they are part of the offer.
type Scanner struct {
	pc        *webrtc.PeerConnection
	sig       Signaler
	transport *transport.DataChannelTransport
	hostID    string
}

// NewScanner creates a Scanner peer manager. onOpen runs once the frames
// channel is open, onDown once the connection is lost.
func NewScanner(sig Signaler, hostID string, onOpen, onDown func(), log zerolog.Logger) (*Scanner, error) {
	pc, err := NewPeerConnection(log, onDown)
	if err != nil {
		return nil, err
	}

	// Stale frames are useless: no ordering, no retransmits.
	framesOrdered := false
	framesMaxRetransmits := uint16(0)
	framesDC, err := pc.CreateDataChannel(transport.FramesLabel, &webrtc.DataChannelInit{
		Ordered:        &framesOrdered,
		MaxRetransmits: &framesMaxRetransmits,
	})
	if err != nil {
		pc.Close()
		return nil, err
	}

	eventsOrdered := true
	eventsDC, err := pc.CreateDataChannel(transport.EventsLabel, &webrtc.DataChannelInit{
		Ordered: &eventsOrdered,
	})
	if err != nil {
		pc.Close()
		return nil, err
	}

	framesDC.OnOpen(func() {
		log.Info().Str("host", hostID).Msg("frames data channel open")
		if onOpen != nil {
			onOpen()
		}
	})

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		data, err := json.Marshal(c.ToJSON())
		if err != nil {
			log.Warn().Err(err).Msg("marshal ICE candidate")
			return
		}
		_ = sig.SendICECandidate(hostID, data)
	})

	return &Scanner{
		pc:        pc,
		sig:       sig,
		transport: transport.NewDataChannelTransport(framesDC, eventsDC),
		hostID:    hostID,
	}, nil
}

// Transport returns the DataChannelTransport.
func (s *Scanner) Transport() *transport.DataChannelTransport {
	return s.transport
}

// Connect initiates the WebRTC connection by creating and sending an offer.
func (s *Scanner) Connect() error {
	offer, err := s.pc.CreateOffer(nil)
	if err != nil {
		return err
	}
	if err := s.pc.SetLocalDescription(offer); err != nil {
		return err
	}
	offerJSON, err := json.Marshal(offer)
	if err != nil {
		return err
	}
	return s.sig.SendOffer(s.hostID, offerJSON)
}

// HandleAnswer processes an incoming SDP answer.
func (s *Scanner) HandleAnswer(payload json.RawMessage) error {
	var answer webrtc.SessionDescription
	if err := json.Unmarshal(payload, &answer); err != nil {
		return err
	}
	return s.pc.SetRemoteDescription(answer)
}

// HandleICECandidate adds a remote ICE candidate.
func (s *Scanner) HandleICECandidate(payload json.RawMessage) error {
	return addCandidate(s.pc, payload)
}

// Close shuts down the peer connection.
func (s *Scanner) Close() {
	if s.pc != nil {
		s.pc.Close()
	}
}

func addCandidate(pc *webrtc.PeerConnection, payload json.RawMessage) error {
	var candidate webrtc.ICECandidateInit
	if err := json.Unmarshal(payload, &candidate); err != nil {
		return err
	}
	return pc.AddICECandidate(candidate)
}
