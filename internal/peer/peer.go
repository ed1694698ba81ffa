// Package peer negotiates the WebRTC connection between a camera host and a
// scanner, and adapts it to the camera.Source the scanner consumes.
package peer

import (
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

// ICEServers is the default ICE server configuration.
var ICEServers = []webrtc.ICEServer{
	{URLs: []string{"stun:stun.l.google.com:19302", "stun:stun1.l.google.com:19302"}},
}

// NewPeerConnection creates a configured PeerConnection. onDown, if set, runs
// once when the connection fails or closes.
func NewPeerConnection(log zerolog.Logger, onDown func()) (*webrtc.PeerConnection, error) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: ICEServers})
	if err != nil {
		return nil, err
	}
	var down sync.Once
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Info().Str("state", state.String()).Msg("peer connection state")
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			if onDown != nil {
				down.Do(onDown)
			}
		}
	})
	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		log.Debug().Str("state", state.String()).Msg("ICE connection state")
	})
	return pc, nil
}
