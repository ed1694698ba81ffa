package peer

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/junsooki/AirScan/internal/capture"
	"github.com/junsooki/AirScan/internal/encoder"
	"github.com/junsooki/AirScan/internal/metrics"
	"github.com/junsooki/AirScan/internal/transport"
)

// StreamFrames encodes captured frames and sends them until frames closes or
// ctx is done. Send failures drop the frame; the frames channel is lossy
// anyway.
func StreamFrames(ctx context.Context, frames <-chan *capture.Frame, enc encoder.Encoder, t transport.FrameSender, log zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			data, err := enc.Encode(frame.Image)
			if err != nil {
				log.Warn().Err(err).Uint64("seq", frame.Seq).Msg("encode frame")
				continue
			}
			if err := t.SendFrame(data); err != nil {
				log.Debug().Err(err).Uint64("seq", frame.Seq).Msg("send frame")
				continue
			}
			metrics.FramesSentTotal.Inc()
		}
	}
}
