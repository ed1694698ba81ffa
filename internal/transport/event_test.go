package transport

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/junsooki/AirScan/internal/decoder"
)

type captureSender struct {
	sent [][]byte
	err  error
}

func (c *captureSender) SendEvent(data []byte) error {
	c.sent = append(c.sent, data)
	return c.err
}

func TestSendScan(t *testing.T) {
	at := time.UnixMilli(1767225600123)
	s := &captureSender{}
	require.NoError(t, SendScan(s, NewScanEvent(decoder.Symbol{Text: "ABC123", Format: decoder.FormatQRCode}, at)))
	require.Len(t, s.sent, 1)
	assert.JSONEq(t, `{"text":"ABC123","format":"QR_CODE","timestamp":1767225600123}`, string(s.sent[0]))

	ev, err := ParseScan(s.sent[0])
	require.NoError(t, err)
	assert.Equal(t, "ABC123", ev.Text)

	s.err = errors.New("closed")
	assert.Error(t, SendScan(s, ev))

	_, err = ParseScan([]byte("{"))
	assert.Error(t, err)
}

func TestDataChannelTransport_Unset(t *testing.T) {
	tr := NewDataChannelTransport(nil, nil)
	assert.Error(t, tr.SendFrame([]byte{1}))
	assert.Error(t, tr.SendEvent([]byte{1}))
}
