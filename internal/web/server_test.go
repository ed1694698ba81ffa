package web

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/junsooki/AirScan/internal/decoder"
	"github.com/junsooki/AirScan/internal/scanner"
	"github.com/junsooki/AirScan/internal/view"
)

type fakeSession struct {
	mu    sync.Mutex
	state scanner.State
	subs  []chan scanner.State
}

func (f *fakeSession) State() scanner.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeSession) Subscribe() (<-chan scanner.State, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan scanner.State, 8)
	ch <- f.state
	f.subs = append(f.subs, ch)
	return ch, func() {}
}

func (f *fakeSession) set(st scanner.State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = st
	for _, ch := range f.subs {
		ch <- st
	}
}

func (f *fakeSession) end() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs {
		close(ch)
	}
	f.subs = nil
}

func (f *fakeSession) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func newTestServer(t *testing.T, sess *fakeSession) *httptest.Server {
	t.Helper()
	srv := NewServer(sess, zerolog.Nop(), Options{PushInterval: 20 * time.Millisecond})
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return ts
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestServer_Health(t *testing.T) {
	ts := newTestServer(t, &fakeSession{})
	resp, body := get(t, ts.URL+"/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok\n", body)
}

func TestServer_Page(t *testing.T) {
	ts := newTestServer(t, &fakeSession{state: scanner.State{Active: true}})
	resp, body := get(t, ts.URL+"/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Contains(t, body, "Camera active")
	assert.Contains(t, body, "Scanning...")
}

func TestServer_State(t *testing.T) {
	sess := &fakeSession{state: scanner.State{
		Active: true, Detecting: true, LastResult: "ABC123", LastFormat: decoder.FormatQRCode, Scans: 2,
	}}
	ts := newTestServer(t, sess)

	resp, body := get(t, ts.URL+"/api/state")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var got StateResponse
	require.NoError(t, json.Unmarshal([]byte(body), &got))
	assert.Equal(t, "ABC123", got.State.LastResult)
	assert.Equal(t, uint64(2), got.State.Scans)
	assert.Equal(t, view.BadgeFound, got.View.Badge)
	assert.Equal(t, view.OverlayDetected, got.View.Overlay)
}

func TestServer_Metrics(t *testing.T) {
	ts := newTestServer(t, &fakeSession{})
	resp, body := get(t, ts.URL+"/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "airscan_active_sessions")
}

func TestServer_NotFound(t *testing.T) {
	ts := newTestServer(t, &fakeSession{})
	resp, _ := get(t, ts.URL+"/nope")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readModel(t *testing.T, conn *websocket.Conn) view.Model {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var m view.Model
	require.NoError(t, conn.ReadJSON(&m))
	return m
}

func TestServer_WebsocketPushesLatest(t *testing.T) {
	sess := &fakeSession{}
	ts := newTestServer(t, sess)
	conn := dialWS(t, ts)

	first := readModel(t, conn)
	assert.Equal(t, view.IndicatorInactive, first.Indicator)

	require.Eventually(t, func() bool { return sess.subscribers() == 1 }, time.Second, 5*time.Millisecond)
	sess.set(scanner.State{Active: true})
	sess.set(scanner.State{Active: true, LastResult: "one"})
	sess.set(scanner.State{Active: true, LastResult: "two"})

	// Bursts may be coalesced but the newest state always arrives.
	for {
		m := readModel(t, conn)
		if m.Result == "two" {
			break
		}
	}
}

func TestServer_WebsocketClosesWithSession(t *testing.T) {
	sess := &fakeSession{}
	ts := newTestServer(t, sess)
	conn := dialWS(t, ts)
	readModel(t, conn)

	require.Eventually(t, func() bool { return sess.subscribers() == 1 }, time.Second, 5*time.Millisecond)
	sess.end()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}
