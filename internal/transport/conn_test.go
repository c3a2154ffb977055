package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simplechannel/client/internal/config"
	"github.com/simplechannel/client/internal/core"
)

type wsServer struct {
	srv     *httptest.Server
	conns   chan *websocket.Conn
	headers chan http.Header
}

func newWSServer(t *testing.T) *wsServer {
	t.Helper()
	up := websocket.Upgrader{}
	s := &wsServer{
		conns:   make(chan *websocket.Conn, 4),
		headers: make(chan http.Header, 4),
	}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.headers <- r.Header.Clone()
		ws, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.conns <- ws
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *wsServer) url() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func (s *wsServer) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case ws := <-s.conns:
		t.Cleanup(func() { _ = ws.Close() })
		return ws
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server-side connection")
	}
	return nil
}

func newTestConn(url, token string) *Conn {
	cfg := &config.Config{
		ServerURL:  url,
		PingPeriod: time.Minute,
		SendBuffer: 8,
	}
	return New(cfg, func() string { return token })
}

func nextEvent(t *testing.T, c *Conn) Event {
	t.Helper()
	select {
	case ev := <-c.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for transport event")
	}
	return Event{}
}

// nextClose drains until the close event, tolerating a preceding error event.
func nextClose(t *testing.T, c *Conn) Event {
	t.Helper()
	for i := 0; i < 4; i++ {
		ev := nextEvent(t, c)
		if ev.Kind == EventClose {
			return ev
		}
		require.Equal(t, EventError, ev.Kind, "only error events may precede the close")
	}
	t.Fatal("no close event delivered")
	return Event{}
}

func TestConnectWithoutCredential(t *testing.T) {
	c := newTestConn("ws://localhost:0", "")
	assert.ErrorIs(t, c.Connect(context.Background()), core.ErrNoCredential)
}

func TestSendBeforeConnect(t *testing.T) {
	c := newTestConn("ws://localhost:0", "tok")
	err := c.Send(core.Envelope{Type: core.TypeChatMessage})
	assert.ErrorIs(t, err, core.ErrNotConnected)
}

func TestDialFailureReturnsErrorWithoutEvents(t *testing.T) {
	s := newWSServer(t)
	url := s.url()
	s.srv.Close()

	c := newTestConn(url, "tok")
	require.Error(t, c.Connect(context.Background()))
	assert.Equal(t, StateClosed, c.State())
	select {
	case ev := <-c.Events():
		t.Fatalf("unexpected event after dial failure: %+v", ev)
	default:
	}
}

func TestConnectSendsBearerAndDeliversMessages(t *testing.T) {
	s := newWSServer(t)
	c := newTestConn(s.url(), "tok-abc")

	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, EventOpen, nextEvent(t, c).Kind)
	assert.Equal(t, StateOpen, c.State())

	hdr := <-s.headers
	assert.Equal(t, "Bearer tok-abc", hdr.Get("Authorization"))

	ws := s.accept(t)
	require.NoError(t, ws.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"system_message","payload":{"message":"hi"}}`)))

	ev := nextEvent(t, c)
	require.Equal(t, EventMessage, ev.Kind)
	assert.Equal(t, core.TypeSystemMessage, ev.Envelope.Type)

	c.Close()
}

func TestMalformedJSONDropped(t *testing.T) {
	s := newWSServer(t)
	c := newTestConn(s.url(), "tok")
	require.NoError(t, c.Connect(context.Background()))
	require.Equal(t, EventOpen, nextEvent(t, c).Kind)

	ws := s.accept(t)
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"user_list_update"}`)))

	ev := nextEvent(t, c)
	require.Equal(t, EventMessage, ev.Kind, "bad frame must be skipped, not fatal")
	assert.Equal(t, core.TypeUserListUpdate, ev.Envelope.Type)

	c.Close()
}

func TestSendReachesServer(t *testing.T) {
	s := newWSServer(t)
	c := newTestConn(s.url(), "tok")
	require.NoError(t, c.Connect(context.Background()))
	require.Equal(t, EventOpen, nextEvent(t, c).Kind)
	ws := s.accept(t)

	env, err := core.NewEnvelope(core.TypeChatMessage, core.ChatMessage{Message: "hello", ClientMsgID: "m1"})
	require.NoError(t, err)
	require.NoError(t, c.Send(env))

	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"chat_message"`)
	assert.Contains(t, string(data), `"m1"`)

	c.Close()
}

func TestManualCloseEmitsManualCloseEvent(t *testing.T) {
	s := newWSServer(t)
	c := newTestConn(s.url(), "tok")
	require.NoError(t, c.Connect(context.Background()))
	require.Equal(t, EventOpen, nextEvent(t, c).Kind)
	s.accept(t)

	c.Close()

	ev := nextClose(t, c)
	assert.True(t, ev.Manual)
	assert.Equal(t, StateClosed, c.State())
	assert.ErrorIs(t, c.Send(core.Envelope{Type: core.TypeChatMessage}), core.ErrNotConnected)
}

func TestServerCloseIsNotManual(t *testing.T) {
	s := newWSServer(t)
	c := newTestConn(s.url(), "tok")
	require.NoError(t, c.Connect(context.Background()))
	require.Equal(t, EventOpen, nextEvent(t, c).Kind)
	ws := s.accept(t)

	require.NoError(t, ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "restarting"),
		time.Now().Add(time.Second)))
	_ = ws.Close()

	ev := nextClose(t, c)
	assert.False(t, ev.Manual, "server-initiated close must trigger reconnect logic")
}

func TestReconnectDetachesStaleSocket(t *testing.T) {
	s := newWSServer(t)
	c := newTestConn(s.url(), "tok")

	require.NoError(t, c.Connect(context.Background()))
	require.Equal(t, EventOpen, nextEvent(t, c).Kind)
	first := s.accept(t)

	require.NoError(t, c.Connect(context.Background()))
	require.Equal(t, EventOpen, nextEvent(t, c).Kind, "replacement dial emits a fresh open, no close for the old socket")
	second := s.accept(t)

	// The stale server side can still write; nothing may surface from it.
	_ = first.WriteMessage(websocket.TextMessage, []byte(`{"type":"system_message"}`))
	require.NoError(t, second.WriteMessage(websocket.TextMessage, []byte(`{"type":"channel_list_update"}`)))

	ev := nextEvent(t, c)
	require.Equal(t, EventMessage, ev.Kind)
	assert.Equal(t, core.TypeChannelListUpdate, ev.Envelope.Type,
		"only the live socket may deliver messages")

	c.Close()
}

func TestBackpressure(t *testing.T) {
	s := newWSServer(t)
	cfg := &config.Config{ServerURL: s.url(), PingPeriod: time.Minute, SendBuffer: 1}
	c := New(cfg, func() string { return "tok" })
	require.NoError(t, c.Connect(context.Background()))
	require.Equal(t, EventOpen, nextEvent(t, c).Kind)
	s.accept(t)

	// The server never reads. Large frames fill the socket buffers, block the
	// write pump, and further sends must fail fast instead of blocking.
	payload := []byte(`"` + strings.Repeat("x", 1<<20) + `"`)
	var saw bool
	for i := 0; i < 20; i++ {
		if err := c.Send(core.Envelope{Type: core.TypeChatMessage, Payload: payload}); err != nil {
			require.ErrorIs(t, err, ErrBackpressure)
			saw = true
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	assert.True(t, saw, "expected a backpressure failure with a full send buffer")

	c.Close()
}
