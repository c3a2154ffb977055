// Package transport owns the single persistent socket to the server:
// connect, heartbeat, ordered inbound delivery and best-effort sends.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/simplechannel/client/internal/config"
	"github.com/simplechannel/client/internal/core"
)

var ErrBackpressure = errors.New("backpressure")

const writeWait = 5 * time.Second

type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosed
)

type EventKind int

const (
	EventOpen EventKind = iota
	EventMessage
	EventClose
	EventError
)

// Event is delivered on a single channel in arrival order. The consumer runs
// handlers to completion one at a time, so they never race each other.
type Event struct {
	Kind     EventKind
	Envelope core.Envelope
	Err      error
	// Manual marks a close that was requested locally; the session layer
	// must not reconnect after it.
	Manual bool
}

// TokenSource resolves the current bearer credential. An empty string means
// the caller must re-authenticate before connecting.
type TokenSource func() string

// socket is one physical connection. A Conn owns at most one live socket.
type socket struct {
	ws     *websocket.Conn
	send   chan []byte
	cancel context.CancelFunc
	once   sync.Once
}

type Conn struct {
	url        string
	pingPeriod time.Duration
	sendBuffer int
	token      TokenSource
	events     chan Event

	mu     sync.Mutex
	state  State
	sock   *socket
	manual bool
}

func New(cfg *config.Config, token TokenSource) *Conn {
	return &Conn{
		url:        cfg.ServerURL,
		pingPeriod: cfg.PingPeriod,
		sendBuffer: cfg.SendBuffer,
		token:      token,
		events:     make(chan Event, 64),
		state:      StateIdle,
	}
}

// Events returns the single ordered event stream for this connection.
func (c *Conn) Events() <-chan Event { return c.events }

func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect dials a new socket, discarding any pre-existing one first. It fails
// synchronously with core.ErrNoCredential when no token is available; a dial
// failure is returned to the caller and no close event is emitted for it.
func (c *Conn) Connect(ctx context.Context) error {
	tok := c.token()
	if tok == "" {
		return core.ErrNoCredential
	}

	c.mu.Lock()
	if old := c.sock; old != nil {
		// Detach before closing so the stale read loop emits nothing.
		c.sock = nil
		old.once.Do(func() {
			old.cancel()
			_ = old.ws.Close()
		})
	}
	c.state = StateConnecting
	c.mu.Unlock()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+tok)
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, header)
	if err != nil {
		c.mu.Lock()
		c.state = StateClosed
		c.mu.Unlock()
		return err
	}

	sctx, cancel := context.WithCancel(context.Background())
	s := &socket{
		ws:     ws,
		send:   make(chan []byte, c.sendBuffer),
		cancel: cancel,
	}

	c.mu.Lock()
	c.sock = s
	c.state = StateOpen
	c.mu.Unlock()

	go c.writePump(sctx, s)
	go c.readLoop(s)

	log.Info().Str("module", "transport").Str("url", c.url).Msg("socket open")
	c.events <- Event{Kind: EventOpen}
	return nil
}

// Send marshals the envelope onto the current socket. It is a no-op with a
// reported failure when the socket is not Open.
func (c *Conn) Send(env core.Envelope) error {
	c.mu.Lock()
	s, st := c.sock, c.state
	c.mu.Unlock()
	if st != StateOpen || s == nil {
		return core.ErrNotConnected
	}

	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	select {
	case s.send <- data:
		return nil
	default:
		return ErrBackpressure
	}
}

// Close tears down the socket deliberately; the resulting close event carries
// Manual=true so no reconnect is scheduled.
func (c *Conn) Close() {
	c.mu.Lock()
	c.manual = true
	s := c.sock
	c.mu.Unlock()

	if s == nil {
		c.mu.Lock()
		c.manual = false
		c.state = StateClosed
		c.mu.Unlock()
		return
	}
	_ = s.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client disconnect"),
		time.Now().Add(writeWait))
	c.teardown(s, nil)
}

func (c *Conn) writePump(ctx context.Context, s *socket) {
	ticker := time.NewTicker(c.pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Keepalive only; prevents idle-timeout disconnects.
			if err := s.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := s.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Warn().Err(err).Str("module", "transport").Msg("heartbeat write error")
				c.teardown(s, err)
				return
			}
		case data, ok := <-s.send:
			if !ok {
				return
			}
			if err := s.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "transport").Msg("writePump set deadline")
				return
			}
			if err := s.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "transport").Msg("writePump write error")
				c.teardown(s, err)
				return
			}
		}
	}
}

func (c *Conn) readLoop(s *socket) {
	for {
		_, data, err := s.ws.ReadMessage()
		if err != nil {
			c.teardown(s, err)
			return
		}
		var env core.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Warn().Err(err).Str("module", "transport").Msg("bad envelope json, dropped")
			continue
		}
		c.emitCurrent(s, Event{Kind: EventMessage, Envelope: env})
	}
}

// emitCurrent delivers an event only if s is still the live socket.
func (c *Conn) emitCurrent(s *socket, ev Event) {
	c.mu.Lock()
	live := c.sock == s
	c.mu.Unlock()
	if live {
		c.events <- ev
	}
}

// teardown closes the socket and, when it is still the live one, transitions
// to Closed and emits exactly one close event. The heartbeat ticker dies with
// the socket context.
func (c *Conn) teardown(s *socket, cause error) {
	s.once.Do(func() {
		s.cancel()
		_ = s.ws.Close()

		c.mu.Lock()
		if c.sock != s {
			c.mu.Unlock()
			return
		}
		c.sock = nil
		c.state = StateClosed
		manual := c.manual
		c.manual = false
		c.mu.Unlock()

		if cause != nil && !websocket.IsCloseError(cause, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			c.events <- Event{Kind: EventError, Err: cause}
		}
		log.Info().Str("module", "transport").Bool("manual", manual).Msg("socket closed")
		c.events <- Event{Kind: EventClose, Manual: manual}
	})
}
