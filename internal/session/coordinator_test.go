package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simplechannel/client/internal/config"
	"github.com/simplechannel/client/internal/core"
	"github.com/simplechannel/client/internal/dispatch"
	"github.com/simplechannel/client/internal/domain"
	"github.com/simplechannel/client/internal/ledger"
	"github.com/simplechannel/client/internal/transport"
)

type recHandler struct {
	core.LogHandler
	conn         []core.Connectivity
	authRequired []string
	composer     []bool
	authed       []domain.User
}

func (h *recHandler) OnConnectivity(c core.Connectivity)     { h.conn = append(h.conn, c) }
func (h *recHandler) OnAuthRequired(reason string)           { h.authRequired = append(h.authRequired, reason) }
func (h *recHandler) OnComposerEnabled(enabled bool)         { h.composer = append(h.composer, enabled) }
func (h *recHandler) OnAuthenticated(u domain.User)          { h.authed = append(h.authed, u) }

type fakeTransport struct {
	events     chan transport.Event
	sent       []core.Envelope
	connectErr error
	connects   int
	closes     int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{events: make(chan transport.Event, 16)}
}

func (f *fakeTransport) Connect(context.Context) error { f.connects++; return f.connectErr }
func (f *fakeTransport) Send(env core.Envelope) error  { f.sent = append(f.sent, env); return nil }
func (f *fakeTransport) Close()                        { f.closes++ }
func (f *fakeTransport) Events() <-chan transport.Event {
	return f.events
}

type fakeVoice struct{ leaves int }

func (v *fakeVoice) Leave() { v.leaves++ }

func testConfig() *config.Config {
	return &config.Config{
		ReconnectBase: time.Second,
		ReconnectCap:  30 * time.Second,
		ReconnectMax:  5,
	}
}

func newTestCoordinator(t *testing.T) (*Coordinator, *fakeTransport, *fakeVoice, *recHandler, *Credentials) {
	t.Helper()
	tr := newFakeTransport()
	voice := &fakeVoice{}
	handler := &recHandler{}
	creds := NewCredentials("tok-1")
	c := NewCoordinator(testConfig(), tr, dispatch.New(nil), voice, handler, creds, ledger.New())
	t.Cleanup(c.stopTimer)
	return c, tr, voice, handler, creds
}

func TestBackoffTable(t *testing.T) {
	base, cap := time.Second, 30*time.Second
	want := []time.Duration{
		1000 * time.Millisecond,
		2000 * time.Millisecond,
		4000 * time.Millisecond,
		8000 * time.Millisecond,
		16000 * time.Millisecond,
	}
	for attempt, d := range want {
		assert.Equal(t, d, Backoff(attempt, base, cap), "attempt %d", attempt)
	}
	assert.Equal(t, cap, Backoff(10, base, cap))
}

func TestCloseSchedulesBackoffUntilCeiling(t *testing.T) {
	c, _, voice, handler, _ := newTestCoordinator(t)

	for i := 0; i < 5; i++ {
		c.handleClose(false)
	}
	require.Len(t, handler.conn, 5)
	wantDelays := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second}
	for i, ev := range handler.conn {
		assert.Equal(t, core.ConnDisconnected, ev.State)
		assert.Equal(t, i+1, ev.Attempt)
		assert.Equal(t, 5, ev.MaxAttempts)
		assert.Equal(t, wantDelays[i], ev.RetryIn)
	}
	assert.Equal(t, 5, voice.leaves, "voice torn down on every close")

	// Attempt 6 is never scheduled; a terminal status is emitted instead.
	c.handleClose(false)
	require.Len(t, handler.conn, 6)
	assert.Equal(t, core.ConnTerminal, handler.conn[5].State)
	assert.Equal(t, 5, c.Attempts(), "terminal path never grows the attempt count")
	assert.Equal(t, 6, voice.leaves)
}

func TestAuthSuccessResetsAttempts(t *testing.T) {
	c, _, _, handler, _ := newTestCoordinator(t)

	c.handleClose(false)
	c.handleClose(false)
	require.Equal(t, 2, c.Attempts())

	env, err := core.NewEnvelope(core.TypeAuthSuccess, core.AuthSuccess{
		User: &domain.User{ID: "u1", Username: "alice"},
	})
	require.NoError(t, err)

	// Repeated auth_success after resume always resets, regardless of prior
	// attempt count.
	c.handleMessage(env)
	assert.Equal(t, 0, c.Attempts())
	c.handleMessage(env)
	assert.Equal(t, 0, c.Attempts())
	assert.Nil(t, c.timer, "pending reconnect timer cancelled")

	require.Len(t, handler.authed, 2)
	assert.Equal(t, "alice", handler.authed[0].Username)
	assert.Contains(t, handler.composer, true)
}

func TestManualCloseSuppressesReconnect(t *testing.T) {
	c, _, voice, handler, _ := newTestCoordinator(t)

	c.handleClose(true)

	assert.Equal(t, 0, c.Attempts(), "zero reconnect attempts scheduled")
	assert.Nil(t, c.timer)
	assert.Empty(t, handler.conn)
	assert.Equal(t, 1, voice.leaves)
	assert.Equal(t, []bool{false}, handler.composer)
}

func TestAuthFailureForcesReauthentication(t *testing.T) {
	c, tr, _, handler, creds := newTestCoordinator(t)

	env, err := core.NewEnvelope(core.TypeAuthFailure, core.AuthFailure{Message: "token expired"})
	require.NoError(t, err)
	c.handleMessage(env)

	assert.Empty(t, creds.Token(), "invalid token cleared")
	assert.Equal(t, 1, tr.closes)
	assert.Equal(t, []string{"token expired"}, handler.authRequired)
	assert.Empty(t, handler.conn, "no reconnect loop after a rejected token")
}

func TestResumeRequestedOnOpen(t *testing.T) {
	c, tr, _, _, _ := newTestCoordinator(t)

	c.handleEvent(transport.Event{Kind: transport.EventOpen})

	require.Len(t, tr.sent, 1)
	assert.Equal(t, core.TypeAuthRequest, tr.sent[0].Type)
	var req core.AuthRequest
	require.NoError(t, tr.sent[0].Decode(&req))
	assert.Equal(t, core.AuthActionResume, req.Action)
	assert.Equal(t, "tok-1", req.Token)
}

func TestRunRedirectsWhenNoCredential(t *testing.T) {
	tr := newFakeTransport()
	tr.connectErr = core.ErrNoCredential
	handler := &recHandler{}
	c := NewCoordinator(testConfig(), tr, dispatch.New(nil), &fakeVoice{}, handler, NewCredentials(""), ledger.New())

	err := c.Run(context.Background())
	assert.ErrorIs(t, err, core.ErrNoCredential)
	assert.Equal(t, []string{"no session token"}, handler.authRequired)
}
