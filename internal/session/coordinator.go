// Package session drives what happens across transport closed/open
// transitions: the resume handshake, exponential-backoff reconnection and
// the connectivity status surfaced to collaborators.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/simplechannel/client/internal/config"
	"github.com/simplechannel/client/internal/core"
	"github.com/simplechannel/client/internal/dispatch"
	"github.com/simplechannel/client/internal/ledger"
	"github.com/simplechannel/client/internal/transport"
)

// Transport is the connection-manager surface the coordinator drives.
type Transport interface {
	Connect(ctx context.Context) error
	Send(core.Envelope) error
	Close()
	Events() <-chan transport.Event
}

// Voice is the teardown hook invoked when the transport drops: a lost
// transport cannot sustain voice signaling.
type Voice interface {
	Leave()
}

// Credentials holds the bearer token for the process lifetime only.
type Credentials struct {
	mu    sync.Mutex
	token string
}

func NewCredentials(token string) *Credentials {
	return &Credentials{token: token}
}

func (c *Credentials) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

func (c *Credentials) Set(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Credentials) Clear() {
	c.Set("")
}

// Backoff computes the reconnect delay before the given attempt (0-based):
// base, 2*base, 4*base... capped.
func Backoff(attempt int, base, cap time.Duration) time.Duration {
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	if d > cap {
		return cap
	}
	return d
}

type Coordinator struct {
	cfg        *config.Config
	tr         Transport
	dispatcher *dispatch.Dispatcher
	voice      Voice
	handler    core.EventHandler
	creds      *Credentials
	pending    *ledger.Ledger

	attempts int
	timer    *time.Timer
	kick     chan struct{}
}

func NewCoordinator(
	cfg *config.Config,
	tr Transport,
	dispatcher *dispatch.Dispatcher,
	voice Voice,
	handler core.EventHandler,
	creds *Credentials,
	pending *ledger.Ledger,
) *Coordinator {
	return &Coordinator{
		cfg:        cfg,
		tr:         tr,
		dispatcher: dispatcher,
		voice:      voice,
		handler:    handler,
		creds:      creds,
		pending:    pending,
		kick:       make(chan struct{}, 1),
	}
}

// Attempts reports the current reconnect attempt count.
func (c *Coordinator) Attempts() int { return c.attempts }

// Run connects and then consumes transport events in arrival order until ctx
// is done. Handlers run to completion one at a time.
func (c *Coordinator) Run(ctx context.Context) error {
	if err := c.connect(ctx); err != nil && errors.Is(err, core.ErrNoCredential) {
		return err
	}

	var sweep <-chan time.Time
	if c.cfg.PendingTTL > 0 {
		t := time.NewTicker(c.cfg.PendingTTL / 2)
		defer t.Stop()
		sweep = t.C
	}

	for {
		select {
		case <-ctx.Done():
			c.stopTimer()
			c.tr.Close()
			return ctx.Err()
		case <-c.kick:
			_ = c.connect(ctx)
		case <-sweep:
			for _, pa := range c.pending.Expire(c.cfg.PendingTTL) {
				c.handler.OnActionFailed(pa.CorrelationID, pa.Placeholder, "no server confirmation")
			}
		case ev := <-c.tr.Events():
			c.handleEvent(ev)
		}
	}
}

// connect performs one connection attempt. A missing credential redirects to
// re-authentication; a dial failure schedules the next backoff attempt.
func (c *Coordinator) connect(ctx context.Context) error {
	err := c.tr.Connect(ctx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, core.ErrNoCredential):
		c.handler.OnAuthRequired("no session token")
		return err
	default:
		log.Warn().Err(err).Str("module", "session").Msg("connect failed")
		c.scheduleReconnect()
		return err
	}
}

func (c *Coordinator) handleEvent(ev transport.Event) {
	switch ev.Kind {
	case transport.EventOpen:
		c.resume()
	case transport.EventMessage:
		c.handleMessage(ev.Envelope)
	case transport.EventClose:
		c.handleClose(ev.Manual)
	case transport.EventError:
		log.Error().Err(ev.Err).Str("module", "session").Msg("transport error")
	}
}

// resume requests session resume with the stored token as soon as the socket
// opens.
func (c *Coordinator) resume() {
	env, err := core.NewEnvelope(core.TypeAuthRequest, core.AuthRequest{
		Action: core.AuthActionResume,
		Token:  c.creds.Token(),
	})
	if err != nil {
		return
	}
	if err := c.tr.Send(env); err != nil {
		log.Error().Err(err).Str("module", "session").Msg("send resume request")
		return
	}
	log.Info().Str("module", "session").Msg("resume requested")
}

func (c *Coordinator) handleMessage(env core.Envelope) {
	switch env.Type {
	case core.TypeAuthSuccess:
		var ok core.AuthSuccess
		if err := env.Decode(&ok); err != nil {
			log.Warn().Err(err).Str("module", "session").Msg("bad auth_success payload")
			return
		}
		// Attempt count resets only here, never on mere socket-open.
		c.attempts = 0
		c.stopTimer()
		if ok.Token != "" {
			c.creds.Set(ok.Token)
		}
		c.handler.OnConnectivity(core.Connectivity{State: core.ConnConnected})
		c.handler.OnComposerEnabled(true)
		if ok.User != nil {
			c.handler.OnAuthenticated(*ok.User)
		}
		log.Info().Str("module", "session").Msg("session authenticated")

	case core.TypeAuthFailure:
		var fail core.AuthFailure
		_ = env.Decode(&fail)
		// The token is invalid; retrying resume with it is pointless.
		c.creds.Clear()
		c.stopTimer()
		c.tr.Close()
		c.handler.OnAuthRequired(fail.Message)
		log.Warn().Str("module", "session").Str("reason", fail.Message).Msg("resume rejected")

	default:
		c.dispatcher.Dispatch(env)
	}
}

func (c *Coordinator) handleClose(manual bool) {
	// A dead transport cannot sustain voice signaling or sends.
	c.voice.Leave()
	c.handler.OnComposerEnabled(false)

	if manual {
		log.Info().Str("module", "session").Msg("manual disconnect, not reconnecting")
		return
	}
	c.scheduleReconnect()
}

// scheduleReconnect arms a single backoff timer; at most one connection
// attempt is ever in flight.
func (c *Coordinator) scheduleReconnect() {
	if c.attempts >= c.cfg.ReconnectMax {
		c.handler.OnConnectivity(core.Connectivity{
			State:       core.ConnTerminal,
			Attempt:     c.attempts,
			MaxAttempts: c.cfg.ReconnectMax,
		})
		log.Error().Str("module", "session").Int("attempts", c.attempts).Msg("cannot connect, giving up")
		return
	}

	delay := Backoff(c.attempts, c.cfg.ReconnectBase, c.cfg.ReconnectCap)
	c.attempts++
	c.handler.OnConnectivity(core.Connectivity{
		State:       core.ConnDisconnected,
		Attempt:     c.attempts,
		MaxAttempts: c.cfg.ReconnectMax,
		RetryIn:     delay,
	})
	log.Info().Str("module", "session").Int("attempt", c.attempts).Dur("delay", delay).Msg("reconnect scheduled")

	c.stopTimer()
	c.timer = time.AfterFunc(delay, func() {
		select {
		case c.kick <- struct{}{}:
		default:
		}
	})
}

func (c *Coordinator) stopTimer() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}
