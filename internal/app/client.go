// Package app wires the transport, session, dispatch, voice and ledger
// layers into one client and exposes the outbound user actions.
package app

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/simplechannel/client/internal/config"
	"github.com/simplechannel/client/internal/core"
	"github.com/simplechannel/client/internal/dispatch"
	"github.com/simplechannel/client/internal/domain"
	"github.com/simplechannel/client/internal/ledger"
	"github.com/simplechannel/client/internal/media"
	"github.com/simplechannel/client/internal/rtc"
	"github.com/simplechannel/client/internal/session"
	"github.com/simplechannel/client/internal/transport"
	"github.com/simplechannel/client/internal/upload"
	"github.com/simplechannel/client/internal/voice"
)

var ErrEmptyMessage = errors.New("empty message")

type Client struct {
	cfg        *config.Config
	handler    core.EventHandler
	creds      *session.Credentials
	tr         *transport.Conn
	dispatcher *dispatch.Dispatcher
	voice      *voice.Controller
	coord      *session.Coordinator
	pending    *ledger.Ledger
	uploads    *upload.Client

	mu      sync.Mutex
	profile domain.User
}

// New builds a client around a previously resolved bearer token (see the
// auth package for the fresh-credential flow).
func New(cfg *config.Config, token string, events core.EventHandler, sink core.VoiceSink, provider media.Provider) *Client {
	c := &Client{cfg: cfg}
	c.handler = &profileTap{EventHandler: events, c: c}
	c.creds = session.NewCredentials(token)
	c.tr = transport.New(cfg, c.creds.Token)
	c.pending = ledger.New()
	c.uploads = upload.New(cfg.APIBaseURL, c.creds.Token)
	c.voice = voice.NewController(c.tr, sink, provider, func() (core.MediaConnection, error) {
		return rtc.NewPeer(rtc.Config(cfg.ICEServers))
	})
	c.dispatcher = dispatch.New(c.voice)
	c.registerHandlers()
	c.coord = session.NewCoordinator(cfg, c.tr, c.dispatcher, c.voice, c.handler, c.creds, c.pending)
	return c
}

// profileTap records the authenticated profile for the optimistic chat echo
// before forwarding to the collaborator.
type profileTap struct {
	core.EventHandler
	c *Client
}

func (t *profileTap) OnAuthenticated(u domain.User) {
	t.c.mu.Lock()
	t.c.profile = u
	t.c.mu.Unlock()
	t.EventHandler.OnAuthenticated(u)
}

func (c *Client) registerHandlers() {
	c.dispatcher.Register(core.TypeChatBroadcast, func(env core.Envelope) {
		var msg core.ChatBroadcast
		if err := env.Decode(&msg); err != nil {
			log.Warn().Err(err).Str("module", "app").Msg("bad chat_broadcast payload")
			return
		}
		if msg.ClientMsgID != "" {
			if _, ok := c.pending.Resolve(msg.ClientMsgID); ok {
				c.handler.OnChatResolved(msg.ClientMsgID, msg)
				return
			}
		}
		c.handler.OnChatMessage(msg, false)
	})
	c.dispatcher.Register(core.TypeSystemMessage, func(env core.Envelope) {
		var p core.SystemMessage
		if err := env.Decode(&p); err == nil {
			c.handler.OnSystemMessage(p.Message)
		}
	})
	c.dispatcher.Register(core.TypeUserListUpdate, func(env core.Envelope) {
		var p core.UserListUpdate
		if err := env.Decode(&p); err == nil {
			c.handler.OnUserList(p.Users)
		}
	})
	c.dispatcher.Register(core.TypeChannelListUpdate, func(env core.Envelope) {
		var p core.ChannelListUpdate
		if err := env.Decode(&p); err == nil {
			c.handler.OnChannelList(p.Channels)
		}
	})
	c.dispatcher.Register(core.TypeJoinChannelSuccess, func(env core.Envelope) {
		var p core.JoinChannelSuccess
		if err := env.Decode(&p); err == nil {
			c.handler.OnChannelJoined(p)
		}
	})
	c.dispatcher.Register(core.TypeErrorMessage, func(env core.Envelope) {
		var p core.ErrorMessage
		if err := env.Decode(&p); err == nil {
			c.handler.OnServerError(p.Message)
		}
	})
}

// Run blocks until ctx is done or the credential is rejected.
func (c *Client) Run(ctx context.Context) error {
	return c.coord.Run(ctx)
}

// SendChatMessage renders an optimistic echo keyed by a fresh correlation id
// and sends the message. The echo is finalized when the matching
// chat_broadcast arrives.
func (c *Client) SendChatMessage(text string) (string, error) {
	if text == "" {
		return "", ErrEmptyMessage
	}
	c.mu.Lock()
	profile := c.profile
	c.mu.Unlock()

	id := ledger.NewID()
	echo := core.ChatBroadcast{
		SenderUsername:    profile.Username,
		SenderDisplayName: profile.DisplayName,
		AvatarURL:         profile.AvatarURL,
		Message:           text,
		Timestamp:         time.Now().UTC().Format(time.RFC3339),
		ClientMsgID:       id,
	}
	if err := c.pending.Register(id, ledger.KindChatMessage, echo); err != nil {
		return "", err
	}
	c.handler.OnChatMessage(echo, true)

	env, err := core.NewEnvelope(core.TypeChatMessage, core.ChatMessage{Message: text, ClientMsgID: id})
	if err == nil {
		err = c.tr.Send(env)
	}
	if err != nil {
		if pa, ok := c.pending.Reject(id); ok {
			c.handler.OnActionFailed(id, pa.Placeholder, err.Error())
		}
		return "", err
	}
	return id, nil
}

// JoinTextChannel leaves any voice channel and joins the named text channel.
func (c *Client) JoinTextChannel(name string) error {
	c.voice.Leave()
	env, err := core.NewEnvelope(core.TypeCommand, core.Command{Command: "join", Args: []string{name}})
	if err != nil {
		return err
	}
	return c.tr.Send(env)
}

func (c *Client) CreateChannel(name, kind string) error {
	if err := domain.ValidateChannelName(name); err != nil {
		return err
	}
	command := "createchannel"
	if kind == domain.ChannelVoice {
		command = "createvoicechannel"
	}
	env, err := core.NewEnvelope(core.TypeCommand, core.Command{Command: command, Args: []string{name}})
	if err != nil {
		return err
	}
	return c.tr.Send(env)
}

func (c *Client) JoinVoiceChannel(ctx context.Context, id domain.ChannelID, name string) error {
	return c.voice.Join(ctx, id, name)
}

func (c *Client) LeaveVoiceChannel() { c.voice.Leave() }

func (c *Client) ToggleMute(force ...bool) error { return c.voice.ToggleMute(force...) }

func (c *Client) ToggleDeafen(force ...bool) { c.voice.ToggleDeafen(force...) }

func (c *Client) ToggleScreenShare(ctx context.Context, force ...bool) error {
	return c.voice.ToggleScreenShare(ctx, force...)
}

// UploadFile registers a pending upload card and posts the file on the HTTP
// side-channel. An HTTP failure rolls the card back immediately; on success
// the entry resolves when the server broadcasts the file message.
func (c *Client) UploadFile(ctx context.Context, r io.Reader, filename string, channelID domain.ChannelID) (string, error) {
	id := ledger.NewID()
	if err := c.pending.Register(id, ledger.KindFileUpload, filename); err != nil {
		return "", err
	}
	if err := c.uploads.File(ctx, r, filename, channelID, id); err != nil {
		if pa, ok := c.pending.Reject(id); ok {
			c.handler.OnActionFailed(id, pa.Placeholder, err.Error())
		}
		return "", err
	}
	return id, nil
}

func (c *Client) UploadAvatar(ctx context.Context, r io.Reader, filename string) error {
	return c.uploads.Avatar(ctx, r, filename)
}

// Logout tears down voice, closes the transport without reconnecting and
// forgets the token.
func (c *Client) Logout() {
	c.voice.Leave()
	c.tr.Close()
	c.creds.Clear()
}
