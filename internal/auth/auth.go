// Package auth performs the fresh-credential handshake over a separate,
// unauthenticated pre-session connection. The long-lived session transport
// only ever resumes with the token resolved here.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/simplechannel/client/internal/core"
	"github.com/simplechannel/client/internal/domain"
)

// ErrAuthFailed wraps the server's auth_failure message.
var ErrAuthFailed = errors.New("authentication failed")

// Result is the outcome of a successful handshake. Token is empty for
// register/verify flows that only acknowledge with a message.
type Result struct {
	Token   string
	User    *domain.User
	Message string
}

// Login exchanges username/password for a bearer token.
func Login(ctx context.Context, url, username, password string) (Result, error) {
	if err := domain.ValidateUsername(username); err != nil {
		return Result{}, err
	}
	return handshake(ctx, url, core.AuthRequest{
		Action:   core.AuthActionLogin,
		Username: username,
		Password: password,
	})
}

// Register creates an account; the server answers with a verification notice.
func Register(ctx context.Context, url, username, password, email string) (Result, error) {
	if err := domain.ValidateUsername(username); err != nil {
		return Result{}, err
	}
	return handshake(ctx, url, core.AuthRequest{
		Action:   core.AuthActionRegister,
		Username: username,
		Password: password,
		Email:    email,
	})
}

// Verify submits the emailed verification token.
func Verify(ctx context.Context, url, username, token string) (Result, error) {
	return handshake(ctx, url, core.AuthRequest{
		Action:   core.AuthActionVerify,
		Username: username,
		Token:    token,
	})
}

func handshake(ctx context.Context, url string, req core.AuthRequest) (Result, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return Result{}, fmt.Errorf("dial auth endpoint: %w", err)
	}
	defer func() {
		_ = ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = ws.Close()
	}()

	env, err := core.NewEnvelope(core.TypeAuthRequest, req)
	if err != nil {
		return Result{}, err
	}
	if err := ws.WriteJSON(env); err != nil {
		return Result{}, fmt.Errorf("send auth request: %w", err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = ws.SetReadDeadline(deadline)
	}
	for {
		var reply core.Envelope
		if err := ws.ReadJSON(&reply); err != nil {
			return Result{}, fmt.Errorf("read auth reply: %w", err)
		}
		switch reply.Type {
		case core.TypeAuthSuccess:
			var ok core.AuthSuccess
			if err := reply.Decode(&ok); err != nil {
				return Result{}, err
			}
			log.Info().Str("module", "auth").Str("action", req.Action).Msg("auth handshake succeeded")
			return Result{Token: ok.Token, User: ok.User, Message: ok.Message}, nil
		case core.TypeAuthFailure:
			var fail core.AuthFailure
			_ = reply.Decode(&fail)
			return Result{}, fmt.Errorf("%w: %s", ErrAuthFailed, fail.Message)
		default:
			log.Warn().Str("module", "auth").Str("type", reply.Type).Msg("unexpected pre-session envelope, dropped")
		}
	}
}
