package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/simplechannel/client/internal/app"
	"github.com/simplechannel/client/internal/auth"
	"github.com/simplechannel/client/internal/config"
	"github.com/simplechannel/client/internal/core"
	"github.com/simplechannel/client/internal/media"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
		os.Exit(1)
	}
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	token := os.Getenv("SIMPLECHANNEL_TOKEN")
	if token == "" {
		username := os.Getenv("SIMPLECHANNEL_USER")
		password := os.Getenv("SIMPLECHANNEL_PASS")
		if username == "" {
			log.Error().Msg("no SIMPLECHANNEL_TOKEN and no SIMPLECHANNEL_USER credentials")
			os.Exit(1)
		}
		authCtx, authCancel := context.WithTimeout(ctx, 15*time.Second)
		res, err := auth.Login(authCtx, cfg.AuthURL, username, password)
		authCancel()
		if err != nil {
			log.Error().Err(err).Msg("login failed")
			os.Exit(1)
		}
		token = res.Token
	}

	handler := core.LogHandler{}
	client := app.New(cfg, token, handler, handler, media.SourceProvider{})

	log.Info().Str("server", cfg.ServerURL).Msg("SimpleChannel client started")
	if err := client.Run(ctx); err != nil {
		switch {
		case errors.Is(err, context.Canceled):
			log.Info().Msg("client exited gracefully")
		case errors.Is(err, core.ErrNoCredential):
			log.Error().Msg("session token rejected, re-authentication required")
			os.Exit(1)
		default:
			log.Error().Err(err).Msg("client error")
			os.Exit(1)
		}
	}
}
