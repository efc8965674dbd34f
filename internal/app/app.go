package app

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/driftchat/driftchat-server/internal/auth"
	"github.com/driftchat/driftchat-server/internal/config"
	"github.com/driftchat/driftchat-server/internal/match"
	"github.com/driftchat/driftchat-server/internal/media"
	"github.com/driftchat/driftchat-server/internal/media/livekit"
	"github.com/driftchat/driftchat-server/internal/presence"
	"github.com/driftchat/driftchat-server/internal/session"
	"github.com/driftchat/driftchat-server/internal/store"
	"github.com/driftchat/driftchat-server/internal/store/sqlite"
	transporthttp "github.com/driftchat/driftchat-server/internal/transport/http"
)

// App wires together storage, matching, media, and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	reaper          *presence.Reaper
	store           store.Store
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(cfg.Auth.JWTSecret),
		Issuer:   cfg.Auth.JWTIssuer,
		Audience: cfg.Auth.JWTAudience,
		TTL:      cfg.Auth.TokenTTL,
	}
	authService := auth.NewService(st, jwtConfig)

	resolver := match.NewResolver(st, cfg.Match, logger)
	registry := session.NewRegistry()

	engine := livekit.New(cfg.LiveKit, logger)
	var joinRouter *transporthttp.JoinInfoRouter
	if cfg.LiveKit.Enabled {
		joinRouter = transporthttp.NewJoinInfoRouter()
		engine.SetJoinInfoFunc(joinRouter.Deliver)
	}

	deps := transporthttp.SessionDeps{
		Store:      st,
		Resolver:   resolver,
		Registry:   registry,
		Signaler:   engine,
		Source:     media.NewHandleSource(),
		JoinInfo:   joinRouter,
		MatchCfg:   cfg.Match,
		MediaCfg:   cfg.Media,
		FrameLimit: cfg.WSRateLimit,
		Log:        logger,
	}

	server := transporthttp.NewServer(*cfg, authService, st, deps, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		reaper:          presence.NewReaper(st, cfg.Match, logger),
		store:           st,
		log:             logger,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go a.reaper.Run(ctx)

	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
