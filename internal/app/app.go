package app

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/bancho-server/internal/auth"
	"github.com/vovakirdan/bancho-server/internal/config"
	"github.com/vovakirdan/bancho-server/internal/core"
	"github.com/vovakirdan/bancho-server/internal/store"
	"github.com/vovakirdan/bancho-server/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/bancho-server/internal/transport/http"
)

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	core            *core.Server
	store           store.Store
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	// Initialize database store
	st, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	logger.Info().Str("db_path", cfg.DBPath).Msg("database initialized")

	botUser, err := st.EnsureBotUser(context.Background(), cfg.BotName)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("ensure bot user: %w", err)
	}

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   "bancho-server",
		Audience: "bancho",
		TTL:      cfg.JWTTTL,
	}
	authService := auth.NewService(st, jwtConfig)

	srv, err := core.NewServer(logger, st, botUser, linkResolver{}, core.Options{
		BotName:         cfg.BotName,
		PingTimeout:     cfg.PingTimeout,
		SweepInterval:   cfg.SweepInterval,
		ChatBurst:       cfg.ChatBurst,
		ChatWindow:      cfg.ChatWindow,
		SilenceDuration: cfg.SilenceDuration,
		Channels:        cfg.Channels,
	})
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("init core: %w", err)
	}

	server := transporthttp.NewServer(srv, authService, *cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		core:            srv,
		store:           st,
		log:             logger,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go a.core.Run(ctx)

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

// linkResolver answers beatmap lookups with the site link. A real
// deployment would swap in a client of the beatmap service.
type linkResolver struct{}

func (linkResolver) Describe(_ context.Context, beatmapID int32) (string, error) {
	return fmt.Sprintf("https://osu.ppy.sh/b/%d", beatmapID), nil
}
