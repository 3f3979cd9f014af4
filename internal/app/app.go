package app

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/chalayga/meetsync-server/internal/config"
	"github.com/chalayga/meetsync-server/internal/core"
	"github.com/chalayga/meetsync-server/internal/service/rooms"
	"github.com/chalayga/meetsync-server/internal/store"
	"github.com/chalayga/meetsync-server/internal/store/memory"
	"github.com/chalayga/meetsync-server/internal/store/sqlite"
	transporthttp "github.com/chalayga/meetsync-server/internal/transport/http"
)

// App wires the room store, event broker, reconciler and transport.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	store           store.RoomStore
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	var st store.RoomStore
	if cfg.Dev {
		st = memory.New()
		logger.Info().Msg("using in-memory room store")
	} else {
		sqliteStore, err := sqlite.New(cfg.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("init store: %w", err)
		}
		st = sqliteStore
		logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")
	}

	broker := core.NewBroker(logger)
	reconciler := core.NewReconciler(st, broker, logger)
	resolver := core.NewResolver(st)
	roomsSvc := rooms.New(st, reconciler, logger)

	server := transporthttp.NewServer(transporthttp.Deps{
		Rooms:      roomsSvc,
		Resolver:   resolver,
		Reconciler: reconciler,
		Store:      st,
		Channel:    broker,
	}, cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		store:           st,
		log:             logger,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

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

// cleanup closes the store and other resources.
func (a *App) cleanup() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
