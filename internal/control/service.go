package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/minhqn/ocrflow/internal/api"
	"github.com/minhqn/ocrflow/internal/core/config"
	"github.com/minhqn/ocrflow/internal/engine"
	"github.com/minhqn/ocrflow/internal/history"
	"github.com/minhqn/ocrflow/internal/history/memory"
	"github.com/minhqn/ocrflow/internal/history/postgres"
	redisarchive "github.com/minhqn/ocrflow/internal/history/redis"
	"github.com/minhqn/ocrflow/internal/processing"
)

// migrationsDir holds the goose migration files, relative to the working
// directory of the service process.
const migrationsDir = "migrations"

// Service assembles the job engine, the checkpoint archive and the control
// API into one runnable unit.
type Service struct {
	registry *engine.Registry
	archive  history.Archiver
	server   *api.Server
	pg       *postgres.Store // nil unless the postgres archive is active

	cancel context.CancelFunc
}

// NewService wires the application from configuration. Archive selection
// follows what is configured: Postgres when a database URL is set, Redis as
// the lighter alternative, and an in-memory archive as the fallback for local
// runs.
func NewService(ctx context.Context, cfg *config.AppConfig) (*Service, error) {
	s := &Service{}

	switch {
	case cfg.Database.URL != "":
		store, err := postgres.New(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("init postgres archive: %w", err)
		}
		if err := store.Migrate(migrationsDir); err != nil {
			store.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		s.archive = store
		s.pg = store
		slog.Info("Using postgres checkpoint archive")
	case cfg.Redis.URL != "":
		archive, err := redisarchive.NewArchive(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("init redis archive: %w", err)
		}
		s.archive = archive
		slog.Info("Using redis checkpoint archive")
	default:
		s.archive = memory.NewArchive()
		slog.Warn("No archive backend configured, checkpoints will not survive restarts")
	}

	ocr := processing.NewClient(cfg.Processor)
	s.registry = engine.NewRegistry(ocr.Process, s.archive, slog.Default())
	s.server = api.NewServer(s.registry, s.archive, cfg.Server.Port, cfg.Engine, slog.Default())

	return s, nil
}

// Registry exposes the job registry, mainly for the submit CLI path.
func (s *Service) Registry() *engine.Registry {
	return s.registry
}

// Start launches the HTTP server and background collectors. It does not
// block; fatal server errors are logged.
func (s *Service) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	if s.pg != nil {
		s.pg.StartMetricsCollector(ctx)
	}

	go func() {
		if err := s.server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server failed", "error", err)
		}
	}()

	slog.Info("Service started")
	return nil
}

// Stop shuts the service down in order: stop accepting requests, drain the
// engine, then release the archive.
func (s *Service) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}

	var errs []error
	if err := s.server.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop http server: %w", err))
	}
	if err := s.registry.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("drain engine: %w", err))
	}
	if err := s.archive.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close archive: %w", err))
	}
	return errors.Join(errs...)
}
