package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"

	"github.com/minhqn/ocrflow/internal/core/domain"
	"github.com/minhqn/ocrflow/internal/history"
	"github.com/minhqn/ocrflow/internal/metrics"
)

// Config holds PostgreSQL connection configuration.
type Config struct {
	URL      string `yaml:"url"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// Store is the PostgreSQL-backed checkpoint archive.
type Store struct {
	db *sqlx.DB
}

// New opens a connection pool and verifies it with a bounded retry, since the
// database may still be starting when the service comes up.
func New(ctx context.Context, cfg Config) (*Store, error) {
	db, err := sqlx.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	} else {
		db.SetMaxOpenConns(10)
	}
	if cfg.MinConns > 0 {
		db.SetMaxIdleConns(cfg.MinConns)
	} else {
		db.SetMaxIdleConns(2)
	}
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(30 * time.Minute)

	backoff := retry.WithMaxRetries(5, retry.NewFibonacci(500*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		return retry.RetryableError(db.PingContext(ctx))
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Migrate applies the goose migrations from the given directory.
func (s *Store) Migrate(dir string) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	if err := goose.Up(s.db.DB, dir); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// StartMetricsCollector starts a background goroutine publishing connection
// pool usage.
func (s *Store) StartMetricsCollector(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := s.db.Stats()
				if stats.MaxOpenConnections > 0 {
					usage := float64(stats.OpenConnections) / float64(stats.MaxOpenConnections) * 100
					metrics.ArchiveDBPoolUsage.Set(usage)
				}
			}
		}
	}()
}

// Archive upserts the checkpoint snapshot for a job.
func (s *Store) Archive(ctx context.Context, cp *domain.Checkpoint) error {
	payload, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO job_checkpoints (
			job_id, state, pause_kind, total_items,
			processed_count, success_count, error_count,
			payload, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (job_id) DO UPDATE SET
			state           = EXCLUDED.state,
			pause_kind      = EXCLUDED.pause_kind,
			processed_count = EXCLUDED.processed_count,
			success_count   = EXCLUDED.success_count,
			error_count     = EXCLUDED.error_count,
			payload         = EXCLUDED.payload,
			updated_at      = EXCLUDED.updated_at`,
		cp.JobID, string(cp.State), string(cp.PauseKind), cp.TotalItems,
		cp.ProcessedCount, cp.SuccessCount, cp.ErrorCount,
		payload, cp.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to archive checkpoint: %w", err)
	}
	return nil
}

// Get retrieves the last archived checkpoint for a job.
func (s *Store) Get(ctx context.Context, jobID string) (*domain.Checkpoint, error) {
	var payload []byte
	err := s.db.GetContext(ctx, &payload,
		`SELECT payload FROM job_checkpoints WHERE job_id = $1`, jobID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, history.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get checkpoint: %w", err)
	}

	var cp domain.Checkpoint
	if err := json.Unmarshal(payload, &cp); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	return &cp, nil
}

// List returns all archived checkpoints, newest first.
func (s *Store) List(ctx context.Context) ([]*domain.Checkpoint, error) {
	var payloads [][]byte
	err := s.db.SelectContext(ctx, &payloads,
		`SELECT payload FROM job_checkpoints ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}

	out := make([]*domain.Checkpoint, 0, len(payloads))
	for _, p := range payloads {
		var cp domain.Checkpoint
		if err := json.Unmarshal(p, &cp); err != nil {
			return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
		}
		out = append(out, &cp)
	}
	return out, nil
}

// Health checks if the database is reachable.
func (s *Store) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}
