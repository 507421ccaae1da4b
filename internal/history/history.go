package history

import (
	"context"
	"errors"

	"github.com/minhqn/ocrflow/internal/core/domain"
)

// ErrNotFound is returned when no checkpoint exists for a job ID.
var ErrNotFound = errors.New("checkpoint not found")

// Archiver is the durable job-history store fed by the engine's checkpoint
// exports. The engine only writes; reads serve the status surfaces after the
// in-process registry entry has been reclaimed.
type Archiver interface {
	// Archive persists a checkpoint snapshot, replacing any prior snapshot
	// for the same job.
	Archive(ctx context.Context, cp *domain.Checkpoint) error

	// Get retrieves the last archived checkpoint for a job.
	Get(ctx context.Context, jobID string) (*domain.Checkpoint, error)

	// List returns all archived checkpoints, newest first.
	List(ctx context.Context) ([]*domain.Checkpoint, error)

	// Close releases underlying resources.
	Close() error
}
