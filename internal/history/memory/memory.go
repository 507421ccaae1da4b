package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/minhqn/ocrflow/internal/core/domain"
	"github.com/minhqn/ocrflow/internal/history"
)

// Archive is an in-memory checkpoint archive used when no database or Redis
// is configured. Contents do not survive a restart.
type Archive struct {
	mu          sync.RWMutex
	checkpoints map[string]*domain.Checkpoint
}

// NewArchive creates an empty in-memory archive.
func NewArchive() *Archive {
	return &Archive{checkpoints: make(map[string]*domain.Checkpoint)}
}

func (a *Archive) Archive(ctx context.Context, cp *domain.Checkpoint) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.checkpoints[cp.JobID] = cp.Clone()
	return nil
}

func (a *Archive) Get(ctx context.Context, jobID string) (*domain.Checkpoint, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	cp, ok := a.checkpoints[jobID]
	if !ok {
		return nil, history.ErrNotFound
	}
	return cp.Clone(), nil
}

func (a *Archive) List(ctx context.Context) ([]*domain.Checkpoint, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]*domain.Checkpoint, 0, len(a.checkpoints))
	for _, cp := range a.checkpoints {
		out = append(out, cp.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt > out[j].UpdatedAt })
	return out, nil
}

func (a *Archive) Close() error {
	return nil
}
