package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/minhqn/ocrflow/internal/core/domain"
	"github.com/minhqn/ocrflow/internal/metrics"
)

var (
	// ErrJobNotFound is returned for unknown or already reclaimed job IDs.
	ErrJobNotFound = errors.New("job not found")

	// ErrNoItems is returned when a submission carries no work items.
	ErrNoItems = errors.New("no work items submitted")

	// ErrJobNotTerminal is returned when acknowledging a job that is still
	// running or paused.
	ErrJobNotTerminal = errors.New("job has not reached a terminal state")
)

// SubmitRequest describes one job submission.
type SubmitRequest struct {
	Items  []domain.WorkItem
	Config domain.JobConfig

	// Fn overrides the registry's default work function for this job.
	Fn WorkFunc

	// Restore optionally rehydrates counts and retry bookkeeping from a
	// previously exported checkpoint; Items then holds only the remaining
	// unprocessed work.
	Restore *domain.Checkpoint
}

// ControlResult is the response of the pause/resume/stop control surface.
type ControlResult struct {
	Success       bool            `json:"success"`
	PreviousState domain.JobState `json:"previous_state,omitempty"`
}

// JobStatus is the full externally visible view of one job.
type JobStatus struct {
	JobID      string             `json:"job_id"`
	State      domain.JobState    `json:"state"`
	IsPaused   bool               `json:"is_paused"`
	IsStopped  bool               `json:"is_stopped"`
	Checkpoint *domain.Checkpoint `json:"checkpoint"`
}

// Registry is the process-wide job index. Jobs are retained until an external
// caller acknowledges their terminal state, at which point the entry is
// reclaimed; the archive keeps serving historical state afterwards.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]*Controller

	fn      WorkFunc
	archive Archiver
	log     *slog.Logger

	// backoffUnit scales retry delays; zero means one second. Tests shrink it
	// to keep backoff schedules observable without real sleeps.
	backoffUnit time.Duration
}

// NewRegistry creates a registry. fn is the default work function applied to
// submissions that do not carry their own; archive may be nil.
func NewRegistry(fn WorkFunc, archive Archiver, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		jobs:    make(map[string]*Controller),
		fn:      fn,
		archive: archive,
		log:     log,
	}
}

// SetBackoffUnit overrides the backoff time base for subsequently submitted
// jobs.
func (r *Registry) SetBackoffUnit(unit time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backoffUnit = unit
}

// Submit validates the request and begins asynchronous execution, returning
// the new job's ID.
func (r *Registry) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if len(req.Items) == 0 {
		return "", ErrNoItems
	}
	if req.Config.Workers < 1 {
		return "", fmt.Errorf("invalid config: worker count %d", req.Config.Workers)
	}
	if req.Config.MaxRetries < 0 {
		return "", fmt.Errorf("invalid config: max retries %d", req.Config.MaxRetries)
	}
	fn := req.Fn
	if fn == nil {
		fn = r.fn
	}
	if fn == nil {
		return "", errors.New("no work function configured")
	}
	cfg := req.Config
	cfg.Normalize()

	jobID := uuid.New().String()
	job := domain.NewJob(jobID, req.Items, cfg)

	r.mu.Lock()
	ctrl := newController(job, fn, r.archive, r.backoffUnit, req.Restore, r.log)
	r.jobs[jobID] = ctrl
	r.mu.Unlock()

	ctrl.start()
	metrics.JobsSubmitted.Inc()
	metrics.JobsActive.Inc()
	r.log.Info("job submitted",
		"job_id", jobID,
		"items", len(req.Items),
		"workers", cfg.Workers,
		"max_retries", cfg.MaxRetries)
	return jobID, nil
}

// Pause requests a RUNNING to PAUSED transition.
func (r *Registry) Pause(jobID string) (ControlResult, error) {
	ctrl, err := r.get(jobID)
	if err != nil {
		return ControlResult{}, err
	}
	prev, ok := ctrl.Pause()
	return ControlResult{Success: ok, PreviousState: prev}, nil
}

// Resume requests a PAUSED to RUNNING transition.
func (r *Registry) Resume(jobID string) (ControlResult, error) {
	ctrl, err := r.get(jobID)
	if err != nil {
		return ControlResult{}, err
	}
	prev, ok := ctrl.Resume()
	return ControlResult{Success: ok, PreviousState: prev}, nil
}

// Stop requests a transition to the terminal STOPPED state.
func (r *Registry) Stop(jobID string) (ControlResult, error) {
	ctrl, err := r.get(jobID)
	if err != nil {
		return ControlResult{}, err
	}
	prev, ok := ctrl.Stop()
	return ControlResult{Success: ok, PreviousState: prev}, nil
}

// Status returns an immutable view of a job's state and checkpoint.
func (r *Registry) Status(jobID string) (*JobStatus, error) {
	ctrl, err := r.get(jobID)
	if err != nil {
		return nil, err
	}
	state := ctrl.State()
	return &JobStatus{
		JobID:      jobID,
		State:      state,
		IsPaused:   state == domain.JobStatePaused,
		IsStopped:  state == domain.JobStateStopped,
		Checkpoint: ctrl.Snapshot(),
	}, nil
}

// List returns the status of every job currently held by the registry.
func (r *Registry) List() []*JobStatus {
	r.mu.RLock()
	ids := make([]string, 0, len(r.jobs))
	for id := range r.jobs {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	statuses := make([]*JobStatus, 0, len(ids))
	for _, id := range ids {
		if st, err := r.Status(id); err == nil {
			statuses = append(statuses, st)
		}
	}
	return statuses
}

// Acknowledge reclaims a terminal job's registry entry. The checkpoint was
// already exported on the terminal transition; later reads are served by the
// archive.
func (r *Registry) Acknowledge(jobID string) error {
	ctrl, err := r.get(jobID)
	if err != nil {
		return err
	}
	if !ctrl.State().Terminal() {
		return ErrJobNotTerminal
	}

	r.mu.Lock()
	delete(r.jobs, jobID)
	r.mu.Unlock()
	metrics.JobsActive.Dec()
	r.log.Info("job acknowledged and reclaimed", "job_id", jobID)
	return nil
}

// Shutdown stops every non-terminal job and waits for workers to drain, up to
// the context deadline.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.RLock()
	ctrls := make([]*Controller, 0, len(r.jobs))
	for _, ctrl := range r.jobs {
		ctrls = append(ctrls, ctrl)
	}
	r.mu.RUnlock()

	for _, ctrl := range ctrls {
		ctrl.Stop()
	}
	for _, ctrl := range ctrls {
		select {
		case <-ctrl.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (r *Registry) get(jobID string) (*Controller, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ctrl, ok := r.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	return ctrl, nil
}
