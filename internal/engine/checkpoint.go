package engine

import (
	"sync"
	"time"

	"github.com/minhqn/ocrflow/internal/core/domain"
)

// checkpointStore owns a job's checkpoint. Its mutex is the single
// synchronized region for every counter, map and state mutation of the job;
// the critical sections are short and never perform I/O. Snapshot readers get
// deep copies so a concurrent mutation can never tear a read.
type checkpointStore struct {
	mu    sync.Mutex
	data  *domain.Checkpoint
	guard *ErrorGuard
}

func newCheckpointStore(jobID string, totalItems int, guard *ErrorGuard) *checkpointStore {
	return &checkpointStore{
		data:  domain.NewCheckpoint(jobID, totalItems),
		guard: guard,
	}
}

// RecordAttempt bumps the retry bookkeeping for an item before each attempt.
func (s *checkpointStore) RecordAttempt(itemID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.RetryCount[itemID]++
	s.data.UpdatedAt = time.Now().Unix()
}

// RecordSuccess records a terminal item success and breaks the failure streak.
func (s *checkpointStore) RecordSuccess(itemID string, result domain.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.ProcessedCount++
	s.data.SuccessCount++
	s.data.ConsecutiveErrors = 0
	s.data.Results[itemID] = result
	s.data.UpdatedAt = time.Now().Unix()
	s.guard.OnSuccess()
}

// RecordFailure records a terminal item failure. It returns true when this
// failure crossed the auto-pause threshold; the guard guarantees at most one
// true per unbroken streak.
func (s *checkpointStore) RecordFailure(itemErr domain.ItemError) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.ProcessedCount++
	s.data.ErrorCount++
	s.data.ConsecutiveErrors++
	s.data.Errors = append(s.data.Errors, itemErr)
	s.data.UpdatedAt = time.Now().Unix()
	return s.guard.OnFailure(s.data.ConsecutiveErrors)
}

// State returns the current job state.
func (s *checkpointStore) State() domain.JobState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.State
}

// Transition moves the job to a new state if the state machine allows it.
// It returns the previous state and whether the transition was applied.
func (s *checkpointStore) Transition(to domain.JobState, kind domain.PauseKind) (domain.JobState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.data.State
	if !domain.CanTransition(prev, to) {
		return prev, false
	}
	s.data.State = to
	if to == domain.JobStatePaused {
		s.data.PauseKind = kind
	} else {
		s.data.PauseKind = ""
	}
	s.data.UpdatedAt = time.Now().Unix()
	return prev, true
}

// Snapshot returns a deep copy of the checkpoint, never a live reference.
func (s *checkpointStore) Snapshot() *domain.Checkpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.Clone()
}

// Restore rehydrates counters and retry bookkeeping from a previously
// exported snapshot. The caller supplies the remaining unprocessed items
// separately; restored counts are added on top of the fresh totals. The
// failure streak carries over too, with the guard seeded so a streak that
// already fired before the export cannot trigger a second auto-pause until a
// success breaks it.
func (s *checkpointStore) Restore(prev *domain.Checkpoint) {
	if prev == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.TotalItems += prev.ProcessedCount
	s.data.ProcessedCount += prev.ProcessedCount
	s.data.SuccessCount += prev.SuccessCount
	s.data.ErrorCount += prev.ErrorCount
	s.data.ConsecutiveErrors = prev.ConsecutiveErrors
	s.guard.Restore(prev.ConsecutiveErrors)
	for id, n := range prev.RetryCount {
		s.data.RetryCount[id] += n
	}
	for id, r := range prev.Results {
		s.data.Results[id] = r
	}
	s.data.Errors = append(s.data.Errors, prev.Errors...)
	s.data.UpdatedAt = time.Now().Unix()
}
