package domain

import "time"

// JobState represents the lifecycle state of a job.
type JobState string

const (
	JobStateRunning   JobState = "running"
	JobStatePaused    JobState = "paused"
	JobStateStopped   JobState = "stopped"
	JobStateCompleted JobState = "completed"
	JobStateError     JobState = "error"
)

// Terminal reports whether no further transitions originate from the state.
func (s JobState) Terminal() bool {
	switch s {
	case JobStateStopped, JobStateCompleted, JobStateError:
		return true
	default:
		return false
	}
}

// PauseKind distinguishes an operator-requested pause from one triggered by
// the consecutive-failure watchdog.
type PauseKind string

const (
	PauseManual PauseKind = "manual"
	PauseAuto   PauseKind = "auto"
)

// ValidTransitions defines allowed state transitions.
// Key is the current state, value is the list of valid next states.
var ValidTransitions = map[JobState][]JobState{
	JobStateRunning: {JobStatePaused, JobStateStopped, JobStateCompleted, JobStateError},
	JobStatePaused:  {JobStateRunning, JobStateStopped},
}

// CanTransition checks if a transition from one state to another is valid.
func CanTransition(from, to JobState) bool {
	validTargets, ok := ValidTransitions[from]
	if !ok {
		return false
	}
	for _, target := range validTargets {
		if target == to {
			return true
		}
	}
	return false
}

// WorkItem is one document routed through the processing function. Payload is
// opaque to the engine. Attempts and LastError are per-run bookkeeping owned
// by the single worker currently holding the item.
type WorkItem struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	Payload   []byte `json:"payload"`
	Attempts  int    `json:"attempts"`
	LastError string `json:"last_error,omitempty"`
}

// Result is the opaque success payload produced by the processing function.
// The engine stores it in the checkpoint without inspecting it.
type Result any

// JobConfig holds per-job execution settings.
type JobConfig struct {
	Workers            int  `json:"workers"              yaml:"workers"`
	Parallel           bool `json:"parallel"             yaml:"parallel"`
	MaxRetries         int  `json:"max_retries"          yaml:"max_retries"`
	AutoPauseThreshold int  `json:"auto_pause_threshold" yaml:"auto_pause_threshold"`
}

// DefaultJobConfig returns sensible defaults for document batches.
func DefaultJobConfig() JobConfig {
	return JobConfig{
		Workers:            4,
		Parallel:           true,
		MaxRetries:         3,
		AutoPauseThreshold: 5,
	}
}

// Normalize fills unset optional fields with defaults.
func (c *JobConfig) Normalize() {
	if c.AutoPauseThreshold <= 0 {
		c.AutoPauseThreshold = 5
	}
	if !c.Parallel {
		c.Workers = 1
	}
}

// Job is the aggregate owned by one controller instance.
type Job struct {
	ID        string     `json:"id"`
	State     JobState   `json:"state"`
	Items     []WorkItem `json:"items"`
	Config    JobConfig  `json:"config"`
	CreatedAt int64      `json:"created_at"`
}

// NewJob creates a job in the initial RUNNING state.
func NewJob(id string, items []WorkItem, cfg JobConfig) *Job {
	return &Job{
		ID:        id,
		State:     JobStateRunning,
		Items:     items,
		Config:    cfg,
		CreatedAt: time.Now().Unix(),
	}
}
