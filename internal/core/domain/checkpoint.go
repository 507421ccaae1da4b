package domain

// ItemError records the terminal failure of one work item after its retry
// budget is exhausted.
type ItemError struct {
	ItemID    string `json:"item_id"`
	Message   string `json:"message"`
	Attempts  int    `json:"attempts"`
	Transient bool   `json:"transient"`
}

// Checkpoint is a snapshot of a job's progress counters, retry bookkeeping and
// accumulated results/errors. All mutation happens inside the engine's
// synchronized region; external callers only ever see deep copies.
type Checkpoint struct {
	JobID             string         `json:"job_id"`
	State             JobState       `json:"state"`
	PauseKind         PauseKind      `json:"pause_kind,omitempty"`
	TotalItems        int            `json:"total_items"`
	ProcessedCount    int            `json:"processed_count"`
	SuccessCount      int            `json:"success_count"`
	ErrorCount        int            `json:"error_count"`
	ConsecutiveErrors int            `json:"consecutive_errors"`
	RetryCount        map[string]int `json:"retry_count"`
	Results           map[string]any `json:"results"`
	Errors            []ItemError    `json:"errors"`
	UpdatedAt         int64          `json:"updated_at"`
}

// NewCheckpoint creates an empty checkpoint for a job of the given size.
func NewCheckpoint(jobID string, totalItems int) *Checkpoint {
	return &Checkpoint{
		JobID:      jobID,
		State:      JobStateRunning,
		TotalItems: totalItems,
		RetryCount: make(map[string]int),
		Results:    make(map[string]any),
	}
}

// Clone returns a deep copy. Result payloads are opaque and shared by
// reference; the engine never mutates them after recording.
func (c *Checkpoint) Clone() *Checkpoint {
	if c == nil {
		return nil
	}
	cp := *c
	cp.RetryCount = make(map[string]int, len(c.RetryCount))
	for k, v := range c.RetryCount {
		cp.RetryCount[k] = v
	}
	cp.Results = make(map[string]any, len(c.Results))
	for k, v := range c.Results {
		cp.Results[k] = v
	}
	cp.Errors = make([]ItemError, len(c.Errors))
	copy(cp.Errors, c.Errors)
	return &cp
}
