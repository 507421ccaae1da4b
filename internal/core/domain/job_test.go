package domain

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to JobState
		want     bool
	}{
		{JobStateRunning, JobStatePaused, true},
		{JobStateRunning, JobStateStopped, true},
		{JobStateRunning, JobStateCompleted, true},
		{JobStateRunning, JobStateError, true},
		{JobStatePaused, JobStateRunning, true},
		{JobStatePaused, JobStateStopped, true},
		{JobStatePaused, JobStateCompleted, false},
		{JobStatePaused, JobStateError, false},
		{JobStateStopped, JobStateRunning, false},
		{JobStateCompleted, JobStateRunning, false},
		{JobStateError, JobStateRunning, false},
		{JobStateRunning, JobStateRunning, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestJobStateTerminal(t *testing.T) {
	for _, s := range []JobState{JobStateStopped, JobStateCompleted, JobStateError} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []JobState{JobStateRunning, JobStatePaused} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestJobConfigNormalize(t *testing.T) {
	cfg := JobConfig{Workers: 8, Parallel: false, MaxRetries: 2}
	cfg.Normalize()
	if cfg.Workers != 1 {
		t.Errorf("sequential mode should force a single worker, got %d", cfg.Workers)
	}
	if cfg.AutoPauseThreshold != 5 {
		t.Errorf("AutoPauseThreshold = %d, want default 5", cfg.AutoPauseThreshold)
	}

	cfg = JobConfig{Workers: 8, Parallel: true, MaxRetries: 2, AutoPauseThreshold: 3}
	cfg.Normalize()
	if cfg.Workers != 8 || cfg.AutoPauseThreshold != 3 {
		t.Errorf("explicit settings must be preserved, got %+v", cfg)
	}
}
