package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/minhqn/ocrflow/internal/core/domain"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"timeout", errors.New("request timeout after 30s"), true},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"connection reset", errors.New("read: connection reset by peer"), true},
		{"network unreachable", errors.New("network unreachable"), true},
		{"uppercase", errors.New("TIMEOUT waiting for response"), true},
		{"wrapped", fmt.Errorf("process page: %w", errors.New("connection refused")), true},
		{"permanent", errors.New("unsupported document format"), false},
		{"not found", errors.New("document not found"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestBackoffDelay_Schedule(t *testing.T) {
	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}
	for attempt, expected := range want {
		if got := BackoffDelay(attempt, time.Second); got != expected {
			t.Errorf("BackoffDelay(%d) = %v, want %v", attempt, got, expected)
		}
	}
	if got := BackoffDelay(100, time.Second); got != 30*time.Second {
		t.Errorf("BackoffDelay(100) = %v, want 30s cap", got)
	}
	if got := BackoffDelay(2, time.Millisecond); got != 4*time.Millisecond {
		t.Errorf("BackoffDelay(2, 1ms) = %v, want 4ms", got)
	}
}

func TestRetryCoordinator_SucceedsAfterRetries(t *testing.T) {
	rc := RetryCoordinator{MaxRetries: 3, Unit: time.Millisecond}
	item := &domain.WorkItem{ID: "doc-1", Name: "doc-1.pdf"}

	calls := 0
	fn := func(ctx context.Context, it *domain.WorkItem) (domain.Result, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("timeout contacting backend")
		}
		return "ok", nil
	}

	var attempts []string
	out := rc.Run(context.Background(), NewGate(), item, fn, func(id string) {
		attempts = append(attempts, id)
	})

	if out.Err != nil {
		t.Fatalf("expected success, got %v", out.Err)
	}
	if out.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", out.Attempts)
	}
	if out.Result != "ok" {
		t.Errorf("Result = %v, want ok", out.Result)
	}
	if len(attempts) != 3 {
		t.Errorf("recordAttempt called %d times, want 3", len(attempts))
	}
	if item.Attempts != 3 {
		t.Errorf("item.Attempts = %d, want 3", item.Attempts)
	}
	if item.LastError != "" {
		t.Errorf("item.LastError = %q, want empty after success", item.LastError)
	}
}

func TestRetryCoordinator_ExhaustsBudget(t *testing.T) {
	rc := RetryCoordinator{MaxRetries: 2, Unit: time.Millisecond}
	item := &domain.WorkItem{ID: "doc-2"}

	calls := 0
	fn := func(ctx context.Context, it *domain.WorkItem) (domain.Result, error) {
		calls++
		return nil, errors.New("connection refused")
	}

	out := rc.Run(context.Background(), NewGate(), item, fn, func(string) {})

	if out.Err == nil {
		t.Fatal("expected terminal failure")
	}
	if calls != 3 {
		t.Errorf("work function called %d times, want max_retries+1 = 3", calls)
	}
	if out.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", out.Attempts)
	}
	if !out.Transient {
		t.Error("connection refused should classify as transient")
	}
	if out.Aborted {
		t.Error("exhausted item is a terminal failure, not an abort")
	}
	if item.LastError == "" {
		t.Error("item.LastError should hold the final error message")
	}
}

func TestRetryCoordinator_ZeroRetriesSingleAttempt(t *testing.T) {
	rc := RetryCoordinator{MaxRetries: 0, Unit: time.Millisecond}

	calls := 0
	fn := func(ctx context.Context, it *domain.WorkItem) (domain.Result, error) {
		calls++
		return nil, errors.New("bad payload")
	}

	out := rc.Run(context.Background(), NewGate(), &domain.WorkItem{ID: "doc-3"}, fn, func(string) {})
	if calls != 1 {
		t.Errorf("work function called %d times, want exactly 1", calls)
	}
	if out.Transient {
		t.Error("bad payload should classify as permanent")
	}
}

func TestRetryCoordinator_StopInterruptsBackoff(t *testing.T) {
	// A long backoff unit would stall the test for minutes if the stop signal
	// did not cut the wait short.
	rc := RetryCoordinator{MaxRetries: 5, Unit: time.Minute}
	gate := NewGate()

	fn := func(ctx context.Context, it *domain.WorkItem) (domain.Result, error) {
		return nil, errors.New("timeout")
	}

	done := make(chan Outcome, 1)
	go func() {
		done <- rc.Run(context.Background(), gate, &domain.WorkItem{ID: "doc-4"}, fn, func(string) {})
	}()

	time.Sleep(20 * time.Millisecond)
	gate.Stop()

	select {
	case out := <-done:
		if !out.Aborted {
			t.Error("expected aborted outcome after stop")
		}
		if out.Err != ErrStopped {
			t.Errorf("expected ErrStopped, got %v", out.Err)
		}
	case <-time.After(time.Second):
		t.Fatal("stop did not interrupt backoff")
	}
}

func TestRetryCoordinator_PauseDefersNextAttempt(t *testing.T) {
	rc := RetryCoordinator{MaxRetries: 1, Unit: time.Millisecond}
	gate := NewGate()

	resumed := make(chan struct{})
	calls := 0
	fn := func(ctx context.Context, it *domain.WorkItem) (domain.Result, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("timeout")
		}
		select {
		case <-resumed:
		default:
			t.Error("second attempt ran before resume")
		}
		return "ok", nil
	}

	gate.Pause()
	done := make(chan Outcome, 1)
	go func() {
		done <- rc.Run(context.Background(), gate, &domain.WorkItem{ID: "doc-5"}, fn, func(string) {})
	}()

	time.Sleep(30 * time.Millisecond)
	close(resumed)
	gate.Resume()

	select {
	case out := <-done:
		if out.Err != nil {
			t.Errorf("expected success after resume, got %v", out.Err)
		}
	case <-time.After(time.Second):
		t.Fatal("retry never completed after resume")
	}
}
