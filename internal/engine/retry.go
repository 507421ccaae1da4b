package engine

import (
	"context"
	"strings"
	"time"

	"github.com/minhqn/ocrflow/internal/core/domain"
	"github.com/minhqn/ocrflow/internal/metrics"
)

// WorkFunc is the pluggable per-item processing function supplied by the
// caller. Repeated invocation on retry must be safe; the engine does not
// enforce idempotence.
type WorkFunc func(ctx context.Context, item *domain.WorkItem) (domain.Result, error)

// transientIndicators is the fixed set of message fragments that mark a
// failure as transient. Classification affects diagnostics only; both classes
// share the same retry budget and backoff schedule.
var transientIndicators = []string{
	"timeout",
	"connection refused",
	"connection reset",
	"network unreachable",
}

// IsTransient classifies an error by matching its message against the known
// transient-fault indicators.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, indicator := range transientIndicators {
		if strings.Contains(msg, indicator) {
			return true
		}
	}
	return false
}

// maxBackoffUnits caps the exponential schedule.
const maxBackoffUnits = 30

// BackoffDelay returns min(2^attempt, 30) backoff units for attempt 0, 1, 2…
// A unit of one second yields the schedule 1s, 2s, 4s, 8s, 16s, 30s, 30s…
func BackoffDelay(attempt int, unit time.Duration) time.Duration {
	if unit <= 0 {
		unit = time.Second
	}
	if attempt < 0 {
		attempt = 0
	}
	steps := maxBackoffUnits
	if attempt < 5 { // 2^5 = 32 already exceeds the cap
		steps = 1 << uint(attempt)
	}
	return time.Duration(steps) * unit
}

// Outcome is the terminal result of running one item through its retry budget.
type Outcome struct {
	Result    domain.Result
	Err       error
	Attempts  int
	Transient bool
	// Aborted marks an item abandoned mid-retry by a stop request; it did not
	// reach a terminal outcome and is not recorded in the checkpoint.
	Aborted bool
}

// RetryCoordinator wraps a single item execution with retry accounting and
// interruptible exponential backoff. It holds no shared state.
type RetryCoordinator struct {
	MaxRetries int
	// Unit is the backoff time base; zero means one second.
	Unit time.Duration
}

// Run executes the item until it succeeds, exhausts max_retries, or the job
// stops. recordAttempt is invoked before every attempt so retry bookkeeping
// stays inside the job's synchronized region. Between attempts the backoff
// wait is interruptible by stop, and the gate is re-checked after the wait so
// a pause requested during backoff takes effect before the next attempt.
func (r *RetryCoordinator) Run(
	ctx context.Context,
	gate *Gate,
	item *domain.WorkItem,
	fn WorkFunc,
	recordAttempt func(itemID string),
) Outcome {
	var lastErr error
	for attempt := 0; ; attempt++ {
		item.Attempts++
		recordAttempt(item.ID)
		if attempt > 0 {
			metrics.ItemRetries.Inc()
		}

		result, err := fn(ctx, item)
		if err == nil {
			item.LastError = ""
			return Outcome{Result: result, Attempts: attempt + 1}
		}

		lastErr = err
		item.LastError = err.Error()

		if attempt == r.MaxRetries {
			break
		}

		timer := time.NewTimer(BackoffDelay(attempt, r.Unit))
		select {
		case <-timer.C:
		case <-gate.StopChan():
			timer.Stop()
			return Outcome{Aborted: true, Err: ErrStopped, Attempts: attempt + 1}
		case <-ctx.Done():
			timer.Stop()
			return Outcome{Aborted: true, Err: ctx.Err(), Attempts: attempt + 1}
		}

		if err := gate.Wait(ctx); err != nil {
			return Outcome{Aborted: true, Err: err, Attempts: attempt + 1}
		}
	}

	return Outcome{
		Err:       lastErr,
		Attempts:  r.MaxRetries + 1,
		Transient: IsTransient(lastErr),
	}
}
