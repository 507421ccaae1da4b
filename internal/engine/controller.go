package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/minhqn/ocrflow/internal/core/domain"
	"github.com/minhqn/ocrflow/internal/metrics"
)

// Archiver receives checkpoint exports on terminal transitions and on pause.
// Implementations live outside the engine; the engine itself performs no
// storage or network I/O.
type Archiver interface {
	Archive(ctx context.Context, cp *domain.Checkpoint) error
}

// Controller owns one job's lifecycle: the work queue, the pause/stop gate,
// the checkpoint and the public control surface.
type Controller struct {
	job     *domain.Job
	gate    *Gate
	cp      *checkpointStore
	retry   RetryCoordinator
	fn      WorkFunc
	archive Archiver
	log     *slog.Logger

	// ctl makes each state transition atomic with its gate flip, so a pause
	// and a resume can never interleave into state RUNNING with a closed
	// gate. Never held across I/O.
	ctl sync.Mutex

	cancel context.CancelFunc
	done   chan struct{} // closed when the job reaches a terminal state
}

func newController(
	job *domain.Job,
	fn WorkFunc,
	archive Archiver,
	backoffUnit time.Duration,
	restore *domain.Checkpoint,
	log *slog.Logger,
) *Controller {
	guard := NewErrorGuard(job.Config.AutoPauseThreshold)
	cp := newCheckpointStore(job.ID, len(job.Items), guard)
	cp.Restore(restore)

	return &Controller{
		job:     job,
		gate:    NewGate(),
		cp:      cp,
		retry:   RetryCoordinator{MaxRetries: job.Config.MaxRetries, Unit: backoffUnit},
		fn:      fn,
		archive: archive,
		log:     log.With("job_id", job.ID),
		done:    make(chan struct{}),
	}
}

// start begins asynchronous execution of the job.
func (c *Controller) start() {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	pool := newWorkerPool(c.job.Config, c.job.Items, c.gate, c.log, c.processItem)
	pool.start(ctx)

	go func() {
		pool.wait()
		c.finalize(ctx)
	}()
}

// processItem runs one item through the retry coordinator and records the
// terminal outcome. Returns false when the item was abandoned by a stop.
func (c *Controller) processItem(ctx context.Context, item *domain.WorkItem) bool {
	start := time.Now()
	out := c.retry.Run(ctx, c.gate, item, c.fn, c.cp.RecordAttempt)
	if out.Aborted {
		return false
	}
	metrics.ItemDuration.Observe(time.Since(start).Seconds())

	if out.Err != nil {
		c.log.Warn("item failed permanently",
			"item_id", item.ID,
			"attempts", out.Attempts,
			"transient", out.Transient,
			"error", out.Err)
		metrics.ItemsProcessed.WithLabelValues("failure").Inc()
		autoPause := c.cp.RecordFailure(domain.ItemError{
			ItemID:    item.ID,
			Message:   out.Err.Error(),
			Attempts:  out.Attempts,
			Transient: out.Transient,
		})
		if autoPause {
			c.autoPause()
		}
		return true
	}

	c.log.Debug("item processed", "item_id", item.ID, "attempts", out.Attempts)
	metrics.ItemsProcessed.WithLabelValues("success").Inc()
	c.cp.RecordSuccess(item.ID, out.Result)
	return true
}

// autoPause is the error guard's pause request. The guard has already
// guaranteed single execution per failure streak.
func (c *Controller) autoPause() {
	c.ctl.Lock()
	prev, ok := c.cp.Transition(domain.JobStatePaused, domain.PauseAuto)
	if ok {
		c.gate.Pause()
	}
	c.ctl.Unlock()
	if !ok {
		return
	}
	metrics.AutoPauses.Inc()
	c.log.Warn("auto-pause triggered by consecutive failures", "previous_state", prev)
	c.export(context.Background())
}

// finalize runs once the pool has drained or stopped.
func (c *Controller) finalize(ctx context.Context) {
	defer c.cancel()
	defer close(c.done)

	for {
		// A pause can land exactly as the last item completes; completion is
		// only valid from RUNNING, so wait out the pause first.
		if err := c.gate.Wait(ctx); err != nil || c.gate.Stopped() {
			// Stop() already moved the state machine; export best effort.
			c.export(ctx)
			c.log.Info("job stopped", "state", c.cp.State())
			return
		}

		// Export the completed checkpoint before committing the transition.
		// A failing finalization export is a controller fault, distinct from
		// per-item errors, and moves the job to the terminal ERROR state.
		if c.archive != nil {
			snap := c.cp.Snapshot()
			snap.State = domain.JobStateCompleted
			if err := c.archive.Archive(ctx, snap); err != nil {
				metrics.CheckpointExports.WithLabelValues("error").Inc()
				c.log.Error("finalization export failed", "error", err)
				if _, ok := c.cp.Transition(domain.JobStateError, ""); ok {
					return
				}
				continue // a pause raced the fault; wait it out
			}
			metrics.CheckpointExports.WithLabelValues("ok").Inc()
		}

		if _, ok := c.cp.Transition(domain.JobStateCompleted, ""); ok {
			c.log.Info("job completed")
			return
		}
		// A pause raced the completion; wait for resume and try again.
	}
}

// export hands a snapshot to the archive hook, best effort.
func (c *Controller) export(ctx context.Context) {
	if c.archive == nil {
		return
	}
	if err := c.archive.Archive(ctx, c.cp.Snapshot()); err != nil {
		metrics.CheckpointExports.WithLabelValues("error").Inc()
		c.log.Error("checkpoint export failed", "error", err)
		return
	}
	metrics.CheckpointExports.WithLabelValues("ok").Inc()
}

// Pause transitions RUNNING to PAUSED. Idempotent: returns the prior state
// and false if the job was already paused or terminal.
func (c *Controller) Pause() (domain.JobState, bool) {
	c.ctl.Lock()
	prev, ok := c.cp.Transition(domain.JobStatePaused, domain.PauseManual)
	if ok {
		c.gate.Pause()
	}
	c.ctl.Unlock()
	if !ok {
		return prev, false
	}
	c.log.Info("job paused", "kind", domain.PauseManual)
	c.export(context.Background())
	return prev, true
}

// Resume transitions PAUSED to RUNNING, releasing every worker blocked on the
// gate. Idempotent if not paused.
func (c *Controller) Resume() (domain.JobState, bool) {
	c.ctl.Lock()
	prev, ok := c.cp.Transition(domain.JobStateRunning, "")
	if ok {
		c.gate.Resume()
	}
	c.ctl.Unlock()
	if !ok {
		return prev, false
	}
	c.log.Info("job resumed")
	return prev, true
}

// Stop transitions RUNNING or PAUSED to the terminal STOPPED state. No
// further items are dispatched and no further retries are scheduled; an
// in-flight work-function call is allowed to finish.
func (c *Controller) Stop() (domain.JobState, bool) {
	c.ctl.Lock()
	prev, ok := c.cp.Transition(domain.JobStateStopped, "")
	if ok {
		c.gate.Stop()
	}
	c.ctl.Unlock()
	if !ok {
		return prev, false
	}
	c.log.Info("job stop requested", "previous_state", prev)
	return prev, true
}

// State returns the job's current state.
func (c *Controller) State() domain.JobState {
	return c.cp.State()
}

// Snapshot returns an immutable, internally consistent copy of the
// checkpoint.
func (c *Controller) Snapshot() *domain.Checkpoint {
	return c.cp.Snapshot()
}

// Done is closed once the job reaches a terminal state and the pool has
// drained.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}
