package engine

import (
	"context"
	"errors"
	"sync"
)

// ErrStopped is returned from Wait once the gate has been stopped.
var ErrStopped = errors.New("job stopped")

// Gate is the pause/stop signal shared by all workers of one job. Any number
// of workers can block on Wait while paused; Resume wakes all of them at once
// by closing the resume channel. Stop is one-way and releases every waiter.
type Gate struct {
	mu      sync.Mutex
	paused  bool
	stopped bool
	resume  chan struct{} // closed while running, swapped out on pause
	stop    chan struct{} // closed exactly once on Stop
}

// NewGate creates a gate in the open (running) position.
func NewGate() *Gate {
	g := &Gate{
		resume: make(chan struct{}),
		stop:   make(chan struct{}),
	}
	close(g.resume)
	return g
}

// Pause closes the gate. Returns false if already paused or stopped.
func (g *Gate) Pause() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stopped || g.paused {
		return false
	}
	g.paused = true
	g.resume = make(chan struct{})
	return true
}

// Resume reopens the gate and wakes all waiters. Returns false if not paused.
func (g *Gate) Resume() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stopped || !g.paused {
		return false
	}
	g.paused = false
	close(g.resume)
	return true
}

// Stop permanently closes the gate. Waiters are released and observe
// ErrStopped. Returns false if already stopped.
func (g *Gate) Stop() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stopped {
		return false
	}
	g.stopped = true
	close(g.stop)
	if g.paused {
		// Release paused waiters; Wait re-checks stopped before returning.
		g.paused = false
		close(g.resume)
	}
	return true
}

// Paused reports whether the gate is currently closed for pause.
func (g *Gate) Paused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.paused
}

// Stopped reports whether Stop has been called.
func (g *Gate) Stopped() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stopped
}

// StopChan exposes the stop signal for interruptible waits such as retry
// backoff timers.
func (g *Gate) StopChan() <-chan struct{} {
	return g.stop
}

// Wait blocks while the gate is paused. It returns nil once the gate is open,
// ErrStopped if the job was stopped, or the context error if ctx ends first.
func (g *Gate) Wait(ctx context.Context) error {
	for {
		g.mu.Lock()
		if g.stopped {
			g.mu.Unlock()
			return ErrStopped
		}
		if !g.paused {
			g.mu.Unlock()
			return nil
		}
		resume := g.resume
		g.mu.Unlock()

		select {
		case <-resume:
			// Re-check: a stop may have raced the resume.
		case <-g.stop:
			return ErrStopped
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
