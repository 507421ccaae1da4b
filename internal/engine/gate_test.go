package engine

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestGate_OpenByDefault(t *testing.T) {
	g := NewGate()

	if g.Paused() {
		t.Error("new gate should not be paused")
	}
	if g.Stopped() {
		t.Error("new gate should not be stopped")
	}
	if err := g.Wait(context.Background()); err != nil {
		t.Errorf("Wait on open gate returned %v", err)
	}
}

func TestGate_PauseBlocksUntilResume(t *testing.T) {
	g := NewGate()
	if !g.Pause() {
		t.Fatal("Pause on running gate should succeed")
	}

	released := make(chan error, 3)
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			released <- g.Wait(context.Background())
		}()
	}

	select {
	case err := <-released:
		t.Fatalf("waiter released while paused: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	if !g.Resume() {
		t.Fatal("Resume on paused gate should succeed")
	}
	wg.Wait()
	close(released)
	for err := range released {
		if err != nil {
			t.Errorf("waiter returned %v after resume", err)
		}
	}
}

func TestGate_PauseResumeIdempotent(t *testing.T) {
	g := NewGate()

	if g.Resume() {
		t.Error("Resume on running gate should be a no-op")
	}
	if !g.Pause() {
		t.Error("first Pause should succeed")
	}
	if g.Pause() {
		t.Error("second Pause should be a no-op")
	}
	if !g.Resume() {
		t.Error("Resume on paused gate should succeed")
	}
	if g.Resume() {
		t.Error("second Resume should be a no-op")
	}
}

func TestGate_StopReleasesPausedWaiters(t *testing.T) {
	g := NewGate()
	g.Pause()

	errCh := make(chan error, 1)
	go func() {
		errCh <- g.Wait(context.Background())
	}()

	time.Sleep(10 * time.Millisecond)
	if !g.Stop() {
		t.Fatal("Stop should succeed")
	}

	select {
	case err := <-errCh:
		if err != ErrStopped {
			t.Errorf("expected ErrStopped, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter not released by Stop")
	}

	if g.Stop() {
		t.Error("second Stop should be a no-op")
	}
	if g.Pause() {
		t.Error("Pause after Stop should be a no-op")
	}
	if err := g.Wait(context.Background()); err != ErrStopped {
		t.Errorf("Wait after Stop returned %v, expected ErrStopped", err)
	}
}

func TestGate_WaitHonorsContext(t *testing.T) {
	g := NewGate()
	g.Pause()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := g.Wait(ctx); err != context.DeadlineExceeded {
		t.Errorf("expected context.DeadlineExceeded, got %v", err)
	}
}
