package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/minhqn/ocrflow/internal/api"
	"github.com/minhqn/ocrflow/internal/core/domain"
	"github.com/minhqn/ocrflow/internal/engine"
	"github.com/minhqn/ocrflow/internal/history/memory"
	"github.com/minhqn/ocrflow/internal/processing"
)

// setupStack wires the full service path with an in-memory archive and a fake
// OCR backend: HTTP API -> registry -> workers -> OCR client -> backend.
func setupStack(t *testing.T, backend http.HandlerFunc) (*httptest.Server, *memory.Archive) {
	t.Helper()

	ocrBackend := httptest.NewServer(backend)
	t.Cleanup(ocrBackend.Close)

	archive := memory.NewArchive()
	ocr := processing.NewClient(processing.Config{Endpoint: ocrBackend.URL, Timeout: 5 * time.Second})

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := engine.NewRegistry(ocr.Process, archive, log)
	registry.SetBackoffUnit(time.Millisecond)

	server := api.NewServer(registry, archive, 0, domain.DefaultJobConfig(), log)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = registry.Shutdown(ctx)
	})

	return ts, archive
}

func submitDocuments(t *testing.T, ts *httptest.Server, n int, cfg domain.JobConfig) string {
	t.Helper()
	items := make([]domain.WorkItem, n)
	for i := range items {
		items[i] = domain.WorkItem{
			ID:      fmt.Sprintf("doc-%d", i),
			Name:    fmt.Sprintf("doc-%d.pdf", i),
			Payload: []byte("%PDF-1.4 test document"),
		}
	}
	body, _ := json.Marshal(map[string]any{"items": items, "config": cfg})

	resp, err := http.Post(ts.URL+"/api/jobs", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("submit returned %d: %s", resp.StatusCode, raw)
	}
	var out struct {
		JobID string `json:"job_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	return out.JobID
}

func fetchStatus(t *testing.T, ts *httptest.Server, jobID string) *engine.JobStatus {
	t.Helper()
	resp, err := http.Get(ts.URL + "/api/jobs/" + jobID)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status returned %d", resp.StatusCode)
	}
	var st engine.JobStatus
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	return &st
}

func waitState(t *testing.T, ts *httptest.Server, jobID string, want domain.JobState) *engine.JobStatus {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		st := fetchStatus(t, ts, jobID)
		if st.State == want {
			return st
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s never reached %s", jobID, want)
	return nil
}

func TestEndToEnd_BatchCompletes(t *testing.T) {
	ts, archive := setupStack(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(processing.PageResult{
			Text:       "recognized " + r.Header.Get("X-Document-ID"),
			Confidence: 0.95,
			Pages:      1,
		})
	})

	jobID := submitDocuments(t, ts, 12, domain.JobConfig{
		Workers: 3, Parallel: true, MaxRetries: 2, AutoPauseThreshold: 5,
	})

	st := waitState(t, ts, jobID, domain.JobStateCompleted)
	if st.Checkpoint.SuccessCount != 12 || st.Checkpoint.ErrorCount != 0 {
		t.Errorf("counts = %d/%d, want 12/0",
			st.Checkpoint.SuccessCount, st.Checkpoint.ErrorCount)
	}

	// The terminal export must already be in the archive.
	cp, err := archive.Get(context.Background(), jobID)
	if err != nil {
		t.Fatalf("archive.Get: %v", err)
	}
	if cp.State != domain.JobStateCompleted || cp.SuccessCount != 12 {
		t.Errorf("archived checkpoint = %s with %d successes", cp.State, cp.SuccessCount)
	}
}

func TestEndToEnd_FlakyBackendRecovers(t *testing.T) {
	flaky := map[string]bool{"doc-1": true, "doc-4": true, "doc-7": true}
	var attempts sync.Map
	ts, _ := setupStack(t, func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Document-ID")
		n, _ := attempts.LoadOrStore(id, new(atomic.Int64))
		// The first two attempts of the flaky documents fail with a
		// retryable fault.
		if flaky[id] && n.(*atomic.Int64).Add(1) <= 2 {
			http.Error(w, "upstream timeout", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(processing.PageResult{Text: "ok", Pages: 1})
	})

	jobID := submitDocuments(t, ts, 10, domain.JobConfig{
		Workers: 2, Parallel: true, MaxRetries: 3, AutoPauseThreshold: 10,
	})

	st := waitState(t, ts, jobID, domain.JobStateCompleted)
	if st.Checkpoint.SuccessCount != 10 {
		t.Errorf("SuccessCount = %d, want all 10 after retries", st.Checkpoint.SuccessCount)
	}
}

func TestEndToEnd_BrokenBackendAutoPauses(t *testing.T) {
	ts, archive := setupStack(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "ocr engine crashed", http.StatusInternalServerError)
	})

	jobID := submitDocuments(t, ts, 20, domain.JobConfig{
		Workers: 1, Parallel: false, MaxRetries: 0, AutoPauseThreshold: 5,
	})

	st := waitState(t, ts, jobID, domain.JobStatePaused)
	if st.Checkpoint.PauseKind != domain.PauseAuto {
		t.Errorf("PauseKind = %q, want auto", st.Checkpoint.PauseKind)
	}
	if st.Checkpoint.ConsecutiveErrors != 5 {
		t.Errorf("ConsecutiveErrors = %d, want 5", st.Checkpoint.ConsecutiveErrors)
	}

	// The pause exported a checkpoint an operator can inspect while deciding
	// whether to resume or stop.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := archive.Get(context.Background(), jobID); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("paused checkpoint never archived")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// Operator decides the batch is hopeless and stops it.
	resp, err := http.Post(ts.URL+"/api/jobs/"+jobID+"/stop", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	waitState(t, ts, jobID, domain.JobStateStopped)
}

func TestEndToEnd_GracefulShutdown(t *testing.T) {
	release := make(chan struct{})
	ts, _ := setupStack(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-time.After(5 * time.Second):
		}
		json.NewEncoder(w).Encode(processing.PageResult{Text: "ok", Pages: 1})
	})
	defer close(release)

	// A second registry handle is not exposed here, so submit and then stop
	// through the API the way an operator-facing drain would.
	jobID := submitDocuments(t, ts, 8, domain.JobConfig{
		Workers: 2, Parallel: true, MaxRetries: 0, AutoPauseThreshold: 5,
	})

	time.Sleep(20 * time.Millisecond)
	resp, err := http.Post(ts.URL+"/api/jobs/"+jobID+"/stop", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	st := waitState(t, ts, jobID, domain.JobStateStopped)
	if st.Checkpoint.ProcessedCount >= 8 {
		t.Errorf("ProcessedCount = %d, expected a partial batch", st.Checkpoint.ProcessedCount)
	}
}
