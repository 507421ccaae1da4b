package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/minhqn/ocrflow/internal/core/domain"
	"github.com/minhqn/ocrflow/internal/engine"
	"github.com/minhqn/ocrflow/internal/history"
)

// Server exposes the engine's control surface over HTTP. It holds no engine
// logic of its own: every handler delegates to the registry, falling back to
// the archive for jobs whose registry entry was already reclaimed.
type Server struct {
	registry *engine.Registry
	archive  history.Archiver
	defaults domain.JobConfig // applied to submissions that carry no config
	log      *slog.Logger
	server   *http.Server
}

// NewServer creates the control API server. defaults is the job config for
// submissions that omit their own, normally the operator's engine settings
// from config.yaml; a zero value falls back to the built-in defaults.
// archive may be nil.
func NewServer(registry *engine.Registry, archive history.Archiver, port int, defaults domain.JobConfig, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	if defaults.Workers == 0 {
		defaults = domain.DefaultJobConfig()
	}
	mux := http.NewServeMux()
	s := &Server{
		registry: registry,
		archive:  archive,
		defaults: defaults,
		log:      log,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
	}

	mux.HandleFunc("POST /api/jobs", s.handleSubmit)
	mux.HandleFunc("GET /api/jobs", s.handleList)
	mux.HandleFunc("GET /api/jobs/{id}", s.handleStatus)
	mux.HandleFunc("POST /api/jobs/{id}/pause", s.handlePause)
	mux.HandleFunc("POST /api/jobs/{id}/resume", s.handleResume)
	mux.HandleFunc("POST /api/jobs/{id}/stop", s.handleStop)
	mux.HandleFunc("POST /api/jobs/{id}/ack", s.handleAcknowledge)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

type submitRequest struct {
	Items  []domain.WorkItem `json:"items"`
	Config *domain.JobConfig `json:"config,omitempty"`
}

type submitResponse struct {
	JobID string `json:"job_id"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	cfg := s.defaults
	if req.Config != nil {
		cfg = *req.Config
	}

	jobID, err := s.registry.Submit(r.Context(), engine.SubmitRequest{
		Items:  req.Items,
		Config: cfg,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusAccepted, submitResponse{JobID: jobID})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.List())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")

	status, err := s.registry.Status(jobID)
	if err == nil {
		writeJSON(w, http.StatusOK, status)
		return
	}
	if !errors.Is(err, engine.ErrJobNotFound) {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	// Reclaimed jobs are served from the archive.
	if s.archive != nil {
		cp, archErr := s.archive.Get(r.Context(), jobID)
		if archErr == nil {
			writeJSON(w, http.StatusOK, &engine.JobStatus{
				JobID:      jobID,
				State:      cp.State,
				IsPaused:   cp.State == domain.JobStatePaused,
				IsStopped:  cp.State == domain.JobStateStopped,
				Checkpoint: cp,
			})
			return
		}
		if !errors.Is(archErr, history.ErrNotFound) {
			writeError(w, http.StatusInternalServerError, archErr)
			return
		}
	}
	writeError(w, http.StatusNotFound, engine.ErrJobNotFound)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.control(w, r, s.registry.Pause)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.control(w, r, s.registry.Resume)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.control(w, r, s.registry.Stop)
}

func (s *Server) control(
	w http.ResponseWriter,
	r *http.Request,
	op func(jobID string) (engine.ControlResult, error),
) {
	result, err := op(r.PathValue("id"))
	if errors.Is(err, engine.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	err := s.registry.Acknowledge(r.PathValue("id"))
	switch {
	case errors.Is(err, engine.ErrJobNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, engine.ErrJobNotTerminal):
		writeError(w, http.StatusConflict, err)
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
	default:
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
