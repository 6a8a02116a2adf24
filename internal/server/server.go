// Package server exposes the HTTP intake surface: task submission and
// a health probe. Accepted submissions are recorded durably and handed
// to the round controller asynchronously.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/taskforge/taskforge/models"
	"github.com/taskforge/taskforge/store"
	"github.com/taskforge/taskforge/types"
)

// TaskProcessor runs the round recorded for a task.
type TaskProcessor interface {
	Process(ctx context.Context, taskID string) error
}

// Server handles task intake.
type Server struct {
	store        store.TaskStore
	processor    TaskProcessor
	sharedSecret string
	logger       *slog.Logger

	// now is swappable for tests.
	now func() time.Time
}

// New builds the intake server.
func New(st store.TaskStore, processor TaskProcessor, cfg types.ServerConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:        st,
		processor:    processor,
		sharedSecret: cfg.SharedSecret,
		logger:       logger,
		now:          time.Now,
	}
}

// Routes assembles the router.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleHealth)
	r.Post("/submit-task", s.handleSubmitTask)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "taskforge",
	})
}

// handleSubmitTask validates a submission, records it, and starts round
// processing in the background. The 200 response means "accepted", not
// "finished".
func (s *Server) handleSubmitTask(w http.ResponseWriter, r *http.Request) {
	var req models.SubmitTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON payload.")
		return
	}

	if s.sharedSecret == "" {
		s.logger.Error("submission rejected, shared secret not configured")
		writeError(w, http.StatusInternalServerError, "Server misconfiguration: missing shared secret.")
		return
	}
	if req.Secret != s.sharedSecret {
		writeError(w, http.StatusUnauthorized, "Invalid secret.")
		return
	}

	if err := models.ValidateStruct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid submission: "+err.Error())
		return
	}

	checks := req.Checks
	if checks == nil {
		checks = []string{}
	}
	checksJSON, err := json.Marshal(checks)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to encode checks.")
		return
	}
	atts := req.Attachments
	if atts == nil {
		atts = []models.Attachment{}
	}
	attsJSON, err := json.Marshal(atts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to encode attachments.")
		return
	}

	// created_at doubles as the round deadline anchor, so each
	// submission restarts the clock.
	err = s.store.UpsertTask(r.Context(), req.Task, map[string]any{
		"email":          req.Email,
		"round":          req.Round,
		"nonce":          req.Nonce,
		"brief":          req.Brief,
		"evaluation_url": req.EvaluationURL,
		"checks":         string(checksJSON),
		"attachments":    string(attsJSON),
		"created_at":     models.FormatDBTime(s.now()),
	})
	if err != nil {
		s.logger.Error("failed to record submission", "task", req.Task, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to record task.")
		return
	}

	s.logger.Info("task accepted", "task", req.Task, "round", req.Round)
	go s.process(req.Task)

	writeJSON(w, http.StatusOK, models.SubmitTaskResponse{
		Status:  "success",
		Message: "Task accepted and processing started.",
	})
}

// process runs the round detached from the request lifecycle.
func (s *Server) process(taskID string) {
	if err := s.processor.Process(context.Background(), taskID); err != nil {
		var te *types.TaskError
		if errors.As(err, &te) {
			s.logger.Error("task processing failed",
				"task", taskID, "code", te.Code, "error", err)
			return
		}
		s.logger.Error("task processing failed", "task", taskID, "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, models.SubmitTaskResponse{Status: "error", Message: message})
}
