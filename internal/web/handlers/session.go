package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/facemark/facemark/internal/checkin"
	"github.com/facemark/facemark/internal/liveness"
	"github.com/go-chi/chi/v5"
)

// SessionHandler drives check-in sessions over the API.
type SessionHandler struct {
	manager      *checkin.Manager
	orchestrator *checkin.Orchestrator
	pattern      func() liveness.Pattern
}

// NewSessionHandler creates a new session handler. The pattern function is
// called once per session so randomized patterns stay fixed per attempt.
func NewSessionHandler(manager *checkin.Manager, orchestrator *checkin.Orchestrator, pattern func() liveness.Pattern) *SessionHandler {
	return &SessionHandler{
		manager:      manager,
		orchestrator: orchestrator,
		pattern:      pattern,
	}
}

// patternStage is the wire form of one flash stage.
type patternStage struct {
	Color      string `json:"color"`
	DurationMS int64  `json:"duration_ms"`
}

func patternStages(p liveness.Pattern) []patternStage {
	stages := make([]patternStage, 0, len(p.Stages))
	for _, s := range p.Stages {
		stages = append(stages, patternStage{
			Color:      s.Hex(),
			DurationMS: s.Duration.Milliseconds(),
		})
	}
	return stages
}

// sessionResponse is the wire form of a check-in job.
type sessionResponse struct {
	ID        string            `json:"id"`
	Status    checkin.JobStatus `json:"status"`
	Pattern   []patternStage    `json:"pattern,omitempty"`
	StartedAt time.Time         `json:"started_at"`
	Result    *checkin.Result   `json:"result,omitempty"`
	Error     string            `json:"error,omitempty"`
}

func sessionFromJob(job *checkin.CheckinJob, includePattern bool) sessionResponse {
	resp := sessionResponse{
		ID:        job.ID,
		Status:    job.GetStatus(),
		StartedAt: job.StartedAt,
		Result:    job.GetResult(),
		Error:     job.GetError(),
	}
	if includePattern {
		resp.Pattern = patternStages(job.Pattern)
	}
	return resp
}

// Start handles POST /api/v1/session/start. The camera is exclusive: a
// second start while a session is mid-pattern returns 409.
func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	job, err := h.manager.Create(h.pattern())
	if err != nil {
		if errors.Is(err, checkin.ErrSessionBusy) {
			respondError(w, http.StatusConflict, "a check-in session is already in progress")
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	go func() {
		defer h.manager.Release(job.ID)
		h.orchestrator.Run(context.Background(), job)
	}()

	log.Printf("Check-in session %s started", sanitizeForLog(job.ID))
	respondJSON(w, http.StatusCreated, sessionFromJob(job, true))
}

// Result handles GET /api/v1/session/{id}/result.
func (h *SessionHandler) Result(w http.ResponseWriter, r *http.Request) {
	job := h.manager.Get(chi.URLParam(r, "id"))
	if job == nil {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}
	respondJSON(w, http.StatusOK, sessionFromJob(job, false))
}

// Events handles GET /api/v1/session/{id}/events: an SSE stream of stage
// stimuli and the final decision.
func (h *SessionHandler) Events(w http.ResponseWriter, r *http.Request) {
	streamSSEEvents(w, r,
		func(id string) checkin.SSEJob {
			if job := h.manager.Get(id); job != nil {
				return job
			}
			return nil
		},
		func(job checkin.SSEJob) any {
			return map[string]any{"status": job.GetStatus()}
		},
	)
}

// Cancel handles DELETE /api/v1/session/{id}.
func (h *SessionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	job := h.manager.Get(chi.URLParam(r, "id"))
	if job == nil {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}

	if !isJobTerminal(job.GetStatus()) {
		job.Cancel()
	}
	h.manager.Release(job.ID)
	respondJSON(w, http.StatusOK, sessionFromJob(job, false))
}
