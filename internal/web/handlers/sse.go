package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/facemark/facemark/internal/checkin"
	"github.com/go-chi/chi/v5"
)

// isJobTerminal returns true if the job status is a terminal state.
func isJobTerminal(status checkin.JobStatus) bool {
	return status == checkin.JobStatusCompleted ||
		status == checkin.JobStatusFailed ||
		status == checkin.JobStatusCancelled
}

// setupSSEConnection validates the request, finds the job, and sets up SSE
// headers. On failure it writes an error response and returns false.
func setupSSEConnection(w http.ResponseWriter, r *http.Request, lookupJob func(string) checkin.SSEJob) (checkin.SSEJob, http.Flusher, bool) {
	jobID := chi.URLParam(r, "id")
	if jobID == "" {
		respondError(w, http.StatusBadRequest, "missing session ID")
		return nil, nil, false
	}

	job := lookupJob(jobID)
	if job == nil {
		respondError(w, http.StatusNotFound, "session not found")
		return nil, nil, false
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return nil, nil, false
	}

	return job, flusher, true
}

// streamSSEEvents streams job events until the job completes, the client
// disconnects, or the event channel closes.
func streamSSEEvents(w http.ResponseWriter, r *http.Request, lookupJob func(string) checkin.SSEJob, getInitialData func(checkin.SSEJob) any) {
	job, flusher, ok := setupSSEConnection(w, r, lookupJob)
	if !ok {
		return
	}

	eventCh := job.AddListener()
	defer job.RemoveListener(eventCh)

	sendSSEEvent(w, flusher, "status", getInitialData(job))

	// A finished job will not emit further events.
	if isJobTerminal(job.GetStatus()) {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-eventCh:
			if !ok {
				return
			}
			sendSSEEvent(w, flusher, event.Type, event)
			if isJobTerminal(job.GetStatus()) {
				return
			}
		}
	}
}

// sendSSEEvent writes a single SSE frame and flushes it.
func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) {
	jsonData, _ := json.Marshal(data)
	_, _ = io.WriteString(w, "event: "+eventType+"\n")
	_, _ = io.WriteString(w, "data: ")
	_, _ = io.Copy(w, bytes.NewReader(jsonData))
	_, _ = io.WriteString(w, "\n\n")
	flusher.Flush()
}
