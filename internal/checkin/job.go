// Package checkin orchestrates a check-in attempt: it drives the flash
// pattern, pulls camera frames, runs the liveness evaluation and, on a live
// decision, matches the face against enrolled identities and records
// attendance.
package checkin

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/facemark/facemark/internal/constants"
	"github.com/facemark/facemark/internal/liveness"
	"github.com/google/uuid"
)

// ErrSessionBusy is returned when a check-in start is rejected because the
// camera is held by another active session.
var ErrSessionBusy = errors.New("a check-in session is already in progress")

// JobStatus represents the status of an async check-in job.
type JobStatus string

// JobStatus constants define the lifecycle states of a check-in job.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Outcome is the user-visible result of a completed check-in.
type Outcome string

// Check-in outcomes. Liveness failures and matcher misses are outcomes, not
// errors: the attempt ran to completion and produced an answer.
const (
	OutcomeLiveMarked        Outcome = "live_marked"
	OutcomeLiveUnmatched     Outcome = "live_unmatched"
	OutcomeMatchedUnrecorded Outcome = "matched_unrecorded"
	OutcomeSpoof             Outcome = "spoof"
	OutcomeNoFace            Outcome = "no_face"
	OutcomeInsufficientData  Outcome = "insufficient_data"
	OutcomeCaptureTimeout    Outcome = "capture_timeout"
)

// MatchedIdentity is the enrolled identity a live face resolved to.
type MatchedIdentity struct {
	ID         int64   `json:"id"`
	Name       string  `json:"name"`
	RollNumber string  `json:"roll_number"`
	ClassName  string  `json:"class_name,omitempty"`
	Confidence float64 `json:"confidence"`
	Distance   float64 `json:"distance"`
}

// Result is the outcome of a finished check-in attempt.
type Result struct {
	Outcome       Outcome            `json:"outcome"`
	Live          bool               `json:"live"`
	Decision      *liveness.Decision `json:"decision,omitempty"`
	Identity      *MatchedIdentity   `json:"identity,omitempty"`
	AttendanceID  int64              `json:"attendance_id,omitempty"`
	AlreadyMarked bool               `json:"already_marked,omitempty"`
}

// JobEvent represents an event from a check-in job.
type JobEvent struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// EventBroadcaster provides listener management and event broadcasting for
// async jobs. Embed this in job structs to get AddListener, RemoveListener,
// and SendEvent methods.
type EventBroadcaster struct {
	cancel    context.CancelFunc
	listeners []chan JobEvent
	mu        sync.RWMutex
}

// AddListener adds an event listener.
func (b *EventBroadcaster) AddListener() chan JobEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan JobEvent, constants.EventChannelBuffer)
	b.listeners = append(b.listeners, ch)
	return ch
}

// RemoveListener removes an event listener.
func (b *EventBroadcaster) RemoveListener(ch chan JobEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, listener := range b.listeners {
		if listener == ch {
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			close(ch)
			return
		}
	}
}

// SendEvent sends an event to all listeners.
func (b *EventBroadcaster) SendEvent(event JobEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, listener := range b.listeners {
		select {
		case listener <- event:
		default:
			// Listener buffer full, skip.
		}
	}
}

// BindCancel attaches the context cancel function so Cancel can abort the
// running capture loop.
func (b *EventBroadcaster) BindCancel(cancel context.CancelFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cancel = cancel
}

// CheckinJob represents one check-in attempt from start to decision.
type CheckinJob struct {
	EventBroadcaster

	ID          string           `json:"id"`
	Status      JobStatus        `json:"status"`
	Pattern     liveness.Pattern `json:"-"`
	Error       string           `json:"error,omitempty"`
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
	Result      *Result          `json:"result,omitempty"`
}

// GetStatus returns the current job status (implements SSEJob).
func (j *CheckinJob) GetStatus() JobStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// GetResult returns the result, nil until the job completes.
func (j *CheckinJob) GetResult() *Result {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Result
}

// GetError returns the failure message, empty unless the job failed.
func (j *CheckinJob) GetError() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Error
}

func (j *CheckinJob) setStatus(status JobStatus) {
	j.mu.Lock()
	j.Status = status
	j.mu.Unlock()
}

// complete stores the result and moves the job to completed.
func (j *CheckinJob) complete(result *Result) {
	now := time.Now()
	j.mu.Lock()
	j.Status = JobStatusCompleted
	j.Result = result
	j.CompletedAt = &now
	j.mu.Unlock()
	j.SendEvent(JobEvent{Type: "completed", Data: result})
}

// fail records an internal failure. Liveness and matcher outcomes never land
// here; this is for transport and storage breakage.
func (j *CheckinJob) fail(err error) {
	now := time.Now()
	j.mu.Lock()
	j.Status = JobStatusFailed
	j.Error = err.Error()
	j.CompletedAt = &now
	j.mu.Unlock()
	j.SendEvent(JobEvent{Type: "failed", Message: err.Error()})
}

// Cancel aborts the job.
func (j *CheckinJob) Cancel() {
	j.mu.Lock()
	cancel := j.cancel
	j.Status = JobStatusCancelled
	j.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	j.SendEvent(JobEvent{Type: "cancelled", Message: "Check-in cancelled by user"})
}

// SSEJob is the interface required to stream job events via SSE.
type SSEJob interface {
	AddListener() chan JobEvent
	RemoveListener(ch chan JobEvent)
	GetStatus() JobStatus
}

// Manager manages check-in jobs. The camera is a single exclusive resource:
// at most one job may be pending or running at a time.
type Manager struct {
	jobs   map[string]*CheckinJob
	active string
	mu     sync.RWMutex
}

// NewManager creates a new job manager.
func NewManager() *Manager {
	return &Manager{
		jobs: make(map[string]*CheckinJob),
	}
}

// Create registers a new check-in job holding the camera. Returns
// ErrSessionBusy while another job is still pending or running.
func (m *Manager) Create(pattern liveness.Pattern) (*CheckinJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != "" {
		if job, ok := m.jobs[m.active]; ok {
			status := job.GetStatus()
			if status == JobStatusPending || status == JobStatusRunning {
				return nil, ErrSessionBusy
			}
		}
	}

	job := &CheckinJob{
		ID:        uuid.New().String(),
		Status:    JobStatusPending,
		Pattern:   pattern,
		StartedAt: time.Now(),
	}
	m.jobs[job.ID] = job
	m.active = job.ID
	return job, nil
}

// Get retrieves a job by ID.
func (m *Manager) Get(id string) *CheckinJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.jobs[id]
}

// Release gives the camera back once the job reaches a terminal state.
func (m *Manager) Release(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == id {
		m.active = ""
	}
}

// Delete removes a finished job.
func (m *Manager) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, id)
	if m.active == id {
		m.active = ""
	}
}
