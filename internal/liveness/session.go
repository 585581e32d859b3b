package liveness

import (
	"sync"
	"time"
)

// SessionState is the lifecycle state of a capture session.
type SessionState int

// Capture session lifecycle: Idle -> AwaitingBaseline -> Capturing(stage i)
// -> Decided. Transitions are guarded; anything else is a StateError.
const (
	StateIdle SessionState = iota
	StateAwaitingBaseline
	StateCapturing
	StateDecided
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingBaseline:
		return "awaiting_baseline"
	case StateCapturing:
		return "capturing"
	case StateDecided:
		return "decided"
	default:
		return "unknown"
	}
}

// Session is one liveness check attempt: a fixed pattern, the baseline
// frames and the per-stage frames appended as the pattern progresses.
// Sessions are short-lived and never persisted; only the decision and its
// feature values outlive them.
//
// A session is not safe for concurrent frame appends: stages must be
// presented and captured strictly in order, and the orchestrator owns the
// camera for the whole attempt. The mutex only guards state reads from
// other goroutines (status endpoints).
type Session struct {
	mu sync.Mutex

	id        string
	pattern   Pattern
	state     SessionState
	stage     int
	baseline  []Frame
	stages    [][]Frame
	startedAt time.Time
}

// NewSession validates the pattern and creates an idle session.
func NewSession(id string, pattern Pattern) (*Session, error) {
	if err := pattern.Validate(); err != nil {
		return nil, err
	}
	return &Session{
		id:      id,
		pattern: pattern,
		state:   StateIdle,
		stages:  make([][]Frame, len(pattern.Stages)),
	}, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Pattern returns the fixed flash pattern of this session.
func (s *Session) Pattern() Pattern { return s.pattern }

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// StartedAt returns when Begin was called, zero before that.
func (s *Session) StartedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedAt
}

// Begin moves the session from Idle to AwaitingBaseline.
func (s *Session) Begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		return &StateError{From: s.state, Op: "begin"}
	}
	s.state = StateAwaitingBaseline
	s.startedAt = time.Now()
	return nil
}

// AppendBaseline records a pre-flash frame. Only valid while awaiting the
// baseline.
func (s *Session) AppendBaseline(f Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAwaitingBaseline {
		return &StateError{From: s.state, Op: "append baseline frame"}
	}
	s.baseline = append(s.baseline, f)
	return nil
}

// StartStages moves from AwaitingBaseline to Capturing stage 0. At least
// one baseline frame must have been recorded.
func (s *Session) StartStages() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAwaitingBaseline {
		return &StateError{From: s.state, Op: "start stages"}
	}
	if len(s.baseline) == 0 {
		return ErrInsufficientData
	}
	s.state = StateCapturing
	s.stage = 0
	return nil
}

// CurrentStage returns the index and definition of the stage being captured.
func (s *Session) CurrentStage() (int, Stage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateCapturing || s.stage >= len(s.pattern.Stages) {
		return 0, Stage{}, &StateError{From: s.state, Op: "read current stage"}
	}
	return s.stage, s.pattern.Stages[s.stage], nil
}

// AppendFrame records a frame for the stage currently being captured.
func (s *Session) AppendFrame(f Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateCapturing || s.stage >= len(s.pattern.Stages) {
		return &StateError{From: s.state, Op: "append stage frame"}
	}
	s.stages[s.stage] = append(s.stages[s.stage], f)
	return nil
}

// AdvanceStage moves to the next pattern stage. Returns true when the last
// stage has been completed; the session then only accepts MarkDecided.
func (s *Session) AdvanceStage() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateCapturing {
		return false, &StateError{From: s.state, Op: "advance stage"}
	}
	s.stage++
	if s.stage >= len(s.pattern.Stages) {
		return true, nil
	}
	return false, nil
}

// Frames returns the captured baseline and per-stage frames for evaluation.
func (s *Session) Frames() (baseline []Frame, stages [][]Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baseline, s.stages
}

// MarkDecided terminates the session. Valid from any non-idle state so a
// timed-out or cancelled session can be closed cleanly mid-pattern.
func (s *Session) MarkDecided() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateIdle || s.state == StateDecided {
		return &StateError{From: s.state, Op: "mark decided"}
	}
	s.state = StateDecided
	return nil
}
