package liveness

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the evaluator and the capture session.
// They are user-visible outcomes, not transport failures: callers map them
// to check-in results instead of HTTP 5xx responses.
var (
	// ErrNoFaceDetected is returned when no face region is available for
	// the liveness computation.
	ErrNoFaceDetected = errors.New("no face detected")

	// ErrInsufficientData is returned when too few stages produced valid
	// frames to make a trustworthy decision.
	ErrInsufficientData = errors.New("insufficient stage data")

	// ErrCaptureTimeout is returned when a stage's frames did not arrive
	// within the configured grace period.
	ErrCaptureTimeout = errors.New("stage capture timed out")
)

// ConfigurationError reports invalid pattern or threshold setup.
// It is fatal at startup and never produced mid-session.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// StateError reports an invalid capture session transition, such as
// appending frames to a session that has already been decided.
type StateError struct {
	From SessionState
	Op   string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("invalid session transition: cannot %s in state %s", e.Op, e.From)
}
