package agent

import (
	"errors"
	"fmt"
)

var (
	// ErrRunTimeout marks a run that did not reach a terminal state within
	// the configured bound. No partial answer is surfaced.
	ErrRunTimeout = errors.New("agent run timed out")

	// ErrThreadBusy marks a submission to a thread that already has a run in
	// flight. The caller may retry after the active run completes.
	ErrThreadBusy = errors.New("thread already has a run in flight")

	// ErrRejected marks an attempt to ground a query the policy declined.
	// The orchestrator refuses these outright.
	ErrRejected = errors.New("query was rejected by policy")
)

// GroundingError means the detection stage succeeded but the agent stage
// failed. Stage names the lifecycle step that broke.
type GroundingError struct {
	Stage string
	Err   error
}

func (e *GroundingError) Error() string {
	return fmt.Sprintf("grounding failed at %s: %v", e.Stage, e.Err)
}

func (e *GroundingError) Unwrap() error {
	return e.Err
}

// ServiceError is an HTTP-level failure at the agents service boundary.
type ServiceError struct {
	Status  int
	Code    string
	Message string
}

func (e *ServiceError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("agents service error: %s (status=%d code=%s)", e.Message, e.Status, e.Code)
	}
	return fmt.Sprintf("agents service error: %s (status=%d)", e.Message, e.Status)
}
