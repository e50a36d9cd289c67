package interfaces

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across services. Callers match with errors.Is.
var (
	// ErrInvalidTaskType is returned when a start-request names a task type
	// with no registered runner. Fatal to the request; no job is created.
	ErrInvalidTaskType = errors.New("invalid task type")

	// ErrJobNotFound is returned for status/stop/delete calls referencing
	// an unknown job ID.
	ErrJobNotFound = errors.New("job not found")

	// ErrAggregateNotFound is returned when the UI aggregate service has no
	// record for the requested (kind, task_id). Not retried.
	ErrAggregateNotFound = errors.New("aggregate not found")

	// ErrResourceNotAvailable is returned when the lock store is
	// unreachable. The caller must treat this as "lock not acquired".
	ErrResourceNotAvailable = errors.New("lock store not available")

	// ErrLockNotHeld is returned by storage when a conditional lock write
	// finds the lock held by another live holder.
	ErrLockNotHeld = errors.New("lock held by another holder")
)

// JobExecutionError reports a systemic failure during a job run or an
// illegal job state transition. Jobs carrying this error transition to
// FAILED (or the mutation is rejected, for transition violations).
type JobExecutionError struct {
	JobID  string
	Reason string
	Err    error
}

func (e *JobExecutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("job %s: %s: %v", e.JobID, e.Reason, e.Err)
	}
	return fmt.Sprintf("job %s: %s", e.JobID, e.Reason)
}

func (e *JobExecutionError) Unwrap() error {
	return e.Err
}

// NewJobExecutionError creates a JobExecutionError wrapping an optional cause
func NewJobExecutionError(jobID, reason string, err error) *JobExecutionError {
	return &JobExecutionError{JobID: jobID, Reason: reason, Err: err}
}

// AuthenticationError reports a 401/403 from the UI aggregate service.
// Never retried; requires operator intervention (token rotation).
type AuthenticationError struct {
	StatusCode int
	Endpoint   string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication rejected (%d) by %s", e.StatusCode, e.Endpoint)
}

// TransientFetchError reports a retryable network/5xx failure from the UI
// aggregate service. Surfaced only after the bounded retry budget is spent.
type TransientFetchError struct {
	StatusCode int
	Endpoint   string
	Attempts   int
	Err        error
}

func (e *TransientFetchError) Error() string {
	return fmt.Sprintf("transient fetch failure (%d) from %s after %d attempts: %v",
		e.StatusCode, e.Endpoint, e.Attempts, e.Err)
}

func (e *TransientFetchError) Unwrap() error {
	return e.Err
}
