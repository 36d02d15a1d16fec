// Package types provides common type definitions for the submission pipeline.
package types

// LinkStatus represents the processing state of a discovered posting.
type LinkStatus string

const (
	// LinkPending represents a discovered posting awaiting processing
	LinkPending LinkStatus = "pending"
	// LinkProcessing represents a posting currently being matched
	LinkProcessing LinkStatus = "processing"
	// LinkProcessed represents a posting that finished matching
	LinkProcessed LinkStatus = "processed"
	// LinkFailed represents a posting whose processing failed
	LinkFailed LinkStatus = "failed"
	// LinkSkipped represents a posting deliberately not pursued
	LinkSkipped LinkStatus = "skipped"
	// LinkApplied represents a posting that led to a submitted application
	LinkApplied LinkStatus = "applied"
)

// QueueStatus represents the state of a submission attempt.
type QueueStatus string

const (
	// QueuePending represents an entry waiting to be dispatched
	QueuePending QueueStatus = "pending"
	// QueueProcessing represents an entry handed to a worker
	QueueProcessing QueueStatus = "processing"
	// QueueCompleted represents a successfully submitted application
	QueueCompleted QueueStatus = "completed"
	// QueueFailed represents a terminally failed attempt
	QueueFailed QueueStatus = "failed"
	// QueueSkipped represents an attempt the worker declined to perform
	QueueSkipped QueueStatus = "skipped"
	// QueueStandby represents an entry parked by the daily submission cap
	QueueStandby QueueStatus = "standby"
)

// IsTerminal reports whether no further transitions are permitted from s.
func (s QueueStatus) IsTerminal() bool {
	switch s {
	case QueueCompleted, QueueFailed, QueueSkipped:
		return true
	default:
		return false
	}
}

// Outcome is the result a worker reports through the callback endpoint.
type Outcome string

const (
	// OutcomeSuccess means the application was submitted
	OutcomeSuccess Outcome = "success"
	// OutcomeSkipped means the worker declined the submission
	OutcomeSkipped Outcome = "skipped"
	// OutcomeFailed means the automation failed
	OutcomeFailed Outcome = "failed"
)

// Valid reports whether o is one of the known outcomes.
func (o Outcome) Valid() bool {
	return o == OutcomeSuccess || o == OutcomeSkipped || o == OutcomeFailed
}

// ServiceError represents a structured error from the service layer
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface
func (e *ServiceError) Error() string {
	return e.Code + ": " + e.Message
}
