// Package errors defines the categorized error taxonomy of the pipeline.
package errors

import (
	"fmt"
	"net/http"

	"github.com/gildigital/aijobapply/internal/types"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryUserInput represents user input errors (4xx)
	CategoryUserInput ErrorCategory = "user_input"
	// CategorySystem represents system errors (5xx)
	CategorySystem ErrorCategory = "system"
	// CategoryDatabase represents database errors
	CategoryDatabase ErrorCategory = "database"
	// CategoryDiscovery represents upstream search failures (non-fatal)
	CategoryDiscovery ErrorCategory = "discovery"
	// CategoryDedup represents clustering persistence failures
	CategoryDedup ErrorCategory = "dedup"
	// CategoryDispatch represents worker wake-up and handoff failures
	CategoryDispatch ErrorCategory = "dispatch"
	// CategoryCallback represents rejected worker callbacks
	CategoryCallback ErrorCategory = "callback"
	// CategoryNotFound represents not found errors
	CategoryNotFound ErrorCategory = "not_found"
	// CategoryAuthorization represents authorization errors
	CategoryAuthorization ErrorCategory = "authorization"
)

// CategorizedError represents an error with category and HTTP status code
type CategorizedError struct {
	Category   ErrorCategory
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// ToServiceError converts to a ServiceError
func (e *CategorizedError) ToServiceError() *types.ServiceError {
	return &types.ServiceError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string, id interface{}) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found: %v", resource, id),
		Details: map[string]interface{}{
			"resource": resource,
			"id":       id,
		},
	}
}

// NewInvalidParameterError creates an invalid parameter error
func NewInvalidParameterError(param string, reason string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryUserInput,
		StatusCode: http.StatusBadRequest,
		Code:       "INVALID_PARAMETER",
		Message:    fmt.Sprintf("invalid parameter '%s': %s", param, reason),
		Details: map[string]interface{}{
			"parameter": param,
			"reason":    reason,
		},
	}
}

// NewUnauthorizedCallbackError creates an error for a callback that failed
// shared-secret authentication. The referenced entry's state is untouched.
func NewUnauthorizedCallbackError() *CategorizedError {
	return &CategorizedError{
		Category:   CategoryCallback,
		StatusCode: http.StatusUnauthorized,
		Code:       "CALLBACK_UNAUTHORIZED",
		Message:    "callback rejected: invalid worker secret",
	}
}

// NewMalformedCallbackError creates an error for an unparseable callback body.
func NewMalformedCallbackError(reason string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryCallback,
		StatusCode: http.StatusBadRequest,
		Code:       "CALLBACK_MALFORMED",
		Message:    fmt.Sprintf("callback rejected: %s", reason),
	}
}

// NewWakeupFailedError creates the terminal error recorded when the worker
// never reports ready across the probe schedule.
func NewWakeupFailedError(probes int, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryDispatch,
		StatusCode: http.StatusServiceUnavailable,
		Code:       "WORKER_WAKEUP_FAILED",
		Message:    fmt.Sprintf("worker wake-up failed after %d health probes", probes),
		Cause:      cause,
		Details: map[string]interface{}{
			"probes": probes,
		},
	}
}

// NewWorkerRejectionError creates the terminal error recorded when a ready
// worker answers the handoff with a non-202 status.
func NewWorkerRejectionError(statusCode int, body string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryDispatch,
		StatusCode: http.StatusBadGateway,
		Code:       "WORKER_REJECTED",
		Message:    fmt.Sprintf("worker rejected handoff with status %d", statusCode),
		Details: map[string]interface{}{
			"workerStatus": statusCode,
			"body":         body,
		},
	}
}

// NewDedupError creates an error that aborts a clustering run.
func NewDedupError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryDedup,
		StatusCode: http.StatusInternalServerError,
		Code:       "DEDUP_FAILED",
		Message:    fmt.Sprintf("deduplication aborted during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewDiscoveryError creates a non-fatal upstream search error.
func NewDiscoveryError(source string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryDiscovery,
		StatusCode: http.StatusBadGateway,
		Code:       "DISCOVERY_FAILED",
		Message:    fmt.Sprintf("discovery source failed: %s", source),
		Cause:      cause,
		Details: map[string]interface{}{
			"source": source,
		},
	}
}

// NewDatabaseError creates a database error
func NewDatabaseError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryDatabase,
		StatusCode: http.StatusInternalServerError,
		Code:       "DATABASE_ERROR",
		Message:    fmt.Sprintf("database error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewInternalError creates an internal server error
func NewInternalError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusInternalServerError,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		Cause:      cause,
	}
}

// Categorize maps an arbitrary error onto the taxonomy.
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}

	if catErr, ok := err.(*CategorizedError); ok {
		return catErr
	}

	if svcErr, ok := err.(*types.ServiceError); ok {
		return categorizeServiceError(svcErr)
	}

	return NewInternalError("unexpected error", err)
}

func categorizeServiceError(err *types.ServiceError) *CategorizedError {
	status := http.StatusInternalServerError
	category := CategorySystem

	switch err.Code {
	case "NOT_FOUND", "QUEUE_ENTRY_NOT_FOUND", "LINK_NOT_FOUND":
		status = http.StatusNotFound
		category = CategoryNotFound
	case "INVALID_PARAMETER", "INVALID_OUTCOME":
		status = http.StatusBadRequest
		category = CategoryUserInput
	case "CALLBACK_UNAUTHORIZED":
		status = http.StatusUnauthorized
		category = CategoryCallback
	case "DAILY_LIMIT_REACHED":
		status = http.StatusTooManyRequests
		category = CategoryUserInput
	}

	return &CategorizedError{
		Category:   category,
		StatusCode: status,
		Code:       err.Code,
		Message:    err.Message,
		Details:    err.Details,
	}
}

// GetHTTPStatusCode returns the HTTP status code for an error
func GetHTTPStatusCode(err error) int {
	if catErr := Categorize(err); catErr != nil {
		return catErr.StatusCode
	}
	return http.StatusInternalServerError
}

// IsRetryable reports whether an error is worth retrying. Dispatch and
// callback failures are terminal by contract; only infrastructure errors
// qualify.
func IsRetryable(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	switch catErr.Category {
	case CategoryDatabase, CategoryDiscovery:
		return true
	case CategorySystem:
		return catErr.StatusCode == http.StatusServiceUnavailable ||
			catErr.StatusCode == http.StatusGatewayTimeout
	default:
		return false
	}
}
