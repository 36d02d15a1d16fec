package api

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/gildigital/aijobapply/internal/errors"
	"github.com/gildigital/aijobapply/internal/types"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error types.ServiceError `json:"error"`
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, statusCode int, code, message string, details map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Error: types.ServiceError{
			Code:    code,
			Message: message,
			Details: details,
		},
	}

	json.NewEncoder(w).Encode(response)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// parseJSONBody parses JSON request body.
func parseJSONBody(r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

// Common error codes
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// respondServiceError maps a service-layer error onto an HTTP response using
// the categorized error taxonomy.
func respondServiceError(w http.ResponseWriter, err error) {
	catErr := apperrors.Categorize(err)

	// Internal categories never leak their message to clients.
	message := catErr.Message
	details := catErr.Details
	if catErr.StatusCode >= http.StatusInternalServerError {
		message = "An internal error occurred"
		details = nil
	}

	respondError(w, catErr.StatusCode, catErr.Code, message, details)
}
