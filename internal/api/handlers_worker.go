package api

import (
	"crypto/subtle"
	"net/http"

	apperrors "github.com/gildigital/aijobapply/internal/errors"
	"github.com/gildigital/aijobapply/internal/queue"
	"github.com/gildigital/aijobapply/internal/types"
)

// workerCallbackRequest is the body a remote worker posts when a submission
// attempt finishes.
type workerCallbackRequest struct {
	Secret  string        `json:"secret"`
	QueueID int64         `json:"queueId"`
	JobID   *int64        `json:"jobId"`
	UserID  int64         `json:"userId"`
	Status  types.Outcome `json:"status"`
	Error   string        `json:"error,omitempty"`
	Reason  string        `json:"reason,omitempty"`
}

// handleWorkerCallback handles POST /api/worker/update-job-status requests.
// The shared secret is checked before anything touches queue state, and the
// underlying service is idempotent per queue id, so repeated deliveries of
// the same outcome are safe.
func (s *Server) handleWorkerCallback(w http.ResponseWriter, r *http.Request) {
	var req workerCallbackRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondServiceError(w, apperrors.NewMalformedCallbackError(err.Error()))
		return
	}

	if subtle.ConstantTimeCompare([]byte(req.Secret), []byte(s.config.CallbackSecret)) != 1 {
		respondServiceError(w, apperrors.NewUnauthorizedCallbackError())
		return
	}

	if req.QueueID <= 0 {
		respondServiceError(w, apperrors.NewMalformedCallbackError("queueId is required"))
		return
	}

	applied, err := s.queueService.HandleCallback(r.Context(), &queue.CallbackInput{
		QueueID: req.QueueID,
		JobID:   req.JobID,
		UserID:  req.UserID,
		Outcome: req.Status,
		Error:   req.Error,
		Reason:  req.Reason,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}

	// applied=false tells the worker this delivery was an idempotent no-op
	// against an already-terminal entry.
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"queueId": req.QueueID,
		"applied": applied,
	})
}
