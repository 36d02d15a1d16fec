package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/gildigital/aijobapply/internal/queue"
)

// handleEnqueue handles POST /api/queue requests.
func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var input queue.EnqueueInput
	if err := parseJSONBody(r, &input); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body: "+err.Error(), nil)
		return
	}

	queueID, err := s.queueService.Enqueue(r.Context(), &input)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"queueId": queueID,
		"status":  "pending",
	})
}

// handleGetStatus handles GET /api/queue/{id} requests.
func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	queueID, ok := parseID(w, r, "id")
	if !ok {
		return
	}

	status, err := s.queueService.GetStatus(r.Context(), queueID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, status)
}

// handleGetStats handles GET /api/users/{id}/stats requests. Queue counts
// come from the queue store; appliedToday comes from the permanent records,
// the durable counterpart of the Redis cap counter.
func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseID(w, r, "id")
	if !ok {
		return
	}

	stats, err := s.queueService.GetStats(r.Context(), userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	appliedToday, err := s.applications.CountToday(r.Context(), userID, startOfUTCDay(time.Now()))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, struct {
		*queue.Stats
		AppliedToday int `json:"appliedToday"`
	}{stats, appliedToday})
}

// handleListLinks handles GET /api/users/{id}/links requests.
func (s *Server) handleListLinks(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseID(w, r, "id")
	if !ok {
		return
	}

	links, err := s.links.ListByUser(r.Context(), userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"userId": userID,
		"links":  links,
		"count":  len(links),
	})
}

// handleListEvents handles GET /api/users/{id}/events requests.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseID(w, r, "id")
	if !ok {
		return
	}

	if s.events == nil {
		respondError(w, http.StatusNotFound, ErrCodeNotFound, "Submission history is not enabled", nil)
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 || parsed > 500 {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "limit must be between 1 and 500", nil)
			return
		}
		limit = parsed
	}

	events, err := s.events.RecentForUser(r.Context(), userID, limit)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"userId": userID,
		"events": events,
		"count":  len(events),
	})
}

// parseID extracts a positive integer path variable, writing a 400 response
// on failure.
func parseID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	vars := mux.Vars(r)
	id, err := strconv.ParseInt(vars[name], 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid "+name+" parameter", nil)
		return 0, false
	}
	return id, true
}
