package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	apperrors "github.com/gildigital/aijobapply/internal/errors"
	"github.com/gildigital/aijobapply/internal/storage"
)

// handleGetApplication handles GET /api/applications/{id} requests.
func (s *Server) handleGetApplication(w http.ResponseWriter, r *http.Request) {
	appID, ok := parseID(w, r, "id")
	if !ok {
		return
	}

	app, err := s.applications.GetByID(r.Context(), appID)
	if err != nil {
		if errors.Is(err, storage.ErrApplicationNotFound) {
			respondServiceError(w, apperrors.NewNotFoundError("application", appID))
			return
		}
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, app)
}

// handleListApplications handles GET /api/users/{id}/applications requests.
func (s *Server) handleListApplications(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseID(w, r, "id")
	if !ok {
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

	apps, err := s.applications.ListByUser(r.Context(), userID, limit)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"userId":       userID,
		"applications": apps,
		"count":        len(apps),
	})
}

// startOfUTCDay floors a time to the daily cap window boundary.
func startOfUTCDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
