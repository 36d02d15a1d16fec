package api

import (
	"net/http"
	"strings"
)

// discoverRequest is the body for a discovery run.
type discoverRequest struct {
	Query string `json:"query"`
}

// handleDiscover handles POST /api/users/{id}/discover requests. It fans the
// query out to every configured source, persists new links, and finishes
// with a dedup pass over the user's links.
func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseID(w, r, "id")
	if !ok {
		return
	}

	var req discoverRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body: "+err.Error(), nil)
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "query is required", nil)
		return
	}

	result, err := s.discoveryService.Discover(r.Context(), userID, req.Query)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// handleDedup handles POST /api/users/{id}/dedup requests: a standalone
// clustering pass over the user's links without a preceding search.
func (s *Server) handleDedup(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseID(w, r, "id")
	if !ok {
		return
	}

	result, err := s.dedupService.Run(r.Context(), userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}
