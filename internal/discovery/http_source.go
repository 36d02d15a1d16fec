package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gildigital/aijobapply/internal/models"
)

// HTTPSource queries a JSON search endpoint that returns normalized job
// listings. Most search providers sit behind an internal normalizer exposing
// this shape, so one client covers them all.
type HTTPSource struct {
	name    string
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPSource creates a search source. apiKey may be empty for
// unauthenticated endpoints.
func NewHTTPSource(name, baseURL, apiKey string) *HTTPSource {
	return &HTTPSource{
		name:    name,
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{},
	}
}

// Name returns the source identifier recorded on discovered links.
func (s *HTTPSource) Name() string {
	return s.name
}

// searchResponse is the normalized search endpoint's response body.
type searchResponse struct {
	Results []*models.JobListing `json:"results"`
}

// Search queries the endpoint for listings matching the query.
func (s *HTTPSource) Search(ctx context.Context, userID int64, query string) ([]*models.JobListing, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("userId", strconv.FormatInt(userID, 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create search request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("search endpoint returned status %d: %s", resp.StatusCode, string(body))
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	// Listings without an apply URL cannot become links; drop them here so
	// downstream code can assume the field is set.
	listings := make([]*models.JobListing, 0, len(parsed.Results))
	for _, listing := range parsed.Results {
		if listing == nil || listing.ApplyURL == "" {
			continue
		}
		if listing.Source == "" {
			listing.Source = s.name
		}
		listings = append(listings, listing)
	}

	return listings, nil
}
