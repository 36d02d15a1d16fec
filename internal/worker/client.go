// Package worker provides the HTTP client for the remote browser-automation
// worker pool.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/gildigital/aijobapply/internal/errors"
	"github.com/gildigital/aijobapply/internal/models"
)

// Client handles API calls to the submission worker. Call deadlines are
// carried by the request context, so probes and handoffs can be bounded
// independently by the dispatcher.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new worker API client
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{},
	}
}

// Health represents the worker pool's reported health and capacity.
type Health struct {
	Throttled          bool `json:"throttled"`
	ActiveTasks        int  `json:"activeTasks"`
	MaxConcurrentTasks int  `json:"maxConcurrentTasks"`
}

// Ready reports whether the worker can accept a new submission: it is not
// rate-throttled and has a free slot below its concurrency ceiling.
func (h *Health) Ready() bool {
	return !h.Throttled && h.ActiveTasks < h.MaxConcurrentTasks
}

// Callback describes where and how the worker reports the submission
// outcome back to this server.
type Callback struct {
	URL     string `json:"callbackUrl"`
	Secret  string `json:"secret"`
	QueueID int64  `json:"queueId"`
	JobID   *int64 `json:"jobId"`
	UserID  int64  `json:"userId"`
}

// SubmitRequest is the handoff body: the full payload plus the callback
// descriptor.
type SubmitRequest struct {
	Payload  *models.ApplicationPayload `json:"payload"`
	Callback Callback                   `json:"callback"`
}

// Status fetches the worker's health endpoint.
func (c *Client) Status(ctx context.Context) (*Health, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/status", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create status request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to probe worker: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read worker status: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("worker status error: status=%d, body=%s", resp.StatusCode, string(body))
	}

	var health Health
	if err := json.Unmarshal(body, &health); err != nil {
		return nil, fmt.Errorf("failed to parse worker status: %w", err)
	}

	return &health, nil
}

// Submit hands one submission to the worker. A 202 means only that the
// handoff was accepted; the automation itself runs out of process and
// reports through the callback. Any other status is a terminal rejection
// for this attempt.
func (c *Client) Submit(ctx context.Context, req *SubmitRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to encode submit request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/submit", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create submit request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to hand off submission: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return apperrors.NewWorkerRejectionError(resp.StatusCode, string(respBody))
	}

	return nil
}
