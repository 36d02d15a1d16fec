package worker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	apperrors "github.com/gildigital/aijobapply/internal/errors"
	"github.com/gildigital/aijobapply/internal/models"
)

func TestHealthReady(t *testing.T) {
	tests := []struct {
		name     string
		health   Health
		expected bool
	}{
		{
			name:     "idle worker",
			health:   Health{Throttled: false, ActiveTasks: 0, MaxConcurrentTasks: 3},
			expected: true,
		},
		{
			name:     "throttled worker",
			health:   Health{Throttled: true, ActiveTasks: 0, MaxConcurrentTasks: 3},
			expected: false,
		},
		{
			name:     "worker at capacity",
			health:   Health{Throttled: false, ActiveTasks: 3, MaxConcurrentTasks: 3},
			expected: false,
		},
		{
			name:     "one free slot",
			health:   Health{Throttled: false, ActiveTasks: 2, MaxConcurrentTasks: 3},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.health.Ready(); got != tt.expected {
				t.Errorf("Ready() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/status" {
			t.Errorf("Expected /status, got %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(Health{Throttled: false, ActiveTasks: 1, MaxConcurrentTasks: 3})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	health, err := client.Status(context.Background())
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if health.ActiveTasks != 1 || !health.Ready() {
		t.Errorf("Unexpected health: %+v", health)
	}
}

func TestStatus_NonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "waking up", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	if _, err := client.Status(context.Background()); err == nil {
		t.Fatal("Expected error for non-200 status response")
	}
}

func TestStatus_ContextDeadline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		json.NewEncoder(w).Encode(Health{})
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	client := NewClient(server.URL)
	if _, err := client.Status(ctx); err == nil {
		t.Fatal("Expected deadline error")
	}
}

func TestSubmit_Accepted(t *testing.T) {
	var received SubmitRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/submit" {
			t.Errorf("Expected /submit, got %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("Failed to decode submit body: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	err := client.Submit(context.Background(), &SubmitRequest{
		Payload: &models.ApplicationPayload{QueueID: 42},
		Callback: Callback{
			URL:     "https://apply.example.com/api/worker/update-job-status",
			Secret:  "test-secret",
			QueueID: 42,
			UserID:  7,
		},
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if received.Callback.QueueID != 42 || received.Callback.Secret != "test-secret" {
		t.Errorf("Worker did not receive the callback descriptor: %+v", received.Callback)
	}
	if received.Payload == nil || received.Payload.QueueID != 42 {
		t.Errorf("Worker did not receive the payload: %+v", received.Payload)
	}
}

func TestSubmit_NonAcceptedIsRejection(t *testing.T) {
	// Anything but 202 is a rejection, including 200
	for _, status := range []int{http.StatusOK, http.StatusTooManyRequests, http.StatusInternalServerError} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))

		client := NewClient(server.URL)
		err := client.Submit(context.Background(), &SubmitRequest{})
		server.Close()

		if err == nil {
			t.Errorf("Expected rejection for status %d", status)
			continue
		}
		if apperrors.Categorize(err).Code != "WORKER_REJECTED" {
			t.Errorf("Expected WORKER_REJECTED for status %d, got %v", status, err)
		}
	}
}
