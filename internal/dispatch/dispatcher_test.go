package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "github.com/gildigital/aijobapply/internal/errors"
	"github.com/gildigital/aijobapply/internal/logging"
	"github.com/gildigital/aijobapply/internal/models"
	"github.com/gildigital/aijobapply/internal/retry"
	"github.com/gildigital/aijobapply/internal/storage"
	"github.com/gildigital/aijobapply/internal/types"
	"github.com/gildigital/aijobapply/internal/worker"
)

type mockWorker struct {
	statuses    []*worker.Health
	statusErr   error
	statusCalls int
	submitErr   error
	submitCalls int
	submitted   []*worker.SubmitRequest
}

func (m *mockWorker) Status(ctx context.Context) (*worker.Health, error) {
	call := m.statusCalls
	m.statusCalls++
	if m.statusErr != nil {
		return nil, m.statusErr
	}
	if call < len(m.statuses) {
		return m.statuses[call], nil
	}
	return m.statuses[len(m.statuses)-1], nil
}

func (m *mockWorker) Submit(ctx context.Context, req *worker.SubmitRequest) error {
	m.submitCalls++
	m.submitted = append(m.submitted, req)
	return m.submitErr
}

type mockQueueStore struct {
	payload        *models.ApplicationPayload
	payloadErr     error
	processingErr  error
	failures       []types.QueueStatus
	failureDetails []string
}

func (m *mockQueueStore) GetPayload(ctx context.Context, queueID int64) (*models.ApplicationPayload, error) {
	return m.payload, m.payloadErr
}

func (m *mockQueueStore) MarkProcessing(ctx context.Context, queueID int64) error {
	return m.processingErr
}

func (m *mockQueueStore) FinalizeFailure(ctx context.Context, queueID int64, status types.QueueStatus, errText string) (bool, error) {
	m.failures = append(m.failures, status)
	m.failureDetails = append(m.failureDetails, errText)
	return true, nil
}

func noSleep(ctx context.Context, d time.Duration) error {
	return ctx.Err()
}

func testDispatcher(w *mockWorker, q *mockQueueStore) *Dispatcher {
	return NewDispatcher(w, q, nil, Config{
		ProbeTimeout:   time.Second,
		SubmitTimeout:  time.Second,
		CallbackURL:    "https://apply.example.com/api/worker/update-job-status",
		CallbackSecret: "test-secret",
		Sleep:          noSleep,
	}, logging.NewLogger(logging.LevelError, logging.FormatText))
}

func pendingEntry() *models.QueueEntry {
	return &models.QueueEntry{ID: 42, UserID: 7, Status: types.QueuePending}
}

func ready() *worker.Health {
	return &worker.Health{Throttled: false, ActiveTasks: 0, MaxConcurrentTasks: 3}
}

func busy() *worker.Health {
	return &worker.Health{Throttled: true, ActiveTasks: 3, MaxConcurrentTasks: 3}
}

func TestDispatch_ReadyWorkerAcceptsHandoff(t *testing.T) {
	w := &mockWorker{statuses: []*worker.Health{ready()}}
	q := &mockQueueStore{payload: &models.ApplicationPayload{QueueID: 42}}

	d := testDispatcher(w, q)
	if err := d.Dispatch(context.Background(), pendingEntry()); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	if w.submitCalls != 1 {
		t.Errorf("Expected 1 submit call, got %d", w.submitCalls)
	}
	if len(q.failures) != 0 {
		t.Errorf("Successful handoff should not finalize the entry, got %v", q.failures)
	}

	cb := w.submitted[0].Callback
	if cb.QueueID != 42 || cb.UserID != 7 || cb.Secret != "test-secret" {
		t.Errorf("Callback not populated from entry: %+v", cb)
	}
}

func TestDispatch_WakesAfterInitialBusyProbes(t *testing.T) {
	w := &mockWorker{statuses: []*worker.Health{busy(), busy(), ready()}}
	q := &mockQueueStore{payload: &models.ApplicationPayload{QueueID: 42}}

	d := testDispatcher(w, q)
	if err := d.Dispatch(context.Background(), pendingEntry()); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	if w.statusCalls != 3 {
		t.Errorf("Expected 3 health probes, got %d", w.statusCalls)
	}
	if w.submitCalls != 1 {
		t.Errorf("Expected 1 submit call, got %d", w.submitCalls)
	}
}

func TestDispatch_BusyThroughScheduleFailsEntry(t *testing.T) {
	w := &mockWorker{statuses: []*worker.Health{busy()}}
	q := &mockQueueStore{payload: &models.ApplicationPayload{QueueID: 42}}

	d := testDispatcher(w, q)
	err := d.Dispatch(context.Background(), pendingEntry())
	if err == nil {
		t.Fatal("Expected wake-up failure")
	}

	catErr := apperrors.Categorize(err)
	if catErr.Code != "WORKER_WAKEUP_FAILED" {
		t.Errorf("Expected WORKER_WAKEUP_FAILED, got %s", catErr.Code)
	}

	// One probe per schedule entry, and the worker never saw the payload
	if w.statusCalls != len(WakeSchedule) {
		t.Errorf("Expected %d probes, got %d", len(WakeSchedule), w.statusCalls)
	}
	if w.submitCalls != 0 {
		t.Errorf("No submit call should happen after failed wake-up, got %d", w.submitCalls)
	}

	if len(q.failures) != 1 || q.failures[0] != types.QueueFailed {
		t.Errorf("Entry should be finalized as failed, got %v", q.failures)
	}
}

func TestDispatch_ProbeErrorsCountAsNotReady(t *testing.T) {
	w := &mockWorker{statusErr: errors.New("connection refused")}
	q := &mockQueueStore{payload: &models.ApplicationPayload{QueueID: 42}}

	d := testDispatcher(w, q)
	err := d.Dispatch(context.Background(), pendingEntry())
	if err == nil {
		t.Fatal("Expected wake-up failure")
	}
	if w.statusCalls != len(WakeSchedule) {
		t.Errorf("Probe errors should consume the schedule, got %d probes", w.statusCalls)
	}
}

func TestDispatch_WorkerRejectionFailsEntry(t *testing.T) {
	w := &mockWorker{
		statuses:  []*worker.Health{ready()},
		submitErr: apperrors.NewWorkerRejectionError(503, "at capacity"),
	}
	q := &mockQueueStore{payload: &models.ApplicationPayload{QueueID: 42}}

	d := testDispatcher(w, q)
	err := d.Dispatch(context.Background(), pendingEntry())
	if err == nil {
		t.Fatal("Expected rejection error")
	}

	if len(q.failures) != 1 || q.failures[0] != types.QueueFailed {
		t.Errorf("Rejected handoff should finalize the entry as failed, got %v", q.failures)
	}
}

func TestDispatch_TerminalEntryIsSkipped(t *testing.T) {
	w := &mockWorker{statuses: []*worker.Health{ready()}}
	q := &mockQueueStore{
		payload:       &models.ApplicationPayload{QueueID: 42},
		processingErr: storage.ErrEntryTerminal,
	}

	d := testDispatcher(w, q)
	err := d.Dispatch(context.Background(), pendingEntry())
	if !errors.Is(err, ErrAlreadyFinalized) {
		t.Fatalf("Terminal entry should surface ErrAlreadyFinalized, got %v", err)
	}
	if w.submitCalls != 0 {
		t.Errorf("No handoff for a terminal entry, got %d submit calls", w.submitCalls)
	}
	if len(q.failures) != 0 {
		t.Errorf("A terminal entry must not be re-finalized, got %v", q.failures)
	}
}

func TestDispatch_CancelledContextStopsWakeLoop(t *testing.T) {
	w := &mockWorker{statuses: []*worker.Health{busy()}}
	q := &mockQueueStore{payload: &models.ApplicationPayload{QueueID: 42}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := testDispatcher(w, q)
	if err := d.Dispatch(ctx, pendingEntry()); err == nil {
		t.Fatal("Expected error from cancelled context")
	}
	if w.submitCalls != 0 {
		t.Errorf("Expected no submit after cancellation, got %d", w.submitCalls)
	}
}

func TestWakeSchedule(t *testing.T) {
	expected := retry.Schedule{
		5 * time.Second,
		10 * time.Second,
		15 * time.Second,
		20 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}

	if len(WakeSchedule) != len(expected) {
		t.Fatalf("Expected %d wake delays, got %d", len(expected), len(WakeSchedule))
	}
	for i, d := range expected {
		if WakeSchedule[i] != d {
			t.Errorf("WakeSchedule[%d] = %v, want %v", i, WakeSchedule[i], d)
		}
	}
	if WakeSchedule.Total() != 110*time.Second {
		t.Errorf("Total wake budget = %v, want 110s", WakeSchedule.Total())
	}
}
