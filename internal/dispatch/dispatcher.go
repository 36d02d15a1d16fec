// Package dispatch hands queued submissions to the remote worker pool. The
// handoff is split into a bounded wake-up phase and a bounded submit call;
// the multi-minute browser automation itself runs out of process and reports
// back through the callback endpoint, so nothing here waits on it.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/gildigital/aijobapply/internal/errors"
	"github.com/gildigital/aijobapply/internal/logging"
	"github.com/gildigital/aijobapply/internal/models"
	"github.com/gildigital/aijobapply/internal/retry"
	"github.com/gildigital/aijobapply/internal/storage"
	"github.com/gildigital/aijobapply/internal/types"
	"github.com/gildigital/aijobapply/internal/worker"
)

// ErrAlreadyFinalized reports that an entry reached a terminal state before
// the handoff could claim it, so no submission was attempted. Callers that
// reserved resources for the attempt should return them.
var ErrAlreadyFinalized = errors.New("queue entry already finalized")

// WakeSchedule is the delay before each health probe. Six probes, roughly
// three minutes end to end, sized for a cold-started worker container.
var WakeSchedule = retry.Schedule{
	5 * time.Second,
	10 * time.Second,
	15 * time.Second,
	20 * time.Second,
	30 * time.Second,
	30 * time.Second,
}

// WorkerAPI is the worker-pool surface the dispatcher calls.
type WorkerAPI interface {
	Status(ctx context.Context) (*worker.Health, error)
	Submit(ctx context.Context, req *worker.SubmitRequest) error
}

// QueueStore is the queue persistence surface the dispatcher needs.
type QueueStore interface {
	GetPayload(ctx context.Context, queueID int64) (*models.ApplicationPayload, error)
	MarkProcessing(ctx context.Context, queueID int64) error
	FinalizeFailure(ctx context.Context, queueID int64, status types.QueueStatus, errText string) (bool, error)
}

// EventSink records submission audit events. Append errors are logged and
// swallowed by the dispatcher.
type EventSink interface {
	Append(ctx context.Context, queueID, userID int64, event, detail string) error
}

// Config holds dispatcher timing and callback parameters.
type Config struct {
	// ProbeTimeout bounds each individual health probe.
	ProbeTimeout time.Duration
	// SubmitTimeout bounds the handoff call.
	SubmitTimeout time.Duration
	// CallbackURL is the absolute URL workers post outcomes to.
	CallbackURL string
	// CallbackSecret authenticates those callbacks.
	CallbackSecret string
	// Schedule overrides WakeSchedule, for tests.
	Schedule retry.Schedule
	// Sleep overrides the inter-probe wait, for tests.
	Sleep retry.Sleeper
}

// Dispatcher wakes the worker pool and hands off one queue entry at a time.
// It never retries a failed dispatch; retry policy belongs to the outer
// scheduling loop.
type Dispatcher struct {
	worker WorkerAPI
	queue  QueueStore
	events EventSink
	cfg    Config
	logger *logging.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(w WorkerAPI, queue QueueStore, events EventSink, cfg Config, logger *logging.Logger) *Dispatcher {
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = 10 * time.Second
	}
	if cfg.SubmitTimeout == 0 {
		cfg.SubmitTimeout = 30 * time.Second
	}
	if cfg.Schedule == nil {
		cfg.Schedule = WakeSchedule
	}
	if cfg.Sleep == nil {
		cfg.Sleep = retry.Wait
	}

	return &Dispatcher{
		worker: w,
		queue:  queue,
		events: events,
		cfg:    cfg,
		logger: logger,
	}
}

// Dispatch wakes the worker and hands off the given entry. On wake-up
// failure or worker rejection the entry is finalized as failed and the
// categorized error is returned; ErrAlreadyFinalized means a callback beat
// the handoff; a nil return means the worker accepted the handoff and the
// entry is now processing, awaiting its callback.
func (d *Dispatcher) Dispatch(ctx context.Context, entry *models.QueueEntry) error {
	log := d.logger.WithFields(map[string]interface{}{
		"queueId": entry.ID,
		"userId":  entry.UserID,
	})

	if err := d.awaitReady(ctx, log); err != nil {
		d.failEntry(ctx, entry, err)
		return err
	}

	payload, err := d.queue.GetPayload(ctx, entry.ID)
	if err != nil {
		wrapped := apperrors.NewDatabaseError("load payload", err)
		d.failEntry(ctx, entry, wrapped)
		return wrapped
	}

	// Claim the entry before the handoff so a concurrent callback or a
	// second dispatcher sees it as non-pending.
	if err := d.queue.MarkProcessing(ctx, entry.ID); err != nil {
		if errors.Is(err, storage.ErrEntryTerminal) {
			log.Warn("Skipping dispatch: entry no longer pending")
			return ErrAlreadyFinalized
		}
		return apperrors.NewDatabaseError("mark processing", err)
	}

	req := &worker.SubmitRequest{
		Payload: payload,
		Callback: worker.Callback{
			URL:     d.cfg.CallbackURL,
			Secret:  d.cfg.CallbackSecret,
			QueueID: entry.ID,
			JobID:   entry.JobID,
			UserID:  entry.UserID,
		},
	}

	submitCtx, cancel := context.WithTimeout(ctx, d.cfg.SubmitTimeout)
	defer cancel()

	if err := d.worker.Submit(submitCtx, req); err != nil {
		d.failEntry(ctx, entry, err)
		return err
	}

	d.appendEvent(ctx, entry, storage.EventDispatched, "handoff accepted")
	log.Info("Handoff accepted by worker")
	return nil
}

// awaitReady polls the worker's health endpoint following the wake
// schedule. Each probe is individually time-boxed; probe errors count as
// not ready. Returns a wake-up failure once the schedule is exhausted.
func (d *Dispatcher) awaitReady(ctx context.Context, log *logging.Logger) error {
	var lastErr error

	for i, delay := range d.cfg.Schedule {
		if err := d.cfg.Sleep(ctx, delay); err != nil {
			return apperrors.NewWakeupFailedError(i, err)
		}

		probeCtx, cancel := context.WithTimeout(ctx, d.cfg.ProbeTimeout)
		health, err := d.worker.Status(probeCtx)
		cancel()

		if err != nil {
			lastErr = err
			log.WithError(err).Debugf("Health probe %d failed", i+1)
			continue
		}
		if health.Ready() {
			return nil
		}

		lastErr = fmt.Errorf("worker busy: throttled=%v active=%d max=%d",
			health.Throttled, health.ActiveTasks, health.MaxConcurrentTasks)
		log.Debugf("Health probe %d: worker not ready", i+1)
	}

	return apperrors.NewWakeupFailedError(len(d.cfg.Schedule), lastErr)
}

// failEntry finalizes the entry as failed with the dispatch error text. The
// queue write is best effort on top of an already-failed dispatch, so a
// persistence error here is logged, not returned.
func (d *Dispatcher) failEntry(ctx context.Context, entry *models.QueueEntry, cause error) {
	if _, err := d.queue.FinalizeFailure(ctx, entry.ID, types.QueueFailed, cause.Error()); err != nil {
		d.logger.WithError(err).Errorf("Failed to record dispatch failure for queue entry %d", entry.ID)
		return
	}
	d.appendEvent(ctx, entry, storage.EventFailed, cause.Error())
}

func (d *Dispatcher) appendEvent(ctx context.Context, entry *models.QueueEntry, event, detail string) {
	if d.events == nil {
		return
	}
	if err := d.events.Append(ctx, entry.ID, entry.UserID, event, detail); err != nil {
		d.logger.WithError(err).Warn("Failed to append submission event")
	}
}
