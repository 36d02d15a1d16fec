// Package queue implements the durable application queue: enqueue, status
// polling, and the authoritative finalization performed when a worker
// callback arrives.
package queue

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/gildigital/aijobapply/internal/errors"
	"github.com/gildigital/aijobapply/internal/logging"
	"github.com/gildigital/aijobapply/internal/models"
	"github.com/gildigital/aijobapply/internal/storage"
	"github.com/gildigital/aijobapply/internal/types"
)

// Store is the persistence surface the queue service needs. Implemented by
// *storage.QueueRepository.
type Store interface {
	EnqueueWithPayload(ctx context.Context, entry *models.QueueEntry, payload *models.ApplicationPayload) (int64, error)
	GetByID(ctx context.Context, queueID int64) (*models.QueueEntry, error)
	GetPayload(ctx context.Context, queueID int64) (*models.ApplicationPayload, error)
	FinalizeSuccess(ctx context.Context, queueID int64, app *models.Application) (int64, bool, error)
	FinalizeFailure(ctx context.Context, queueID int64, status types.QueueStatus, errText string) (bool, error)
	CountByStatusForUser(ctx context.Context, userID int64) (map[types.QueueStatus]int, error)
}

// UsageTracker releases daily-cap slots when attempts end without a
// submission. Implemented by *storage.DailyUsageTracker.
type UsageTracker interface {
	Release(ctx context.Context, userID int64) error
}

// EventSink records submission audit events.
type EventSink interface {
	Append(ctx context.Context, queueID, userID int64, event, detail string) error
}

// Service coordinates queue operations.
type Service struct {
	store  Store
	usage  UsageTracker
	events EventSink
	logger *logging.Logger
}

// NewService creates a queue service. usage and events may be nil in
// contexts that do not track caps or audit history.
func NewService(store Store, usage UsageTracker, events EventSink, logger *logging.Logger) *Service {
	return &Service{
		store:  store,
		usage:  usage,
		events: events,
		logger: logger,
	}
}

// EnqueueInput describes one submission to queue.
type EnqueueInput struct {
	UserID   int64                      `json:"userId"`
	JobID    *int64                     `json:"jobId"`
	Priority int                        `json:"priority"`
	Payload  *models.ApplicationPayload `json:"payload"`
}

// Enqueue creates a pending entry and its payload atomically and returns
// the queue id. jobId stays null here: the permanent record is created only
// by a success callback, never at enqueue time.
func (s *Service) Enqueue(ctx context.Context, input *EnqueueInput) (int64, error) {
	if input.UserID == 0 {
		return 0, apperrors.NewInvalidParameterError("userId", "required")
	}
	if input.Payload == nil {
		return 0, apperrors.NewInvalidParameterError("payload", "required")
	}

	entry := &models.QueueEntry{
		UserID:   input.UserID,
		JobID:    input.JobID,
		Priority: input.Priority,
		Status:   types.QueuePending,
	}

	queueID, err := s.store.EnqueueWithPayload(ctx, entry, input.Payload)
	if err != nil {
		return 0, apperrors.NewDatabaseError("enqueue", err)
	}

	s.appendEvent(ctx, queueID, input.UserID, storage.EventEnqueued, "")
	s.logger.WithFields(map[string]interface{}{
		"queueId":  queueID,
		"userId":   input.UserID,
		"priority": input.Priority,
	}).Info("Submission enqueued")

	return queueID, nil
}

// StatusResult is the polling view of one entry.
type StatusResult struct {
	QueueID     int64             `json:"queueId"`
	Status      types.QueueStatus `json:"status"`
	JobID       *int64            `json:"jobId,omitempty"`
	Error       *string           `json:"error,omitempty"`
	ProcessedAt *time.Time        `json:"processedAt,omitempty"`
}

// GetStatus returns the current state of a queue entry.
func (s *Service) GetStatus(ctx context.Context, queueID int64) (*StatusResult, error) {
	entry, err := s.store.GetByID(ctx, queueID)
	if err != nil {
		return nil, apperrors.NewNotFoundError("queue entry", queueID)
	}

	return &StatusResult{
		QueueID:     entry.ID,
		Status:      entry.Status,
		JobID:       entry.JobID,
		Error:       entry.Error,
		ProcessedAt: entry.ProcessedAt,
	}, nil
}

// CallbackInput is the outcome a worker reports for one queue entry.
type CallbackInput struct {
	QueueID int64         `json:"queueId"`
	JobID   *int64        `json:"jobId"`
	UserID  int64         `json:"userId"`
	Outcome types.Outcome `json:"status"`
	Error   string        `json:"error,omitempty"`
	Reason  string        `json:"reason,omitempty"`
}

// HandleCallback applies a worker-reported outcome. It is idempotent per
// queue id: an entry already in a terminal state makes the callback a
// no-op, so at-least-once delivery can never create a second permanent
// record or flip a terminal status. All terminal transitions delete the
// entry's payload. The returned bool reports whether this delivery changed
// anything; false means the entry was already terminal.
func (s *Service) HandleCallback(ctx context.Context, cb *CallbackInput) (bool, error) {
	if !cb.Outcome.Valid() {
		return false, apperrors.NewMalformedCallbackError(fmt.Sprintf("unknown outcome %q", cb.Outcome))
	}

	log := s.logger.WithFields(map[string]interface{}{
		"queueId": cb.QueueID,
		"outcome": string(cb.Outcome),
	})

	switch cb.Outcome {
	case types.OutcomeSuccess:
		return s.finalizeSuccess(ctx, cb, log)
	case types.OutcomeSkipped:
		reason := cb.Reason
		if reason == "" {
			reason = "skipped by worker"
		}
		return s.finalizeFailure(ctx, cb, types.QueueSkipped, reason, log)
	default:
		errText := cb.Error
		if errText == "" {
			errText = "submission failed"
		}
		return s.finalizeFailure(ctx, cb, types.QueueFailed, errText, log)
	}
}

// finalizeSuccess creates the permanent application record now, attaches it
// to the entry, and completes it, all in one transaction.
func (s *Service) finalizeSuccess(ctx context.Context, cb *CallbackInput, log *logging.Logger) (bool, error) {
	app := &models.Application{UserID: cb.UserID}

	// The payload's job snapshot carries the posting details for the
	// permanent record. It is gone once a previous delivery finalized the
	// entry, in which case the finalize below is a no-op anyway.
	if payload, err := s.store.GetPayload(ctx, cb.QueueID); err == nil && payload.Job != nil {
		app.Title = payload.Job.Title
		app.Company = payload.Job.Company
		app.URL = payload.Job.ApplyURL
		app.Source = payload.Job.Source
	}

	jobID, applied, err := s.store.FinalizeSuccess(ctx, cb.QueueID, app)
	if err != nil {
		return false, apperrors.NewDatabaseError("finalize success", err)
	}
	if !applied {
		log.Info("Duplicate success callback ignored: entry already terminal")
		return false, nil
	}

	s.appendEvent(ctx, cb.QueueID, cb.UserID, storage.EventCompleted, "")
	log.WithField("jobId", jobID).Info("Application submitted")
	return true, nil
}

func (s *Service) finalizeFailure(ctx context.Context, cb *CallbackInput, status types.QueueStatus, detail string, log *logging.Logger) (bool, error) {
	applied, err := s.store.FinalizeFailure(ctx, cb.QueueID, status, detail)
	if err != nil {
		return false, apperrors.NewDatabaseError("finalize failure", err)
	}
	if !applied {
		log.Info("Duplicate callback ignored: entry already terminal")
		return false, nil
	}

	// The attempt ended without a submission, so return its daily-cap slot.
	if s.usage != nil {
		if err := s.usage.Release(ctx, cb.UserID); err != nil {
			log.WithError(err).Warn("Failed to release daily-cap slot")
		}
	}

	event := storage.EventFailed
	if status == types.QueueSkipped {
		event = storage.EventSkipped
	}
	s.appendEvent(ctx, cb.QueueID, cb.UserID, event, detail)
	log.WithField("detail", detail).Info("Submission attempt finalized")
	return true, nil
}

// Stats aggregates per-user queue counts.
type Stats struct {
	UserID  int64                     `json:"userId"`
	Counts  map[types.QueueStatus]int `json:"counts"`
	Pending int                       `json:"pending"`
	Active  int                       `json:"active"`
}

// GetStats returns aggregate counts for a user.
func (s *Service) GetStats(ctx context.Context, userID int64) (*Stats, error) {
	counts, err := s.store.CountByStatusForUser(ctx, userID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("count queue entries", err)
	}

	return &Stats{
		UserID:  userID,
		Counts:  counts,
		Pending: counts[types.QueuePending] + counts[types.QueueStandby],
		Active:  counts[types.QueueProcessing],
	}, nil
}

func (s *Service) appendEvent(ctx context.Context, queueID, userID int64, event, detail string) {
	if s.events == nil {
		return
	}
	if err := s.events.Append(ctx, queueID, userID, event, detail); err != nil {
		s.logger.WithError(err).Warn("Failed to append submission event")
	}
}
