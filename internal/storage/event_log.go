package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Submission event kinds appended to the ClickHouse log.
const (
	EventEnqueued   = "enqueued"
	EventDispatched = "dispatched"
	EventStandby    = "standby"
	EventReleased   = "released"
	EventCompleted  = "completed"
	EventFailed     = "failed"
	EventSkipped    = "skipped"
)

// SubmissionEvent is one append-only audit record of a queue transition.
type SubmissionEvent struct {
	EventID   string    `json:"eventId"`
	QueueID   int64     `json:"queueId"`
	UserID    int64     `json:"userId"`
	Event     string    `json:"event"`
	Detail    string    `json:"detail"`
	Timestamp time.Time `json:"timestamp"`
}

// EventLog appends submission events to ClickHouse. Writes are best-effort
// audit data; callers log and continue on error rather than failing the
// transition that produced the event.
type EventLog struct {
	db *ClickHouseDB
}

// NewEventLog creates a new event log writer
func NewEventLog(db *ClickHouseDB) *EventLog {
	return &EventLog{db: db}
}

// EnsureSchema creates the events table if it does not exist.
func (l *EventLog) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS submission_events (
			event_id  UUID,
			queue_id  Int64,
			user_id   Int64,
			event     LowCardinality(String),
			detail    String,
			timestamp DateTime64(3, 'UTC')
		)
		ENGINE = MergeTree()
		PARTITION BY toYYYYMM(timestamp)
		ORDER BY (user_id, timestamp)
	`
	if err := l.db.Conn().Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create submission_events table: %w", err)
	}
	return nil
}

// Append writes one event.
func (l *EventLog) Append(ctx context.Context, queueID, userID int64, event, detail string) error {
	query := `
		INSERT INTO submission_events (event_id, queue_id, user_id, event, detail, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	err := l.db.Conn().Exec(ctx, query,
		uuid.New().String(),
		queueID,
		userID,
		event,
		detail,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to append submission event: %w", err)
	}
	return nil
}

// RecentForUser returns the most recent events for a user, newest first.
func (l *EventLog) RecentForUser(ctx context.Context, userID int64, limit int) ([]*SubmissionEvent, error) {
	query := `
		SELECT event_id, queue_id, user_id, event, detail, timestamp
		FROM submission_events
		WHERE user_id = ?
		ORDER BY timestamp DESC
		LIMIT ?
	`

	rows, err := l.db.Conn().Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query submission events: %w", err)
	}
	defer rows.Close()

	var events []*SubmissionEvent
	for rows.Next() {
		var e SubmissionEvent
		if err := rows.Scan(&e.EventID, &e.QueueID, &e.UserID, &e.Event, &e.Detail, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan submission event: %w", err)
		}
		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating submission events: %w", err)
	}

	return events, nil
}
