package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gildigital/aijobapply/internal/models"
	"github.com/gildigital/aijobapply/internal/types"
	"github.com/jackc/pgx/v5"
)

// ErrEntryTerminal is returned by guarded transitions attempted against an
// entry that already reached a terminal state.
var ErrEntryTerminal = errors.New("queue entry is in a terminal state")

// QueueRepository handles submission queue and payload persistence
type QueueRepository struct {
	db *PostgresDB
}

// NewQueueRepository creates a new queue repository
func NewQueueRepository(db *PostgresDB) *QueueRepository {
	return &QueueRepository{db: db}
}

const queueColumns = `
	id, user_id, job_id, priority, status, attempt_count, error,
	created_at, updated_at, processed_at
`

// EnqueueWithPayload creates a pending entry and its payload in a single
// transaction. An entry must never exist without its payload while
// non-terminal, so a payload insert failure rolls back the entry too.
func (r *QueueRepository) EnqueueWithPayload(ctx context.Context, entry *models.QueueEntry, payload *models.ApplicationPayload) (int64, error) {
	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin enqueue: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx) // no-op after commit
	}()

	var queueID int64
	err = tx.QueryRow(ctx,
		`INSERT INTO application_queue (user_id, job_id, priority, status)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		entry.UserID, entry.JobID, entry.Priority, types.QueuePending,
	).Scan(&queueID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert queue entry: %w", err)
	}

	payload.QueueID = queueID
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("failed to encode payload: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO application_payloads (queue_id, payload) VALUES ($1, $2)`,
		queueID, body,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert payload: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit enqueue: %w", err)
	}

	return queueID, nil
}

// GetByID retrieves a queue entry by id
func (r *QueueRepository) GetByID(ctx context.Context, queueID int64) (*models.QueueEntry, error) {
	query := `SELECT ` + queueColumns + ` FROM application_queue WHERE id = $1`

	entry, err := scanEntry(r.db.Pool().QueryRow(ctx, query, queueID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("queue entry not found: %d", queueID)
		}
		return nil, fmt.Errorf("failed to get queue entry: %w", err)
	}

	return entry, nil
}

// GetPayload retrieves the payload for a queue entry.
func (r *QueueRepository) GetPayload(ctx context.Context, queueID int64) (*models.ApplicationPayload, error) {
	var body []byte
	err := r.db.Pool().QueryRow(ctx,
		`SELECT payload FROM application_payloads WHERE queue_id = $1`,
		queueID,
	).Scan(&body)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("payload not found for queue entry: %d", queueID)
		}
		return nil, fmt.Errorf("failed to get payload: %w", err)
	}

	var payload models.ApplicationPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}
	payload.QueueID = queueID

	return &payload, nil
}

// ListByStatus retrieves entries in a status ordered by priority.
func (r *QueueRepository) ListByStatus(ctx context.Context, status types.QueueStatus, limit int) ([]*models.QueueEntry, error) {
	query := `
		SELECT ` + queueColumns + `
		FROM application_queue
		WHERE status = $1
		ORDER BY priority DESC, created_at
		LIMIT $2
	`

	rows, err := r.db.Pool().Query(ctx, query, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list queue entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.QueueEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan queue entry: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating queue entries: %w", err)
	}

	return entries, nil
}

// MarkProcessing moves a pending entry to processing and bumps its attempt
// count. Returns ErrEntryTerminal if the entry is not pending.
func (r *QueueRepository) MarkProcessing(ctx context.Context, queueID int64) error {
	result, err := r.db.Pool().Exec(ctx,
		`UPDATE application_queue
		 SET status = $2, attempt_count = attempt_count + 1, updated_at = now()
		 WHERE id = $1 AND status = $3`,
		queueID, types.QueueProcessing, types.QueuePending,
	)
	if err != nil {
		return fmt.Errorf("failed to mark queue entry processing: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrEntryTerminal
	}
	return nil
}

// MarkStandby parks a pending entry behind the daily cap.
func (r *QueueRepository) MarkStandby(ctx context.Context, queueID int64) error {
	result, err := r.db.Pool().Exec(ctx,
		`UPDATE application_queue
		 SET status = $2, updated_at = now()
		 WHERE id = $1 AND status = $3`,
		queueID, types.QueueStandby, types.QueuePending,
	)
	if err != nil {
		return fmt.Errorf("failed to mark queue entry standby: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrEntryTerminal
	}
	return nil
}

// ReleaseStandby returns standby entries to pending once the cap window has
// reset. The released entries come back with id and user_id populated so
// callers can audit the transitions.
func (r *QueueRepository) ReleaseStandby(ctx context.Context, parkedBefore time.Time) ([]*models.QueueEntry, error) {
	rows, err := r.db.Pool().Query(ctx,
		`UPDATE application_queue
		 SET status = $1, updated_at = now()
		 WHERE status = $2 AND updated_at < $3
		 RETURNING id, user_id`,
		types.QueuePending, types.QueueStandby, parkedBefore,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to release standby entries: %w", err)
	}
	defer rows.Close()

	var released []*models.QueueEntry
	for rows.Next() {
		var entry models.QueueEntry
		if err := rows.Scan(&entry.ID, &entry.UserID); err != nil {
			return nil, fmt.Errorf("failed to scan released entry: %w", err)
		}
		entry.Status = types.QueuePending
		released = append(released, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating released entries: %w", err)
	}

	return released, nil
}

// FinalizeSuccess applies a success callback in one transaction: create the
// permanent application record, attach it to the entry, complete the entry,
// and delete the payload. Idempotent: if the entry is already terminal it
// returns (0, false, nil) and writes nothing.
func (r *QueueRepository) FinalizeSuccess(ctx context.Context, queueID int64, app *models.Application) (jobID int64, applied bool, err error) {
	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("failed to begin finalize: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx) // no-op after commit
	}()

	status, err := lockEntryStatus(ctx, tx, queueID)
	if err != nil {
		return 0, false, err
	}
	if status.IsTerminal() {
		return 0, false, nil
	}

	now := time.Now().UTC()
	err = tx.QueryRow(ctx,
		`INSERT INTO applications (user_id, title, company, url, source, applied_at, submitted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		app.UserID, app.Title, app.Company, app.URL, app.Source, now, now,
	).Scan(&jobID)
	if err != nil {
		return 0, false, fmt.Errorf("failed to insert application record: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE application_queue
		 SET status = $2, job_id = $3, error = NULL, updated_at = now(), processed_at = $4
		 WHERE id = $1`,
		queueID, types.QueueCompleted, jobID, now,
	)
	if err != nil {
		return 0, false, fmt.Errorf("failed to complete queue entry: %w", err)
	}

	if _, err = tx.Exec(ctx,
		`DELETE FROM application_payloads WHERE queue_id = $1`, queueID,
	); err != nil {
		return 0, false, fmt.Errorf("failed to delete payload: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, false, fmt.Errorf("failed to commit finalize: %w", err)
	}

	return jobID, true, nil
}

// FinalizeFailure applies a failed or skipped outcome in one transaction:
// record the error text, move the entry terminal, and delete the payload.
// Idempotent the same way as FinalizeSuccess.
func (r *QueueRepository) FinalizeFailure(ctx context.Context, queueID int64, status types.QueueStatus, errText string) (applied bool, err error) {
	if !status.IsTerminal() || status == types.QueueCompleted {
		return false, fmt.Errorf("invalid failure status: %s", status)
	}

	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin finalize: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx) // no-op after commit
	}()

	current, err := lockEntryStatus(ctx, tx, queueID)
	if err != nil {
		return false, err
	}
	if current.IsTerminal() {
		return false, nil
	}

	_, err = tx.Exec(ctx,
		`UPDATE application_queue
		 SET status = $2, error = $3, updated_at = now(), processed_at = now()
		 WHERE id = $1`,
		queueID, status, errText,
	)
	if err != nil {
		return false, fmt.Errorf("failed to finalize queue entry: %w", err)
	}

	if _, err = tx.Exec(ctx,
		`DELETE FROM application_payloads WHERE queue_id = $1`, queueID,
	); err != nil {
		return false, fmt.Errorf("failed to delete payload: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit finalize: %w", err)
	}

	return true, nil
}

// CountByStatusForUser returns aggregate counts per status for a user.
func (r *QueueRepository) CountByStatusForUser(ctx context.Context, userID int64) (map[types.QueueStatus]int, error) {
	rows, err := r.db.Pool().Query(ctx,
		`SELECT status, COUNT(*) FROM application_queue WHERE user_id = $1 GROUP BY status`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to count queue entries: %w", err)
	}
	defer rows.Close()

	counts := make(map[types.QueueStatus]int)
	for rows.Next() {
		var status types.QueueStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan queue count: %w", err)
		}
		counts[status] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating queue counts: %w", err)
	}

	return counts, nil
}

// lockEntryStatus reads an entry's status under FOR UPDATE so concurrent
// callbacks for the same queue id serialize on the row.
func lockEntryStatus(ctx context.Context, tx pgx.Tx, queueID int64) (types.QueueStatus, error) {
	var status types.QueueStatus
	err := tx.QueryRow(ctx,
		`SELECT status FROM application_queue WHERE id = $1 FOR UPDATE`,
		queueID,
	).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("queue entry not found: %d", queueID)
		}
		return "", fmt.Errorf("failed to lock queue entry: %w", err)
	}
	return status, nil
}

func scanEntry(row rowScanner) (*models.QueueEntry, error) {
	var entry models.QueueEntry
	err := row.Scan(
		&entry.ID,
		&entry.UserID,
		&entry.JobID,
		&entry.Priority,
		&entry.Status,
		&entry.AttemptCount,
		&entry.Error,
		&entry.CreatedAt,
		&entry.UpdatedAt,
		&entry.ProcessedAt,
	)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}
