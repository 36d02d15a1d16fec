package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gildigital/aijobapply/internal/models"
	"github.com/jackc/pgx/v5"
)

// ErrApplicationNotFound reports a lookup of a record that does not exist.
var ErrApplicationNotFound = errors.New("application not found")

// ApplicationRepository reads the permanent record of submitted applications.
// Writes happen only inside QueueRepository.FinalizeSuccess so a record can
// never appear without its queue entry completing in the same transaction.
type ApplicationRepository struct {
	db *PostgresDB
}

// NewApplicationRepository creates a new application repository
func NewApplicationRepository(db *PostgresDB) *ApplicationRepository {
	return &ApplicationRepository{db: db}
}

// GetByID retrieves an application by id
func (r *ApplicationRepository) GetByID(ctx context.Context, id int64) (*models.Application, error) {
	query := `
		SELECT id, user_id, title, company, url, source, applied_at, submitted_at
		FROM applications
		WHERE id = $1
	`

	var app models.Application
	err := r.db.Pool().QueryRow(ctx, query, id).Scan(
		&app.ID,
		&app.UserID,
		&app.Title,
		&app.Company,
		&app.URL,
		&app.Source,
		&app.AppliedAt,
		&app.SubmittedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", ErrApplicationNotFound, id)
		}
		return nil, fmt.Errorf("failed to get application: %w", err)
	}

	return &app, nil
}

// ListByUser retrieves a user's applications, most recent first.
func (r *ApplicationRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]*models.Application, error) {
	query := `
		SELECT id, user_id, title, company, url, source, applied_at, submitted_at
		FROM applications
		WHERE user_id = $1
		ORDER BY applied_at DESC
		LIMIT $2
	`

	rows, err := r.db.Pool().Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	defer rows.Close()

	var apps []*models.Application
	for rows.Next() {
		var app models.Application
		err := rows.Scan(
			&app.ID,
			&app.UserID,
			&app.Title,
			&app.Company,
			&app.URL,
			&app.Source,
			&app.AppliedAt,
			&app.SubmittedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan application: %w", err)
		}
		apps = append(apps, &app)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating applications: %w", err)
	}

	return apps, nil
}

// CountToday returns how many applications a user submitted since the given
// window start. Used as the durable cross-check for the Redis cap counter.
func (r *ApplicationRepository) CountToday(ctx context.Context, userID int64, windowStart time.Time) (int, error) {
	var count int
	err := r.db.Pool().QueryRow(ctx,
		`SELECT COUNT(*) FROM applications WHERE user_id = $1 AND applied_at >= $2`,
		userID, windowStart,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count today's applications: %w", err)
	}
	return count, nil
}
