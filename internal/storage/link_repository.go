package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/gildigital/aijobapply/internal/models"
	"github.com/jackc/pgx/v5"
)

// LinkRepository handles discovered-posting persistence
type LinkRepository struct {
	db *PostgresDB
}

// NewLinkRepository creates a new link repository
func NewLinkRepository(db *PostgresDB) *LinkRepository {
	return &LinkRepository{db: db}
}

const linkColumns = `
	id, user_id, url, source, external_job_id, query, status, priority,
	created_at, processed_at, error, attempt_count
`

// Create inserts a discovered posting. The (user_id, url) pair is unique;
// re-discovering a known URL is a no-op and returns the existing row's id
// with created=false.
func (r *LinkRepository) Create(ctx context.Context, link *models.JobLink) (id int64, created bool, err error) {
	insert := `
		INSERT INTO job_links (user_id, url, source, external_job_id, query, status, priority)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, url) DO NOTHING
		RETURNING id
	`

	err = r.db.Pool().QueryRow(ctx, insert,
		link.UserID,
		link.URL,
		link.Source,
		link.ExternalJobID,
		link.Query,
		link.Status,
		link.Priority,
	).Scan(&id)

	if err == nil {
		return id, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, false, fmt.Errorf("failed to create job link: %w", err)
	}

	// Conflict path: resolve the existing row.
	err = r.db.Pool().QueryRow(ctx,
		`SELECT id FROM job_links WHERE user_id = $1 AND url = $2`,
		link.UserID, link.URL,
	).Scan(&id)
	if err != nil {
		return 0, false, fmt.Errorf("failed to resolve existing job link: %w", err)
	}

	return id, false, nil
}

// GetByID retrieves a link by id
func (r *LinkRepository) GetByID(ctx context.Context, id int64) (*models.JobLink, error) {
	query := `SELECT ` + linkColumns + ` FROM job_links WHERE id = $1`

	link, err := scanLink(r.db.Pool().QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("job link not found: %d", id)
		}
		return nil, fmt.Errorf("failed to get job link: %w", err)
	}

	return link, nil
}

// ListByUser retrieves all links for a user, oldest first.
func (r *LinkRepository) ListByUser(ctx context.Context, userID int64) ([]*models.JobLink, error) {
	query := `SELECT ` + linkColumns + ` FROM job_links WHERE user_id = $1 ORDER BY id`

	rows, err := r.db.Pool().Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list job links: %w", err)
	}
	defer rows.Close()

	var links []*models.JobLink
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job link: %w", err)
		}
		links = append(links, link)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating job links: %w", err)
	}

	return links, nil
}

// DemotePriorities rewrites the priority of every listed link to 0 in a
// single transaction. A failure rolls the whole rewrite back so a cluster is
// never left half-demoted.
func (r *LinkRepository) DemotePriorities(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin priority rewrite: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx) // no-op after commit
	}()

	result, err := tx.Exec(ctx,
		`UPDATE job_links SET priority = 0 WHERE id = ANY($1)`,
		ids,
	)
	if err != nil {
		return fmt.Errorf("failed to demote link priorities: %w", err)
	}
	if result.RowsAffected() != int64(len(ids)) {
		return fmt.Errorf("priority rewrite touched %d of %d links", result.RowsAffected(), len(ids))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit priority rewrite: %w", err)
	}

	return nil
}

// rowScanner abstracts pgx.Row and pgx.Rows for shared scanning.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanLink(row rowScanner) (*models.JobLink, error) {
	var link models.JobLink
	err := row.Scan(
		&link.ID,
		&link.UserID,
		&link.URL,
		&link.Source,
		&link.ExternalJobID,
		&link.Query,
		&link.Status,
		&link.Priority,
		&link.CreatedAt,
		&link.ProcessedAt,
		&link.Error,
		&link.AttemptCount,
	)
	if err != nil {
		return nil, err
	}
	return &link, nil
}
