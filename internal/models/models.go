// Package models defines the persisted records of the submission pipeline.
package models

import (
	"time"

	"github.com/gildigital/aijobapply/internal/types"
)

// JobLink represents one discovered posting awaiting processing (one per
// user and URL). Rows are append-only; the deduplicator may rewrite priority
// to 0 but rows are never deleted.
type JobLink struct {
	ID            int64            `json:"id" db:"id"`
	UserID        int64            `json:"userId" db:"user_id"`
	URL           string           `json:"url" db:"url"`
	Source        string           `json:"source" db:"source"`
	ExternalJobID *string          `json:"externalJobId,omitempty" db:"external_job_id"`
	Query         *string          `json:"query,omitempty" db:"query"`
	Status        types.LinkStatus `json:"status" db:"status"`
	Priority      float64          `json:"priority" db:"priority"`
	CreatedAt     time.Time        `json:"createdAt" db:"created_at"`
	ProcessedAt   *time.Time       `json:"processedAt,omitempty" db:"processed_at"`
	Error         *string          `json:"error,omitempty" db:"error"`
	AttemptCount  int              `json:"attemptCount" db:"attempt_count"`
}

// QueueEntry represents one submission attempt. JobID stays null until the
// success callback creates the permanent application record.
type QueueEntry struct {
	ID           int64             `json:"id" db:"id"`
	UserID       int64             `json:"userId" db:"user_id"`
	JobID        *int64            `json:"jobId,omitempty" db:"job_id"`
	Priority     int               `json:"priority" db:"priority"`
	Status       types.QueueStatus `json:"status" db:"status"`
	AttemptCount int               `json:"attemptCount" db:"attempt_count"`
	Error        *string           `json:"error,omitempty" db:"error"`
	CreatedAt    time.Time         `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time         `json:"updatedAt" db:"updated_at"`
	ProcessedAt  *time.Time        `json:"processedAt,omitempty" db:"processed_at"`
}

// ApplicationPayload is the data bundle a remote worker needs to execute one
// submission, keyed 1:1 by queue entry id. Created at enqueue time, deleted
// when the entry reaches a terminal state.
type ApplicationPayload struct {
	QueueID   int64             `json:"queueId" db:"queue_id"`
	User      *UserSnapshot     `json:"user,omitempty"`
	Resume    *ResumeSnapshot   `json:"resume,omitempty"`
	Profile   *ProfileSnapshot  `json:"profile,omitempty"`
	Job       *JobSnapshot      `json:"job,omitempty"`
	FormData  map[string]string `json:"formData,omitempty"`
	CreatedAt time.Time         `json:"createdAt" db:"created_at"`
}

// UserSnapshot captures the account fields a worker fills into forms.
type UserSnapshot struct {
	UserID    int64  `json:"userId"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Phone     string `json:"phone,omitempty"`
}

// ResumeSnapshot points at the resume file the worker uploads.
type ResumeSnapshot struct {
	ResumeID int64  `json:"resumeId"`
	FileName string `json:"fileName"`
	FileURL  string `json:"fileUrl"`
	MimeType string `json:"mimeType,omitempty"`
}

// ProfileSnapshot carries the profile answers used for screening questions.
type ProfileSnapshot struct {
	Headline      string   `json:"headline,omitempty"`
	YearsOfExp    int      `json:"yearsOfExp,omitempty"`
	Location      string   `json:"location,omitempty"`
	WorkAuth      string   `json:"workAuth,omitempty"`
	DesiredSalary *int     `json:"desiredSalary,omitempty"`
	Skills        []string `json:"skills,omitempty"`
}

// JobSnapshot is the posting as it looked at enqueue time.
type JobSnapshot struct {
	Title       string   `json:"title"`
	Company     string   `json:"company"`
	Location    string   `json:"location,omitempty"`
	Description string   `json:"description,omitempty"`
	ApplyURL    string   `json:"applyUrl"`
	Source      string   `json:"source,omitempty"`
	ExternalID  string   `json:"externalId,omitempty"`
	MatchScore  *float64 `json:"matchScore,omitempty"`
}

// Application is the permanent record of an actually-submitted application.
// Created only by the success callback, never for failed or skipped attempts.
type Application struct {
	ID          int64     `json:"id" db:"id"`
	UserID      int64     `json:"userId" db:"user_id"`
	Title       string    `json:"title" db:"title"`
	Company     string    `json:"company" db:"company"`
	URL         string    `json:"url" db:"url"`
	Source      string    `json:"source" db:"source"`
	AppliedAt   time.Time `json:"appliedAt" db:"applied_at"`
	SubmittedAt time.Time `json:"submittedAt" db:"submitted_at"`
}

// JobListing is a normalized posting produced by an external discovery
// collaborator (search service plus match scoring).
type JobListing struct {
	Title       string   `json:"title"`
	Company     string   `json:"company"`
	Description string   `json:"description,omitempty"`
	ApplyURL    string   `json:"applyUrl"`
	Location    string   `json:"location,omitempty"`
	Source      string   `json:"source"`
	ExternalID  string   `json:"externalId,omitempty"`
	MatchScore  *float64 `json:"matchScore,omitempty"`
}
