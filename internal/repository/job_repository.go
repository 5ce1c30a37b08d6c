package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/maheshrc27/tweetflow/internal/models"
)

// ErrClaimLost is returned when a terminal transition no longer matches the
// claim it was issued under (job deleted or re-edited meanwhile).
var ErrClaimLost = errors.New("job claim lost")

type JobRepository interface {
	Create(ctx context.Context, job *models.Job) error
	GetByID(ctx context.Context, id string) (*models.Job, error)
	ListByOwnerID(ctx context.Context, ownerID string, statuses ...models.JobStatus) ([]*models.Job, error)
	FindDue(ctx context.Context, now time.Time, limit int) ([]*models.Job, error)
	TryClaim(ctx context.Context, id, claimID string, now time.Time) (bool, error)
	MarkPosted(ctx context.Context, id, claimID, externalPostID string, now time.Time) error
	MarkFailed(ctx context.Context, id, claimID, message string, now time.Time) error
	FailStaleClaims(ctx context.Context, claimedBefore time.Time, message string, now time.Time) (int64, error)
	UpdateSchedule(ctx context.Context, id, ownerID, content string, scheduledTime, now time.Time) (bool, error)
	Remove(ctx context.Context, id, ownerID string) (bool, error)
}

type jobRepository struct {
	db *sql.DB
}

func NewJobRepository(db *sql.DB) JobRepository {
	return &jobRepository{db: db}
}

const jobColumns = `id, owner_id, content, scheduled_time, status, external_post_id, error_message,
	has_media, media_ref, claim_id, claimed_at, posted_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*models.Job, error) {
	var job models.Job
	var externalPostID, errorMessage, mediaRef, claimID sql.NullString
	var claimedAt, postedAt sql.NullTime

	err := row.Scan(&job.ID, &job.OwnerID, &job.Content, &job.ScheduledTime, &job.Status,
		&externalPostID, &errorMessage, &job.HasMedia, &mediaRef, &claimID, &claimedAt,
		&postedAt, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return nil, err
	}

	job.ExternalPostID = externalPostID.String
	job.ErrorMessage = errorMessage.String
	job.MediaRef = mediaRef.String
	job.ClaimID = claimID.String
	if claimedAt.Valid {
		job.ClaimedAt = &claimedAt.Time
	}
	if postedAt.Valid {
		job.PostedAt = &postedAt.Time
	}
	return &job, nil
}

func (r *jobRepository) Create(ctx context.Context, job *models.Job) error {
	query := `
		INSERT INTO jobs (id, owner_id, content, scheduled_time, status, has_media, media_ref, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
	`

	_, err := r.db.ExecContext(ctx, query, job.ID, job.OwnerID, job.Content, job.ScheduledTime.UTC(),
		job.Status, job.HasMedia, nullString(job.MediaRef), job.CreatedAt.UTC())
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	return nil
}

func (r *jobRepository) GetByID(ctx context.Context, id string) (*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`

	job, err := scanJob(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: job %s", models.ErrNotFound, id)
		}
		slog.Info(err.Error())
		return nil, err
	}

	return job, nil
}

func (r *jobRepository) ListByOwnerID(ctx context.Context, ownerID string, statuses ...models.JobStatus) ([]*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE owner_id = $1`
	args := []interface{}{ownerID}

	if len(statuses) > 0 {
		values := make([]string, 0, len(statuses))
		for _, s := range statuses {
			values = append(values, string(s))
		}
		query += ` AND status = ANY($2)`
		args = append(args, pq.Array(values))
	}
	query += ` ORDER BY scheduled_time ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	return collectJobs(rows)
}

func (r *jobRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]*models.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		  FROM jobs
		 WHERE status = 'scheduled'
		   AND claim_id IS NULL
		   AND scheduled_time <= $1
		 ORDER BY scheduled_time ASC
		 LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, now.UTC(), limit)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	return collectJobs(rows)
}

// TryClaim is the single conditional update that grants one worker the job.
func (r *jobRepository) TryClaim(ctx context.Context, id, claimID string, now time.Time) (bool, error) {
	query := `
		UPDATE jobs
		   SET claim_id = $2,
		       claimed_at = $3,
		       updated_at = $3
		 WHERE id = $1
		   AND status = 'scheduled'
		   AND claim_id IS NULL
		   AND scheduled_time <= $3
	`

	result, err := r.db.ExecContext(ctx, query, id, claimID, now.UTC())
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}

	return affected == 1, nil
}

func (r *jobRepository) MarkPosted(ctx context.Context, id, claimID, externalPostID string, now time.Time) error {
	query := `
		UPDATE jobs
		   SET status = 'posted',
		       external_post_id = $3,
		       error_message = NULL,
		       posted_at = $4,
		       updated_at = $4
		 WHERE id = $1
		   AND claim_id = $2
		   AND status = 'scheduled'
	`
	return r.transition(ctx, query, id, claimID, externalPostID, now.UTC())
}

func (r *jobRepository) MarkFailed(ctx context.Context, id, claimID, message string, now time.Time) error {
	query := `
		UPDATE jobs
		   SET status = 'failed',
		       error_message = $3,
		       updated_at = $4
		 WHERE id = $1
		   AND claim_id = $2
		   AND status = 'scheduled'
	`
	return r.transition(ctx, query, id, claimID, message, now.UTC())
}

// FailStaleClaims closes out jobs whose claim was taken before claimedBefore
// and never reached a terminal state. They are failed, not released, so a
// post that may already be live is never published twice.
func (r *jobRepository) FailStaleClaims(ctx context.Context, claimedBefore time.Time, message string, now time.Time) (int64, error) {
	query := `
		UPDATE jobs
		   SET status = 'failed',
		       error_message = $2,
		       updated_at = $3
		 WHERE status = 'scheduled'
		   AND claim_id IS NOT NULL
		   AND claimed_at < $1
	`

	result, err := r.db.ExecContext(ctx, query, claimedBefore.UTC(), message, now.UTC())
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	failed, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return failed, nil
}

func (r *jobRepository) transition(ctx context.Context, query string, args ...interface{}) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	if affected != 1 {
		return ErrClaimLost
	}

	return nil
}

// UpdateSchedule applies an edit and reopens failed jobs. It reports false
// when the job is posted, claimed, or already past due at now.
func (r *jobRepository) UpdateSchedule(ctx context.Context, id, ownerID, content string, scheduledTime, now time.Time) (bool, error) {
	query := `
		UPDATE jobs
		   SET content = $3,
		       scheduled_time = $4,
		       status = 'scheduled',
		       error_message = NULL,
		       claim_id = NULL,
		       claimed_at = NULL,
		       updated_at = $5
		 WHERE id = $1
		   AND owner_id = $2
		   AND $4 > $5
		   AND (
		         (status = 'scheduled' AND claim_id IS NULL AND scheduled_time > $5)
		      OR status = 'failed'
		   )
	`

	result, err := r.db.ExecContext(ctx, query, id, ownerID, content, scheduledTime.UTC(), now.UTC())
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}

	return affected == 1, nil
}

func (r *jobRepository) Remove(ctx context.Context, id, ownerID string) (bool, error) {
	query := `DELETE FROM jobs WHERE id = $1 AND owner_id = $2`

	result, err := r.db.ExecContext(ctx, query, id, ownerID)
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}

	return affected == 1, nil
}

func collectJobs(rows *sql.Rows) ([]*models.Job, error) {
	var jobs []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return jobs, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
