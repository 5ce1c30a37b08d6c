package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/maheshrc27/tweetflow/internal/models"
)

var jobRowColumns = []string{"id", "owner_id", "content", "scheduled_time", "status", "external_post_id",
	"error_message", "has_media", "media_ref", "claim_id", "claimed_at", "posted_at", "created_at", "updated_at"}

func TestJobRepository_FindDue(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer func() { _ = db.Close() }()

	now := time.Now().UTC()
	when := now.Add(-time.Minute)
	rows := sqlmock.NewRows(jobRowColumns).
		AddRow("j1", "owner-1", "Hello", when, "scheduled", nil, nil, false, nil, nil, nil, nil, when, when)

	mock.ExpectQuery(`FROM jobs\s+WHERE status = 'scheduled'\s+AND claim_id IS NULL\s+AND scheduled_time <= \$1`).
		WithArgs(now, 25).
		WillReturnRows(rows)

	repo := NewJobRepository(db)
	jobs, err := repo.FindDue(context.Background(), now, 25)
	if err != nil {
		t.Fatalf("FindDue err=%v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != "j1" || jobs[0].Content != "Hello" {
		t.Fatalf("unexpected jobs %+v", jobs)
	}
	if jobs[0].ClaimID != "" || jobs[0].ClaimedAt != nil {
		t.Fatalf("expected unclaimed job")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
}

func TestJobRepository_TryClaim(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer func() { _ = db.Close() }()

	now := time.Now().UTC()
	mock.ExpectExec(`(?s)UPDATE jobs\s+SET claim_id = \$2.*WHERE id = \$1\s+AND status = 'scheduled'\s+AND claim_id IS NULL`).
		WithArgs("j1", "claim-1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE jobs\s+SET claim_id = \$2`).
		WithArgs("j1", "claim-2", now).
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewJobRepository(db)
	ok, err := repo.TryClaim(context.Background(), "j1", "claim-1", now)
	if err != nil || !ok {
		t.Fatalf("expected first claim to win, ok=%v err=%v", ok, err)
	}
	ok, err = repo.TryClaim(context.Background(), "j1", "claim-2", now)
	if err != nil || ok {
		t.Fatalf("expected second claim to lose, ok=%v err=%v", ok, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
}

func TestJobRepository_MarkPosted_ClaimLost(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer func() { _ = db.Close() }()

	now := time.Now().UTC()
	mock.ExpectExec(`UPDATE jobs\s+SET status = 'posted'`).
		WithArgs("j1", "claim-1", "42", now).
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewJobRepository(db)
	err = repo.MarkPosted(context.Background(), "j1", "claim-1", "42", now)
	if !errors.Is(err, ErrClaimLost) {
		t.Fatalf("expected ErrClaimLost, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
}

func TestJobRepository_MarkFailed(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer func() { _ = db.Close() }()

	now := time.Now().UTC()
	mock.ExpectExec(`(?s)UPDATE jobs\s+SET status = 'failed',\s+error_message = \$3`).
		WithArgs("j1", "claim-1", "account not connected", now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewJobRepository(db)
	if err := repo.MarkFailed(context.Background(), "j1", "claim-1", "account not connected", now); err != nil {
		t.Fatalf("MarkFailed err=%v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
}

func TestJobRepository_GetByID_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(`FROM jobs WHERE id = \$1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(jobRowColumns))

	repo := NewJobRepository(db)
	_, err = repo.GetByID(context.Background(), "missing")
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestJobRepository_UpdateSchedule_Rejected(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer func() { _ = db.Close() }()

	now := time.Now().UTC()
	next := now.Add(time.Hour)
	mock.ExpectExec(`UPDATE jobs\s+SET content = \$3,\s+scheduled_time = \$4,\s+status = 'scheduled'`).
		WithArgs("j1", "owner-1", "edited", next, now).
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewJobRepository(db)
	ok, err := repo.UpdateSchedule(context.Background(), "j1", "owner-1", "edited", next, now)
	if err != nil {
		t.Fatalf("UpdateSchedule err=%v", err)
	}
	if ok {
		t.Fatalf("expected edit to be rejected")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
}

func TestJobRepository_ListByOwnerID_FiltersStatuses(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer func() { _ = db.Close() }()

	when := time.Now().UTC()
	rows := sqlmock.NewRows(jobRowColumns).
		AddRow("j1", "owner-1", "a", when, "scheduled", nil, nil, false, nil, nil, nil, nil, when, when).
		AddRow("j2", "owner-1", "b", when.Add(time.Minute), "failed", nil, "boom", false, nil, "c1", when, nil, when, when)

	mock.ExpectQuery(`FROM jobs WHERE owner_id = \$1 AND status = ANY\(\$2\) ORDER BY scheduled_time ASC`).
		WithArgs("owner-1", sqlmock.AnyArg()).
		WillReturnRows(rows)

	repo := NewJobRepository(db)
	jobs, err := repo.ListByOwnerID(context.Background(), "owner-1", models.JobStatusScheduled, models.JobStatusFailed)
	if err != nil {
		t.Fatalf("ListByOwnerID err=%v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	if jobs[1].ErrorMessage != "boom" || jobs[1].ClaimID != "c1" || jobs[1].ClaimedAt == nil {
		t.Fatalf("unexpected failed job %+v", jobs[1])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
}

func TestJobRepository_FailStaleClaims(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer func() { _ = db.Close() }()

	now := time.Now().UTC()
	cutoff := now.Add(-5 * time.Minute)
	mock.ExpectExec(`(?s)UPDATE jobs\s+SET status = 'failed'.*\s+WHERE status = 'scheduled'\s+AND claim_id IS NOT NULL\s+AND claimed_at < \$1`).
		WithArgs(cutoff, "interrupted", now).
		WillReturnResult(sqlmock.NewResult(0, 2))

	repo := NewJobRepository(db)
	failed, err := repo.FailStaleClaims(context.Background(), cutoff, "interrupted", now)
	if err != nil {
		t.Fatalf("FailStaleClaims err=%v", err)
	}
	if failed != 2 {
		t.Fatalf("expected 2, got %d", failed)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
