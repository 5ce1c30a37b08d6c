package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/maheshrc27/tweetflow/internal/models"
	"github.com/maheshrc27/tweetflow/internal/repository"
	"github.com/maheshrc27/tweetflow/internal/transfer"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

type JobService interface {
	Schedule(ctx context.Context, ownerID string, jc *transfer.JobCreation) (*models.Job, time.Duration, error)
	List(ctx context.Context, ownerID string) ([]*models.Job, error)
	Get(ctx context.Context, ownerID, jobID string) (*models.Job, error)
	Edit(ctx context.Context, ownerID, jobID string, ju *transfer.JobUpdate) (*models.Job, time.Duration, error)
	Remove(ctx context.Context, ownerID, jobID string) error
}

type jobService struct {
	jr  repository.JobRepository
	now func() time.Time
}

func NewJobService(jr repository.JobRepository, now func() time.Time) JobService {
	if now == nil {
		now = time.Now
	}
	return &jobService{
		jr:  jr,
		now: now,
	}
}

// Schedule stores a new job and returns the delay until it is due. A time in
// the past is accepted and dispatched on the next tick.
func (s *jobService) Schedule(ctx context.Context, ownerID string, jc *transfer.JobCreation) (*models.Job, time.Duration, error) {
	if ownerID == "" {
		return nil, 0, fmt.Errorf("%w: owner id is required", models.ErrValidation)
	}
	if jc == nil {
		return nil, 0, fmt.Errorf("%w: job data is empty", models.ErrValidation)
	}

	content, err := validateContent(jc.Content)
	if err != nil {
		return nil, 0, err
	}

	scheduledTime, err := parseScheduledTime(jc.ScheduledTime)
	if err != nil {
		return nil, 0, err
	}

	id, err := gonanoid.New()
	if err != nil {
		slog.Info(err.Error())
		return nil, 0, err
	}

	now := s.now().UTC()
	job := &models.Job{
		ID:            id,
		OwnerID:       ownerID,
		Content:       content,
		ScheduledTime: scheduledTime,
		Status:        models.JobStatusScheduled,
		HasMedia:      jc.MediaRef != "",
		MediaRef:      jc.MediaRef,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.jr.Create(ctx, job); err != nil {
		return nil, 0, err
	}

	slog.Info("job scheduled", "job_id", job.ID, "owner_id", ownerID, "scheduled_time", scheduledTime)
	return job, delayUntil(scheduledTime, now), nil
}

// List returns the owner's pending and failed jobs, earliest first.
func (s *jobService) List(ctx context.Context, ownerID string) ([]*models.Job, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner id is required", models.ErrValidation)
	}

	jobs, err := s.jr.ListByOwnerID(ctx, ownerID, models.JobStatusScheduled, models.JobStatusFailed)
	if err != nil {
		return nil, err
	}
	if jobs == nil {
		jobs = []*models.Job{}
	}
	return jobs, nil
}

func (s *jobService) Get(ctx context.Context, ownerID, jobID string) (*models.Job, error) {
	job, err := s.jr.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.OwnerID != ownerID {
		return nil, fmt.Errorf("%w: job %s", models.ErrNotFound, jobID)
	}
	return job, nil
}

// Edit replaces content and schedule. Posted jobs, claimed jobs and jobs that
// are already due are rejected; failed jobs are reopened.
func (s *jobService) Edit(ctx context.Context, ownerID, jobID string, ju *transfer.JobUpdate) (*models.Job, time.Duration, error) {
	if ju == nil {
		return nil, 0, fmt.Errorf("%w: job data is empty", models.ErrValidation)
	}

	content, err := validateContent(ju.Content)
	if err != nil {
		return nil, 0, err
	}

	scheduledTime, err := parseScheduledTime(ju.ScheduledTime)
	if err != nil {
		return nil, 0, err
	}

	job, err := s.Get(ctx, ownerID, jobID)
	if err != nil {
		return nil, 0, err
	}

	now := s.now().UTC()
	if !scheduledTime.After(now) {
		return nil, 0, fmt.Errorf("%w: scheduled time must be in the future", models.ErrValidation)
	}
	if !job.Editable(now) {
		return nil, 0, fmt.Errorf("%w: job %s can no longer be edited", models.ErrValidation, jobID)
	}

	ok, err := s.jr.UpdateSchedule(ctx, jobID, ownerID, content, scheduledTime, now)
	if err != nil {
		return nil, 0, err
	}
	if !ok {
		// lost to the dispatch loop between read and write
		return nil, 0, fmt.Errorf("%w: job %s can no longer be edited", models.ErrValidation, jobID)
	}

	job, err = s.jr.GetByID(ctx, jobID)
	if err != nil {
		return nil, 0, err
	}

	return job, delayUntil(scheduledTime, now), nil
}

func (s *jobService) Remove(ctx context.Context, ownerID, jobID string) error {
	ok, err := s.jr.Remove(ctx, jobID, ownerID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: job %s", models.ErrNotFound, jobID)
	}
	return nil
}

func validateContent(content string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("%w: content cannot be empty", models.ErrValidation)
	}
	if !utf8.ValidString(content) {
		return "", fmt.Errorf("%w: content is not valid UTF-8", models.ErrValidation)
	}
	if n := utf8.RuneCountInString(content); n > models.MaxContentLength {
		return "", fmt.Errorf("%w: content is %d characters, limit is %d", models.ErrValidation, n, models.MaxContentLength)
	}
	return content, nil
}

func parseScheduledTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("%w: scheduled time is required", models.ErrValidation)
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid scheduled time format: %v", models.ErrValidation, err)
	}
	return t.UTC(), nil
}

func delayUntil(t, now time.Time) time.Duration {
	if d := t.Sub(now); d > 0 {
		return d
	}
	return 0
}
