package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/maheshrc27/tweetflow/internal/models"
	"github.com/maheshrc27/tweetflow/internal/repository"
	"github.com/maheshrc27/tweetflow/internal/transfer"
)

func newJobFixture() (*repository.MemoryJobRepository, *testClock, JobService) {
	jobs := repository.NewMemoryJobRepository()
	clock := &testClock{t: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	return jobs, clock, NewJobService(jobs, clock.Now)
}

func TestJobService_Schedule(t *testing.T) {
	jobs, clock, svc := newJobFixture()
	ctx := context.Background()

	at := clock.Now().Add(90 * time.Second)
	job, delay, err := svc.Schedule(ctx, "owner-1", &transfer.JobCreation{
		Content:       "Hello",
		ScheduledTime: at.Format(time.RFC3339),
	})
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if len(job.ID) != 21 {
		t.Fatalf("expected nanoid id, got %q", job.ID)
	}
	if job.Status != models.JobStatusScheduled || job.HasMedia {
		t.Fatalf("unexpected job %+v", job)
	}
	if delay != 90*time.Second {
		t.Fatalf("expected 90s delay, got %v", delay)
	}
	if _, err := jobs.GetByID(ctx, job.ID); err != nil {
		t.Fatalf("job not stored: %v", err)
	}
}

func TestJobService_ScheduleValidation(t *testing.T) {
	_, clock, svc := newJobFixture()
	at := clock.Now().Add(time.Hour).Format(time.RFC3339)

	cases := []struct {
		name string
		jc   *transfer.JobCreation
	}{
		{"blank", &transfer.JobCreation{Content: "   ", ScheduledTime: at}},
		{"too long", &transfer.JobCreation{Content: strings.Repeat("a", 281), ScheduledTime: at}},
		{"missing time", &transfer.JobCreation{Content: "hi"}},
		{"bad time", &transfer.JobCreation{Content: "hi", ScheduledTime: "tomorrow"}},
		{"nil", nil},
	}
	for _, tc := range cases {
		if _, _, err := svc.Schedule(context.Background(), "owner-1", tc.jc); !errors.Is(err, models.ErrValidation) {
			t.Fatalf("%s: expected ErrValidation, got %v", tc.name, err)
		}
	}
}

func TestJobService_ContentCountsCodePoints(t *testing.T) {
	_, clock, svc := newJobFixture()
	at := clock.Now().Add(time.Hour).Format(time.RFC3339)

	// 280 multi-byte runes is within the limit
	content := strings.Repeat("é", 280)
	if _, _, err := svc.Schedule(context.Background(), "owner-1", &transfer.JobCreation{Content: content, ScheduledTime: at}); err != nil {
		t.Fatalf("expected 280 code points to be accepted: %v", err)
	}
	if _, _, err := svc.Schedule(context.Background(), "owner-1", &transfer.JobCreation{Content: content + "é", ScheduledTime: at}); !errors.Is(err, models.ErrValidation) {
		t.Fatalf("expected 281 code points to be rejected, got %v", err)
	}
}

func TestJobService_MediaRefMarksMedia(t *testing.T) {
	_, clock, svc := newJobFixture()
	job, _, err := svc.Schedule(context.Background(), "owner-1", &transfer.JobCreation{
		Content:       "with picture",
		ScheduledTime: clock.Now().Add(time.Hour).Format(time.RFC3339),
		MediaRef:      "uploads/cat.png",
	})
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if !job.HasMedia || job.MediaRef != "uploads/cat.png" {
		t.Fatalf("unexpected media fields %+v", job)
	}
}

func TestJobService_ListScopedAndSorted(t *testing.T) {
	jobs, clock, svc := newJobFixture()
	ctx := context.Background()

	for i, offset := range []time.Duration{3 * time.Hour, time.Hour, 2 * time.Hour} {
		owner := "owner-1"
		if i == 2 {
			owner = "owner-2"
		}
		_, _, err := svc.Schedule(ctx, owner, &transfer.JobCreation{
			Content:       "post",
			ScheduledTime: clock.Now().Add(offset).Format(time.RFC3339),
		})
		if err != nil {
			t.Fatalf("Schedule: %v", err)
		}
	}

	posted := &models.Job{ID: "posted", OwnerID: "owner-1", Content: "done", ScheduledTime: clock.Now(), Status: models.JobStatusPosted}
	_ = jobs.Create(ctx, posted)

	list, err := svc.List(ctx, "owner-1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(list))
	}
	if !list[0].ScheduledTime.Before(list[1].ScheduledTime) {
		t.Fatalf("jobs not sorted by scheduled time")
	}

	empty, _ := svc.List(ctx, "owner-3")
	if empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty slice, got %v", empty)
	}
}

func TestJobService_EditPastDueRejected(t *testing.T) {
	jobs, clock, svc := newJobFixture()
	ctx := context.Background()

	job, _, _ := svc.Schedule(ctx, "owner-1", &transfer.JobCreation{
		Content:       "Hello",
		ScheduledTime: clock.Now().Add(time.Minute).Format(time.RFC3339),
	})
	clock.Advance(2 * time.Minute)

	_, _, err := svc.Edit(ctx, "owner-1", job.ID, &transfer.JobUpdate{
		Content:       "changed",
		ScheduledTime: clock.Now().Add(time.Hour).Format(time.RFC3339),
	})
	if !errors.Is(err, models.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}

	stored, _ := jobs.GetByID(ctx, job.ID)
	if stored.Content != "Hello" || !stored.ScheduledTime.Equal(job.ScheduledTime) {
		t.Fatalf("job must be unchanged: %+v", stored)
	}
}

func TestJobService_EditFutureJob(t *testing.T) {
	_, clock, svc := newJobFixture()
	ctx := context.Background()

	job, _, _ := svc.Schedule(ctx, "owner-1", &transfer.JobCreation{
		Content:       "Hello",
		ScheduledTime: clock.Now().Add(time.Hour).Format(time.RFC3339),
	})

	edited, delay, err := svc.Edit(ctx, "owner-1", job.ID, &transfer.JobUpdate{
		Content:       "Hello again",
		ScheduledTime: clock.Now().Add(2 * time.Hour).Format(time.RFC3339),
	})
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if edited.Content != "Hello again" || delay != 2*time.Hour {
		t.Fatalf("unexpected edit result %+v delay=%v", edited, delay)
	}

	_, _, err = svc.Edit(ctx, "owner-1", job.ID, &transfer.JobUpdate{
		Content:       "into the past",
		ScheduledTime: clock.Now().Add(-time.Hour).Format(time.RFC3339),
	})
	if !errors.Is(err, models.ErrValidation) {
		t.Fatalf("expected ErrValidation for past time, got %v", err)
	}

	if _, _, err := svc.Edit(ctx, "owner-2", job.ID, &transfer.JobUpdate{
		Content:       "not mine",
		ScheduledTime: clock.Now().Add(3 * time.Hour).Format(time.RFC3339),
	}); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for other owner, got %v", err)
	}
}

func TestJobService_EditReopensFailed(t *testing.T) {
	jobs, clock, svc := newJobFixture()
	ctx := context.Background()

	job, _, _ := svc.Schedule(ctx, "owner-1", &transfer.JobCreation{
		Content:       "Hello",
		ScheduledTime: clock.Now().Format(time.RFC3339),
	})
	_, _ = jobs.TryClaim(ctx, job.ID, "c1", clock.Now())
	_ = jobs.MarkFailed(ctx, job.ID, "c1", "account not connected", clock.Now())

	reopened, _, err := svc.Edit(ctx, "owner-1", job.ID, &transfer.JobUpdate{
		Content:       "Hello",
		ScheduledTime: clock.Now().Add(time.Hour).Format(time.RFC3339),
	})
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if reopened.Status != models.JobStatusScheduled || reopened.ErrorMessage != "" {
		t.Fatalf("failed job not reopened: %+v", reopened)
	}
}

func TestJobService_EditPostedRejected(t *testing.T) {
	jobs, clock, svc := newJobFixture()
	ctx := context.Background()

	job, _, _ := svc.Schedule(ctx, "owner-1", &transfer.JobCreation{
		Content:       "Hello",
		ScheduledTime: clock.Now().Format(time.RFC3339),
	})
	_, _ = jobs.TryClaim(ctx, job.ID, "c1", clock.Now())
	_ = jobs.MarkPosted(ctx, job.ID, "c1", "42", clock.Now())

	_, _, err := svc.Edit(ctx, "owner-1", job.ID, &transfer.JobUpdate{
		Content:       "again",
		ScheduledTime: clock.Now().Add(time.Hour).Format(time.RFC3339),
	})
	if !errors.Is(err, models.ErrValidation) {
		t.Fatalf("expected ErrValidation for posted job, got %v", err)
	}
}

func TestJobService_GetAndRemove(t *testing.T) {
	_, clock, svc := newJobFixture()
	ctx := context.Background()

	job, _, _ := svc.Schedule(ctx, "owner-1", &transfer.JobCreation{
		Content:       "Hello",
		ScheduledTime: clock.Now().Add(time.Hour).Format(time.RFC3339),
	})

	if _, err := svc.Get(ctx, "owner-2", job.ID); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for other owner, got %v", err)
	}
	if err := svc.Remove(ctx, "owner-2", job.ID); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound removing other owner's job, got %v", err)
	}
	if err := svc.Remove(ctx, "owner-1", job.ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := svc.Get(ctx, "owner-1", job.ID); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after remove, got %v", err)
	}
}
