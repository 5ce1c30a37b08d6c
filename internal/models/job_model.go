package models

import "time"

const MaxContentLength = 280

type JobStatus string

const (
	JobStatusScheduled JobStatus = "scheduled"
	JobStatusPosted    JobStatus = "posted"
	JobStatusFailed    JobStatus = "failed"
)

type Job struct {
	ID             string     `db:"id" json:"id"`
	OwnerID        string     `db:"owner_id" json:"owner_id"`
	Content        string     `db:"content" json:"content"`
	ScheduledTime  time.Time  `db:"scheduled_time" json:"scheduled_time"`
	Status         JobStatus  `db:"status" json:"status"`
	ExternalPostID string     `db:"external_post_id" json:"external_post_id,omitempty"`
	ErrorMessage   string     `db:"error_message" json:"error_message,omitempty"`
	HasMedia       bool       `db:"has_media" json:"has_media"`
	MediaRef       string     `db:"media_ref" json:"media_ref,omitempty"`
	ClaimID        string     `db:"claim_id" json:"-"`
	ClaimedAt      *time.Time `db:"claimed_at" json:"-"`
	PostedAt       *time.Time `db:"posted_at" json:"posted_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// Terminal reports whether the dispatch loop is done with the job.
func (j *Job) Terminal() bool {
	return j.Status == JobStatusPosted || j.Status == JobStatusFailed
}

// Editable reports whether an edit made at now may touch the job. Scheduled
// jobs must be unclaimed and not yet due; failed jobs can always be reopened,
// the caller checks that the new time lies in the future.
func (j *Job) Editable(now time.Time) bool {
	switch j.Status {
	case JobStatusScheduled:
		return j.ClaimID == "" && j.ScheduledTime.After(now)
	case JobStatusFailed:
		return true
	default:
		return false
	}
}
