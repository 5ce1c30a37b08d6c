package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/maheshrc27/tweetflow/internal/models"
)

var (
	_ JobRepository     = (*MemoryJobRepository)(nil)
	_ AccountRepository = (*MemoryAccountRepository)(nil)
)

// MemoryJobRepository is a process-local JobRepository. Every mutation runs
// under one lock, which makes TryClaim a compare-and-swap.
type MemoryJobRepository struct {
	mu   sync.Mutex
	jobs map[string]*models.Job
}

func NewMemoryJobRepository() *MemoryJobRepository {
	return &MemoryJobRepository{jobs: make(map[string]*models.Job)}
}

func copyJob(j *models.Job) *models.Job {
	c := *j
	if j.ClaimedAt != nil {
		t := *j.ClaimedAt
		c.ClaimedAt = &t
	}
	if j.PostedAt != nil {
		t := *j.PostedAt
		c.PostedAt = &t
	}
	return &c
}

func (r *MemoryJobRepository) Create(ctx context.Context, job *models.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.jobs[job.ID]; ok {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	c := copyJob(job)
	c.UpdatedAt = c.CreatedAt
	r.jobs[job.ID] = c
	return nil
}

func (r *MemoryJobRepository) GetByID(ctx context.Context, id string) (*models.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: job %s", models.ErrNotFound, id)
	}
	return copyJob(job), nil
}

func (r *MemoryJobRepository) ListByOwnerID(ctx context.Context, ownerID string, statuses ...models.JobStatus) ([]*models.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var jobs []*models.Job
	for _, job := range r.jobs {
		if job.OwnerID != ownerID || !statusIn(job.Status, statuses) {
			continue
		}
		jobs = append(jobs, copyJob(job))
	}
	sortBySchedule(jobs)
	return jobs, nil
}

func (r *MemoryJobRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]*models.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var jobs []*models.Job
	for _, job := range r.jobs {
		if job.Status == models.JobStatusScheduled && job.ClaimID == "" && !job.ScheduledTime.After(now) {
			jobs = append(jobs, copyJob(job))
		}
	}
	sortBySchedule(jobs)
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

func (r *MemoryJobRepository) TryClaim(ctx context.Context, id, claimID string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok || job.Status != models.JobStatusScheduled || job.ClaimID != "" || job.ScheduledTime.After(now) {
		return false, nil
	}
	job.ClaimID = claimID
	job.ClaimedAt = &now
	job.UpdatedAt = now
	return true, nil
}

func (r *MemoryJobRepository) MarkPosted(ctx context.Context, id, claimID, externalPostID string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok || job.ClaimID != claimID || job.Status != models.JobStatusScheduled {
		return ErrClaimLost
	}
	job.Status = models.JobStatusPosted
	job.ExternalPostID = externalPostID
	job.ErrorMessage = ""
	job.PostedAt = &now
	job.UpdatedAt = now
	return nil
}

func (r *MemoryJobRepository) MarkFailed(ctx context.Context, id, claimID, message string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok || job.ClaimID != claimID || job.Status != models.JobStatusScheduled {
		return ErrClaimLost
	}
	job.Status = models.JobStatusFailed
	job.ErrorMessage = message
	job.UpdatedAt = now
	return nil
}

func (r *MemoryJobRepository) FailStaleClaims(ctx context.Context, claimedBefore time.Time, message string, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var failed int64
	for _, job := range r.jobs {
		if job.Status != models.JobStatusScheduled || job.ClaimID == "" || job.ClaimedAt == nil {
			continue
		}
		if !job.ClaimedAt.Before(claimedBefore) {
			continue
		}
		job.Status = models.JobStatusFailed
		job.ErrorMessage = message
		job.UpdatedAt = now
		failed++
	}
	return failed, nil
}

func (r *MemoryJobRepository) UpdateSchedule(ctx context.Context, id, ownerID, content string, scheduledTime, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok || job.OwnerID != ownerID || !scheduledTime.After(now) || !job.Editable(now) {
		return false, nil
	}
	job.Content = content
	job.ScheduledTime = scheduledTime
	job.Status = models.JobStatusScheduled
	job.ErrorMessage = ""
	job.ClaimID = ""
	job.ClaimedAt = nil
	job.UpdatedAt = now
	return true, nil
}

func (r *MemoryJobRepository) Remove(ctx context.Context, id, ownerID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok || job.OwnerID != ownerID {
		return false, nil
	}
	delete(r.jobs, id)
	return true, nil
}

func statusIn(s models.JobStatus, statuses []models.JobStatus) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, want := range statuses {
		if s == want {
			return true
		}
	}
	return false
}

func sortBySchedule(jobs []*models.Job) {
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].ScheduledTime.Equal(jobs[j].ScheduledTime) {
			return jobs[i].ID < jobs[j].ID
		}
		return jobs[i].ScheduledTime.Before(jobs[j].ScheduledTime)
	})
}

// MemoryAccountRepository is a process-local AccountRepository.
type MemoryAccountRepository struct {
	mu       sync.Mutex
	accounts map[string]*models.Account
}

func NewMemoryAccountRepository() *MemoryAccountRepository {
	return &MemoryAccountRepository{accounts: make(map[string]*models.Account)}
}

func copyAccount(a *models.Account) *models.Account {
	c := *a
	if a.Handshake != nil {
		h := *a.Handshake
		c.Handshake = &h
	}
	return &c
}

// Put stores acc as is. It seeds fixtures for tests and development.
func (r *MemoryAccountRepository) Put(acc *models.Account) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts[acc.OwnerID] = copyAccount(acc)
}

func (r *MemoryAccountRepository) GetByOwnerID(ctx context.Context, ownerID string) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	acc, ok := r.accounts[ownerID]
	if !ok {
		return nil, fmt.Errorf("%w: account %s", models.ErrNotFound, ownerID)
	}
	return copyAccount(acc), nil
}

func (r *MemoryAccountRepository) FindByHandshakeState(ctx context.Context, state string) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, acc := range r.accounts {
		if acc.Handshake != nil && acc.Handshake.State == state {
			return copyAccount(acc), nil
		}
	}
	return nil, fmt.Errorf("%w: handshake state", models.ErrNotFound)
}

func (r *MemoryAccountRepository) UpsertHandshake(ctx context.Context, h *models.Handshake, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	acc, ok := r.accounts[h.OwnerID]
	if !ok {
		acc = &models.Account{OwnerID: h.OwnerID, CreatedAt: now}
		r.accounts[h.OwnerID] = acc
	}
	hs := *h
	acc.Handshake = &hs
	acc.UpdatedAt = now
	return nil
}

func (r *MemoryAccountRepository) Connect(ctx context.Context, ownerID, state string, identity *models.ConnectedIdentity, now time.Time) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	acc, ok := r.accounts[ownerID]
	if !ok {
		acc = &models.Account{OwnerID: ownerID, CreatedAt: now}
		r.accounts[ownerID] = acc
	} else if acc.Handshake == nil || acc.Handshake.State != state {
		return nil, fmt.Errorf("%w: handshake superseded", models.ErrHandshakeStateMismatch)
	}
	acc.ExternalAccountID = identity.ExternalAccountID
	acc.ExternalUsername = identity.ExternalUsername
	acc.AccessToken = identity.AccessToken
	acc.RefreshToken = identity.RefreshToken
	acc.Connected = true
	acc.CredentialVersion++
	acc.Handshake = nil
	acc.UpdatedAt = now
	return copyAccount(acc), nil
}

func (r *MemoryAccountRepository) Disconnect(ctx context.Context, ownerID string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	acc, ok := r.accounts[ownerID]
	if !ok {
		return fmt.Errorf("%w: account %s", models.ErrNotFound, ownerID)
	}
	acc.ExternalAccountID = ""
	acc.ExternalUsername = ""
	acc.AccessToken = ""
	acc.RefreshToken = ""
	acc.Connected = false
	acc.CredentialVersion++
	acc.UpdatedAt = now
	return nil
}

func (r *MemoryAccountRepository) MarkDisconnected(ctx context.Context, ownerID string, credentialVersion int64, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	acc, ok := r.accounts[ownerID]
	if !ok || !acc.Connected || acc.CredentialVersion != credentialVersion {
		return false, nil
	}
	acc.Connected = false
	acc.UpdatedAt = now
	return true, nil
}

func (r *MemoryAccountRepository) ClearExpiredHandshakes(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var cleared int64
	for _, acc := range r.accounts {
		if acc.Handshake != nil && acc.Handshake.ExpiresAt.Before(now) {
			acc.Handshake = nil
			cleared++
		}
	}
	return cleared, nil
}
