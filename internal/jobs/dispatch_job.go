package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	config "github.com/maheshrc27/tweetflow/configs"
	"github.com/maheshrc27/tweetflow/internal/models"
	"github.com/maheshrc27/tweetflow/internal/repository"
	"github.com/maheshrc27/tweetflow/internal/service"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// ErrDispatchInterrupted is recorded on jobs whose claim never reached a
// terminal write. Whether the post went out is unknown.
var ErrDispatchInterrupted = errors.New("dispatch interrupted; post state unknown")

const (
	defaultBatchSize    = 100
	defaultClaimTimeout = 5 * time.Minute
)

// Dispatcher publishes due jobs. Each job is claimed with one conditional
// write before the publisher is called, so overlapping ticks and queue nudges
// never post the same job twice.
type Dispatcher struct {
	jr  repository.JobRepository
	ar  repository.AccountRepository
	p   service.Publisher
	cfg config.Dispatch
	now func() time.Time

	running atomic.Bool
}

func NewDispatcher(
	jr repository.JobRepository,
	ar repository.AccountRepository,
	p service.Publisher,
	cfg config.Dispatch,
	now func() time.Time) *Dispatcher {
	if now == nil {
		now = time.Now
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.ClaimTimeout <= 0 {
		cfg.ClaimTimeout = defaultClaimTimeout
	}
	// a live dispatch spends at most two publisher calls under its claim
	if floor := 2*cfg.PublishTimeout + time.Minute; cfg.ClaimTimeout < floor {
		cfg.ClaimTimeout = floor
	}
	return &Dispatcher{
		jr:  jr,
		ar:  ar,
		p:   p,
		cfg: cfg,
		now: now,
	}
}

// Run is the cron entry point.
func (d *Dispatcher) Run() {
	d.Tick(context.Background())
}

// Tick runs one scan. It reports false when skipped because the previous tick
// is still in flight.
func (d *Dispatcher) Tick(ctx context.Context) bool {
	if !d.running.CompareAndSwap(false, true) {
		slog.Info("dispatch tick skipped, previous tick still running")
		return false
	}
	defer d.running.Store(false)

	d.failStaleClaims(ctx)

	jobs, err := d.jr.FindDue(ctx, d.now(), d.cfg.BatchSize)
	if err != nil {
		slog.Info(err.Error())
		return true
	}
	if len(jobs) == 0 {
		return true
	}

	slog.Info("dispatching due jobs", "count", len(jobs))

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, d.cfg.Concurrency)

	for _, job := range jobs {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(job *models.Job) {
			defer wg.Done()
			defer func() { <-semaphore }()

			d.dispatch(ctx, job)
		}(job)
	}

	wg.Wait()
	return true
}

// failStaleClaims closes out claims left behind by a crash or a failed
// terminal write so the owner sees the job as failed and can reschedule it.
func (d *Dispatcher) failStaleClaims(ctx context.Context) {
	now := d.now()
	failed, err := d.jr.FailStaleClaims(ctx, now.Add(-d.cfg.ClaimTimeout), ErrDispatchInterrupted.Error(), now)
	if err != nil {
		slog.Info(err.Error())
		return
	}
	if failed > 0 {
		slog.Info("stale claims failed", "count", failed)
	}
}

// ProcessJob dispatches a single job if it is still due and unclaimed. Jobs
// that were deleted, edited to a later time or already handled are ignored.
func (d *Dispatcher) ProcessJob(ctx context.Context, jobID string) error {
	job, err := d.jr.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			slog.Info("queued job no longer exists", "job_id", jobID)
			return nil
		}
		return err
	}

	if job.Status != models.JobStatusScheduled || job.ClaimID != "" || job.ScheduledTime.After(d.now()) {
		return nil
	}

	d.dispatch(ctx, job)
	return nil
}

func (d *Dispatcher) dispatch(ctx context.Context, job *models.Job) {
	claimID := ""
	defer func() {
		if r := recover(); r != nil {
			slog.Error("dispatch panicked", "job_id", job.ID, "panic", r)
			if claimID != "" {
				d.fail(ctx, job, claimID, fmt.Sprintf("internal error: %v", r))
			}
		}
	}()

	id, err := gonanoid.New()
	if err != nil {
		slog.Info(err.Error())
		return
	}

	claimed, err := d.jr.TryClaim(ctx, job.ID, id, d.now())
	if err != nil {
		slog.Info(err.Error())
		return
	}
	if !claimed {
		return
	}
	claimID = id

	acc, err := d.ar.GetByOwnerID(ctx, job.OwnerID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		d.fail(ctx, job, claimID, err.Error())
		return
	}
	if !acc.CanPublish() {
		d.fail(ctx, job, claimID, models.ErrAccountNotConnected.Error())
		return
	}

	valid, err := d.verify(ctx, acc.AccessToken)
	if err != nil {
		slog.Info("token verification unavailable, publishing anyway", "job_id", job.ID, "error", err)
	} else if !valid {
		d.authFailed(ctx, job, claimID, acc, fmt.Errorf("%w; reconnect the account", models.ErrAuthExpired))
		return
	}

	postID, err := d.publish(ctx, acc.AccessToken, job)
	if err != nil {
		if errors.Is(err, models.ErrAuthExpired) {
			d.authFailed(ctx, job, claimID, acc, err)
			return
		}
		d.fail(ctx, job, claimID, err.Error())
		return
	}

	if err := d.jr.MarkPosted(ctx, job.ID, claimID, postID, d.now()); err != nil {
		slog.Info("failed to record posted job", "job_id", job.ID, "post_id", postID, "error", err)
		return
	}

	slog.Info("job posted", "job_id", job.ID, "post_id", postID)
}

func (d *Dispatcher) verify(ctx context.Context, accessToken string) (bool, error) {
	callCtx, cancel := d.callContext(ctx)
	defer cancel()

	valid, err := d.p.VerifyToken(callCtx, accessToken)
	if err != nil {
		return false, classify(callCtx, err)
	}
	return valid, nil
}

func (d *Dispatcher) publish(ctx context.Context, accessToken string, job *models.Job) (string, error) {
	callCtx, cancel := d.callContext(ctx)
	defer cancel()

	postID, err := d.p.Publish(callCtx, accessToken, job)
	if err != nil {
		return "", classify(callCtx, err)
	}
	return postID, nil
}

func (d *Dispatcher) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.cfg.PublishTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d.cfg.PublishTimeout)
}

// classify makes sure every publisher error carries one of the three
// outcome kinds. Unknown errors and expired deadlines are transient.
func classify(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, models.ErrAuthExpired),
		errors.Is(err, models.ErrTransient),
		errors.Is(err, models.ErrPermanent):
		return err
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: publish timed out: %v", models.ErrTransient, err)
	default:
		return fmt.Errorf("%w: %v", models.ErrTransient, err)
	}
}

func (d *Dispatcher) authFailed(ctx context.Context, job *models.Job, claimID string, acc *models.Account, cause error) {
	flipped, err := d.ar.MarkDisconnected(ctx, acc.OwnerID, acc.CredentialVersion, d.now())
	if err != nil {
		slog.Info(err.Error())
	} else if flipped {
		slog.Info("account disconnected after auth failure", "owner_id", acc.OwnerID)
	}
	d.fail(ctx, job, claimID, cause.Error())
}

func (d *Dispatcher) fail(ctx context.Context, job *models.Job, claimID, message string) {
	if err := d.jr.MarkFailed(ctx, job.ID, claimID, message, d.now()); err != nil {
		slog.Info("failed to record failed job", "job_id", job.ID, "error", err)
		return
	}
	slog.Info("job failed", "job_id", job.ID, "error", message)
}
