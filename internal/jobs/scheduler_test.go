package job

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/maheshrc27/tweetflow/internal/models"
	"github.com/maheshrc27/tweetflow/internal/repository"
	"github.com/maheshrc27/tweetflow/internal/service"
)

func TestScheduler_RunsEntries(t *testing.T) {
	s := NewScheduler()

	var runs atomic.Int32
	fired := make(chan struct{}, 1)
	s.Every(time.Second, func() {
		runs.Add(1)
		select {
		case fired <- struct{}{}:
		default:
		}
	})
	s.Every(time.Minute, func() {})

	if s.Entries() != 2 {
		t.Fatalf("expected 2 entries, got %d", s.Entries())
	}

	s.Start()
	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatalf("entry did not fire")
	}
	<-s.Stop().Done()

	if runs.Load() == 0 {
		t.Fatalf("expected at least one run")
	}
}

func TestHandshakeCleanupJob_ClearExpired(t *testing.T) {
	accounts := repository.NewMemoryAccountRepository()
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	ctx := context.Background()

	_ = accounts.UpsertHandshake(ctx, &models.Handshake{OwnerID: "stale", State: "s1", ExpiresAt: now.Add(-time.Minute)}, now)
	_ = accounts.UpsertHandshake(ctx, &models.Handshake{OwnerID: "live", State: "s2", ExpiresAt: now.Add(time.Minute)}, now)

	hs := service.NewHandshakeService(accounts, nil, 10*time.Minute, func() time.Time { return now })
	NewHandshakeCleanupJob(hs).ClearExpired()

	if _, err := accounts.FindByHandshakeState(ctx, "s1"); err == nil {
		t.Fatalf("expired handshake must be cleared")
	}
	if _, err := accounts.FindByHandshakeState(ctx, "s2"); err != nil {
		t.Fatalf("live handshake must survive: %v", err)
	}
}
