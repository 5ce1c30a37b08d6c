package job

import (
	"context"
	"log/slog"

	"github.com/maheshrc27/tweetflow/internal/service"
)

type HandshakeCleanupJob struct {
	hs service.HandshakeService
}

func NewHandshakeCleanupJob(hs service.HandshakeService) *HandshakeCleanupJob {
	return &HandshakeCleanupJob{
		hs: hs,
	}
}

// ClearExpired drops durable handshake copies whose expiry has passed.
func (c *HandshakeCleanupJob) ClearExpired() {
	ctx := context.Background()

	if _, err := c.hs.CleanupExpired(ctx); err != nil {
		slog.Info("Unable to clear expired handshakes", "error", err)
	}
}
