package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maheshrc27/tweetflow/internal/models"
	"github.com/maheshrc27/tweetflow/internal/repository"
	"github.com/maheshrc27/tweetflow/internal/transfer"
	"github.com/maheshrc27/tweetflow/pkg/utils"
	"golang.org/x/oauth2"
)

const stateLength = 32

// HandshakeSession is the per-browser copy of an in-flight handshake.
type HandshakeSession interface {
	Handshake() *models.Handshake
	SetHandshake(h *models.Handshake) error
	ClearHandshake() error
}

type HandshakeService interface {
	Begin(ctx context.Context, ownerID string, session HandshakeSession) (string, error)
	Complete(ctx context.Context, code, state string, session HandshakeSession) (*models.Account, error)
	CleanupExpired(ctx context.Context) (int64, error)
	Disconnect(ctx context.Context, ownerID string) error
	Status(ctx context.Context, ownerID string) (*transfer.AccountStatus, error)
}

type handshakeService struct {
	a   repository.AccountRepository
	p   IdentityProvider
	ttl time.Duration
	now func() time.Time
}

func NewHandshakeService(a repository.AccountRepository, p IdentityProvider, ttl time.Duration, now func() time.Time) HandshakeService {
	if now == nil {
		now = time.Now
	}
	return &handshakeService{
		a:   a,
		p:   p,
		ttl: ttl,
		now: now,
	}
}

// Begin starts a PKCE authorization for ownerID and returns the consent URL.
// The handshake is written to the session and to the account record.
func (s *handshakeService) Begin(ctx context.Context, ownerID string, session HandshakeSession) (string, error) {
	if ownerID == "" {
		return "", fmt.Errorf("%w: owner id is required", models.ErrValidation)
	}

	state, err := utils.GenerateRandomKey(stateLength)
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}

	now := s.now()
	h := &models.Handshake{
		OwnerID:      ownerID,
		CodeVerifier: oauth2.GenerateVerifier(),
		State:        state,
		ExpiresAt:    now.Add(s.ttl),
	}

	if err := s.a.UpsertHandshake(ctx, h, now); err != nil {
		return "", err
	}

	if session != nil {
		if err := session.SetHandshake(h); err != nil {
			slog.Info("failed to store handshake in session", "owner_id", ownerID, "error", err)
		}
	}

	return s.p.AuthCodeURL(h.State, h.CodeVerifier), nil
}

func (s *handshakeService) Complete(ctx context.Context, code, state string, session HandshakeSession) (*models.Account, error) {
	if code == "" || state == "" {
		return nil, fmt.Errorf("%w: code or state is empty", models.ErrValidation)
	}

	source, err := s.resolve(ctx, state, session)
	if err != nil {
		return nil, err
	}

	token, err := s.p.Exchange(ctx, code, source.CodeVerifier)
	if err != nil {
		return nil, providerError(err)
	}

	user, err := s.p.FetchIdentity(ctx, token.AccessToken)
	if err != nil {
		return nil, providerError(err)
	}

	acc, err := s.a.Connect(ctx, source.OwnerID, source.State, &models.ConnectedIdentity{
		ExternalAccountID: user.ID,
		ExternalUsername:  user.Username,
		AccessToken:       token.AccessToken,
		RefreshToken:      token.RefreshToken,
	}, s.now())
	if err != nil {
		return nil, err
	}

	if session != nil {
		if err := session.ClearHandshake(); err != nil {
			slog.Info("failed to clear session handshake", "owner_id", source.OwnerID, "error", err)
		}
	}

	slog.Info("account connected", "owner_id", acc.OwnerID, "username", acc.ExternalUsername)
	return acc, nil
}

// resolve picks the handshake the callback is completing. A live session copy
// wins; otherwise the durable copy is looked up by state.
func (s *handshakeService) resolve(ctx context.Context, state string, session HandshakeSession) (*models.Handshake, error) {
	now := s.now()

	var sessionCopy *models.Handshake
	if session != nil {
		sessionCopy = session.Handshake()
	}

	if sessionCopy != nil && !sessionCopy.Expired(now) {
		if sessionCopy.State != state {
			return nil, models.ErrHandshakeStateMismatch
		}
		return sessionCopy, nil
	}

	acc, err := s.a.FindByHandshakeState(ctx, state)
	switch {
	case err == nil && !acc.Handshake.Expired(now):
		return acc.Handshake, nil
	case err == nil:
		return nil, models.ErrHandshakeExpired
	case errors.Is(err, models.ErrNotFound):
		if sessionCopy != nil && sessionCopy.State == state {
			return nil, models.ErrHandshakeExpired
		}
		return nil, models.ErrHandshakeStateMismatch
	default:
		return nil, err
	}
}

func (s *handshakeService) CleanupExpired(ctx context.Context) (int64, error) {
	cleared, err := s.a.ClearExpiredHandshakes(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if cleared > 0 {
		slog.Info("expired handshakes cleared", "count", cleared)
	}
	return cleared, nil
}

func (s *handshakeService) Disconnect(ctx context.Context, ownerID string) error {
	if ownerID == "" {
		return fmt.Errorf("%w: owner id is required", models.ErrValidation)
	}
	return s.a.Disconnect(ctx, ownerID, s.now())
}

func (s *handshakeService) Status(ctx context.Context, ownerID string) (*transfer.AccountStatus, error) {
	acc, err := s.a.GetByOwnerID(ctx, ownerID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return &transfer.AccountStatus{Connected: false}, nil
		}
		return nil, err
	}

	status := &transfer.AccountStatus{Connected: acc.Connected}
	if acc.Connected {
		status.Username = acc.ExternalUsername
	}
	return status, nil
}

func providerError(err error) error {
	if errors.Is(err, models.ErrProviderExchange) {
		return err
	}
	return fmt.Errorf("%w: %v", models.ErrProviderExchange, err)
}
