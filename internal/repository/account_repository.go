package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/maheshrc27/tweetflow/internal/models"
	"github.com/maheshrc27/tweetflow/pkg/utils"
)

type AccountRepository interface {
	GetByOwnerID(ctx context.Context, ownerID string) (*models.Account, error)
	FindByHandshakeState(ctx context.Context, state string) (*models.Account, error)
	UpsertHandshake(ctx context.Context, h *models.Handshake, now time.Time) error
	Connect(ctx context.Context, ownerID, state string, identity *models.ConnectedIdentity, now time.Time) (*models.Account, error)
	Disconnect(ctx context.Context, ownerID string, now time.Time) error
	MarkDisconnected(ctx context.Context, ownerID string, credentialVersion int64, now time.Time) (bool, error)
	ClearExpiredHandshakes(ctx context.Context, now time.Time) (int64, error)
}

type accountRepository struct {
	db  *sql.DB
	key []byte
}

// NewAccountRepository stores tokens AES-GCM sealed when tokenKey is a valid
// AES key, and as given otherwise. tokenKey must not be the JWT secret.
func NewAccountRepository(db *sql.DB, tokenKey string) AccountRepository {
	key := []byte(tokenKey)
	if !utils.ValidKey(key) {
		slog.Warn("TOKEN_ENCRYPTION_KEY is not a 16/24/32 byte key; account tokens are stored unencrypted")
		key = nil
	}
	return &accountRepository{db: db, key: key}
}

const accountColumns = `owner_id, external_account_id, external_username, access_token, refresh_token,
	connected, credential_version, handshake_code_verifier, handshake_state, handshake_expires_at,
	created_at, updated_at`

func (r *accountRepository) scanAccount(row rowScanner) (*models.Account, error) {
	var acc models.Account
	var verifier, state sql.NullString
	var expiresAt sql.NullTime

	err := row.Scan(&acc.OwnerID, &acc.ExternalAccountID, &acc.ExternalUsername, &acc.AccessToken,
		&acc.RefreshToken, &acc.Connected, &acc.CredentialVersion, &verifier, &state, &expiresAt,
		&acc.CreatedAt, &acc.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if state.Valid && expiresAt.Valid {
		acc.Handshake = &models.Handshake{
			OwnerID:      acc.OwnerID,
			CodeVerifier: verifier.String,
			State:        state.String,
			ExpiresAt:    expiresAt.Time,
		}
	}

	if acc.AccessToken, err = r.open(acc.AccessToken); err != nil {
		return nil, err
	}
	if acc.RefreshToken, err = r.open(acc.RefreshToken); err != nil {
		return nil, err
	}

	return &acc, nil
}

func (r *accountRepository) seal(token string) (string, error) {
	if r.key == nil || token == "" {
		return token, nil
	}
	return utils.Encrypt([]byte(token), r.key)
}

func (r *accountRepository) open(token string) (string, error) {
	if r.key == nil || token == "" {
		return token, nil
	}
	return utils.Decrypt(token, r.key)
}

func (r *accountRepository) GetByOwnerID(ctx context.Context, ownerID string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE owner_id = $1`

	acc, err := r.scanAccount(r.db.QueryRowContext(ctx, query, ownerID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: account %s", models.ErrNotFound, ownerID)
		}
		slog.Info(err.Error())
		return nil, err
	}

	return acc, nil
}

func (r *accountRepository) FindByHandshakeState(ctx context.Context, state string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE handshake_state = $1`

	acc, err := r.scanAccount(r.db.QueryRowContext(ctx, query, state))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: handshake state", models.ErrNotFound)
		}
		slog.Info(err.Error())
		return nil, err
	}

	return acc, nil
}

func (r *accountRepository) UpsertHandshake(ctx context.Context, h *models.Handshake, now time.Time) error {
	query := `
		INSERT INTO accounts (owner_id, handshake_code_verifier, handshake_state, handshake_expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (owner_id) DO UPDATE
		   SET handshake_code_verifier = EXCLUDED.handshake_code_verifier,
		       handshake_state = EXCLUDED.handshake_state,
		       handshake_expires_at = EXCLUDED.handshake_expires_at,
		       updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query, h.OwnerID, h.CodeVerifier, h.State, h.ExpiresAt.UTC(), now.UTC())
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	return nil
}

// Connect stores fresh credentials, bumps the credential version and clears
// the durable handshake copy in one statement. The update only applies while
// the stored handshake state is still state; a newer Begin wins.
func (r *accountRepository) Connect(ctx context.Context, ownerID, state string, identity *models.ConnectedIdentity, now time.Time) (*models.Account, error) {
	accessToken, err := r.seal(identity.AccessToken)
	if err != nil {
		return nil, err
	}
	refreshToken, err := r.seal(identity.RefreshToken)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO accounts (owner_id, external_account_id, external_username, access_token, refresh_token,
		                      connected, credential_version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, TRUE, 1, $6, $6)
		ON CONFLICT (owner_id) DO UPDATE
		   SET external_account_id = EXCLUDED.external_account_id,
		       external_username = EXCLUDED.external_username,
		       access_token = EXCLUDED.access_token,
		       refresh_token = EXCLUDED.refresh_token,
		       connected = TRUE,
		       credential_version = accounts.credential_version + 1,
		       handshake_code_verifier = NULL,
		       handshake_state = NULL,
		       handshake_expires_at = NULL,
		       updated_at = EXCLUDED.updated_at
		 WHERE accounts.handshake_state = $7
		RETURNING ` + accountColumns

	acc, err := r.scanAccount(r.db.QueryRowContext(ctx, query, ownerID, identity.ExternalAccountID,
		identity.ExternalUsername, accessToken, refreshToken, now.UTC(), state))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: handshake superseded", models.ErrHandshakeStateMismatch)
		}
		slog.Info(err.Error())
		return nil, err
	}

	return acc, nil
}

func (r *accountRepository) Disconnect(ctx context.Context, ownerID string, now time.Time) error {
	query := `
		UPDATE accounts
		   SET external_account_id = '',
		       external_username = '',
		       access_token = '',
		       refresh_token = '',
		       connected = FALSE,
		       credential_version = credential_version + 1,
		       updated_at = $2
		 WHERE owner_id = $1
	`

	result, err := r.db.ExecContext(ctx, query, ownerID, now.UTC())
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
		return fmt.Errorf("%w: account %s", models.ErrNotFound, ownerID)
	}

	return nil
}

// MarkDisconnected flips connected off only while the stored credentials are
// still the ones that failed, so a reconnect racing the dispatch loop wins.
func (r *accountRepository) MarkDisconnected(ctx context.Context, ownerID string, credentialVersion int64, now time.Time) (bool, error) {
	query := `
		UPDATE accounts
		   SET connected = FALSE,
		       updated_at = $3
		 WHERE owner_id = $1
		   AND credential_version = $2
		   AND connected = TRUE
	`

	result, err := r.db.ExecContext(ctx, query, ownerID, credentialVersion, now.UTC())
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

func (r *accountRepository) ClearExpiredHandshakes(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE accounts
		   SET handshake_code_verifier = NULL,
		       handshake_state = NULL,
		       handshake_expires_at = NULL
		 WHERE handshake_expires_at IS NOT NULL
		   AND handshake_expires_at < $1
	`

	result, err := r.db.ExecContext(ctx, query, now.UTC())
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	cleared, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return cleared, nil
}
