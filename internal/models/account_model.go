package models

import (
	"time"
)

type Account struct {
	OwnerID           string     `db:"owner_id" json:"owner_id"`
	ExternalAccountID string     `db:"external_account_id" json:"external_account_id,omitempty"`
	ExternalUsername  string     `db:"external_username" json:"external_username,omitempty"`
	AccessToken       string     `db:"access_token" json:"-"`
	RefreshToken      string     `db:"refresh_token" json:"-"`
	Connected         bool       `db:"connected" json:"connected"`
	CredentialVersion int64      `db:"credential_version" json:"-"`
	Handshake         *Handshake `json:"-"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// CanPublish is false for accounts the dispatch loop must fail fast on.
func (a *Account) CanPublish() bool {
	return a != nil && a.Connected && a.AccessToken != ""
}

// Handshake is the transient PKCE state of an in-flight authorization.
type Handshake struct {
	OwnerID      string    `db:"owner_id" json:"owner_id"`
	CodeVerifier string    `db:"handshake_code_verifier" json:"code_verifier"`
	State        string    `db:"handshake_state" json:"state"`
	ExpiresAt    time.Time `db:"handshake_expires_at" json:"expires_at"`
}

func (h *Handshake) Expired(now time.Time) bool {
	return h == nil || now.After(h.ExpiresAt)
}

// ConnectedIdentity is written atomically when a handshake completes.
type ConnectedIdentity struct {
	ExternalAccountID string
	ExternalUsername  string
	AccessToken       string
	RefreshToken      string
}
