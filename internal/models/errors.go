package models

import "errors"

var (
	ErrValidation             = errors.New("validation error")
	ErrNotFound               = errors.New("not found")
	ErrHandshakeExpired       = errors.New("handshake expired")
	ErrHandshakeStateMismatch = errors.New("handshake state mismatch")
	ErrProviderExchange       = errors.New("provider exchange failed")
	ErrAccountNotConnected    = errors.New("account not connected")
	ErrAuthExpired            = errors.New("access token expired or revoked")
	ErrTransient              = errors.New("transient provider error")
	ErrPermanent              = errors.New("provider rejected post")
)
