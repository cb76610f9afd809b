package service

import "errors"

var (
	ErrMissingCredentials    = errors.New("missing credentials")
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrMissingToken          = errors.New("missing token")
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")
	// ErrStoreUnavailable is an infrastructure failure and must never be
	// reported to the client as an authentication failure.
	ErrStoreUnavailable = errors.New("record store unavailable")
)
