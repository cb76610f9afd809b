package model

import "time"

// RefreshRecord gates a refresh token: the token may only be exchanged while
// a live record with its TokenID exists.
type RefreshRecord struct {
	TokenID   string    `db:"token_id" json:"tokenId"`
	Username  string    `db:"username" json:"username"`
	ExpiresAt time.Time `db:"expires_at" json:"expiresAt"`
}

// Expired reports whether the record is no longer usable at now.
func (r *RefreshRecord) Expired(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}

// TokensPair содержит пару access и refresh токенов
// swagger:model
type TokensPair struct {
	// Access токен (JWT)
	// example: eyJhbGciOiJIUzUxMiIsInR5cCI6IkpXVCJ9...
	AccessToken string `json:"accessToken"`

	// Refresh токен (JWT с tokenId)
	// example: eyJhbGciOiJIUzUxMiIsInR5cCI6IkpXVCJ9...
	RefreshToken string `json:"refreshToken"`
}

// RecoveryEvent describes a refresh record re-created for a verified token
// whose record was missing from the store.
type RecoveryEvent struct {
	Username      string    `json:"username"`
	TokenIDPrefix string    `json:"tokenIdPrefix"`
	Event         string    `json:"event"`
	TimeStamp     time.Time `json:"timestamp"`
}
