package ports

import (
	"CatalogAuth/internal/model"
	"CatalogAuth/internal/security"
	"context"
	"time"
)

// RefreshRecordStore persists refresh records keyed by a unique token id.
//
// Every mutation is a single atomic store operation. Deleting or replacing a
// record retires its token id until retireUntil, so FindByTokenID can tell a
// revoked or rotated id (repository.ErrRecordRetired) from one the store lost
// (repository.ErrRecordNotFound).
type RefreshRecordStore interface {
	Create(ctx context.Context, record model.RefreshRecord) error
	FindByTokenID(ctx context.Context, tokenID string) (*model.RefreshRecord, error)
	DeleteByTokenID(ctx context.Context, tokenID string, retireUntil time.Time) (bool, error)
	Replace(ctx context.Context, oldTokenID string, record model.RefreshRecord) error
	Ping(ctx context.Context) error
}

type TokenCodec interface {
	IssueAccess(p security.Principal) (string, error)
	IssueRefresh(p security.Principal, tokenID string) (string, error)
	VerifyAccess(token string) (*security.AccessClaims, error)
	VerifyRefresh(token string) (*security.RefreshClaims, error)
	VerifyRefreshSignature(token string) (*security.RefreshClaims, error)
	AccessTTL() time.Duration
	RefreshTTL() time.Duration
}

type SessionAuthority interface {
	Login(ctx context.Context, username, password string) (*model.TokensPair, error)
	Refresh(ctx context.Context, refreshToken string) (*model.TokensPair, error)
	Revoke(ctx context.Context, refreshToken string) bool
}

type RecoveryNotifier interface {
	NotifyRecovery(ctx context.Context, event model.RecoveryEvent) error
}
