package service

import (
	"CatalogAuth/internal/logging"
	"CatalogAuth/internal/metrics"
	"CatalogAuth/internal/model"
	"CatalogAuth/internal/notifier"
	"CatalogAuth/internal/ports"
	"CatalogAuth/internal/repository"
	"CatalogAuth/internal/security"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

const tokenIDPrefixLen = 8

type identity interface {
	Verify(username, password string) bool
}

// SessionService owns login, refresh and revoke for a session lineage.
type SessionService struct {
	store    ports.RefreshRecordStore
	codec    ports.TokenCodec
	admin    identity
	log      logging.Logger
	metrics  *metrics.Session
	notifier ports.RecoveryNotifier
	recovery bool
	now      func() time.Time
}

type Option func(*SessionService)

func WithClock(now func() time.Time) Option {
	return func(s *SessionService) { s.now = now }
}

func WithLogger(log logging.Logger) Option {
	return func(s *SessionService) { s.log = log }
}

func WithMetrics(m *metrics.Session) Option {
	return func(s *SessionService) { s.metrics = m }
}

func WithNotifier(n ports.RecoveryNotifier) Option {
	return func(s *SessionService) { s.notifier = n }
}

// WithRecordRecovery toggles re-creating records the store lost for
// otherwise valid refresh tokens. Enabled by default.
func WithRecordRecovery(enabled bool) Option {
	return func(s *SessionService) { s.recovery = enabled }
}

func NewSessionService(store ports.RefreshRecordStore, codec ports.TokenCodec, admin identity, opts ...Option) *SessionService {
	s := &SessionService{
		store:    store,
		codec:    codec,
		admin:    admin,
		log:      logging.Nop(),
		recovery: true,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SessionService) Login(ctx context.Context, username, password string) (*model.TokensPair, error) {
	if username == "" || password == "" {
		s.metrics.Login(metrics.OutcomeFailure)
		return nil, ErrMissingCredentials
	}
	if !s.admin.Verify(username, password) {
		s.metrics.Login(metrics.OutcomeFailure)
		s.log.Info(ctx, "login rejected")
		return nil, ErrInvalidCredentials
	}

	principal := security.Principal{Username: username, Admin: true}
	tokenID, err := newTokenID()
	if err != nil {
		return nil, err
	}

	pair, err := s.issuePair(principal, tokenID)
	if err != nil {
		return nil, err
	}

	record := model.RefreshRecord{
		TokenID:   tokenID,
		Username:  username,
		ExpiresAt: s.now().Add(s.codec.RefreshTTL()),
	}
	if err := s.store.Create(ctx, record); err != nil {
		s.log.Error(ctx, "failed to store refresh record", "username", username, "error", err)
		return nil, storeError(err)
	}

	s.metrics.Login(metrics.OutcomeSuccess)
	s.log.Info(ctx, "login succeeded", "username", username)
	return pair, nil
}

func (s *SessionService) Refresh(ctx context.Context, refreshToken string) (*model.TokensPair, error) {
	if refreshToken == "" {
		return nil, ErrMissingToken
	}

	claims, err := s.codec.VerifyRefresh(refreshToken)
	if err != nil {
		s.metrics.Refresh(metrics.OutcomeInvalid)
		s.log.Debug(ctx, "refresh token rejected", "error", err)
		return nil, ErrInvalidOrExpiredToken
	}

	record, err := s.findRecord(ctx, claims)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if record.Username != claims.Username {
		s.metrics.Refresh(metrics.OutcomeInvalid)
		s.log.Warn(ctx, "refresh record owner mismatch", "username", claims.Username)
		return nil, ErrInvalidOrExpiredToken
	}
	if record.Expired(now) {
		if _, err := s.store.DeleteByTokenID(ctx, record.TokenID, claims.ExpiresAt.Time); err != nil {
			s.log.Warn(ctx, "failed to delete expired refresh record", "username", claims.Username, "error", err)
		}
		s.metrics.Refresh(metrics.OutcomeExpired)
		s.log.Info(ctx, "refresh record expired", "username", claims.Username)
		return nil, ErrInvalidOrExpiredToken
	}

	return s.rotate(ctx, claims, now)
}

// findRecord resolves the record behind a verified refresh token, recreating
// it when the store lost it and recovery is enabled.
func (s *SessionService) findRecord(ctx context.Context, claims *security.RefreshClaims) (*model.RefreshRecord, error) {
	record, err := s.store.FindByTokenID(ctx, claims.TokenID)
	switch {
	case err == nil:
		return record, nil
	case errors.Is(err, repository.ErrRecordRetired):
		s.metrics.Refresh(metrics.OutcomeInvalid)
		s.log.Info(ctx, "refresh token already used or revoked", "username", claims.Username)
		return nil, ErrInvalidOrExpiredToken
	case errors.Is(err, repository.ErrRecordNotFound):
		if !s.recovery {
			s.metrics.Refresh(metrics.OutcomeInvalid)
			s.log.Info(ctx, "refresh record missing", "username", claims.Username)
			return nil, ErrInvalidOrExpiredToken
		}
		return s.recoverRecord(ctx, claims)
	default:
		s.metrics.Refresh(metrics.OutcomeStoreError)
		s.log.Error(ctx, "failed to look up refresh record", "username", claims.Username, "error", err)
		return nil, storeError(err)
	}
}

func (s *SessionService) recoverRecord(ctx context.Context, claims *security.RefreshClaims) (*model.RefreshRecord, error) {
	record := &model.RefreshRecord{
		TokenID:   claims.TokenID,
		Username:  claims.Username,
		ExpiresAt: s.now().Add(s.codec.RefreshTTL()),
	}

	err := s.store.Create(ctx, *record)
	if errors.Is(err, repository.ErrRecordExists) {
		// Another request recreated it first.
		record, err = s.store.FindByTokenID(ctx, claims.TokenID)
		if errors.Is(err, repository.ErrRecordNotFound) || errors.Is(err, repository.ErrRecordRetired) {
			s.metrics.Refresh(metrics.OutcomeInvalid)
			return nil, ErrInvalidOrExpiredToken
		}
		if err != nil {
			s.metrics.Refresh(metrics.OutcomeStoreError)
			return nil, storeError(err)
		}
		return record, nil
	}
	if err != nil {
		s.metrics.Refresh(metrics.OutcomeStoreError)
		s.log.Error(ctx, "failed to recover refresh record", "username", claims.Username, "error", err)
		return nil, storeError(err)
	}

	s.audit(ctx, claims)
	return record, nil
}

func (s *SessionService) audit(ctx context.Context, claims *security.RefreshClaims) {
	prefix := claims.TokenID
	if len(prefix) > tokenIDPrefixLen {
		prefix = prefix[:tokenIDPrefixLen]
	}

	s.metrics.Recovery()
	s.metrics.Refresh(metrics.OutcomeRecovered)
	s.log.Warn(ctx, "refresh record recovered for a valid token", "username", claims.Username, "token_id_prefix", prefix)

	if s.notifier == nil {
		return
	}
	event := model.RecoveryEvent{
		Username:      claims.Username,
		TokenIDPrefix: prefix,
		Event:         notifier.EventRecordRecovered,
		TimeStamp:     s.now().UTC(),
	}
	go func(ctx context.Context) {
		if err := s.notifier.NotifyRecovery(ctx, event); err != nil {
			s.log.Warn(ctx, "ошибка отправки webhook", "error", err)
		}
	}(context.WithoutCancel(ctx))
}

func (s *SessionService) rotate(ctx context.Context, claims *security.RefreshClaims, now time.Time) (*model.TokensPair, error) {
	tokenID, err := newTokenID()
	if err != nil {
		return nil, err
	}

	pair, err := s.issuePair(security.Principal{Username: claims.Username, Admin: claims.Admin}, tokenID)
	if err != nil {
		return nil, err
	}

	next := model.RefreshRecord{
		TokenID:   tokenID,
		Username:  claims.Username,
		ExpiresAt: now.Add(s.codec.RefreshTTL()),
	}
	err = s.store.Replace(ctx, claims.TokenID, next)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrRecordNotFound):
		// A concurrent refresh of the same lineage rotated first. The access
		// token is still good; the refresh token is stale from birth, so its
		// id is retired and can never be recovered.
		if _, err := s.store.DeleteByTokenID(ctx, tokenID, next.ExpiresAt); err != nil {
			s.metrics.Refresh(metrics.OutcomeStoreError)
			s.log.Error(ctx, "failed to retire losing refresh token", "username", claims.Username, "error", err)
			return nil, storeError(err)
		}
		s.metrics.Refresh(metrics.OutcomeStale)
		s.log.Info(ctx, "refresh lost rotation race", "username", claims.Username)
		return pair, nil
	default:
		s.metrics.Refresh(metrics.OutcomeStoreError)
		s.log.Error(ctx, "failed to rotate refresh record", "username", claims.Username, "error", err)
		return nil, storeError(err)
	}

	s.metrics.Refresh(metrics.OutcomeRotated)
	s.log.Info(ctx, "refresh token rotated", "username", claims.Username)
	return pair, nil
}

// Revoke deletes the record behind a refresh token and reports whether one
// existed. Expired tokens are still accepted; any failure yields false.
func (s *SessionService) Revoke(ctx context.Context, refreshToken string) bool {
	claims, err := s.codec.VerifyRefreshSignature(refreshToken)
	if err != nil {
		s.metrics.Revoke(metrics.OutcomeInvalid)
		return false
	}

	retireUntil := s.now().Add(s.codec.RefreshTTL())
	if claims.ExpiresAt != nil {
		retireUntil = claims.ExpiresAt.Time
	}

	existed, err := s.store.DeleteByTokenID(ctx, claims.TokenID, retireUntil)
	if err != nil {
		s.metrics.Revoke(metrics.OutcomeStoreError)
		s.log.Error(ctx, "failed to revoke refresh record", "username", claims.Username, "error", err)
		return false
	}
	if !existed {
		s.metrics.Revoke(metrics.OutcomeNoRecord)
		return false
	}

	s.metrics.Revoke(metrics.OutcomeRevoked)
	s.log.Info(ctx, "refresh token revoked", "username", claims.Username)
	return true
}

// Ping reports whether the record store is reachable.
func (s *SessionService) Ping(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return storeError(err)
	}
	return nil
}

func (s *SessionService) issuePair(principal security.Principal, tokenID string) (*model.TokensPair, error) {
	accessToken, err := s.codec.IssueAccess(principal)
	if err != nil {
		return nil, fmt.Errorf("ошибка генерации access токена: %w", err)
	}
	refreshToken, err := s.codec.IssueRefresh(principal, tokenID)
	if err != nil {
		return nil, fmt.Errorf("ошибка генерации refresh токена: %w", err)
	}

	return &model.TokensPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

func storeError(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

func newTokenID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("ошибка генерации tokenId: %w", err)
	}
	return hex.EncodeToString(b), nil
}
