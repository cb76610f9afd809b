package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken covers every verification failure: bad signature,
// malformed input, wrong algorithm, expiry and missing claims alike.
var ErrInvalidToken = errors.New("invalid token")

const issuer = "CatalogAuth"

// Principal is the identity both credential kinds are minted for.
type Principal struct {
	Username string
	Admin    bool
}

type AccessClaims struct {
	Admin    bool   `json:"admin"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

type RefreshClaims struct {
	Admin    bool   `json:"admin"`
	Username string `json:"username"`
	TokenID  string `json:"tokenId"`
	jwt.RegisteredClaims
}

// Codec signs and verifies access and refresh tokens with two distinct secrets.
type Codec struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

type CodecOption func(*Codec)

// WithClock replaces time.Now for issuing and verifying.
func WithClock(now func() time.Time) CodecOption {
	return func(c *Codec) { c.now = now }
}

func NewCodec(accessSecret, refreshSecret []byte, accessTTL, refreshTTL time.Duration, opts ...CodecOption) *Codec {
	c := &Codec{
		accessSecret:  accessSecret,
		refreshSecret: refreshSecret,
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Codec) AccessTTL() time.Duration  { return c.accessTTL }
func (c *Codec) RefreshTTL() time.Duration { return c.refreshTTL }

func (c *Codec) registered(ttl time.Duration) jwt.RegisteredClaims {
	now := c.now()
	return jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

func (c *Codec) IssueAccess(p Principal) (string, error) {
	claims := AccessClaims{
		Admin:            p.Admin,
		Username:         p.Username,
		RegisteredClaims: c.registered(c.accessTTL),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(c.accessSecret)
	if err != nil {
		return "", fmt.Errorf("ошибка подписи access токена: %w", err)
	}
	return token, nil
}

func (c *Codec) IssueRefresh(p Principal, tokenID string) (string, error) {
	claims := RefreshClaims{
		Admin:            p.Admin,
		Username:         p.Username,
		TokenID:          tokenID,
		RegisteredClaims: c.registered(c.refreshTTL),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(c.refreshSecret)
	if err != nil {
		return "", fmt.Errorf("ошибка подписи refresh токена: %w", err)
	}
	return token, nil
}

func (c *Codec) parserOptions() []jwt.ParserOption {
	return []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	}
}

func (c *Codec) VerifyAccess(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := parse(tokenStr, claims, c.accessSecret, c.parserOptions()...); err != nil {
		return nil, err
	}
	if claims.Username == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (c *Codec) VerifyRefresh(tokenStr string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := parse(tokenStr, claims, c.refreshSecret, c.parserOptions()...); err != nil {
		return nil, err
	}
	if claims.TokenID == "" || claims.Username == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// VerifyRefreshSignature checks only the signature and algorithm of a
// refresh token; expiry is ignored so logout keeps working on stale tokens.
func (c *Codec) VerifyRefreshSignature(tokenStr string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	err := parse(tokenStr, claims, c.refreshSecret,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return nil, err
	}
	if claims.TokenID == "" || claims.Issuer != issuer {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func parse(tokenStr string, claims jwt.Claims, secret []byte, opts ...jwt.ParserOption) error {
	if tokenStr == "" {
		return ErrInvalidToken
	}

	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return nil
}

// DecodeUnverified reads the expiry of a token without checking its signature.
// It only drives refresh scheduling and must never back an authorization decision.
func DecodeUnverified(tokenStr string) (time.Time, bool) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
