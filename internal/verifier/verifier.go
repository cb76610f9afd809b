// Package verifier decides whether an inbound request carries a live session,
// silently rotating the pair when only the refresh token is still good.
//
// It never writes responses or cookies; the route layer does that from the
// returned Verdict.
package verifier

import (
	"CatalogAuth/internal/metrics"
	"CatalogAuth/internal/model"
	"CatalogAuth/internal/ports"
	"CatalogAuth/internal/security"
	"CatalogAuth/internal/service"
	"errors"
	"net/http"
	"strings"
)

type Verdict struct {
	Valid  bool
	Claims *security.AccessClaims
	// Refreshed is set when the access token was re-issued during verification.
	Refreshed *model.TokensPair
	// Err is set only for infrastructure failures, never for bad credentials.
	Err error
}

type Verifier struct {
	codec     ports.TokenCodec
	authority ports.SessionAuthority
	metrics   *metrics.Session
}

func New(codec ports.TokenCodec, authority ports.SessionAuthority, m *metrics.Session) *Verifier {
	return &Verifier{codec: codec, authority: authority, metrics: m}
}

func (v *Verifier) Verify(r *http.Request) Verdict {
	if token := AccessToken(r); token != "" {
		claims, err := v.codec.VerifyAccess(token)
		if err == nil && claims.Admin {
			v.metrics.Verify(metrics.OutcomeFastPath)
			return Verdict{Valid: true, Claims: claims}
		}
	}

	cookie, err := r.Cookie(model.RefreshTokenCookie)
	if err != nil || cookie.Value == "" {
		v.metrics.Verify(metrics.OutcomeRejected)
		return Verdict{}
	}

	pair, err := v.authority.Refresh(r.Context(), cookie.Value)
	if err != nil {
		v.metrics.Verify(metrics.OutcomeRejected)
		if errors.Is(err, service.ErrStoreUnavailable) {
			return Verdict{Err: err}
		}
		return Verdict{}
	}

	claims, err := v.codec.VerifyAccess(pair.AccessToken)
	if err != nil || !claims.Admin {
		v.metrics.Verify(metrics.OutcomeRejected)
		return Verdict{}
	}

	v.metrics.Verify(metrics.OutcomeRefreshed)
	return Verdict{Valid: true, Claims: claims, Refreshed: pair}
}

// AccessToken returns the access token from the cookie, falling back to a
// bearer Authorization header.
func AccessToken(r *http.Request) string {
	if cookie, err := r.Cookie(model.AccessTokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	header := r.Header.Get("Authorization")
	if len(header) > len("Bearer ") && strings.EqualFold(header[:len("Bearer ")], "Bearer ") {
		return strings.TrimSpace(header[len("Bearer "):])
	}
	return ""
}
