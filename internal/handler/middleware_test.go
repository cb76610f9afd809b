package handler

import (
	"CatalogAuth/internal/logging"
	"CatalogAuth/internal/model"
	"CatalogAuth/internal/security"
	"CatalogAuth/internal/verifier"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequireSession_PassesClaimsAndWritesRotatedCookies(t *testing.T) {
	claims := &security.AccessClaims{Username: "admin", Admin: true}
	pair := &model.TokensPair{AccessToken: "new-access", RefreshToken: "new-refresh"}
	mw := RequireSession(stubVerifier{verifier.Verdict{Valid: true, Claims: claims, Refreshed: pair}}, CookiePolicy{}, logging.Nop())

	var got *security.AccessClaims
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = ClaimsFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	recorder := httptest.NewRecorder()
	mw(next).ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusNoContent, recorder.Code)
	assert.Same(t, claims, got)
	refresh := cookieByName(recorder, model.RefreshTokenCookie)
	require.NotNil(t, refresh)
	assert.Equal(t, "new-refresh", refresh.Value)
}

func TestClaimsFrom_Missing(t *testing.T) {
	_, ok := ClaimsFrom(httptest.NewRequest(http.MethodGet, "/", nil).Context())
	assert.False(t, ok)
}

func TestRequestLogger_PassesThrough(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	recorder := httptest.NewRecorder()
	RequestLogger(logging.Nop())(next).ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, http.StatusTeapot, recorder.Code)
}
