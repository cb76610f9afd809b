package handler

import (
	"CatalogAuth/internal/model"
	"net/http"
	"time"
)

// CookiePolicy holds the attributes of the three session cookies.
type CookiePolicy struct {
	Secure     bool
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

func (p CookiePolicy) cookie(name, value string, maxAge time.Duration, httpOnly bool) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		Expires:  time.Now().Add(maxAge),
		HttpOnly: httpOnly,
		Secure:   p.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// SetSession writes the pair into the access, script-readable access and
// refresh cookies.
func (p CookiePolicy) SetSession(writer http.ResponseWriter, pair *model.TokensPair) {
	http.SetCookie(writer, p.cookie(model.AccessTokenCookie, pair.AccessToken, p.AccessTTL, true))
	http.SetCookie(writer, p.cookie(model.AccessTokenClientCookie, pair.AccessToken, p.AccessTTL, false))
	http.SetCookie(writer, p.cookie(model.RefreshTokenCookie, pair.RefreshToken, p.RefreshTTL, true))
}

func (p CookiePolicy) ClearSession(writer http.ResponseWriter) {
	for _, c := range []struct {
		name     string
		httpOnly bool
	}{
		{model.AccessTokenCookie, true},
		{model.AccessTokenClientCookie, false},
		{model.RefreshTokenCookie, true},
	} {
		cookie := p.cookie(c.name, "", 0, c.httpOnly)
		cookie.MaxAge = -1
		cookie.Expires = time.Unix(0, 0)
		http.SetCookie(writer, cookie)
	}
}
