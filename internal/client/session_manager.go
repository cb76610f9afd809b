// Package client keeps an API session alive from the caller's side: it caches
// the access token, refreshes it shortly before expiry, coalesces concurrent
// refreshes into one request and retries a request once after a 401.
package client

import (
	"CatalogAuth/internal/logging"
	"CatalogAuth/internal/model"
	"CatalogAuth/internal/security"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

var (
	// ErrReauthenticate means the session is gone and the user has to log in again.
	ErrReauthenticate = errors.New("session expired: login required")
	// ErrRefreshUnavailable means the server could not be asked; the session may still be valid.
	ErrRefreshUnavailable = errors.New("refresh unavailable")
	ErrLoginRejected      = errors.New("login rejected")
)

const (
	defaultExpiringSoonWindow = 60 * time.Second
	defaultCheckInterval      = time.Minute
	refreshKey                = "refresh"
)

type SessionManager struct {
	baseURL  *url.URL
	http     *http.Client
	log      logging.Logger
	window   time.Duration
	interval time.Duration
	now      func() time.Time
	onReauth func()

	mu    sync.RWMutex
	token string

	group singleflight.Group
}

type Option func(*SessionManager)

// WithHTTPClient replaces the default client. A client without a cookie jar
// gets one.
func WithHTTPClient(c *http.Client) Option {
	return func(m *SessionManager) { m.http = c }
}

func WithLogger(log logging.Logger) Option {
	return func(m *SessionManager) { m.log = log }
}

func WithClock(now func() time.Time) Option {
	return func(m *SessionManager) { m.now = now }
}

func WithExpiringSoonWindow(d time.Duration) Option {
	return func(m *SessionManager) { m.window = d }
}

func WithCheckInterval(d time.Duration) Option {
	return func(m *SessionManager) { m.interval = d }
}

// WithReauthHandler registers fn to run once for every failure that requires
// a new login.
func WithReauthHandler(fn func()) Option {
	return func(m *SessionManager) { m.onReauth = fn }
}

func New(baseURL string, opts ...Option) (*SessionManager, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}

	m := &SessionManager{
		baseURL:  parsed,
		http:     &http.Client{Timeout: 10 * time.Second},
		log:      logging.Nop(),
		window:   defaultExpiringSoonWindow,
		interval: defaultCheckInterval,
		now:      time.Now,
		onReauth: func() {},
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.http.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("cookie jar: %w", err)
		}
		m.http.Jar = jar
	}
	return m, nil
}

func (m *SessionManager) endpoint(path string) string {
	return m.baseURL.ResolveReference(&url.URL{Path: path}).String()
}

func (m *SessionManager) Login(ctx context.Context, username, password string) error {
	body, err := json.Marshal(map[string]string{"username": username, "password": password})
	if err != nil {
		return err
	}

	response, err := m.post(ctx, "/api/auth/login", body)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	switch {
	case response.StatusCode == http.StatusBadRequest, response.StatusCode == http.StatusUnauthorized:
		return ErrLoginRejected
	case response.StatusCode != http.StatusOK:
		return fmt.Errorf("login: unexpected status %d", response.StatusCode)
	}

	var pair model.TokensPair
	if err := json.NewDecoder(response.Body).Decode(&pair); err != nil {
		return fmt.Errorf("login: decode response: %w", err)
	}
	m.setToken(pair.AccessToken)
	return nil
}

// Logout revokes the session on the server. The local cache is cleared even
// when the request fails.
func (m *SessionManager) Logout(ctx context.Context) error {
	defer m.clearToken()

	response, err := m.post(ctx, "/api/auth/logout", nil)
	if err != nil {
		return err
	}
	defer response.Body.Close()
	_, _ = io.Copy(io.Discard, response.Body)

	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("logout: unexpected status %d", response.StatusCode)
	}
	return nil
}

// Token returns the current access token. The script-readable cookie in the
// jar wins over the cache, since the server may rotate the pair on any
// protected response.
func (m *SessionManager) Token() string {
	var fromJar string
	for _, c := range m.http.Jar.Cookies(m.baseURL) {
		if c.Name == model.AccessTokenClientCookie {
			fromJar = c.Value
			break
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if fromJar != "" && fromJar != m.token {
		m.token = fromJar
	}
	return m.token
}

// IsExpiringSoon reports whether token is missing, unreadable or expires
// within the window. The signature is not checked.
func (m *SessionManager) IsExpiringSoon(token string) bool {
	if token == "" {
		return true
	}
	expiresAt, ok := security.DecodeUnverified(token)
	if !ok {
		return true
	}
	return !expiresAt.After(m.now().Add(m.window))
}

// EnsureValid returns a token that is not about to expire, refreshing first
// if needed.
func (m *SessionManager) EnsureValid(ctx context.Context) (string, error) {
	if token := m.Token(); !m.IsExpiringSoon(token) {
		return token, nil
	}

	pair, err := m.refreshOnce(ctx, true)
	if err != nil {
		return "", err
	}
	return pair.AccessToken, nil
}

// RefreshSession always asks the server for a new pair. Concurrent callers
// share one request and its result.
func (m *SessionManager) RefreshSession(ctx context.Context) (*model.TokensPair, error) {
	return m.refreshOnce(ctx, false)
}

type flightResult struct {
	pair    *model.TokensPair
	fetched bool
}

func (m *SessionManager) refreshOnce(ctx context.Context, onlyIfStale bool) (*model.TokensPair, error) {
	// Detached: every waiter shares the flight regardless of who started it.
	detached := context.WithoutCancel(ctx)

	for {
		v, err, _ := m.group.Do(refreshKey, func() (any, error) {
			if onlyIfStale {
				if token := m.Token(); !m.IsExpiringSoon(token) {
					return &flightResult{pair: &model.TokensPair{AccessToken: token}}, nil
				}
			}
			pair, err := m.refresh(detached)
			if err != nil {
				return nil, err
			}
			return &flightResult{pair: pair, fetched: true}, nil
		})
		if err != nil {
			return nil, err
		}

		// A forced refresh that joined a flight which skipped the network
		// starts its own.
		result := v.(*flightResult)
		if result.fetched || onlyIfStale {
			return result.pair, nil
		}
	}
}

func (m *SessionManager) refresh(ctx context.Context) (*model.TokensPair, error) {
	response, err := m.post(ctx, "/api/auth/refresh", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRefreshUnavailable, err)
	}
	defer response.Body.Close()

	switch {
	case response.StatusCode == http.StatusBadRequest, response.StatusCode == http.StatusUnauthorized:
		m.clearToken()
		m.log.Info(ctx, "session refresh rejected", "status", response.StatusCode)
		m.onReauth()
		return nil, ErrReauthenticate
	case response.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: status %d", ErrRefreshUnavailable, response.StatusCode)
	}

	var pair model.TokensPair
	if err := json.NewDecoder(response.Body).Decode(&pair); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrRefreshUnavailable, err)
	}
	m.setToken(pair.AccessToken)
	m.log.Debug(ctx, "session refreshed")
	return &pair, nil
}

// AuthenticatedRequest sends a request with a fresh bearer token and retries
// exactly once after a 401.
func (m *SessionManager) AuthenticatedRequest(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	token, err := m.EnsureValid(ctx)
	if errors.Is(err, ErrReauthenticate) {
		return nil, err
	}
	if err != nil {
		m.log.Warn(ctx, "proactive refresh failed", "error", err)
		token = m.Token()
	}

	response, err := m.send(ctx, method, path, body, token)
	if err != nil || response.StatusCode != http.StatusUnauthorized {
		return response, err
	}
	_, _ = io.Copy(io.Discard, response.Body)
	response.Body.Close()

	pair, err := m.RefreshSession(ctx)
	if err != nil {
		return nil, err
	}

	response, err = m.send(ctx, method, path, body, pair.AccessToken)
	if err != nil {
		return nil, err
	}
	if response.StatusCode == http.StatusUnauthorized {
		response.Body.Close()
		m.clearToken()
		m.onReauth()
		return nil, ErrReauthenticate
	}
	return response, nil
}

// Run keeps the session fresh: once immediately, then every interval. It
// returns ErrReauthenticate when the session is gone and nil when ctx ends.
func (m *SessionManager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		if _, err := m.EnsureValid(ctx); err != nil {
			if errors.Is(err, ErrReauthenticate) {
				return err
			}
			m.log.Warn(ctx, "scheduled refresh failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (m *SessionManager) send(ctx context.Context, method, path string, body []byte, token string) (*http.Response, error) {
	request, err := http.NewRequestWithContext(ctx, method, m.endpoint(path), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	return m.http.Do(request)
}

func (m *SessionManager) post(ctx context.Context, path string, body []byte) (*http.Response, error) {
	return m.send(ctx, http.MethodPost, path, body, "")
}

func (m *SessionManager) setToken(token string) {
	m.http.Jar.SetCookies(m.baseURL, []*http.Cookie{{
		Name:  model.AccessTokenClientCookie,
		Value: token,
		Path:  "/",
	}})

	m.mu.Lock()
	m.token = token
	m.mu.Unlock()
}

func (m *SessionManager) clearToken() {
	m.http.Jar.SetCookies(m.baseURL, []*http.Cookie{{
		Name:   model.AccessTokenClientCookie,
		Path:   "/",
		MaxAge: -1,
	}})

	m.mu.Lock()
	m.token = ""
	m.mu.Unlock()
}
