package client

import (
	"CatalogAuth/internal/model"
	"CatalogAuth/internal/security"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAuthServer issues short-lived tokens on login and long-lived ones on
// refresh, and counts refresh calls.
type fakeAuthServer struct {
	*httptest.Server
	refreshCalls  atomic.Int32
	refreshStatus atomic.Int32
	refreshDelay  time.Duration
	protected     func(w http.ResponseWriter, r *http.Request)
	loginCodec    *security.Codec
	refreshCodec  *security.Codec
}

func newFakeAuthServer(t *testing.T, configure ...func(*fakeAuthServer)) *fakeAuthServer {
	t.Helper()
	f := &fakeAuthServer{
		loginCodec:   security.NewCodec([]byte("a"), []byte("r"), 30*time.Second, time.Hour),
		refreshCodec: security.NewCodec([]byte("a"), []byte("r"), 15*time.Minute, time.Hour),
	}
	f.refreshStatus.Store(http.StatusOK)
	for _, fn := range configure {
		fn(f)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["password"] != "s3cret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		f.writePair(t, w, f.loginCodec)
	})
	mux.HandleFunc("/api/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		f.refreshCalls.Add(1)
		time.Sleep(f.refreshDelay)
		if status := int(f.refreshStatus.Load()); status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		if _, err := r.Cookie(model.RefreshTokenCookie); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.writePair(t, w, f.refreshCodec)
	})
	mux.HandleFunc("/api/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: model.RefreshTokenCookie, Path: "/", MaxAge: -1})
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/items", func(w http.ResponseWriter, r *http.Request) {
		if f.protected != nil {
			f.protected(w, r)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func (f *fakeAuthServer) writePair(t *testing.T, w http.ResponseWriter, codec *security.Codec) {
	access, err := codec.IssueAccess(security.Principal{Username: "admin", Admin: true})
	require.NoError(t, err)
	refresh, err := codec.IssueRefresh(security.Principal{Username: "admin", Admin: true}, "tid")
	require.NoError(t, err)

	http.SetCookie(w, &http.Cookie{Name: model.AccessTokenClientCookie, Value: access, Path: "/"})
	http.SetCookie(w, &http.Cookie{Name: model.RefreshTokenCookie, Value: refresh, Path: "/", HttpOnly: true})
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(&model.TokensPair{AccessToken: access, RefreshToken: refresh})
}

func newManager(t *testing.T, server *fakeAuthServer, opts ...Option) *SessionManager {
	t.Helper()
	m, err := New(server.URL, opts...)
	require.NoError(t, err)
	return m
}

func TestIsExpiringSoon(t *testing.T) {
	codec := security.NewCodec([]byte("a"), []byte("r"), 15*time.Minute, time.Hour)
	fresh, err := codec.IssueAccess(security.Principal{Username: "admin", Admin: true})
	require.NoError(t, err)

	m, err := New("http://localhost")
	require.NoError(t, err)

	assert.True(t, m.IsExpiringSoon(""))
	assert.True(t, m.IsExpiringSoon("garbage"))
	assert.False(t, m.IsExpiringSoon(fresh))

	m.now = func() time.Time { return time.Now().Add(14*time.Minute + 30*time.Second) }
	assert.True(t, m.IsExpiringSoon(fresh))
}

func TestLogin(t *testing.T) {
	server := newFakeAuthServer(t)
	m := newManager(t, server)

	assert.ErrorIs(t, m.Login(context.Background(), "admin", "wrong"), ErrLoginRejected)
	assert.Empty(t, m.Token())

	require.NoError(t, m.Login(context.Background(), "admin", "s3cret"))
	assert.NotEmpty(t, m.Token())
}

func TestEnsureValid_ConcurrentCallersShareOneRefresh(t *testing.T) {
	server := newFakeAuthServer(t, func(f *fakeAuthServer) { f.refreshDelay = 50 * time.Millisecond })
	m := newManager(t, server)
	require.NoError(t, m.Login(context.Background(), "admin", "s3cret"))
	require.True(t, m.IsExpiringSoon(m.Token()))

	const n = 20
	var (
		wg     sync.WaitGroup
		start  = make(chan struct{})
		tokens = make([]string, n)
		errs   = make([]error, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			tokens[i], errs[i] = m.EnsureValid(context.Background())
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), server.refreshCalls.Load())
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, tokens[0], tokens[i])
	}
	assert.False(t, m.IsExpiringSoon(tokens[0]))
}

func TestEnsureValid_FreshTokenSkipsNetwork(t *testing.T) {
	server := newFakeAuthServer(t)
	m := newManager(t, server)
	require.NoError(t, m.Login(context.Background(), "admin", "s3cret"))
	_, err := m.RefreshSession(context.Background())
	require.NoError(t, err)

	_, err = m.EnsureValid(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), server.refreshCalls.Load())
}

func TestRefreshSession_RejectedClearsCacheAndSignalsOnce(t *testing.T) {
	server := newFakeAuthServer(t, func(f *fakeAuthServer) { f.refreshDelay = 50 * time.Millisecond })
	server.refreshStatus.Store(http.StatusUnauthorized)

	var reauth atomic.Int32
	m := newManager(t, server, WithReauthHandler(func() { reauth.Add(1) }))
	require.NoError(t, m.Login(context.Background(), "admin", "s3cret"))

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.RefreshSession(context.Background())
			assert.ErrorIs(t, err, ErrReauthenticate)
		}()
	}
	wg.Wait()

	assert.Equal(t, server.refreshCalls.Load(), reauth.Load())
	assert.Empty(t, m.Token())
}

func TestRefreshSession_ServerErrorKeepsCache(t *testing.T) {
	server := newFakeAuthServer(t)
	server.refreshStatus.Store(http.StatusInternalServerError)

	var reauth atomic.Int32
	m := newManager(t, server, WithReauthHandler(func() { reauth.Add(1) }))
	require.NoError(t, m.Login(context.Background(), "admin", "s3cret"))
	token := m.Token()

	_, err := m.RefreshSession(context.Background())
	assert.ErrorIs(t, err, ErrRefreshUnavailable)
	assert.Equal(t, token, m.Token())
	assert.Zero(t, reauth.Load())
}

func TestAuthenticatedRequest_RetriesOnceAfterUnauthorized(t *testing.T) {
	var calls atomic.Int32
	server := newFakeAuthServer(t, func(f *fakeAuthServer) {
		f.protected = func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			assert.NotEmpty(t, r.Header.Get("Authorization"))
			w.WriteHeader(http.StatusOK)
		}
	})

	m := newManager(t, server)
	require.NoError(t, m.Login(context.Background(), "admin", "s3cret"))
	_, err := m.RefreshSession(context.Background())
	require.NoError(t, err)

	response, err := m.AuthenticatedRequest(context.Background(), http.MethodGet, "/api/items", nil)
	require.NoError(t, err)
	defer response.Body.Close()

	assert.Equal(t, http.StatusOK, response.StatusCode)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, int32(2), server.refreshCalls.Load())
}

func TestAuthenticatedRequest_GivesUpAfterSecondUnauthorized(t *testing.T) {
	var calls atomic.Int32
	server := newFakeAuthServer(t, func(f *fakeAuthServer) {
		f.protected = func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusUnauthorized)
		}
	})

	var reauth atomic.Int32
	m := newManager(t, server, WithReauthHandler(func() { reauth.Add(1) }))
	require.NoError(t, m.Login(context.Background(), "admin", "s3cret"))

	_, err := m.AuthenticatedRequest(context.Background(), http.MethodGet, "/api/items", nil)
	assert.ErrorIs(t, err, ErrReauthenticate)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, int32(1), reauth.Load())
}

func TestRun_RefreshesImmediatelyAndStopsOnCancel(t *testing.T) {
	server := newFakeAuthServer(t)
	m := newManager(t, server, WithCheckInterval(10*time.Millisecond))
	require.NoError(t, m.Login(context.Background(), "admin", "s3cret"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	assert.Eventually(t, func() bool { return server.refreshCalls.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
	assert.Equal(t, int32(1), server.refreshCalls.Load())
}

func TestRun_StopsWhenSessionIsGone(t *testing.T) {
	server := newFakeAuthServer(t)
	server.refreshStatus.Store(http.StatusUnauthorized)
	m := newManager(t, server, WithCheckInterval(10*time.Millisecond))

	assert.ErrorIs(t, m.Run(context.Background()), ErrReauthenticate)
}

func TestLogout_ClearsCache(t *testing.T) {
	server := newFakeAuthServer(t)
	m := newManager(t, server)
	require.NoError(t, m.Login(context.Background(), "admin", "s3cret"))

	require.NoError(t, m.Logout(context.Background()))
	assert.Empty(t, m.Token())
}

func TestToken_FollowsCookieRotatedByServer(t *testing.T) {
	rotated := make(chan string, 1)
	server := newFakeAuthServer(t, func(f *fakeAuthServer) {
		f.protected = func(w http.ResponseWriter, r *http.Request) {
			access, err := f.refreshCodec.IssueAccess(security.Principal{Username: "admin", Admin: true})
			if err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			http.SetCookie(w, &http.Cookie{Name: model.AccessTokenClientCookie, Value: access, Path: "/"})
			rotated <- access
			w.WriteHeader(http.StatusOK)
		}
	})
	m := newManager(t, server, WithExpiringSoonWindow(0))
	require.NoError(t, m.Login(context.Background(), "admin", "s3cret"))

	response, err := m.AuthenticatedRequest(context.Background(), http.MethodGet, "/api/items", nil)
	require.NoError(t, err)
	response.Body.Close()

	fresh := <-rotated
	assert.Equal(t, fresh, m.Token())

	m.window = defaultExpiringSoonWindow
	token, err := m.EnsureValid(context.Background())
	require.NoError(t, err)
	assert.Equal(t, fresh, token)
	assert.Zero(t, server.refreshCalls.Load())
}

func TestRefreshSession_ForcedCallerDoesNotReuseSkippedFlight(t *testing.T) {
	server := newFakeAuthServer(t)

	var (
		clockCalls atomic.Int32
		inFlight   = make(chan struct{})
		release    = make(chan struct{})
	)
	clock := func() time.Time {
		switch clockCalls.Add(1) {
		case 1:
			// the first look sees the token as stale
			return time.Now().Add(time.Hour)
		case 2:
			close(inFlight)
			<-release
		}
		return time.Now()
	}

	m := newManager(t, server, WithClock(clock), WithExpiringSoonWindow(0))
	require.NoError(t, m.Login(context.Background(), "admin", "s3cret"))

	ensureDone := make(chan error, 1)
	go func() {
		_, err := m.EnsureValid(context.Background())
		ensureDone <- err
	}()
	<-inFlight

	forcedDone := make(chan error, 1)
	go func() {
		_, err := m.RefreshSession(context.Background())
		forcedDone <- err
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)

	require.NoError(t, <-ensureDone)
	require.NoError(t, <-forcedDone)
	assert.Equal(t, int32(1), server.refreshCalls.Load())
}
