package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/padillasconcrete/siteapi/internal/auth"
	"github.com/padillasconcrete/siteapi/internal/config"
	"github.com/padillasconcrete/siteapi/internal/core/engine"
	apperrors "github.com/padillasconcrete/siteapi/internal/errors"
	"github.com/padillasconcrete/siteapi/internal/notify"
	"github.com/padillasconcrete/siteapi/internal/observability"
	"github.com/padillasconcrete/siteapi/internal/server/handlers"
)

func testServerConfig() config.ServerConfig {
	return config.ServerConfig{Host: "127.0.0.1", Port: 0, AllowedOrigins: []string{"https://padillasconcrete.com"}}
}

func TestServerUsesStandardErrorHandlers(t *testing.T) {
	srv := New(testServerConfig(), Options{})

	req := httptest.NewRequest(http.MethodGet, "/does-not-exist", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	var body apperrors.HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "NOT_FOUND", body.Error.Code)
	assert.NotEmpty(t, body.Error.RequestID)
}

func TestServerWithoutAPIServesOnlyOperationalRoutes(t *testing.T) {
	srv := New(testServerConfig(), Options{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/version", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/contact", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func newAPIServer(t *testing.T, throttle *auth.LoginThrottle) (*Server, *auth.Issuer) {
	t.Helper()
	issuer, err := auth.NewIssuer("server-test-secret", "siteapi", time.Hour)
	require.NoError(t, err)

	api := &handlers.API{
		Limiter: engine.NewRateLimiter(engine.NewMemoryAttemptStore()),
		Issuer:  issuer,
	}
	return New(testServerConfig(), Options{API: api, LoginThrottle: throttle}), issuer
}

func TestAdminRoutesRequireToken(t *testing.T) {
	srv, _ := newAPIServer(t, nil)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/auth/verify"},
		{http.MethodPost, "/api/projects"},
		{http.MethodGet, "/api/users"},
		{http.MethodDelete, "/api/projects/p1/photos/x"},
	} {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", tc.method, tc.path)

		var body apperrors.HTTPErrorResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, "UNAUTHORIZED", body.Error.Code)
	}
}

func TestLoginIsThrottledPerClient(t *testing.T) {
	throttle := auth.NewLoginThrottle(0.01, 2, time.Minute)
	srv, _ := newAPIServer(t, throttle)

	post := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
			bytes.NewBufferString(`{"username":"admin","password":"nope"}`))
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		return rec
	}

	// No user store is configured, so admitted attempts are 503.
	assert.Equal(t, http.StatusServiceUnavailable, post().Code)
	assert.Equal(t, http.StatusServiceUnavailable, post().Code)

	rec := post()
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestForwardedHeadersIgnoredUnlessTrusted(t *testing.T) {
	login := func(srv *Server, forwarded string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
			bytes.NewBufferString(`{"username":"admin","password":"nope"}`))
		req.Header.Set("X-Forwarded-For", forwarded)
		req.Header.Set("X-Real-IP", forwarded)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		return rec.Code
	}

	t.Run("Untrusted", func(t *testing.T) {
		srv, _ := newAPIServer(t, auth.NewLoginThrottle(0.01, 2, time.Minute))
		assert.Equal(t, http.StatusServiceUnavailable, login(srv, "198.51.100.1"))
		assert.Equal(t, http.StatusServiceUnavailable, login(srv, "198.51.100.2"))
		assert.Equal(t, http.StatusTooManyRequests, login(srv, "198.51.100.3"),
			"rotating forwarding headers must not mint fresh buckets")
	})

	t.Run("Trusted", func(t *testing.T) {
		cfg := testServerConfig()
		cfg.TrustProxyHeaders = true
		api := &handlers.API{Limiter: engine.NewRateLimiter(engine.NewMemoryAttemptStore())}
		srv := New(cfg, Options{API: api, LoginThrottle: auth.NewLoginThrottle(0.01, 2, time.Minute)})

		for _, ip := range []string{"198.51.100.1", "198.51.100.2", "198.51.100.3"} {
			assert.Equal(t, http.StatusServiceUnavailable, login(srv, ip), ip)
		}
		assert.Equal(t, http.StatusServiceUnavailable, login(srv, "198.51.100.1"))
		assert.Equal(t, http.StatusTooManyRequests, login(srv, "198.51.100.1"))
	})
}

func TestContactLimiterKeysOnPeerAddress(t *testing.T) {
	notifier, err := notify.New(config.MailConfig{}, observability.ServerLogger)
	require.NoError(t, err)
	api := &handlers.API{
		Limiter:         engine.NewRateLimiter(engine.NewMemoryAttemptStore()),
		Notifier:        notifier,
		Logger:          observability.ServerLogger,
		DefaultLanguage: "en",
	}
	srv := New(testServerConfig(), Options{API: api})

	post := func(forwarded string) int {
		body := `{"name":"Ana","email":"ana@example.com","phone":"5075551234",` +
			`"service":"Patios","message":"Looking for a new patio."}`
		req := httptest.NewRequest(http.MethodPost, "/api/contact", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", forwarded)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		return rec.Code
	}

	for i := 1; i <= 3; i++ {
		require.Equal(t, http.StatusCreated, post(fmt.Sprintf("203.0.113.%d", i)))
	}
	assert.Equal(t, http.StatusTooManyRequests, post("203.0.113.4"))
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newAPIServer(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/contact", nil)
	req.Header.Set("Origin", "https://padillasconcrete.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://padillasconcrete.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/contact", nil)
	req.Header.Set("Origin", "https://evil.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMediaFilesAreServedWithoutListings(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "projects", "p1"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "projects", "p1", "a.jpg"), []byte("jpeg-bytes"), 0o644))

	srv := New(testServerConfig(), Options{MediaDir: dir})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/media/projects/p1/a.jpg", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "jpeg-bytes", rec.Body.String())

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/media/projects/p1/", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
