package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLimited(t *testing.T, cfg RateLimitConfig) http.Handler {
	t.Helper()
	l := NewRateLimiter(cfg)
	t.Cleanup(l.Close)
	return l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func TestRateLimiter_AllowsWithinBurst(t *testing.T) {
	t.Parallel()

	handler := newLimited(t, RateLimitConfig{RequestsPerSecond: 1, Burst: 3})

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i)
		assert.Equal(t, "3", rec.Header().Get("X-RateLimit-Limit"))
	}
}

func TestRateLimiter_RejectsOverBurst(t *testing.T) {
	t.Parallel()

	handler := newLimited(t, RateLimitConfig{RequestsPerSecond: 0.001, Burst: 2})

	send := func() *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.2:1234"
		handler.ServeHTTP(rec, req)
		return rec
	}

	require.Equal(t, http.StatusOK, send().Code)
	require.Equal(t, http.StatusOK, send().Code)

	rec := send()
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "RATE_LIMITED", body["code"])
}

func TestRateLimiter_PerClientBuckets(t *testing.T) {
	t.Parallel()

	handler := newLimited(t, RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1})

	send := func(addr string) int {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusOK, send("10.1.0.1:5000"))
	require.Equal(t, http.StatusTooManyRequests, send("10.1.0.1:5001"))
	// A different client has its own bucket.
	require.Equal(t, http.StatusOK, send("10.1.0.2:5000"))
}

func TestRateLimiter_CloseIsIdempotent(t *testing.T) {
	t.Parallel()

	l := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 1, Burst: 1})
	l.Close()
	l.Close()
}

func TestClientIP(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.5:4321"
	assert.Equal(t, "192.168.1.5", clientIP(req))

	req.RemoteAddr = "no-port"
	assert.Equal(t, "no-port", clientIP(req))
}
