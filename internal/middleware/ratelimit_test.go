package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avapigw-mtls/internal/config"
	"github.com/vyrodovalexey/avapigw-mtls/internal/observability"
	"github.com/vyrodovalexey/avapigw-mtls/internal/policy"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestRateLimiter_Allow(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: fixedNow}
	rl := NewRateLimiter(1, 2, withClock(clock.Now))

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"), "burst exhausted")
	assert.True(t, rl.Allow("b"), "identities have separate buckets")

	clock.Advance(time.Second)
	assert.True(t, rl.Allow("a"), "one token refilled")
	assert.False(t, rl.Allow("a"))
	assert.Equal(t, 2, rl.Len())
}

func TestRateLimiter_Cleanup(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: fixedNow}
	rl := NewRateLimiter(10, 10, withClock(clock.Now), WithIdleAfter(time.Minute))

	rl.Allow("idle")
	clock.Advance(45 * time.Second)
	rl.Allow("busy")
	clock.Advance(30 * time.Second)

	assert.Equal(t, 1, rl.Cleanup())
	assert.Equal(t, 1, rl.Len())

	rl.StartCleanup()
	rl.Stop()
	rl.Stop()
}

func TestRateLimit_KeysByIdentity(t *testing.T) {
	t.Parallel()

	metrics := observability.NewMetrics("test")
	rl := NewRateLimiter(0.001, 1, WithRateLimiterMetrics(metrics))
	backend := &countingHandler{}
	handler := RateLimit(rl)(backend)

	withToken := func(value string) *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		tokens := []policy.ExtractedToken{{Token: policy.ForClientCertificate(value)}}
		return req.WithContext(ContextWithTokens(req.Context(), tokens))
	}

	// Two clients behind the same address are limited separately.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, withToken("alice"))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, withToken("bob"))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, withToken("alice"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get(HeaderRetryAfter))
	assert.Equal(t, ErrRateLimitExceeded, rec.Body.String())

	// Without a token the client IP is the key.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, int32(3), backend.calls.Load())
	count, err := testutil.GatherAndCount(metrics.Registry(), "test_rate_limited_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRateLimitFromConfig(t *testing.T) {
	t.Parallel()

	mw, rl := RateLimitFromConfig(nil, observability.NopLogger(), nil)
	assert.Nil(t, rl)
	backend := &countingHandler{}
	mw(backend).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, int32(1), backend.calls.Load())

	mw, rl = RateLimitFromConfig(&config.RateLimitConfig{
		Enabled:           true,
		RequestsPerSecond: 0.01,
		Burst:             1,
		IdleAfter:         config.Duration(time.Minute),
	}, observability.NopLogger(), nil)
	require.NotNil(t, rl)
	defer rl.Stop()
	assert.Equal(t, time.Minute, rl.idleAfter)

	handler := mw(&countingHandler{})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}
