package middleware

import (
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/vyrodovalexey/avapigw-mtls/internal/config"
	"github.com/vyrodovalexey/avapigw-mtls/internal/observability"
)

// Rate limiter default configuration constants.
const (
	// DefaultIdleAfter is how long an identity's bucket is kept unused.
	DefaultIdleAfter = 10 * time.Minute

	// MinCleanupInterval is the minimum interval for cleanup operations.
	MinCleanupInterval = 10 * time.Second

	// MaxCleanupInterval is the maximum interval for cleanup operations.
	MaxCleanupInterval = time.Minute
)

// clientEntry holds a rate limiter and its last access time for TTL-based cleanup.
type clientEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter keeps one token bucket per caller identity.
type RateLimiter struct {
	clients   map[string]*clientEntry
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	idleAfter time.Duration
	logger    observability.Logger
	metrics   *observability.Metrics
	now       func() time.Time
	stopCh    chan struct{}
	stopOnce  sync.Once
}

// RateLimiterOption is a functional option for configuring the rate limiter.
type RateLimiterOption func(*RateLimiter)

// WithRateLimiterLogger sets the logger for the rate limiter.
func WithRateLimiterLogger(logger observability.Logger) RateLimiterOption {
	return func(rl *RateLimiter) {
		rl.logger = logger
	}
}

// WithRateLimiterMetrics records rejected requests.
func WithRateLimiterMetrics(metrics *observability.Metrics) RateLimiterOption {
	return func(rl *RateLimiter) {
		rl.metrics = metrics
	}
}

// WithIdleAfter sets how long unused buckets are kept.
func WithIdleAfter(d time.Duration) RateLimiterOption {
	return func(rl *RateLimiter) {
		if d > 0 {
			rl.idleAfter = d
		}
	}
}

// withClock is used by tests.
func withClock(now func() time.Time) RateLimiterOption {
	return func(rl *RateLimiter) {
		rl.now = now
	}
}

// NewRateLimiter creates a rate limiter admitting rps requests per second
// per identity with the given burst.
func NewRateLimiter(rps float64, burst int, opts ...RateLimiterOption) *RateLimiter {
	rl := &RateLimiter{
		clients:   make(map[string]*clientEntry),
		limit:     rate.Limit(rps),
		burst:     burst,
		idleAfter: DefaultIdleAfter,
		logger:    observability.NopLogger(),
		now:       time.Now,
		stopCh:    make(chan struct{}),
	}

	for _, opt := range opts {
		opt(rl)
	}

	return rl
}

// Allow reports whether key may make a request now.
func (rl *RateLimiter) Allow(key string) bool {
	now := rl.now()

	rl.mu.Lock()
	entry, exists := rl.clients[key]
	if !exists {
		entry = &clientEntry{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[key] = entry
	}
	entry.lastAccess = now
	limiter := entry.limiter
	rl.mu.Unlock()

	return limiter.AllowN(now, 1)
}

// Len returns the number of tracked identities.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

// Cleanup drops buckets idle for longer than the idle period and returns
// how many were removed.
func (rl *RateLimiter) Cleanup() int {
	cutoff := rl.now().Add(-rl.idleAfter)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	for key, entry := range rl.clients {
		if entry.lastAccess.Before(cutoff) {
			delete(rl.clients, key)
			removed++
		}
	}
	return removed
}

// StartCleanup runs Cleanup periodically until Stop is called.
func (rl *RateLimiter) StartCleanup() {
	interval := rl.idleAfter / 2
	if interval < MinCleanupInterval {
		interval = MinCleanupInterval
	}
	if interval > MaxCleanupInterval {
		interval = MaxCleanupInterval
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-rl.stopCh:
				return
			case <-ticker.C:
				if removed := rl.Cleanup(); removed > 0 {
					rl.logger.Debug("rate limiter cleanup",
						observability.Int("removed", removed),
					)
				}
			}
		}
	}()
}

// Stop stops the cleanup goroutine. It is safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.stopCh)
	})
}

// RateLimit returns a middleware that limits each caller identity. The
// identity is the first token extracted by the security chain, or the
// client IP when no policy produced one.
func RateLimit(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := "ip:" + clientIP(r)
			if tokens := TokensFromContext(r.Context()); len(tokens) > 0 {
				key = identity(tokens[0].Token)
			}

			if !rl.Allow(key) {
				rl.logger.WithContext(r.Context()).Warn("rate limit exceeded",
					observability.String("path", r.URL.Path),
				)
				if rl.metrics != nil {
					rl.metrics.RecordRateLimited()
				}

				w.Header().Set(HeaderContentType, ContentTypeJSON)
				w.Header().Set(HeaderRetryAfter, "1")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = io.WriteString(w, ErrRateLimitExceeded)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitFromConfig creates rate limit middleware from gateway config.
// It returns the rate limiter for lifecycle management; the caller should
// call Stop on it during shutdown. Both are no-ops when rate limiting is
// disabled, in which case the limiter is nil.
func RateLimitFromConfig(
	cfg *config.RateLimitConfig,
	logger observability.Logger,
	metrics *observability.Metrics,
) (func(http.Handler) http.Handler, *RateLimiter) {
	if cfg == nil || !cfg.Enabled {
		return func(next http.Handler) http.Handler {
			return next
		}, nil
	}

	rl := NewRateLimiter(cfg.RequestsPerSecond, cfg.Burst,
		WithRateLimiterLogger(logger),
		WithRateLimiterMetrics(metrics),
		WithIdleAfter(cfg.IdleAfter.Duration()),
	)
	rl.StartCleanup()

	return RateLimit(rl), rl
}
