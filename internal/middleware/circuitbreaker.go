package middleware

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/avapigw-mtls/internal/config"
	"github.com/vyrodovalexey/avapigw-mtls/internal/observability"
)

// cbTracer is the OTEL tracer used for circuit breaker operations.
var cbTracer = otel.Tracer("avapigw-mtls/circuitbreaker")

// errServerError marks 5xx responses as breaker failures.
var errServerError = errors.New("backend server error")

// CircuitBreaker wraps gobreaker.CircuitBreaker.
type CircuitBreaker struct {
	cb     *gobreaker.CircuitBreaker
	logger observability.Logger
}

// CircuitBreakerOption is a functional option for configuring the circuit breaker.
type CircuitBreakerOption func(*CircuitBreaker)

// WithCircuitBreakerLogger sets the logger for the circuit breaker.
func WithCircuitBreakerLogger(logger observability.Logger) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		cb.logger = logger
	}
}

// NewCircuitBreaker creates a breaker that opens after threshold
// consecutive failures, stays open for timeout and then admits
// halfOpen probe requests.
func NewCircuitBreaker(
	name string,
	threshold int,
	timeout time.Duration,
	halfOpen int,
	opts ...CircuitBreakerOption,
) *CircuitBreaker {
	cb := &CircuitBreaker{
		logger: observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(cb)
	}

	thresholdU32 := safeIntToUint32(threshold)

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: safeIntToUint32(halfOpen),
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= thresholdU32
		},
		OnStateChange: cb.onStateChange,
	}

	cb.cb = gobreaker.NewCircuitBreaker(settings)
	return cb
}

func (cb *CircuitBreaker) onStateChange(name string, from, to gobreaker.State) {
	log := cb.logger.Info
	if to == gobreaker.StateOpen {
		log = cb.logger.Warn
	}
	log("backend circuit breaker state change",
		observability.String("backend", name),
		observability.String("from", from.String()),
		observability.String("to", to.String()),
	)

	_, span := cbTracer.Start(context.Background(), "circuitbreaker.state_change",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("backend", name),
			attribute.String("circuitbreaker.from", from.String()),
			attribute.String("circuitbreaker.to", to.String()),
		),
	)
	span.End()
}

// safeIntToUint32 safely converts int to uint32.
func safeIntToUint32(n int) uint32 {
	if n < 0 {
		return 0
	}
	if n > int(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(n) //nolint:gosec // bounds checked above
}

// State returns the current state of the circuit breaker.
func (cb *CircuitBreaker) State() gobreaker.State {
	return cb.cb.State()
}

// CircuitBreakerMiddleware returns a middleware that counts 5xx responses
// as failures and answers 503 while the breaker is open. Requests
// interrupted by earlier stages never reach it, so only backend health
// trips the breaker.
func CircuitBreakerMiddleware(cb *CircuitBreaker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rw := newResponseWriter(w)

			_, err := cb.cb.Execute(func() (interface{}, error) {
				next.ServeHTTP(rw, r)
				if rw.status >= http.StatusInternalServerError {
					return nil, fmt.Errorf("%w: status %d", errServerError, rw.status)
				}
				return nil, nil
			})

			if !errors.Is(err, gobreaker.ErrOpenState) && !errors.Is(err, gobreaker.ErrTooManyRequests) {
				return
			}

			fields := []observability.Field{
				observability.String("path", r.URL.Path),
				observability.String("state", cb.State().String()),
			}
			if info := RequestInfoFromContext(r.Context()); info != nil {
				fields = append(fields,
					observability.String("identity", info.Identity),
					observability.String("subscription_id", info.SubscriptionID),
				)
			}
			cb.logger.WithContext(r.Context()).Warn("circuit breaker rejected request", fields...)
			trace.SpanFromContext(r.Context()).AddEvent("circuitbreaker.rejected")

			w.Header().Set(HeaderContentType, ContentTypeJSON)
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = io.WriteString(w, ErrServiceUnavailable)
		})
	}
}

// CircuitBreakerFromConfig creates circuit breaker middleware for the
// named backend. It is a no-op when the breaker is disabled.
func CircuitBreakerFromConfig(
	backend string,
	cfg *config.CircuitBreakerConfig,
	logger observability.Logger,
) func(http.Handler) http.Handler {
	if cfg == nil || !cfg.Enabled {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	cb := NewCircuitBreaker(
		backend,
		cfg.Threshold,
		cfg.Timeout.Duration(),
		cfg.HalfOpenRequests,
		WithCircuitBreakerLogger(logger),
	)

	return CircuitBreakerMiddleware(cb)
}
