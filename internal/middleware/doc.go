// Package middleware provides the HTTP middleware the gateway composes
// in front of the backend proxy.
//
// # Middleware Components
//
//   - Recovery: panic recovery with stack trace logging
//   - RequestID: unique request identifier injection
//   - Tracing: OpenTelemetry server span per request
//   - Logging: structured access logging
//   - Metrics: Prometheus request and TLS metrics
//   - Security: runs the security policy chain and writes interrupts
//   - Subscriptions: matches extracted tokens against provisioned
//     subscriptions
//   - RateLimit: token bucket per caller identity
//   - CircuitBreaker: backend circuit breaking
//
// # Usage
//
// Middleware functions follow the standard Go pattern:
//
//	handler := middleware.Recovery(logger)(
//	    middleware.RequestID()(
//	        middleware.Security(middleware.SecurityConfig{Chain: chain})(proxy),
//	    ),
//	)
package middleware
