package middleware

// HTTP header constants.
const (
	// HeaderContentType is the Content-Type header name.
	HeaderContentType = "Content-Type"

	// HeaderRetryAfter is the Retry-After header name.
	HeaderRetryAfter = "Retry-After"

	// HeaderXRequestID is the X-Request-ID header name.
	HeaderXRequestID = "X-Request-ID"

	// HeaderFailureKey carries the failure key of an interrupted request.
	HeaderFailureKey = "X-Gateway-Failure-Key"

	// HeaderSubscriptionID carries the resolved subscription id to the
	// backend.
	HeaderSubscriptionID = "X-Gateway-Subscription-Id"
)

// Content type constants.
const (
	// ContentTypeJSON is the JSON content type.
	ContentTypeJSON = "application/json"

	// ContentTypeTextPlain is the plain text content type.
	ContentTypeTextPlain = "text/plain; charset=utf-8"
)

// Error response constants.
const (
	// ErrRateLimitExceeded is the error message for rate limit exceeded.
	ErrRateLimitExceeded = `{"error":"rate limit exceeded"}`

	// ErrServiceUnavailable is the error message for an open circuit breaker.
	ErrServiceUnavailable = `{"error":"service unavailable","message":"circuit breaker open"}`

	// ErrSubscriptionStoreUnavailable is the error message when
	// subscriptions cannot be looked up.
	ErrSubscriptionStoreUnavailable = `{"error":"service unavailable","message":"subscription store unavailable"}`

	// ErrInternalServerError is the error message for internal server error.
	ErrInternalServerError = `{"error":"internal server error"}`
)
