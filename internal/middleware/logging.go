package middleware

import (
	"net/http"
	"time"

	"github.com/vyrodovalexey/avapigw-mtls/internal/observability"
)

// responseWriter wraps http.ResponseWriter to capture status code and size.
type responseWriter struct {
	http.ResponseWriter
	status      int
	size        int
	wroteHeader bool
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, status: http.StatusOK}
}

// WriteHeader captures the status code.
func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.status = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

// Write captures the response size.
func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}

// Flush implements http.Flusher interface for streaming support.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Logging returns a middleware that writes one access log entry per
// request, including the security outcome recorded by inner stages.
func Logging(logger observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			info := &RequestInfo{}
			r = r.WithContext(contextWithRequestInfo(r.Context(), info))
			rw := newResponseWriter(w)

			next.ServeHTTP(rw, r)

			fields := []observability.Field{
				observability.String("method", r.Method),
				observability.String("path", r.URL.Path),
				observability.Int("status", rw.status),
				observability.Int("size", rw.size),
				observability.Duration("duration", time.Since(start)),
				observability.String("client_ip", clientIP(r)),
				observability.String("user_agent", r.UserAgent()),
			}
			if info.FailureKey != "" {
				fields = append(fields,
					observability.String("policy", info.Policy),
					observability.String("failure_key", info.FailureKey.String()),
				)
			}
			if info.Identity != "" {
				fields = append(fields, observability.String("identity", info.Identity))
			}
			if info.SubscriptionID != "" {
				fields = append(fields, observability.String("subscription_id", info.SubscriptionID))
			}

			//nolint:contextcheck // request context carries the ids
			logger.WithContext(r.Context()).Info("http request", fields...)
		})
	}
}
