package middleware

import (
	"net/http"
	"time"

	"github.com/vyrodovalexey/avapigw-mtls/internal/observability"
	tlspkg "github.com/vyrodovalexey/avapigw-mtls/internal/tls"
)

// Metrics returns a middleware that records request counts, durations,
// in-flight requests and, when tlsMetrics is set, the TLS state of
// each request.
func Metrics(metrics *observability.Metrics, tlsMetrics *tlspkg.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if metrics == nil && tlsMetrics == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tlsMetrics != nil {
				tlsMetrics.RecordRequest(r.TLS)
			}
			if metrics == nil {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			metrics.IncActive()
			defer metrics.DecActive()

			rw := newResponseWriter(w)
			next.ServeHTTP(rw, r)

			metrics.RecordRequest(r.Method, rw.status, time.Since(start))
		})
	}
}
