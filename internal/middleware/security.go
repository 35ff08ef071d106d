package middleware

import (
	"io"
	"net/http"

	"github.com/vyrodovalexey/avapigw-mtls/internal/observability"
	"github.com/vyrodovalexey/avapigw-mtls/internal/policy"
)

// SecurityConfig configures the Security middleware.
type SecurityConfig struct {
	// Chain is the ordered set of security policies.
	Chain *policy.Chain

	// Session controls how the connection's TLS state is exposed to
	// policies.
	Session policy.SessionOptions

	Metrics *observability.Metrics
	Logger  observability.Logger
}

// Security returns a middleware that runs the policy chain on every
// request. An interrupt is written to the client and the request stops;
// otherwise the extracted tokens are stored in the request context for
// the subscription and rate limit stages.
func Security(cfg SecurityConfig) func(http.Handler) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}

	return func(next http.Handler) http.Handler {
		if cfg.Chain == nil || cfg.Chain.Len() == 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ec := policy.NewExecutionContext(r, cfg.Session)

			if err := cfg.Chain.Decide(ctx, ec); err != nil {
				policyID := ""
				if interrupt, ok := policy.AsInterrupt(err); ok {
					policyID = interrupt.Policy.ID
				}

				failure, ok := policy.AsFailure(err)
				if !ok {
					logger.WithContext(ctx).Error("security policy failed",
						observability.String("policy", policyID),
						observability.Error(err),
					)
					w.Header().Set(HeaderContentType, ContentTypeJSON)
					w.WriteHeader(http.StatusInternalServerError)
					_, _ = io.WriteString(w, ErrInternalServerError)
					return
				}

				if info := RequestInfoFromContext(ctx); info != nil {
					info.Policy = policyID
					info.FailureKey = failure.Key
				}
				if cfg.Metrics != nil {
					cfg.Metrics.RecordInterrupt(policyID, failure.Key.String())
				}

				WriteFailure(w, failure)
				return
			}

			tokens := cfg.Chain.ExtractTokens(ctx, ec)
			if len(tokens) > 0 {
				if info := RequestInfoFromContext(ctx); info != nil {
					info.Identity = identity(tokens[0].Token)
				}
			}

			next.ServeHTTP(w, r.WithContext(ContextWithTokens(ctx, tokens)))
		})
	}
}

// WriteFailure writes a policy interrupt: its status code, its message
// as a plain text body and its key in the X-Gateway-Failure-Key header.
func WriteFailure(w http.ResponseWriter, f *policy.Failure) {
	w.Header().Set(HeaderContentType, ContentTypeTextPlain)
	w.Header().Set(HeaderFailureKey, f.Key.String())
	w.WriteHeader(f.StatusCode)
	_, _ = io.WriteString(w, f.Message)
}
