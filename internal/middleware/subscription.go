package middleware

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/vyrodovalexey/avapigw-mtls/internal/observability"
	"github.com/vyrodovalexey/avapigw-mtls/internal/policy"
	"github.com/vyrodovalexey/avapigw-mtls/internal/subscription"
)

// SubscriptionConfig configures the Subscriptions middleware.
type SubscriptionConfig struct {
	// API is the name subscriptions are provisioned under.
	API string

	// Store resolves subscriptions. A nil store disables the stage.
	Store subscription.Store

	// Chain is consulted for the policies that require a subscription.
	Chain *policy.Chain

	// Enforce enables the stage.
	Enforce bool

	Metrics *observability.Metrics
	Logger  observability.Logger

	// Now is the clock; time.Now when nil.
	Now func() time.Time
}

// Subscriptions returns a middleware that requires an active
// subscription for every token extracted by a policy declaring
// RequiresSubscription. When such policies exist but none of them
// yielded a token, or a token has no active subscription, the request is
// interrupted with GATEWAY_PLAN_UNRESOLVABLE. The resolved subscription
// id is forwarded in X-Gateway-Subscription-Id.
func Subscriptions(cfg SubscriptionConfig) func(http.Handler) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	required := false
	if cfg.Chain != nil {
		for _, p := range cfg.Chain.Policies() {
			if p.Metadata().RequiresSubscription {
				required = true
				break
			}
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Never trust a client-supplied subscription header.
			r.Header.Del(HeaderSubscriptionID)

			if !cfg.Enforce || !required || cfg.Store == nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			log := logger.WithContext(ctx)
			at := now()

			var resolved *subscription.Subscription
			for _, t := range TokensFromContext(ctx) {
				if !t.Policy.RequiresSubscription || t.Token.IsZero() {
					continue
				}

				sub, err := cfg.Store.Find(ctx, cfg.API, t.Token)
				switch {
				case errors.Is(err, subscription.ErrNotFound):
					log.Debug("no subscription for token",
						observability.String("policy", t.Policy.ID),
						observability.String("token_type", string(t.Token.Type)),
					)
					rejectSubscription(w, r, cfg.Metrics, t.Policy.ID)
					return
				case err != nil:
					log.Error("subscription lookup failed",
						observability.String("policy", t.Policy.ID),
						observability.Error(err),
					)
					w.Header().Set(HeaderContentType, ContentTypeJSON)
					w.WriteHeader(http.StatusServiceUnavailable)
					_, _ = io.WriteString(w, ErrSubscriptionStoreUnavailable)
					return
				case !sub.IsActive(at):
					log.Debug("subscription not active",
						observability.String("policy", t.Policy.ID),
						observability.String("subscription_id", sub.ID),
						observability.String("status", sub.Status),
					)
					rejectSubscription(w, r, cfg.Metrics, t.Policy.ID)
					return
				}

				if resolved == nil {
					resolved = sub
				}
			}

			if resolved == nil {
				log.Debug("no token to resolve a subscription with")
				rejectSubscription(w, r, cfg.Metrics, "")
				return
			}

			if info := RequestInfoFromContext(ctx); info != nil {
				info.SubscriptionID = resolved.ID
			}
			r.Header.Set(HeaderSubscriptionID, resolved.ID)

			next.ServeHTTP(w, r)
		})
	}
}

func rejectSubscription(w http.ResponseWriter, r *http.Request, metrics *observability.Metrics, policyID string) {
	if info := RequestInfoFromContext(r.Context()); info != nil {
		info.Policy = policyID
		info.FailureKey = subscription.FailurePlanUnresolvable
	}
	if metrics != nil {
		metrics.RecordSubscriptionReject(policyID)
	}
	WriteFailure(w, policy.NewFailure(subscription.FailurePlanUnresolvable))
}
