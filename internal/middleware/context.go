package middleware

import (
	"context"

	"github.com/vyrodovalexey/avapigw-mtls/internal/policy"
)

type contextKey int

const (
	tokensKey contextKey = iota
	requestInfoKey
)

// RequestInfo collects what the inner stages decided about a request so
// the access log, which runs outside them, can report it.
type RequestInfo struct {
	// Policy is the id of the policy that interrupted the request.
	Policy string

	// FailureKey is the key of the interrupt, if any.
	FailureKey policy.FailureKey

	// Identity is the first extracted token, as TYPE:value.
	Identity string

	// SubscriptionID is the resolved subscription.
	SubscriptionID string
}

func contextWithRequestInfo(ctx context.Context, info *RequestInfo) context.Context {
	return context.WithValue(ctx, requestInfoKey, info)
}

// RequestInfoFromContext returns the request's RequestInfo, or nil
// outside the Logging middleware.
func RequestInfoFromContext(ctx context.Context) *RequestInfo {
	info, _ := ctx.Value(requestInfoKey).(*RequestInfo)
	return info
}

// ContextWithTokens stores the tokens extracted by the security chain.
func ContextWithTokens(ctx context.Context, tokens []policy.ExtractedToken) context.Context {
	return context.WithValue(ctx, tokensKey, tokens)
}

// TokensFromContext returns the tokens stored by ContextWithTokens.
func TokensFromContext(ctx context.Context) []policy.ExtractedToken {
	tokens, _ := ctx.Value(tokensKey).([]policy.ExtractedToken)
	return tokens
}

func identity(token policy.SecurityToken) string {
	return string(token.Type) + ":" + token.Value
}
