package policy

import (
	"context"
	"errors"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/avapigw-mtls/internal/observability"
)

// chainTracer is package-level so tests can swap the provider.
var chainTracer = otel.Tracer("avapigw-mtls/policy")

// ExtractedToken pairs a token with the policy that produced it.
type ExtractedToken struct {
	Policy Metadata
	Token  SecurityToken
}

// Interrupt is the error Decide returns. It names the policy that
// stopped the request and wraps that policy's error, so AsFailure still
// finds the *Failure.
type Interrupt struct {
	Policy Metadata
	Err    error
}

// Error implements the error interface.
func (i *Interrupt) Error() string {
	return "policy " + i.Policy.ID + ": " + i.Err.Error()
}

// Unwrap returns the policy error.
func (i *Interrupt) Unwrap() error {
	return i.Err
}

// AsInterrupt reports whether err is, or wraps, an *Interrupt.
func AsInterrupt(err error) (*Interrupt, bool) {
	var i *Interrupt
	if errors.As(err, &i) {
		return i, true
	}
	return nil, false
}

// Chain runs security policies in ascending priority order. Policies
// with equal priority keep their registration order.
type Chain struct {
	policies []SecurityPolicy
	logger   observability.Logger
}

// ChainOption configures a Chain.
type ChainOption func(*Chain)

// WithChainLogger sets the chain logger.
func WithChainLogger(logger observability.Logger) ChainOption {
	return func(c *Chain) {
		c.logger = logger
	}
}

// NewChain orders policies by priority. Nil entries are dropped.
func NewChain(policies []SecurityPolicy, opts ...ChainOption) *Chain {
	c := &Chain{
		policies: make([]SecurityPolicy, 0, len(policies)),
		logger:   observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}

	for _, p := range policies {
		if p != nil {
			c.policies = append(c.policies, p)
		}
	}
	sort.SliceStable(c.policies, func(i, j int) bool {
		return c.policies[i].Metadata().Priority < c.policies[j].Metadata().Priority
	})

	return c
}

// Policies returns the policies in execution order.
func (c *Chain) Policies() []SecurityPolicy {
	out := make([]SecurityPolicy, len(c.policies))
	copy(out, c.policies)
	return out
}

// Len returns the number of policies.
func (c *Chain) Len() int {
	return len(c.policies)
}

// Decide runs each policy's gate in order and stops at the first
// interrupt, returned as an *Interrupt.
func (c *Chain) Decide(ctx context.Context, ec *ExecutionContext) error {
	for _, p := range c.policies {
		md := p.Metadata()

		spanCtx, span := chainTracer.Start(ctx, "policy.decide",
			trace.WithSpanKind(trace.SpanKindInternal),
			trace.WithAttributes(
				attribute.String("policy.id", md.ID),
				attribute.Int("policy.priority", md.Priority),
			),
		)

		err := p.Decide(spanCtx, ec)
		if err != nil {
			if f, ok := AsFailure(err); ok {
				span.SetAttributes(attribute.String("policy.failure_key", f.Key.String()))
			}
			span.SetStatus(codes.Error, err.Error())
			span.End()

			c.logger.WithContext(ctx).Debug("security policy interrupted request",
				observability.String("policy", md.ID),
				observability.Error(err),
			)
			return &Interrupt{Policy: md, Err: err}
		}

		span.End()
	}
	return nil
}

// ExtractTokens collects the tokens of every policy that yields one, in
// chain order.
func (c *Chain) ExtractTokens(ctx context.Context, ec *ExecutionContext) []ExtractedToken {
	var tokens []ExtractedToken
	for _, p := range c.policies {
		if token, ok := p.ExtractToken(ctx, ec); ok {
			tokens = append(tokens, ExtractedToken{Policy: p.Metadata(), Token: token})
		}
	}
	return tokens
}
