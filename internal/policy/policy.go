package policy

import (
	"context"
	"net/http"
)

// DefaultPriority is the priority of policies with no ordering
// requirement.
const DefaultPriority = 0

// Metadata is read once by the gateway when a policy is registered.
type Metadata struct {
	// ID uniquely identifies the policy.
	ID string `json:"id" yaml:"id"`

	// Priority orders policies in a chain; lower values run first.
	Priority int `json:"priority" yaml:"priority"`

	// RequiresSubscription makes the gateway match every request that
	// passes this policy against a provisioned subscription.
	RequiresSubscription bool `json:"requiresSubscription" yaml:"requiresSubscription"`
}

// ExecutionContext is the per-request state policies inspect.
type ExecutionContext struct {
	// Request is the inbound HTTP request.
	Request *http.Request

	// Session is the connection's TLS session, nil on plaintext
	// connections.
	Session TLSSession

	attributes map[string]any
}

// SetAttribute stores a request-scoped value for later policy stages.
// An ExecutionContext belongs to one request and is not safe for
// concurrent use.
func (ec *ExecutionContext) SetAttribute(key string, value any) {
	if ec.attributes == nil {
		ec.attributes = make(map[string]any)
	}
	ec.attributes[key] = value
}

// Attribute returns a value stored with SetAttribute.
func (ec *ExecutionContext) Attribute(key string) (any, bool) {
	v, ok := ec.attributes[key]
	return v, ok
}

// NewExecutionContext builds an ExecutionContext for r, deriving the
// session from r.TLS.
func NewExecutionContext(r *http.Request, opts SessionOptions) *ExecutionContext {
	ec := &ExecutionContext{Request: r}
	if r != nil {
		ec.Session = SessionFromConnectionState(r.TLS, opts)
	}
	return ec
}

// SecurityPolicy is implemented by every authentication check the
// gateway can chain.
type SecurityPolicy interface {
	// Metadata returns the registration-time declarations.
	Metadata() Metadata

	// Decide returns nil to continue or a *Failure to interrupt.
	Decide(ctx context.Context, ec *ExecutionContext) error

	// ExtractToken returns the caller identity for subscription
	// matching, or false when none can be derived.
	ExtractToken(ctx context.Context, ec *ExecutionContext) (SecurityToken, bool)
}
