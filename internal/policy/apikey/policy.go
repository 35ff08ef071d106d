package apikey

import (
	"context"
	"time"

	"github.com/vyrodovalexey/avapigw-mtls/internal/observability"
	"github.com/vyrodovalexey/avapigw-mtls/internal/policy"
)

// PolicyID identifies the API-key policy.
const PolicyID = "api-key"

// Failure keys.
const (
	FailureAPIKeyMissing policy.FailureKey = "API_KEY_MISSING"
	FailureAPIKeyInvalid policy.FailureKey = "API_KEY_INVALID"
)

// IsFailureKey reports whether key belongs to the policy's set.
func IsFailureKey(key policy.FailureKey) bool {
	return key == FailureAPIKeyMissing || key == FailureAPIKeyInvalid
}

// matchedKeyAttribute caches the matched key id on the execution context
// so ExtractToken does not repeat a bcrypt comparison.
const matchedKeyAttribute = "apikey.matched_id"

// Policy is the API-key security policy.
type Policy struct {
	config  *Config
	logger  observability.Logger
	metrics *Metrics
	now     func() time.Time
}

// Option is a functional option for Policy.
type Option func(*Policy)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(p *Policy) {
		p.logger = logger
	}
}

// WithMetrics sets the metrics.
func WithMetrics(metrics *Metrics) Option {
	return func(p *Policy) {
		p.metrics = metrics
	}
}

// WithClock overrides the time source used for key expiry.
func WithClock(now func() time.Time) Option {
	return func(p *Policy) {
		p.now = now
	}
}

// New creates the policy. The configuration is validated first.
func New(cfg *Config, opts ...Option) (*Policy, error) {
	if cfg == nil {
		return nil, ErrInvalidConfig
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Policy{
		config: cfg,
		logger: observability.NopLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}

	if cfg.GetEffectiveHashAlgorithm() == HashAlgPlaintext {
		p.logger.Warn("using plaintext API key comparison - not recommended for production")
	}

	return p, nil
}

// Metadata implements policy.SecurityPolicy.
func (p *Policy) Metadata() policy.Metadata {
	return policy.Metadata{
		ID:                   PolicyID,
		Priority:             policy.DefaultPriority,
		RequiresSubscription: true,
	}
}

// Decide implements policy.SecurityPolicy.
func (p *Policy) Decide(ctx context.Context, ec *policy.ExecutionContext) error {
	start := time.Now()

	provided := p.extract(ec)
	if provided == "" {
		p.record("error", "missing", start)
		return policy.NewFailure(FailureAPIKeyMissing)
	}

	id, ok := p.lookup(provided)
	if !ok {
		p.record("error", "invalid", start)
		p.logger.WithContext(ctx).Debug("api key rejected")
		return policy.NewFailure(FailureAPIKeyInvalid)
	}

	ec.SetAttribute(matchedKeyAttribute, id)
	p.record("success", "valid", start)
	return nil
}

// ExtractToken implements policy.SecurityPolicy. The token value is the
// matched key's id, never the key itself.
func (p *Policy) ExtractToken(_ context.Context, ec *policy.ExecutionContext) (policy.SecurityToken, bool) {
	if ec == nil {
		return policy.SecurityToken{}, false
	}

	if v, ok := ec.Attribute(matchedKeyAttribute); ok {
		if id, ok := v.(string); ok && id != "" {
			return policy.ForAPIKey(id), true
		}
	}

	provided := p.extract(ec)
	if provided == "" {
		return policy.SecurityToken{}, false
	}
	id, ok := p.lookup(provided)
	if !ok {
		return policy.SecurityToken{}, false
	}
	return policy.ForAPIKey(id), true
}

func (p *Policy) extract(ec *policy.ExecutionContext) string {
	if ec == nil || ec.Request == nil {
		return ""
	}
	r := ec.Request
	if v := r.Header.Get(p.config.GetEffectiveHeader()); v != "" {
		return v
	}
	if p.config.QueryParam != "" {
		return r.URL.Query().Get(p.config.QueryParam)
	}
	return ""
}

func (p *Policy) lookup(provided string) (string, bool) {
	now := p.now()
	m := newMatcher(p.config.GetEffectiveHashAlgorithm(), provided)
	for i := range p.config.Keys {
		k := &p.config.Keys[i]
		if !k.Usable(now) {
			continue
		}
		if m.match(k.Hash) == nil {
			return k.ID, true
		}
	}
	return "", false
}

func (p *Policy) record(status, reason string, start time.Time) {
	if p.metrics != nil {
		p.metrics.RecordValidation(status, reason, time.Since(start))
	}
}

var _ policy.SecurityPolicy = (*Policy)(nil)
