package mtls

import (
	"context"
	"time"

	"github.com/vyrodovalexey/avapigw-mtls/internal/observability"
	"github.com/vyrodovalexey/avapigw-mtls/internal/policy"
)

// Registration metadata.
const (
	PolicyID = "mtls"

	// Priority places the gate ahead of default-priority policies.
	Priority = -100
)

// Failure keys. The gate emits only these three.
const (
	FailureSSLSessionRequired       policy.FailureKey = "SSL_SESSION_REQUIRED"
	FailureClientCertificateInvalid policy.FailureKey = "CLIENT_CERTIFICATE_INVALID"
	FailureClientCertificateMissing policy.FailureKey = "CLIENT_CERTIFICATE_MISSING"
)

// IsFailureKey reports whether key belongs to the gate's set.
func IsFailureKey(key policy.FailureKey) bool {
	switch key {
	case FailureSSLSessionRequired, FailureClientCertificateInvalid, FailureClientCertificateMissing:
		return true
	default:
		return false
	}
}

// Token extraction results used as metric labels.
const (
	tokenResultExtracted = "extracted"
	tokenResultNoChain   = "no_chain"
	tokenResultEncoding  = "encoding_failed"
)

// Policy is the mTLS client-certificate gate. It is immutable after New
// and safe for concurrent use.
type Policy struct {
	config  *Config
	digest  DigestFunc
	logger  observability.Logger
	metrics *Metrics
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

// WithDigest overrides the token digest.
func WithDigest(digest DigestFunc) Option {
	return func(p *Policy) {
		if digest != nil {
			p.digest = digest
		}
	}
}

// New creates a policy with the default configuration.
func New(opts ...Option) *Policy {
	p, _ := NewFromConfig(DefaultConfig(), opts...)
	return p
}

// NewFromConfig creates a policy from cfg. A nil cfg uses DefaultConfig.
func NewFromConfig(cfg *Config, opts ...Option) (*Policy, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Policy{
		config: cfg,
		digest: cfg.digestFunc(),
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

// Metadata implements policy.SecurityPolicy.
func (p *Policy) Metadata() policy.Metadata {
	return policy.Metadata{
		ID:                   PolicyID,
		Priority:             Priority,
		RequiresSubscription: true,
	}
}

// SessionOptions returns the options the host should use when adapting
// the connection state for this policy.
func (p *Policy) SessionOptions() policy.SessionOptions {
	return p.config.SessionOptions()
}

// Decide implements policy.SecurityPolicy. It returns nil when the peer
// presented at least one certificate and a *policy.Failure otherwise.
//
// A present chain continues even if its leaf cannot be encoded, in which
// case ExtractToken yields no token. The gate only establishes that a
// verified peer presented a certificate.
func (p *Policy) Decide(ctx context.Context, ec *policy.ExecutionContext) error {
	start := time.Now()

	var session policy.TLSSession
	if ec != nil {
		session = ec.Session
	}

	result := Extract(session)
	key, interrupt := gateKey(result.Outcome)

	if p.metrics != nil {
		p.metrics.RecordDecision(result.Outcome, string(key), time.Since(start))
	}

	if !interrupt {
		return nil
	}

	fields := []observability.Field{
		observability.String("outcome", result.Outcome.String()),
		observability.String("failure_key", key.String()),
	}
	if result.Err != nil {
		fields = append(fields, observability.Error(result.Err))
	}
	p.logger.WithContext(ctx).Debug("mtls gate interrupted request", fields...)

	return policy.NewFailure(key)
}

// gateKey maps an outcome to its failure key. Unknown outcomes fail
// closed.
func gateKey(outcome Outcome) (policy.FailureKey, bool) {
	switch outcome {
	case OutcomePresent:
		return "", false
	case OutcomeSessionAbsent:
		return FailureSSLSessionRequired, true
	case OutcomeEmpty:
		return FailureClientCertificateMissing, true
	default:
		return FailureClientCertificateInvalid, true
	}
}

// ExtractToken implements policy.SecurityPolicy. It yields a CERTIFICATE
// token for a present chain whose leaf can be encoded and nothing
// otherwise.
func (p *Policy) ExtractToken(ctx context.Context, ec *policy.ExecutionContext) (policy.SecurityToken, bool) {
	var session policy.TLSSession
	if ec != nil {
		session = ec.Session
	}

	leaf, ok := Extract(session).Leaf()
	if !ok {
		p.recordToken(tokenResultNoChain)
		return policy.SecurityToken{}, false
	}

	token, err := DeriveToken(leaf, p.digest)
	if err != nil {
		p.logger.WithContext(ctx).Debug("client certificate token unavailable",
			observability.Error(err),
		)
		p.recordToken(tokenResultEncoding)
		return policy.SecurityToken{}, false
	}

	p.recordToken(tokenResultExtracted)
	return token, true
}

func (p *Policy) recordToken(result string) {
	if p.metrics != nil {
		p.metrics.RecordTokenExtraction(result)
	}
}

var _ policy.SecurityPolicy = (*Policy)(nil)
