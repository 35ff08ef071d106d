package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/vyrodovalexey/avapigw-mtls/internal/observability"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Path    string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i, err := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

// HasErrors returns true if there are validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates gateway configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateConfig validates a gateway configuration.
func ValidateConfig(cfg *GatewayConfig) error {
	return NewValidator().Validate(cfg)
}

// Validate validates the configuration and returns ValidationErrors when
// anything is wrong.
func (v *Validator) Validate(cfg *GatewayConfig) error {
	v.errors = nil

	if cfg == nil {
		v.addError("", "configuration is nil")
		return v.errors
	}

	g := &cfg.Gateway
	if g.Name == "" {
		v.addError("gateway.name", "name is required")
	}
	if g.Listener.Address == "" {
		v.addError("gateway.listener.address", "address is required")
	}

	v.wrap("gateway.tls", g.TLS.Validate())
	v.validateBackend(&g.Backend)
	v.validateSecurity(&g.Security)
	v.validateSubscriptions(&g.Subscriptions)
	v.validateRateLimit(g.RateLimit)
	v.validateObservability(&g.Observability)

	if v.errors.HasErrors() {
		return v.errors
	}
	return nil
}

func (v *Validator) validateBackend(b *BackendConfig) {
	if b.URL == "" {
		v.addError("gateway.backend.url", "url is required")
	} else if u, err := url.Parse(b.URL); err != nil {
		v.addError("gateway.backend.url", err.Error())
	} else if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		v.addError("gateway.backend.url", "url must be an absolute http or https URL")
	}

	if b.Timeout < 0 {
		v.addError("gateway.backend.timeout", "timeout must be non-negative")
	}

	if cb := b.CircuitBreaker; cb != nil && cb.Enabled {
		if cb.Threshold <= 0 {
			v.addError("gateway.backend.circuitBreaker.threshold", "threshold must be positive")
		}
		if cb.Timeout <= 0 {
			v.addError("gateway.backend.circuitBreaker.timeout", "timeout must be positive")
		}
		if cb.HalfOpenRequests <= 0 {
			v.addError("gateway.backend.circuitBreaker.halfOpenRequests", "halfOpenRequests must be positive")
		}
	}
}

func (v *Validator) validateSecurity(s *SecurityConfig) {
	mtlsEnabled := s.MTLS != nil && s.MTLS.Enabled
	apiKeyEnabled := s.APIKey != nil && s.APIKey.Enabled
	if !mtlsEnabled && !apiKeyEnabled {
		v.addError("gateway.security", "at least one security policy must be enabled")
	}

	v.wrap("gateway.security.mtls", s.MTLS.Validate())
	v.wrap("gateway.security.apiKey", s.APIKey.Validate())
}

func (v *Validator) validateSubscriptions(s *SubscriptionsConfig) {
	switch s.Store {
	case StoreMemory:
	case StoreRedis:
		if s.Redis == nil || s.Redis.Address == "" {
			v.addError("gateway.subscriptions.redis.address", "address is required for the redis store")
		}
	default:
		v.addError("gateway.subscriptions.store", fmt.Sprintf("unknown store %q", s.Store))
	}

	for i := range s.Static {
		if err := s.Static[i].Validate(); err != nil {
			v.addError(fmt.Sprintf("gateway.subscriptions.static[%d]", i), err.Error())
		}
	}
}

func (v *Validator) validateRateLimit(rl *RateLimitConfig) {
	if rl == nil || !rl.Enabled {
		return
	}
	if rl.RequestsPerSecond <= 0 {
		v.addError("gateway.rateLimit.requestsPerSecond", "requestsPerSecond must be positive")
	}
	if rl.Burst <= 0 {
		v.addError("gateway.rateLimit.burst", "burst must be positive")
	}
}

func (v *Validator) validateObservability(o *ObservabilityConfig) {
	if _, err := observability.NewLogger(o.Logging); err != nil {
		v.addError("gateway.observability.logging", err.Error())
	}

	if o.Metrics.Enabled && !strings.HasPrefix(o.Metrics.Path, "/") {
		v.addError("gateway.observability.metrics.path", "path must start with /")
	}

	if o.Tracing.SamplingRate < 0 || o.Tracing.SamplingRate > 1 {
		v.addError("gateway.observability.tracing.samplingRate", "samplingRate must be between 0 and 1")
	}
}

func (v *Validator) wrap(path string, err error) {
	if err != nil {
		v.addError(path, err.Error())
	}
}

func (v *Validator) addError(path, message string) {
	v.errors = append(v.errors, ValidationError{Path: path, Message: message})
}
