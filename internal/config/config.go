package config

import (
	"time"

	"github.com/vyrodovalexey/avapigw-mtls/internal/observability"
	"github.com/vyrodovalexey/avapigw-mtls/internal/policy/apikey"
	"github.com/vyrodovalexey/avapigw-mtls/internal/policy/mtls"
	"github.com/vyrodovalexey/avapigw-mtls/internal/subscription"
	tlspkg "github.com/vyrodovalexey/avapigw-mtls/internal/tls"
)

// Subscription store types.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Defaults.
const (
	DefaultName               = "gateway"
	DefaultListenAddress      = ":8443"
	DefaultReadTimeout        = 30 * time.Second
	DefaultReadHeaderTimeout  = 10 * time.Second
	DefaultWriteTimeout       = 30 * time.Second
	DefaultIdleTimeout        = 120 * time.Second
	DefaultShutdownTimeout    = 30 * time.Second
	DefaultBackendTimeout     = 30 * time.Second
	DefaultBreakerThreshold   = 5
	DefaultBreakerTimeout     = 30 * time.Second
	DefaultBreakerHalfOpen    = 1
	DefaultMetricsAddress     = ":9090"
	DefaultMetricsPath        = "/metrics"
	DefaultServiceName        = "avapigw-mtls"
	DefaultRateLimitRPS       = 100
	DefaultRateLimitBurst     = 200
	DefaultRateLimitIdleAfter = 10 * time.Minute
)

// GatewayConfig is the root of the configuration file.
type GatewayConfig struct {
	Gateway Gateway `yaml:"gateway" json:"gateway"`
}

// Gateway configures one gateway instance fronting one API.
type Gateway struct {
	// Name identifies the API; subscriptions are looked up under it.
	Name string `yaml:"name" json:"name"`

	Listener      ListenerConfig      `yaml:"listener" json:"listener"`
	TLS           *tlspkg.Config      `yaml:"tls,omitempty" json:"tls,omitempty"`
	Backend       BackendConfig       `yaml:"backend" json:"backend"`
	Security      SecurityConfig      `yaml:"security" json:"security"`
	Subscriptions SubscriptionsConfig `yaml:"subscriptions" json:"subscriptions"`
	RateLimit     *RateLimitConfig    `yaml:"rateLimit,omitempty" json:"rateLimit,omitempty"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

// ListenerConfig configures the HTTP listener.
type ListenerConfig struct {
	Address           string   `yaml:"address" json:"address"`
	ReadTimeout       Duration `yaml:"readTimeout,omitempty" json:"readTimeout,omitempty"`
	ReadHeaderTimeout Duration `yaml:"readHeaderTimeout,omitempty" json:"readHeaderTimeout,omitempty"`
	WriteTimeout      Duration `yaml:"writeTimeout,omitempty" json:"writeTimeout,omitempty"`
	IdleTimeout       Duration `yaml:"idleTimeout,omitempty" json:"idleTimeout,omitempty"`
	ShutdownTimeout   Duration `yaml:"shutdownTimeout,omitempty" json:"shutdownTimeout,omitempty"`
}

// BackendConfig configures the upstream API.
type BackendConfig struct {
	URL            string                `yaml:"url" json:"url"`
	Timeout        Duration              `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	CircuitBreaker *CircuitBreakerConfig `yaml:"circuitBreaker,omitempty" json:"circuitBreaker,omitempty"`
}

// CircuitBreakerConfig configures the backend circuit breaker.
type CircuitBreakerConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Threshold is the number of consecutive failures that opens the
	// breaker.
	Threshold int `yaml:"threshold,omitempty" json:"threshold,omitempty"`

	// Timeout is how long the breaker stays open.
	Timeout Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	// HalfOpenRequests is the number of probes admitted while half-open.
	HalfOpenRequests int `yaml:"halfOpenRequests,omitempty" json:"halfOpenRequests,omitempty"`
}

// SecurityConfig configures the security policies.
type SecurityConfig struct {
	MTLS   *mtls.Config   `yaml:"mtls,omitempty" json:"mtls,omitempty"`
	APIKey *apikey.Config `yaml:"apiKey,omitempty" json:"apiKey,omitempty"`
}

// SubscriptionsConfig configures subscription enforcement.
type SubscriptionsConfig struct {
	// Enforce requires an active subscription for every token extracted
	// by a policy that declares RequiresSubscription.
	Enforce bool `yaml:"enforce" json:"enforce"`

	// Store is memory or redis.
	Store string `yaml:"store,omitempty" json:"store,omitempty"`

	Redis *RedisConfig `yaml:"redis,omitempty" json:"redis,omitempty"`

	// Static subscriptions served by the memory store.
	Static []subscription.Subscription `yaml:"static,omitempty" json:"static,omitempty"`
}

// RedisConfig configures the Redis subscription store.
type RedisConfig struct {
	Address     string   `yaml:"address" json:"address"`
	Password    string   `yaml:"password,omitempty" json:"password,omitempty"`
	DB          int      `yaml:"db,omitempty" json:"db,omitempty"`
	Prefix      string   `yaml:"prefix,omitempty" json:"prefix,omitempty"`
	PoolSize    int      `yaml:"poolSize,omitempty" json:"poolSize,omitempty"`
	DialTimeout Duration `yaml:"dialTimeout,omitempty" json:"dialTimeout,omitempty"`
}

// StoreConfig converts to the store's configuration.
func (c *RedisConfig) StoreConfig() *subscription.RedisConfig {
	return &subscription.RedisConfig{
		Address:     c.Address,
		Password:    c.Password,
		DB:          c.DB,
		Prefix:      c.Prefix,
		PoolSize:    c.PoolSize,
		DialTimeout: c.DialTimeout.Duration(),
	}
}

// RateLimitConfig configures per-identity rate limiting.
type RateLimitConfig struct {
	Enabled           bool     `yaml:"enabled" json:"enabled"`
	RequestsPerSecond float64  `yaml:"requestsPerSecond,omitempty" json:"requestsPerSecond,omitempty"`
	Burst             int      `yaml:"burst,omitempty" json:"burst,omitempty"`
	IdleAfter         Duration `yaml:"idleAfter,omitempty" json:"idleAfter,omitempty"`
}

// ObservabilityConfig configures logging, metrics and tracing.
type ObservabilityConfig struct {
	Logging observability.LogConfig `yaml:"logging" json:"logging"`
	Metrics MetricsConfig           `yaml:"metrics" json:"metrics"`
	Tracing TracingConfig           `yaml:"tracing" json:"tracing"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Address string `yaml:"address,omitempty" json:"address,omitempty"`
	Path    string `yaml:"path,omitempty" json:"path,omitempty"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	OTLPEndpoint string  `yaml:"otlpEndpoint,omitempty" json:"otlpEndpoint,omitempty"`
	OTLPCAFile   string  `yaml:"otlpCAFile,omitempty" json:"otlpCAFile,omitempty"`
	SamplingRate float64 `yaml:"samplingRate,omitempty" json:"samplingRate,omitempty"`
	ServiceName  string  `yaml:"serviceName,omitempty" json:"serviceName,omitempty"`
}

// TracerConfig converts to the observability tracer configuration.
func (c TracingConfig) TracerConfig() observability.TracerConfig {
	return observability.TracerConfig{
		ServiceName:  c.ServiceName,
		OTLPEndpoint: c.OTLPEndpoint,
		OTLPCAFile:   c.OTLPCAFile,
		SamplingRate: c.SamplingRate,
		Enabled:      c.Enabled,
	}
}

// DefaultConfig returns a configuration with every default applied. It
// serves plaintext until TLS is configured.
func DefaultConfig() *GatewayConfig {
	cfg := &GatewayConfig{}
	cfg.Gateway.TLS = &tlspkg.Config{Mode: tlspkg.TLSModeInsecure}
	cfg.Gateway.Backend.URL = "http://localhost:9000"
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills unset optional fields.
func ApplyDefaults(cfg *GatewayConfig) {
	g := &cfg.Gateway

	if g.Name == "" {
		g.Name = DefaultName
	}

	l := &g.Listener
	if l.Address == "" {
		l.Address = DefaultListenAddress
	}
	setDuration(&l.ReadTimeout, DefaultReadTimeout)
	setDuration(&l.ReadHeaderTimeout, DefaultReadHeaderTimeout)
	setDuration(&l.WriteTimeout, DefaultWriteTimeout)
	setDuration(&l.IdleTimeout, DefaultIdleTimeout)
	setDuration(&l.ShutdownTimeout, DefaultShutdownTimeout)

	if g.TLS == nil {
		g.TLS = tlspkg.DefaultConfig()
	}

	setDuration(&g.Backend.Timeout, DefaultBackendTimeout)
	if cb := g.Backend.CircuitBreaker; cb != nil {
		if cb.Threshold == 0 {
			cb.Threshold = DefaultBreakerThreshold
		}
		setDuration(&cb.Timeout, DefaultBreakerTimeout)
		if cb.HalfOpenRequests == 0 {
			cb.HalfOpenRequests = DefaultBreakerHalfOpen
		}
	}

	if g.Security.MTLS == nil {
		g.Security.MTLS = mtls.DefaultConfig()
	}

	if g.Subscriptions.Store == "" {
		g.Subscriptions.Store = StoreMemory
	}

	if rl := g.RateLimit; rl != nil {
		if rl.RequestsPerSecond == 0 {
			rl.RequestsPerSecond = DefaultRateLimitRPS
		}
		if rl.Burst == 0 {
			rl.Burst = DefaultRateLimitBurst
		}
		setDuration(&rl.IdleAfter, DefaultRateLimitIdleAfter)
	}

	o := &g.Observability
	defaults := observability.DefaultLogConfig()
	if o.Logging.Level == "" {
		o.Logging.Level = defaults.Level
	}
	if o.Logging.Format == "" {
		o.Logging.Format = defaults.Format
	}
	if o.Logging.Output == "" {
		o.Logging.Output = defaults.Output
	}
	if o.Metrics.Address == "" {
		o.Metrics.Address = DefaultMetricsAddress
	}
	if o.Metrics.Path == "" {
		o.Metrics.Path = DefaultMetricsPath
	}
	if o.Tracing.ServiceName == "" {
		o.Tracing.ServiceName = DefaultServiceName
	}
	if o.Tracing.Enabled && o.Tracing.SamplingRate == 0 {
		o.Tracing.SamplingRate = 1.0
	}
}

func setDuration(d *Duration, def time.Duration) {
	if *d == 0 {
		*d = Duration(def)
	}
}
