package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/avapigw-mtls/internal/config"
	"github.com/vyrodovalexey/avapigw-mtls/internal/middleware"
	"github.com/vyrodovalexey/avapigw-mtls/internal/observability"
	"github.com/vyrodovalexey/avapigw-mtls/internal/policy"
	"github.com/vyrodovalexey/avapigw-mtls/internal/policy/apikey"
	"github.com/vyrodovalexey/avapigw-mtls/internal/policy/mtls"
	"github.com/vyrodovalexey/avapigw-mtls/internal/subscription"
	tlspkg "github.com/vyrodovalexey/avapigw-mtls/internal/tls"
)

var ginModeOnce sync.Once

// State represents the gateway state.
type State int32

const (
	// StateStopped indicates the gateway is stopped.
	StateStopped State = iota
	// StateStarting indicates the gateway is starting.
	StateStarting
	// StateRunning indicates the gateway is running.
	StateRunning
	// StateStopping indicates the gateway is stopping.
	StateStopping
	// StateClosed indicates the gateway released its resources and
	// cannot be started again.
	StateClosed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Gateway is one gateway instance fronting one API.
type Gateway struct {
	config    *config.GatewayConfig
	logger    observability.Logger
	engine    *gin.Engine
	listener  *Listener
	state     atomic.Int32
	startTime time.Time

	metrics       *observability.Metrics
	tlsMetrics    *tlspkg.Metrics
	mtlsMetrics   *mtls.Metrics
	apikeyMetrics *apikey.Metrics
	tracer        *observability.Tracer
	transport     http.RoundTripper

	store     subscription.Store
	ownsStore bool

	chain       *policy.Chain
	session     policy.SessionOptions
	handler     http.Handler
	rateLimiter *middleware.RateLimiter
}

// Option is a functional option for configuring the gateway.
type Option func(*Gateway)

// WithLogger sets the logger for the gateway.
func WithLogger(logger observability.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

// WithMetrics sets the request metrics.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(g *Gateway) {
		g.metrics = metrics
	}
}

// WithTLSMetrics sets the TLS connection metrics.
func WithTLSMetrics(metrics *tlspkg.Metrics) Option {
	return func(g *Gateway) {
		g.tlsMetrics = metrics
	}
}

// WithMTLSMetrics sets the mTLS policy metrics.
func WithMTLSMetrics(metrics *mtls.Metrics) Option {
	return func(g *Gateway) {
		g.mtlsMetrics = metrics
	}
}

// WithAPIKeyMetrics sets the API-key policy metrics.
func WithAPIKeyMetrics(metrics *apikey.Metrics) Option {
	return func(g *Gateway) {
		g.apikeyMetrics = metrics
	}
}

// WithTracer sets the tracer.
func WithTracer(tracer *observability.Tracer) Option {
	return func(g *Gateway) {
		g.tracer = tracer
	}
}

// WithSubscriptionStore sets the subscription store. The caller keeps
// ownership. Without it the gateway serves the static subscriptions from
// an in-memory store.
func WithSubscriptionStore(store subscription.Store) Option {
	return func(g *Gateway) {
		g.store = store
	}
}

// WithTransport sets the backend transport.
func WithTransport(transport http.RoundTripper) Option {
	return func(g *Gateway) {
		g.transport = transport
	}
}

// New creates a Gateway and assembles its request pipeline. cfg must have
// passed config.ValidateConfig.
func New(cfg *config.GatewayConfig, opts ...Option) (*Gateway, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}

	g := &Gateway{
		config: cfg,
		logger: observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(g)
	}

	g.state.Store(int32(StateStopped))

	if err := g.buildChain(); err != nil {
		return nil, err
	}

	if g.store == nil {
		store, err := subscription.NewMemoryStore(cfg.Gateway.Subscriptions.Static)
		if err != nil {
			return nil, fmt.Errorf("failed to load static subscriptions: %w", err)
		}
		g.store = store
		g.ownsStore = true
	}

	if err := g.buildHandler(); err != nil {
		g.closeResources()
		return nil, err
	}

	return g, nil
}

// buildChain instantiates the enabled security policies.
func (g *Gateway) buildChain() error {
	sec := g.config.Gateway.Security
	policies := make([]policy.SecurityPolicy, 0, 2)

	// The listener's session view follows the mTLS policy; with no mTLS
	// policy only verified chains are exposed.
	g.session = policy.SessionOptions{RequireVerifiedChain: true}

	if sec.MTLS != nil && sec.MTLS.Enabled {
		opts := []mtls.Option{mtls.WithLogger(g.logger)}
		if g.mtlsMetrics != nil {
			opts = append(opts, mtls.WithMetrics(g.mtlsMetrics))
		}
		p, err := mtls.NewFromConfig(sec.MTLS, opts...)
		if err != nil {
			return fmt.Errorf("failed to create mtls policy: %w", err)
		}
		g.session = p.SessionOptions()
		policies = append(policies, p)
	}

	if sec.APIKey != nil && sec.APIKey.Enabled {
		opts := []apikey.Option{apikey.WithLogger(g.logger)}
		if g.apikeyMetrics != nil {
			opts = append(opts, apikey.WithMetrics(g.apikeyMetrics))
		}
		p, err := apikey.New(sec.APIKey, opts...)
		if err != nil {
			return fmt.Errorf("failed to create api key policy: %w", err)
		}
		policies = append(policies, p)
	}

	g.chain = policy.NewChain(policies, policy.WithChainLogger(g.logger))
	return nil
}

// Start binds the listener and serves the pipeline.
func (g *Gateway) Start(ctx context.Context) error {
	if !g.state.CompareAndSwap(int32(StateStopped), int32(StateStarting)) {
		if g.State() == StateClosed {
			return ErrClosed
		}
		return ErrNotStopped
	}

	g.logger.Info("starting gateway",
		observability.String("name", g.config.Gateway.Name),
	)

	tlsConfig, err := tlspkg.BuildServerConfig(g.config.Gateway.TLS, g.logger)
	if err != nil {
		g.state.Store(int32(StateStopped))
		return fmt.Errorf("failed to build listener TLS: %w", err)
	}

	ginModeOnce.Do(func() {
		gin.SetMode(gin.ReleaseMode)
	})
	g.engine = gin.New()
	g.engine.NoRoute(gin.WrapH(g.handler))

	g.listener = NewListener(g.config.Gateway.Listener, tlsConfig, g.engine,
		WithListenerLogger(g.logger),
	)
	if err := g.listener.Start(ctx); err != nil {
		g.state.Store(int32(StateStopped))
		return err
	}

	g.startTime = time.Now()
	g.state.Store(int32(StateRunning))

	g.logger.Info("gateway started",
		observability.String("name", g.config.Gateway.Name),
		observability.String("address", g.listener.Addr()),
		observability.String("tls_mode", g.config.Gateway.TLS.EffectiveMode().String()),
		observability.Int("policies", g.chain.Len()),
	)

	return nil
}

// Stop drains the listener. The pipeline and its stores stay usable, so
// the gateway can be started again; Close releases them.
func (g *Gateway) Stop(ctx context.Context) error {
	if !g.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		return ErrNotRunning
	}

	g.logger.Info("stopping gateway",
		observability.String("name", g.config.Gateway.Name),
	)

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.config.Gateway.Listener.ShutdownTimeout.Duration())
		defer cancel()
	}

	uptime := g.Uptime()
	err := g.listener.Stop(ctx)

	g.state.Store(int32(StateStopped))

	g.logger.Info("gateway stopped",
		observability.String("name", g.config.Gateway.Name),
		observability.Duration("uptime", uptime),
	)

	return err
}

// Close stops the gateway if it is running and releases the rate limiter
// and an owned subscription store. A closed gateway cannot be restarted.
// Closing twice is a no-op.
func (g *Gateway) Close(ctx context.Context) error {
	var stopErr error
	if g.IsRunning() {
		if err := g.Stop(ctx); err != nil && !errors.Is(err, ErrNotRunning) {
			stopErr = err
		}
	}

	if !g.state.CompareAndSwap(int32(StateStopped), int32(StateClosed)) {
		if g.State() == StateClosed {
			return stopErr
		}
		return ErrNotStopped
	}

	g.closeResources()
	return stopErr
}

func (g *Gateway) closeResources() {
	if g.rateLimiter != nil {
		g.rateLimiter.Stop()
	}
	if g.ownsStore && g.store != nil {
		if err := g.store.Close(); err != nil {
			g.logger.Warn("failed to close subscription store", observability.Error(err))
		}
	}
}

// State returns the current gateway state.
func (g *Gateway) State() State {
	return State(g.state.Load())
}

// IsRunning returns true if the gateway is running.
func (g *Gateway) IsRunning() bool {
	return g.State() == StateRunning
}

// Uptime returns the gateway uptime.
func (g *Gateway) Uptime() time.Duration {
	if g.startTime.IsZero() {
		return 0
	}
	return time.Since(g.startTime)
}

// Addr returns the listener's bound address, or "" before Start.
func (g *Gateway) Addr() string {
	if g.listener == nil {
		return ""
	}
	return g.listener.Addr()
}

// Config returns the gateway configuration.
func (g *Gateway) Config() *config.GatewayConfig {
	return g.config
}

// Chain returns the security policy chain.
func (g *Gateway) Chain() *policy.Chain {
	return g.chain
}

// Store returns the subscription store in use.
func (g *Gateway) Store() subscription.Store {
	return g.store
}

// Handler returns the request pipeline without the listener.
func (g *Gateway) Handler() http.Handler {
	return g.handler
}
