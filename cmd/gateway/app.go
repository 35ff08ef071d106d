package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/vyrodovalexey/avapigw-mtls/internal/config"
	"github.com/vyrodovalexey/avapigw-mtls/internal/gateway"
	"github.com/vyrodovalexey/avapigw-mtls/internal/health"
	"github.com/vyrodovalexey/avapigw-mtls/internal/observability"
	"github.com/vyrodovalexey/avapigw-mtls/internal/policy/apikey"
	"github.com/vyrodovalexey/avapigw-mtls/internal/policy/mtls"
	"github.com/vyrodovalexey/avapigw-mtls/internal/subscription"
	tlspkg "github.com/vyrodovalexey/avapigw-mtls/internal/tls"
)

const metricsNamespace = "gateway"

var errGatewayNotRunning = errors.New("gateway is not running")

// application holds all application components.
type application struct {
	config        *config.GatewayConfig
	logger        observability.Logger
	gateway       *gateway.Gateway
	healthChecker *health.Checker
	metrics       *observability.Metrics
	tracer        *observability.Tracer
	metricsServer *metricsServer
	watcher       *config.Watcher

	// memoryStore is set when subscriptions are served from the
	// configuration and can be hot-reloaded.
	memoryStore *subscription.MemoryStore
	redisStore  *subscription.RedisStore
}

// newApplication wires every component from cfg.
func newApplication(
	ctx context.Context,
	cfg *config.GatewayConfig,
	logger observability.Logger,
) (*application, error) {
	obs := cfg.Gateway.Observability

	tracer, err := observability.NewTracer(obs.Tracing.TracerConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}

	app := &application{
		config:        cfg,
		logger:        logger,
		tracer:        tracer,
		metrics:       observability.NewMetrics(metricsNamespace),
		healthChecker: health.NewChecker(version, logger),
	}

	tlsMetrics := tlspkg.NewMetrics(metricsNamespace)
	mtlsMetrics := mtls.NewMetrics(metricsNamespace)
	apikeyMetrics := apikey.NewMetrics(metricsNamespace)
	app.metrics.MustRegister(tlsMetrics.Collectors()...)
	app.metrics.MustRegister(mtlsMetrics.Collectors()...)
	app.metrics.MustRegister(apikeyMetrics.Collectors()...)
	app.metrics.MustRegister(app.healthChecker.Collectors()...)

	store, err := app.openStore(ctx)
	if err != nil {
		_ = tracer.Shutdown(ctx)
		return nil, err
	}

	gw, err := gateway.New(cfg,
		gateway.WithLogger(logger),
		gateway.WithMetrics(app.metrics),
		gateway.WithTLSMetrics(tlsMetrics),
		gateway.WithMTLSMetrics(mtlsMetrics),
		gateway.WithAPIKeyMetrics(apikeyMetrics),
		gateway.WithTracer(tracer),
		gateway.WithSubscriptionStore(store),
	)
	if err != nil {
		_ = store.Close()
		_ = tracer.Shutdown(ctx)
		return nil, fmt.Errorf("failed to create gateway: %w", err)
	}
	app.gateway = gw

	app.healthChecker.RegisterCheck("gateway", func(context.Context) error {
		if !gw.IsRunning() {
			return errGatewayNotRunning
		}
		return nil
	})
	if app.redisStore != nil {
		app.healthChecker.RegisterCheck("subscription_store", health.PingCheck(app.redisStore))
	}

	return app, nil
}

// openStore opens the configured subscription store.
func (a *application) openStore(ctx context.Context) (subscription.Store, error) {
	subs := a.config.Gateway.Subscriptions

	if subs.Store == config.StoreRedis {
		store, err := subscription.NewRedisStore(ctx, subs.Redis.StoreConfig(),
			subscription.WithRedisLogger(a.logger),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to connect subscription store: %w", err)
		}
		a.redisStore = store
		return store, nil
	}

	store, err := subscription.NewMemoryStore(subs.Static)
	if err != nil {
		return nil, fmt.Errorf("failed to load static subscriptions: %w", err)
	}
	a.memoryStore = store
	return store, nil
}

// start starts the gateway, the metrics server and the config watcher.
// An empty configPath disables the watcher.
func (a *application) start(ctx context.Context, configPath string) error {
	if err := a.gateway.Start(ctx); err != nil {
		return err
	}

	if err := a.startMetricsServerIfEnabled(ctx); err != nil {
		return err
	}

	if configPath != "" {
		a.watcher = a.startConfigWatcher(ctx, configPath)
	}

	return nil
}

// shutdown stops every component. Readiness fails first so load
// balancers stop routing while the listener drains.
func (a *application) shutdown(ctx context.Context) {
	a.healthChecker.SetDraining(true)

	if a.watcher != nil {
		_ = a.watcher.Stop()
	}

	if err := a.gateway.Close(ctx); err != nil {
		a.logger.Error("failed to stop gateway gracefully", observability.Error(err))
	}

	if a.metricsServer != nil {
		a.logger.Info("stopping metrics server")
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			a.logger.Error("failed to stop metrics server gracefully", observability.Error(err))
		}
	}

	if a.memoryStore != nil {
		_ = a.memoryStore.Close()
	}
	if a.redisStore != nil {
		if err := a.redisStore.Close(); err != nil {
			a.logger.Error("failed to close subscription store", observability.Error(err))
		}
	}

	if err := a.tracer.Shutdown(ctx); err != nil {
		a.logger.Error("failed to shutdown tracer", observability.Error(err))
	}

	a.logger.Info("gateway stopped")
}

// configWarnings returns operator warnings for risky but valid settings.
func configWarnings(cfg *config.GatewayConfig) []string {
	var warnings []string
	gw := cfg.Gateway

	mtlsEnabled := gw.Security.MTLS != nil && gw.Security.MTLS.Enabled
	mode := gw.TLS.EffectiveMode()

	if mtlsEnabled && mode == tlspkg.TLSModeInsecure {
		warnings = append(warnings,
			"mtls policy is enabled on a plaintext listener; every request will fail with SSL_SESSION_REQUIRED")
	}
	if mtlsEnabled && mode == tlspkg.TLSModeSimple {
		warnings = append(warnings,
			"mtls policy is enabled but the listener does not request client certificates")
	}
	if mtlsEnabled && gw.Security.MTLS.AllowUnverifiedPeer && mode != tlspkg.TLSModeRequest {
		warnings = append(warnings,
			"allowUnverifiedPeer has no effect unless the listener runs in REQUEST mode")
	}
	if !gw.Subscriptions.Enforce {
		warnings = append(warnings,
			"subscription enforcement is disabled; any authenticated caller reaches the backend")
	}

	return warnings
}
