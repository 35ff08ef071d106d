package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/vyrodovalexey/avapigw-mtls/internal/health"
	"github.com/vyrodovalexey/avapigw-mtls/internal/observability"
)

// metricsServer serves Prometheus metrics and the health probes.
type metricsServer struct {
	*http.Server
	addr string
}

// newMetricsHandler mounts the metrics endpoint and the probes.
func newMetricsHandler(
	path string,
	metrics *observability.Metrics,
	healthChecker *health.Checker,
) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(path, metrics.Handler())
	healthChecker.RegisterRoutes(mux)
	return mux
}

// startMetricsServerIfEnabled starts the metrics server if enabled.
func (a *application) startMetricsServerIfEnabled(ctx context.Context) error {
	cfg := a.config.Gateway.Observability.Metrics
	if !cfg.Enabled {
		return nil
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", cfg.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on metrics address %s: %w", cfg.Address, err)
	}

	a.metricsServer = &metricsServer{
		Server: &http.Server{
			Handler:           newMetricsHandler(cfg.Path, a.metrics, a.healthChecker),
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      10 * time.Second,
		},
		addr: ln.Addr().String(),
	}

	a.logger.Info("starting metrics server",
		observability.String("address", a.metricsServer.addr),
		observability.String("metrics_path", cfg.Path),
	)

	go func() {
		if err := a.metricsServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server error", observability.Error(err))
		}
	}()

	return nil
}
