package gateway

import (
	"fmt"
	"net/http"

	"github.com/vyrodovalexey/avapigw-mtls/internal/middleware"
	"github.com/vyrodovalexey/avapigw-mtls/internal/proxy"
)

// buildHandler assembles the middleware chain around the backend proxy.
// Stages run in the order listed.
func (g *Gateway) buildHandler() error {
	gw := g.config.Gateway

	backend, err := proxy.NewReverseProxy(gw.Backend.URL,
		proxy.WithProxyLogger(g.logger),
		proxy.WithTimeout(gw.Backend.Timeout.Duration()),
		proxy.WithTransport(g.transport),
	)
	if err != nil {
		return fmt.Errorf("failed to create backend proxy: %w", err)
	}

	rateLimit, limiter := middleware.RateLimitFromConfig(gw.RateLimit, g.logger, g.metrics)
	g.rateLimiter = limiter

	stages := []func(http.Handler) http.Handler{
		middleware.Recovery(g.logger),
		middleware.RequestID(),
		middleware.Tracing(g.tracer),
		middleware.Logging(g.logger),
		middleware.Metrics(g.metrics, g.tlsMetrics),
		middleware.Security(middleware.SecurityConfig{
			Chain:   g.chain,
			Session: g.session,
			Metrics: g.metrics,
			Logger:  g.logger,
		}),
		middleware.Subscriptions(middleware.SubscriptionConfig{
			API:     gw.Name,
			Store:   g.store,
			Chain:   g.chain,
			Enforce: gw.Subscriptions.Enforce,
			Metrics: g.metrics,
			Logger:  g.logger,
		}),
		rateLimit,
		middleware.CircuitBreakerFromConfig(backend.Target().Host, gw.Backend.CircuitBreaker, g.logger),
	}

	var h http.Handler = backend
	for i := len(stages) - 1; i >= 0; i-- {
		h = stages[i](h)
	}
	g.handler = h

	return nil
}
