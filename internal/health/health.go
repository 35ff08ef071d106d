package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vyrodovalexey/avapigw-mtls/internal/observability"
)

// DefaultCheckTimeout bounds a single probe run.
const DefaultCheckTimeout = 5 * time.Second

// Status represents the health status.
type Status string

const (
	// StatusHealthy indicates the service is healthy.
	StatusHealthy Status = "healthy"
	// StatusUnhealthy indicates the service is unhealthy.
	StatusUnhealthy Status = "unhealthy"
	// StatusDraining indicates the service is shutting down.
	StatusDraining Status = "draining"
)

// CheckFunc performs a single dependency check.
type CheckFunc func(ctx context.Context) error

// Pinger is implemented by dependencies that can be probed, such as the
// Redis subscription store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck adapts a Pinger to a CheckFunc.
func PingCheck(p Pinger) CheckFunc {
	return p.Ping
}

// CheckResult is the outcome of a single check.
type CheckResult struct {
	Status   Status `json:"status"`
	Error    string `json:"error,omitempty"`
	Duration string `json:"duration"`
}

// Response is the body of the health and readiness probes.
type Response struct {
	Status    Status                 `json:"status"`
	Version   string                 `json:"version,omitempty"`
	Uptime    string                 `json:"uptime,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Checker runs registered checks and serves the probes.
type Checker struct {
	version   string
	startTime time.Time
	timeout   time.Duration
	logger    observability.Logger
	draining  atomic.Bool

	mu     sync.RWMutex
	checks map[string]CheckFunc

	checksTotal *prometheus.CounterVec
	checkStatus *prometheus.GaugeVec
}

// Option configures a Checker.
type Option func(*Checker)

// WithTimeout overrides DefaultCheckTimeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Checker) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// NewChecker creates a health checker.
func NewChecker(version string, logger observability.Logger, opts ...Option) *Checker {
	if logger == nil {
		logger = observability.NopLogger()
	}
	c := &Checker{
		version:   version,
		startTime: time.Now(),
		timeout:   DefaultCheckTimeout,
		logger:    logger,
		checks:    make(map[string]CheckFunc),
		checksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gateway",
				Subsystem: "health",
				Name:      "checks_total",
				Help:      "Total number of health checks performed",
			},
			[]string{"check", "status"},
		),
		checkStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "gateway",
				Subsystem: "health",
				Name:      "check_status",
				Help:      "Current health check status (1=healthy, 0=unhealthy)",
			},
			[]string{"check"},
		),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Collectors returns the checker's Prometheus collectors.
func (c *Checker) Collectors() []prometheus.Collector {
	return []prometheus.Collector{c.checksTotal, c.checkStatus}
}

// RegisterCheck registers or replaces a named check.
func (c *Checker) RegisterCheck(name string, check CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// UnregisterCheck removes a named check.
func (c *Checker) UnregisterCheck(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.checks, name)
}

// SetDraining marks the gateway as shutting down. Readiness fails from
// then on while liveness keeps passing.
func (c *Checker) SetDraining(draining bool) {
	c.draining.Store(draining)
}

// IsDraining reports whether SetDraining(true) was called.
func (c *Checker) IsDraining() bool {
	return c.draining.Load()
}

// Run executes every registered check concurrently.
func (c *Checker) Run(ctx context.Context) Response {
	c.mu.RLock()
	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	checks := make([]CheckFunc, len(names))
	sort.Strings(names)
	for i, name := range names {
		checks[i] = c.checks[name]
	}
	c.mu.RUnlock()

	resp := Response{
		Status:    StatusHealthy,
		Checks:    make(map[string]CheckResult, len(names)),
		Timestamp: time.Now().UTC(),
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	results := make([]CheckResult, len(names))
	var wg sync.WaitGroup
	for i := range checks {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.runOne(ctx, names[i], checks[i])
		}(i)
	}
	wg.Wait()

	for i, name := range names {
		resp.Checks[name] = results[i]
		if results[i].Status != StatusHealthy {
			resp.Status = StatusUnhealthy
		}
	}

	return resp
}

func (c *Checker) runOne(ctx context.Context, name string, check CheckFunc) CheckResult {
	start := time.Now()
	err := check(ctx)
	duration := time.Since(start)

	result := CheckResult{Status: StatusHealthy, Duration: duration.String()}
	if err != nil {
		result.Status = StatusUnhealthy
		result.Error = err.Error()
		c.logger.Warn("health check failed",
			observability.String("check", name),
			observability.Error(err),
			observability.Duration("duration", duration),
		)
		c.checkStatus.WithLabelValues(name).Set(0)
	} else {
		c.checkStatus.WithLabelValues(name).Set(1)
	}
	c.checksTotal.WithLabelValues(name, string(result.Status)).Inc()

	return result
}

// Health runs all checks and adds version and uptime.
func (c *Checker) Health(ctx context.Context) Response {
	resp := c.Run(ctx)
	resp.Version = c.version
	resp.Uptime = time.Since(c.startTime).Round(time.Second).String()
	return resp
}

// Readiness runs all checks unless the gateway is draining.
func (c *Checker) Readiness(ctx context.Context) Response {
	if c.IsDraining() {
		return Response{Status: StatusDraining, Timestamp: time.Now().UTC()}
	}
	return c.Run(ctx)
}

// HealthHandler serves the detailed health probe.
func (c *Checker) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c.write(w, c.Health(r.Context()))
	}
}

// ReadinessHandler serves the readiness probe.
func (c *Checker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c.write(w, c.Readiness(r.Context()))
	}
}

// LivenessHandler serves the liveness probe.
func (c *Checker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
}

// RegisterRoutes mounts the probes on mux.
func (c *Checker) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("GET /health", c.HealthHandler())
	mux.Handle("GET /healthz", c.LivenessHandler())
	mux.Handle("GET /livez", c.LivenessHandler())
	mux.Handle("GET /readyz", c.ReadinessHandler())
	mux.Handle("GET /ready", c.ReadinessHandler())
}

func (c *Checker) write(w http.ResponseWriter, resp Response) {
	statusCode := http.StatusOK
	if resp.Status != StatusHealthy {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		c.logger.Error("failed to write health response", observability.Error(err))
	}
}
