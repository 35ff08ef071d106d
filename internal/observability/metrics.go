package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the gateway's request-level Prometheus metrics.
type Metrics struct {
	requestsTotal       *prometheus.CounterVec
	requestDuration     *prometheus.HistogramVec
	activeRequests      prometheus.Gauge
	policyInterrupts    *prometheus.CounterVec
	subscriptionRejects *prometheus.CounterVec
	rateLimited         prometheus.Counter
	registry            *prometheus.Registry
}

// NewMetrics creates the gateway metrics on a private registry that also
// carries the Go runtime and process collectors.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "gateway"
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "status"},
	)

	m.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "status"},
	)

	m.activeRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_requests",
			Help:      "Number of in-flight HTTP requests",
		},
	)

	m.policyInterrupts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "security",
			Name:      "interrupts_total",
			Help:      "Requests interrupted by a security policy",
		},
		[]string{"policy", "key"},
	)

	m.subscriptionRejects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "subscription",
			Name:      "rejections_total",
			Help:      "Requests rejected because no active subscription matched",
		},
		[]string{"policy"},
	)

	m.rateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the per-identity rate limiter",
		},
	)

	m.registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.activeRequests,
		m.policyInterrupts,
		m.subscriptionRejects,
		m.rateLimited,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// RecordRequest records a completed request.
func (m *Metrics) RecordRequest(method string, status int, duration time.Duration) {
	code := strconv.Itoa(status)
	m.requestsTotal.WithLabelValues(method, code).Inc()
	m.requestDuration.WithLabelValues(method, code).Observe(duration.Seconds())
}

// IncActive increments the in-flight gauge.
func (m *Metrics) IncActive() { m.activeRequests.Inc() }

// DecActive decrements the in-flight gauge.
func (m *Metrics) DecActive() { m.activeRequests.Dec() }

// RecordInterrupt records a policy interrupt.
func (m *Metrics) RecordInterrupt(policyID, key string) {
	m.policyInterrupts.WithLabelValues(policyID, key).Inc()
}

// RecordSubscriptionReject records a missing or inactive subscription.
func (m *Metrics) RecordSubscriptionReject(policyID string) {
	m.subscriptionRejects.WithLabelValues(policyID).Inc()
}

// RecordRateLimited records a rate-limited request.
func (m *Metrics) RecordRateLimited() {
	m.rateLimited.Inc()
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// MustRegister adds extra collectors, such as policy metrics, to the
// gateway registry.
func (m *Metrics) MustRegister(cs ...prometheus.Collector) {
	m.registry.MustRegister(cs...)
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		Registry: m.registry,
	})
}
