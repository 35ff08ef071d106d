package mtls

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for the mTLS gate.
type Metrics struct {
	decisionsTotal   *prometheus.CounterVec
	decisionDuration *prometheus.HistogramVec
	tokenExtractions *prometheus.CounterVec
	registry         *prometheus.Registry
}

// NewMetrics creates a new Metrics instance.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "gateway"
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.decisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mtls",
			Name:      "decisions_total",
			Help:      "Total number of mTLS gate decisions",
		},
		[]string{"outcome", "failure_key"},
	)

	m.decisionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "mtls",
			Name:      "decision_duration_seconds",
			Help:      "mTLS gate decision duration in seconds",
			Buckets:   []float64{.00001, .00005, .0001, .0005, .001, .005, .01},
		},
		[]string{"outcome"},
	)

	m.tokenExtractions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mtls",
			Name:      "token_extractions_total",
			Help:      "Total number of certificate token extractions",
		},
		[]string{"result"},
	)

	m.registry.MustRegister(
		m.decisionsTotal,
		m.decisionDuration,
		m.tokenExtractions,
	)

	return m
}

// RecordDecision records a gate decision. failureKey is empty when the
// request continued.
func (m *Metrics) RecordDecision(outcome Outcome, failureKey string, duration time.Duration) {
	if failureKey == "" {
		failureKey = "none"
	}
	m.decisionsTotal.WithLabelValues(outcome.String(), failureKey).Inc()
	m.decisionDuration.WithLabelValues(outcome.String()).Observe(duration.Seconds())
}

// RecordTokenExtraction records a token extraction result.
func (m *Metrics) RecordTokenExtraction(result string) {
	m.tokenExtractions.WithLabelValues(result).Inc()
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Collectors returns the metric collectors so a host can register them
// on its own registry.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.decisionsTotal,
		m.decisionDuration,
		m.tokenExtractions,
	}
}
