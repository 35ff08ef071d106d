package apikey

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for API-key validation.
type Metrics struct {
	validationTotal    *prometheus.CounterVec
	validationDuration *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "gateway"
	}

	return &Metrics{
		validationTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "apikey",
				Name:      "validation_total",
				Help:      "Total number of API key validations",
			},
			[]string{"status", "reason"},
		),
		validationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "apikey",
				Name:      "validation_duration_seconds",
				Help:      "API key validation duration in seconds",
				Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .25, .5},
			},
			[]string{"status"},
		),
	}
}

// RecordValidation records a validation attempt.
func (m *Metrics) RecordValidation(status, reason string, duration time.Duration) {
	m.validationTotal.WithLabelValues(status, reason).Inc()
	m.validationDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// Collectors returns the metric collectors.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.validationTotal, m.validationDuration}
}
