package tls

import (
	"crypto/tls"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for TLS requests.
type Metrics struct {
	requestsTotal *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with the given namespace.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "gateway"
	}

	return &Metrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "tls",
				Name:      "requests_total",
				Help:      "Total number of requests by TLS version and client certificate state",
			},
			[]string{"version", "client_cert"},
		),
	}
}

// Client certificate states used as metric labels.
const (
	clientCertNone       = "none"
	clientCertUnverified = "unverified"
	clientCertVerified   = "verified"
)

// RecordRequest records the TLS state of a request. A nil state is a
// plaintext request.
func (m *Metrics) RecordRequest(state *tls.ConnectionState) {
	if state == nil {
		m.requestsTotal.WithLabelValues("plaintext", clientCertNone).Inc()
		return
	}

	cert := clientCertNone
	switch {
	case len(state.VerifiedChains) > 0:
		cert = clientCertVerified
	case len(state.PeerCertificates) > 0:
		cert = clientCertUnverified
	}

	m.requestsTotal.WithLabelValues(tls.VersionName(state.Version), cert).Inc()
}

// Collectors returns the metric collectors.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.requestsTotal}
}
