package middleware

import (
	"crypto/tls"
	"crypto/x509"
	"net/http"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vyrodovalexey/avapigw-mtls/internal/observability"
)

// countingHandler counts calls and answers 200 "ok".
type countingHandler struct {
	calls atomic.Int32
	last  atomic.Pointer[http.Request]
}

func (h *countingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.calls.Add(1)
	h.last.Store(r)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func verifiedState(cert *x509.Certificate) *tls.ConnectionState {
	return &tls.ConnectionState{
		HandshakeComplete: true,
		Version:           tls.VersionTLS13,
		PeerCertificates:  []*x509.Certificate{cert},
		VerifiedChains:    [][]*x509.Certificate{{cert}},
	}
}

func observedLogger(level zapcore.Level) (observability.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return observability.NewLoggerFromZap(zap.New(core)), logs
}
