package gateway

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"

	"github.com/vyrodovalexey/avapigw-mtls/internal/config"
	"github.com/vyrodovalexey/avapigw-mtls/internal/observability"
)

// Listener serves the gateway handler on one address, over TLS when a
// TLS configuration is given and plaintext otherwise.
type Listener struct {
	config    config.ListenerConfig
	tlsConfig *tls.Config
	server    *http.Server
	handler   http.Handler
	logger    observability.Logger
	addr      atomic.Value
	running   atomic.Bool
	done      chan struct{}
}

// ListenerOption is a functional option for configuring a listener.
type ListenerOption func(*Listener)

// WithListenerLogger sets the logger for the listener.
func WithListenerLogger(logger observability.Logger) ListenerOption {
	return func(l *Listener) {
		l.logger = logger
	}
}

// NewListener creates a listener. A nil tlsConfig serves plaintext.
func NewListener(
	cfg config.ListenerConfig,
	tlsConfig *tls.Config,
	handler http.Handler,
	opts ...ListenerOption,
) *Listener {
	l := &Listener{
		config:    cfg,
		tlsConfig: tlsConfig,
		handler:   handler,
		logger:    observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Addr returns the bound address, which differs from the configured one
// when port 0 was requested. It is empty until Start succeeds.
func (l *Listener) Addr() string {
	v, _ := l.addr.Load().(string)
	return v
}

// IsTLS reports whether the listener terminates TLS.
func (l *Listener) IsTLS() bool {
	return l.tlsConfig != nil
}

// Start binds the address and serves in the background.
func (l *Listener) Start(ctx context.Context) error {
	if l.running.Load() {
		return fmt.Errorf("listener %s is already running", l.config.Address)
	}

	l.server = &http.Server{
		Handler:           l.handler,
		TLSConfig:         l.tlsConfig,
		ReadTimeout:       l.config.ReadTimeout.Duration(),
		ReadHeaderTimeout: l.config.ReadHeaderTimeout.Duration(),
		WriteTimeout:      l.config.WriteTimeout.Duration(),
		IdleTimeout:       l.config.IdleTimeout.Duration(),
		MaxHeaderBytes:    1 << 20, // 1MB
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", l.config.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", l.config.Address, err)
	}

	l.addr.Store(ln.Addr().String())
	l.done = make(chan struct{})
	l.running.Store(true)

	l.logger.Info("listener started",
		observability.String("address", l.Addr()),
		observability.Bool("tls", l.IsTLS()),
	)

	go l.serve(ln)

	return nil
}

func (l *Listener) serve(ln net.Listener) {
	defer close(l.done)

	var err error
	if l.tlsConfig != nil {
		// Certificates come from TLSConfig.
		err = l.server.ServeTLS(ln, "", "")
	} else {
		err = l.server.Serve(ln)
	}

	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		l.logger.Error("listener error",
			observability.String("address", l.Addr()),
			observability.Error(err),
		)
	}
	l.running.Store(false)
}

// Stop shuts the server down gracefully, closing it outright when ctx
// expires first.
func (l *Listener) Stop(ctx context.Context) error {
	if l.server == nil || !l.running.Load() {
		return nil
	}

	l.logger.Info("stopping listener",
		observability.String("address", l.Addr()),
	)

	if err := l.server.Shutdown(ctx); err != nil {
		if closeErr := l.server.Close(); closeErr != nil {
			return fmt.Errorf("failed to close listener: %w", closeErr)
		}
		return fmt.Errorf("failed to shutdown listener gracefully: %w", err)
	}
	<-l.done

	l.logger.Info("listener stopped",
		observability.String("address", l.Addr()),
	)

	return nil
}

// IsRunning returns true if the listener is serving.
func (l *Listener) IsRunning() bool {
	return l.running.Load()
}
