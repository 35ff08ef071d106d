package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/vyrodovalexey/avapigw-mtls/internal/observability"
)

// Error response bodies.
const (
	errBadGateway     = `{"error":"bad gateway","message":"failed to proxy request"}`
	errGatewayTimeout = `{"error":"gateway timeout"}`
)

// ReverseProxy forwards requests to a single backend.
type ReverseProxy struct {
	target        *url.URL
	proxy         *httputil.ReverseProxy
	logger        observability.Logger
	transport     http.RoundTripper
	timeout       time.Duration
	flushInterval time.Duration
}

// ProxyOption is a functional option for configuring the proxy.
type ProxyOption func(*ReverseProxy)

// WithProxyLogger sets the logger for the proxy.
func WithProxyLogger(logger observability.Logger) ProxyOption {
	return func(p *ReverseProxy) {
		p.logger = logger
	}
}

// WithTransport sets the transport for the proxy.
func WithTransport(transport http.RoundTripper) ProxyOption {
	return func(p *ReverseProxy) {
		p.transport = transport
	}
}

// WithTimeout bounds each backend round trip. Zero disables the bound.
func WithTimeout(timeout time.Duration) ProxyOption {
	return func(p *ReverseProxy) {
		p.timeout = timeout
	}
}

// WithFlushInterval sets the flush interval for streaming responses.
func WithFlushInterval(interval time.Duration) ProxyOption {
	return func(p *ReverseProxy) {
		p.flushInterval = interval
	}
}

// NewReverseProxy creates a proxy to the absolute http or https URL
// target. The target's path is prefixed to every request path.
func NewReverseProxy(target string, opts ...ProxyOption) (*ReverseProxy, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTargetURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTargetURL, target)
	}

	p := &ReverseProxy{
		target:        u,
		logger:        observability.NopLogger(),
		flushInterval: -1, // Immediate flush
	}

	for _, opt := range opts {
		opt(p)
	}

	p.proxy = &httputil.ReverseProxy{
		Rewrite:       p.rewrite,
		Transport:     p.transport,
		FlushInterval: p.flushInterval,
		ErrorHandler:  p.errorHandler,
	}

	return p, nil
}

// Target returns the backend URL.
func (p *ReverseProxy) Target() *url.URL {
	return p.target
}

// ServeHTTP implements http.Handler.
func (p *ReverseProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if p.timeout > 0 {
		ctx, cancel := context.WithTimeout(r.Context(), p.timeout)
		defer cancel()
		r = r.WithContext(ctx)
	}

	p.proxy.ServeHTTP(w, r)
}

func (p *ReverseProxy) rewrite(pr *httputil.ProxyRequest) {
	pr.SetURL(p.target)
	pr.SetXForwarded()
	observability.InjectTraceContext(pr.In.Context(), pr.Out)
}

func (p *ReverseProxy) errorHandler(w http.ResponseWriter, r *http.Request, err error) {
	status, body := http.StatusBadGateway, errBadGateway
	if errors.Is(err, context.DeadlineExceeded) {
		status, body = http.StatusGatewayTimeout, errGatewayTimeout
	}

	p.logger.WithContext(r.Context()).Error("proxy error",
		observability.String("path", r.URL.Path),
		observability.String("method", r.Method),
		observability.String("target", p.target.Host),
		observability.Int("status", status),
		observability.Error(err),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}
