package gateway

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avapigw-mtls/internal/config"
	"github.com/vyrodovalexey/avapigw-mtls/internal/middleware"
	"github.com/vyrodovalexey/avapigw-mtls/internal/observability"
	"github.com/vyrodovalexey/avapigw-mtls/internal/policy"
	"github.com/vyrodovalexey/avapigw-mtls/internal/policy/apikey"
	"github.com/vyrodovalexey/avapigw-mtls/internal/policy/mtls"
	"github.com/vyrodovalexey/avapigw-mtls/internal/subscription"
	"github.com/vyrodovalexey/avapigw-mtls/internal/testutil"
	tlspkg "github.com/vyrodovalexey/avapigw-mtls/internal/tls"
)

const headerSeenSubscription = "X-Seen-Subscription"

type backend struct {
	*httptest.Server
	calls  atomic.Int32
	status atomic.Int32
}

func newBackend(t *testing.T) *backend {
	t.Helper()

	b := &backend{}
	b.status.Store(http.StatusOK)
	b.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.calls.Add(1)
		w.Header().Set(headerSeenSubscription, r.Header.Get(middleware.HeaderSubscriptionID))
		w.WriteHeader(int(b.status.Load()))
		_, _ = io.WriteString(w, "backend ok")
	}))
	t.Cleanup(b.Close)
	return b
}

func baseConfig(backendURL string) *config.GatewayConfig {
	cfg := config.DefaultConfig()
	cfg.Gateway.Name = "orders"
	cfg.Gateway.Listener.Address = "127.0.0.1:0"
	cfg.Gateway.Backend.URL = backendURL
	return cfg
}

func tlsConfig(t *testing.T, pki *testutil.PKI, mode tlspkg.TLSMode) *tlspkg.Config {
	t.Helper()

	files := pki.WriteFiles(t, t.TempDir())
	return &tlspkg.Config{
		Mode: mode,
		ServerCertificate: &tlspkg.CertificateConfig{
			CertFile: files.ServerCertFile,
			KeyFile:  files.ServerKeyFile,
		},
		ClientValidation: &tlspkg.ClientValidationConfig{CAFile: files.CAFile},
	}
}

func startGateway(t *testing.T, cfg *config.GatewayConfig, opts ...Option) *Gateway {
	t.Helper()

	require.NoError(t, config.ValidateConfig(cfg))
	opts = append([]Option{WithLogger(observability.NopLogger())}, opts...)
	g, err := New(cfg, opts...)
	require.NoError(t, err)
	require.NoError(t, g.Start(context.Background()))
	t.Cleanup(func() { _ = g.Close(context.Background()) })
	return g
}

func tlsClient(pki *testutil.PKI, certs ...tls.Certificate) *http.Client {
	return &http.Client{
		Timeout: 5 * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				RootCAs:      pki.CAPool(),
				Certificates: certs,
				MinVersion:   tls.VersionTLS12,
			},
		},
	}
}

func staticSubscription(api string, token policy.SecurityToken) subscription.Subscription {
	return subscription.Subscription{
		ID:        "sub-" + string(token.Type),
		API:       api,
		TokenType: token.Type,
		Token:     token.Value,
		Status:    subscription.StatusAccepted,
	}
}

func get(t *testing.T, client *http.Client, url string) (*http.Response, string) {
	t.Helper()

	resp, err := client.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestState_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "stopped", StateStopped.String())
	assert.Equal(t, "starting", StateStarting.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "stopping", StateStopping.String())
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "unknown", State(42).String())
}

func TestNew_Errors(t *testing.T) {
	t.Parallel()

	_, err := New(nil)
	assert.ErrorIs(t, err, ErrNilConfig)

	cfg := baseConfig("http://localhost:9000")
	cfg.Gateway.Security.MTLS.Digest = "crc32"
	_, err = New(cfg)
	assert.ErrorIs(t, err, mtls.ErrInvalidConfig)

	cfg = baseConfig("http://localhost:9000")
	cfg.Gateway.Security.APIKey = &apikey.Config{Enabled: true}
	_, err = New(cfg)
	assert.ErrorIs(t, err, apikey.ErrInvalidConfig)

	cfg = baseConfig("not a url")
	_, err = New(cfg)
	assert.Error(t, err)

	cfg = baseConfig("http://localhost:9000")
	cfg.Gateway.Subscriptions.Static = []subscription.Subscription{{ID: "missing-fields"}}
	_, err = New(cfg)
	assert.ErrorIs(t, err, subscription.ErrInvalidSubscription)
}

func TestNew_BuildsChain(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		mutate      func(*config.GatewayConfig)
		wantIDs     []string
		wantSession policy.SessionOptions
	}{
		{
			name:        "default mtls",
			wantIDs:     []string{mtls.PolicyID},
			wantSession: policy.SessionOptions{RequireVerifiedChain: true},
		},
		{
			name: "unverified peers allowed",
			mutate: func(cfg *config.GatewayConfig) {
				cfg.Gateway.Security.MTLS.AllowUnverifiedPeer = true
			},
			wantIDs:     []string{mtls.PolicyID},
			wantSession: policy.SessionOptions{RequireVerifiedChain: false},
		},
		{
			name: "mtls and api key",
			mutate: func(cfg *config.GatewayConfig) {
				cfg.Gateway.Security.APIKey = &apikey.Config{
					Enabled:       true,
					HashAlgorithm: apikey.HashAlgPlaintext,
					Keys:          []apikey.StaticKey{{ID: "ci", Hash: "secret"}},
				}
			},
			wantIDs:     []string{mtls.PolicyID, apikey.PolicyID},
			wantSession: policy.SessionOptions{RequireVerifiedChain: true},
		},
		{
			name: "mtls disabled",
			mutate: func(cfg *config.GatewayConfig) {
				cfg.Gateway.Security.MTLS.Enabled = false
			},
			wantIDs:     []string{},
			wantSession: policy.SessionOptions{RequireVerifiedChain: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := baseConfig("http://localhost:9000")
			if tt.mutate != nil {
				tt.mutate(cfg)
			}

			g, err := New(cfg)
			require.NoError(t, err)

			ids := []string{}
			for _, p := range g.Chain().Policies() {
				ids = append(ids, p.Metadata().ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
			assert.Equal(t, tt.wantSession, g.session)
			assert.NotNil(t, g.Store())
			assert.NotNil(t, g.Handler())
		})
	}
}

func TestGateway_Lifecycle(t *testing.T) {
	t.Parallel()

	pki := testutil.NewPKI(t)
	token := policy.ForClientCertificate(mtls.MD5Hex(pki.ClientCert.Raw))

	b := newBackend(t)
	cfg := baseConfig(b.URL)
	cfg.Gateway.Subscriptions.Enforce = true
	cfg.Gateway.Subscriptions.Static = []subscription.Subscription{staticSubscription("orders", token)}
	cfg.Gateway.RateLimit = &config.RateLimitConfig{Enabled: true, RequestsPerSecond: 100, Burst: 100}
	config.ApplyDefaults(cfg)

	g, err := New(cfg, WithLogger(observability.NopLogger()))
	require.NoError(t, err)
	assert.Equal(t, StateStopped, g.State())
	assert.Empty(t, g.Addr())
	assert.Zero(t, g.Uptime())
	assert.Nil(t, g.engine)
	assert.Same(t, cfg, g.Config())

	serve := func() *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		g.Handler().ServeHTTP(rec, verifiedRequest(pki, "/"))
		return rec
	}

	assert.ErrorIs(t, g.Stop(context.Background()), ErrNotRunning)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Stop keeps the pipeline intact, so a restarted gateway still
	// resolves subscriptions.
	for round := 0; round < 2; round++ {
		require.NoError(t, g.Start(ctx), "round %d", round)
		assert.True(t, g.IsRunning())
		assert.NotEmpty(t, g.Addr())
		assert.NotNil(t, g.engine)
		assert.ErrorIs(t, g.Start(ctx), ErrNotStopped)

		rec := serve()
		assert.Equal(t, http.StatusOK, rec.Code, "round %d", round)
		assert.Equal(t, "backend ok", rec.Body.String())

		require.NoError(t, g.Stop(ctx))
		assert.Equal(t, StateStopped, g.State())
		assert.ErrorIs(t, g.Stop(ctx), ErrNotRunning)
	}

	require.NoError(t, g.Close(ctx))
	assert.Equal(t, StateClosed, g.State())
	assert.ErrorIs(t, g.Start(ctx), ErrClosed)
	require.NoError(t, g.Close(ctx))

	rec := serve()
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code, "closed store refuses lookups")
}

func TestGateway_CloseStopsRunningGateway(t *testing.T) {
	t.Parallel()

	b := newBackend(t)
	g, err := New(baseConfig(b.URL), WithLogger(observability.NopLogger()))
	require.NoError(t, err)
	require.NoError(t, g.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, g.Close(ctx))
	assert.Equal(t, StateClosed, g.State())
	assert.False(t, g.IsRunning())
}

func TestGateway_StartFailsOnBadTLS(t *testing.T) {
	t.Parallel()

	cfg := baseConfig("http://localhost:9000")
	cfg.Gateway.TLS = &tlspkg.Config{
		Mode: tlspkg.TLSModeSimple,
		ServerCertificate: &tlspkg.CertificateConfig{
			CertFile: "/nonexistent/cert.pem",
			KeyFile:  "/nonexistent/key.pem",
		},
	}

	g, err := New(cfg)
	require.NoError(t, err)
	assert.Error(t, g.Start(context.Background()))
	assert.Equal(t, StateStopped, g.State())
}

// Admission over a real TLS listener in OPTIONAL_MUTUAL mode.
func TestGateway_MTLSAdmission(t *testing.T) {
	t.Parallel()

	pki := testutil.NewPKI(t)
	certToken := policy.ForClientCertificate(mtls.MD5Hex(pki.ClientCert.Raw))

	tests := []struct {
		name           string
		certs          []tls.Certificate
		subscriptions  []subscription.Subscription
		wantStatus     int
		wantFailure    string
		wantBody       string
		wantSubscriber string
	}{
		{
			name:        "no client certificate",
			wantStatus:  http.StatusUnauthorized,
			wantFailure: string(mtls.FailureClientCertificateMissing),
			wantBody:    policy.FailureMessage,
		},
		{
			name:           "verified certificate with subscription",
			certs:          []tls.Certificate{pki.ClientKeyPair(t)},
			subscriptions:  []subscription.Subscription{staticSubscription("orders", certToken)},
			wantStatus:     http.StatusOK,
			wantBody:       "backend ok",
			wantSubscriber: "sub-CERTIFICATE",
		},
		{
			name:        "verified certificate without subscription",
			certs:       []tls.Certificate{pki.ClientKeyPair(t)},
			wantStatus:  http.StatusUnauthorized,
			wantFailure: string(subscription.FailurePlanUnresolvable),
			wantBody:    policy.FailureMessage,
		},
		{
			name:  "subscription on another api",
			certs: []tls.Certificate{pki.ClientKeyPair(t)},
			subscriptions: []subscription.Subscription{
				staticSubscription("invoices", certToken),
			},
			wantStatus:  http.StatusUnauthorized,
			wantFailure: string(subscription.FailurePlanUnresolvable),
			wantBody:    policy.FailureMessage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			b := newBackend(t)
			cfg := baseConfig(b.URL)
			cfg.Gateway.TLS = tlsConfig(t, pki, tlspkg.TLSModeOptionalMutual)
			cfg.Gateway.Subscriptions.Enforce = true
			cfg.Gateway.Subscriptions.Static = tt.subscriptions

			g := startGateway(t, cfg)
			resp, body := get(t, tlsClient(pki, tt.certs...), "https://"+g.Addr()+"/orders")

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, tt.wantBody, body)
			assert.Equal(t, tt.wantFailure, resp.Header.Get(middleware.HeaderFailureKey))
			assert.Equal(t, tt.wantSubscriber, resp.Header.Get(headerSeenSubscription))
			assert.NotEmpty(t, resp.Header.Get(middleware.HeaderXRequestID))
			if tt.wantStatus == http.StatusOK {
				assert.EqualValues(t, 1, b.calls.Load())
			} else {
				assert.Zero(t, b.calls.Load())
			}
		})
	}
}

func TestGateway_PlaintextListener(t *testing.T) {
	t.Parallel()

	b := newBackend(t)
	cfg := baseConfig(b.URL)

	g := startGateway(t, cfg)
	resp, body := get(t, &http.Client{Timeout: 5 * time.Second}, "http://"+g.Addr()+"/")

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, policy.FailureMessage, body)
	assert.Equal(t, string(mtls.FailureSSLSessionRequired), resp.Header.Get(middleware.HeaderFailureKey))
	assert.Zero(t, b.calls.Load())
}

func TestGateway_MutualRejectsUntrustedClient(t *testing.T) {
	t.Parallel()

	pki := testutil.NewPKI(t)
	b := newBackend(t)
	cfg := baseConfig(b.URL)
	cfg.Gateway.TLS = tlsConfig(t, pki, tlspkg.TLSModeMutual)

	g := startGateway(t, cfg)
	resp, err := tlsClient(pki, testutil.SelfSignedClient(t)).Get("https://" + g.Addr() + "/")
	if resp != nil {
		_ = resp.Body.Close()
	}
	assert.Error(t, err)
	assert.Zero(t, b.calls.Load())
}

func TestGateway_SubscriptionStoreOption(t *testing.T) {
	t.Parallel()

	pki := testutil.NewPKI(t)
	token := policy.ForClientCertificate(mtls.MD5Hex(pki.ClientCert.Raw))
	store, err := subscription.NewMemoryStore([]subscription.Subscription{staticSubscription("orders", token)})
	require.NoError(t, err)

	b := newBackend(t)
	cfg := baseConfig(b.URL)
	cfg.Gateway.TLS = tlsConfig(t, pki, tlspkg.TLSModeMutual)
	cfg.Gateway.Subscriptions.Enforce = true

	g := startGateway(t, cfg, WithSubscriptionStore(store))
	assert.Same(t, store, g.Store())

	resp, _ := get(t, tlsClient(pki, pki.ClientKeyPair(t)), "https://"+g.Addr()+"/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Replacing the store contents revokes access without a restart.
	require.NoError(t, store.Replace(nil))
	resp, _ = get(t, tlsClient(pki, pki.ClientKeyPair(t)), "https://"+g.Addr()+"/")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	require.NoError(t, g.Close(context.Background()))
	// Caller-owned stores stay open.
	assert.Equal(t, 0, store.Len())
	_, err = store.Find(context.Background(), "orders", token)
	assert.ErrorIs(t, err, subscription.ErrNotFound)
}

func verifiedRequest(pki *testutil.PKI, target string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.TLS = &tls.ConnectionState{
		Version:           tls.VersionTLS13,
		HandshakeComplete: true,
		PeerCertificates:  []*x509.Certificate{pki.ClientCert},
		VerifiedChains:    [][]*x509.Certificate{{pki.ClientCert, pki.CACert}},
	}
	return req
}

func TestGateway_RateLimit(t *testing.T) {
	t.Parallel()

	pki := testutil.NewPKI(t)
	b := newBackend(t)
	cfg := baseConfig(b.URL)
	cfg.Gateway.RateLimit = &config.RateLimitConfig{
		Enabled:           true,
		RequestsPerSecond: 0.01,
		Burst:             1,
	}
	config.ApplyDefaults(cfg)

	g, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Close(context.Background()) })

	rec := httptest.NewRecorder()
	g.Handler().ServeHTTP(rec, verifiedRequest(pki, "/"))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	g.Handler().ServeHTTP(rec, verifiedRequest(pki, "/"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.EqualValues(t, 1, b.calls.Load())
}

func TestGateway_CircuitBreaker(t *testing.T) {
	t.Parallel()

	pki := testutil.NewPKI(t)
	b := newBackend(t)
	b.status.Store(http.StatusInternalServerError)

	cfg := baseConfig(b.URL)
	cfg.Gateway.Backend.CircuitBreaker = &config.CircuitBreakerConfig{
		Enabled:          true,
		Threshold:        2,
		Timeout:          config.Duration(time.Minute),
		HalfOpenRequests: 1,
	}

	g, err := New(cfg)
	require.NoError(t, err)

	for range 2 {
		rec := httptest.NewRecorder()
		g.Handler().ServeHTTP(rec, verifiedRequest(pki, "/"))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	}

	rec := httptest.NewRecorder()
	g.Handler().ServeHTTP(rec, verifiedRequest(pki, "/"))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.EqualValues(t, 2, b.calls.Load())
}

func TestGateway_APIKeyOnly(t *testing.T) {
	t.Parallel()

	b := newBackend(t)
	cfg := baseConfig(b.URL)
	cfg.Gateway.Security.MTLS.Enabled = false
	cfg.Gateway.Security.APIKey = &apikey.Config{
		Enabled:       true,
		HashAlgorithm: apikey.HashAlgPlaintext,
		Keys:          []apikey.StaticKey{{ID: "ci", Hash: "secret"}},
	}
	cfg.Gateway.Subscriptions.Enforce = true
	cfg.Gateway.Subscriptions.Static = []subscription.Subscription{
		staticSubscription("orders", policy.ForAPIKey("ci")),
	}

	g, err := New(cfg)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	g.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, string(apikey.FailureAPIKeyMissing), rec.Header().Get(middleware.HeaderFailureKey))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(apikey.DefaultHeader, "secret")
	rec = httptest.NewRecorder()
	g.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "sub-API_KEY", rec.Header().Get(headerSeenSubscription))
}

func TestGateway_BackendUnavailable(t *testing.T) {
	t.Parallel()

	pki := testutil.NewPKI(t)
	b := newBackend(t)
	url := b.URL
	b.Close()

	g, err := New(baseConfig(url))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	g.Handler().ServeHTTP(rec, verifiedRequest(pki, "/"))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}
