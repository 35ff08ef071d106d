package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avapigw-mtls/internal/policy"
	"github.com/vyrodovalexey/avapigw-mtls/internal/policy/mtls"
	tlspkg "github.com/vyrodovalexey/avapigw-mtls/internal/tls"
)

const minimalConfigYAML = `
gateway:
  name: orders
  tls:
    mode: INSECURE
  backend:
    url: http://localhost:9000
`

const fullConfigYAML = `
gateway:
  name: orders
  listener:
    address: ":9443"
    readTimeout: 5s
  tls:
    mode: OPTIONAL_MUTUAL
    minVersion: TLS12
    serverCertificate:
      certFile: /etc/gateway/tls.crt
      keyFile: /etc/gateway/tls.key
    clientValidation:
      caFile: /etc/gateway/ca.crt
  backend:
    url: http://orders.internal:8080
    timeout: 2s
    circuitBreaker:
      enabled: true
  security:
    mtls:
      enabled: true
      digest: sha256
    apiKey:
      enabled: true
      hashAlgorithm: plaintext
      keys:
        - id: ci
          hash: secret
  subscriptions:
    enforce: true
    static:
      - id: sub-1
        api: orders
        tokenType: CERTIFICATE
        token: 0123456789abcdef0123456789abcdef
        status: ACCEPTED
        endAt: 2030-01-01T00:00:00Z
  rateLimit:
    enabled: true
    requestsPerSecond: 5
  observability:
    logging:
      level: debug
    tracing:
      enabled: true
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig_Minimal(t *testing.T) {
	t.Parallel()

	cfg, err := LoadConfig(writeConfig(t, minimalConfigYAML))
	require.NoError(t, err)

	g := cfg.Gateway
	assert.Equal(t, "orders", g.Name)
	assert.Equal(t, DefaultListenAddress, g.Listener.Address)
	assert.Equal(t, DefaultReadTimeout, g.Listener.ReadTimeout.Duration())
	assert.Equal(t, tlspkg.TLSModeInsecure, g.TLS.Mode)
	assert.Equal(t, DefaultBackendTimeout, g.Backend.Timeout.Duration())
	assert.Nil(t, g.Backend.CircuitBreaker)
	require.NotNil(t, g.Security.MTLS)
	assert.True(t, g.Security.MTLS.Enabled)
	assert.Equal(t, mtls.DigestMD5, g.Security.MTLS.Digest)
	assert.Equal(t, StoreMemory, g.Subscriptions.Store)
	assert.Equal(t, "info", g.Observability.Logging.Level)
	assert.Equal(t, DefaultMetricsPath, g.Observability.Metrics.Path)

	require.NoError(t, ValidateConfig(cfg))
}

func TestLoadConfig_Full(t *testing.T) {
	t.Parallel()

	cfg, err := LoadConfig(writeConfig(t, fullConfigYAML))
	require.NoError(t, err)

	g := cfg.Gateway
	assert.Equal(t, ":9443", g.Listener.Address)
	assert.Equal(t, 5*time.Second, g.Listener.ReadTimeout.Duration())
	assert.Equal(t, tlspkg.TLSModeOptionalMutual, g.TLS.Mode)
	assert.Equal(t, "/etc/gateway/ca.crt", g.TLS.ClientValidation.CAFile)

	require.NotNil(t, g.Backend.CircuitBreaker)
	assert.Equal(t, DefaultBreakerThreshold, g.Backend.CircuitBreaker.Threshold)
	assert.Equal(t, DefaultBreakerTimeout, g.Backend.CircuitBreaker.Timeout.Duration())
	assert.Equal(t, 2*time.Second, g.Backend.Timeout.Duration())

	assert.Equal(t, mtls.DigestSHA256, g.Security.MTLS.Digest)
	require.NotNil(t, g.Security.APIKey)
	require.Len(t, g.Security.APIKey.Keys, 1)
	assert.Equal(t, "ci", g.Security.APIKey.Keys[0].ID)

	require.Len(t, g.Subscriptions.Static, 1)
	sub := g.Subscriptions.Static[0]
	assert.Equal(t, policy.TokenTypeCertificate, sub.TokenType)
	require.NotNil(t, sub.EndAt)
	assert.Equal(t, 2030, sub.EndAt.Year())

	require.NotNil(t, g.RateLimit)
	assert.Equal(t, 5.0, g.RateLimit.RequestsPerSecond)
	assert.Equal(t, DefaultRateLimitBurst, g.RateLimit.Burst)

	assert.Equal(t, "debug", g.Observability.Logging.Level)
	assert.Equal(t, 1.0, g.Observability.Tracing.SamplingRate)

	require.NoError(t, ValidateConfig(cfg))
}

func TestLoadConfig_Errors(t *testing.T) {
	t.Parallel()

	_, err := LoadConfig("/nonexistent/path/gateway.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")

	_, err = LoadConfig(writeConfig(t, "gateway: [unterminated"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")

	_, err = LoadConfig(writeConfig(t, "gateway:\n  nmae: typo\n"))
	require.Error(t, err, "unknown fields are rejected")
}

func TestLoadConfigFromReader_Empty(t *testing.T) {
	t.Parallel()

	cfg, err := LoadConfigFromReader(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, DefaultName, cfg.Gateway.Name)
	assert.Error(t, ValidateConfig(cfg), "backend url is still required")
}

func TestLoadConfig_EnvSubstitution(t *testing.T) {
	t.Setenv("ORDERS_BACKEND", "http://orders.svc:8080")
	t.Setenv("ORDERS_EMPTY", "")

	cfg, err := LoadConfigFromReader(strings.NewReader(`
gateway:
  name: ${ORDERS_NAME:-orders}
  tls:
    mode: INSECURE
  backend:
    url: ${ORDERS_BACKEND}
  observability:
    logging:
      level: ${ORDERS_EMPTY:-warn}
`))
	require.NoError(t, err)
	assert.Equal(t, "orders", cfg.Gateway.Name)
	assert.Equal(t, "http://orders.svc:8080", cfg.Gateway.Backend.URL)
	// A set but empty variable wins over the default.
	assert.Equal(t, "info", cfg.Gateway.Observability.Logging.Level)
}

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("GW_TEST_HOST", "example.com")

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain", input: "host: ${GW_TEST_HOST}", want: "host: example.com"},
		{name: "default unused", input: "${GW_TEST_HOST:-other}", want: "example.com"},
		{name: "default used", input: "${GW_TEST_MISSING:-fallback}", want: "fallback"},
		{name: "missing without default", input: "[${GW_TEST_MISSING}]", want: "[]"},
		{name: "escaped dollar", input: "price: $${GW_TEST_HOST}", want: "price: ${GW_TEST_HOST}"},
		{name: "no pattern", input: "plain text", want: "plain text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, substituteEnvVars(tt.input))
		})
	}
}
