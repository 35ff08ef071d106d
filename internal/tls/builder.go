package tls

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"github.com/vyrodovalexey/avapigw-mtls/internal/observability"
)

// BuildServerConfig builds the listener configuration. It returns nil for
// INSECURE mode, meaning the listener serves plaintext.
func BuildServerConfig(cfg *Config, logger observability.Logger) (*tls.Config, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	mode := cfg.EffectiveMode()
	if mode == TLSModeInsecure {
		logger.Warn("TLS is disabled (INSECURE mode) - this should only be used in development")
		return nil, nil
	}

	cert, err := loadServerCertificate(cfg.ServerCertificate)
	if err != nil {
		return nil, err
	}

	cipherSuites, err := ParseCipherSuites(cfg.CipherSuites)
	if err != nil {
		return nil, err
	}

	minVersion := cfg.MinVersion
	if minVersion == "" {
		minVersion = TLSVersion12
	}
	maxVersion := cfg.MaxVersion
	if maxVersion == "" {
		maxVersion = TLSVersion13
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   minVersion.ToTLSVersion(), // #nosec G402 -- validated, TLS12 floor
		MaxVersion:   maxVersion.ToTLSVersion(),
		CipherSuites: cipherSuites,
		ClientAuth:   mode.ClientAuth(),
		NextProtos:   cfg.ALPN,
	}

	if mode.RequiresClientCA() {
		pool, err := loadClientCA(cfg.ClientValidation)
		if err != nil {
			return nil, err
		}
		tlsConfig.ClientCAs = pool
	}

	if mode == TLSModeRequest {
		logger.Warn("client certificates are requested but not verified (REQUEST mode)")
	}

	logger.Info("listener TLS configured",
		observability.String("mode", mode.String()),
		observability.String("minVersion", string(minVersion)),
		observability.String("maxVersion", string(maxVersion)),
	)

	return tlsConfig, nil
}

func loadServerCertificate(c *CertificateConfig) (tls.Certificate, error) {
	var (
		cert tls.Certificate
		err  error
	)
	if c.CertData != "" {
		cert, err = tls.X509KeyPair([]byte(c.CertData), []byte(c.KeyData))
	} else {
		cert, err = tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
	}
	if err != nil {
		return tls.Certificate{}, NewConfigurationErrorWithCause("serverCertificate",
			"failed to load server certificate", fmt.Errorf("%w: %w", ErrCertificateInvalid, err))
	}
	return cert, nil
}

func loadClientCA(c *ClientValidationConfig) (*x509.CertPool, error) {
	data := []byte(c.CAData)
	if c.CAFile != "" {
		fileData, err := os.ReadFile(c.CAFile)
		if err != nil {
			return nil, NewConfigurationErrorWithCause("clientValidation.caFile", "failed to read CA file", err)
		}
		data = fileData
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, NewConfigurationErrorWithCause("clientValidation", "no certificates found in CA bundle", ErrCAInvalid)
	}
	return pool, nil
}
