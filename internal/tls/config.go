package tls

import (
	"crypto/tls"
	"fmt"
)

// TLSMode represents the listener's TLS mode.
type TLSMode string

// TLS mode constants.
const (
	// TLSModeSimple enables TLS with server certificate only.
	TLSModeSimple TLSMode = "SIMPLE"

	// TLSModeMutual requires a verified client certificate.
	TLSModeMutual TLSMode = "MUTUAL"

	// TLSModeOptionalMutual verifies a client certificate if one is given.
	TLSModeOptionalMutual TLSMode = "OPTIONAL_MUTUAL"

	// TLSModeRequest asks for a client certificate without verifying it.
	TLSModeRequest TLSMode = "REQUEST"

	// TLSModeInsecure disables TLS (plaintext, development only).
	TLSModeInsecure TLSMode = "INSECURE"
)

// String returns the string representation of the TLS mode.
func (m TLSMode) String() string {
	return string(m)
}

// IsValid returns true if the TLS mode is valid.
func (m TLSMode) IsValid() bool {
	switch m {
	case TLSModeSimple, TLSModeMutual, TLSModeOptionalMutual, TLSModeRequest, TLSModeInsecure:
		return true
	default:
		return false
	}
}

// RequiresCertificate returns true if the mode terminates TLS.
func (m TLSMode) RequiresCertificate() bool {
	return m != TLSModeInsecure
}

// RequiresClientCA returns true if the mode verifies client certificates.
func (m TLSMode) RequiresClientCA() bool {
	return m == TLSModeMutual || m == TLSModeOptionalMutual
}

// ClientAuth maps the mode to the crypto/tls client auth policy.
func (m TLSMode) ClientAuth() tls.ClientAuthType {
	switch m {
	case TLSModeMutual:
		return tls.RequireAndVerifyClientCert
	case TLSModeOptionalMutual:
		return tls.VerifyClientCertIfGiven
	case TLSModeRequest:
		return tls.RequestClientCert
	default:
		return tls.NoClientCert
	}
}

// TLSVersion represents TLS protocol version.
type TLSVersion string

// TLS version constants.
const (
	TLSVersion12 TLSVersion = "TLS12"
	TLSVersion13 TLSVersion = "TLS13"
)

// IsValid returns true if the TLS version is valid.
func (v TLSVersion) IsValid() bool {
	return v == TLSVersion12 || v == TLSVersion13
}

// ToTLSVersion converts to crypto/tls version constant.
func (v TLSVersion) ToTLSVersion() uint16 {
	if v == TLSVersion13 {
		return tls.VersionTLS13
	}
	return tls.VersionTLS12
}

// Config represents the listener TLS configuration.
type Config struct {
	// Mode specifies the TLS mode (default: SIMPLE).
	Mode TLSMode `yaml:"mode,omitempty" json:"mode,omitempty"`

	// MinVersion is the minimum TLS version (default: TLS12).
	MinVersion TLSVersion `yaml:"minVersion,omitempty" json:"minVersion,omitempty"`

	// MaxVersion is the maximum TLS version (default: TLS13).
	MaxVersion TLSVersion `yaml:"maxVersion,omitempty" json:"maxVersion,omitempty"`

	// CipherSuites is the list of allowed TLS 1.2 cipher suites.
	CipherSuites []string `yaml:"cipherSuites,omitempty" json:"cipherSuites,omitempty"`

	// ServerCertificate configures the server certificate.
	ServerCertificate *CertificateConfig `yaml:"serverCertificate,omitempty" json:"serverCertificate,omitempty"`

	// ClientValidation configures the client CA.
	ClientValidation *ClientValidationConfig `yaml:"clientValidation,omitempty" json:"clientValidation,omitempty"`

	// ALPN protocols for negotiation.
	ALPN []string `yaml:"alpn,omitempty" json:"alpn,omitempty"`
}

// CertificateConfig configures a certificate from files or inline PEM.
type CertificateConfig struct {
	CertFile string `yaml:"certFile,omitempty" json:"certFile,omitempty"`
	KeyFile  string `yaml:"keyFile,omitempty" json:"keyFile,omitempty"`
	CertData string `yaml:"certData,omitempty" json:"certData,omitempty"`
	KeyData  string `yaml:"keyData,omitempty" json:"keyData,omitempty"`
}

// ClientValidationConfig configures client certificate verification.
type ClientValidationConfig struct {
	// CAFile is the path to the CA bundle (PEM).
	CAFile string `yaml:"caFile,omitempty" json:"caFile,omitempty"`

	// CAData is the PEM-encoded CA bundle (inline).
	CAData string `yaml:"caData,omitempty" json:"caData,omitempty"`
}

// DefaultConfig returns a Config with secure defaults.
func DefaultConfig() *Config {
	return &Config{
		Mode:       TLSModeSimple,
		MinVersion: TLSVersion12,
		MaxVersion: TLSVersion13,
		ALPN:       []string{"h2", "http/1.1"},
	}
}

// EffectiveMode returns the configured mode or SIMPLE.
func (c *Config) EffectiveMode() TLSMode {
	if c == nil || c.Mode == "" {
		return TLSModeSimple
	}
	return c.Mode
}

// Validate validates the TLS configuration.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}

	if c.Mode != "" && !c.Mode.IsValid() {
		return NewConfigurationError("mode", fmt.Sprintf("invalid TLS mode: %s", c.Mode))
	}
	if c.MinVersion != "" && !c.MinVersion.IsValid() {
		return NewConfigurationError("minVersion", fmt.Sprintf("invalid TLS version: %s", c.MinVersion))
	}
	if c.MaxVersion != "" && !c.MaxVersion.IsValid() {
		return NewConfigurationError("maxVersion", fmt.Sprintf("invalid TLS version: %s", c.MaxVersion))
	}
	if c.MinVersion != "" && c.MaxVersion != "" && c.MinVersion.ToTLSVersion() > c.MaxVersion.ToTLSVersion() {
		return NewConfigurationError("minVersion",
			fmt.Sprintf("minVersion (%s) cannot be greater than maxVersion (%s)", c.MinVersion, c.MaxVersion))
	}
	if _, err := ParseCipherSuites(c.CipherSuites); err != nil {
		return NewConfigurationErrorWithCause("cipherSuites", "invalid cipher suites", err)
	}

	mode := c.EffectiveMode()

	if mode.RequiresCertificate() {
		if err := c.ServerCertificate.validate(); err != nil {
			return err
		}
	}

	if mode.RequiresClientCA() {
		cv := c.ClientValidation
		if cv == nil || (cv.CAFile == "" && cv.CAData == "") {
			return NewConfigurationError("clientValidation", "client CA required for TLS mode "+string(mode))
		}
	}

	return nil
}

func (c *CertificateConfig) validate() error {
	if c == nil {
		return NewConfigurationError("serverCertificate", "server certificate required")
	}
	inline := c.CertData != "" || c.KeyData != ""
	switch {
	case inline && (c.CertData == "" || c.KeyData == ""):
		return NewConfigurationError("serverCertificate", "certData and keyData must both be set")
	case !inline && c.CertFile == "":
		return NewConfigurationError("serverCertificate.certFile", "certificate file path required")
	case !inline && c.KeyFile == "":
		return NewConfigurationError("serverCertificate.keyFile", "key file path required")
	}
	return nil
}
