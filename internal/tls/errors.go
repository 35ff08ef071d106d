package tls

import (
	"errors"
	"fmt"
)

// Common sentinel errors for TLS operations.
var (
	// ErrConfigInvalid indicates that the TLS configuration is invalid.
	ErrConfigInvalid = errors.New("invalid TLS configuration")

	// ErrCertificateInvalid indicates that a certificate or key could not be loaded.
	ErrCertificateInvalid = errors.New("certificate invalid")

	// ErrCAInvalid indicates that a CA bundle contained no usable certificate.
	ErrCAInvalid = errors.New("CA certificate invalid")

	// ErrCipherSuiteInvalid indicates that a cipher suite is invalid.
	ErrCipherSuiteInvalid = errors.New("invalid cipher suite")
)

// ConfigurationError represents a TLS configuration error.
type ConfigurationError struct {
	Field   string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("TLS config error at %s: %s: %v", e.Field, e.Message, e.Cause)
	}
	return fmt.Sprintf("TLS config error at %s: %s", e.Field, e.Message)
}

// Unwrap returns the underlying error.
func (e *ConfigurationError) Unwrap() error {
	return e.Cause
}

// Is matches ErrConfigInvalid.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfigInvalid
}

// NewConfigurationError creates a new ConfigurationError.
func NewConfigurationError(field, message string) *ConfigurationError {
	return &ConfigurationError{Field: field, Message: message}
}

// NewConfigurationErrorWithCause creates a new ConfigurationError with a cause.
func NewConfigurationErrorWithCause(field, message string, cause error) *ConfigurationError {
	return &ConfigurationError{Field: field, Message: message, Cause: cause}
}
