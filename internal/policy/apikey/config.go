package apikey

import (
	"errors"
	"fmt"
	"time"
)

// Hash algorithm constants.
const (
	HashAlgSHA256    = "sha256"
	HashAlgSHA512    = "sha512"
	HashAlgBcrypt    = "bcrypt"
	HashAlgPlaintext = "plaintext"
)

// DefaultHeader is the header read when none is configured.
const DefaultHeader = "X-Api-Key"

// ErrInvalidConfig is returned for an invalid API-key policy configuration.
var ErrInvalidConfig = errors.New("invalid api key policy configuration")

// Config represents the API-key policy configuration.
type Config struct {
	// Enabled registers the policy in the security chain.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Header is the request header carrying the key.
	Header string `yaml:"header,omitempty" json:"header,omitempty"`

	// QueryParam, if set, is consulted when the header is absent.
	QueryParam string `yaml:"queryParam,omitempty" json:"queryParam,omitempty"`

	// HashAlgorithm is the algorithm keys are stored with.
	// Supported: sha256 (default), sha512, bcrypt, plaintext (dev only).
	HashAlgorithm string `yaml:"hashAlgorithm,omitempty" json:"hashAlgorithm,omitempty"`

	// Keys is the list of accepted keys.
	Keys []StaticKey `yaml:"keys,omitempty" json:"keys,omitempty"`
}

// StaticKey is a configured API key.
type StaticKey struct {
	// ID identifies the key; it becomes the security token value.
	ID string `yaml:"id" json:"id"`

	// Hash is the stored hash of the key, or the key itself for plaintext.
	Hash string `yaml:"hash" json:"hash"`

	// Disabled rejects the key without removing it.
	Disabled bool `yaml:"disabled,omitempty" json:"disabled,omitempty"`

	// ExpiresAt is when the key stops being accepted.
	ExpiresAt *time.Time `yaml:"expiresAt,omitempty" json:"expiresAt,omitempty"`
}

// Usable reports whether the key may be matched at now.
func (k *StaticKey) Usable(now time.Time) bool {
	if k.Disabled {
		return false
	}
	return k.ExpiresAt == nil || now.Before(*k.ExpiresAt)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c == nil || !c.Enabled {
		return nil
	}

	switch c.HashAlgorithm {
	case "", HashAlgSHA256, HashAlgSHA512, HashAlgBcrypt, HashAlgPlaintext:
	default:
		return fmt.Errorf("%w: invalid hash algorithm: %s", ErrInvalidConfig, c.HashAlgorithm)
	}

	if len(c.Keys) == 0 {
		return fmt.Errorf("%w: at least one key is required", ErrInvalidConfig)
	}

	seen := make(map[string]bool, len(c.Keys))
	for i, k := range c.Keys {
		if k.ID == "" {
			return fmt.Errorf("%w: keys[%d]: id is required", ErrInvalidConfig, i)
		}
		if k.Hash == "" {
			return fmt.Errorf("%w: keys[%d]: hash is required", ErrInvalidConfig, i)
		}
		if seen[k.ID] {
			return fmt.Errorf("%w: keys[%d]: duplicate id %q", ErrInvalidConfig, i, k.ID)
		}
		seen[k.ID] = true
	}

	return nil
}

// GetEffectiveHeader returns the configured header or DefaultHeader.
func (c *Config) GetEffectiveHeader() string {
	if c.Header == "" {
		return DefaultHeader
	}
	return c.Header
}

// GetEffectiveHashAlgorithm returns the configured algorithm or sha256.
func (c *Config) GetEffectiveHashAlgorithm() string {
	if c.HashAlgorithm == "" {
		return HashAlgSHA256
	}
	return c.HashAlgorithm
}
