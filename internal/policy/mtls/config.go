package mtls

import (
	"errors"
	"fmt"

	"github.com/vyrodovalexey/avapigw-mtls/internal/policy"
)

// Digest names accepted by Config.Digest.
const (
	DigestMD5    = "md5"
	DigestSHA256 = "sha256"
)

// ErrInvalidConfig is returned for an invalid mTLS policy configuration.
var ErrInvalidConfig = errors.New("invalid mtls policy configuration")

// Config represents the mTLS policy configuration.
type Config struct {
	// Enabled registers the policy in the security chain.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// AllowUnverifiedPeer admits certificates the listener accepted without
	// building a chain to a trusted root (REQUEST listener mode).
	AllowUnverifiedPeer bool `yaml:"allowUnverifiedPeer,omitempty" json:"allowUnverifiedPeer,omitempty"`

	// Digest selects the token digest: md5 (default) or sha256.
	Digest string `yaml:"digest,omitempty" json:"digest,omitempty"`
}

// DefaultConfig returns an enabled policy with the MD5 token digest.
func DefaultConfig() *Config {
	return &Config{
		Enabled: true,
		Digest:  DigestMD5,
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c == nil || !c.Enabled {
		return nil
	}

	switch c.Digest {
	case "", DigestMD5, DigestSHA256:
		return nil
	default:
		return fmt.Errorf("%w: unsupported digest %q", ErrInvalidConfig, c.Digest)
	}
}

// SessionOptions returns the session adapter options implied by c.
func (c *Config) SessionOptions() policy.SessionOptions {
	if c == nil {
		return policy.SessionOptions{RequireVerifiedChain: true}
	}
	return policy.SessionOptions{RequireVerifiedChain: !c.AllowUnverifiedPeer}
}

func (c *Config) digestFunc() DigestFunc {
	if c != nil && c.Digest == DigestSHA256 {
		return SHA256Hex
	}
	return MD5Hex
}
