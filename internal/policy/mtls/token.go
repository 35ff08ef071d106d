package mtls

import (
	"crypto/md5" //nolint:gosec // token digest, not a security boundary
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/vyrodovalexey/avapigw-mtls/internal/policy"
)

// DigestFunc maps a certificate encoding to a token value.
type DigestFunc func(encoded []byte) string

// MD5Hex returns the lowercase hex MD5 digest of encoded. It is the
// default token digest; provisioned subscriptions are keyed on it.
func MD5Hex(encoded []byte) string {
	sum := md5.Sum(encoded) //nolint:gosec // see import
	return hex.EncodeToString(sum[:])
}

// SHA256Hex returns the lowercase hex SHA-256 digest of encoded.
func SHA256Hex(encoded []byte) string {
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:])
}

// DeriveToken derives the CERTIFICATE token of leaf. A nil digest means
// MD5Hex. The returned error wraps policy.ErrCertificateEncoding.
func DeriveToken(leaf policy.Certificate, digest DigestFunc) (policy.SecurityToken, error) {
	if digest == nil {
		digest = MD5Hex
	}
	if leaf == nil {
		return policy.SecurityToken{}, fmt.Errorf("%w: no leaf certificate", policy.ErrCertificateEncoding)
	}

	encoded, err := leaf.Encoded()
	if err != nil {
		return policy.SecurityToken{}, fmt.Errorf("%w: %w", policy.ErrCertificateEncoding, err)
	}
	if len(encoded) == 0 {
		return policy.SecurityToken{}, fmt.Errorf("%w: empty encoding", policy.ErrCertificateEncoding)
	}

	return policy.ForClientCertificate(digest(encoded)), nil
}
