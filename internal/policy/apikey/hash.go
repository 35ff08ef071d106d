package apikey

import (
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// ErrKeyMismatch indicates the provided key does not match a stored hash.
var ErrKeyMismatch = errors.New("api key mismatch")

// HashKey hashes an API key with algorithm, producing the value to store
// in StaticKey.Hash.
func HashKey(key, algorithm string) (string, error) {
	switch algorithm {
	case HashAlgSHA256:
		hash := sha256.Sum256([]byte(key))
		return hex.EncodeToString(hash[:]), nil
	case HashAlgSHA512:
		hash := sha512.Sum512([]byte(key))
		return hex.EncodeToString(hash[:]), nil
	case HashAlgBcrypt:
		hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
		if err != nil {
			return "", err
		}
		return string(hash), nil
	case HashAlgPlaintext:
		return key, nil
	default:
		return "", fmt.Errorf("unsupported hash algorithm: %s", algorithm)
	}
}

// matcher compares a provided key against stored hashes. Digest-based
// algorithms hash the provided key once.
type matcher struct {
	algorithm string
	provided  []byte
	digest    []byte
}

func newMatcher(algorithm, provided string) *matcher {
	m := &matcher{algorithm: algorithm, provided: []byte(provided)}
	switch algorithm {
	case HashAlgSHA256:
		sum := sha256.Sum256(m.provided)
		m.digest = []byte(hex.EncodeToString(sum[:]))
	case HashAlgSHA512:
		sum := sha512.Sum512(m.provided)
		m.digest = []byte(hex.EncodeToString(sum[:]))
	}
	return m
}

func (m *matcher) match(stored string) error {
	switch m.algorithm {
	case HashAlgSHA256, HashAlgSHA512:
		if subtle.ConstantTimeCompare(m.digest, []byte(stored)) != 1 {
			return ErrKeyMismatch
		}
		return nil
	case HashAlgBcrypt:
		if err := bcrypt.CompareHashAndPassword([]byte(stored), m.provided); err != nil {
			return ErrKeyMismatch
		}
		return nil
	case HashAlgPlaintext:
		if subtle.ConstantTimeCompare(m.provided, []byte(stored)) != 1 {
			return ErrKeyMismatch
		}
		return nil
	default:
		return fmt.Errorf("unsupported hash algorithm: %s", m.algorithm)
	}
}
