package mtls

import (
	"errors"

	"github.com/vyrodovalexey/avapigw-mtls/internal/policy"
)

// fakeSession returns a fixed chain or error.
type fakeSession struct {
	chain []policy.Certificate
	err   error
}

func (s *fakeSession) PeerCertificates() ([]policy.Certificate, error) {
	return s.chain, s.err
}

// rawCert is a certificate with a fixed encoding.
type rawCert []byte

func (c rawCert) Encoded() ([]byte, error) { return c, nil }

// brokenCert cannot be encoded.
type brokenCert struct{}

func (brokenCert) Encoded() ([]byte, error) {
	return nil, errors.New("encoder unavailable")
}

func unverifiedSession() *fakeSession {
	return &fakeSession{err: policy.ErrPeerUnverified}
}
