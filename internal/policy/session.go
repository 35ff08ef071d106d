package policy

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
)

// Session errors.
var (
	// ErrPeerUnverified indicates the peer's identity was not established
	// during the handshake.
	ErrPeerUnverified = errors.New("peer not verified")

	// ErrCertificateEncoding indicates a certificate whose encoded form
	// cannot be produced.
	ErrCertificateEncoding = errors.New("certificate encoding failed")
)

// TLSSession exposes the peer certificate chain of a negotiated TLS
// connection.
type TLSSession interface {
	// PeerCertificates returns the chain leaf first. A nil or empty chain
	// means the peer presented nothing; an error matching
	// ErrPeerUnverified means the peer could not be verified.
	PeerCertificates() ([]Certificate, error)
}

// Certificate is a peer credential.
type Certificate interface {
	// Encoded returns the certificate's binary encoding.
	Encoded() ([]byte, error)
}

// SessionOptions tunes how a *tls.ConnectionState is exposed.
type SessionOptions struct {
	// RequireVerifiedChain reports peers that presented certificates the
	// listener did not verify as unverified.
	RequireVerifiedChain bool
}

// SessionFromConnectionState adapts cs to a TLSSession. It returns nil
// when cs is nil, i.e. the request arrived over plaintext.
func SessionFromConnectionState(cs *tls.ConnectionState, opts SessionOptions) TLSSession {
	if cs == nil {
		return nil
	}
	return &connectionSession{state: cs, opts: opts}
}

type connectionSession struct {
	state *tls.ConnectionState
	opts  SessionOptions
}

func (s *connectionSession) PeerCertificates() ([]Certificate, error) {
	if !s.state.HandshakeComplete {
		return nil, fmt.Errorf("%w: handshake not complete", ErrPeerUnverified)
	}

	peers := s.state.PeerCertificates
	if len(peers) == 0 {
		return nil, nil
	}

	// Listeners in RequestClientCert mode accept any certificate without
	// building a chain to a trusted root.
	if s.opts.RequireVerifiedChain && len(s.state.VerifiedChains) == 0 {
		return nil, fmt.Errorf("%w: no verified chain", ErrPeerUnverified)
	}

	certs := make([]Certificate, 0, len(peers))
	for _, c := range peers {
		certs = append(certs, X509Certificate{Cert: c})
	}
	return certs, nil
}

// X509Certificate adapts *x509.Certificate to Certificate.
type X509Certificate struct {
	Cert *x509.Certificate
}

// Encoded returns the DER bytes the certificate was parsed from.
func (c X509Certificate) Encoded() ([]byte, error) {
	if c.Cert == nil || len(c.Cert.Raw) == 0 {
		return nil, ErrCertificateEncoding
	}
	return c.Cert.Raw, nil
}
