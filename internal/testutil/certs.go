// Package testutil provides certificate fixtures for tests.
package testutil

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// PKI is a throwaway CA with one server and one client certificate.
type PKI struct {
	CACert    *x509.Certificate
	CAKey     *ecdsa.PrivateKey
	CACertPEM []byte

	ServerCert    *x509.Certificate
	ServerCertPEM []byte
	ServerKeyPEM  []byte

	ClientCert    *x509.Certificate
	ClientCertPEM []byte
	ClientKeyPEM  []byte
}

// NewPKI generates a CA and issues a localhost server certificate and a
// client certificate from it.
func NewPKI(t testing.TB) *PKI {
	t.Helper()

	caKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	caTemplate := &x509.Certificate{
		SerialNumber:          serial(t),
		Subject:               pkix.Name{CommonName: "Test Root CA", Organization: []string{"Test CA"}},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		MaxPathLen:            1,
	}
	caDER, err := x509.CreateCertificate(rand.Reader, caTemplate, caTemplate, &caKey.PublicKey, caKey)
	require.NoError(t, err)
	caCert, err := x509.ParseCertificate(caDER)
	require.NoError(t, err)

	p := &PKI{
		CACert:    caCert,
		CAKey:     caKey,
		CACertPEM: pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: caDER}),
	}

	p.ServerCert, p.ServerCertPEM, p.ServerKeyPEM = p.Issue(t, &x509.Certificate{
		Subject:     pkix.Name{CommonName: "localhost"},
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:    []string{"localhost"},
		IPAddresses: []net.IP{net.ParseIP("127.0.0.1"), net.ParseIP("::1")},
	})

	p.ClientCert, p.ClientCertPEM, p.ClientKeyPEM = p.Issue(t, &x509.Certificate{
		Subject:     pkix.Name{CommonName: "test-client", Organization: []string{"Test Client"}},
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	})

	return p
}

// Issue signs template with the CA and returns the parsed certificate with
// PEM encodings of the certificate and its new key.
func (p *PKI) Issue(t testing.TB, template *x509.Certificate) (*x509.Certificate, []byte, []byte) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template.SerialNumber = serial(t)
	if template.NotBefore.IsZero() {
		template.NotBefore = time.Now().Add(-time.Hour)
	}
	if template.NotAfter.IsZero() {
		template.NotAfter = time.Now().Add(24 * time.Hour)
	}
	template.KeyUsage |= x509.KeyUsageDigitalSignature

	der, err := x509.CreateCertificate(rand.Reader, template, p.CACert, &key.PublicKey, p.CAKey)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	return cert,
		pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
		pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
}

// SelfSignedClient returns a client key pair not issued by the CA.
func SelfSignedClient(t testing.TB) tls.Certificate {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: serial(t),
		Subject:      pkix.Name{CommonName: "intruder"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)

	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}
}

// ClientKeyPair returns the client certificate as a tls.Certificate.
func (p *PKI) ClientKeyPair(t testing.TB) tls.Certificate {
	t.Helper()

	pair, err := tls.X509KeyPair(p.ClientCertPEM, p.ClientKeyPEM)
	require.NoError(t, err)
	return pair
}

// ServerKeyPair returns the server certificate as a tls.Certificate.
func (p *PKI) ServerKeyPair(t testing.TB) tls.Certificate {
	t.Helper()

	pair, err := tls.X509KeyPair(p.ServerCertPEM, p.ServerKeyPEM)
	require.NoError(t, err)
	return pair
}

// CAPool returns a pool containing only the CA.
func (p *PKI) CAPool() *x509.CertPool {
	pool := x509.NewCertPool()
	pool.AddCert(p.CACert)
	return pool
}

// Files holds paths written by WriteFiles.
type Files struct {
	CAFile         string
	ServerCertFile string
	ServerKeyFile  string
}

// WriteFiles writes the CA and server material as PEM files under dir.
func (p *PKI) WriteFiles(t testing.TB, dir string) Files {
	t.Helper()

	f := Files{
		CAFile:         filepath.Join(dir, "ca.pem"),
		ServerCertFile: filepath.Join(dir, "server.pem"),
		ServerKeyFile:  filepath.Join(dir, "server-key.pem"),
	}
	require.NoError(t, os.WriteFile(f.CAFile, p.CACertPEM, 0o600))
	require.NoError(t, os.WriteFile(f.ServerCertFile, p.ServerCertPEM, 0o600))
	require.NoError(t, os.WriteFile(f.ServerKeyFile, p.ServerKeyPEM, 0o600))
	return f
}

func serial(t testing.TB) *big.Int {
	t.Helper()

	n, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	require.NoError(t, err)
	return n
}
