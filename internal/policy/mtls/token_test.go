package mtls

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avapigw-mtls/internal/policy"
	"github.com/vyrodovalexey/avapigw-mtls/internal/testutil"
)

func TestDeriveToken_Deterministic(t *testing.T) {
	t.Parallel()

	first, err := DeriveToken(rawCert("a-certificate"), nil)
	require.NoError(t, err)
	second, err := DeriveToken(rawCert([]byte("a-certificate")), nil)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, policy.TokenTypeCertificate, first.Type)
	assert.Equal(t, MD5Hex([]byte("a-certificate")), first.Value)
	assert.Len(t, first.Value, 32)
}

func TestDeriveToken_DistinctEncodings(t *testing.T) {
	t.Parallel()

	a, err := DeriveToken(rawCert("a-certificate"), nil)
	require.NoError(t, err)
	b, err := DeriveToken(rawCert("b-certificate"), nil)
	require.NoError(t, err)

	assert.NotEqual(t, a.Value, b.Value)
}

func TestDeriveToken_X509(t *testing.T) {
	t.Parallel()

	pki := testutil.NewPKI(t)

	token, err := DeriveToken(policy.X509Certificate{Cert: pki.ClientCert}, nil)
	require.NoError(t, err)
	assert.Equal(t, MD5Hex(pki.ClientCert.Raw), token.Value)

	token, err = DeriveToken(policy.X509Certificate{Cert: pki.ClientCert}, SHA256Hex)
	require.NoError(t, err)
	assert.Equal(t, SHA256Hex(pki.ClientCert.Raw), token.Value)
}

func TestDeriveToken_EncodingFailed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		leaf policy.Certificate
	}{
		{name: "nil leaf", leaf: nil},
		{name: "encoder error", leaf: brokenCert{}},
		{name: "empty encoding", leaf: rawCert{}},
		{name: "x509 without raw bytes", leaf: policy.X509Certificate{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			token, err := DeriveToken(tt.leaf, nil)
			require.ErrorIs(t, err, policy.ErrCertificateEncoding)
			assert.True(t, token.IsZero())
		})
	}
}

func TestDigests(t *testing.T) {
	t.Parallel()

	// Known vectors for the empty input.
	assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", MD5Hex(nil))
	assert.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		SHA256Hex(nil),
	)
}
