package crt

import (
	"crypto/tls"
	"crypto/x509"
	"path/filepath"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelfSigned(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	cert, err := SelfSigned([]string{"localhost", "127.0.0.1"}, priv.PubKey(), &chaincfg.RegressionNetParams)
	require.NoError(t, err)
	require.NotNil(t, cert.Leaf)

	addr, err := IdentityAddress(priv.PubKey(), &chaincfg.RegressionNetParams)
	require.NoError(t, err)
	assert.Equal(t, []string{addr}, cert.Leaf.Subject.Organization)
	assert.Contains(t, addr, "bcrt1p")
	assert.Equal(t, []string{"localhost"}, cert.Leaf.DNSNames)
	require.Len(t, cert.Leaf.IPAddresses, 1)
	assert.NoError(t, cert.Leaf.VerifyHostname("127.0.0.1"))
}

func TestWriteAndLoad(t *testing.T) {
	cert, err := SelfSigned(nil, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, cert.Leaf.Subject.Organization)

	dir := t.TempDir()
	certPath := filepath.Join(dir, "server.crt")
	keyPath := filepath.Join(dir, "server.key")
	require.NoError(t, WritePEM(cert, certPath, keyPath))

	loaded, err := LoadOrGenerate(certPath, keyPath, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, cert.Certificate[0], loaded.Certificate[0])

	pool, err := LoadPool(certPath)
	require.NoError(t, err)
	_, err = cert.Leaf.Verify(x509VerifyOptions(pool))
	assert.NoError(t, err)

	_, err = LoadOrGenerate(certPath, filepath.Join(dir, "missing.key"), nil, nil, nil)
	assert.Error(t, err)
	assert.ErrorIs(t, WritePEM(tls.Certificate{}, certPath, keyPath), ErrNoCertificate)
}

func TestPool(t *testing.T) {
	cert, err := SelfSigned([]string{"signer-1"}, nil, nil)
	require.NoError(t, err)
	pool, err := Pool(cert)
	require.NoError(t, err)
	opts := x509VerifyOptions(pool)
	opts.DNSName = "signer-1"
	_, err = cert.Leaf.Verify(opts)
	assert.NoError(t, err)

	_, err = Pool(tls.Certificate{})
	assert.ErrorIs(t, err, ErrNoCertificate)
}

func x509VerifyOptions(pool *x509.CertPool) x509.VerifyOptions {
	return x509.VerifyOptions{Roots: pool, KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth}}
}
