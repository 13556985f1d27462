package security

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureServerCertificateGeneratesKeyPair(t *testing.T) {
	dir := t.TempDir()
	certFile := filepath.Join(dir, "server.crt")
	keyFile := filepath.Join(dir, "server.key")

	require.NoError(t, EnsureServerCertificate(certFile, keyFile, "cloud.example.com"))
	assert.True(t, CertExists(certFile, keyFile))

	// The generated pair loads as a TLS certificate.
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	require.NoError(t, err)

	parsed, err := x509.ParseCertificate(cert.Certificate[0])
	require.NoError(t, err)
	assert.Equal(t, "cloud.example.com", parsed.Subject.CommonName)
	assert.Contains(t, parsed.DNSNames, "localhost")
	assert.False(t, parsed.IsCA)
}

func TestEnsureServerCertificateKeepsExistingPair(t *testing.T) {
	dir := t.TempDir()
	certFile := filepath.Join(dir, "server.crt")
	keyFile := filepath.Join(dir, "server.key")

	require.NoError(t, EnsureServerCertificate(certFile, keyFile, "first"))
	before, err := os.ReadFile(certFile)
	require.NoError(t, err)

	require.NoError(t, EnsureServerCertificate(certFile, keyFile, "second"))
	after, err := os.ReadFile(certFile)
	require.NoError(t, err)

	assert.Equal(t, before, after)

	block, _ := pem.Decode(after)
	require.NotNil(t, block)
	parsed, err := x509.ParseCertificate(block.Bytes)
	require.NoError(t, err)
	assert.Equal(t, "first", parsed.Subject.CommonName)
}
