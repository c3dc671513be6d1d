package keyutil

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func publicPEM(t *testing.T, pub *ecdsa.PublicKey) []byte {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(pub)
	require.NoError(t, err)
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
}

func TestGetFingerprint(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	fp, err := GetFingerprint(&key.PublicKey)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(fp, "SHA256:"))

	fromPEM, err := GetFingerprintPEM(publicPEM(t, &key.PublicKey))
	require.NoError(t, err)
	assert.Equal(t, fp, fromPEM)
}

func TestFingerprintMatches(t *testing.T) {
	a, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	b, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	same, err := FingerprintMatches(publicPEM(t, &a.PublicKey), publicPEM(t, &a.PublicKey))
	require.NoError(t, err)
	assert.True(t, same)

	same, err = FingerprintMatches(publicPEM(t, &a.PublicKey), publicPEM(t, &b.PublicKey))
	require.NoError(t, err)
	assert.False(t, same)

	_, err = FingerprintMatches([]byte("garbage"), publicPEM(t, &b.PublicKey))
	require.Error(t, err)
}
