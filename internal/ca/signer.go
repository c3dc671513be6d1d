package ca

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"math/big"

	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"

	"github.com/adamscao/certserver/internal/canonical"
	certerrors "github.com/adamscao/certserver/internal/errors"
	"github.com/adamscao/certserver/internal/models"
)

// scalarSize is the byte length of r and s on P-256.
const scalarSize = 32

// SignatureSize is the length of a raw r||s signature.
const SignatureSize = 2 * scalarSize

// Signer produces base64 raw r||s signatures over canonical record bytes.
type Signer interface {
	Sign(ctx context.Context, record models.CertificateRecord) (string, error)
}

// LocalSigner signs with an in-process private key.
type LocalSigner struct {
	keys *KeyMaterial
	rand io.Reader
}

// NewLocalSigner creates a signer backed by keys. Signing fails with
// ErrKeyUnavailable when keys carry no private half.
func NewLocalSigner(keys *KeyMaterial) *LocalSigner {
	return &LocalSigner{
		keys: keys,
		rand: rand.Reader,
	}
}

// Sign signs the canonical encoding of record.
func (s *LocalSigner) Sign(ctx context.Context, record models.CertificateRecord) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !s.keys.CanSign() {
		return "", fmt.Errorf("%w: no private key configured", certerrors.ErrKeyUnavailable)
	}
	return signRecord(s.rand, s.keys.private, record)
}

// SignRecord signs record with priv and returns the base64 raw r||s signature.
func SignRecord(priv *ecdsa.PrivateKey, record models.CertificateRecord) (string, error) {
	if priv == nil {
		return "", fmt.Errorf("%w: no private key configured", certerrors.ErrKeyUnavailable)
	}
	return signRecord(rand.Reader, priv, record)
}

func signRecord(rnd io.Reader, priv *ecdsa.PrivateKey, record models.CertificateRecord) (string, error) {
	data, err := canonical.Encode(record)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(data)
	der, err := ecdsa.SignASN1(rnd, priv, sum[:])
	if err != nil {
		return "", fmt.Errorf("failed to sign record: %w", err)
	}

	raw, err := derToRaw(der)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodeSignature decodes a base64 raw r||s signature.
func DecodeSignature(signature string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", certerrors.ErrSignatureDecode, err)
	}
	if len(raw) != SignatureSize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", certerrors.ErrSignatureDecode, len(raw), SignatureSize)
	}
	return raw, nil
}

// derToRaw converts an ASN.1 ECDSA signature into fixed-width r||s.
func derToRaw(der []byte) ([]byte, error) {
	var r, s big.Int
	var inner cryptobyte.String
	input := cryptobyte.String(der)
	if !input.ReadASN1(&inner, asn1.SEQUENCE) || !input.Empty() ||
		!inner.ReadASN1Integer(&r) || !inner.ReadASN1Integer(&s) || !inner.Empty() {
		return nil, fmt.Errorf("malformed ASN.1 signature")
	}
	if r.BitLen() > 8*scalarSize || s.BitLen() > 8*scalarSize {
		return nil, fmt.Errorf("signature scalar exceeds curve size")
	}

	raw := make([]byte, SignatureSize)
	r.FillBytes(raw[:scalarSize])
	s.FillBytes(raw[scalarSize:])
	return raw, nil
}

// rawToDER converts fixed-width r||s into an ASN.1 ECDSA signature.
func rawToDER(raw []byte) ([]byte, error) {
	r := new(big.Int).SetBytes(raw[:scalarSize])
	s := new(big.Int).SetBytes(raw[scalarSize:])

	var b cryptobyte.Builder
	b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1BigInt(r)
		b.AddASN1BigInt(s)
	})
	return b.Bytes()
}
