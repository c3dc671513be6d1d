package ca

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	certerrors "github.com/adamscao/certserver/internal/errors"
	"github.com/adamscao/certserver/pkg/keyutil"
)

// KeyMaterial holds the issuer key pair. The private half is optional:
// verify-only deployments carry just the public key. The private key is not
// exported and KeyMaterial formats as its public fingerprint only, so it
// cannot leak through logs or JSON.
type KeyMaterial struct {
	private     *ecdsa.PrivateKey
	public      *ecdsa.PublicKey
	fingerprint string
}

// NewKeyMaterial builds key material from a public key and an optional
// private key. Both must be P-256 and must belong together.
func NewKeyMaterial(priv *ecdsa.PrivateKey, pub *ecdsa.PublicKey) (*KeyMaterial, error) {
	if pub == nil && priv != nil {
		pub = &priv.PublicKey
	}
	if pub == nil {
		return nil, fmt.Errorf("%w: no public key configured", certerrors.ErrKeyUnavailable)
	}
	if pub.Curve != elliptic.P256() {
		return nil, fmt.Errorf("public key curve %s is not P-256", pub.Curve.Params().Name)
	}
	if priv != nil && !priv.PublicKey.Equal(pub) {
		return nil, errors.New("private key does not match public key")
	}

	fp, err := keyutil.GetFingerprint(pub)
	if err != nil {
		return nil, fmt.Errorf("failed to fingerprint public key: %w", err)
	}

	return &KeyMaterial{
		private:     priv,
		public:      pub,
		fingerprint: fp,
	}, nil
}

// LoadKeyMaterial loads PEM keys from disk. privatePath may be empty for a
// verify-only deployment; publicPath may be empty when the private key is
// given, in which case the public key is derived from it.
func LoadKeyMaterial(privatePath, publicPath string) (*KeyMaterial, error) {
	var priv *ecdsa.PrivateKey
	var pub *ecdsa.PublicKey

	if privatePath != "" {
		privateBytes, err := os.ReadFile(privatePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read private key: %w", err)
		}
		priv, err = ParsePrivateKeyPEM(privateBytes)
		if err != nil {
			return nil, err
		}
	}

	if publicPath != "" {
		publicBytes, err := os.ReadFile(publicPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read public key: %w", err)
		}
		pub, err = ParsePublicKeyPEM(publicBytes)
		if err != nil {
			return nil, err
		}
	}

	return NewKeyMaterial(priv, pub)
}

// ParsePrivateKeyPEM parses a P-256 private key in PKCS#8 ("PRIVATE KEY") or
// SEC 1 ("EC PRIVATE KEY") form.
func ParsePrivateKeyPEM(data []byte) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("failed to parse private key: no PEM block found")
	}

	switch block.Type {
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		ecKey, ok := key.(*ecdsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("private key is %T, not ECDSA", key)
		}
		return ecKey, nil
	case "EC PRIVATE KEY":
		key, err := x509.ParseECPrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		return key, nil
	default:
		return nil, fmt.Errorf("unsupported private key PEM type %q", block.Type)
	}
}

// ParsePublicKeyPEM parses an SPKI ("PUBLIC KEY") ECDSA public key.
func ParsePublicKeyPEM(data []byte) (*ecdsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("failed to parse public key: no PEM block found")
	}
	if block.Type != "PUBLIC KEY" {
		return nil, fmt.Errorf("unsupported public key PEM type %q", block.Type)
	}

	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	ecKey, ok := key.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is %T, not ECDSA", key)
	}
	return ecKey, nil
}

// CanSign reports whether a private key is configured.
func (k *KeyMaterial) CanSign() bool {
	return k != nil && k.private != nil
}

// PublicKey returns the public half.
func (k *KeyMaterial) PublicKey() *ecdsa.PublicKey {
	if k == nil {
		return nil
	}
	return k.public
}

// Fingerprint returns the SHA256 fingerprint of the public key.
func (k *KeyMaterial) Fingerprint() string {
	if k == nil {
		return ""
	}
	return k.fingerprint
}

// PublicKeyPEM returns the public key as PEM-encoded SPKI.
func (k *KeyMaterial) PublicKeyPEM() ([]byte, error) {
	if k == nil || k.public == nil {
		return nil, fmt.Errorf("%w: no public key configured", certerrors.ErrKeyUnavailable)
	}
	der, err := x509.MarshalPKIXPublicKey(k.public)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// String implements fmt.Stringer without exposing the private key.
func (k *KeyMaterial) String() string {
	if k == nil {
		return "KeyMaterial(<nil>)"
	}
	return fmt.Sprintf("KeyMaterial(%s, signing=%t)", k.fingerprint, k.CanSign())
}

// GoString keeps %#v from dumping the private scalar.
func (k *KeyMaterial) GoString() string {
	return k.String()
}

// MarshalText keeps encoders from dumping the private scalar.
func (k *KeyMaterial) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}
