package keyutil

import (
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"fmt"

	"golang.org/x/crypto/ssh"
)

// GetFingerprint calculates the SHA256 fingerprint of a public key in the
// OpenSSH form ("SHA256:" followed by unpadded base64).
func GetFingerprint(pub crypto.PublicKey) (string, error) {
	sshKey, err := ssh.NewPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("failed to convert public key: %w", err)
	}
	return ssh.FingerprintSHA256(sshKey), nil
}

// GetFingerprintPEM calculates the fingerprint of a PEM-encoded SPKI public key.
func GetFingerprintPEM(pemBytes []byte) (string, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return "", fmt.Errorf("no PEM block found")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return "", fmt.Errorf("failed to parse public key: %w", err)
	}
	return GetFingerprint(pub)
}

// FingerprintMatches checks if two PEM public keys have the same fingerprint
func FingerprintMatches(pem1, pem2 []byte) (bool, error) {
	fp1, err := GetFingerprintPEM(pem1)
	if err != nil {
		return false, err
	}

	fp2, err := GetFingerprintPEM(pem2)
	if err != nil {
		return false, err
	}

	return fp1 == fp2, nil
}
