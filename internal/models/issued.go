package models

import "time"

// IssuedCertificate is a signed record as kept in the certificate store.
// ContentDigest and IssuedAt are set once a sealed artifact was produced.
type IssuedCertificate struct {
	ID            string            `json:"id"`
	Record        CertificateRecord `json:"data"`
	Signature     string            `json:"signature"`
	ContentDigest string            `json:"pdfHash,omitempty"`
	FormatVersion string            `json:"version,omitempty"`
	SignedAt      time.Time         `json:"signed_at"`
	IssuedAt      *time.Time        `json:"issued_at,omitempty"`
}
