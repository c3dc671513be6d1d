// Package errors defines the sentinel errors shared by the signing,
// verification and sealing packages. Callers branch on them with errors.Is.
//
// This package must not import any other internal package.
package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrKeyUnavailable indicates that the private or public key needed for
	// an operation is not configured.
	ErrKeyUnavailable = errors.New("key unavailable")

	// ErrEncoding indicates that a certificate record cannot be canonically
	// encoded.
	ErrEncoding = errors.New("canonical encoding failed")

	// ErrParse indicates missing or malformed embedded certificate metadata.
	ErrParse = errors.New("metadata parse failed")

	// ErrUnsupportedVersion indicates metadata carrying a format version this
	// build does not know. It always matches ErrParse as well.
	ErrUnsupportedVersion = fmt.Errorf("%w: unsupported format version", ErrParse)

	// ErrSignatureDecode indicates a signature that is not valid base64 or
	// has the wrong length for the curve.
	ErrSignatureDecode = errors.New("signature decode failed")

	// ErrCryptoVerify indicates a signature that is mathematically invalid
	// for the canonical record bytes.
	ErrCryptoVerify = errors.New("signature verification failed")

	// ErrContentMismatch indicates that the recomputed artifact digest differs
	// from the stored one, or that the artifact changed after sealing.
	ErrContentMismatch = errors.New("content digest mismatch")

	// ErrArtifactFormat indicates bytes that are not a PDF this package can
	// seal or open.
	ErrArtifactFormat = errors.New("unsupported artifact format")

	// ErrPolicyViolation indicates a record rejected by the issuance policy.
	ErrPolicyViolation = errors.New("policy violation")

	// ErrNotFound indicates a certificate that is not in the store.
	ErrNotFound = errors.New("certificate not found")
)

// Wrap adds context to err. It returns nil if err is nil.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf adds formatted context to err. It returns nil if err is nil.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Kind returns the short name of the first sentinel err matches, or
// "internal_error". It is used for machine-readable error codes.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrKeyUnavailable):
		return "key_unavailable"
	case errors.Is(err, ErrEncoding):
		return "encoding_error"
	case errors.Is(err, ErrUnsupportedVersion):
		return "unsupported_version"
	case errors.Is(err, ErrParse):
		return "parse_error"
	case errors.Is(err, ErrSignatureDecode):
		return "signature_decode_error"
	case errors.Is(err, ErrCryptoVerify):
		return "crypto_verify_failure"
	case errors.Is(err, ErrContentMismatch):
		return "content_mismatch"
	case errors.Is(err, ErrArtifactFormat):
		return "artifact_format_error"
	case errors.Is(err, ErrPolicyViolation):
		return "policy_violation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "internal_error"
	}
}
