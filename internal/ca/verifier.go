package ca

import (
	"context"
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/adamscao/certserver/internal/canonical"
	"github.com/adamscao/certserver/internal/digest"
	certerrors "github.com/adamscao/certserver/internal/errors"
	"github.com/adamscao/certserver/internal/models"
)

// Check names, in report order.
const (
	CheckCanonicalEncoding = "canonical-encoding"
	CheckDataDigest        = "data-digest"
	CheckSignatureDecode   = "signature-decode"
	CheckSignatureVerify   = "signature-verify"
	CheckContentIntegrity  = "content-integrity"
)

// Status is the outcome of one check.
type Status string

const (
	StatusPassed        Status = "passed"
	StatusFailed        Status = "failed"
	StatusNotApplicable Status = "not_applicable"
)

// CheckResult is one named step of a verification report.
type CheckResult struct {
	Name   string `json:"name"`
	Status Status `json:"status"`
	Detail string `json:"detail,omitempty"`
	Error  string `json:"error,omitempty"`
	Err    error  `json:"-"`
}

// Report is the ordered, immutable result of VerifyWithReport.
type Report struct {
	Checks []CheckResult `json:"checks"`
	Valid  bool          `json:"valid"`
}

// Check returns the result with the given name.
func (r Report) Check(name string) (CheckResult, bool) {
	for _, c := range r.Checks {
		if c.Name == name {
			return c, true
		}
	}
	return CheckResult{}, false
}

// Err returns the error of the first failed check, or nil.
func (r Report) Err() error {
	for _, c := range r.Checks {
		if c.Status == StatusFailed {
			return c.Err
		}
	}
	return nil
}

// ContentSource yields the artifact bytes covered by the content digest.
type ContentSource interface {
	ContentBytes() ([]byte, error)
}

// Evidence is everything a verifier inspects for one certificate.
// StoredDigest is empty when no artifact digest was embedded; Artifact is nil
// when no artifact is at hand.
type Evidence struct {
	Record       models.CertificateRecord
	Signature    string
	StoredDigest string
	Artifact     ContentSource
}

// Verifier checks signatures with a public key. It is safe for concurrent use.
type Verifier struct {
	public        *ecdsa.PublicKey
	fingerprint   string
	requireDigest bool
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithRequiredContentDigest makes a missing stored content digest fail the
// content-integrity check instead of marking it not applicable.
func WithRequiredContentDigest(required bool) VerifierOption {
	return func(v *Verifier) {
		v.requireDigest = required
	}
}

// NewVerifier creates a verifier from the public half of keys.
func NewVerifier(keys *KeyMaterial, opts ...VerifierOption) *Verifier {
	v := &Verifier{
		public:      keys.PublicKey(),
		fingerprint: keys.Fingerprint(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify reports whether signature is a valid signature of record under pub.
func Verify(pub *ecdsa.PublicKey, record models.CertificateRecord, signature string) bool {
	return VerifySignature(pub, record, signature) == nil
}

// VerifySignature is Verify with the failure kind: ErrKeyUnavailable,
// ErrEncoding, ErrSignatureDecode or ErrCryptoVerify.
func VerifySignature(pub *ecdsa.PublicKey, record models.CertificateRecord, signature string) error {
	if pub == nil {
		return fmt.Errorf("%w: no public key configured", certerrors.ErrKeyUnavailable)
	}
	data, err := canonical.Encode(record)
	if err != nil {
		return err
	}
	raw, err := DecodeSignature(signature)
	if err != nil {
		return err
	}
	return verifyRaw(pub, data, raw)
}

func verifyRaw(pub *ecdsa.PublicKey, data, raw []byte) error {
	der, err := rawToDER(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", certerrors.ErrSignatureDecode, err)
	}
	sum := sha256.Sum256(data)
	if !ecdsa.VerifyASN1(pub, sum[:], der) {
		return certerrors.ErrCryptoVerify
	}
	return nil
}

// VerifyWithReport runs every check in order. A failing check does not stop
// the later ones; checks that depend on a failed input fail with a detail
// naming the dependency. The verdict is signature-verify passed and
// content-integrity not failed.
func (v *Verifier) VerifyWithReport(ctx context.Context, ev Evidence) Report {
	checks := make([]CheckResult, 0, 5)

	// 1. Canonical encoding.
	data, encErr := canonical.Encode(ev.Record)
	if encErr != nil {
		checks = append(checks, failed(CheckCanonicalEncoding, "record cannot be canonically encoded", encErr))
	} else {
		checks = append(checks, passed(CheckCanonicalEncoding, string(data)))
	}

	// 2. Data digest. Distinct from the artifact digest checked in step 5.
	if encErr != nil {
		checks = append(checks, failed(CheckDataDigest, "depends on "+CheckCanonicalEncoding, encErr))
	} else {
		sum := sha256.Sum256(data)
		checks = append(checks, passed(CheckDataDigest, fmt.Sprintf("SHA-256: %s (base64 %s)",
			hex.EncodeToString(sum[:]), base64.StdEncoding.EncodeToString(sum[:]))))
	}

	// 3. Signature decode.
	raw, decErr := DecodeSignature(ev.Signature)
	if decErr != nil {
		checks = append(checks, failed(CheckSignatureDecode, "signature is not a base64 P-256 r||s value", decErr))
	} else {
		checks = append(checks, passed(CheckSignatureDecode, "Signature: "+Abbreviate(ev.Signature)))
	}

	// 4. Signature verify.
	checks = append(checks, v.checkSignature(ctx, data, encErr, raw, decErr))

	// 5. Content integrity.
	checks = append(checks, v.checkContent(ctx, ev))

	sig, _ := find(checks, CheckSignatureVerify)
	content, _ := find(checks, CheckContentIntegrity)
	return Report{
		Checks: checks,
		Valid:  sig.Status == StatusPassed && content.Status != StatusFailed,
	}
}

func (v *Verifier) checkSignature(ctx context.Context, data []byte, encErr error, raw []byte, decErr error) CheckResult {
	switch {
	case v.public == nil:
		return failed(CheckSignatureVerify, "no public key configured", certerrors.ErrKeyUnavailable)
	case encErr != nil:
		return failed(CheckSignatureVerify, "depends on "+CheckCanonicalEncoding, encErr)
	case decErr != nil:
		return failed(CheckSignatureVerify, "depends on "+CheckSignatureDecode, decErr)
	}
	if err := ctx.Err(); err != nil {
		return failed(CheckSignatureVerify, "verification cancelled", err)
	}
	if err := verifyRaw(v.public, data, raw); err != nil {
		return failed(CheckSignatureVerify, "signature does not match the certificate data", err)
	}
	return passed(CheckSignatureVerify, "Signature valid for public key "+v.fingerprint)
}

func (v *Verifier) checkContent(ctx context.Context, ev Evidence) CheckResult {
	if ev.StoredDigest == "" {
		if v.requireDigest {
			return failed(CheckContentIntegrity, "no content digest stored",
				fmt.Errorf("%w: no content digest stored", certerrors.ErrContentMismatch))
		}
		return CheckResult{Name: CheckContentIntegrity, Status: StatusNotApplicable, Detail: "no content digest stored"}
	}
	if ev.Artifact == nil {
		return failed(CheckContentIntegrity, "artifact content unavailable",
			fmt.Errorf("%w: artifact content unavailable", certerrors.ErrContentMismatch))
	}
	if err := ctx.Err(); err != nil {
		return failed(CheckContentIntegrity, "verification cancelled", err)
	}

	content, err := ev.Artifact.ContentBytes()
	if err != nil {
		if !errors.Is(err, certerrors.ErrContentMismatch) {
			err = fmt.Errorf("%w: %v", certerrors.ErrContentMismatch, err)
		}
		return failed(CheckContentIntegrity, ContentModifiedMessage, err)
	}
	if !digest.Matches(ev.StoredDigest, content) {
		return failed(CheckContentIntegrity, ContentModifiedMessage,
			fmt.Errorf("%w: stored %s, current %s", certerrors.ErrContentMismatch, ev.StoredDigest, digest.Content(content)))
	}
	return passed(CheckContentIntegrity, ContentUnchangedMessage)
}

// Messages used for the content-integrity check.
const (
	ContentUnchangedMessage = "PDF content is unchanged"
	ContentModifiedMessage  = "PDF has been modified"
)

// Abbreviate shortens a signature to its first and last eight characters.
func Abbreviate(signature string) string {
	if len(signature) <= 16 {
		return signature
	}
	return signature[:8] + "..." + signature[len(signature)-8:]
}

func passed(name, detail string) CheckResult {
	return CheckResult{Name: name, Status: StatusPassed, Detail: detail}
}

func failed(name, detail string, err error) CheckResult {
	res := CheckResult{Name: name, Status: StatusFailed, Detail: detail, Err: err}
	if err != nil {
		res.Error = err.Error()
	}
	return res
}

func find(checks []CheckResult, name string) (CheckResult, bool) {
	return Report{Checks: checks}.Check(name)
}
