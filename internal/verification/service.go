// Package verification checks uploaded certificate PDFs and stored
// certificate records against the issuer public key.
package verification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/adamscao/certserver/internal/artifact"
	"github.com/adamscao/certserver/internal/ca"
	"github.com/adamscao/certserver/internal/digest"
	certerrors "github.com/adamscao/certserver/internal/errors"
	"github.com/adamscao/certserver/internal/metadata"
	"github.com/adamscao/certserver/internal/models"
)

// Error messages reported in Details.Error.
const (
	MsgNoFile             = "No certificate file provided"
	MsgTooLarge           = "Certificate file is too large"
	MsgNotPDF             = "Certificate file is not a PDF document"
	MsgNoMetadata         = "No certificate metadata found"
	MsgInvalidMetadata    = "Invalid certificate metadata format"
	MsgUnsupportedVersion = "Unsupported certificate metadata version"
	MsgFailed             = "Verification failed"
)

// ContentIntegrity describes the artifact digest comparison.
type ContentIntegrity struct {
	IsValid          bool   `json:"isValid"`
	StoredHash       string `json:"storedHash,omitempty"`
	CurrentHash      string `json:"currentHash,omitempty"`
	OriginalSize     int    `json:"originalSize,omitempty"`
	StandardizedSize int    `json:"standardizedSize,omitempty"`
	Message          string `json:"message"`
}

// Details explains a verification verdict.
type Details struct {
	CertificateID    string                    `json:"certificateId,omitempty"`
	CertificateData  *models.CertificateRecord `json:"certificateData,omitempty"`
	VerificationDate time.Time                 `json:"verificationDate"`
	SignaturePresent bool                      `json:"signaturePresent"`
	Signature        string                    `json:"signature,omitempty"`
	ContentIntegrity *ContentIntegrity         `json:"contentIntegrity,omitempty"`
	Checks           []ca.CheckResult          `json:"checks,omitempty"`
	Error            string                    `json:"error,omitempty"`
}

// Response is the result of a verification request.
type Response struct {
	IsValid bool    `json:"isValid"`
	Details Details `json:"details"`
}

// Lookup finds stored certificates.
type Lookup interface {
	GetByRecipient(ctx context.Context, eventID, studentID string) (*models.IssuedCertificate, error)
}

// Service verifies certificates.
type Service struct {
	artifacts     *ca.Verifier
	records       *ca.Verifier
	lookup        Lookup
	maxBytes      int64
	requireDigest bool
	now           func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLookup enables VerifyStored.
func WithLookup(l Lookup) Option {
	return func(s *Service) {
		s.lookup = l
	}
}

// WithMaxArtifactBytes rejects uploads larger than n bytes. Zero disables the limit.
func WithMaxArtifactBytes(n int64) Option {
	return func(s *Service) {
		s.maxBytes = n
	}
}

// WithRequiredContentDigest fails artifacts sealed without a content digest.
func WithRequiredContentDigest(required bool) Option {
	return func(s *Service) {
		s.requireDigest = required
	}
}

// NewService creates a verification service for the public half of keys.
func NewService(keys *ca.KeyMaterial, opts ...Option) *Service {
	s := &Service{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	s.artifacts = ca.NewVerifier(keys, ca.WithRequiredContentDigest(s.requireDigest))
	s.records = ca.NewVerifier(keys)
	return s
}

// VerifyArtifact verifies an uploaded sealed PDF. It never fails: every
// problem is reported through IsValid and Details.Error.
func (s *Service) VerifyArtifact(ctx context.Context, pdf []byte) (resp Response) {
	log := zerolog.Ctx(ctx)
	resp.Details.VerificationDate = s.now().UTC()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("artifact verification panicked")
			resp = Response{Details: Details{VerificationDate: resp.Details.VerificationDate, Error: MsgFailed}}
		}
	}()

	switch {
	case len(pdf) == 0:
		return s.fail(resp, MsgNoFile)
	case s.maxBytes > 0 && int64(len(pdf)) > s.maxBytes:
		return s.fail(resp, MsgTooLarge)
	}

	doc, err := artifact.Open(pdf)
	if err != nil {
		log.Debug().Err(err).Msg("artifact rejected")
		if errors.Is(err, certerrors.ErrArtifactFormat) {
			return s.fail(resp, MsgNotPDF)
		}
		return s.fail(resp, MsgNoMetadata)
	}

	bundle, err := metadata.Deserialize(doc.Title)
	if err != nil {
		log.Debug().Err(err).Msg("metadata rejected")
		if errors.Is(err, certerrors.ErrUnsupportedVersion) {
			return s.fail(resp, MsgUnsupportedVersion)
		}
		return s.fail(resp, MsgInvalidMetadata)
	}

	content, err := contentSource(bundle.FormatVersion, doc)
	if err != nil {
		log.Debug().Err(err).Msg("metadata rejected")
		return s.fail(resp, MsgUnsupportedVersion)
	}

	report := s.artifacts.VerifyWithReport(ctx, ca.Evidence{
		Record:       bundle.Record,
		Signature:    bundle.Signature,
		StoredDigest: bundle.ContentDigest,
		Artifact:     content,
	})

	record := bundle.Record
	resp.IsValid = report.Valid
	resp.Details.CertificateData = &record
	resp.Details.SignaturePresent = bundle.Signature != ""
	resp.Details.Signature = ca.Abbreviate(bundle.Signature)
	resp.Details.Checks = report.Checks
	resp.Details.ContentIntegrity = contentIntegrity(report, bundle.ContentDigest, doc, len(pdf))
	if !report.Valid {
		resp.Details.Error = MsgFailed
	}

	log.Info().
		Bool("valid", report.Valid).
		Str("event_id", record.EventID).
		Str("student_id", record.StudentID).
		Msg("artifact verified")
	return resp
}

// VerifyStored verifies the stored signature of one student's certificate.
// There is no artifact, so content integrity is not applicable.
func (s *Service) VerifyStored(ctx context.Context, eventID, studentID string) (Response, error) {
	if s.lookup == nil {
		return Response{}, fmt.Errorf("%w: no certificate store configured", certerrors.ErrNotFound)
	}

	cert, err := s.lookup.GetByRecipient(ctx, eventID, studentID)
	if err != nil {
		return Response{}, err
	}

	report := s.records.VerifyWithReport(ctx, ca.Evidence{
		Record:    cert.Record,
		Signature: cert.Signature,
	})

	record := cert.Record
	resp := Response{
		IsValid: report.Valid,
		Details: Details{
			CertificateID:    cert.ID,
			CertificateData:  &record,
			VerificationDate: s.now().UTC(),
			SignaturePresent: cert.Signature != "",
			Signature:        ca.Abbreviate(cert.Signature),
			Checks:           report.Checks,
		},
	}
	if cert.ContentDigest != "" {
		resp.Details.ContentIntegrity = &ContentIntegrity{
			IsValid:    true,
			StoredHash: cert.ContentDigest,
			Message:    "Upload the PDF to check its content",
		}
	}
	if !report.Valid {
		resp.Details.Error = MsgFailed
	}
	return resp, nil
}

// Reject returns an invalid response carrying msg, for uploads rejected
// before verification started.
func (s *Service) Reject(msg string) Response {
	return Response{Details: Details{VerificationDate: s.now().UTC(), Error: msg}}
}

func (s *Service) fail(resp Response, msg string) Response {
	resp.IsValid = false
	resp.Details.Error = msg
	return resp
}

// contentSource returns the bytes the content digest of a version covers.
func contentSource(version string, doc *artifact.Document) (ca.ContentSource, error) {
	scheme, err := metadata.SchemeFor(version)
	if err != nil {
		return nil, err
	}
	switch scheme {
	case metadata.SchemeStrippedUpdate:
		// the rendered bytes before the sealed update section
		return doc, nil
	default:
		return nil, fmt.Errorf("%w: no content source for hash scheme %q", certerrors.ErrUnsupportedVersion, scheme)
	}
}

func contentIntegrity(report ca.Report, stored string, doc *artifact.Document, size int) *ContentIntegrity {
	check, _ := report.Check(ca.CheckContentIntegrity)
	ci := &ContentIntegrity{
		IsValid:      check.Status != ca.StatusFailed,
		StoredHash:   stored,
		OriginalSize: size,
		Message:      check.Detail,
	}
	if content, err := doc.ContentBytes(); err == nil {
		ci.CurrentHash = digest.Content(content)
		ci.StandardizedSize = len(content)
	}
	return ci
}
