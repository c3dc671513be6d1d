// Package issuance signs certificate records, seals them into rendered PDFs
// and records what was issued.
package issuance

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/adamscao/certserver/internal/artifact"
	"github.com/adamscao/certserver/internal/batch"
	"github.com/adamscao/certserver/internal/ca"
	"github.com/adamscao/certserver/internal/digest"
	certerrors "github.com/adamscao/certserver/internal/errors"
	"github.com/adamscao/certserver/internal/metadata"
	"github.com/adamscao/certserver/internal/models"
	"github.com/adamscao/certserver/internal/policy"
)

// Store persists issued certificates.
type Store interface {
	Upsert(ctx context.Context, cert *models.IssuedCertificate) error
}

// Service issues certificates. The store is optional; without one nothing is
// recorded.
type Service struct {
	signer    ca.Signer
	validator *policy.Validator
	store     Store
	batchOpts batch.Options
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithStore records every signed certificate in s.
func WithStore(s Store) Option {
	return func(svc *Service) {
		svc.store = s
	}
}

// WithBatchLimits bounds bulk signing concurrency and the per-record timeout.
func WithBatchLimits(concurrency int, timeout time.Duration) Option {
	return func(svc *Service) {
		svc.batchOpts.Concurrency = concurrency
		svc.batchOpts.Timeout = timeout
	}
}

// NewService creates an issuance service.
func NewService(signer ca.Signer, validator *policy.Validator, opts ...Option) *Service {
	if validator == nil {
		validator = policy.NewValidator(nil)
	}
	svc := &Service{
		signer:    signer,
		validator: validator,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	svc.batchOpts.Validate = validator.ValidateRecord
	return svc
}

// Issued is a sealed certificate.
type Issued struct {
	Certificate *models.IssuedCertificate
	Artifact    []byte
}

// Sign validates and signs record, and stores the signed record.
func (s *Service) Sign(ctx context.Context, record models.CertificateRecord) (*models.IssuedCertificate, error) {
	if err := s.validator.ValidateRecord(record); err != nil {
		return nil, err
	}

	sig, err := s.signer.Sign(ctx, record)
	if err != nil {
		return nil, err
	}

	cert := &models.IssuedCertificate{
		Record:    record,
		Signature: sig,
		SignedAt:  s.now().UTC(),
	}
	if err := s.save(ctx, cert); err != nil {
		return nil, err
	}

	zerolog.Ctx(ctx).Info().
		Str("event_id", record.EventID).
		Str("student_id", record.StudentID).
		Str("signature", ca.Abbreviate(sig)).
		Msg("certificate signed")
	return cert, nil
}

// SignBatch signs one record per recipient. Only an invalid event context
// fails the whole batch; per-record failures, including store failures, are
// reported in the results.
func (s *Service) SignBatch(ctx context.Context, event models.EventContext, recipients []models.Recipient) (batch.Results, error) {
	if err := s.validator.ValidateEvent(event); err != nil {
		return nil, err
	}

	results := batch.SignAll(ctx, s.signer, event, recipients, s.batchOpts)

	signedAt := s.now().UTC()
	for i := range results {
		if !results[i].OK() {
			continue
		}
		cert := &models.IssuedCertificate{
			Record:    results[i].Record,
			Signature: results[i].Signature,
			SignedAt:  signedAt,
		}
		if err := s.save(ctx, cert); err != nil {
			results[i].Signature = ""
			results[i].Err = err
		}
	}
	return results, nil
}

// Issue signs record, seals the signature and the digest of rendered into the
// PDF, and checks that the sealed file hashes back to the same digest before
// storing it.
func (s *Service) Issue(ctx context.Context, record models.CertificateRecord, rendered []byte) (*Issued, error) {
	if err := s.validator.ValidateRecord(record); err != nil {
		return nil, err
	}
	// the sealed metadata carries millisecond precision only
	record.EventDate = record.EventDate.Truncate(time.Millisecond)

	sig, err := s.signer.Sign(ctx, record)
	if err != nil {
		return nil, err
	}

	contentDigest := digest.Content(rendered)
	bundle := metadata.NewBundle(record, sig, contentDigest)
	title, err := metadata.Serialize(bundle)
	if err != nil {
		return nil, err
	}

	sealed, err := artifact.Seal(rendered, title)
	if err != nil {
		return nil, err
	}
	if err := confirmSealed(sealed, record, contentDigest); err != nil {
		return nil, err
	}

	issuedAt := s.now().UTC()
	cert := &models.IssuedCertificate{
		Record:        record,
		Signature:     sig,
		ContentDigest: contentDigest,
		FormatVersion: bundle.FormatVersion,
		SignedAt:      issuedAt,
		IssuedAt:      &issuedAt,
	}
	if err := s.save(ctx, cert); err != nil {
		return nil, err
	}

	zerolog.Ctx(ctx).Info().
		Str("certificate_id", cert.ID).
		Str("event_id", record.EventID).
		Str("student_id", record.StudentID).
		Str("content_digest", contentDigest).
		Int("size", len(sealed)).
		Msg("certificate issued")
	return &Issued{Certificate: cert, Artifact: sealed}, nil
}

// confirmSealed reopens sealed and checks that it carries record and that
// its content still hashes to contentDigest.
func confirmSealed(sealed []byte, record models.CertificateRecord, contentDigest string) error {
	doc, err := artifact.Open(sealed)
	if err != nil {
		return fmt.Errorf("failed to reopen sealed artifact: %w", err)
	}
	bundle, err := metadata.Deserialize(doc.Title)
	if err != nil {
		return fmt.Errorf("failed to read back sealed metadata: %w", err)
	}
	if !bundle.Record.Equal(record) {
		return fmt.Errorf("%w: sealed record differs from the signed record", certerrors.ErrEncoding)
	}
	content, err := doc.ContentBytes()
	if err != nil {
		return err
	}
	if !digest.Matches(contentDigest, content) {
		return fmt.Errorf("%w: sealed artifact does not hash back to %s", certerrors.ErrContentMismatch, contentDigest)
	}
	return nil
}

func (s *Service) save(ctx context.Context, cert *models.IssuedCertificate) error {
	if s.store == nil {
		return nil
	}
	if err := s.store.Upsert(ctx, cert); err != nil {
		return fmt.Errorf("failed to store certificate: %w", err)
	}
	return nil
}
