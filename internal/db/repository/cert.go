package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	certerrors "github.com/adamscao/certserver/internal/errors"
	"github.com/adamscao/certserver/internal/models"
)

// CertRepository handles issued certificate data access
type CertRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewCertRepository creates a new certificate repository
func NewCertRepository(db *sql.DB) *CertRepository {
	return &CertRepository{db: db, now: time.Now}
}

const certColumns = `id, record_json, signature, content_digest, format_version, signed_at, issued_at`

// Upsert stores cert, replacing any earlier certificate for the same event
// and student. The row keeps its original ID; cert.ID is updated to it.
func (r *CertRepository) Upsert(ctx context.Context, cert *models.IssuedCertificate) error {
	recordJSON, err := json.Marshal(cert.Record)
	if err != nil {
		return fmt.Errorf("failed to marshal certificate record: %w", err)
	}

	if cert.ID == "" {
		cert.ID = uuid.NewString()
	}
	if cert.SignedAt.IsZero() {
		cert.SignedAt = r.now().UTC()
	}

	var issuedAt sql.NullTime
	if cert.IssuedAt != nil {
		issuedAt = sql.NullTime{Time: cert.IssuedAt.UTC(), Valid: true}
	}

	query := `
		INSERT INTO certificates (
			id, event_id, student_id, record_json, signature,
			content_digest, format_version, signed_at, issued_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (event_id, student_id) DO UPDATE SET
			record_json    = excluded.record_json,
			signature      = excluded.signature,
			content_digest = excluded.content_digest,
			format_version = excluded.format_version,
			signed_at      = excluded.signed_at,
			issued_at      = excluded.issued_at
		RETURNING id
	`

	var id string
	err = r.db.QueryRowContext(ctx, query,
		cert.ID,
		cert.Record.EventID,
		cert.Record.StudentID,
		string(recordJSON),
		cert.Signature,
		cert.ContentDigest,
		cert.FormatVersion,
		cert.SignedAt.UTC(),
		issuedAt,
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("failed to upsert certificate: %w", err)
	}

	cert.ID = id
	return nil
}

// GetByRecipient retrieves the certificate of one student for one event
func (r *CertRepository) GetByRecipient(ctx context.Context, eventID, studentID string) (*models.IssuedCertificate, error) {
	query := `SELECT ` + certColumns + `
		FROM certificates
		WHERE event_id = ? AND student_id = ?
	`

	cert, err := scanCert(r.db.QueryRowContext(ctx, query, eventID, studentID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: event %s, student %s", certerrors.ErrNotFound, eventID, studentID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get certificate: %w", err)
	}

	return cert, nil
}

// GetByID retrieves a certificate by its ID
func (r *CertRepository) GetByID(ctx context.Context, id string) (*models.IssuedCertificate, error) {
	query := `SELECT ` + certColumns + ` FROM certificates WHERE id = ?`

	cert, err := scanCert(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %s", certerrors.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get certificate: %w", err)
	}

	return cert, nil
}

// ListByEvent lists the certificates of an event ordered by student ID
func (r *CertRepository) ListByEvent(ctx context.Context, eventID string, limit int) ([]*models.IssuedCertificate, error) {
	if limit <= 0 {
		limit = -1
	}

	query := `SELECT ` + certColumns + `
		FROM certificates
		WHERE event_id = ?
		ORDER BY student_id ASC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, eventID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list certificates: %w", err)
	}
	defer rows.Close()

	var certs []*models.IssuedCertificate

	for rows.Next() {
		cert, err := scanCert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan certificate: %w", err)
		}

		certs = append(certs, cert)
	}

	return certs, rows.Err()
}

// CountByEvent returns the number of certificates stored for an event
func (r *CertRepository) CountByEvent(ctx context.Context, eventID string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM certificates
		WHERE event_id = ?
	`

	var count int
	err := r.db.QueryRowContext(ctx, query, eventID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get cert count: %w", err)
	}

	return count, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCert(s scanner) (*models.IssuedCertificate, error) {
	var (
		cert       models.IssuedCertificate
		recordJSON string
		issuedAt   sql.NullTime
	)

	err := s.Scan(
		&cert.ID,
		&recordJSON,
		&cert.Signature,
		&cert.ContentDigest,
		&cert.FormatVersion,
		&cert.SignedAt,
		&issuedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(recordJSON), &cert.Record); err != nil {
		return nil, fmt.Errorf("failed to decode stored record: %w", err)
	}
	if issuedAt.Valid {
		t := issuedAt.Time.UTC()
		cert.IssuedAt = &t
	}
	cert.SignedAt = cert.SignedAt.UTC()

	return &cert, nil
}
