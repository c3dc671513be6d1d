package policy

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/adamscao/certserver/internal/config"
	certerrors "github.com/adamscao/certserver/internal/errors"
	"github.com/adamscao/certserver/internal/models"
)

// MaxFieldLength is the longest accepted text field, in runes.
const MaxFieldLength = 256

// Validator checks certificate records before they are signed
type Validator struct {
	requireContentDigest bool
}

// NewValidator creates a new policy validator
func NewValidator(cfg *config.Config) *Validator {
	v := &Validator{}
	if cfg != nil {
		v.requireContentDigest = cfg.Verification.RequireContentDigest
	}
	return v
}

// ValidateRecord rejects records with missing or oversized fields
func (v *Validator) ValidateRecord(record models.CertificateRecord) error {
	fields := []struct {
		name  string
		value string
	}{
		{"name", record.Name},
		{"studentID", record.StudentID},
		{"course", record.Course},
		{"eventId", record.EventID},
		{"certificateTemplate", record.CertificateTemplate},
	}

	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return fmt.Errorf("%w: %s is required", certerrors.ErrPolicyViolation, f.name)
		}
		if n := utf8.RuneCountInString(f.value); n > MaxFieldLength {
			return fmt.Errorf("%w: %s is %d characters, limit is %d", certerrors.ErrPolicyViolation, f.name, n, MaxFieldLength)
		}
	}

	if record.Group != nil && utf8.RuneCountInString(*record.Group) > MaxFieldLength {
		return fmt.Errorf("%w: group exceeds %d characters", certerrors.ErrPolicyViolation, MaxFieldLength)
	}
	if record.Part != nil && (*record.Part < 0 || *record.Part > models.MaxPart) {
		return fmt.Errorf("%w: part must be between 0 and %d", certerrors.ErrPolicyViolation, models.MaxPart)
	}
	if record.EventDate.IsZero() {
		return fmt.Errorf("%w: eventDate is required", certerrors.ErrPolicyViolation)
	}

	return nil
}

// ValidateEvent checks the shared event context of a batch
func (v *Validator) ValidateEvent(event models.EventContext) error {
	probe := event.Record(models.Recipient{Name: "-", StudentID: "-", Course: "-"})
	return v.ValidateRecord(probe)
}

// RequireContentDigest reports whether verification must fail when no
// content digest was stored
func (v *Validator) RequireContentDigest() bool {
	return v.requireContentDigest
}
