// Package metadata encodes the certificate payload embedded in a sealed
// artifact: the record, its signature, the content digest and the format
// version.
package metadata

import (
	"encoding/json"
	"fmt"

	"github.com/cyberphone/json-canonicalization/go/src/webpki.org/jsoncanonicalizer"

	"github.com/adamscao/certserver/internal/digest"
	certerrors "github.com/adamscao/certserver/internal/errors"
	"github.com/adamscao/certserver/internal/models"
)

// Version is the format version written by Serialize.
const Version = "1.0"

// HashScheme names the byte range a content digest covers.
type HashScheme string

// SchemeStrippedUpdate hashes the rendered PDF bytes before the metadata
// update section was appended.
const SchemeStrippedUpdate HashScheme = "stripped-update"

var schemes = map[string]HashScheme{
	Version: SchemeStrippedUpdate,
}

// SchemeFor returns the content-hash scheme of a format version.
func SchemeFor(version string) (HashScheme, error) {
	s, ok := schemes[version]
	if !ok {
		return "", fmt.Errorf("%w: %q", certerrors.ErrUnsupportedVersion, version)
	}
	return s, nil
}

// Bundle is the embedded certificate metadata. ContentDigest is empty when
// the payload was built without an artifact.
type Bundle struct {
	Record        models.CertificateRecord `json:"data"`
	Signature     string                   `json:"signature"`
	ContentDigest string                   `json:"pdfHash,omitempty"`
	FormatVersion string                   `json:"version"`
}

// NewBundle builds a bundle with the current format version.
func NewBundle(record models.CertificateRecord, signature, contentDigest string) Bundle {
	return Bundle{
		Record:        record,
		Signature:     signature,
		ContentDigest: contentDigest,
		FormatVersion: Version,
	}
}

// Serialize renders b as RFC 8785 canonical JSON, so equal bundles always
// produce the same string.
func Serialize(b Bundle) (string, error) {
	if b.FormatVersion == "" {
		b.FormatVersion = Version
	}
	if _, err := SchemeFor(b.FormatVersion); err != nil {
		return "", err
	}
	// numbers pass through IEEE doubles during canonicalization
	if p := b.Record.PartValue(); p < 0 || p > models.MaxPart {
		return "", fmt.Errorf("%w: part %d outside 0..%d", certerrors.ErrEncoding, p, models.MaxPart)
	}
	if b.ContentDigest != "" {
		if err := digest.Validate(b.ContentDigest); err != nil {
			return "", fmt.Errorf("%w: %v", certerrors.ErrEncoding, err)
		}
	}

	raw, err := json.Marshal(b)
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata: %w", err)
	}
	canon, err := jsoncanonicalizer.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize metadata: %w", err)
	}
	return string(canon), nil
}

type wireBundle struct {
	Data      map[string]json.RawMessage `json:"data"`
	Signature *string                    `json:"signature"`
	PDFHash   *string                    `json:"pdfHash"`
	Version   *string                    `json:"version"`
}

var requiredRecordFields = []string{
	"name", "studentID", "course", "eventId", "eventDate", "certificateTemplate",
}

// Deserialize parses an embedded payload. Every failure wraps ErrParse; an
// unknown version wraps ErrUnsupportedVersion as well.
func Deserialize(s string) (Bundle, error) {
	var w wireBundle
	if err := json.Unmarshal([]byte(s), &w); err != nil {
		return Bundle{}, fmt.Errorf("%w: invalid certificate metadata format: %v", certerrors.ErrParse, err)
	}

	switch {
	case w.Data == nil:
		return Bundle{}, fmt.Errorf("%w: missing data", certerrors.ErrParse)
	case w.Signature == nil:
		return Bundle{}, fmt.Errorf("%w: missing signature", certerrors.ErrParse)
	case w.Version == nil:
		return Bundle{}, fmt.Errorf("%w: missing version", certerrors.ErrParse)
	}
	if _, err := SchemeFor(*w.Version); err != nil {
		return Bundle{}, err
	}

	for _, field := range requiredRecordFields {
		if _, ok := w.Data[field]; !ok {
			return Bundle{}, fmt.Errorf("%w: data is missing %q", certerrors.ErrParse, field)
		}
	}

	dataJSON, err := json.Marshal(w.Data)
	if err != nil {
		return Bundle{}, fmt.Errorf("%w: %v", certerrors.ErrParse, err)
	}
	var record models.CertificateRecord
	if err := json.Unmarshal(dataJSON, &record); err != nil {
		return Bundle{}, fmt.Errorf("%w: invalid data: %v", certerrors.ErrParse, err)
	}

	b := Bundle{
		Record:        record,
		Signature:     *w.Signature,
		FormatVersion: *w.Version,
	}
	if w.PDFHash != nil && *w.PDFHash != "" {
		if err := digest.Validate(*w.PDFHash); err != nil {
			return Bundle{}, err
		}
		b.ContentDigest = *w.PDFHash
	}
	return b, nil
}
