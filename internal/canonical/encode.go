// Package canonical turns a certificate record into the exact bytes that are
// signed and hashed.
//
// The encoding is a compact JSON object with a fixed key order:
//
//	name, studentID, course, part, group, eventId, eventDate, certificateTemplate
//
// Strings follow the JSON.stringify escaping rule so that browser and Node
// verifiers derive identical bytes. An absent part encodes as 0 and an absent
// group as "", so absent and zero values are the same logical record.
package canonical

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	certerrors "github.com/adamscao/certserver/internal/errors"
	"github.com/adamscao/certserver/internal/models"
)

// Encode returns the canonical bytes of record.
func Encode(record models.CertificateRecord) ([]byte, error) {
	if record.EventDate.IsZero() {
		return nil, fmt.Errorf("%w: eventDate is not set", certerrors.ErrEncoding)
	}
	if y := record.EventDate.UTC().Year(); y < 0 || y > 9999 {
		return nil, fmt.Errorf("%w: eventDate year %d out of range", certerrors.ErrEncoding, y)
	}
	if p := record.PartValue(); p < 0 || p > models.MaxPart {
		return nil, fmt.Errorf("%w: part %d outside 0..%d", certerrors.ErrEncoding, p, models.MaxPart)
	}

	var b strings.Builder
	b.WriteByte('{')

	fields := []struct {
		key   string
		value string
		raw   bool
	}{
		{key: "name", value: record.Name},
		{key: "studentID", value: record.StudentID},
		{key: "course", value: record.Course},
		{key: "part", value: strconv.Itoa(record.PartValue()), raw: true},
		{key: "group", value: record.GroupValue()},
		{key: "eventId", value: record.EventID},
		{key: "eventDate", value: models.FormatEventDate(record.EventDate)},
		{key: "certificateTemplate", value: record.CertificateTemplate},
	}
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		writeString(&b, f.key)
		b.WriteByte(':')
		if f.raw {
			b.WriteString(f.value)
			continue
		}
		if !utf8.ValidString(f.value) {
			return nil, fmt.Errorf("%w: field %s is not valid UTF-8", certerrors.ErrEncoding, f.key)
		}
		writeString(&b, f.value)
	}

	b.WriteByte('}')
	return []byte(b.String()), nil
}

const hexDigits = "0123456789abcdef"

// writeString writes s as a JSON string literal. Only the quote, the
// backslash and control characters are escaped.
func writeString(b *strings.Builder, s string) {
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if c < 0x20 {
				b.WriteString(`\u00`)
				b.WriteByte(hexDigits[c>>4])
				b.WriteByte(hexDigits[c&0xf])
				continue
			}
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')
}
