package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// ISO8601Millis is the event date layout shared by the wire format and the
// canonical encoding: UTC, millisecond precision, literal Z.
const ISO8601Millis = "2006-01-02T15:04:05.000Z"

// CertificateRecord holds the attested facts of one certificate.
// Part and Group are optional; nil means absent.
type CertificateRecord struct {
	Name                string
	StudentID           string
	Course              string
	Part                *int
	Group               *string
	EventID             string
	EventDate           time.Time
	CertificateTemplate string
}

type recordJSON struct {
	Name                string  `json:"name"`
	StudentID           string  `json:"studentID"`
	Course              string  `json:"course"`
	Part                *int    `json:"part,omitempty"`
	Group               *string `json:"group,omitempty"`
	EventID             string  `json:"eventId"`
	EventDate           string  `json:"eventDate"`
	CertificateTemplate string  `json:"certificateTemplate"`
}

// MarshalJSON renders the record in its wire form.
func (r CertificateRecord) MarshalJSON() ([]byte, error) {
	out := recordJSON{
		Name:                r.Name,
		StudentID:           r.StudentID,
		Course:              r.Course,
		Part:                r.Part,
		Group:               r.Group,
		EventID:             r.EventID,
		CertificateTemplate: r.CertificateTemplate,
	}
	if !r.EventDate.IsZero() {
		out.EventDate = FormatEventDate(r.EventDate)
	}
	return json.Marshal(out)
}

// UnmarshalJSON parses the wire form. An empty eventDate leaves EventDate zero.
func (r *CertificateRecord) UnmarshalJSON(data []byte) error {
	var in recordJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	var eventDate time.Time
	if in.EventDate != "" {
		t, err := ParseEventDate(in.EventDate)
		if err != nil {
			return err
		}
		eventDate = t
	}

	*r = CertificateRecord{
		Name:                in.Name,
		StudentID:           in.StudentID,
		Course:              in.Course,
		Part:                in.Part,
		Group:               in.Group,
		EventID:             in.EventID,
		EventDate:           eventDate,
		CertificateTemplate: in.CertificateTemplate,
	}
	return nil
}

// MaxPart is the largest part number a JavaScript verifier reads back
// exactly (Number.MAX_SAFE_INTEGER).
const MaxPart = 1<<53 - 1

// PartValue returns the part number, 0 when absent.
func (r CertificateRecord) PartValue() int {
	if r.Part == nil {
		return 0
	}
	return *r.Part
}

// GroupValue returns the group label, "" when absent.
func (r CertificateRecord) GroupValue() string {
	if r.Group == nil {
		return ""
	}
	return *r.Group
}

// Equal reports whether two records carry the same facts. Optional fields
// compare by value and event dates compare as instants.
func (r CertificateRecord) Equal(o CertificateRecord) bool {
	return r.Name == o.Name &&
		r.StudentID == o.StudentID &&
		r.Course == o.Course &&
		equalPtr(r.Part, o.Part) &&
		equalPtr(r.Group, o.Group) &&
		r.EventID == o.EventID &&
		r.EventDate.Equal(o.EventDate) &&
		r.CertificateTemplate == o.CertificateTemplate
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Part returns a pointer to n, for building records with a part number.
func Part(n int) *int {
	return &n
}

// Group returns a pointer to g, for building records with a group label.
func Group(g string) *string {
	return &g
}

// FormatEventDate formats t in the ISO-8601 form used on the wire.
func FormatEventDate(t time.Time) string {
	return t.UTC().Format(ISO8601Millis)
}

// ParseEventDate parses an RFC 3339 instant and truncates it to the
// millisecond precision the wire form can carry.
func ParseEventDate(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid eventDate %q: %w", s, err)
	}
	return t.UTC().Truncate(time.Millisecond), nil
}
