package models

import "time"

// EventContext holds the facts shared by every certificate of one event.
type EventContext struct {
	EventID             string    `json:"eventId"`
	EventDate           time.Time `json:"eventDate"`
	CertificateTemplate string    `json:"certificateTemplate"`
}

// Recipient holds the per-person facts of a certificate.
type Recipient struct {
	Name      string  `json:"name"`
	StudentID string  `json:"studentID"`
	Course    string  `json:"course"`
	Part      *int    `json:"part,omitempty"`
	Group     *string `json:"group,omitempty"`
}

// Record combines the event context with one recipient.
func (e EventContext) Record(r Recipient) CertificateRecord {
	return CertificateRecord{
		Name:                r.Name,
		StudentID:           r.StudentID,
		Course:              r.Course,
		Part:                r.Part,
		Group:               r.Group,
		EventID:             e.EventID,
		EventDate:           e.EventDate,
		CertificateTemplate: e.CertificateTemplate,
	}
}
