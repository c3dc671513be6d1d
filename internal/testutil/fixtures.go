package testutil

import (
	"bytes"
	"fmt"
	"time"

	"github.com/adamscao/certserver/internal/models"
)

// ScenarioRecord returns the reference record used across tests.
func ScenarioRecord() models.CertificateRecord {
	return models.CertificateRecord{
		Name:                "Jane Doe",
		StudentID:           "S123",
		Course:              "CS101",
		Part:                models.Part(1),
		Group:               models.Group("A"),
		EventID:             "ev1",
		EventDate:           time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		CertificateTemplate: "tmpl://a",
	}
}

// ScenarioEvent returns the event context of ScenarioRecord.
func ScenarioEvent() models.EventContext {
	rec := ScenarioRecord()
	return models.EventContext{
		EventID:             rec.EventID,
		EventDate:           rec.EventDate,
		CertificateTemplate: rec.CertificateTemplate,
	}
}

// MinimalPDF renders a valid one-page PDF whose content stream shows text.
func MinimalPDF(text string) []byte {
	stream := fmt.Sprintf("BT /F1 24 Tf 72 700 Td (%s) Tj ET", text)
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R " +
			"/Resources << /Font << /F1 5 0 R >> >> >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
	}

	var b bytes.Buffer
	b.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}

	xref := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n0000000000 65535 f\r\n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&b, "%010d 00000 n\r\n", off)
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R /ID [<0A1B2C3D><0A1B2C3D>] >>\n", len(objects)+1)
	fmt.Fprintf(&b, "startxref\n%d\n%%%%EOF\n", xref)
	return b.Bytes()
}
