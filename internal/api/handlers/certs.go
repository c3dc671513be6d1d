package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/adamscao/certserver/internal/issuance"
	"github.com/adamscao/certserver/internal/models"
	"github.com/adamscao/certserver/internal/verification"
)

// CertificateLister lists stored certificates
type CertificateLister interface {
	ListByEvent(ctx context.Context, eventID string, limit int) ([]*models.IssuedCertificate, error)
	CountByEvent(ctx context.Context, eventID string) (int, error)
}

// CertHandler handles certificate issuance and lookup
type CertHandler struct {
	issuer   *issuance.Service
	verifier *verification.Service
	lister   CertificateLister
	maxBytes int64
}

// NewCertHandler creates a new certificate handler
func NewCertHandler(
	issuer *issuance.Service,
	verifier *verification.Service,
	lister CertificateLister,
	maxBytes int64,
) *CertHandler {
	return &CertHandler{
		issuer:   issuer,
		verifier: verifier,
		lister:   lister,
		maxBytes: maxBytes,
	}
}

// IssueCertificate signs a record and seals it into the uploaded PDF
// POST /v1/certificates/issue (multipart: record, artifact)
func (h *CertHandler) IssueCertificate(c *gin.Context) {
	var record models.CertificateRecord
	if err := json.Unmarshal([]byte(c.PostForm("record")), &record); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", "Invalid certificate record: "+err.Error())
		return
	}

	header, err := c.FormFile("artifact")
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", "No artifact file provided")
		return
	}
	rendered, err := readUpload(header, h.maxBytes)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	issued, err := h.issuer.Issue(c.Request.Context(), record, rendered)
	if err != nil {
		RespondFailure(c, err)
		return
	}

	cert := issued.Certificate
	c.Header("X-Certificate-ID", cert.ID)
	c.Header("X-Content-Digest", cert.ContentDigest)
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="certificate-%s-%s.pdf"`,
		sanitizeFilename(record.EventID), sanitizeFilename(record.StudentID)))
	c.Data(http.StatusOK, "application/pdf", issued.Artifact)
}

// ListResponse represents the certificates of an event
type ListResponse struct {
	EventID      string                      `json:"eventId"`
	Count        int                         `json:"count"`
	Certificates []*models.IssuedCertificate `json:"certificates"`
}

// ListCertificates lists the stored certificates of an event
// GET /v1/events/:eventId/certificates
func (h *CertHandler) ListCertificates(c *gin.Context) {
	eventID := c.Param("eventId")

	limit := 0
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			RespondError(c, http.StatusBadRequest, "invalid_request", "Invalid limit")
			return
		}
		limit = n
	}

	ctx := c.Request.Context()
	certs, err := h.lister.ListByEvent(ctx, eventID, limit)
	if err != nil {
		RespondFailure(c, err)
		return
	}
	count, err := h.lister.CountByEvent(ctx, eventID)
	if err != nil {
		RespondFailure(c, err)
		return
	}
	if certs == nil {
		certs = []*models.IssuedCertificate{}
	}

	RespondSuccess(c, ListResponse{EventID: eventID, Count: count, Certificates: certs})
}

// GetCertificate verifies the stored certificate of one student
// GET /v1/events/:eventId/certificates/:studentId
func (h *CertHandler) GetCertificate(c *gin.Context) {
	resp, err := h.verifier.VerifyStored(c.Request.Context(), c.Param("eventId"), c.Param("studentId"))
	if err != nil {
		RespondFailure(c, err)
		return
	}

	RespondSuccess(c, resp)
}

// readUpload reads an uploaded file, failing when it exceeds limit bytes
func readUpload(header *multipart.FileHeader, limit int64) ([]byte, error) {
	if limit > 0 && header.Size > limit {
		return nil, fmt.Errorf("file exceeds %d bytes", limit)
	}
	f, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if limit > 0 {
		r = io.LimitReader(f, limit+1)
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if limit > 0 && int64(len(b)) > limit {
		return nil, fmt.Errorf("file exceeds %d bytes", limit)
	}
	return b, nil
}

func sanitizeFilename(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
