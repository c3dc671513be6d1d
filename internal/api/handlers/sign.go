package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/adamscao/certserver/internal/batch"
	certerrors "github.com/adamscao/certserver/internal/errors"
	"github.com/adamscao/certserver/internal/issuance"
	"github.com/adamscao/certserver/internal/models"
)

// SignHandler handles record signing
type SignHandler struct {
	issuer *issuance.Service
}

// NewSignHandler creates a new sign handler
func NewSignHandler(issuer *issuance.Service) *SignHandler {
	return &SignHandler{
		issuer: issuer,
	}
}

// SignResponse represents a sign response
type SignResponse struct {
	ID        string `json:"id,omitempty"`
	Signature string `json:"signature"`
}

// Sign signs one certificate record
// POST /v1/sign
func (h *SignHandler) Sign(c *gin.Context) {
	var record models.CertificateRecord
	if err := c.ShouldBindJSON(&record); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", "Invalid certificate record: "+err.Error())
		return
	}

	cert, err := h.issuer.Sign(c.Request.Context(), record)
	if err != nil {
		RespondFailure(c, err)
		return
	}

	RespondSuccess(c, SignResponse{ID: cert.ID, Signature: cert.Signature})
}

// BatchRequest represents a bulk signing request
type BatchRequest struct {
	Event struct {
		EventID             string `json:"eventId"`
		EventDate           string `json:"eventDate"`
		CertificateTemplate string `json:"certificateTemplate"`
	} `json:"event"`
	Recipients []models.Recipient `json:"recipients"`
}

// EventContext converts the request event. An empty eventDate is left zero
// for the validator to reject.
func (r BatchRequest) EventContext() (models.EventContext, error) {
	event := models.EventContext{
		EventID:             r.Event.EventID,
		CertificateTemplate: r.Event.CertificateTemplate,
	}
	if r.Event.EventDate != "" {
		date, err := models.ParseEventDate(r.Event.EventDate)
		if err != nil {
			return models.EventContext{}, err
		}
		event.EventDate = date
	}
	return event, nil
}

// BatchItem is the outcome for one recipient
type BatchItem struct {
	Index     int    `json:"index"`
	StudentID string `json:"studentID"`
	Signature string `json:"signature,omitempty"`
	Error     string `json:"error,omitempty"`
	Message   string `json:"message,omitempty"`
}

// BatchResponse represents a bulk signing response
type BatchResponse struct {
	Total     int         `json:"total"`
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
	Results   []BatchItem `json:"results"`
}

// SignBatch signs one record per recipient of an event
// POST /v1/sign/batch
func (h *SignHandler) SignBatch(c *gin.Context) {
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	if len(req.Recipients) == 0 {
		RespondError(c, http.StatusBadRequest, "invalid_request", "At least one recipient is required")
		return
	}

	event, err := req.EventContext()
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	results, err := h.issuer.SignBatch(c.Request.Context(), event, req.Recipients)
	if err != nil {
		RespondFailure(c, err)
		return
	}

	RespondSuccess(c, NewBatchResponse(results))
}

// NewBatchResponse summarizes batch results in input order
func NewBatchResponse(results batch.Results) BatchResponse {
	resp := BatchResponse{
		Total:     len(results),
		Succeeded: results.Succeeded(),
		Failed:    results.Failed(),
		Results:   make([]BatchItem, len(results)),
	}
	for i, r := range results {
		item := BatchItem{Index: r.Index, StudentID: r.Record.StudentID, Signature: r.Signature}
		if r.Err != nil {
			item.Error = certerrors.Kind(r.Err)
			item.Message = r.Err.Error()
		}
		resp.Results[i] = item
	}
	return resp
}
