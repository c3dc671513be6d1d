package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/adamscao/certserver/internal/verification"
)

// VerifyHandler handles public certificate verification
type VerifyHandler struct {
	verifier *verification.Service
	maxBytes int64
}

// NewVerifyHandler creates a new verify handler
func NewVerifyHandler(verifier *verification.Service, maxBytes int64) *VerifyHandler {
	return &VerifyHandler{
		verifier: verifier,
		maxBytes: maxBytes,
	}
}

// Verify checks an uploaded certificate PDF. It always answers 200 with
// the verdict in the body.
// POST /v1/verify (multipart: certificate)
func (h *VerifyHandler) Verify(c *gin.Context) {
	ctx := c.Request.Context()

	header, err := c.FormFile("certificate")
	if err != nil {
		RespondSuccess(c, h.verifier.Reject(verification.MsgNoFile))
		return
	}
	if h.maxBytes > 0 && header.Size > h.maxBytes {
		RespondSuccess(c, h.verifier.Reject(verification.MsgTooLarge))
		return
	}

	pdf, err := readUpload(header, h.maxBytes)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("failed to read uploaded certificate")
		RespondSuccess(c, h.verifier.Reject(verification.MsgFailed))
		return
	}

	RespondSuccess(c, h.verifier.VerifyArtifact(ctx, pdf))
}
