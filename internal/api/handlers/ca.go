package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/adamscao/certserver/internal/ca"
)

// CAHandler handles issuer key requests
type CAHandler struct {
	keys *ca.KeyMaterial
}

// NewCAHandler creates a new CA handler
func NewCAHandler(keys *ca.KeyMaterial) *CAHandler {
	return &CAHandler{
		keys: keys,
	}
}

// GetPublicKey returns the issuer public key as PEM
// GET /v1/ca/public-key
func (h *CAHandler) GetPublicKey(c *gin.Context) {
	pemBytes, err := h.keys.PublicKeyPEM()
	if err != nil {
		RespondFailure(c, err)
		return
	}

	c.Header("X-Key-Fingerprint", h.keys.Fingerprint())
	c.Data(http.StatusOK, "application/x-pem-file", pemBytes)
}
