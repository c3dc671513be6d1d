package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	certerrors "github.com/adamscao/certserver/internal/errors"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// RespondError sends an error response
func RespondError(c *gin.Context, statusCode int, errorCode string, message string) {
	c.JSON(statusCode, ErrorResponse{
		Error:   errorCode,
		Message: message,
	})
}

// RespondSuccess sends a success response
func RespondSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// RespondFailure maps err to a status code and error code. Internal errors
// are logged and reported without their message.
func RespondFailure(c *gin.Context, err error) {
	kind := certerrors.Kind(err)
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Msg("request failed")
		RespondError(c, status, kind, "Internal server error")
		return
	}
	RespondError(c, status, kind, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, certerrors.ErrKeyUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, certerrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, certerrors.ErrEncoding),
		errors.Is(err, certerrors.ErrPolicyViolation),
		errors.Is(err, certerrors.ErrParse),
		errors.Is(err, certerrors.ErrSignatureDecode):
		return http.StatusBadRequest
	case errors.Is(err, certerrors.ErrArtifactFormat):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// GetClientIP gets the real client IP address
func GetClientIP(c *gin.Context) string {
	// Try X-Forwarded-For header first (for proxied requests)
	if ip := c.GetHeader("X-Forwarded-For"); ip != "" {
		return ip
	}

	// Try X-Real-IP header
	if ip := c.GetHeader("X-Real-IP"); ip != "" {
		return ip
	}

	// Fall back to RemoteAddr
	return c.ClientIP()
}
