package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/adamscao/certserver/internal/auth"
)

// AdminAuth middleware checks for admin token, and for a TOTP code when
// totpSecret is set
func AdminAuth(adminToken, totpSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := zerolog.Ctx(c.Request.Context())
		token := c.GetHeader("X-Admin-Token")

		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Admin token required",
			})
			c.Abort()
			return
		}

		if !auth.VerifyToken(token, adminToken) {
			log.Warn().Str("client_ip", c.ClientIP()).Msg("invalid admin token")
			c.JSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "Invalid admin token",
			})
			c.Abort()
			return
		}

		if totpSecret != "" {
			valid, err := auth.ValidateTOTP(totpSecret, c.GetHeader("X-Admin-TOTP"))
			if err != nil || !valid {
				log.Warn().Err(err).Str("client_ip", c.ClientIP()).Msg("invalid admin TOTP code")
				c.JSON(http.StatusUnauthorized, gin.H{
					"error":   "invalid_totp",
					"message": "Invalid TOTP code",
				})
				c.Abort()
				return
			}
		}

		c.Next()
	}
}
