package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/adamscao/certserver/internal/api/handlers"
	"github.com/adamscao/certserver/internal/api/middleware"
	"github.com/adamscao/certserver/internal/ca"
	"github.com/adamscao/certserver/internal/config"
	"github.com/adamscao/certserver/internal/issuance"
	"github.com/adamscao/certserver/internal/logging"
	"github.com/adamscao/certserver/internal/verification"
)

// multipartOverhead is allowed on top of the artifact size for form fields
const multipartOverhead = 1 << 20

// Dependencies are the services the API serves
type Dependencies struct {
	Keys     *ca.KeyMaterial
	Issuer   *issuance.Service
	Verifier *verification.Service
	Lister   handlers.CertificateLister
}

// Server represents the HTTP server
type Server struct {
	router *gin.Engine
	config *config.Config
	http   *http.Server
}

// NewServer creates a new API server
func NewServer(cfg *config.Config, deps Dependencies, logger zerolog.Logger) *Server {
	// Set Gin mode
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.MaxMultipartMemory = cfg.Verification.MaxArtifactBytes + multipartOverhead

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logging.Component(logger, "api")))

	// Create handlers
	maxBytes := cfg.Verification.MaxArtifactBytes
	caHandler := handlers.NewCAHandler(deps.Keys)
	signHandler := handlers.NewSignHandler(deps.Issuer)
	certHandler := handlers.NewCertHandler(deps.Issuer, deps.Verifier, deps.Lister, maxBytes)
	verifyHandler := handlers.NewVerifyHandler(deps.Verifier, maxBytes)
	adminAuth := middleware.AdminAuth(cfg.Admin.Token, cfg.Admin.TOTPSecret)

	// API v1 routes
	v1 := router.Group("/v1")
	{
		// Public endpoints
		v1.GET("/ca/public-key", caHandler.GetPublicKey)
		v1.POST("/verify", verifyHandler.Verify)
		v1.GET("/events/:eventId/certificates/:studentId", certHandler.GetCertificate)

		// Admin endpoints (require admin token)
		admin := v1.Group("")
		admin.Use(adminAuth)
		{
			admin.POST("/sign", signHandler.Sign)
			admin.POST("/sign/batch", signHandler.SignBatch)
			admin.POST("/certificates/issue", certHandler.IssueCertificate)
			admin.GET("/events/:eventId/certificates", certHandler.ListCertificates)
		}
	}

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"signing":     deps.Keys.CanSign(),
			"fingerprint": deps.Keys.Fingerprint(),
		})
	})

	return &Server{
		router: router,
		config: cfg,
		http: &http.Server{
			Addr:              cfg.Server.ListenAddr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Run starts the HTTP server and blocks until it stops
func (s *Server) Run() error {
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Router returns the underlying Gin router
func (s *Server) Router() *gin.Engine {
	return s.router
}
