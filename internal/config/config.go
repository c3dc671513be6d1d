package config

import (
	"fmt"
	"os"
	"time"
)

// DefaultAdminToken is the placeholder shipped in the example config
const DefaultAdminToken = "your-secure-admin-token-change-me-in-production"

// Config holds all configuration for the application
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	CA           CAConfig           `yaml:"ca"`
	Signing      SigningConfig      `yaml:"signing"`
	Verification VerificationConfig `yaml:"verification"`
	Admin        AdminConfig        `yaml:"admin"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// ServerConfig contains server configuration
type ServerConfig struct {
	ListenAddr      string `yaml:"listen_addr"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

// DatabaseConfig contains database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// CAConfig contains issuer key configuration. The private key is optional
// for verify-only deployments.
type CAConfig struct {
	PrivateKeyPath string `yaml:"private_key_path"`
	PublicKeyPath  string `yaml:"public_key_path"`
}

// SigningConfig contains signing configuration
type SigningConfig struct {
	Concurrency int    `yaml:"concurrency"`
	Timeout     string `yaml:"timeout"`
	// RemoteURL delegates signing to another certserver's /v1/sign endpoint
	RemoteURL        string `yaml:"remote_url"`
	RemoteToken      string `yaml:"remote_token"`
	RemoteTOTPSecret string `yaml:"remote_totp_secret"`
}

// VerificationConfig contains verification policy
type VerificationConfig struct {
	RequireContentDigest bool  `yaml:"require_content_digest"`
	MaxArtifactBytes     int64 `yaml:"max_artifact_bytes"`
}

// AdminConfig contains admin configuration
type AdminConfig struct {
	Token      string `yaml:"token"`
	TOTPSecret string `yaml:"totp_secret"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// ApplyDefaults fills unset optional fields
func (c *Config) ApplyDefaults() {
	if c.Server.ShutdownTimeout == "" {
		c.Server.ShutdownTimeout = "5s"
	}
	if c.Signing.Concurrency == 0 {
		c.Signing.Concurrency = 8
	}
	if c.Verification.MaxArtifactBytes == 0 {
		c.Verification.MaxArtifactBytes = 20 << 20
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = 100
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Server validation
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr is required")
	}
	if _, err := parseDuration(c.Server.ShutdownTimeout); err != nil {
		return fmt.Errorf("server.shutdown_timeout is invalid: %w", err)
	}

	// Database validation
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	// CA validation
	if c.CA.PrivateKeyPath == "" && c.CA.PublicKeyPath == "" {
		return fmt.Errorf("ca.private_key_path or ca.public_key_path is required")
	}

	// Signing validation
	if c.Signing.Concurrency < 0 {
		return fmt.Errorf("signing.concurrency must not be negative")
	}
	if c.Signing.Timeout != "" {
		if _, err := parseDuration(c.Signing.Timeout); err != nil {
			return fmt.Errorf("signing.timeout is invalid: %w", err)
		}
	}
	if c.Signing.RemoteURL != "" && c.Signing.RemoteToken == "" {
		return fmt.Errorf("signing.remote_token is required with signing.remote_url")
	}

	// Verification validation
	if c.Verification.MaxArtifactBytes < 0 {
		return fmt.Errorf("verification.max_artifact_bytes must not be negative")
	}

	// Admin validation
	if c.Admin.Token == "" {
		return fmt.Errorf("admin.token is required")
	}
	if c.Admin.Token == DefaultAdminToken {
		fmt.Fprintf(os.Stderr, "WARNING: Using default admin token. Please change it in production!\n")
	}

	// Logging validation
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("logging.format must be 'json' or 'text'")
	}

	return nil
}

// GetSigningTimeout returns the per-record signing timeout, zero when unset
func (c *Config) GetSigningTimeout() time.Duration {
	d, _ := parseDuration(c.Signing.Timeout)
	return d
}

// GetShutdownTimeout returns the graceful shutdown timeout as time.Duration
func (c *Config) GetShutdownTimeout() time.Duration {
	d, _ := parseDuration(c.Server.ShutdownTimeout)
	return d
}

// parseDuration parses duration with support for days (e.g., "90d")
func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	// Handle "d" suffix for days
	if len(s) > 1 && s[len(s)-1] == 'd' {
		days := s[:len(s)-1]
		var d int
		if _, err := fmt.Sscanf(days, "%d", &d); err != nil {
			return 0, err
		}
		return time.Duration(d) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}
