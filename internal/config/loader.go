package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from a YAML file
func Load(path string) (*Config, error) {
	cfg, err := read(path)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadWithEnv loads configuration from a file and applies environment variable overrides
func LoadWithEnv(path string) (*Config, error) {
	cfg, err := read(path)
	if err != nil {
		return nil, err
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	// Validate after env overrides
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration after env overrides: %w", err)
	}

	return cfg, nil
}

func read(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.ApplyDefaults()

	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	overrides := map[string]*string{
		"CERTSERVER_LISTEN_ADDR":        &cfg.Server.ListenAddr,
		"CERTSERVER_DB_PATH":            &cfg.Database.Path,
		"CERTSERVER_PRIVATE_KEY":        &cfg.CA.PrivateKeyPath,
		"CERTSERVER_PUBLIC_KEY":         &cfg.CA.PublicKeyPath,
		"CERTSERVER_ADMIN_TOKEN":        &cfg.Admin.Token,
		"CERTSERVER_ADMIN_TOTP_SECRET":  &cfg.Admin.TOTPSecret,
		"CERTSERVER_SIGNING_TIMEOUT":    &cfg.Signing.Timeout,
		"CERTSERVER_REMOTE_URL":         &cfg.Signing.RemoteURL,
		"CERTSERVER_REMOTE_TOKEN":       &cfg.Signing.RemoteToken,
		"CERTSERVER_REMOTE_TOTP_SECRET": &cfg.Signing.RemoteTOTPSecret,
		"CERTSERVER_LOG_LEVEL":          &cfg.Logging.Level,
		"CERTSERVER_LOG_FORMAT":         &cfg.Logging.Format,
		"CERTSERVER_LOG_FILE":           &cfg.Logging.File,
	}
	for env, dst := range overrides {
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}

	if v := os.Getenv("CERTSERVER_SIGNING_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CERTSERVER_SIGNING_CONCURRENCY is invalid: %w", err)
		}
		cfg.Signing.Concurrency = n
	}

	if v := os.Getenv("CERTSERVER_REQUIRE_CONTENT_DIGEST"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("CERTSERVER_REQUIRE_CONTENT_DIGEST is invalid: %w", err)
		}
		cfg.Verification.RequireContentDigest = b
	}

	return nil
}
