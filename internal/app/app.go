// Package app wires configuration, storage, keys and services together for
// the server and the admin CLI.
package app

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/adamscao/certserver/internal/ca"
	"github.com/adamscao/certserver/internal/config"
	"github.com/adamscao/certserver/internal/db"
	certerrors "github.com/adamscao/certserver/internal/errors"
	"github.com/adamscao/certserver/internal/db/repository"
	"github.com/adamscao/certserver/internal/issuance"
	"github.com/adamscao/certserver/internal/policy"
	"github.com/adamscao/certserver/internal/verification"
)

// App holds the wired services.
type App struct {
	Config   *config.Config
	DB       *db.DB
	Keys     *ca.KeyMaterial
	Signer   ca.Signer
	Certs    *repository.CertRepository
	Issuer   *issuance.Service
	Verifier *verification.Service
}

// New opens the database, loads the issuer keys and builds the services.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	keys, err := ca.LoadKeyMaterial(cfg.CA.PrivateKeyPath, cfg.CA.PublicKeyPath)
	if err != nil {
		return nil, certerrors.Wrap(err, "failed to load issuer keys")
	}
	logger.Info().
		Str("fingerprint", keys.Fingerprint()).
		Bool("signing", keys.CanSign()).
		Msg("issuer keys loaded")

	database, err := db.New(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	if err := db.RunMigrations(ctx, database); err != nil {
		database.Close()
		return nil, certerrors.Wrapf(err, "failed to run migrations on %s", cfg.Database.Path)
	}

	signer := NewSigner(cfg, keys)
	certs := repository.NewCertRepository(database.DB)
	validator := policy.NewValidator(cfg)

	return &App{
		Config: cfg,
		DB:     database,
		Keys:   keys,
		Signer: signer,
		Certs:  certs,
		Issuer: issuance.NewService(signer, validator,
			issuance.WithStore(certs),
			issuance.WithBatchLimits(cfg.Signing.Concurrency, cfg.GetSigningTimeout())),
		Verifier: verification.NewService(keys,
			verification.WithLookup(certs),
			verification.WithMaxArtifactBytes(cfg.Verification.MaxArtifactBytes),
			verification.WithRequiredContentDigest(validator.RequireContentDigest())),
	}, nil
}

// NewSigner returns a remote signer when signing.remote_url is set, and a
// signer using the local private key otherwise.
func NewSigner(cfg *config.Config, keys *ca.KeyMaterial) ca.Signer {
	if cfg.Signing.RemoteURL != "" {
		var opts []ca.RemoteOption
		if cfg.Signing.RemoteTOTPSecret != "" {
			opts = append(opts, ca.WithTOTPSecret(cfg.Signing.RemoteTOTPSecret))
		}
		return ca.NewRemoteSigner(cfg.Signing.RemoteURL, cfg.Signing.RemoteToken, opts...)
	}
	return ca.NewLocalSigner(keys)
}

// Close releases the database.
func (a *App) Close() error {
	return a.DB.Close()
}
