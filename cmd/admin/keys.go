package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/adamscao/certserver/internal/auth"
	"github.com/adamscao/certserver/internal/ca"
	"github.com/adamscao/certserver/pkg/keyutil"
)

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Inspect the issuer key",
}

var keyFingerprintCmd = &cobra.Command{
	Use:   "fingerprint",
	Short: "Print the issuer public key and its fingerprint",
	RunE:  showFingerprint,
}

var totpCmd = &cobra.Command{
	Use:   "totp",
	Short: "Manage the admin second factor",
}

var totpSetupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Generate a TOTP secret for admin.totp_secret",
	RunE:  setupTOTP,
}

var (
	account     string
	comparePath string
)

func init() {
	keyFingerprintCmd.Flags().StringVar(&comparePath, "compare", "", "PEM public key file to compare with the issuer key")
	keyCmd.AddCommand(keyFingerprintCmd)

	totpSetupCmd.Flags().StringVarP(&account, "account", "a", "admin", "Account name shown in the authenticator app")
	totpCmd.AddCommand(totpSetupCmd)
}

func showFingerprint(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	keys, err := ca.LoadKeyMaterial(cfg.CA.PrivateKeyPath, cfg.CA.PublicKeyPath)
	if err != nil {
		return fmt.Errorf("failed to load issuer keys: %w", err)
	}
	pemBytes, err := keys.PublicKeyPEM()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Fingerprint: %s\n", keys.Fingerprint())
	fmt.Fprintf(out, "Signing:     %t\n\n", keys.CanSign())
	fmt.Fprintf(out, "%s", pemBytes)

	if comparePath == "" {
		return nil
	}
	other, err := os.ReadFile(comparePath)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", comparePath, err)
	}
	otherFP, err := keyutil.GetFingerprintPEM(other)
	if err != nil {
		return err
	}
	match, err := keyutil.FingerprintMatches(pemBytes, other)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\nCompared:    %s (%s)\n", comparePath, otherFP)
	if !match {
		return fmt.Errorf("%s does not match the issuer key", comparePath)
	}
	fmt.Fprintln(out, "Match:       yes")
	return nil
}

func setupTOTP(cmd *cobra.Command, args []string) error {
	secret, err := auth.GenerateTOTPSecret(account)
	if err != nil {
		return err
	}
	qrURL := auth.GenerateQRCodeURL(secret, account, "")

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "TOTP Secret: %s\n", secret)
	fmt.Fprintf(out, "TOTP QR URL: %s\n", qrURL)
	fmt.Fprintf(out, "\nSet admin.totp_secret (or CERTSERVER_ADMIN_TOTP_SECRET) to the secret and\n")
	fmt.Fprintf(out, "scan the QR URL with a TOTP app (Google Authenticator, Authy, etc.)\n")
	return nil
}
