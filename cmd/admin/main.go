package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/adamscao/certserver/internal/app"
	"github.com/adamscao/certserver/internal/config"
	"github.com/adamscao/certserver/internal/logging"
)

var (
	configPath string
	verbose    bool
	cfg        *config.Config
	logger     zerolog.Logger
	logOut     io.Writer = os.Stderr
	logCloser  io.Closer
)

var rootCmd = &cobra.Command{
	Use:           "certadmin",
	Short:         "Certificate server administration tool",
	Long:          "Administrative tool for signing, issuing, verifying and listing certificates",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// until the config file is read
		logOut = cmd.ErrOrStderr()
		return setupLogging(config.LoggingConfig{Level: "warn", Format: "json"})
	},
}

func init() {
	// Root flags
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "/etc/certserver/config.yaml", "Config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	// Add commands
	rootCmd.AddCommand(signCmd)
	rootCmd.AddCommand(issueCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(certsCmd)
	rootCmd.AddCommand(keyCmd)
	rootCmd.AddCommand(totpCmd)
}

func main() {
	err := rootCmd.Execute()
	closeLog()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() error {
	var err error
	cfg, err = config.LoadWithEnv(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	return setupLogging(cfg.Logging)
}

// initApp loads the configuration and opens the database and issuer keys.
func initApp(ctx context.Context) (*app.App, error) {
	if err := loadConfig(); err != nil {
		return nil, err
	}
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize: %w", err)
	}
	return a, nil
}

// setupLogging replaces the CLI logger. --verbose forces debug level and a
// terminal always gets the text format.
func setupLogging(lc config.LoggingConfig) error {
	if verbose {
		lc.Level = "debug"
	}
	if isTerminal(logOut) {
		lc.Format = "text"
	}
	l, closer, err := logging.New(lc, logOut)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	closeLog()
	logger, logCloser = l, closer
	return nil
}

func closeLog() {
	if logCloser != nil {
		logCloser.Close()
		logCloser = nil
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
