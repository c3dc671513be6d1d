// Package logging builds the zerolog loggers used by the server and the
// admin CLI.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/adamscao/certserver/internal/config"
)

// RedactedValue replaces secrets in log output.
const RedactedValue = "[REDACTED]"

var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`-----BEGIN[A-Z ]*PRIVATE KEY-----[^-]*-----END[A-Z ]*PRIVATE KEY-----`),
	regexp.MustCompile(`(?i)(x-admin-token|admin_token|token|totp_secret|secret)(["']?\s*[:=]\s*["']?)[^\s"',}]+`),
}

// New builds a logger from cfg writing to console (normally os.Stderr) and,
// when cfg.File is set, to a rotating log file. Every event passes through a
// FilteringWriter before reaching either destination. The returned closer
// releases the file and is never nil.
func New(cfg config.LoggingConfig, console io.Writer) (zerolog.Logger, io.Closer, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	var out io.Writer = console
	if cfg.Format == "text" {
		out = zerolog.ConsoleWriter{Out: console, TimeFormat: time.RFC3339}
	}
	// redact the JSON event before the console writer reformats it
	out = NewFilteringWriter(out)

	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o750); err != nil {
			return zerolog.Nop(), closer, err
		}
		file := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		closer = file
		out = zerolog.MultiLevelWriter(out, NewFilteringWriter(file))
	}

	logger := zerolog.New(out).Level(level).With().Timestamp().Logger()
	return logger, closer, nil
}

// Component derives a sub-logger tagged with a component name.
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}

// Filter redacts private keys and credential values in s.
func Filter(s string) string {
	s = sensitivePatterns[0].ReplaceAllString(s, RedactedValue)
	return sensitivePatterns[1].ReplaceAllString(s, "${1}${2}"+RedactedValue)
}

// FilteringWriter redacts secrets before they reach the wrapped writer.
type FilteringWriter struct {
	w io.Writer
}

// NewFilteringWriter wraps w.
func NewFilteringWriter(w io.Writer) *FilteringWriter {
	return &FilteringWriter{w: w}
}

// Write implements io.Writer. It reports the length of p so callers do not
// see a short write when redaction shortens the output.
func (fw *FilteringWriter) Write(p []byte) (int, error) {
	if _, err := fw.w.Write([]byte(Filter(string(p)))); err != nil {
		return 0, err
	}
	return len(p), nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
