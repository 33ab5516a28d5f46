// Package logging wires up the agent's structured logger: JSON lines with
// the same timestamp/severity/message field renaming and redaction
// allowlist as observability/logging, optionally rotated to disk via
// lumberjack when a log file path is configured.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"treasuryagent/observability/logging"
)

// Config controls where and how logs are emitted.
type Config struct {
	Service string
	Env     string

	// FilePath, when non-empty, rotates logs to disk in addition to
	// stdout.
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Setup configures the default slog logger for the process, reusing
// observability/logging's field-renaming JSON handler but redirecting
// its writer to a rotating file sink when cfg.FilePath is set.
func Setup(cfg Config) *slog.Logger {
	var out io.Writer = os.Stdout
	if strings.TrimSpace(cfg.FilePath) != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    firstNonZero(cfg.MaxSizeMB, 100),
			MaxBackups: firstNonZero(cfg.MaxBackups, 5),
			MaxAge:     firstNonZero(cfg.MaxAgeDays, 28),
			Compress:   true,
		}
		out = io.MultiWriter(os.Stdout, rotator)
	}
	return logging.SetupWriter(out, cfg.Service, cfg.Env)
}

func firstNonZero(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

// Redact masks a field value unless its key is allowlisted, the way every
// handler-facing log call in this module should before logging a
// raw secret or address.
func Redact(key, value string) slog.Attr {
	return logging.MaskField(key, value)
}
