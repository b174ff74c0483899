// Package logging configures the zerolog logger shared by all ebookcast commands.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Format selects the log encoding.
type Format string

const (
	// FormatConsole writes human-readable, optionally coloured lines.
	FormatConsole Format = "console"
	// FormatJSON writes one JSON object per event.
	FormatJSON Format = "json"
)

// ParseFormat parses a format name. Unknown values fall back to console,
// since ebookcast is mostly run interactively.
func ParseFormat(s string) Format {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON
	default:
		return FormatConsole
	}
}

// Config holds logger settings.
type Config struct {
	Level   string
	Format  Format
	Output  io.Writer
	NoColor bool
}

// New builds a logger from cfg. An invalid level means info.
func New(cfg Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	var logger zerolog.Logger
	switch cfg.Format {
	case FormatJSON:
		logger = zerolog.New(out)
	default:
		logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.Kitchen,
			NoColor:    cfg.NoColor,
		})
	}

	return logger.Level(level).With().Timestamp().Logger()
}

// Nop returns a logger that discards everything. Handy in tests.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}
