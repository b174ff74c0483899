// Package handlers implements the business logic for CLI commands.
//
// This package contains handler functions that are called by command definitions
// in the commands package. Handlers are framework-agnostic and can be tested
// independently of the CLI framework: collaborators are created through the
// factory variables below so tests can swap them.
package handlers

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/imamik/ebookcast/internal/config"
	"github.com/imamik/ebookcast/internal/logging"
	"github.com/imamik/ebookcast/internal/metrics"
	"github.com/imamik/ebookcast/internal/ui"
	"github.com/imamik/ebookcast/internal/util/prerequisites"
)

// GlobalOptions are the persistent flags of the root command.
type GlobalOptions struct {
	LogLevel  string
	LogFormat string
	EnvFile   string
}

var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr

	logger = logging.New(logging.Config{})

	// newConsole creates the styled console on stdout.
	newConsole = func() *ui.Console { return ui.New(stdout) }

	// loadSettings reads the settings file (for testing injection).
	loadSettings = config.LoadSettings

	// loadTimeouts reads timeouts from the environment (for testing injection).
	loadTimeouts = config.LoadTimeouts

	// checkTools runs prerequisite checks (for testing injection).
	checkTools = prerequisites.Check
)

// Init configures logging and loads the dotenv file. It runs before every command.
func Init(opts GlobalOptions) error {
	logger = logging.New(logging.Config{
		Level:   opts.LogLevel,
		Format:  logging.ParseFormat(opts.LogFormat),
		Output:  stderr,
		NoColor: !ui.IsTerminal(stderr),
	})
	if err := config.LoadDotEnv(opts.EnvFile); err != nil {
		return err
	}
	return nil
}

// loadSettingsOrDefaults falls back to the built-in settings with a warning
// when the settings file does not exist.
func loadSettingsOrDefaults(path string) (*config.Settings, error) {
	settings, found, err := loadSettings(path)
	if err != nil {
		return nil, err
	}
	if !found {
		logger.Warn().Str("path", path).Msg("Settings file not found, using built-in defaults")
	}
	return settings, nil
}

// checkPrerequisites verifies the client tools needed for provider.
func checkPrerequisites(provider string) error {
	tools := prerequisites.ToolsFor(provider)
	if len(tools) == 0 {
		return nil
	}

	results := checkTools(tools)
	for _, r := range results.Results {
		if r.Found {
			version := r.Version
			if version == "" {
				version = "unknown version"
			}
			logger.Debug().Str("tool", r.Tool.Name).Str("version", version).Msg("Found prerequisite")
		}
	}
	if results.HasErrors() {
		return fmt.Errorf("prerequisites check failed: %w", results.Error())
	}
	return nil
}

func writeMetrics(m *metrics.Metrics, path string) {
	if path == "" {
		return
	}
	if err := m.WriteTextfile(path); err != nil {
		logger.Warn().Err(err).Msg("Failed to write metrics")
	}
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func requireDirs(ebooks, audiobooks string) error {
	if !isDir(ebooks) || !isDir(audiobooks) {
		return errors.New("ebook or audiobook directory not found")
	}
	return nil
}

// loggerFor returns the handler logger; used by collaborators built in factories.
func loggerFor(component string) zerolog.Logger {
	return logger.With().Str("component", component).Logger()
}
