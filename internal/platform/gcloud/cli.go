package gcloud

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"
)

// Runner executes an external command.
type Runner interface {
	Run(ctx context.Context, stdout, stderr io.Writer, name string, args ...string) error
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, stdout, stderr io.Writer, name string, args ...string) error {
	// #nosec G204 - arguments are built by this package, not taken from a shell
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s %s: %w", name, args[0], err)
	}
	return nil
}

// CLI invokes the gcloud binary.
type CLI struct {
	runner Runner
	binary string
	logger zerolog.Logger
}

// Option configures a CLI.
type Option func(*CLI)

// WithRunner replaces the command runner (useful for testing).
func WithRunner(r Runner) Option {
	return func(c *CLI) {
		c.runner = r
	}
}

// WithLogger sets the logger used for command tracing.
func WithLogger(l zerolog.Logger) Option {
	return func(c *CLI) {
		c.logger = l
	}
}

// New creates a CLI using the gcloud binary from PATH.
func New(opts ...Option) *CLI {
	c := &CLI{runner: ExecRunner{}, binary: "gcloud", logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Project returns the project configured with "gcloud config set project".
func (c *CLI) Project(ctx context.Context) (string, error) {
	out, err := c.output(ctx, "config", "get-value", "project")
	if err != nil {
		return "", fmt.Errorf("failed to read gcloud project: %w", err)
	}
	if out == "" || out == "(unset)" {
		return "", fmt.Errorf("no gcloud project configured, run 'gcloud config set project <id>' or pass --project")
	}
	return out, nil
}

// ActiveAccount returns the e-mail of the active gcloud account.
func (c *CLI) ActiveAccount(ctx context.Context) (string, error) {
	out, err := c.output(ctx, "auth", "list", "--filter=status:ACTIVE", "--format=value(account)")
	if err != nil {
		return "", fmt.Errorf("failed to read gcloud account: %w", err)
	}
	account, _, _ := strings.Cut(out, "\n")
	account = strings.TrimSpace(account)
	if account == "" {
		return "", fmt.Errorf("no active gcloud account, run 'gcloud auth login'")
	}
	return account, nil
}

func (c *CLI) output(ctx context.Context, args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	if err := c.run(ctx, &stdout, &stderr, args...); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("%w: %s", err, msg)
		}
		return "", err
	}
	return strings.TrimSpace(stdout.String()), nil
}

func (c *CLI) run(ctx context.Context, stdout, stderr io.Writer, args ...string) error {
	c.logger.Debug().Strs("args", args).Msg("Executing gcloud")
	return c.runner.Run(ctx, stdout, stderr, c.binary, args...)
}
