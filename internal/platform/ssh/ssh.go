package ssh

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/imamik/ebookcast/internal/remote"
	"github.com/imamik/ebookcast/internal/util/retry"
)

const (
	defaultPort        = 22
	defaultDialTimeout = 10 * time.Second
	defaultMaxRetries  = 30
	defaultRetryDelay  = 2 * time.Second
	defaultMaxDelay    = 10 * time.Second
)

// Config holds SSH client configuration.
type Config struct {
	Host       string
	Port       int
	User       string
	PrivateKey []byte

	// DialTimeout is the timeout for establishing the TCP connection.
	// If zero, defaultDialTimeout is used.
	DialTimeout time.Duration

	// MaxRetries is the maximum number of connection retry attempts.
	// If zero, defaultMaxRetries is used.
	MaxRetries int

	// RetryDelay is the initial delay between retry attempts.
	// If zero, defaultRetryDelay is used.
	RetryDelay time.Duration

	// HostKeyCallback handles host key verification.
	// If nil, ssh.InsecureIgnoreHostKey() is used.
	HostKeyCallback ssh.HostKeyCallback

	// OnDialRetry is called before every dial retry.
	OnDialRetry func(attempt int, err error, wait time.Duration)
}

// Client runs commands and copies files over SSH.
// The private key is parsed once; connections are created per call.
type Client struct {
	config *Config
	signer ssh.Signer
}

var _ remote.Transport = (*Client)(nil)

// NewClient creates a new SSH client and validates the private key.
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Host == "" {
		return nil, fmt.Errorf("config host cannot be empty")
	}
	if cfg.User == "" {
		return nil, fmt.Errorf("config user cannot be empty")
	}
	if len(cfg.PrivateKey) == 0 {
		return nil, fmt.Errorf("config private key cannot be empty")
	}

	configCopy := *cfg
	if configCopy.Port == 0 {
		configCopy.Port = defaultPort
	}
	if configCopy.DialTimeout == 0 {
		configCopy.DialTimeout = defaultDialTimeout
	}
	if configCopy.MaxRetries == 0 {
		configCopy.MaxRetries = defaultMaxRetries
	}
	if configCopy.RetryDelay == 0 {
		configCopy.RetryDelay = defaultRetryDelay
	}
	if configCopy.HostKeyCallback == nil {
		configCopy.HostKeyCallback = ssh.InsecureIgnoreHostKey() //nolint:gosec // servers are ephemeral
	}

	signer, err := ssh.ParsePrivateKey(configCopy.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	return &Client{
		config: &configCopy,
		signer: signer,
	}, nil
}

// Run executes cmd and streams its output.
func (c *Client) Run(ctx context.Context, cmd string, out remote.Streams) error {
	return c.exec(ctx, cmd, nil, out.Stdout, out.Stderr)
}

// connect establishes an SSH connection with retry logic.
func (c *Client) connect(ctx context.Context) (*ssh.Client, error) {
	config := &ssh.ClientConfig{
		User: c.config.User,
		Auth: []ssh.AuthMethod{
			ssh.PublicKeys(c.signer),
		},
		HostKeyCallback: c.config.HostKeyCallback,
		Timeout:         c.config.DialTimeout,
	}

	addr := fmt.Sprintf("%s:%d", c.config.Host, c.config.Port)
	var client *ssh.Client

	// A freshly created server needs a while before sshd accepts connections.
	err := retry.WithExponentialBackoff(ctx, func() error {
		var dialErr error
		client, dialErr = ssh.Dial("tcp", addr, config)
		return dialErr
	},
		retry.WithMaxRetries(c.config.MaxRetries),
		retry.WithInitialDelay(c.config.RetryDelay),
		retry.WithMaxDelay(defaultMaxDelay),
		retry.WithOnRetry(c.config.OnDialRetry),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to establish SSH connection to %s after %d retry attempts: %w",
			addr, c.config.MaxRetries, err)
	}

	return client, nil
}

// exec runs command in a new session. The connection is closed when ctx
// is cancelled, which aborts the remote command.
func (c *Client) exec(ctx context.Context, command string, stdin io.Reader, stdout, stderr io.Writer) error {
	client, err := c.connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	session, err := client.NewSession()
	if err != nil {
		return fmt.Errorf("failed to create SSH session on %s: %w", c.config.Host, err)
	}
	defer func() { _ = session.Close() }()

	session.Stdin = stdin
	session.Stdout = stdout
	session.Stderr = stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("command failed on %s: %w", c.config.Host, err)
		}
		return nil
	case <-ctx.Done():
		_ = client.Close()
		<-done
		return ctx.Err()
	}
}

// shellQuote quotes s for a POSIX shell.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
