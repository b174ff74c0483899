package ssh

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/imamik/ebookcast/internal/remote"
)

// generateTestKey returns a PEM encoded ed25519 private key and its public key.
func generateTestKey(t *testing.T) ([]byte, ssh.PublicKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	block, err := ssh.MarshalPrivateKey(priv, "")
	require.NoError(t, err)

	sshPub, err := ssh.NewPublicKey(pub)
	require.NoError(t, err)
	return pem.EncodeToMemory(block), sshPub
}

// startTestServer runs an SSH server on localhost that executes commands with sh.
func startTestServer(t *testing.T) *Config {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	clientKey, clientPub := generateTestKey(t)
	_, hostPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	hostSigner, err := ssh.NewSignerFromKey(hostPriv)
	require.NoError(t, err)

	cfg := &ssh.ServerConfig{
		PublicKeyCallback: func(_ ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if string(key.Marshal()) == string(clientPub.Marshal()) {
				return nil, nil
			}
			return nil, errors.New("unknown key")
		},
	}
	cfg.AddHostKey(hostSigner)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go serveConn(conn, cfg)
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return &Config{
		Host:       "127.0.0.1",
		Port:       addr.Port,
		User:       "tester",
		PrivateKey: clientKey,
		MaxRetries: 1,
		RetryDelay: 10 * time.Millisecond,
	}
}

func serveConn(conn net.Conn, cfg *ssh.ServerConfig) {
	_, chans, reqs, err := ssh.NewServerConn(conn, cfg)
	if err != nil {
		return
	}
	go ssh.DiscardRequests(reqs)

	for newCh := range chans {
		if newCh.ChannelType() != "session" {
			_ = newCh.Reject(ssh.UnknownChannelType, "unsupported")
			continue
		}
		ch, chReqs, err := newCh.Accept()
		if err != nil {
			continue
		}
		go serveSession(ch, chReqs)
	}
}

func serveSession(ch ssh.Channel, reqs <-chan *ssh.Request) {
	defer func() { _ = ch.Close() }()

	for req := range reqs {
		if req.Type != "exec" {
			_ = req.Reply(false, nil)
			continue
		}
		var payload struct{ Command string }
		if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
			_ = req.Reply(false, nil)
			return
		}
		_ = req.Reply(true, nil)

		cmd := exec.Command("sh", "-c", payload.Command)
		cmd.Stdin = ch
		cmd.Stdout = ch
		cmd.Stderr = ch.Stderr()

		status := 0
		if err := cmd.Run(); err != nil {
			status = 1
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				status = exitErr.ExitCode()
			}
		}
		_, _ = ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{uint32(status)}))
		return
	}
}

func TestNewClient_Validation(t *testing.T) {
	key, _ := generateTestKey(t)

	tests := []struct {
		name string
		cfg  *Config
		want string
	}{
		{"nil config", nil, "config cannot be nil"},
		{"empty host", &Config{User: "root", PrivateKey: key}, "config host cannot be empty"},
		{"empty user", &Config{Host: "10.0.0.1", PrivateKey: key}, "config user cannot be empty"},
		{"empty key", &Config{Host: "10.0.0.1", User: "root"}, "config private key cannot be empty"},
		{"invalid key", &Config{Host: "10.0.0.1", User: "root", PrivateKey: []byte("nope")}, "failed to parse private key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClient(tt.cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestNewClient_Defaults(t *testing.T) {
	key, _ := generateTestKey(t)
	cfg := &Config{Host: "10.0.0.1", User: "root", PrivateKey: key}

	client, err := NewClient(cfg)
	require.NoError(t, err)

	assert.Equal(t, defaultPort, client.config.Port)
	assert.Equal(t, defaultDialTimeout, client.config.DialTimeout)
	assert.Equal(t, defaultMaxRetries, client.config.MaxRetries)
	assert.Equal(t, defaultRetryDelay, client.config.RetryDelay)
	assert.NotNil(t, client.config.HostKeyCallback)
	assert.Zero(t, cfg.Port, "caller config must not be mutated")
}

func TestClient_Run(t *testing.T) {
	client, err := NewClient(startTestServer(t))
	require.NoError(t, err)

	var stdout, stderr strings.Builder
	err = client.Run(context.Background(), "echo hello; echo oops >&2", remote.Streams{Stdout: &stdout, Stderr: &stderr})
	require.NoError(t, err)
	assert.Equal(t, "hello\n", stdout.String())
	assert.Equal(t, "oops\n", stderr.String())

	err = client.Run(context.Background(), "exit 3", remote.Discard())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "command failed on 127.0.0.1")
}

func TestClient_Run_Cancelled(t *testing.T) {
	client, err := NewClient(startTestServer(t))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	err = client.Run(ctx, "sleep 5", remote.Discard())
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestClient_UploadFile(t *testing.T) {
	client, err := NewClient(startTestServer(t))
	require.NoError(t, err)

	src := filepath.Join(t.TempDir(), "it's a book.epub")
	require.NoError(t, os.WriteFile(src, []byte("epub-bytes"), 0o644))
	remoteDir := filepath.Join(t.TempDir(), "input")

	require.NoError(t, client.Upload(context.Background(), src, remoteDir, remote.Discard()))

	got, err := os.ReadFile(filepath.Join(remoteDir, "it's a book.epub"))
	require.NoError(t, err)
	assert.Equal(t, "epub-bytes", string(got))
}

func TestClient_UploadDownloadDir(t *testing.T) {
	if _, err := exec.LookPath("tar"); err != nil {
		t.Skip("tar not available")
	}
	client, err := NewClient(startTestServer(t))
	require.NoError(t, err)

	src := filepath.Join(t.TempDir(), "output")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "book.m4b"), []byte("audio"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "nested", "log.txt"), []byte("log"), 0o644))

	remoteHome := t.TempDir()
	require.NoError(t, client.Upload(context.Background(), src, remoteHome, remote.Discard()))

	local := t.TempDir()
	require.NoError(t, client.Download(context.Background(), filepath.Join(remoteHome, "output"), local, remote.Discard()))

	got, err := os.ReadFile(filepath.Join(local, "output", "book.m4b"))
	require.NoError(t, err)
	assert.Equal(t, "audio", string(got))
	got, err = os.ReadFile(filepath.Join(local, "output", "nested", "log.txt"))
	require.NoError(t, err)
	assert.Equal(t, "log", string(got))
}

func TestClient_DownloadMissing(t *testing.T) {
	if _, err := exec.LookPath("tar"); err != nil {
		t.Skip("tar not available")
	}
	client, err := NewClient(startTestServer(t))
	require.NoError(t, err)

	err = client.Download(context.Background(), filepath.Join(t.TempDir(), "missing"), t.TempDir(), remote.Discard())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "download of")
}

func TestClient_DownloadExtractionFailureStopsRemote(t *testing.T) {
	if _, err := exec.LookPath("tar"); err != nil {
		t.Skip("tar not available")
	}
	client, err := NewClient(startTestServer(t))
	require.NoError(t, err)

	// Larger than the SSH window, so the remote tar cannot finish unread.
	remoteHome := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(remoteHome, "output"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(remoteHome, "output", "book.m4b"), make([]byte, 16<<20), 0o644))

	// A file where the output directory should go makes extraction fail.
	local := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(local, "output"), []byte("x"), 0o644))

	done := make(chan error, 1)
	go func() {
		done <- client.Download(context.Background(), filepath.Join(remoteHome, "output"), local, remote.Discard())
	}()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "download of")
		assert.NotErrorIs(t, err, context.Canceled)
	case <-time.After(10 * time.Second):
		t.Fatal("download did not return after extraction failed")
	}
}

func TestClient_ConnectFails(t *testing.T) {
	key, _ := generateTestKey(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	client, err := NewClient(&Config{
		Host:       "127.0.0.1",
		Port:       port,
		User:       "root",
		PrivateKey: key,
		MaxRetries: 1,
		RetryDelay: time.Millisecond,
	})
	require.NoError(t, err)

	err = client.Run(context.Background(), "true", remote.Discard())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to establish SSH connection")
}

func TestSafeJoin(t *testing.T) {
	dir := t.TempDir()

	got, err := safeJoin(dir, "output/a.m4b")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "output", "a.m4b"), got)

	got, err = safeJoin(dir, "../../etc/passwd")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "etc", "passwd"), got)

	_, err = safeJoin(dir, `..\evil`)
	require.Error(t, err)
}

func TestShellQuote(t *testing.T) {
	assert.Equal(t, `'plain'`, shellQuote("plain"))
	assert.Equal(t, `'it'"'"'s'`, shellQuote("it's"))
}
