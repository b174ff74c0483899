package remote

import (
	"context"
	"fmt"
	"io"
	"time"
)

// Streams receives the output of a remote operation.
type Streams struct {
	Stdout io.Writer
	Stderr io.Writer
}

// Discard drops all output.
func Discard() Streams {
	return Streams{Stdout: io.Discard, Stderr: io.Discard}
}

// Transport executes commands on the VM and moves files to and from it.
// Every method blocks until the operation finished and returns a non-nil
// error when it did not succeed.
type Transport interface {
	// Run executes a shell command line in the remote user's home.
	Run(ctx context.Context, cmd string, out Streams) error

	// Upload copies a local file or directory into remoteDir.
	Upload(ctx context.Context, localPath, remoteDir string, out Streams) error

	// Download copies remotePath (file or directory) into localDir.
	Download(ctx context.Context, remotePath, localDir string, out Streams) error
}

// WithTimeout prefixes cmd with the coreutils timeout wrapper. Durations
// below one second leave cmd unchanged.
func WithTimeout(cmd string, d time.Duration) string {
	secs := int64(d / time.Second)
	if secs <= 0 {
		return cmd
	}
	return fmt.Sprintf("timeout %ds %s", secs, cmd)
}
