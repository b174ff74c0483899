package gcloud

import (
	"context"
	"fmt"

	"github.com/imamik/ebookcast/internal/config"
	"github.com/imamik/ebookcast/internal/remote"
)

// Transport reaches a Compute Engine VM through gcloud compute ssh/scp.
type Transport struct {
	cli     *CLI
	project string
	zone    string
	target  string
}

var _ remote.Transport = (*Transport)(nil)

// NewTransport creates a transport for the VM described by rec.
func NewTransport(cli *CLI, rec config.Record) *Transport {
	return &Transport{
		cli:     cli,
		project: rec.ProjectID,
		zone:    rec.Zone,
		target:  rec.Target(),
	}
}

// Run executes cmd over gcloud compute ssh.
func (t *Transport) Run(ctx context.Context, cmd string, out remote.Streams) error {
	args := []string{"compute", "ssh", t.target, "--zone", t.zone}
	args = append(args, t.projectArgs()...)
	args = append(args, "--", cmd)
	if err := t.cli.run(ctx, out.Stdout, out.Stderr, args...); err != nil {
		return fmt.Errorf("remote command failed: %w", err)
	}
	return nil
}

// Upload copies localPath into remoteDir.
func (t *Transport) Upload(ctx context.Context, localPath, remoteDir string, out remote.Streams) error {
	if err := t.scp(ctx, out, localPath, t.target+":"+remoteDir); err != nil {
		return fmt.Errorf("upload of %s failed: %w", localPath, err)
	}
	return nil
}

// Download copies remotePath into localDir.
func (t *Transport) Download(ctx context.Context, remotePath, localDir string, out remote.Streams) error {
	if err := t.scp(ctx, out, t.target+":"+remotePath, localDir); err != nil {
		return fmt.Errorf("download of %s failed: %w", remotePath, err)
	}
	return nil
}

func (t *Transport) scp(ctx context.Context, out remote.Streams, src, dst string) error {
	args := []string{"compute", "scp", "--zone", t.zone}
	args = append(args, t.projectArgs()...)
	args = append(args, "--recurse", src, dst)
	return t.cli.run(ctx, out.Stdout, out.Stderr, args...)
}

func (t *Transport) projectArgs() []string {
	if t.project == "" {
		return nil
	}
	return []string{"--project", t.project}
}
