package ssh

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/imamik/ebookcast/internal/remote"
)

// Upload copies a local file or directory into remoteDir, creating it if needed.
func (c *Client) Upload(ctx context.Context, localPath, remoteDir string, out remote.Streams) error {
	info, err := os.Stat(localPath)
	if err != nil {
		return fmt.Errorf("upload of %s failed: %w", localPath, err)
	}

	if !info.IsDir() {
		// #nosec G304
		f, err := os.Open(localPath)
		if err != nil {
			return fmt.Errorf("upload of %s failed: %w", localPath, err)
		}
		defer func() { _ = f.Close() }()

		dst := path.Join(remoteDir, filepath.Base(localPath))
		cmd := fmt.Sprintf("mkdir -p %s && cat > %s", shellQuote(remoteDir), shellQuote(dst))
		if err := c.exec(ctx, cmd, f, out.Stdout, out.Stderr); err != nil {
			return fmt.Errorf("upload of %s failed: %w", localPath, err)
		}
		return nil
	}

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(writeTar(pw, localPath))
	}()
	defer func() { _ = pr.Close() }()

	cmd := fmt.Sprintf("mkdir -p %s && tar -xf - -C %s", shellQuote(remoteDir), shellQuote(remoteDir))
	if err := c.exec(ctx, cmd, pr, out.Stdout, out.Stderr); err != nil {
		return fmt.Errorf("upload of %s failed: %w", localPath, err)
	}
	return nil
}

// Download copies remotePath into localDir as a tar stream.
func (c *Client) Download(ctx context.Context, remotePath, localDir string, out remote.Streams) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	pr, pw := io.Pipe()
	extracted := make(chan error, 1)
	go func() {
		err := readTar(pr, localDir)
		if err != nil {
			pr.CloseWithError(err)
			// The remote tar blocks once its output is no longer read.
			cancel()
		} else {
			// tar pads its output past the end-of-archive marker.
			_, _ = io.Copy(io.Discard, pr)
		}
		extracted <- err
	}()

	cmd := fmt.Sprintf("tar -C %s -cf - %s", shellQuote(path.Dir(remotePath)), shellQuote(path.Base(remotePath)))
	runErr := c.exec(runCtx, cmd, nil, pw, out.Stderr)
	pw.CloseWithError(runErr)
	extractErr := <-extracted

	// A cancelled command with a live ctx means extraction aborted it.
	aborted := errors.Is(runErr, context.Canceled) && ctx.Err() == nil
	if runErr != nil && !aborted {
		return fmt.Errorf("download of %s failed: %w", remotePath, runErr)
	}
	if extractErr != nil {
		return fmt.Errorf("download of %s failed: %w", remotePath, extractErr)
	}
	return nil
}

// writeTar archives dir with its base name as the top-level entry.
func writeTar(w io.Writer, dir string) error {
	tw := tar.NewWriter(w)
	parent := filepath.Dir(dir)

	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() && !info.IsDir() {
			return nil
		}

		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(parent, p)
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if info.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		// #nosec G304
		f, err := os.Open(p)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return err
	}
	return tw.Close()
}

// readTar extracts regular files and directories from r into dir.
func readTar(r io.Reader, dir string) error {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read archive: %w", err)
		}

		if path.Clean("/"+hdr.Name) == "/" {
			continue
		}
		target, err := safeJoin(dir, hdr.Name)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeFile(target, tr, hdr.FileInfo().Mode().Perm()); err != nil {
				return err
			}
		}
	}
}

func writeFile(target string, r io.Reader, perm fs.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	// #nosec G304
	f, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm|0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// safeJoin resolves an archive entry below dir and rejects entries escaping it.
func safeJoin(dir, name string) (string, error) {
	clean := path.Clean("/" + name)
	if strings.Contains(name, "\\") {
		return "", fmt.Errorf("invalid archive entry %q", name)
	}
	target := filepath.Join(dir, filepath.FromSlash(clean))
	if !strings.HasPrefix(target, filepath.Clean(dir)+string(os.PathSeparator)) {
		return "", fmt.Errorf("archive entry %q escapes %s", name, dir)
	}
	return target, nil
}
