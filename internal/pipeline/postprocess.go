package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/imamik/ebookcast/internal/cover"
	"github.com/imamik/ebookcast/internal/library"
	"github.com/imamik/ebookcast/internal/util/naming"
)

// postProcess renames, tags and moves the converted audiobook into the
// library. Tagging and archiving are best effort.
func (d *Driver) postProcess(ctx context.Context, book library.Book) (string, error) {
	log := d.logger.With().Str("book", book.Name).Logger()
	_, tmpOut := d.scratchDirs()
	downloaded := filepath.Join(tmpOut, naming.OutputDir)

	src, err := findAudiobook(downloaded)
	if err != nil {
		return "", err
	}

	title := book.OutputName()
	fileName := title + ".m4b"
	renamed := filepath.Join(tmpOut, fileName)
	if err := os.Rename(src, renamed); err != nil {
		return "", fmt.Errorf("failed to rename %s: %w", filepath.Base(src), err)
	}

	if !d.opts.SkipTags {
		d.tag(ctx, book, renamed)
	}

	finalDir := filepath.Join(d.opts.AudiobooksRoot, filepath.FromSlash(book.OutputDir()))
	if err := os.MkdirAll(finalDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", finalDir, err)
	}
	final := filepath.Join(finalDir, fileName)
	if err := moveFile(renamed, final); err != nil {
		return "", err
	}

	if err := os.RemoveAll(downloaded); err != nil {
		log.Warn().Err(err).Msg("Failed to remove downloaded output")
	}

	if d.archiver != nil {
		dest, err := d.archiver.Archive(ctx, path.Join(book.OutputDir(), fileName), final)
		if err != nil {
			log.Warn().Err(err).Msg("Archiving failed")
		} else {
			log.Info().Str("destination", dest).Msg("Archived audiobook")
		}
	}

	return final, nil
}

func (d *Driver) tag(ctx context.Context, book library.Book, file string) {
	log := d.logger.With().Str("book", book.Name).Logger()
	title := book.OutputName()

	log.Info().Str("title", title).Msg("Updating metadata title")
	if err := d.tagger.SetTitle(file, title); err != nil {
		log.Warn().Err(err).Msg("Failed to update metadata")
	}

	if d.covers == nil {
		return
	}
	img, err := d.covers.Find(ctx, book.Name)
	if err != nil {
		if errors.Is(err, cover.ErrNotFound) {
			log.Info().Msg("No cover image found")
		} else {
			log.Warn().Err(err).Msg("Cover search failed")
		}
		return
	}

	log.Info().Str("url", img.URL).Str("format", img.Format.String()).Msg("Embedding cover")
	if err := d.tagger.SetCover(file, img); err != nil {
		log.Warn().Err(err).Msg("Failed to embed cover")
	}
}

// moveFile renames src to dst, copying across filesystems when needed.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	// #nosec G304
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer func() { _ = in.Close() }()

	// #nosec G304
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to copy audiobook to %s: %w", dst, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", dst, err)
	}
	return os.Remove(src)
}
