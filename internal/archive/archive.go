// Package archive copies finished audiobooks to object storage.
//
// Targets are URLs of the form s3://bucket/prefix or gs://bucket/prefix.
// Objects keep the library layout below the prefix.
package archive

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/rs/zerolog"
)

// Supported target schemes.
const (
	SchemeS3  = "s3"
	SchemeGCS = "gs"
)

// Target is a parsed archive location.
type Target struct {
	Scheme string
	Bucket string
	Prefix string
}

// ParseTarget parses an s3:// or gs:// URL.
func ParseTarget(raw string) (Target, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Target{}, fmt.Errorf("invalid archive target %q: %w", raw, err)
	}
	if u.Scheme != SchemeS3 && u.Scheme != SchemeGCS {
		return Target{}, fmt.Errorf("invalid archive target %q: scheme must be s3 or gs", raw)
	}
	if u.Host == "" {
		return Target{}, fmt.Errorf("invalid archive target %q: missing bucket", raw)
	}
	return Target{
		Scheme: u.Scheme,
		Bucket: u.Host,
		Prefix: strings.Trim(u.Path, "/"),
	}, nil
}

// Key returns the object key for a slash-separated path relative to the
// audiobooks root.
func (t Target) Key(rel string) string {
	rel = strings.TrimPrefix(path.Clean("/"+rel), "/")
	if t.Prefix == "" {
		return rel
	}
	return t.Prefix + "/" + rel
}

func (t Target) String() string {
	if t.Prefix == "" {
		return fmt.Sprintf("%s://%s", t.Scheme, t.Bucket)
	}
	return fmt.Sprintf("%s://%s/%s", t.Scheme, t.Bucket, t.Prefix)
}

// Uploader stores a local file as an object.
type Uploader interface {
	Upload(ctx context.Context, bucket, key, localPath string) error
}

// Archiver uploads files below a target.
type Archiver struct {
	target   Target
	uploader Uploader
	logger   zerolog.Logger
}

// New creates an Archiver.
func New(target Target, uploader Uploader, logger zerolog.Logger) *Archiver {
	return &Archiver{target: target, uploader: uploader, logger: logger}
}

// Archive uploads localPath under rel and returns the object URL.
func (a *Archiver) Archive(ctx context.Context, rel, localPath string) (string, error) {
	key := a.target.Key(rel)
	dest := fmt.Sprintf("%s://%s/%s", a.target.Scheme, a.target.Bucket, key)

	a.logger.Info().Str("destination", dest).Msg("Archiving audiobook")
	if err := a.uploader.Upload(ctx, a.target.Bucket, key, localPath); err != nil {
		return "", fmt.Errorf("archive to %s failed: %w", dest, err)
	}
	return dest, nil
}
