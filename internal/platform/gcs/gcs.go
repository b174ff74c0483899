// Package gcs uploads finished audiobooks to Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// Client wraps a storage client.
type Client struct {
	client *storage.Client
}

// NewClient creates a Client using Application Default Credentials unless
// options say otherwise.
func NewClient(ctx context.Context, opts ...option.ClientOption) (*Client, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &Client{client: client}, nil
}

// Close releases the underlying client.
func (c *Client) Close() error {
	return c.client.Close()
}

// BucketExists checks if a bucket exists and is accessible.
func (c *Client) BucketExists(ctx context.Context, bucketName string) (bool, error) {
	_, err := c.client.Bucket(bucketName).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrBucketNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check bucket %s: %w", bucketName, err)
	}
	return true, nil
}

// Upload streams the file at localPath to bucket/key.
func (c *Client) Upload(ctx context.Context, bucketName, key, localPath string) error {
	// #nosec G304
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer func() { _ = f.Close() }()

	w := c.client.Bucket(bucketName).Object(key).NewWriter(ctx)
	w.ContentType = "audio/mp4"

	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write gs://%s/%s: %w", bucketName, key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize gs://%s/%s: %w", bucketName, key, err)
	}
	return nil
}
