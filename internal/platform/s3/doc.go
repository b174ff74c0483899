// Package s3 uploads finished audiobooks to S3-compatible object storage.
//
// A custom endpoint (MinIO, Hetzner Object Storage, Cloudflare R2) is used
// with path-style addressing; without one the AWS defaults apply.
package s3
