package storage

import (
	"context"
	"io"
)

// BlobStore abstracts where uploaded bytes live. The metadata repository
// keeps the key; implementations only move bytes.
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes the blob. Deleting a key that is already gone is not
	// an error.
	Delete(ctx context.Context, key string) error
}
