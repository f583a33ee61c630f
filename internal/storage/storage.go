// Package storage defines where exported corpus files are written.
// Implementations live in the local, gcs, and memory subpackages.
package storage

import (
	"context"
	"io"
)

// BlobStore writes one object and returns a URI that identifies it.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}
