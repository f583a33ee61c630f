// Package gcs uploads corpus exports to Google Cloud Storage.
package gcs

import (
	"context"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
)

// Config names the export bucket.
type Config struct {
	Bucket string
	// Metadata is attached to every uploaded export.
	Metadata map[string]string
}

// BlobStore uploads corpus exports to a GCS bucket.
type BlobStore struct {
	client   *storage.Client
	bucket   string
	metadata map[string]string
}

// New wraps an existing client.
func New(client *storage.Client, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("publish.gcs.bucket is required")
	}
	return &BlobStore{client: client, bucket: bucket, metadata: cfg.Metadata}, nil
}

// NewFromEnv builds a client from Application Default Credentials.
// The returned close function releases the client.
func NewFromEnv(ctx context.Context, cfg Config) (*BlobStore, func() error, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("create gcs client: %w", err)
	}
	store, err := New(client, cfg)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return store, client.Close, nil
}

// URI is the gs:// address of the export stored under objectName.
func (s *BlobStore) URI(objectName string) string {
	return fmt.Sprintf("gs://%s/%s", s.bucket, strings.TrimPrefix(objectName, "/"))
}

// PutObject streams one export into the bucket and returns its gs:// URI.
// A failed copy cancels the upload so no partial export is committed.
func (s *BlobStore) PutObject(ctx context.Context, objectName string, contentType string, r io.Reader) (string, error) {
	objectName = strings.TrimPrefix(strings.TrimSpace(objectName), "/")
	if objectName == "" {
		return "", fmt.Errorf("export object name is required")
	}
	uri := s.URI(objectName)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	w := s.client.Bucket(s.bucket).Object(objectName).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	if len(s.metadata) > 0 {
		w.Metadata = s.metadata
	}
	if _, err := io.Copy(w, r); err != nil {
		cancel()
		_ = w.Close()
		return "", fmt.Errorf("upload %s: %w", uri, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize %s: %w", uri, err)
	}
	return uri, nil
}
