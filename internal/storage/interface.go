package storage

import (
	"context"
	"io"
)

// ObjectStorage is the subset of object-store operations the Markdown mirror needs.
type ObjectStorage interface {
	// Upload stores an object under key.
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Delete removes the object under key. Missing objects are not an error.
	Delete(ctx context.Context, key string) error

	// GetURL returns the URL for accessing an object.
	GetURL(key string) string

	// EnsureBucket creates the bucket when it is missing.
	EnsureBucket(ctx context.Context) error
}
