// Package blobstore keeps version payloads in S3-compatible object storage.
// Metadata lives in Postgres; a FileVersion refers to its payload by key.
package blobstore

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned by Get when no object exists under the key.
var ErrNotFound = errors.New("blob not found")

// Store is the blob store used by the file service.
type Store interface {
	// Put streams exactly size bytes from body under key. body is read once.
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	// Get opens the payload for reading. The caller must close it.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes the object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// PresignGet returns a time-limited URL that downloads the object as
	// an attachment named filename.
	PresignGet(ctx context.Context, key string, filename string, expiry time.Duration) (string, error)
}
