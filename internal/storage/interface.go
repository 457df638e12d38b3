package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned by Read when the key does not exist.
var ErrNotFound = errors.New("asset not found")

// AssetStore holds the bytes of one asset kind (originals or thumbnails) under flat keys.
type AssetStore interface {
	// Write stores an object. A partially written object is never visible under key.
	Write(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Read opens an object for streaming. Returns ErrNotFound for unknown keys.
	Read(ctx context.Context, key string) (io.ReadCloser, error)

	// Exists checks if an object exists
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes an object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// List returns every key in the store.
	List(ctx context.Context) ([]string, error)
}

// Writable is implemented by stores that can report whether they accept writes.
type Writable interface {
	IsWritable(ctx context.Context) error
}
