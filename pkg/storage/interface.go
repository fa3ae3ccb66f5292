package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned by Read when the key does not exist.
	ErrNotFound = errors.New("storage: object not found")
	// ErrInvalidKey is returned for empty, absolute or escaping keys.
	ErrInvalidKey = errors.New("storage: invalid key")
)

// FileInfo describes one stored object.
type FileInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// Storage keeps scene documents, thumbnails and overlay images. Keys are
// slash-separated, e.g. "scenes/01J0.json".
type Storage interface {
	// Write stores r under key. size is -1 when unknown.
	Write(ctx context.Context, key string, r io.Reader, size int64, contentType string) error

	// Read opens key. The caller closes the returned reader.
	Read(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// List returns every object whose key starts with prefix, ordered by key.
	List(ctx context.Context, prefix string) ([]FileInfo, error)

	Exists(ctx context.Context, key string) (bool, error)
}

// cleanKey normalises key and rejects keys that would leave the store root.
func cleanKey(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return "", ErrInvalidKey
	}
	k := path.Clean(key)
	if k == "." || k == ".." || strings.HasPrefix(k, "../") {
		return "", ErrInvalidKey
	}
	return k, nil
}
