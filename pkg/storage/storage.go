// Package storage persists small documents (push subscriptions and similar
// operator state) behind a path-addressed interface. Paths use forward
// slashes and are interpreted relative to the backend's root; the local-disk
// and S3 backends are interchangeable.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound marks a read or delete of a path that holds no document.
// Callers distinguish it with errors.Is.
var ErrNotFound = errors.New("not found")

// Storage is the document store consumed by the repositories.
type Storage interface {
	// Read returns the document at path, or an error wrapping ErrNotFound.
	Read(ctx context.Context, path string) ([]byte, error)
	// Write stores data at path, creating or replacing the document.
	Write(ctx context.Context, path string, data []byte) error
	// Delete removes the document at path, or returns an error wrapping
	// ErrNotFound when there is none.
	Delete(ctx context.Context, path string) error
	// List returns the paths of the documents directly under prefix. An
	// absent prefix yields an empty list, not an error.
	List(ctx context.Context, prefix string) ([]string, error)
	// Exists reports whether a document is stored at path.
	Exists(ctx context.Context, path string) (bool, error)
}
