// Package storage defines the interfaces for a blob storage provider.
// This abstraction keeps the merge store independent of where its document
// lives (Google Cloud Storage, the local filesystem, or memory).
package storage

import (
	"context"
	"errors"
)

// ErrNotFound signals that the requested object does not exist. A first run
// has no previous document; callers treat this as an empty starting state.
var ErrNotFound = errors.New("storage: object not found")

// Provider defines the common interface for a blob storage provider.
type Provider interface {
	// Save uploads data to a specified object path/key in the blob store.
	Save(ctx context.Context, objectName string, data []byte) error
	// Load reads an object back, returning ErrNotFound when it is absent.
	Load(ctx context.Context, objectName string) ([]byte, error)
}

// NoOpProvider is a storage provider that performs no operations. It is
// useful for dry runs where records are fetched but not persisted.
type NoOpProvider struct{}

// Save for NoOpProvider does nothing and always returns nil.
func (n *NoOpProvider) Save(_ context.Context, _ string, _ []byte) error {
	return nil
}

// Load for NoOpProvider always reports a missing object.
func (n *NoOpProvider) Load(_ context.Context, _ string) ([]byte, error) {
	return nil, ErrNotFound
}
