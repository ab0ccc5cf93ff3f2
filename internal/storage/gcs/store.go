// Package gcs provides a document store backed by Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	gstorage "cloud.google.com/go/storage"

	"github.com/xZoluGames/skinfetch/internal/storage"
)

// Config captures the parameters required to connect to GCS.
type Config struct {
	Bucket string
}

// Store reads and writes documents in a configured GCS bucket.
type Store struct {
	client *gstorage.Client
	bucket string
}

// New creates a GCS-backed store. The client is injected so callers control
// credentials and lifetime.
func New(client *gstorage.Client, cfg Config) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &Store{client: client, bucket: cfg.Bucket}, nil
}

// Save uploads data to the configured bucket.
func (s *Store) Save(ctx context.Context, objectName string, data []byte) error {
	if strings.TrimSpace(objectName) == "" {
		return fmt.Errorf("object name is required")
	}
	writer := s.client.Bucket(s.bucket).Object(objectName).NewWriter(ctx)
	writer.ContentType = "application/json"
	if _, err := writer.Write(data); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return fmt.Errorf("write object: %w (close writer: %v)", err, closeErr)
		}
		return fmt.Errorf("write object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	return nil
}

// Load reads an object back, mapping a missing object to storage.ErrNotFound.
func (s *Store) Load(ctx context.Context, objectName string) ([]byte, error) {
	if strings.TrimSpace(objectName) == "" {
		return nil, fmt.Errorf("object name is required")
	}
	reader, err := s.client.Bucket(s.bucket).Object(objectName).NewReader(ctx)
	if err != nil {
		if errors.Is(err, gstorage.ErrObjectNotExist) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("open object: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read object: %w", err)
	}
	return data, nil
}
