// Package local implements a filesystem-backed document store.
package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xZoluGames/skinfetch/internal/storage"
)

// Config captures the parameters for the local filesystem store.
type Config struct {
	// BaseDir is the root directory where documents are stored.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// Store reads and writes documents under a base directory.
type Store struct {
	baseDir string
}

// New creates a filesystem-backed store, creating the base directory when it
// is missing and verifying it is writable.
func New(cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}

	info, err := os.Stat(cfg.BaseDir)
	switch {
	case err != nil && os.IsNotExist(err):
		if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("create base directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("stat base directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	testFile := filepath.Join(cfg.BaseDir, ".writable_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	if err := os.Remove(testFile); err != nil {
		return nil, fmt.Errorf("clean up writability probe: %w", err)
	}

	return &Store{baseDir: cfg.BaseDir}, nil
}

// Save writes data to a file under the base directory, creating parent
// directories as needed.
func (s *Store) Save(_ context.Context, objectName string, data []byte) error {
	fullPath, err := s.resolve(objectName)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return fmt.Errorf("create parent directories: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0o600); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}

// Load reads a file back, mapping a missing file to storage.ErrNotFound.
func (s *Store) Load(_ context.Context, objectName string) ([]byte, error) {
	fullPath, err := s.resolve(objectName)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("read file: %w", err)
	}
	return data, nil
}

// resolve joins and cleans the object path, rejecting escapes from baseDir.
func (s *Store) resolve(objectName string) (string, error) {
	if strings.TrimSpace(objectName) == "" {
		return "", fmt.Errorf("object name is required")
	}
	cleanBase := filepath.Clean(s.baseDir)
	fullPath := filepath.Clean(filepath.Join(cleanBase, objectName))
	if !strings.HasPrefix(fullPath, cleanBase+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected")
	}
	return fullPath, nil
}
