package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

// ErrS3NotConfigured is returned when S3 operations are attempted without
// proper configuration.
var ErrS3NotConfigured = errors.New("S3 storage is not configured")

// LocalStore implements ArtifactStore on local disk. Writes go through a
// temp-file rename so a crash mid-write never leaves a truncated artifact.
type LocalStore struct {
	root string
}

// NewLocalStore creates a LocalStore rooted at root, creating the directory
// if it does not exist.
func NewLocalStore(root string) (*LocalStore, error) {
	if root == "" {
		root = filepath.Join(os.TempDir(), "clipdraft")
	}
	if err := os.MkdirAll(root, 0750); err != nil {
		return nil, fmt.Errorf("create artifact root: %w", err)
	}
	return &LocalStore{root: root}, nil
}

// Root returns the artifact root directory.
func (s *LocalStore) Root() string {
	return s.root
}

// WriteArtifact writes data to path atomically.
func (s *LocalStore) WriteArtifact(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("create artifact directory: %w", err)
	}
	if err := renameio.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write artifact %s: %w", filepath.Base(path), err)
	}
	return nil
}

// MirrorDir is not supported by LocalStore and returns ErrS3NotConfigured.
func (s *LocalStore) MirrorDir(_ context.Context, _, _ string) error {
	return ErrS3NotConfigured
}
