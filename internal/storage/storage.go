// Package storage persists pipeline artifacts. It defines the ArtifactStore
// interface (port) and implementations for local disk and an optional S3
// mirror of finished job directories.
package storage

import "context"

// ArtifactStore writes pipeline artifacts and optionally mirrors finished
// output directories to S3.
type ArtifactStore interface {
	// WriteArtifact writes data to path atomically, creating parent
	// directories as needed. Readers never observe a partial file.
	WriteArtifact(path string, data []byte) error

	// MirrorDir uploads every regular file under dir to S3, keyed by the
	// path relative to root. Returns ErrS3NotConfigured when no S3 backend
	// is available.
	MirrorDir(ctx context.Context, root, dir string) error
}
