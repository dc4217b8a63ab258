package provider

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// manifestChunkSize is the read granularity for hashing model artifacts.
const manifestChunkSize = 1 << 20

// ManifestEntry names one expected model artifact and its digest.
type ManifestEntry struct {
	Path   string `json:"path"`
	SHA256 string `json:"sha256"`
}

// Manifest lists the artifacts a model directory must contain.
type Manifest struct {
	Files []ManifestEntry `json:"files"`
}

// LoadManifest reads and parses <dir>/manifest.json.
func LoadManifest(dir string) (*Manifest, error) {
	raw, err := os.ReadFile(filepath.Join(dir, "manifest.json")) // #nosec G304 - dir comes from configuration
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &m, nil
}

// VerifyManifest checks every manifest entry against the files in dir and
// returns the list of missing or mismatched paths. Entries with unsafe paths
// or disallowed suffixes fail verification outright.
func VerifyManifest(dir string, m *Manifest, allowUnsafe bool) (missing []string, err error) {
	for _, entry := range m.Files {
		if err := validateManifestPath(entry.Path, allowUnsafe); err != nil {
			return nil, fmt.Errorf("manifest entry %q: %w", entry.Path, err)
		}

		full := filepath.Join(dir, filepath.FromSlash(entry.Path))
		digest, hashErr := hashFile(full)
		if hashErr != nil {
			missing = append(missing, entry.Path)
			continue
		}
		if digest != strings.ToLower(strings.TrimSpace(entry.SHA256)) {
			missing = append(missing, entry.Path)
		}
	}
	return missing, nil
}

// validateManifestPath rejects absolute paths, traversal and pickle-style
// artifacts that can execute code on load.
func validateManifestPath(path string, allowUnsafe bool) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}
	if filepath.IsAbs(path) || strings.HasPrefix(path, "/") {
		return fmt.Errorf("absolute path not allowed")
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return fmt.Errorf("path traversal not allowed")
		}
	}
	ext := strings.ToLower(filepath.Ext(path))
	if (ext == ".pt" || ext == ".pth") && !allowUnsafe {
		return fmt.Errorf("unsafe artifact suffix %s (set ST_ALLOW_UNSAFE_ARTIFACTS to permit)", ext)
	}
	return nil
}

// hashFile computes the lowercase hex SHA-256 of a file in 1 MiB chunks.
func hashFile(path string) (string, error) {
	f, err := os.Open(path) // #nosec G304 - path validated against the manifest rules
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	buf := make([]byte, manifestChunkSize)
	for {
		n, readErr := f.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return "", readErr
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
