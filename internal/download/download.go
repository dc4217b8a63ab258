// Package download fetches missing model artifacts on startup. It reads a
// declarative model_registry.json, streams each file to disk with a size
// ceiling and SHA-256 verification, and regenerates the voice manifest
// afterwards. Nothing downloads implicitly; callers must invoke EnsureKokoro.
package download

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/renameio/v2"
)

const (
	// maxDownloadBytes is the hard per-file ceiling.
	maxDownloadBytes = 500 * 1024 * 1024
	chunkSize        = 256 * 1024
	connectTimeout   = 30 * time.Second
	defaultVariant   = "v1.0"
	userAgent        = "clipdraft-model-downloader/1.0"
)

// RegistryFile describes one downloadable artifact.
type RegistryFile struct {
	LocalName string `json:"localName"`
	URL       string `json:"url"`
	SHA256    string `json:"sha256"`
	SizeBytes int64  `json:"sizeBytes"`
}

type registryVariant struct {
	Files []RegistryFile `json:"files"`
}

type registry struct {
	Kokoro map[string]registryVariant `json:"kokoro"`
}

// Downloader streams registry artifacts to disk.
type Downloader struct {
	logger     *slog.Logger
	httpClient *http.Client
}

// NewDownloader creates a Downloader. The HTTP client timeout bounds the
// connection and headers; body streaming is bounded by the size ceiling.
func NewDownloader(logger *slog.Logger) *Downloader {
	return &Downloader{
		logger:     logger,
		httpClient: &http.Client{Timeout: 0, Transport: &http.Transport{ResponseHeaderTimeout: connectTimeout}},
	}
}

// ResolveKokoroFiles returns the file list for a kokoro variant from the
// registry at registryPath.
func ResolveKokoroFiles(registryPath, variant string) ([]RegistryFile, error) {
	raw, err := os.ReadFile(registryPath) // #nosec G304 - path comes from configuration
	if err != nil {
		return nil, fmt.Errorf("model registry not found: %w", err)
	}
	var reg registry
	if err := json.Unmarshal(raw, &reg); err != nil {
		return nil, fmt.Errorf("parse model registry: %w", err)
	}

	if variant == "" {
		variant = defaultVariant
	}
	chosen, ok := reg.Kokoro[variant]
	if !ok {
		available := make([]string, 0, len(reg.Kokoro))
		for k := range reg.Kokoro {
			available = append(available, k)
		}
		sort.Strings(available)
		return nil, fmt.Errorf("kokoro variant %q not in registry, available: %s", variant, strings.Join(available, ", "))
	}
	return chosen.Files, nil
}

// EnsureKokoro makes sure all kokoro model files for voiceID exist under
// voicesRoot, downloading missing ones. Returns true if anything was
// downloaded; the voice manifest is regenerated in that case.
func (d *Downloader) EnsureKokoro(voicesRoot, voiceID, registryPath, variant string, force bool) (bool, error) {
	files, err := ResolveKokoroFiles(registryPath, variant)
	if err != nil {
		return false, err
	}

	voiceDir := filepath.Join(voicesRoot, voiceID)
	downloadedAny := false

	for _, entry := range files {
		dest := filepath.Join(voiceDir, entry.LocalName)

		if info, statErr := os.Stat(dest); statErr == nil && !force {
			d.logger.Info("model file present", "path", dest, "size", formatBytes(info.Size()))
			continue
		}
		if entry.URL == "" {
			d.logger.Warn("no download URL, skipping", "file", entry.LocalName)
			continue
		}

		if err := d.downloadFile(entry.URL, dest, entry.SizeBytes, entry.SHA256); err != nil {
			return downloadedAny, err
		}
		downloadedAny = true
	}

	if downloadedAny {
		if err := WriteVoiceManifest(voiceDir, voiceID); err != nil {
			return true, err
		}
	}
	return downloadedAny, nil
}

// downloadFile streams url to dest in bounded chunks, verifying the size
// ceiling and expected digest. The write lands atomically so an interrupted
// download never leaves a corrupt artifact.
func (d *Downloader) downloadFile(url, dest string, expectedSize int64, expectedSHA256 string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0750); err != nil {
		return fmt.Errorf("create model directory: %w", err)
	}

	d.logger.Info("downloading model artifact", "url", url, "dest", dest)
	if expectedSize > 0 {
		d.logger.Info("expected size", "size", formatBytes(expectedSize))
	}

	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("network error downloading %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d downloading %s", resp.StatusCode, url)
	}

	total := resp.ContentLength
	if total <= 0 {
		total = expectedSize
	}
	if total > maxDownloadBytes {
		return fmt.Errorf("file exceeds safety limit: %s > %s", formatBytes(total), formatBytes(maxDownloadBytes))
	}

	pending, err := renameio.NewPendingFile(dest)
	if err != nil {
		return fmt.Errorf("create pending file: %w", err)
	}
	defer func() { _ = pending.Cleanup() }()

	hasher := sha256.New()
	buf := make([]byte, chunkSize)
	var written int64
	started := time.Now()
	lastLog := started

	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := pending.Write(buf[:n]); writeErr != nil {
				return fmt.Errorf("write download chunk: %w", writeErr)
			}
			hasher.Write(buf[:n])
			written += int64(n)
			if written > maxDownloadBytes {
				return fmt.Errorf("download exceeded safety limit at %s", formatBytes(written))
			}

			if now := time.Now(); now.Sub(lastLog) >= 5*time.Second {
				attrs := []any{"written", formatBytes(written)}
				if total > 0 {
					attrs = append(attrs, "percent", written*100/total)
				}
				d.logger.Info("download progress", attrs...)
				lastLog = now
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return fmt.Errorf("read download stream: %w", readErr)
		}
	}

	digest := hex.EncodeToString(hasher.Sum(nil))
	if expectedSHA256 != "" && digest != strings.ToLower(expectedSHA256) {
		return fmt.Errorf("SHA-256 mismatch for %s: expected %s, got %s", filepath.Base(dest), expectedSHA256, digest)
	}

	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("finalize download: %w", err)
	}

	elapsed := time.Since(started)
	d.logger.Info("download complete",
		"file", filepath.Base(dest),
		"size", formatBytes(written),
		"elapsed", elapsed.Round(100*time.Millisecond).String(),
		"sha256", digest,
	)
	return nil
}

type manifestEntry struct {
	Path   string `json:"path"`
	SHA256 string `json:"sha256"`
}

type voiceManifest struct {
	VoiceID        string          `json:"voiceId"`
	GeneratedAtUTC string          `json:"generatedAtUtc"`
	AutoDownloaded bool            `json:"autoDownloaded"`
	Files          []manifestEntry `json:"files"`
}

// WriteVoiceManifest regenerates <voiceDir>/manifest.json from the files on
// disk, skipping the manifest itself and leftover temp files.
func WriteVoiceManifest(voiceDir, voiceID string) error {
	var entries []manifestEntry
	err := filepath.WalkDir(voiceDir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || entry.Name() == "manifest.json" || strings.HasSuffix(entry.Name(), ".tmp") {
			return nil
		}
		raw, readErr := os.ReadFile(path) // #nosec G304 - path comes from our own walk
		if readErr != nil {
			return readErr
		}
		rel, relErr := filepath.Rel(voiceDir, path)
		if relErr != nil {
			return relErr
		}
		sum := sha256.Sum256(raw)
		entries = append(entries, manifestEntry{
			Path:   filepath.ToSlash(rel),
			SHA256: hex.EncodeToString(sum[:]),
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("scan voice directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

	manifest := voiceManifest{
		VoiceID:        voiceID,
		GeneratedAtUTC: time.Now().UTC().Format("2006-01-02T15:04:05Z"),
		AutoDownloaded: true,
		Files:          entries,
	}
	raw, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return err
	}
	if err := renameio.WriteFile(filepath.Join(voiceDir, "manifest.json"), append(raw, '\n'), 0644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// formatBytes pretty-prints a byte count.
func formatBytes(n int64) string {
	switch {
	case n >= 1<<30:
		return fmt.Sprintf("%.1f GB", float64(n)/(1<<30))
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
