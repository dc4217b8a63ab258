// Package bootstrap provides dependency initialization for the voice backend.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/avicente/clipdraft/internal/config"
	"github.com/avicente/clipdraft/internal/download"
	"github.com/avicente/clipdraft/internal/llm"
	"github.com/avicente/clipdraft/internal/pipeline"
	"github.com/avicente/clipdraft/internal/provider"
	"github.com/avicente/clipdraft/internal/server"
	"github.com/avicente/clipdraft/internal/storage"
)

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	Registry *provider.Registry
	Manager  *pipeline.Manager
	Handlers *server.Handlers
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(cfg *config.Config, logger *slog.Logger, version string) (*Dependencies, error) {
	store, err := initStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	ensureKokoroModels(cfg, logger)

	registry := provider.NewRegistry(cfg.ModelsRoot, cfg.Device,
		provider.WithAllowUnsafeArtifacts(cfg.AllowUnsafeArtifacts),
		provider.WithKokoroVariant(cfg.KokoroVariant),
	)

	completer := llm.NewClient(llm.WithCaptureMax(
		config.IntEnv("ST_YOUTUBE_LOG_CAPTURE_MAX_CHARS", 12000, 1000, 200000),
	))

	transcribe := func(ctx context.Context, audio []byte, engine, modelID, languageHint, requestID string) (string, error) {
		return registry.STT(engine, modelID).Transcribe(ctx, audio, languageHint)
	}

	manager, err := pipeline.NewManager(
		cfg.DataRoot,
		transcribe,
		completer,
		store,
		logger,
		pipeline.WithMirror(cfg.S3Enabled()),
	)
	if err != nil {
		return nil, fmt.Errorf("create job manager: %w", err)
	}

	handlers := server.NewHandlers(registry, manager, cfg, logger, server.WithVersion(version))

	// Warm the STT engine off the startup path so the first /asr request does
	// not pay the model load. Health reports "loading" until this finishes.
	go func() {
		result := registry.STT(cfg.STTEngine, cfg.STTModelID).InitProbe(false)
		if result.Ready {
			logger.Info("stt engine warm",
				slog.String("engine", cfg.STTEngine),
				slog.String("model_id", cfg.STTModelID),
				slog.Int64("startup_ms", result.StartupMs),
			)
		} else {
			logger.Warn("stt engine warm-up failed, will retry on first request",
				slog.String("engine", cfg.STTEngine),
				slog.String("error", result.LastError),
			)
		}
	}()

	return &Dependencies{
		Registry: registry,
		Manager:  manager,
		Handlers: handlers,
	}, nil
}

// ensureKokoroModels fetches missing kokoro artifacts when a model registry is
// present. Failure is not fatal: the TTS provider's probes report the missing
// files through /health instead.
func ensureKokoroModels(cfg *config.Config, logger *slog.Logger) {
	registryPath := filepath.Join(cfg.ModelsRoot, "model_registry.json")
	if _, err := os.Stat(registryPath); err != nil {
		logger.Info("no model registry, skipping model download",
			slog.String("path", registryPath),
		)
		return
	}

	dl := download.NewDownloader(logger)
	downloaded, err := dl.EnsureKokoro(
		filepath.Join(cfg.ModelsRoot, "kokoro"),
		cfg.KokoroVariant,
		registryPath,
		cfg.KokoroVariant,
		false,
	)
	if err != nil {
		logger.Warn("kokoro model download failed",
			slog.String("variant", cfg.KokoroVariant),
			slog.String("error", err.Error()),
		)
		return
	}
	if downloaded {
		logger.Info("kokoro model artifacts downloaded",
			slog.String("variant", cfg.KokoroVariant),
		)
	}
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(cfg *config.Config, logger *slog.Logger) (storage.ArtifactStore, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
			KeyPrefix:       "youtube",
		}
		s3Store, err := storage.NewS3Store(cfg.DataRoot, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 artifact mirroring configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStore(cfg.DataRoot)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("data_root", localStore.Root()),
	)
	return localStore, nil
}
