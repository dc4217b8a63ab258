// Package main provides the entry point for the voice backend server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/avicente/clipdraft/internal/bootstrap"
	"github.com/avicente/clipdraft/internal/config"
	"github.com/avicente/clipdraft/internal/server"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyFlags(cfg)

	// Create structured logger
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting voice backend",
		slog.String("version", version),
		slog.String("host", cfg.Host),
		slog.Int("port", cfg.Port),
		slog.String("stt_engine", cfg.STTEngine),
		slog.String("stt_model_id", cfg.STTModelID),
		slog.String("device", cfg.Device),
		slog.String("tts_engine", cfg.TTSEngine),
		slog.String("data_root", cfg.DataRoot),
		slog.Bool("s3_enabled", cfg.S3Enabled()),
	)

	// Initialize dependencies using bootstrap
	deps, err := bootstrap.NewDependencies(cfg, logger, version)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}

	router := server.NewRouter(deps.Handlers, logger, server.DefaultConfig())

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 300 * time.Second, // Allow for long transcriptions
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown handling
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening",
			slog.String("addr", srv.Addr),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server failed: %w", err)
		}
	}()

	// Wait for shutdown signal or error
	select {
	case sig := <-shutdownCh:
		logger.Info("received shutdown signal",
			slog.String("signal", sig.String()),
		)
	case err := <-errCh:
		return err
	}

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Info("shutting down server...")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	logger.Info("server stopped gracefully")
	return nil
}

// applyFlags layers CLI flags under the environment: a flag takes effect only
// when its corresponding environment variable is unset, so deployments that
// configure through the environment cannot be overridden from the command
// line by accident.
func applyFlags(cfg *config.Config) {
	port := flag.Int("port", cfg.Port, "listen port (env ST_PORT)")
	sttEngine := flag.String("stt-engine", cfg.STTEngine, "speech-to-text engine (env ST_STT_ENGINE)")
	sttModelID := flag.String("stt-model-id", cfg.STTModelID, "speech-to-text model id or path (env ST_STT_MODEL_ID)")
	sttLanguage := flag.String("stt-language", cfg.STTLanguage, "transcription language hint (env ST_STT_LANGUAGE)")
	device := flag.String("device", cfg.Device, "compute device, cpu or cuda (env ST_DEVICE)")
	ttsEngine := flag.String("tts-engine", cfg.TTSEngine, "text-to-speech engine (env ST_TTS_ENGINE)")
	ttsModelID := flag.String("tts-model-id", cfg.TTSModelID, "text-to-speech model id (env ST_TTS_MODEL_ID)")
	ttsVoiceID := flag.String("tts-voice-id", cfg.TTSVoiceID, "text-to-speech voice id (env ST_TTS_VOICE_ID)")
	kokoroVariant := flag.String("kokoro-variant", cfg.KokoroVariant, "kokoro model variant (env ST_KOKORO_VARIANT)")
	flag.Parse()

	envByFlag := map[string]string{
		"port":           "ST_PORT",
		"stt-engine":     "ST_STT_ENGINE",
		"stt-model-id":   "ST_STT_MODEL_ID",
		"stt-language":   "ST_STT_LANGUAGE",
		"device":         "ST_DEVICE",
		"tts-engine":     "ST_TTS_ENGINE",
		"tts-model-id":   "ST_TTS_MODEL_ID",
		"tts-voice-id":   "ST_TTS_VOICE_ID",
		"kokoro-variant": "ST_KOKORO_VARIANT",
	}

	flag.Visit(func(f *flag.Flag) {
		if _, envSet := os.LookupEnv(envByFlag[f.Name]); envSet {
			return
		}
		switch f.Name {
		case "port":
			cfg.Port = *port
		case "stt-engine":
			cfg.STTEngine = *sttEngine
		case "stt-model-id":
			cfg.STTModelID = *sttModelID
		case "stt-language":
			cfg.STTLanguage = config.NormalizeLanguage(*sttLanguage)
		case "device":
			cfg.Device = *device
		case "tts-engine":
			cfg.TTSEngine = *ttsEngine
		case "tts-model-id":
			cfg.TTSModelID = *ttsModelID
		case "tts-voice-id":
			cfg.TTSVoiceID = *ttsVoiceID
		case "kokoro-variant":
			cfg.KokoroVariant = *kokoroVariant
		}
	})
}
