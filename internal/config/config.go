// Package config provides configuration loading from flags and environment variables.
package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/sethvargo/go-envconfig"
)

// Config holds all configuration for the application. Every CLI flag has a
// corresponding environment variable; when both are present the environment
// variable wins.
type Config struct {
	// Server settings
	Port int    `env:"ST_PORT, default=8001" json:"port"`
	Host string `env:"ST_HOST, default=127.0.0.1" json:"host"`

	// Speech-to-text settings
	STTEngine   string `env:"ST_STT_ENGINE, default=faster-whisper" json:"stt_engine"`
	STTModelID  string `env:"ST_STT_MODEL_ID, default=base" json:"stt_model_id"`
	STTLanguage string `env:"ST_STT_LANGUAGE, default=en" json:"stt_language"`
	Device      string `env:"ST_DEVICE, default=cpu" json:"device"`

	// Text-to-speech settings
	TTSEngine     string `env:"ST_TTS_ENGINE, default=kokoro" json:"tts_engine"`
	TTSModelID    string `env:"ST_TTS_MODEL_ID, default=kokoro" json:"tts_model_id"`
	TTSVoiceID    string `env:"ST_TTS_VOICE_ID, default=af_sky" json:"tts_voice_id"`
	KokoroVariant string `env:"ST_KOKORO_VARIANT, default=v1.0" json:"kokoro_variant"`

	// Storage settings
	DataRoot   string `env:"ST_DATA_ROOT, default=data" json:"data_root"`
	ModelsRoot string `env:"ST_MODELS_ROOT, default=models" json:"models_root"`

	// Generation engine settings (OpenAI-compatible chat completion endpoint)
	GenerationBaseURL     string  `env:"ST_GENERATION_BASE_URL, default=http://127.0.0.1:1234" json:"generation_base_url"`
	GenerationModel       string  `env:"ST_GENERATION_MODEL, default=local-model" json:"generation_model"`
	GenerationTemperature float64 `env:"ST_GENERATION_TEMPERATURE, default=0.3" json:"generation_temperature"`
	GenerationMaxInput    int     `env:"ST_GENERATION_MAX_INPUT_CHARS, default=24000" json:"generation_max_input_chars"`
	GenerationTimeoutSec  int     `env:"ST_GENERATION_TIMEOUT_SEC, default=120" json:"generation_timeout_sec"`

	// Optional S3 artifact mirroring
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Model artifact safety toggle for .pt/.pth files in voice manifests
	AllowUnsafeArtifacts bool `env:"ST_ALLOW_UNSAFE_ARTIFACTS" json:"allow_unsafe_artifacts"`

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 artifact mirroring is configured.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// Load reads configuration from environment variables using go-envconfig.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.STTLanguage = NormalizeLanguage(cfg.STTLanguage)
	return cfg, nil
}

// NormalizeLanguage maps a user-supplied language hint to the value passed to
// STT providers: blank means "en", "auto"/"detect" mean provider default
// (empty), anything else is lowercased and trimmed.
func NormalizeLanguage(raw string) string {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	switch normalized {
	case "":
		return "en"
	case "auto", "detect":
		return ""
	default:
		return normalized
	}
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// IntEnv reads an integer environment variable clamped to [minValue, maxValue].
// A missing or unparsable value silently falls back to the default; out-of-range
// values are clamped rather than rejected, so a bad knob never prevents startup.
func IntEnv(name string, defaultValue, minValue, maxValue int) int {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue
	}
	if parsed < minValue {
		return minValue
	}
	if parsed > maxValue {
		return maxValue
	}
	return parsed
}

// BoolEnv reports whether an environment variable holds a truthy value.
// Recognised truthy values are "1", "true", "yes" and "on" (case-insensitive).
func BoolEnv(name string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(name))) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
