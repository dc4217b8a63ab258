package server

import (
	"log/slog"
	"net/http"
)

// Config contains server configuration options.
type Config struct {
	// AllowedOrigins is the list of allowed CORS origins.
	AllowedOrigins []string
	// RequestIDPrefix is used when generating ids for requests that arrive
	// without an X-Request-Id header.
	RequestIDPrefix string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins:  []string{"*"},
		RequestIDPrefix: "req",
	}
}

// NewRouter creates a new HTTP router with all routes configured.
// It uses Go 1.22+ ServeMux with method-based routing.
func NewRouter(h *Handlers, logger *slog.Logger, cfg Config) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.Health)

	mux.HandleFunc("POST /asr", h.Transcribe)
	mux.HandleFunc("POST /tts", h.Synthesize)
	mux.HandleFunc("POST /tts/test", h.SynthesisTest)
	mux.HandleFunc("POST /stt/test", h.TranscriptionTest)
	mux.HandleFunc("POST /stt/bench", h.TranscriptionBench)
	mux.HandleFunc("POST /shutdown", h.Shutdown)

	mux.HandleFunc("POST /youtube/jobs", h.StartYouTubeJob)
	mux.HandleFunc("GET /youtube/jobs/{id}", h.GetYouTubeJob)
	mux.HandleFunc("POST /youtube/jobs/{id}/cancel", h.CancelYouTubeJob)
	mux.HandleFunc("GET /youtube/status", h.YouTubeStatus)

	// Apply middleware chain
	chain := ChainMiddleware(
		RecoveryMiddleware(logger),
		RequestIDMiddleware(cfg.RequestIDPrefix),
		LoggingMiddleware(logger),
		CORSMiddleware(cfg.AllowedOrigins),
	)

	return chain(mux)
}
