// Package server provides the HTTP surface of the voice backend.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import (
	"github.com/avicente/clipdraft/internal/pipeline"
	"github.com/avicente/clipdraft/internal/provider"
)

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// SchemaVersion identifies the shape of this payload for clients.
	SchemaVersion int    `json:"schemaVersion"`
	InstanceID    string `json:"instanceId"`
	TimestampUTC  string `json:"timestampUtc"`
	// Status is "ok" once the STT engine is warm, "loading" before.
	Status   string `json:"status"`
	Ready    bool   `json:"ready"`
	ASRReady bool   `json:"asrReady"`
	TTSReady bool   `json:"ttsReady"`
	Version  string `json:"version"`
	// ErrorCode and Message carry the most recent probe failure, if any.
	ErrorCode string                `json:"errorCode,omitempty"`
	Message   string                `json:"message,omitempty"`
	ASR       provider.EngineStatus `json:"asr"`
	TTS       provider.EngineStatus `json:"tts"`
}

// TranscriptionResponse is the HTTP response for a successful /asr call.
type TranscriptionResponse struct {
	Text      string `json:"text"`
	RequestID string `json:"requestId"`
}

// SynthesisRequest is the HTTP request body for /tts.
type SynthesisRequest struct {
	Text      string `json:"text" validate:"required"`
	RequestID string `json:"requestId"`
	Engine    string `json:"engine"`
	ModelID   string `json:"modelId"`
	// VoiceID wins over the legacy Voice alias when both are set.
	VoiceID    string `json:"voiceId"`
	Voice      string `json:"voice"`
	Format     string `json:"format"`
	SampleRate int    `json:"sampleRate"`
}

// DiagnosticResponse is the HTTP response for the /tts/test and /stt/test
// endpoints.
type DiagnosticResponse struct {
	OK      bool   `json:"ok"`
	Engine  string `json:"engine"`
	ModelID string `json:"modelId"`
	WallMs  int64  `json:"wallMs"`
	Error   string `json:"error,omitempty"`
}

// BenchResponse is the HTTP response for /stt/bench.
type BenchResponse struct {
	AudioSeconds float64 `json:"audioSeconds"`
	WallMs       int64   `json:"wallMs"`
	// RTF is the real-time factor: wall time divided by audio duration.
	RTF                 float64 `json:"rtf"`
	StartupMs           int64   `json:"startupMs"`
	ProcessWorkingSetMb float64 `json:"processWorkingSetMb"`
	Device              string  `json:"device"`
}

// ShutdownResponse is the HTTP response for /shutdown.
type ShutdownResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// GenerationOverrides optionally replaces parts of the default generation
// engine configuration for one job.
type GenerationOverrides struct {
	BaseURL       *string  `json:"baseUrl"`
	Model         *string  `json:"model"`
	Temperature   *float64 `json:"temperature"`
	MaxInputChars *int     `json:"maxInputChars"`
	TimeoutSec    *int     `json:"timeoutSec"`
}

// StartJobRequest is the HTTP request body for creating a YouTube job.
type StartJobRequest struct {
	VideoURL     string               `json:"videoUrl" validate:"required"`
	LanguageHint string               `json:"languageHint"`
	KeepAudio    bool                 `json:"keepAudio"`
	ASREngine    string               `json:"asrEngine"`
	ASRModel     string               `json:"asrModel"`
	DraftTone    string               `json:"draftTone"`
	Generation   *GenerationOverrides `json:"generation"`
}

// JobStatusResponse is the HTTP response for /youtube/status.
type JobStatusResponse struct {
	DependencyStatus pipeline.DependencyStatus `json:"dependencyStatus"`
	ActiveJobs       int                       `json:"activeJobs"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// ErrorCode is the stable code for programmatic handling.
	ErrorCode string `json:"errorCode"`
	RequestID string `json:"requestId,omitempty"`
	// EngineStatus is attached when a provider probe caused the failure.
	EngineStatus *provider.EngineStatus `json:"engineStatus,omitempty"`
	Message      string                 `json:"message,omitempty"`
}
