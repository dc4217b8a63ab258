package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/avicente/clipdraft/internal/config"
	"github.com/avicente/clipdraft/internal/llm"
	"github.com/avicente/clipdraft/internal/pipeline"
	"github.com/avicente/clipdraft/internal/provider"
)

// maxUploadBytes caps the multipart form size accepted by /asr.
const maxUploadBytes = 64 << 20

// benchAudioSeconds is the synthetic audio length used by /stt/bench.
const benchAudioSeconds = 5.0

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	registry  *provider.Registry
	manager   *pipeline.Manager
	validator *validator.Validate
	logger    *slog.Logger

	version    string
	instanceID string
	device     string

	sttEngine   string
	sttModelID  string
	sttLanguage string
	ttsEngine   string
	ttsModelID  string
	ttsVoiceID  string

	generation llm.Config

	// exitFn is swapped out in tests so /shutdown does not kill the runner.
	exitFn func(code int)
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithVersion sets the version string reported by /health.
func WithVersion(version string) HandlerOption {
	return func(h *Handlers) {
		h.version = version
	}
}

// WithExitFunc overrides the process exit used by /shutdown.
func WithExitFunc(fn func(code int)) HandlerOption {
	return func(h *Handlers) {
		h.exitFn = fn
	}
}

// NewHandlers creates a new Handlers instance. The cfg values become the
// defaults for requests that omit engine, model or voice selections.
func NewHandlers(
	registry *provider.Registry,
	manager *pipeline.Manager,
	cfg *config.Config,
	logger *slog.Logger,
	opts ...HandlerOption,
) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		registry:    registry,
		manager:     manager,
		validator:   validator.New(),
		logger:      logger,
		version:     "dev",
		instanceID:  uuid.NewString(),
		device:      cfg.Device,
		sttEngine:   cfg.STTEngine,
		sttModelID:  cfg.STTModelID,
		sttLanguage: cfg.STTLanguage,
		ttsEngine:   cfg.TTSEngine,
		ttsModelID:  cfg.TTSModelID,
		ttsVoiceID:  cfg.TTSVoiceID,
		generation: llm.Config{
			BaseURL:       cfg.GenerationBaseURL,
			Model:         cfg.GenerationModel,
			Temperature:   cfg.GenerationTemperature,
			MaxInputChars: cfg.GenerationMaxInput,
			TimeoutSec:    cfg.GenerationTimeoutSec,
		},
		exitFn: os.Exit,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests. It reports cached probe state and
// never triggers a model warm-up itself.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	asr := provider.BuildEngineStatus(h.registry.STT(h.sttEngine, h.sttModelID), false)
	tts := provider.BuildEngineStatus(h.registry.TTS(h.ttsEngine, h.ttsModelID), false)

	status := "loading"
	if asr.Ready {
		status = "ok"
	}
	resp := HealthResponse{
		SchemaVersion: 1,
		InstanceID:    h.instanceID,
		TimestampUTC:  time.Now().UTC().Format("2006-01-02T15:04:05Z"),
		Status:        status,
		Ready:         asr.Ready,
		ASRReady:      asr.Ready,
		TTSReady:      tts.Ready,
		Version:       h.version,
		ASR:           asr,
		TTS:           tts,
	}
	if !asr.Ready && asr.LastError != "" {
		resp.ErrorCode = "stt_unavailable"
		resp.Message = asr.LastError
	}
	writeJSON(w, http.StatusOK, resp)
}

// Transcribe handles POST /asr requests. Audio arrives as a multipart form
// with the WAV payload in the "audio" or "file" field.
func (h *Handlers) Transcribe(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid multipart form", "invalid_request")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, _, err := r.FormFile("audio")
	if err != nil {
		file, _, err = r.FormFile("file")
	}
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "Missing 'audio' or 'file' multipart field.", "missing_audio")
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "failed to read audio upload", "invalid_request")
		return
	}

	requestID := r.FormValue("requestId")
	if requestID == "" {
		requestID = RequestIDFromContext(r.Context())
	}

	// Tiny uploads are silence from a mic that never opened; answer empty
	// text instead of burning an inference call.
	if len(data) < 100 {
		writeJSON(w, http.StatusOK, TranscriptionResponse{Text: "", RequestID: requestID})
		return
	}

	engine := firstNonBlank(r.FormValue("engine"), h.sttEngine)
	modelID := firstNonBlank(r.FormValue("modelId"), h.sttModelID)
	language := h.sttLanguage
	if raw := r.FormValue("language"); raw != "" {
		language = config.NormalizeLanguage(raw)
	}

	stt := h.registry.STT(engine, modelID)
	text, err := stt.Transcribe(r.Context(), data, language)
	if err != nil {
		if errors.Is(err, provider.ErrNotReady) {
			writeEngineUnavailable(w, r, provider.BuildEngineStatus(stt, false), "stt_unavailable", err)
			return
		}
		h.logger.Error("transcription failed",
			slog.String("engine", engine),
			slog.String("model_id", modelID),
			slog.String("error", err.Error()),
		)
		writeError(w, r, http.StatusInternalServerError, "transcription failed", "stt_failed")
		return
	}

	h.logger.Info("transcription served",
		slog.String("session_id", r.FormValue("sessionId")),
		slog.Int("audio_bytes", len(data)),
		slog.Int("text_chars", len(text)),
	)
	writeJSON(w, http.StatusOK, TranscriptionResponse{Text: text, RequestID: requestID})
}

// Synthesize handles POST /tts requests and streams a WAV response.
func (h *Handlers) Synthesize(w http.ResponseWriter, r *http.Request) {
	var req SynthesisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid JSON body", "invalid_request")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		writeError(w, r, http.StatusBadRequest, "text must not be empty", "invalid_request")
		return
	}

	engine := firstNonBlank(req.Engine, h.ttsEngine)
	modelID := firstNonBlank(req.ModelID, h.ttsModelID)
	voiceID := firstNonBlank(req.VoiceID, req.Voice, h.ttsVoiceID)

	tts := h.registry.TTS(engine, modelID)
	result, err := tts.Synthesize(r.Context(), req.Text, voiceID)
	if err != nil {
		if errors.Is(err, provider.ErrNotReady) {
			writeEngineUnavailable(w, r, provider.BuildEngineStatus(tts, false), "tts_unavailable", err)
			return
		}
		h.logger.Error("synthesis failed",
			slog.String("engine", engine),
			slog.String("voice_id", voiceID),
			slog.String("error", err.Error()),
		)
		writeError(w, r, http.StatusInternalServerError, "synthesis failed", "tts_failed")
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("X-Sample-Rate", strconv.Itoa(result.SampleRate))
	w.Header().Set("X-Channels", "1")
	w.Header().Set("X-Format", result.Format)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(result.Audio); err != nil {
		h.logger.Error("failed to write audio response", slog.String("error", err.Error()))
	}
}

// SynthesisTest handles POST /tts/test: one short synthesis end to end.
func (h *Handlers) SynthesisTest(w http.ResponseWriter, r *http.Request) {
	tts := h.registry.TTS(h.ttsEngine, h.ttsModelID)
	started := time.Now()
	_, err := tts.Synthesize(r.Context(), "This is a synthesis self test.", h.ttsVoiceID)
	resp := DiagnosticResponse{
		OK:      err == nil,
		Engine:  tts.Engine(),
		ModelID: tts.ModelID(),
		WallMs:  time.Since(started).Milliseconds(),
	}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// TranscriptionTest handles POST /stt/test: one short transcription over
// synthetic audio.
func (h *Handlers) TranscriptionTest(w http.ResponseWriter, r *http.Request) {
	stt := h.registry.STT(h.sttEngine, h.sttModelID)
	started := time.Now()
	_, err := stt.Transcribe(r.Context(), provider.SilenceWAV(1.0), h.sttLanguage)
	resp := DiagnosticResponse{
		OK:      err == nil,
		Engine:  stt.Engine(),
		ModelID: stt.ModelID(),
		WallMs:  time.Since(started).Milliseconds(),
	}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// TranscriptionBench handles POST /stt/bench. It transcribes a fixed-length
// synthetic clip and reports the real-time factor alongside warm-up cost and
// memory use.
func (h *Handlers) TranscriptionBench(w http.ResponseWriter, r *http.Request) {
	stt := h.registry.STT(h.sttEngine, h.sttModelID)

	init := stt.InitProbe(false)
	if !init.Ready {
		writeEngineUnavailable(w, r, provider.BuildEngineStatus(stt, false), "stt_unavailable", fmt.Errorf("%s", init.LastError))
		return
	}

	started := time.Now()
	if _, err := stt.Transcribe(r.Context(), provider.SilenceWAV(benchAudioSeconds), h.sttLanguage); err != nil {
		writeError(w, r, http.StatusInternalServerError, "benchmark transcription failed", "stt_failed")
		return
	}
	wallMs := time.Since(started).Milliseconds()

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	writeJSON(w, http.StatusOK, BenchResponse{
		AudioSeconds:        benchAudioSeconds,
		WallMs:              wallMs,
		RTF:                 float64(wallMs) / 1000.0 / benchAudioSeconds,
		StartupMs:           init.StartupMs,
		ProcessWorkingSetMb: float64(mem.Sys) / (1 << 20),
		Device:              h.device,
	})
}

// Shutdown handles POST /shutdown. The response goes out first; the process
// exits shortly after so the supervisor sees a clean reply.
func (h *Handlers) Shutdown(w http.ResponseWriter, r *http.Request) {
	h.logger.Info("shutdown requested", slog.String("remote_addr", r.RemoteAddr))
	writeJSON(w, http.StatusOK, ShutdownResponse{OK: true, Message: "Shutting down"})

	go func() {
		time.Sleep(200 * time.Millisecond)
		h.exitFn(0)
	}()
}

// StartYouTubeJob handles POST /youtube/jobs requests.
func (h *Handlers) StartYouTubeJob(w http.ResponseWriter, r *http.Request) {
	var req StartJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, r, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, r, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	asrEngine := firstNonBlank(req.ASREngine, h.sttEngine)
	asrModel := firstNonBlank(req.ASRModel, h.sttModelID)
	language := h.sttLanguage
	if req.LanguageHint != "" {
		language = config.NormalizeLanguage(req.LanguageHint)
	}

	view, err := h.manager.StartJob(pipeline.StartJobParams{
		VideoURL:     req.VideoURL,
		LanguageHint: language,
		KeepAudio:    req.KeepAudio,
		ASREngine:    asrEngine,
		ASRModel:     asrModel,
		Generation:   h.generationConfig(req.Generation),
		DraftTone:    req.DraftTone,
	})
	if err != nil {
		if pe, ok := pipeline.AsError(err); ok {
			writeError(w, r, http.StatusBadRequest, pe.Message, pe.Code)
			return
		}
		h.logger.Error("failed to start job", slog.String("error", err.Error()))
		writeError(w, r, http.StatusInternalServerError, "failed to start job", "JOB_CREATION_FAILED")
		return
	}

	writeJSON(w, http.StatusAccepted, view)
}

// GetYouTubeJob handles GET /youtube/jobs/{id} requests.
func (h *Handlers) GetYouTubeJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, r, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	view, ok := h.manager.GetJob(jobID)
	if !ok {
		writeError(w, r, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// CancelYouTubeJob handles POST /youtube/jobs/{id}/cancel requests. Cancelling
// a terminal job is a no-op that returns the current view.
func (h *Handlers) CancelYouTubeJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, r, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	view, ok := h.manager.CancelJob(jobID)
	if !ok {
		writeError(w, r, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// YouTubeStatus handles GET /youtube/status requests.
func (h *Handlers) YouTubeStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, JobStatusResponse{
		DependencyStatus: h.manager.DependencyStatus(),
		ActiveJobs:       h.manager.JobCount(),
	})
}

// generationConfig merges per-request overrides onto the configured defaults.
func (h *Handlers) generationConfig(overrides *GenerationOverrides) llm.Config {
	cfg := h.generation
	if overrides == nil {
		return cfg
	}
	if overrides.BaseURL != nil {
		cfg.BaseURL = *overrides.BaseURL
	}
	if overrides.Model != nil {
		cfg.Model = *overrides.Model
	}
	if overrides.Temperature != nil {
		cfg.Temperature = *overrides.Temperature
	}
	if overrides.MaxInputChars != nil {
		cfg.MaxInputChars = *overrides.MaxInputChars
	}
	if overrides.TimeoutSec != nil {
		cfg.TimeoutSec = *overrides.TimeoutSec
	}
	return cfg
}

// writeEngineUnavailable answers 503 with the provider's probe state attached
// so clients can distinguish missing artifacts from failed warm-ups.
func writeEngineUnavailable(w http.ResponseWriter, r *http.Request, status provider.EngineStatus, code string, cause error) {
	writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{
		Error:        "engine unavailable",
		ErrorCode:    code,
		RequestID:    RequestIDFromContext(r.Context()),
		EngineStatus: &status,
		Message:      cause.Error(),
	})
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, r *http.Request, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error:     message,
		ErrorCode: code,
		RequestID: RequestIDFromContext(r.Context()),
	})
}
