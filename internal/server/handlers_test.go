package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avicente/clipdraft/internal/config"
	"github.com/avicente/clipdraft/internal/llm"
	"github.com/avicente/clipdraft/internal/pipeline"
	"github.com/avicente/clipdraft/internal/provider"
	"github.com/avicente/clipdraft/internal/storage"
)

// failingCompleter keeps the generation path deterministic in handler tests.
type failingCompleter struct{}

func (failingCompleter) Complete(context.Context, llm.Config, string, string, int, float64) (string, error) {
	return "", pipeline.NewError(pipeline.CodeLLMRequestFailed, "no generation in handler tests")
}

// testConfig selects unknown engines so providers settle into the unsupported
// state instead of loading models.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Host:        "127.0.0.1",
		STTEngine:   "fake-stt",
		STTModelID:  "m",
		STTLanguage: "en",
		Device:      "cpu",
		TTSEngine:   "fake-tts",
		TTSModelID:  "m",
		TTSVoiceID:  "af_sky",
		DataRoot:    t.TempDir(),
		ModelsRoot:  t.TempDir(),
	}
}

func newTestHandlers(t *testing.T, cfg *config.Config, opts ...HandlerOption) *Handlers {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	registry := provider.NewRegistry(cfg.ModelsRoot, cfg.Device)
	store, err := storage.NewLocalStore(cfg.DataRoot)
	require.NoError(t, err)
	transcribe := func(ctx context.Context, audio []byte, engine, modelID, languageHint, requestID string) (string, error) {
		return registry.STT(engine, modelID).Transcribe(ctx, audio, languageHint)
	}
	manager, err := pipeline.NewManager(cfg.DataRoot, transcribe, failingCompleter{}, store, logger)
	require.NoError(t, err)

	return NewHandlers(registry, manager, cfg, logger, opts...)
}

func newTestRouter(t *testing.T, opts ...HandlerOption) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRouter(newTestHandlers(t, testConfig(t), opts...), logger, DefaultConfig())
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func multipartAudio(t *testing.T, field string, audio []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	writer := multipart.NewWriter(buf)
	if field != "" {
		part, err := writer.CreateFormFile(field, "audio.wav")
		require.NoError(t, err)
		_, err = part.Write(audio)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	require.NoError(t, writer.Close())
	return buf, writer.FormDataContentType()
}

func TestHealth_LoadingWhenSTTNotReady(t *testing.T) {
	router := newTestRouter(t, WithVersion("1.2.3"))

	rec := doJSON(t, router, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	health := decodeBody[HealthResponse](t, rec)
	assert.Equal(t, 1, health.SchemaVersion)
	assert.NotEmpty(t, health.InstanceID)
	assert.Equal(t, "loading", health.Status)
	assert.False(t, health.Ready)
	assert.False(t, health.ASRReady)
	assert.False(t, health.TTSReady)
	assert.Equal(t, "1.2.3", health.Version)
	assert.Equal(t, "stt_unavailable", health.ErrorCode)
	assert.Equal(t, "fake-stt_engine_unsupported", health.Message)
	assert.Equal(t, "fake-stt", health.ASR.Engine)
	assert.Equal(t, "fake-tts", health.TTS.Engine)

	_, err := time.Parse("2006-01-02T15:04:05Z", health.TimestampUTC)
	assert.NoError(t, err)
}

func TestTranscribe_MissingAudioField(t *testing.T) {
	router := newTestRouter(t)

	body, contentType := multipartAudio(t, "", nil, map[string]string{"sessionId": "s1"})
	req := httptest.NewRequest(http.MethodPost, "/asr", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, "Missing 'audio' or 'file' multipart field.", resp.Error)
	assert.Equal(t, "missing_audio", resp.ErrorCode)
	assert.NotEmpty(t, resp.RequestID)
}

func TestTranscribe_TinyUploadReturnsEmptyText(t *testing.T) {
	router := newTestRouter(t)

	body, contentType := multipartAudio(t, "audio", []byte("tiny"), map[string]string{"requestId": "client-7"})
	req := httptest.NewRequest(http.MethodPost, "/asr", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[TranscriptionResponse](t, rec)
	assert.Empty(t, resp.Text)
	assert.Equal(t, "client-7", resp.RequestID)
}

func TestTranscribe_FileFieldFallback(t *testing.T) {
	router := newTestRouter(t)

	body, contentType := multipartAudio(t, "file", []byte("xy"), nil)
	req := httptest.NewRequest(http.MethodPost, "/asr", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTranscribe_UnsupportedEngineAnswers503(t *testing.T) {
	router := newTestRouter(t)

	audio := provider.SilenceWAV(1.0)
	body, contentType := multipartAudio(t, "audio", audio, nil)
	req := httptest.NewRequest(http.MethodPost, "/asr", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	resp := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, "stt_unavailable", resp.ErrorCode)
	require.NotNil(t, resp.EngineStatus)
	assert.Equal(t, "fake-stt", resp.EngineStatus.Engine)
	assert.False(t, resp.EngineStatus.Ready)
	assert.Contains(t, resp.Message, "fake-stt_engine_unsupported")
}

func TestSynthesize_EmptyTextRejected(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/tts", map[string]any{"text": ""})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, "text must not be empty", resp.Error)
	assert.Equal(t, "invalid_request", resp.ErrorCode)
}

func TestSynthesize_InvalidJSONRejected(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/tts", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSynthesize_UnsupportedEngineAnswers503(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/tts", map[string]any{"text": "hello there"})
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	resp := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, "tts_unavailable", resp.ErrorCode)
	require.NotNil(t, resp.EngineStatus)
	assert.Equal(t, "fake-tts", resp.EngineStatus.Engine)
}

func TestDiagnosticEndpointsReportFailure(t *testing.T) {
	router := newTestRouter(t)

	for _, path := range []string{"/tts/test", "/stt/test"} {
		rec := doJSON(t, router, http.MethodPost, path, nil)
		require.Equal(t, http.StatusOK, rec.Code, path)
		resp := decodeBody[DiagnosticResponse](t, rec)
		assert.False(t, resp.OK, path)
		assert.NotEmpty(t, resp.Error, path)
		assert.GreaterOrEqual(t, resp.WallMs, int64(0))
	}
}

func TestTranscriptionBench_UnavailableEngine(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/stt/bench", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	resp := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, "stt_unavailable", resp.ErrorCode)
}

func TestShutdown_RespondsBeforeExit(t *testing.T) {
	var exited atomic.Int64
	router := newTestRouter(t, WithExitFunc(func(code int) {
		exited.Store(int64(code) + 1)
	}))

	rec := doJSON(t, router, http.MethodPost, "/shutdown", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[ShutdownResponse](t, rec)
	assert.True(t, resp.OK)
	assert.Equal(t, "Shutting down", resp.Message)
	assert.Zero(t, exited.Load(), "response is written before the exit fires")

	require.Eventually(t, func() bool {
		return exited.Load() == 1
	}, 2*time.Second, 20*time.Millisecond, "exit fires shortly after the reply")
}

func TestStartYouTubeJob_InvalidURL(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/youtube/jobs", map[string]any{
		"videoUrl": "https://example.com/not-youtube",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, "INVALID_URL", resp.ErrorCode)
}

func TestStartYouTubeJob_MissingURLFailsValidation(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/youtube/jobs", map[string]any{"draftTone": "direct"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, "VALIDATION_ERROR", resp.ErrorCode)
}

func TestYouTubeJobLifecycleOverHTTP(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/youtube/jobs", map[string]any{
		"videoUrl": "https://www.youtube.com/watch?v=abc123def45",
	})
	require.Equal(t, http.StatusAccepted, rec.Code)
	accepted := decodeBody[pipeline.View](t, rec)
	assert.True(t, strings.HasPrefix(accepted.JobID, "ytjob-"))

	rec = doJSON(t, router, http.MethodGet, "/youtube/jobs/"+accepted.JobID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	fetched := decodeBody[pipeline.View](t, rec)
	assert.Equal(t, accepted.JobID, fetched.JobID)

	rec = doJSON(t, router, http.MethodPost, "/youtube/jobs/"+accepted.JobID+"/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Poll until the worker observes the cancel and settles.
	require.Eventually(t, func() bool {
		rec := doJSON(t, router, http.MethodGet, "/youtube/jobs/"+accepted.JobID, nil)
		view := decodeBody[pipeline.View](t, rec)
		switch view.Status {
		case pipeline.StatusCancelled, pipeline.StatusFailed:
			return true
		}
		return false
	}, 10*time.Second, 50*time.Millisecond)
}

func TestGetYouTubeJob_NotFound(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/youtube/jobs/ytjob-missing", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	resp := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, "JOB_NOT_FOUND", resp.ErrorCode)

	rec = doJSON(t, router, http.MethodPost, "/youtube/jobs/ytjob-missing/cancel", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestYouTubeStatus(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/youtube/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[JobStatusResponse](t, rec)
	assert.Equal(t, 0, resp.ActiveJobs)
}

func TestRequestIDEchoedAndGenerated(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-Id", "caller-42")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, "caller-42", rec.Header().Get("X-Request-Id"))

	rec = doJSON(t, router, http.MethodGet, "/health", nil)
	generated := rec.Header().Get("X-Request-Id")
	assert.True(t, strings.HasPrefix(generated, "req-"), generated)
	assert.Len(t, generated, len("req-")+32)
}

func TestCORSHeadersAndPreflight(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/youtube/jobs", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRecoveryMiddlewareAnswers500(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	chain := ChainMiddleware(
		RecoveryMiddleware(logger),
		RequestIDMiddleware("req"),
	)
	handler := chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, "INTERNAL_ERROR", resp.ErrorCode)
}

func TestGenerationOverridesMergeOntoDefaults(t *testing.T) {
	cfg := testConfig(t)
	cfg.GenerationModel = "default-model"
	cfg.GenerationTemperature = 0.3
	h := newTestHandlers(t, cfg)

	merged := h.generationConfig(nil)
	assert.Equal(t, "default-model", merged.Model)

	model := "other-model"
	temp := 0.9
	merged = h.generationConfig(&GenerationOverrides{Model: &model, Temperature: &temp})
	assert.Equal(t, "other-model", merged.Model)
	assert.Equal(t, 0.9, merged.Temperature)
	assert.Equal(t, "default-model", h.generation.Model, "defaults stay untouched")
}
