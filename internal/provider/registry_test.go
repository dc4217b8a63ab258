package provider

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeEngine(t *testing.T) {
	assert.Equal(t, "faster-whisper", NormalizeEngine(""))
	assert.Equal(t, "faster-whisper", NormalizeEngine("whisper"))
	assert.Equal(t, "faster-whisper", NormalizeEngine("  Whisper "))
	assert.Equal(t, "faster-whisper", NormalizeEngine("faster-whisper"))
	assert.Equal(t, "whisper-cpp", NormalizeEngine("whisper-cpp"))
	assert.Equal(t, "vosk", NormalizeEngine("VOSK"))
}

func TestRegistry_STTCachesByEngineAndModel(t *testing.T) {
	r := NewRegistry(t.TempDir(), "cpu")

	a := r.STT("faster-whisper", "base")
	b := r.STT("whisper", "base")
	assert.Same(t, a, b, "alias resolves to the same cached provider")

	c := r.STT("faster-whisper", "small")
	assert.NotSame(t, a, c)
}

func TestRegistry_TTSCachesByEngineAndModel(t *testing.T) {
	r := NewRegistry(t.TempDir(), "cpu")

	a := r.TTS("kokoro", "kokoro")
	b := r.TTS("Kokoro ", "kokoro")
	assert.Same(t, a, b)
}

func TestRegistry_UnsupportedSTT(t *testing.T) {
	r := NewRegistry(t.TempDir(), "cpu")
	p := r.STT("vosk", "model")

	assert.Equal(t, "vosk", p.Engine())

	file := p.FileProbe()
	assert.False(t, file.Installed)
	assert.Equal(t, "vosk_engine_unsupported", file.LastError)

	init := p.InitProbe(false)
	assert.False(t, init.Ready)
	assert.Equal(t, "vosk_engine_unsupported", init.LastError)

	cached, ok := p.CachedInitProbe()
	assert.True(t, ok, "unsupported engines always report a settled state")
	assert.False(t, cached.Ready)

	_, err := p.Transcribe(context.Background(), SilenceWAV(0.1), "en")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotReady)
	assert.Contains(t, err.Error(), "vosk_engine_unsupported")
}

func TestRegistry_UnsupportedTTS(t *testing.T) {
	r := NewRegistry(t.TempDir(), "cpu")
	p := r.TTS("espeak", "default")

	status := BuildEngineStatus(p, false)
	assert.Equal(t, "espeak", status.Engine)
	assert.False(t, status.Installed)
	assert.False(t, status.Ready)
	assert.Equal(t, "espeak_engine_unsupported", status.LastError)
	assert.NotEmpty(t, status.CheckedAtUTC)

	_, err := p.Synthesize(context.Background(), "hello", "af_sky")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotReady)
}

// countingProber tracks init probe invocations to pin down the cheap-health
// contract.
type countingProber struct {
	initCalls int
	cached    *InitProbeResult
}

func (p *countingProber) Engine() string  { return "fake" }
func (p *countingProber) ModelID() string { return "m" }

func (p *countingProber) FileProbe() FileProbeResult {
	return FileProbeResult{Installed: true, Missing: []string{}}
}

func (p *countingProber) InitProbe(bool) InitProbeResult {
	p.initCalls++
	return InitProbeResult{Ready: true, StartupMs: 7}
}

func (p *countingProber) CachedInitProbe() (InitProbeResult, bool) {
	if p.cached == nil {
		return InitProbeResult{}, false
	}
	return *p.cached, true
}

func TestBuildEngineStatus_ColdProviderStaysCold(t *testing.T) {
	p := &countingProber{}

	status := BuildEngineStatus(p, false)
	assert.Equal(t, 0, p.initCalls, "health must not trigger a warm-up")
	assert.True(t, status.Installed)
	assert.False(t, status.Ready)
}

func TestBuildEngineStatus_UsesCachedWarmup(t *testing.T) {
	p := &countingProber{cached: &InitProbeResult{Ready: true, StartupMs: 42}}

	status := BuildEngineStatus(p, false)
	assert.Equal(t, 0, p.initCalls)
	assert.True(t, status.Ready)
	assert.Equal(t, int64(42), status.StartupMs)
}

func TestBuildEngineStatus_ExplicitProbeRuns(t *testing.T) {
	p := &countingProber{}

	status := BuildEngineStatus(p, true)
	assert.Equal(t, 1, p.initCalls)
	assert.True(t, status.Ready)
	assert.Equal(t, int64(7), status.StartupMs)
}

// kokoroModelsRoot lays out <root>/kokoro/<variant>/ with a verified manifest.
func kokoroModelsRoot(t *testing.T, variant string) string {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "kokoro", variant)
	require.NoError(t, os.MkdirAll(dir, 0o755))

	data := []byte("model weights")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "model.onnx"), data, 0o644))
	manifest := Manifest{Files: []ManifestEntry{{Path: "model.onnx", SHA256: sha256Hex(data)}}}
	raw, err := json.Marshal(manifest)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.json"), raw, 0o644))
	return root
}

func TestKokoroProvider_NoBackendConfigured(t *testing.T) {
	r := NewRegistry(kokoroModelsRoot(t, "v1.0"), "cpu")
	p := r.TTS("kokoro", "kokoro")

	file := p.FileProbe()
	assert.False(t, file.Installed)
	assert.Equal(t, "kokoro backend not configured", file.LastError)

	_, err := p.Synthesize(context.Background(), "hello", "af_sky")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestKokoroProvider_SynthesizesWithInjectedBackend(t *testing.T) {
	synth := func(_ context.Context, text, voiceID string) ([]byte, int, error) {
		return make([]byte, 3200), 24000, nil
	}
	r := NewRegistry(kokoroModelsRoot(t, "v1.0"), "cpu", WithKokoroSynth(synth))
	p := r.TTS("kokoro", "kokoro")

	_, warm := p.CachedInitProbe()
	assert.False(t, warm, "provider starts cold")

	result, err := p.Synthesize(context.Background(), "hello world", "af_sky")
	require.NoError(t, err)
	assert.Equal(t, "wav", result.Format)
	assert.Equal(t, 24000, result.SampleRate)
	assert.Equal(t, "RIFF", string(result.Audio[0:4]))

	cached, warm := p.CachedInitProbe()
	assert.True(t, warm, "lazy warm-up is memoized")
	assert.True(t, cached.Ready)
}

func TestKokoroProvider_EmptyTextRejected(t *testing.T) {
	synth := func(context.Context, string, string) ([]byte, int, error) {
		return make([]byte, 100), 24000, nil
	}
	r := NewRegistry(kokoroModelsRoot(t, "v1.0"), "cpu", WithKokoroSynth(synth))
	p := r.TTS("kokoro", "kokoro")

	_, err := p.Synthesize(context.Background(), "   ", "af_sky")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotReady), "a warmed engine rejects empty text as a plain error")
}

func TestKokoroProvider_FailingBackendReportsNotReady(t *testing.T) {
	synth := func(context.Context, string, string) ([]byte, int, error) {
		return nil, 0, errors.New("onnx session exploded")
	}
	r := NewRegistry(kokoroModelsRoot(t, "v1.0"), "cpu", WithKokoroSynth(synth))
	p := r.TTS("kokoro", "kokoro")

	init := p.InitProbe(false)
	assert.False(t, init.Ready)
	assert.Contains(t, init.LastError, "warmup synthesis")

	_, err := p.Synthesize(context.Background(), "hello", "af_sky")
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestKokoroProvider_MissingManifest(t *testing.T) {
	synth := func(context.Context, string, string) ([]byte, int, error) {
		return make([]byte, 100), 24000, nil
	}
	r := NewRegistry(t.TempDir(), "cpu", WithKokoroSynth(synth))
	p := r.TTS("kokoro", "kokoro")

	file := p.FileProbe()
	assert.False(t, file.Installed)
	require.Len(t, file.Missing, 1)
	assert.Contains(t, file.Missing[0], "manifest.json")
}
