package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrNotReady is returned by inference calls when the provider's init probe
// has not succeeded.
var ErrNotReady = errors.New("provider is not ready")

// Registry lazily constructs providers keyed by (engine, modelId, extra) and
// caches them. Construction never fails loudly: unknown engines yield a
// provider whose probes report the unsupported state, so errors surface
// through the same health path as ordinary failures.
type Registry struct {
	mu         sync.Mutex
	stt        map[string]STTProvider
	tts        map[string]TTSProvider
	modelsRoot string
	device     string

	// kokoroSynth is injected so the registry stays decoupled from the
	// concrete synthesis backend.
	kokoroSynth   SynthFunc
	allowUnsafe   bool
	kokoroVariant string
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithKokoroSynth injects the kokoro synthesis backend.
func WithKokoroSynth(fn SynthFunc) RegistryOption {
	return func(r *Registry) {
		r.kokoroSynth = fn
	}
}

// WithAllowUnsafeArtifacts permits .pt/.pth files in voice manifests.
func WithAllowUnsafeArtifacts(allow bool) RegistryOption {
	return func(r *Registry) {
		r.allowUnsafe = allow
	}
}

// WithKokoroVariant selects the kokoro model variant directory.
func WithKokoroVariant(variant string) RegistryOption {
	return func(r *Registry) {
		r.kokoroVariant = variant
	}
}

// NewRegistry creates a Registry over the given models root.
func NewRegistry(modelsRoot, device string, opts ...RegistryOption) *Registry {
	r := &Registry{
		stt:           make(map[string]STTProvider),
		tts:           make(map[string]TTSProvider),
		modelsRoot:    modelsRoot,
		device:        device,
		kokoroVariant: "v1.0",
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NormalizeEngine maps engine aliases onto canonical tags.
func NormalizeEngine(engine string) string {
	normalized := strings.ToLower(strings.TrimSpace(engine))
	switch normalized {
	case "", "whisper":
		return "faster-whisper"
	default:
		return normalized
	}
}

// STT returns the cached STT provider for (engine, modelID), constructing it
// on first request.
func (r *Registry) STT(engine, modelID string) STTProvider {
	engine = NormalizeEngine(engine)
	modelID = strings.TrimSpace(modelID)

	r.mu.Lock()
	defer r.mu.Unlock()

	key := engine + "|" + modelID
	if p, ok := r.stt[key]; ok {
		return p
	}

	var p STTProvider
	switch engine {
	case "faster-whisper", "whisper-cpp":
		p = newWhisperProvider(engine, modelID, r.modelsRoot, r.device)
	default:
		p = &unsupportedSTT{unsupported{engine: engine, modelID: modelID}}
	}
	r.stt[key] = p
	return p
}

// TTS returns the cached TTS provider for (engine, modelID, voice variant).
func (r *Registry) TTS(engine, modelID string) TTSProvider {
	engine = strings.ToLower(strings.TrimSpace(engine))
	modelID = strings.TrimSpace(modelID)

	r.mu.Lock()
	defer r.mu.Unlock()

	key := engine + "|" + modelID + "|" + r.kokoroVariant
	if p, ok := r.tts[key]; ok {
		return p
	}

	var p TTSProvider
	switch engine {
	case "kokoro":
		p = newKokoroProvider(modelID, r.modelsRoot, r.kokoroVariant, r.allowUnsafe, r.kokoroSynth)
	default:
		p = &unsupportedTTS{unsupported{engine: engine, modelID: modelID}}
	}
	r.tts[key] = p
	return p
}

// unsupported is the provider returned for unknown engine tags. Every probe
// reports the unsupported state instead of raising at construction.
type unsupported struct {
	engine  string
	modelID string
}

func (u unsupported) Engine() string {
	return u.engine
}

func (u unsupported) ModelID() string {
	return u.modelID
}

func (u unsupported) FileProbe() FileProbeResult {
	return FileProbeResult{
		Installed: false,
		Missing:   []string{u.engine},
		LastError: u.engine + "_engine_unsupported",
	}
}

func (u unsupported) InitProbe(_ bool) InitProbeResult {
	return InitProbeResult{Ready: false, LastError: u.engine + "_engine_unsupported"}
}

func (u unsupported) CachedInitProbe() (InitProbeResult, bool) {
	return u.InitProbe(false), true
}

type unsupportedSTT struct {
	unsupported
}

func (u *unsupportedSTT) Transcribe(_ context.Context, _ []byte, _ string) (string, error) {
	return "", fmt.Errorf("%w: %s_engine_unsupported", ErrNotReady, u.engine)
}

type unsupportedTTS struct {
	unsupported
}

func (u *unsupportedTTS) Synthesize(_ context.Context, _, _ string) (SynthesisResult, error) {
	return SynthesisResult{}, fmt.Errorf("%w: %s_engine_unsupported", ErrNotReady, u.engine)
}
