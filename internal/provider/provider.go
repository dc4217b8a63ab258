// Package provider constructs and caches STT/TTS engine providers. Each
// provider exposes a two-phase readiness check: a cheap file probe over local
// artifacts, then a memoized init probe that loads the engine and runs a tiny
// inference. Inference calls require a successful init probe and trigger it
// lazily when the cache is cold.
package provider

import (
	"context"
	"time"
)

// FileProbeResult reports whether a provider's on-disk artifacts are present.
type FileProbeResult struct {
	Installed bool     `json:"installed"`
	Missing   []string `json:"missing"`
	LastError string   `json:"lastError,omitempty"`
}

// InitProbeResult reports whether the engine warmed up end to end.
type InitProbeResult struct {
	Ready     bool   `json:"ready"`
	StartupMs int64  `json:"startupMs"`
	LastError string `json:"lastError,omitempty"`
}

// EngineStatus is the health fragment for one engine, merging both probes.
type EngineStatus struct {
	Engine       string   `json:"engine"`
	ModelID      string   `json:"modelId"`
	Installed    bool     `json:"installed"`
	Ready        bool     `json:"ready"`
	StartupMs    int64    `json:"startupMs"`
	Missing      []string `json:"missing,omitempty"`
	LastError    string   `json:"lastError,omitempty"`
	CheckedAtUTC string   `json:"checkedAtUtc"`
}

// STTProvider transcribes 16 kHz mono WAV audio.
type STTProvider interface {
	Engine() string
	ModelID() string
	FileProbe() FileProbeResult
	InitProbe(force bool) InitProbeResult
	CachedInitProbe() (InitProbeResult, bool)
	Transcribe(ctx context.Context, wavAudio []byte, language string) (string, error)
}

// SynthesisResult is one synthesized utterance.
type SynthesisResult struct {
	Audio      []byte
	SampleRate int
	Format     string
}

// TTSProvider synthesizes speech from text.
type TTSProvider interface {
	Engine() string
	ModelID() string
	FileProbe() FileProbeResult
	InitProbe(force bool) InitProbeResult
	CachedInitProbe() (InitProbeResult, bool)
	Synthesize(ctx context.Context, text, voiceID string) (SynthesisResult, error)
}

// prober is the common probe surface of both provider kinds.
type prober interface {
	Engine() string
	ModelID() string
	FileProbe() FileProbeResult
	InitProbe(force bool) InitProbeResult
	CachedInitProbe() (InitProbeResult, bool)
}

// BuildEngineStatus merges a provider's probes into a health fragment. When
// runInitProbe is false only the cached init result is reported, so health
// checks stay cheap until a caller explicitly warms the engine.
func BuildEngineStatus(p prober, runInitProbe bool) EngineStatus {
	file := p.FileProbe()
	var init InitProbeResult
	if runInitProbe {
		init = p.InitProbe(false)
	} else if cached, ok := p.CachedInitProbe(); ok {
		init = cached
	}

	lastError := init.LastError
	if lastError == "" {
		lastError = file.LastError
	}
	return EngineStatus{
		Engine:       p.Engine(),
		ModelID:      p.ModelID(),
		Installed:    file.Installed,
		Ready:        init.Ready,
		StartupMs:    init.StartupMs,
		Missing:      file.Missing,
		LastError:    lastError,
		CheckedAtUTC: time.Now().UTC().Format("2006-01-02T15:04:05Z"),
	}
}
