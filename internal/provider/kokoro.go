package provider

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// SynthFunc is the injected kokoro synthesis backend. It receives validated
// text and a voice id and returns raw 16-bit PCM plus its sample rate.
type SynthFunc func(ctx context.Context, text, voiceID string) (pcm []byte, sampleRate int, err error)

// kokoroProvider implements TTSProvider over an injected synthesis backend
// with manifest-verified model artifacts.
type kokoroProvider struct {
	modelID     string
	modelDir    string
	allowUnsafe bool
	synth       SynthFunc

	initMu     sync.Mutex
	initDone   bool
	initResult InitProbeResult
}

func newKokoroProvider(modelID, modelsRoot, variant string, allowUnsafe bool, synth SynthFunc) *kokoroProvider {
	return &kokoroProvider{
		modelID:     modelID,
		modelDir:    filepath.Join(modelsRoot, "kokoro", variant),
		allowUnsafe: allowUnsafe,
		synth:       synth,
	}
}

func (p *kokoroProvider) Engine() string {
	return "kokoro"
}

func (p *kokoroProvider) ModelID() string {
	return p.modelID
}

// FileProbe verifies the model directory against its manifest.
func (p *kokoroProvider) FileProbe() FileProbeResult {
	if p.synth == nil {
		return FileProbeResult{
			Installed: false,
			Missing:   []string{"kokoro synthesis backend"},
			LastError: "kokoro backend not configured",
		}
	}

	manifest, err := LoadManifest(p.modelDir)
	if err != nil {
		return FileProbeResult{
			Installed: false,
			Missing:   []string{p.modelDir + "/manifest.json"},
			LastError: err.Error(),
		}
	}
	missing, err := VerifyManifest(p.modelDir, manifest, p.allowUnsafe)
	if err != nil {
		return FileProbeResult{Installed: false, Missing: []string{}, LastError: err.Error()}
	}
	if len(missing) > 0 {
		return FileProbeResult{Installed: false, Missing: missing, LastError: "model artifacts missing or corrupt"}
	}
	return FileProbeResult{Installed: true, Missing: []string{}}
}

// InitProbe synthesizes a short utterance to verify the backend end to end.
// Memoized; force re-runs the warm-up.
func (p *kokoroProvider) InitProbe(force bool) InitProbeResult {
	p.initMu.Lock()
	defer p.initMu.Unlock()

	if p.initDone && !force {
		return p.initResult
	}

	started := time.Now()
	result := p.warmUpLocked()
	result.StartupMs = time.Since(started).Milliseconds()

	p.initDone = true
	p.initResult = result
	return result
}

// CachedInitProbe returns the memoized warm-up result without triggering one.
func (p *kokoroProvider) CachedInitProbe() (InitProbeResult, bool) {
	p.initMu.Lock()
	defer p.initMu.Unlock()
	return p.initResult, p.initDone
}

func (p *kokoroProvider) warmUpLocked() InitProbeResult {
	if file := p.FileProbe(); !file.Installed {
		return InitProbeResult{Ready: false, LastError: file.LastError}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	pcm, sampleRate, err := p.synth(ctx, "Ready.", "")
	if err != nil {
		return InitProbeResult{Ready: false, LastError: fmt.Sprintf("warmup synthesis: %v", err)}
	}
	if len(pcm) == 0 || sampleRate <= 0 {
		return InitProbeResult{Ready: false, LastError: "warmup synthesis returned no audio"}
	}
	return InitProbeResult{Ready: true}
}

// Synthesize produces a WAV utterance. A cold provider warms up lazily.
func (p *kokoroProvider) Synthesize(ctx context.Context, text, voiceID string) (SynthesisResult, error) {
	init := p.InitProbe(false)
	if !init.Ready {
		return SynthesisResult{}, fmt.Errorf("%w: %s", ErrNotReady, init.LastError)
	}
	if strings.TrimSpace(text) == "" {
		return SynthesisResult{}, fmt.Errorf("text must not be empty")
	}

	pcm, sampleRate, err := p.synth(ctx, text, voiceID)
	if err != nil {
		return SynthesisResult{}, fmt.Errorf("synthesize: %w", err)
	}
	return SynthesisResult{
		Audio:      encodeWAV(pcm, sampleRate, 1),
		SampleRate: sampleRate,
		Format:     "wav",
	}, nil
}
