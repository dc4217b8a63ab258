package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

// whisperProvider implements STTProvider over the whisper.cpp CGO bindings.
// The model loads once during the init probe and is shared by all requests;
// each request gets its own whisper context because contexts are not
// thread-safe while the model is.
type whisperProvider struct {
	engine    string
	modelID   string
	modelPath string
	device    string

	// initMu serializes warm-up so at most one model load runs at a time.
	initMu     sync.Mutex
	initDone   bool
	initResult InitProbeResult
	model      whisperlib.Model
}

func newWhisperProvider(engine, modelID, modelsRoot, device string) *whisperProvider {
	return &whisperProvider{
		engine:    engine,
		modelID:   modelID,
		modelPath: resolveWhisperModelPath(modelID, modelsRoot),
		device:    device,
	}
}

// resolveWhisperModelPath accepts either an explicit model file path or a
// model size name mapped into the conventional ggml layout.
func resolveWhisperModelPath(modelID, modelsRoot string) string {
	if strings.ContainsAny(modelID, "/\\") || strings.HasSuffix(modelID, ".bin") {
		return modelID
	}
	return filepath.Join(modelsRoot, "whisper", "ggml-"+modelID+".bin")
}

func (p *whisperProvider) Engine() string {
	return p.engine
}

func (p *whisperProvider) ModelID() string {
	return p.modelID
}

// FileProbe checks that the ggml model file exists. It never loads the model.
func (p *whisperProvider) FileProbe() FileProbeResult {
	info, err := os.Stat(p.modelPath)
	if err != nil || info.IsDir() {
		return FileProbeResult{
			Installed: false,
			Missing:   []string{p.modelPath},
			LastError: "model file not found",
		}
	}
	return FileProbeResult{Installed: true, Missing: []string{}}
}

// InitProbe loads the model and runs a tiny inference over silence, measuring
// wall time. The result is memoized; force re-runs the warm-up.
func (p *whisperProvider) InitProbe(force bool) InitProbeResult {
	p.initMu.Lock()
	defer p.initMu.Unlock()

	if p.initDone && !force {
		return p.initResult
	}
	if force && p.model != nil {
		_ = p.model.Close()
		p.model = nil
	}

	started := time.Now()
	result := p.warmUpLocked()
	result.StartupMs = time.Since(started).Milliseconds()

	p.initDone = true
	p.initResult = result
	return result
}

// CachedInitProbe returns the memoized warm-up result without triggering one.
func (p *whisperProvider) CachedInitProbe() (InitProbeResult, bool) {
	p.initMu.Lock()
	defer p.initMu.Unlock()
	return p.initResult, p.initDone
}

func (p *whisperProvider) warmUpLocked() InitProbeResult {
	if file := p.FileProbe(); !file.Installed {
		return InitProbeResult{Ready: false, LastError: file.LastError}
	}

	model, err := whisperlib.New(p.modelPath)
	if err != nil {
		return InitProbeResult{Ready: false, LastError: fmt.Sprintf("load model: %v", err)}
	}

	wctx, err := model.NewContext()
	if err != nil {
		_ = model.Close()
		return InitProbeResult{Ready: false, LastError: fmt.Sprintf("create context: %v", err)}
	}
	// 100 ms of silence is enough to exercise the full inference path.
	silence := make([]float32, 1600)
	if err := wctx.Process(silence, nil, nil, nil); err != nil {
		_ = model.Close()
		return InitProbeResult{Ready: false, LastError: fmt.Sprintf("warmup inference: %v", err)}
	}

	p.model = model
	return InitProbeResult{Ready: true}
}

// Transcribe runs inference over 16 kHz mono WAV audio. A cold provider warms
// up lazily; a failed warm-up surfaces as ErrNotReady with the probe error.
func (p *whisperProvider) Transcribe(ctx context.Context, wavAudio []byte, language string) (string, error) {
	init := p.InitProbe(false)
	if !init.Ready {
		return "", fmt.Errorf("%w: %s", ErrNotReady, init.LastError)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	samples, err := decodeWAVToFloat32(wavAudio)
	if err != nil {
		return "", fmt.Errorf("decode audio: %w", err)
	}

	p.initMu.Lock()
	model := p.model
	p.initMu.Unlock()
	if model == nil {
		return "", ErrNotReady
	}

	wctx, err := model.NewContext()
	if err != nil {
		return "", fmt.Errorf("create context: %w", err)
	}
	if language != "" {
		// Unsupported language hints degrade to the model default.
		_ = wctx.SetLanguage(language)
	}
	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}

// Close releases the loaded model.
func (p *whisperProvider) Close() error {
	p.initMu.Lock()
	defer p.initMu.Unlock()
	if p.model != nil {
		err := p.model.Close()
		p.model = nil
		return err
	}
	return nil
}
