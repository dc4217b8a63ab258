package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/avicente/clipdraft/internal/config"
	"github.com/avicente/clipdraft/internal/llm"
	"github.com/avicente/clipdraft/internal/storage"
)

// slotPollInterval bounds how long a queued worker waits before rechecking
// its cancel signal while blocked on the admission semaphore.
const slotPollInterval = 250 * time.Millisecond

// Limits collects the tunable pipeline knobs. All of them clamp silently so a
// misconfigured knob never prevents startup.
type Limits struct {
	MaxConcurrentJobs int
	HistoryMax        int
	TTL               time.Duration
	CaptureMaxChars   int
	DownloadTimeout   time.Duration
	ConvertTimeout    time.Duration
	ASRTimeout        time.Duration
	SummaryTimeout    time.Duration
}

// LimitsFromEnv reads the pipeline knobs from the environment.
func LimitsFromEnv() Limits {
	return Limits{
		MaxConcurrentJobs: config.IntEnv("ST_YOUTUBE_MAX_CONCURRENT_JOBS", 1, 1, 4),
		HistoryMax:        config.IntEnv("ST_YOUTUBE_JOB_HISTORY_MAX", 100, 10, 5000),
		TTL:               time.Duration(config.IntEnv("ST_YOUTUBE_JOB_TTL_SECONDS", 24*60*60, 300, 7*24*60*60)) * time.Second,
		CaptureMaxChars:   config.IntEnv("ST_YOUTUBE_LOG_CAPTURE_MAX_CHARS", 12000, 1000, 200000),
		DownloadTimeout:   time.Duration(config.IntEnv("ST_YOUTUBE_DOWNLOAD_TIMEOUT_SEC", 20*60, 60, 3*60*60)) * time.Second,
		ConvertTimeout:    time.Duration(config.IntEnv("ST_YOUTUBE_CONVERT_TIMEOUT_SEC", 20*60, 60, 3*60*60)) * time.Second,
		ASRTimeout:        time.Duration(config.IntEnv("ST_YOUTUBE_ASR_TIMEOUT_SEC", 60*60, 60, 6*60*60)) * time.Second,
		SummaryTimeout:    time.Duration(config.IntEnv("ST_YOUTUBE_SUMMARY_TIMEOUT_SEC", 120, 10, 1800)) * time.Second,
	}
}

// TranscribeFunc turns converted 16k mono WAV audio into transcript text.
// Implementations must honor the context for cancellation.
type TranscribeFunc func(ctx context.Context, audio []byte, engine, modelID, languageHint, requestID string) (string, error)

// Completer is the generation dependency of the pipeline. *llm.Client
// satisfies it; tests substitute stubs.
type Completer interface {
	Complete(ctx context.Context, cfg llm.Config, systemPrompt, userPrompt string, maxTokens int, temperature float64) (string, error)
}

// StartJobParams are the immutable inputs of a new job.
type StartJobParams struct {
	VideoURL     string
	LanguageHint string
	KeepAudio    bool
	ASREngine    string
	ASRModel     string
	Generation   llm.Config
	DraftTone    string
}

// Manager owns the job lifecycle: admission, the multi-stage pipeline, the
// artifact layout under <dataRoot>/youtube/<videoId>/ and the job registry.
type Manager struct {
	logger      *slog.Logger
	store       *Store
	runner      *Runner
	tools       *ToolSet
	completer   Completer
	transcribe  TranscribeFunc
	artifacts   storage.ArtifactStore
	youtubeRoot string
	limits      Limits
	templates   DraftTemplates
	sem         chan struct{}
	mirror      bool
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLimits overrides the environment-derived limits.
func WithLimits(limits Limits) ManagerOption {
	return func(m *Manager) {
		m.limits = limits
	}
}

// WithDraftTemplates overrides the fallback draft templates.
func WithDraftTemplates(templates DraftTemplates) ManagerOption {
	return func(m *Manager) {
		m.templates = templates
	}
}

// WithToolSet overrides tool resolution, mainly for tests that point the
// pipeline at stub executables.
func WithToolSet(tools *ToolSet) ManagerOption {
	return func(m *Manager) {
		m.tools = tools
	}
}

// WithMirror enables mirroring finished job directories through the artifact
// store's S3 backend.
func WithMirror(enabled bool) ManagerOption {
	return func(m *Manager) {
		m.mirror = enabled
	}
}

// NewManager creates a Manager rooted at dataRoot. The youtube artifact root
// is created eagerly so the first job does not race directory creation.
func NewManager(
	dataRoot string,
	transcribe TranscribeFunc,
	completer Completer,
	artifacts storage.ArtifactStore,
	logger *slog.Logger,
	opts ...ManagerOption,
) (*Manager, error) {
	m := &Manager{
		logger:      logger,
		tools:       NewToolSet("ST_YOUTUBE_YTDLP_PATH", "ST_YOUTUBE_FFMPEG_PATH"),
		completer:   completer,
		transcribe:  transcribe,
		artifacts:   artifacts,
		youtubeRoot: filepath.Join(dataRoot, "youtube"),
		limits:      LimitsFromEnv(),
		templates:   DefaultDraftTemplates(),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.store = NewStore(m.limits.TTL, m.limits.HistoryMax)
	m.runner = NewRunner(m.limits.CaptureMaxChars)
	m.sem = make(chan struct{}, m.limits.MaxConcurrentJobs)

	if err := os.MkdirAll(m.youtubeRoot, 0750); err != nil {
		return nil, err
	}
	return m, nil
}

// StartJob validates the request, registers a Queued job and launches its
// worker. The returned view reflects the job before the worker has run.
func (m *Manager) StartJob(params StartJobParams) (View, error) {
	videoURL := strings.TrimSpace(params.VideoURL)
	if videoURL == "" {
		return View{}, NewError(CodeInvalidURL, "videoUrl is required.")
	}
	if !IsYouTubeURL(videoURL) {
		return View{}, NewError(CodeInvalidURL, "videoUrl must be a valid YouTube URL.")
	}
	if strings.TrimSpace(params.ASRModel) == "" {
		return View{}, NewError(CodeASRModelUnavailable, "ASR model id/path is required.")
	}

	job := newJob(
		videoURL,
		strings.TrimSpace(params.LanguageHint),
		params.KeepAudio,
		strings.TrimSpace(params.ASREngine),
		strings.TrimSpace(params.ASRModel),
		params.Generation,
		NormalizeDraftTone(params.DraftTone),
	)
	m.store.Put(job)

	m.logger.Info("youtube job accepted",
		"jobId", job.ID,
		"videoUrl", job.VideoURL,
		"asrEngine", job.ASREngine,
		"asrModel", job.ASRModel,
		"draftTone", job.DraftTone,
	)

	go m.runWorker(job.ID)

	view, _ := m.store.View(job.ID)
	return view, nil
}

// GetJob returns a snapshot of the job, or ok=false when unknown or evicted.
func (m *Manager) GetJob(jobID string) (View, bool) {
	return m.store.View(jobID)
}

// CancelJob requests cancellation. Terminal jobs are returned unchanged;
// queued jobs transition to Cancelled immediately; running jobs get their
// cancel signal raised and any attached child process terminated, then settle
// to Cancelled at the next stage boundary.
func (m *Manager) CancelJob(jobID string) (View, bool) {
	return m.store.Update(jobID, func(job *Job) {
		if job.terminal() {
			return
		}
		job.cancelFn()
		if job.activeProc != nil {
			TerminateProcess(job.activeProc)
			job.activeProc = nil
		}
		if job.Status == StatusQueued {
			markCancelledLocked(job, "Cancelled before execution started.")
			return
		}
		job.UpdatedAt = time.Now()
	})
}

// DependencyStatus re-resolves yt-dlp and ffmpeg and reports readiness.
func (m *Manager) DependencyStatus() DependencyStatus {
	ytdlp := m.tools.YtDlpCommand()
	ffmpeg := m.tools.FfmpegCommand()
	ytdlpPath := strings.Join(ytdlp, " ")
	ffmpegPath := ""
	if len(ffmpeg) > 0 {
		ffmpegPath = ffmpeg[0]
	}
	return DependencyStatus{
		Ready:             len(ytdlp) > 0 && len(ffmpeg) > 0,
		YtDlp:             ToolStatus{Available: ytdlpPath != "", Path: ytdlpPath},
		Ffmpeg:            ToolStatus{Available: ffmpegPath != "", Path: ffmpegPath},
		DataRoot:          m.youtubeRoot,
		MaxConcurrentJobs: m.limits.MaxConcurrentJobs,
	}
}

// JobCount returns the number of jobs currently held in the store.
func (m *Manager) JobCount() int {
	return m.store.Len()
}

// runWorker acquires an execution slot and drives the pipeline, translating
// every failure into a terminal job state.
func (m *Manager) runWorker(jobID string) {
	job := m.store.get(jobID)
	if job == nil {
		return
	}

	slotAcquired := false
	for !slotAcquired {
		select {
		case m.sem <- struct{}{}:
			slotAcquired = true
		case <-job.ctx.Done():
			m.markCancelled(jobID, "Job cancelled while waiting for execution slot.")
			return
		case <-time.After(slotPollInterval):
		}
	}
	defer func() { <-m.sem }()

	m.setStageRunning(jobID, StageResolving, 0.05)

	err := m.executePipeline(job)
	if err == nil {
		return
	}
	if pe, ok := AsError(err); ok {
		if pe.Code == CodeJobCancelled {
			m.markCancelled(jobID, pe.Message)
			return
		}
		m.markFailed(jobID, pe.Code, pe.Message, pe.Details)
		return
	}
	m.markFailed(jobID, CodeASRTranscribeFailed, "Unexpected pipeline failure.", map[string]any{"message": err.Error()})
}

func (m *Manager) executePipeline(job *Job) error {
	dep := m.DependencyStatus()
	if !dep.Ready {
		depDetails := map[string]any{
			"ready":             dep.Ready,
			"ytDlp":             map[string]any{"available": dep.YtDlp.Available, "path": dep.YtDlp.Path},
			"ffmpeg":            map[string]any{"available": dep.Ffmpeg.Available, "path": dep.Ffmpeg.Path},
			"dataRoot":          dep.DataRoot,
			"maxConcurrentJobs": dep.MaxConcurrentJobs,
		}
		return NewErrorWithDetails(CodeDependencyMissing, "Required tools are missing. Install yt-dlp and ffmpeg.", depDetails)
	}
	ytdlpCmd := m.tools.YtDlpCommand()
	ffmpegCmd := m.tools.FfmpegCommand()

	metadata, err := m.resolveVideoMetadata(job, ytdlpCmd)
	if err != nil {
		return err
	}
	rawVideoID := strings.TrimSpace(jsonString(metadata, "id"))
	if rawVideoID == "" {
		return NewError(CodeInvalidURL, "Unable to resolve a single YouTube video id.")
	}
	videoID := sanitizeFolderComponent(rawVideoID)

	title := strings.TrimSpace(jsonString(metadata, "title"))
	channel := strings.TrimSpace(firstNonEmpty(jsonString(metadata, "uploader"), jsonString(metadata, "channel")))
	durationSec := int(jsonNumber(metadata, "duration"))
	if durationSec < 0 {
		durationSec = 0
	}

	outputDir, err := filepath.Abs(filepath.Join(m.youtubeRoot, videoID))
	if err != nil {
		outputDir = filepath.Join(m.youtubeRoot, videoID)
	}
	workDir := filepath.Join(outputDir, "work")
	if err := os.MkdirAll(workDir, 0750); err != nil {
		return NewErrorWithDetails(CodeIOWriteFailed, "Failed to create job output directory.", map[string]any{"message": err.Error()})
	}

	metadataPath := filepath.Join(outputDir, "metadata.json")
	m.store.Update(job.ID, func(j *Job) {
		j.VideoID = videoID
		j.Title = title
		j.Channel = channel
		j.DurationSec = durationSec
		j.OutputDir = outputDir
		j.TranscriptPath = filepath.Join(outputDir, "transcript.txt")
		j.SummaryPath = filepath.Join(outputDir, "summary.txt")
		j.HooksPath = filepath.Join(outputDir, "hooks.json")
		j.FactsSheetPath = filepath.Join(outputDir, "facts_sheet.json")
		j.LinkedInCarouselPath = filepath.Join(outputDir, "linkedin_carousel.md")
		j.XThreadPath = filepath.Join(outputDir, "x_thread.txt")
		j.NewsletterSummaryPath = filepath.Join(outputDir, "newsletter_summary.md")
	})

	// First metadata write happens before any heavy stage so a crashed job
	// still leaves a discoverable record on disk.
	if err := m.writeMetadata(metadataPath, job); err != nil {
		return err
	}

	m.setStage(job.ID, StageDownloadingAudio, 0.12)
	sourceTemplate := filepath.Join(workDir, "source.%(ext)s")
	if _, _, err := m.runAttached(job, RunSpec{
		Args:           append(append([]string{}, ytdlpCmd...), "-f", "bestaudio", "--no-playlist", "-o", sourceTemplate, job.VideoURL),
		FailureCode:    CodeDownloadFailed,
		FailureMessage: "yt-dlp failed to download audio.",
		Timeout:        m.limits.DownloadTimeout,
	}); err != nil {
		return err
	}

	sourcePath, err := newestSourceFile(workDir)
	if err != nil {
		return err
	}

	m.setStage(job.ID, StageConvertingAudio, 0.20)
	audioWavPath := filepath.Join(workDir, "audio.wav")
	if _, _, err := m.runAttached(job, RunSpec{
		Args:           append(append([]string{}, ffmpegCmd...), "-y", "-i", sourcePath, "-ar", "16000", "-ac", "1", audioWavPath),
		FailureCode:    CodeConvertFailed,
		FailureMessage: "ffmpeg failed to convert audio to 16k mono wav.",
		Timeout:        m.limits.ConvertTimeout,
	}); err != nil {
		return err
	}
	if _, err := os.Stat(audioWavPath); err != nil {
		return NewError(CodeConvertFailed, "Converted audio file was not produced.")
	}

	m.setStage(job.ID, StageTranscribing, 0.35)
	if job.Cancelled() {
		return errCancelled()
	}
	audioBytes, err := os.ReadFile(audioWavPath) // #nosec G304 - path built from sanitized video id
	if err != nil {
		return NewErrorWithDetails(CodeIOWriteFailed, "Unable to read converted audio.", map[string]any{"message": err.Error()})
	}

	asrCtx, asrCancel := context.WithTimeout(job.ctx, m.limits.ASRTimeout)
	transcriptText, err := m.transcribe(asrCtx, audioBytes, job.ASREngine, job.ASRModel, job.LanguageHint, job.ID+"-asr")
	asrCancel()
	if err != nil {
		if job.Cancelled() {
			return errCancelled()
		}
		if pe, ok := AsError(err); ok {
			return pe
		}
		return NewErrorWithDetails(CodeASRTranscribeFailed, "Transcription failed.", map[string]any{"message": err.Error()})
	}
	transcriptText = strings.TrimSpace(transcriptText)

	m.setStage(job.ID, StageWritingTranscript, 0.38)
	transcriptBody := transcriptText
	if transcriptBody != "" {
		transcriptBody += "\n"
	}
	if err := m.artifacts.WriteArtifact(filepath.Join(outputDir, "transcript.txt"), []byte(transcriptBody)); err != nil {
		return NewErrorWithDetails(CodeIOWriteFailed, "Failed to write transcript.txt.", map[string]any{"message": err.Error()})
	}

	m.setStage(job.ID, StageExtractingHooks, 0.55)
	hooksData, err := m.extractHooks(job, transcriptText)
	if err != nil {
		return err
	}
	factsSheet := buildFactsSheet(title, hooksData, job.DraftTone)
	if err := m.writeJSONArtifacts(outputDir, hooksData, factsSheet); err != nil {
		return err
	}

	m.setStage(job.ID, StageGeneratingDrafts, 0.80)
	linkedin, xThread, newsletter, err := m.generateDrafts(job, hooksData)
	if err != nil {
		return err
	}

	m.setStage(job.ID, StageWritingAssets, 0.92)
	assetWrites := []struct {
		name string
		body string
	}{
		{"linkedin_carousel.md", strings.TrimSpace(linkedin) + "\n"},
		{"x_thread.txt", strings.TrimSpace(xThread) + "\n"},
		{"newsletter_summary.md", strings.TrimSpace(newsletter) + "\n"},
	}
	for _, asset := range assetWrites {
		if err := m.artifacts.WriteArtifact(filepath.Join(outputDir, asset.name), []byte(asset.body)); err != nil {
			return NewErrorWithDetails(CodeIOWriteFailed, "Failed to write generated draft artifacts.", map[string]any{"message": err.Error()})
		}
	}

	summaryText := buildSummaryText(title, hooksData)
	if err := m.artifacts.WriteArtifact(filepath.Join(outputDir, "summary.txt"), []byte(strings.TrimSpace(summaryText)+"\n")); err != nil {
		return NewErrorWithDetails(CodeIOWriteFailed, "Failed to write summary.txt.", map[string]any{"message": err.Error()})
	}

	if !job.KeepAudio {
		_ = os.RemoveAll(workDir)
	}

	// Second write records the final artifact set.
	if err := m.writeMetadata(metadataPath, job); err != nil {
		return err
	}

	m.markDone(job.ID, summaryText)

	if m.mirror {
		if err := m.artifacts.MirrorDir(context.Background(), m.youtubeRoot, outputDir); err != nil && !errors.Is(err, storage.ErrS3NotConfigured) {
			m.logger.Warn("artifact mirror failed", "jobId", job.ID, "error", err)
		}
	}
	return nil
}

func (m *Manager) resolveVideoMetadata(job *Job, ytdlpCmd []string) (map[string]any, error) {
	timeout := m.limits.DownloadTimeout
	if timeout > 300*time.Second {
		timeout = 300 * time.Second
	}
	stdout, _, err := m.runAttached(job, RunSpec{
		Args:           append(append([]string{}, ytdlpCmd...), "--dump-single-json", "--no-warnings", "--no-playlist", job.VideoURL),
		FailureCode:    CodeInvalidURL,
		FailureMessage: "Unable to resolve YouTube video metadata.",
		Timeout:        timeout,
	})
	if err != nil {
		return nil, err
	}
	var metadata map[string]any
	if err := json.Unmarshal([]byte(stdout), &metadata); err != nil {
		return nil, NewErrorWithDetails(CodeInvalidURL, "yt-dlp metadata output was not valid JSON.", map[string]any{"message": err.Error()})
	}
	return metadata, nil
}

// runAttached executes a child process with the job's cancel signal wired to
// process termination, keeping the attached handle visible to CancelJob.
func (m *Manager) runAttached(job *Job, spec RunSpec) (string, string, error) {
	spec.OnAttach = func(cmd *exec.Cmd) {
		m.store.Update(job.ID, func(j *Job) {
			j.activeProc = cmd
		})
	}
	spec.OnDetach = func() {
		m.store.Update(job.ID, func(j *Job) {
			j.activeProc = nil
		})
	}
	return m.runner.Run(job.ctx, spec)
}

func (m *Manager) writeJSONArtifacts(outputDir string, hooksData HooksPayload, factsSheet FactsSheet) error {
	hooksRaw, err := marshalIndent(hooksData)
	if err == nil {
		err = m.artifacts.WriteArtifact(filepath.Join(outputDir, "hooks.json"), hooksRaw)
	}
	if err == nil {
		var factsRaw []byte
		factsRaw, err = marshalIndent(factsSheet)
		if err == nil {
			err = m.artifacts.WriteArtifact(filepath.Join(outputDir, "facts_sheet.json"), factsRaw)
		}
	}
	if err != nil {
		return NewErrorWithDetails(CodeIOWriteFailed, "Failed to write hooks.json or facts_sheet.json.", map[string]any{"message": err.Error()})
	}
	return nil
}

// writeMetadata persists the job descriptor. It runs twice per job: once
// after resolution and once after all artifacts exist.
func (m *Manager) writeMetadata(metadataPath string, job *Job) error {
	view, ok := m.store.View(job.ID)
	if !ok {
		return NewError(CodeIOWriteFailed, "Job record disappeared during execution.")
	}
	payload := map[string]any{
		"url":                   job.VideoURL,
		"videoId":               view.Video.VideoID,
		"title":                 view.Video.Title,
		"channel":               view.Video.Channel,
		"durationSec":           view.Video.DurationSec,
		"createdAtUtc":          view.CreatedAtUTC,
		"asrProvider":           job.ASREngine,
		"asrModel":              job.ASRModel,
		"transcriptPath":        view.TranscriptPath,
		"outputDir":             view.OutputDir,
		"summaryPath":           view.SummaryPath,
		"hooksPath":             view.HooksPath,
		"factsSheetPath":        view.FactsSheetPath,
		"linkedinCarouselPath":  view.LinkedInCarouselPath,
		"xThreadPath":           view.XThreadPath,
		"newsletterSummaryPath": view.NewsletterSummaryPath,
		"draftTone":             job.DraftTone,
	}
	raw, err := marshalIndent(payload)
	if err == nil {
		err = m.artifacts.WriteArtifact(metadataPath, raw)
	}
	if err != nil {
		return NewErrorWithDetails(CodeIOWriteFailed, "Failed to write metadata.json.", map[string]any{"message": err.Error()})
	}
	return nil
}

// Status setters

func (m *Manager) setStage(jobID string, stage Stage, progress float64) {
	m.store.Update(jobID, func(job *Job) {
		if job.terminal() {
			return
		}
		job.Stage = stage
		job.Progress = progress
		job.UpdatedAt = time.Now()
	})
}

func (m *Manager) setStageRunning(jobID string, stage Stage, progress float64) {
	m.store.Update(jobID, func(job *Job) {
		if job.terminal() {
			return
		}
		job.Status = StatusRunning
		job.Stage = stage
		job.Progress = progress
		job.UpdatedAt = time.Now()
	})
}

func (m *Manager) markDone(jobID, summary string) {
	m.store.Update(jobID, func(job *Job) {
		if job.terminal() {
			return
		}
		job.Status = StatusDone
		job.Stage = StageDone
		job.Progress = 1.0
		job.Summary = summary
		job.UpdatedAt = time.Now()
	})
	m.logger.Info("youtube job done", "jobId", jobID)
}

func (m *Manager) markFailed(jobID, code, message string, details map[string]any) {
	m.store.Update(jobID, func(job *Job) {
		if job.terminal() {
			return
		}
		job.Status = StatusFailed
		job.Stage = StageFailed
		job.Err = &ErrorInfo{Code: code, Message: message, Details: copyDetails(details)}
		job.UpdatedAt = time.Now()
	})
	m.logger.Warn("youtube job failed", "jobId", jobID, "code", code, "message", message)
}

func (m *Manager) markCancelled(jobID, message string) {
	m.store.Update(jobID, func(job *Job) {
		if job.terminal() {
			return
		}
		markCancelledLocked(job, message)
	})
	m.logger.Info("youtube job cancelled", "jobId", jobID)
}

// markCancelledLocked flips the job to Cancelled. Caller holds the store lock.
func markCancelledLocked(job *Job, message string) {
	job.Status = StatusCancelled
	job.Stage = StageCancelled
	job.Err = &ErrorInfo{Code: CodeJobCancelled, Message: message, Details: map[string]any{}}
	job.UpdatedAt = time.Now()
}

// newestSourceFile picks the most recently modified work/source.* download.
func newestSourceFile(workDir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(workDir, "source.*"))
	if err != nil || len(matches) == 0 {
		return "", NewError(CodeDownloadFailed, "yt-dlp completed but no source audio file was produced.")
	}
	type candidate struct {
		path    string
		modTime time.Time
	}
	var candidates []candidate
	for _, match := range matches {
		info, statErr := os.Stat(match)
		if statErr != nil || info.IsDir() {
			continue
		}
		candidates = append(candidates, candidate{path: match, modTime: info.ModTime()})
	}
	if len(candidates) == 0 {
		return "", NewError(CodeDownloadFailed, "yt-dlp completed but no source audio file was produced.")
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].modTime.After(candidates[j].modTime)
	})
	return candidates[0].path, nil
}

func marshalIndent(v any) ([]byte, error) {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(raw, '\n'), nil
}

func jsonString(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func jsonNumber(m map[string]any, key string) float64 {
	if v, ok := m[key].(float64); ok {
		return v
	}
	return 0
}
