// Package pipeline implements the YouTube ingest/transcribe/summarize job
// pipeline: an in-memory job store, a child-process runner with streaming
// timeout/cancel semantics, and the multi-stage orchestrator that turns a
// video URL into transcript, hooks, facts sheet and draft artifacts.
//
// Jobs are only created by explicit API requests; nothing is scheduled on
// startup.
package pipeline

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/google/uuid"

	"github.com/avicente/clipdraft/internal/llm"
)

// Status represents the observable state of a job.
type Status string

const (
	StatusQueued    Status = "Queued"
	StatusRunning   Status = "Running"
	StatusDone      Status = "Done"
	StatusFailed    Status = "Failed"
	StatusCancelled Status = "Cancelled"
)

// Stage identifies the pipeline step a job is currently executing. Stages
// advance monotonically; a job never re-enters a prior stage.
type Stage string

const (
	StageResolving         Stage = "Resolving"
	StageDownloadingAudio  Stage = "DownloadingAudio"
	StageConvertingAudio   Stage = "ConvertingAudio"
	StageTranscribing      Stage = "Transcribing"
	StageWritingTranscript Stage = "WritingTranscript"
	StageExtractingHooks   Stage = "ExtractingHooks"
	StageGeneratingDrafts  Stage = "GeneratingDrafts"
	StageWritingAssets     Stage = "WritingAssets"
	StageDone              Stage = "Done"
	StageFailed            Stage = "Failed"
	StageCancelled         Stage = "Cancelled"
)

// ErrorInfo is the terminal error recorded on a Failed or Cancelled job.
type ErrorInfo struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details"`
}

// Job is the unit of work. All fields are guarded by the owning Store's lock;
// external observers only ever see View projections.
type Job struct {
	ID string

	// Immutable inputs
	VideoURL     string
	LanguageHint string
	KeepAudio    bool
	ASREngine    string
	ASRModel     string
	Generation   llm.Config
	DraftTone    string

	// Observable state
	Status    Status
	Stage     Stage
	Progress  float64
	CreatedAt time.Time
	UpdatedAt time.Time

	// Resolved artifacts
	VideoID               string
	Title                 string
	Channel               string
	DurationSec           int
	OutputDir             string
	TranscriptPath        string
	SummaryPath           string
	HooksPath             string
	FactsSheetPath        string
	LinkedInCarouselPath  string
	XThreadPath           string
	NewsletterSummaryPath string

	// Terminal results
	Summary string
	Err     *ErrorInfo

	// Cancellation: ctx is cancelled exactly once by CancelJob; the worker
	// and the process runner observe it at every blocking point.
	ctx      context.Context
	cancelFn context.CancelFunc

	// At most one child process is attached at any time.
	activeProc *exec.Cmd
}

// newJob creates a Queued job with a fresh id and cancellation handle.
func newJob(videoURL, languageHint string, keepAudio bool, asrEngine, asrModel string, gen llm.Config, draftTone string) *Job {
	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now()
	return &Job{
		ID:           fmt.Sprintf("ytjob-%x", [16]byte(uuid.New())),
		VideoURL:     videoURL,
		LanguageHint: languageHint,
		KeepAudio:    keepAudio,
		ASREngine:    asrEngine,
		ASRModel:     asrModel,
		Generation:   gen,
		DraftTone:    draftTone,
		Status:       StatusQueued,
		Stage:        StageResolving,
		Progress:     0,
		CreatedAt:    now,
		UpdatedAt:    now,
		ctx:          ctx,
		cancelFn:     cancel,
	}
}

// Cancelled reports whether the job's cancel signal has been raised.
func (j *Job) Cancelled() bool {
	select {
	case <-j.ctx.Done():
		return true
	default:
		return false
	}
}

// terminal reports whether the job reached a sticky terminal status.
func (j *Job) terminal() bool {
	switch j.Status {
	case StatusDone, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// VideoView is the resolved video metadata carried in a job view.
type VideoView struct {
	VideoID     string `json:"videoId"`
	Title       string `json:"title"`
	Channel     string `json:"channel"`
	DurationSec int    `json:"durationSec"`
}

// View is a deep-copied snapshot of a job. View values contain no live
// references to the internal record.
type View struct {
	JobID                 string     `json:"jobId"`
	Status                Status     `json:"status"`
	Stage                 Stage      `json:"stage"`
	Progress              float64    `json:"progress"`
	Video                 VideoView  `json:"video"`
	OutputDir             string     `json:"outputDir"`
	TranscriptPath        string     `json:"transcriptPath"`
	SummaryPath           string     `json:"summaryPath"`
	HooksPath             string     `json:"hooksPath"`
	FactsSheetPath        string     `json:"factsSheetPath"`
	LinkedInCarouselPath  string     `json:"linkedinCarouselPath"`
	XThreadPath           string     `json:"xThreadPath"`
	NewsletterSummaryPath string     `json:"newsletterSummaryPath"`
	Summary               *string    `json:"summary"`
	Error                 *ErrorInfo `json:"error"`
	CreatedAtUTC          string     `json:"createdAtUtc"`
	UpdatedAtUTC          string     `json:"updatedAtUtc"`
	KeepAudio             bool       `json:"keepAudio"`
}

// view projects the job into a snapshot. Caller must hold the store lock.
func (j *Job) view() View {
	v := View{
		JobID:    j.ID,
		Status:   j.Status,
		Stage:    j.Stage,
		Progress: roundProgress(j.Progress),
		Video: VideoView{
			VideoID:     j.VideoID,
			Title:       j.Title,
			Channel:     j.Channel,
			DurationSec: j.DurationSec,
		},
		OutputDir:             j.OutputDir,
		TranscriptPath:        j.TranscriptPath,
		SummaryPath:           j.SummaryPath,
		HooksPath:             j.HooksPath,
		FactsSheetPath:        j.FactsSheetPath,
		LinkedInCarouselPath:  j.LinkedInCarouselPath,
		XThreadPath:           j.XThreadPath,
		NewsletterSummaryPath: j.NewsletterSummaryPath,
		CreatedAtUTC:          formatUTC(j.CreatedAt),
		UpdatedAtUTC:          formatUTC(j.UpdatedAt),
		KeepAudio:             j.KeepAudio,
	}
	if j.Status == StatusDone {
		summary := j.Summary
		v.Summary = &summary
	}
	if j.Err != nil {
		errCopy := ErrorInfo{Code: j.Err.Code, Message: j.Err.Message, Details: copyDetails(j.Err.Details)}
		v.Error = &errCopy
	}
	return v
}

func copyDetails(details map[string]any) map[string]any {
	out := make(map[string]any, len(details))
	for k, val := range details {
		out[k] = val
	}
	return out
}

func formatUTC(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}

func roundProgress(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	// Four decimal places, matching the wire shape clients expect.
	return float64(int(p*10000+0.5)) / 10000
}
