package pipeline

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

const toolProbeTimeout = 8 * time.Second

// ToolSet resolves the external commands the pipeline shells out to. Paths are
// re-resolved on every call so an install made after startup is picked up
// without a restart.
type ToolSet struct {
	ytdlpEnv  string
	ffmpegEnv string
}

// NewToolSet creates a ToolSet reading overrides from the given env var names.
func NewToolSet(ytdlpEnv, ffmpegEnv string) *ToolSet {
	return &ToolSet{ytdlpEnv: ytdlpEnv, ffmpegEnv: ffmpegEnv}
}

// YtDlpCommand resolves the yt-dlp invocation: an explicit env override that
// points at an existing file, then PATH lookup, then a `python -m yt_dlp`
// fallback for pip installs without a console script. Empty means unavailable.
func (t *ToolSet) YtDlpCommand() []string {
	if path := envToolPath(t.ytdlpEnv); path != "" {
		return []string{path}
	}
	if path, err := exec.LookPath("yt-dlp"); err == nil {
		return []string{path}
	}
	for _, python := range []string{"python3", "python"} {
		exe, err := exec.LookPath(python)
		if err != nil {
			continue
		}
		if canRunCommand(exe, "-m", "yt_dlp", "--version") {
			return []string{exe, "-m", "yt_dlp"}
		}
	}
	return nil
}

// FfmpegCommand resolves the ffmpeg invocation, or nil when unavailable.
func (t *ToolSet) FfmpegCommand() []string {
	if path := envToolPath(t.ffmpegEnv); path != "" {
		return []string{path}
	}
	if path, err := exec.LookPath("ffmpeg"); err == nil {
		return []string{path}
	}
	return nil
}

// ToolStatus reports one resolved tool in a dependency-status response.
type ToolStatus struct {
	Available bool   `json:"available"`
	Path      string `json:"path"`
}

// DependencyStatus is the payload of the youtube status endpoint.
type DependencyStatus struct {
	Ready             bool       `json:"ready"`
	YtDlp             ToolStatus `json:"ytDlp"`
	Ffmpeg            ToolStatus `json:"ffmpeg"`
	DataRoot          string     `json:"dataRoot"`
	MaxConcurrentJobs int        `json:"maxConcurrentJobs"`
}

// envToolPath reads an explicit tool path from the environment, expanding ~
// and $VARS. Anything that is not an existing regular file is ignored.
func envToolPath(envVar string) string {
	if envVar == "" {
		return ""
	}
	candidate := strings.TrimSpace(os.Getenv(envVar))
	if candidate == "" {
		return ""
	}
	if strings.HasPrefix(candidate, "~") {
		home, err := os.UserHomeDir()
		if err == nil {
			candidate = filepath.Join(home, strings.TrimPrefix(candidate, "~"))
		}
	}
	candidate = os.ExpandEnv(candidate)
	info, err := os.Stat(candidate)
	if err != nil || info.IsDir() {
		return ""
	}
	return candidate
}

// canRunCommand probes whether the command exits 0 within the probe timeout.
func canRunCommand(args ...string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), toolProbeTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Stdout = nil
	cmd.Stderr = nil
	return cmd.Run() == nil
}

var folderComponentRe = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// sanitizeFolderComponent maps arbitrary video ids and titles to a safe
// directory name: replace disallowed bytes, strip edge underscores, cap at 96.
func sanitizeFolderComponent(raw string) string {
	cleaned := folderComponentRe.ReplaceAllString(raw, "_")
	cleaned = strings.Trim(cleaned, "_")
	if cleaned == "" {
		return "unknown"
	}
	if len(cleaned) > 96 {
		cleaned = cleaned[:96]
	}
	return cleaned
}

// IsYouTubeURL reports whether the URL looks like a YouTube watch or share
// link. Only scheme and host markers are checked; yt-dlp does the real
// validation during resolution.
func IsYouTubeURL(url string) bool {
	lowered := strings.ToLower(strings.TrimSpace(url))
	if !strings.HasPrefix(lowered, "http://") && !strings.HasPrefix(lowered, "https://") {
		return false
	}
	return strings.Contains(lowered, "youtube.com/") || strings.Contains(lowered, "youtu.be/")
}

// NormalizeDraftTone maps the requested tone onto the supported set, defaulting
// to professional.
func NormalizeDraftTone(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "playful":
		return "playful"
	case "direct":
		return "direct"
	default:
		return "professional"
	}
}
