package pipeline

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeFolderComponent(t *testing.T) {
	assert.Equal(t, "abc-DEF_123", sanitizeFolderComponent("abc-DEF_123"))
	assert.Equal(t, "a_b_c", sanitizeFolderComponent("a b/c"))
	assert.Equal(t, "video", sanitizeFolderComponent("__video__"))
	assert.Equal(t, "unknown", sanitizeFolderComponent(""))
	assert.Equal(t, "unknown", sanitizeFolderComponent("///"))
	assert.Len(t, sanitizeFolderComponent(strings.Repeat("a", 200)), 96)
}

func TestIsYouTubeURL(t *testing.T) {
	assert.True(t, IsYouTubeURL("https://www.youtube.com/watch?v=abc123"))
	assert.True(t, IsYouTubeURL("http://youtu.be/abc123"))
	assert.True(t, IsYouTubeURL("  HTTPS://YOUTUBE.COM/watch?v=x  "))

	assert.False(t, IsYouTubeURL("https://example.com/video"))
	assert.False(t, IsYouTubeURL("youtube.com/watch?v=abc"))
	assert.False(t, IsYouTubeURL("ftp://youtube.com/x"))
	assert.False(t, IsYouTubeURL(""))
}

func TestNormalizeDraftTone(t *testing.T) {
	assert.Equal(t, "playful", NormalizeDraftTone(" Playful "))
	assert.Equal(t, "direct", NormalizeDraftTone("DIRECT"))
	assert.Equal(t, "professional", NormalizeDraftTone("professional"))
	assert.Equal(t, "professional", NormalizeDraftTone("sarcastic"))
	assert.Equal(t, "professional", NormalizeDraftTone(""))
}

func TestEnvToolPath(t *testing.T) {
	assert.Empty(t, envToolPath(""))
	assert.Empty(t, envToolPath("TEST_TOOL_UNSET"))

	t.Setenv("TEST_TOOL_MISSING", "/does/not/exist")
	assert.Empty(t, envToolPath("TEST_TOOL_MISSING"))

	dir := t.TempDir()
	t.Setenv("TEST_TOOL_DIR", dir)
	assert.Empty(t, envToolPath("TEST_TOOL_DIR"), "directories are not tools")

	tool := filepath.Join(dir, "fake-tool")
	require.NoError(t, os.WriteFile(tool, []byte("#!/bin/sh\n"), 0755))
	t.Setenv("TEST_TOOL_FILE", tool)
	assert.Equal(t, tool, envToolPath("TEST_TOOL_FILE"))
}

func TestToolSet_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	ytdlp := filepath.Join(dir, "yt-dlp-stub")
	ffmpeg := filepath.Join(dir, "ffmpeg-stub")
	require.NoError(t, os.WriteFile(ytdlp, []byte("#!/bin/sh\n"), 0755))
	require.NoError(t, os.WriteFile(ffmpeg, []byte("#!/bin/sh\n"), 0755))

	t.Setenv("TEST_YTDLP_PATH", ytdlp)
	t.Setenv("TEST_FFMPEG_PATH", ffmpeg)

	tools := NewToolSet("TEST_YTDLP_PATH", "TEST_FFMPEG_PATH")
	assert.Equal(t, []string{ytdlp}, tools.YtDlpCommand())
	assert.Equal(t, []string{ffmpeg}, tools.FfmpegCommand())
}
