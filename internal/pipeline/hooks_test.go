package pipeline

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryParseJSONObject_PlainJSON(t *testing.T) {
	parsed, ok := tryParseJSONObject(`{"hooks": []}`)
	require.True(t, ok)
	assert.Contains(t, parsed, "hooks")
}

func TestTryParseJSONObject_CodeFence(t *testing.T) {
	raw := "Here you go:\n```json\n{\"hooks\": [{\"hook\": \"h\"}]}\n```\nHope that helps."
	parsed, ok := tryParseJSONObject(raw)
	require.True(t, ok)
	assert.Contains(t, parsed, "hooks")
}

func TestTryParseJSONObject_BraceSlice(t *testing.T) {
	raw := `The payload is {"hooks": []} as requested`
	parsed, ok := tryParseJSONObject(raw)
	require.True(t, ok)
	assert.Contains(t, parsed, "hooks")
}

func TestTryParseJSONObject_Garbage(t *testing.T) {
	_, ok := tryParseJSONObject("no json here at all")
	assert.False(t, ok)
	_, ok = tryParseJSONObject("")
	assert.False(t, ok)
}

func TestNormalizeHooksPayload_MissingHooksArray(t *testing.T) {
	_, err := normalizeHooksPayload(map[string]any{"something": "else"})
	require.Error(t, err)

	pe, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, CodeHooksExtractionFailed, pe.Code)
}

func TestNormalizeHooksPayload_BackfillsSupportingMoments(t *testing.T) {
	payload := map[string]any{
		"hooks": []any{
			map[string]any{
				"hook":    "Ship faster",
				"who":     "engineers",
				"outcome": "Cut release time in half",
				"proof":   "We went from weekly to daily deploys",
			},
		},
	}
	result, err := normalizeHooksPayload(payload)
	require.NoError(t, err)
	require.Len(t, result.Hooks, 3)

	first := result.Hooks[0]
	assert.Equal(t, 1, first.Rank)
	// Proof then outcome are promoted to quote cues.
	require.GreaterOrEqual(t, len(first.SupportingMoments), 2)
	assert.Equal(t, "We went from weekly to daily deploys", first.SupportingMoments[0].Quote)
	assert.Equal(t, "Cut release time in half", first.SupportingMoments[1].Quote)
	assert.Nil(t, first.SupportingMoments[0].StartSec)
	assert.Nil(t, first.SupportingMoments[0].EndSec)

	// Padding hooks fill the remaining slots with ranks 2 and 3.
	assert.Equal(t, 2, result.Hooks[1].Rank)
	assert.Equal(t, 3, result.Hooks[2].Rank)
	assert.Equal(t, "Generated fallback hook.", result.Hooks[1].Proof)
	assert.False(t, result.HasTimestamps)
}

func TestNormalizeHooksPayload_CapsAtThreeHooksAndQuotes(t *testing.T) {
	hook := map[string]any{
		"hook": "h", "who": "w", "outcome": "o", "proof": "p",
		"supporting_moments": []any{
			map[string]any{"quote": "one"},
			"two",
			map[string]any{"quote": "three"},
			map[string]any{"quote": "four"},
		},
	}
	payload := map[string]any{"hooks": []any{hook, hook, hook, hook, hook}}
	result, err := normalizeHooksPayload(payload)
	require.NoError(t, err)
	require.Len(t, result.Hooks, 3)
	assert.Len(t, result.Hooks[0].SupportingMoments, 3)
	assert.Equal(t, "two", result.Hooks[0].SupportingMoments[1].Quote)
}

func TestHooksArePlaceholder(t *testing.T) {
	result, err := normalizeHooksPayload(map[string]any{"hooks": []any{}})
	require.NoError(t, err)
	assert.True(t, hooksArePlaceholder(result))

	real := HooksPayload{Hooks: []Hook{
		{Hook: "A real hook", Outcome: "real outcome", Proof: "real proof"},
		{Hook: "Another hook", Outcome: "another outcome", Proof: "more proof"},
		{Hook: "Third hook", Outcome: "third outcome", Proof: "third proof"},
	}}
	assert.False(t, hooksArePlaceholder(real))

	// One placeholder among three real hooks is tolerated.
	real.Hooks[2].Outcome = "Actionable takeaway identified."
	assert.False(t, hooksArePlaceholder(real))

	real.Hooks[1].Proof = "Generated fallback hook."
	assert.True(t, hooksArePlaceholder(real))
}

func TestSplitSentences(t *testing.T) {
	sentences := splitSentences("First point here. Second one! Third one? trailing words")
	require.Len(t, sentences, 4)
	assert.Equal(t, "First point here.", sentences[0])
	assert.Equal(t, "Second one!", sentences[1])
	assert.Equal(t, "Third one?", sentences[2])
	assert.Equal(t, "trailing words", sentences[3])
}

func TestBuildTranscriptDerivedHooks(t *testing.T) {
	templates := DefaultDraftTemplates()
	transcript := strings.Join([]string{
		"Our strategy was to focus on one single channel for an entire year.",
		"The process we built around weekly reviews changed everything for the team.",
		"One mistake we made early was hiring before we had a repeatable system.",
		"The biggest lesson was that growth compounds when you stop context switching.",
		"Our framework for prioritization is embarrassingly simple but it works.",
		"The end result was tripling revenue without adding any headcount at all.",
	}, " ")

	hooks := buildTranscriptDerivedHooks(transcript, templates.DerivedHookKeywords, templates.DerivedHooks)
	require.Len(t, hooks, 3)
	for i, hook := range hooks {
		assert.Equal(t, i+1, hook.Rank)
		assert.NotEmpty(t, hook.Hook)
		assert.NotEmpty(t, hook.Proof)
		require.Len(t, hook.SupportingMoments, 2)
		// Quotes are verbatim transcript sentences.
		assert.Contains(t, transcript, hook.SupportingMoments[0].Quote)
	}
}

func TestBuildTranscriptDerivedHooks_TooSparse(t *testing.T) {
	templates := DefaultDraftTemplates()
	assert.Nil(t, buildTranscriptDerivedHooks("", templates.DerivedHookKeywords, templates.DerivedHooks))
	assert.Nil(t, buildTranscriptDerivedHooks("Short. Tiny. Words.", templates.DerivedHookKeywords, templates.DerivedHooks))
}

func TestBuildFallbackHooks(t *testing.T) {
	hooks := buildFallbackHooks("My Video")
	require.Len(t, hooks, 3)
	assert.Contains(t, hooks[0].Outcome, "My Video")

	hooks = buildFallbackHooks("  ")
	assert.Contains(t, hooks[0].Outcome, "this video")
}

func TestExtractQuoteCues_DedupsCaseInsensitive(t *testing.T) {
	payload := HooksPayload{Hooks: []Hook{
		{SupportingMoments: []SupportingMoment{{Quote: "Alpha"}, {Quote: "beta"}}},
		{SupportingMoments: []SupportingMoment{{Quote: "ALPHA"}, {Quote: "gamma"}}},
	}}
	cues := extractQuoteCues(payload, 10)
	assert.Equal(t, []string{"Alpha", "beta", "gamma"}, cues)

	cues = extractQuoteCues(payload, 2)
	assert.Equal(t, []string{"Alpha", "beta"}, cues)
}

func TestBuildSummaryText(t *testing.T) {
	payload := HooksPayload{Hooks: []Hook{
		{Outcome: "Cut costs by half."},
		{Outcome: "Double output"},
		{Hook: "Third angle"},
	}}
	summary := buildSummaryText("T", payload)
	assert.Equal(t, "T highlights Cut costs by half; Double output; Third angle.", summary)
}

func TestBuildSummaryText_Truncates(t *testing.T) {
	payload := HooksPayload{Hooks: []Hook{
		{Outcome: strings.Repeat("a", 900)},
	}}
	summary := buildSummaryText("T", payload)
	assert.LessOrEqual(t, len(summary), 800)
	assert.True(t, strings.HasSuffix(summary, "..."))
}

func TestBuildSummaryText_NoOutcomes(t *testing.T) {
	summary := buildSummaryText("", HooksPayload{})
	assert.Equal(t, "This video was transcribed successfully, but no strong value hooks were extracted.", summary)
}

func TestExtractNotableTerms(t *testing.T) {
	hooks := []Hook{{Hook: "Scaling playbook", Who: "founders", Outcome: "the growth", Proof: "with data"}}
	terms := extractNotableTerms("Startup Lessons", "Channel", hooks, 3)
	require.Len(t, terms, 3)
	assert.Equal(t, []string{"Startup", "Lessons", "Channel"}, terms)

	// Stopwords never surface; empty input yields the neutral set.
	terms = extractNotableTerms("the and for", "", nil, 3)
	assert.Equal(t, []string{"insight", "strategy", "execution"}, terms)
}

func TestBuildFactsSheet(t *testing.T) {
	payload := HooksPayload{Hooks: []Hook{
		{Hook: "Main hook", Who: "operators", Outcome: "Outcome one", Proof: "Proof one"},
		{Hook: "Second", Outcome: "Outcome two", Proof: "Proof two"},
		{Hook: "Third", Outcome: "Outcome three", Proof: "Proof three"},
	}}
	sheet := buildFactsSheet("Title", payload, "professional")

	assert.Equal(t, "Title -- Main hook.", sheet.Topic)
	assert.Equal(t, "operators", sheet.TargetAudience)
	require.Len(t, sheet.KeyPoints, 5)
	for _, point := range sheet.KeyPoints {
		assert.True(t, strings.HasSuffix(point, "."), point)
	}
	assert.LessOrEqual(t, len(sheet.NotableTerms), 3)
	assert.Equal(t, "professional", sheet.DraftTone)

	_, err := time.Parse("2006-01-02T15:04:05Z", sheet.GeneratedAtUTC)
	require.NoError(t, err)
}

func TestBuildFactsSheet_PadsKeyPoints(t *testing.T) {
	sheet := buildFactsSheet("", HooksPayload{}, "direct")
	require.Len(t, sheet.KeyPoints, 5)
	assert.Equal(t, "Additional takeaway available in generated hook drafts.", sheet.KeyPoints[0])
	assert.Equal(t, "Core topic from transcripted video.", sheet.Topic)
	assert.Equal(t, "professionals seeking actionable insights", sheet.TargetAudience)
}
