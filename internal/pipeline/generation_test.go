package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// richTranscript carries enough keyword-bearing sentences for derived hooks.
const richTranscript = "Our strategy was to focus on one single channel for an entire year. " +
	"The process we built around weekly reviews changed everything for the team. " +
	"One mistake we made early was hiring before we had a repeatable system. " +
	"The biggest lesson was that growth compounds when you stop context switching. " +
	"Our framework for prioritization is embarrassingly simple but it works. " +
	"The end result was tripling revenue without adding any headcount at all."

func TestExtractHooks_EmptyTranscriptUsesFallback(t *testing.T) {
	completer := &scriptedCompleter{}
	m := newTestManager(t, completer, nil, nil)

	job := testJob("https://youtu.be/abc")
	job.Title = "My Vid"

	payload, err := m.extractHooks(job, "   ")
	require.NoError(t, err)
	require.Len(t, payload.Hooks, 3)
	assert.Contains(t, payload.Hooks[0].Outcome, "My Vid")
	assert.False(t, payload.HasTimestamps)
	assert.NotEmpty(t, payload.GeneratedAtUTC)
	assert.Equal(t, 0, completer.callCount(), "no generation call for an empty transcript")
}

func TestExtractHooks_ValidFirstResponse(t *testing.T) {
	completer := &scriptedCompleter{queue: []completion{{content: validHooksResponse}}}
	m := newTestManager(t, completer, nil, nil)

	payload, err := m.extractHooks(testJob("https://youtu.be/abc"), richTranscript)
	require.NoError(t, err)
	require.Len(t, payload.Hooks, 3)
	assert.Equal(t, "Focus on a single channel", payload.Hooks[0].Hook)
	assert.Equal(t, 1, completer.callCount())
}

func TestExtractHooks_RepairRecoversMalformedJSON(t *testing.T) {
	completer := &scriptedCompleter{queue: []completion{
		{content: "sure! here are your hooks, enjoy"},
		{content: validHooksResponse},
	}}
	m := newTestManager(t, completer, nil, nil)

	payload, err := m.extractHooks(testJob("https://youtu.be/abc"), richTranscript)
	require.NoError(t, err)
	require.Len(t, payload.Hooks, 3)
	assert.Equal(t, 2, completer.callCount())
}

func TestExtractHooks_PlaceholderReplacedByDerivedHooks(t *testing.T) {
	completer := &scriptedCompleter{queue: []completion{{content: `{"hooks": []}`}}}
	m := newTestManager(t, completer, nil, nil)

	payload, err := m.extractHooks(testJob("https://youtu.be/abc"), richTranscript)
	require.NoError(t, err)
	require.Len(t, payload.Hooks, 3)

	for _, hook := range payload.Hooks {
		assert.NotEqual(t, "Generated fallback hook.", hook.Proof)
		require.NotEmpty(t, hook.SupportingMoments)
		// Derived quotes are verbatim transcript sentences.
		assert.Contains(t, richTranscript, hook.SupportingMoments[0].Quote)
	}
}

func TestExtractHooks_LLMErrorWrapsAsExtractionFailure(t *testing.T) {
	completer := &scriptedCompleter{queue: []completion{
		{err: NewError(CodeLLMRequestFailed, "Generation engine is unavailable.")},
	}}
	m := newTestManager(t, completer, nil, nil)

	_, err := m.extractHooks(testJob("https://youtu.be/abc"), richTranscript)
	require.Error(t, err)
	pe, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, CodeHooksExtractionFailed, pe.Code)
	assert.Equal(t, SubcodeHooksJSONInvalid, pe.Details["subcode"])
	assert.Equal(t, "Failed to call generation engine.", pe.Details["message"])
}

func TestExtractHooks_CancelledJob(t *testing.T) {
	m := newTestManager(t, &scriptedCompleter{}, nil, nil)

	job := testJob("https://youtu.be/abc")
	job.cancelFn()

	_, err := m.extractHooks(job, richTranscript)
	require.Error(t, err)
	pe, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, CodeJobCancelled, pe.Code)
}

func TestGenerateDrafts_CombinedResponse(t *testing.T) {
	completer := &scriptedCompleter{queue: []completion{
		{content: validDraftsResponse(validThreadPosts())},
	}}
	m := newTestManager(t, completer, nil, nil)

	linkedin, xThread, newsletter, err := m.generateDrafts(testJob("https://youtu.be/abc"), threeHooks())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(linkedin, "Slide 1:"))
	assert.True(t, strings.HasPrefix(xThread, "[1/5]"))
	assert.True(t, newsletterIsUsable(newsletter))
	assert.Equal(t, 1, completer.callCount())
}

func TestGenerateDrafts_FallsBackToSeparateGeneration(t *testing.T) {
	linkedinOnly := "Slide 1: Focus wins\n" +
		"Slide 2: Weekly loops\n" +
		"Slide 3: Hire late\n" +
		"Slide 4: Proof\n" +
		"Slide 5: Takeaway"
	completer := &scriptedCompleter{queue: []completion{
		{content: "no delimiters anywhere in this reply"},
		{content: "the repair also forgot the delimiters"},
		{content: linkedinOnly},
		{content: strings.Join(validThreadPosts(), "\n")},
		{content: usableNewsletter()},
	}}
	m := newTestManager(t, completer, nil, nil)

	linkedin, xThread, newsletter, err := m.generateDrafts(testJob("https://youtu.be/abc"), threeHooks())
	require.NoError(t, err)
	assert.Contains(t, linkedin, "Slide 5:")
	assert.Contains(t, xThread, "[5/5]")
	assert.Contains(t, newsletter, "### Key Takeaways")
	assert.Equal(t, 5, completer.callCount(), "combined try, one repair, then three per-asset calls")
}

func TestGenerateDrafts_ThreadValidationFailure(t *testing.T) {
	fourPosts := validThreadPosts()[:4]
	completer := &scriptedCompleter{queue: []completion{
		{content: validDraftsResponse(fourPosts)},
		{content: strings.Join(validThreadPosts()[:3], "\n")},
	}}
	m := newTestManager(t, completer, nil, nil)

	_, _, _, err := m.generateDrafts(testJob("https://youtu.be/abc"), threeHooks())
	require.Error(t, err)
	pe, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, CodeDraftsGenerationFailed, pe.Code)
	assert.Equal(t, SubcodeDraftsValidationFailed, pe.Details["subcode"])
	assert.Equal(t, 4, pe.Details["postCount"])
	assert.Equal(t, 2, completer.callCount())
}

func TestGenerateDrafts_CancelledJob(t *testing.T) {
	m := newTestManager(t, &scriptedCompleter{}, nil, nil)

	job := testJob("https://youtu.be/abc")
	job.cancelFn()

	_, _, _, err := m.generateDrafts(job, threeHooks())
	require.Error(t, err)
	pe, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, CodeJobCancelled, pe.Code)
}

func TestValidateLinkedInCarousel_FallsBackToTemplate(t *testing.T) {
	completer := &scriptedCompleter{queue: []completion{
		{content: "Slide 1: still too short\nSlide 2: nope"},
	}}
	m := newTestManager(t, completer, nil, nil)

	carousel, err := m.validateLinkedInCarousel(testJob("https://youtu.be/abc"), "Slide 1: only one", threeHooks())
	require.NoError(t, err)
	assert.Equal(t, 1, completer.callCount(), "one repair before the template fallback")

	slides := extractLinkedInSlides(carousel)
	assert.GreaterOrEqual(t, len(slides), linkedInMinSlide)
	assert.LessOrEqual(t, len(slides), linkedInMaxSlide)
	assert.Contains(t, carousel, "Hook one")
}

func TestValidateNewsletterSummary_RepairSucceeds(t *testing.T) {
	completer := &scriptedCompleter{queue: []completion{
		{content: usableNewsletter()},
	}}
	m := newTestManager(t, completer, nil, nil)

	newsletter, err := m.validateNewsletterSummary(testJob("https://youtu.be/abc"), "too thin", threeHooks())
	require.NoError(t, err)
	assert.True(t, newsletterIsUsable(newsletter))
	assert.Equal(t, 1, completer.callCount())
}

func TestComposeGroundingContext(t *testing.T) {
	job := testJob("https://youtu.be/abc")
	job.Title = "Title"
	job.Channel = "Chan"

	ctx := composeGroundingContext(job, "{}", []string{"a quote"})
	assert.Contains(t, ctx, "Video title: Title")
	assert.Contains(t, ctx, "Channel: Chan")
	assert.Contains(t, ctx, "- \"a quote\"")

	ctx = composeGroundingContext(job, "{}", nil)
	assert.Contains(t, ctx, "No explicit quote cues available.")
}
