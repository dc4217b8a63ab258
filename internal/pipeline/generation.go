package pipeline

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/avicente/clipdraft/internal/llm"
)

// callLLM runs one completion against the job's generation endpoint and maps
// every failure to LLM_REQUEST_FAILED.
func (m *Manager) callLLM(job *Job, systemPrompt, userPrompt string, maxTokens int, temperature float64) (string, error) {
	if job.Cancelled() {
		return "", errCancelled()
	}

	content, err := m.completer.Complete(job.ctx, job.Generation, systemPrompt, userPrompt, maxTokens, temperature)
	if err == nil {
		return content, nil
	}
	if job.Cancelled() {
		return "", errCancelled()
	}

	var reqErr *llm.RequestError
	if errors.As(err, &reqErr) {
		details := map[string]any{}
		if reqErr.StatusCode != 0 {
			details["statusCode"] = reqErr.StatusCode
		}
		if reqErr.Body != "" {
			body, _ := truncateText(reqErr.Body, m.limits.CaptureMaxChars)
			details["responseBody"] = body
		}
		if reqErr.Reason != "" {
			details["message"] = reqErr.Reason
		}
		return "", NewErrorWithDetails(CodeLLMRequestFailed, reqErr.Message, details)
	}
	return "", NewErrorWithDetails(CodeLLMRequestFailed, "Failed to call generation engine.", map[string]any{"message": err.Error()})
}

// hooksSchemaJSON is the shape the extraction prompt asks the model for.
const hooksSchemaJSON = `{
  "hasTimestamps": false,
  "hooks": [
    {
      "rank": 1,
      "hook": "string",
      "who": "string",
      "outcome": "string",
      "proof": "string",
      "supporting_moments": [
        {
          "quote": "string",
          "startSec": null,
          "endSec": null
        }
      ]
    }
  ]
}`

// extractHooks turns the transcript into the hooks payload. An empty
// transcript short-circuits to deterministic fallback hooks; a malformed
// model response gets exactly one repair attempt before failing with
// HOOKS_EXTRACTION_FAILED. Placeholder-only responses are replaced with
// transcript-derived hooks when the transcript supports them.
func (m *Manager) extractHooks(job *Job, transcriptText string) (HooksPayload, error) {
	if job.Cancelled() {
		return HooksPayload{}, errCancelled()
	}

	transcript := strings.TrimSpace(transcriptText)
	if transcript == "" {
		return HooksPayload{
			HasTimestamps:  false,
			GeneratedAtUTC: formatUTC(time.Now()),
			DraftTone:      job.DraftTone,
			Hooks:          buildFallbackHooks(job.Title),
		}, nil
	}

	maxChars := job.Generation.MaxInputChars
	if maxChars < 2000 {
		maxChars = 2000
	}
	excerpt := smartExcerpt(transcript, maxChars)

	systemPrompt := "You are a content strategist. Given a video transcript, extract exactly 3 value hooks. " +
		"Return ONLY valid JSON matching the provided schema. No markdown fences. No commentary."
	userPrompt := "Return exactly one JSON object that matches this schema:\n" +
		hooksSchemaJSON + "\n\n" +
		"Video title: " + orUnknown(job.Title) + "\n" +
		"Channel: " + orUnknown(job.Channel) + "\n" +
		"DurationSec: " + strconv.Itoa(maxInt(0, job.DurationSec)) + "\n" +
		"Draft tone: " + job.DraftTone + "\n\n" +
		"Transcript excerpt:\n" + excerpt

	firstRaw, err := m.callLLM(job, systemPrompt, userPrompt, 2000, 0.2)
	if err != nil {
		return HooksPayload{}, wrapHooksFailure(err, "", m.limits.CaptureMaxChars)
	}

	parsed, ok := tryParseJSONObject(firstRaw)
	if !ok {
		repairedRaw, repairErr := m.callLLM(job,
			"Return ONLY valid JSON. Fix the JSON below to match the schema exactly. Do not add text outside the JSON object.",
			"Schema:\n"+hooksSchemaJSON+"\n\nMalformed JSON:\n"+firstRaw,
			2200, 0.0,
		)
		if repairErr != nil {
			return HooksPayload{}, wrapHooksFailure(repairErr, firstRaw, m.limits.CaptureMaxChars)
		}
		parsed, ok = tryParseJSONObject(repairedRaw)
		if !ok {
			repairedSafe, _ := truncateText(repairedRaw, m.limits.CaptureMaxChars)
			return HooksPayload{}, NewErrorWithDetails(
				CodeHooksExtractionFailed,
				"Failed to parse hooks JSON after repair retry.",
				map[string]any{
					"subcode":      SubcodeHooksJSONInvalid,
					"responseBody": repairedSafe,
				},
			)
		}
	}

	normalized, err := normalizeHooksPayload(parsed)
	if err != nil {
		return HooksPayload{}, wrapHooksFailure(err, firstRaw, m.limits.CaptureMaxChars)
	}
	if hooksArePlaceholder(normalized) {
		if derived := buildTranscriptDerivedHooks(transcript, m.templates.DerivedHookKeywords, m.templates.DerivedHooks); derived != nil {
			m.logger.Info("hooks rebuilt from transcript", "jobId", job.ID)
			normalized = HooksPayload{HasTimestamps: false, Hooks: derived}
		}
	}

	normalized.HasTimestamps = false
	normalized.GeneratedAtUTC = formatUTC(time.Now())
	normalized.DraftTone = job.DraftTone
	return normalized, nil
}

// wrapHooksFailure re-raises cancellation and existing extraction failures,
// and wraps everything else as HOOKS_EXTRACTION_FAILED.
func wrapHooksFailure(err error, firstRaw string, captureMax int) error {
	pe, ok := AsError(err)
	if ok && (pe.Code == CodeJobCancelled || pe.Code == CodeHooksExtractionFailed) {
		return pe
	}
	firstSafe, _ := truncateText(firstRaw, captureMax)
	details := map[string]any{
		"subcode":      SubcodeHooksJSONInvalid,
		"responseBody": firstSafe,
	}
	if ok {
		if pe.Code != CodeLLMRequestFailed {
			details["subcode"] = pe.Code
		}
		details["message"] = pe.Message
		details["details"] = pe.Details
	} else {
		details["message"] = err.Error()
	}
	return NewErrorWithDetails(CodeHooksExtractionFailed, "Failed to extract value hooks.", details)
}

// generateDrafts produces the three draft assets from the hooks payload. A
// combined generation with delimiter splitting is tried first, with one
// repair; if splitting still fails, each section is generated separately.
func (m *Manager) generateDrafts(job *Job, hooksData HooksPayload) (string, string, string, error) {
	if job.Cancelled() {
		return "", "", "", errCancelled()
	}

	hooksJSON := mustMarshalHooks(hooksData)
	quoteCues := extractQuoteCues(hooksData, 9)
	grounding := composeGroundingContext(job, hooksJSON, quoteCues)

	systemPrompt := "You are a professional content writer. Generate social media drafts from value hooks. " +
		"Output exactly three sections with exact delimiters and no extra sections. " +
		"Ground claims in the provided hook evidence."
	userPrompt := "Use this exact output format:\n" +
		"===LINKEDIN_CAROUSEL===\n" +
		"Slide 1: ...\n" +
		"...\n" +
		"===X_THREAD===\n" +
		"[1/5] ...\n" +
		"[2/5] ...\n" +
		"[3/5] ...\n" +
		"[4/5] ...\n" +
		"[5/5] ...\n" +
		"===NEWSLETTER_SUMMARY===\n" +
		"...\n\n" +
		"Rules:\n" +
		"- LinkedIn carousel: 5-8 slides, practical and concise.\n" +
		"- X thread: exactly 5 posts, each <= 280 characters.\n" +
		"- Newsletter summary: one polished markdown section suitable for monthly newsletter draft.\n" +
		"- Keep tone consistent with draft tone.\n\n" +
		"- Every substantive claim must be grounded in provided hooks/quotes.\n" +
		"- Do NOT invent external facts, numbers, or claims not supported by provided evidence.\n" +
		"- If uncertain, phrase cautiously as a draft suggestion.\n\n" +
		grounding

	firstRaw, err := m.callLLM(job, systemPrompt, userPrompt, 3000, 0.3)
	if err != nil {
		return "", "", "", wrapDraftsFailure(err, "", m.limits.CaptureMaxChars)
	}

	linkedin, xThread, newsletter, ok := splitDraftSections(firstRaw)
	if !ok {
		repairedRaw, repairErr := m.callLLM(job,
			"You produced malformed sections. Output exactly three sections with exact delimiters. Do not include commentary.",
			"Required delimiters:\n===LINKEDIN_CAROUSEL===\n===X_THREAD===\n===NEWSLETTER_SUMMARY===\n\nPrevious output:\n"+firstRaw,
			3200, 0.1,
		)
		if repairErr != nil {
			return "", "", "", wrapDraftsFailure(repairErr, firstRaw, m.limits.CaptureMaxChars)
		}
		linkedin, xThread, newsletter, ok = splitDraftSections(repairedRaw)
		if !ok {
			m.logger.Warn("draft sections missing after repair, generating separately", "jobId", job.ID)
			return m.generateDraftsSeparately(job, hooksData, quoteCues)
		}
	}

	linkedin, err = m.validateLinkedInCarousel(job, linkedin, hooksData)
	if err != nil {
		return "", "", "", wrapDraftsFailure(err, firstRaw, m.limits.CaptureMaxChars)
	}
	xThread, err = m.validateXThread(job, xThread)
	if err != nil {
		return "", "", "", wrapDraftsFailure(err, firstRaw, m.limits.CaptureMaxChars)
	}
	newsletter, err = m.validateNewsletterSummary(job, newsletter, hooksData)
	if err != nil {
		return "", "", "", wrapDraftsFailure(err, firstRaw, m.limits.CaptureMaxChars)
	}

	return strings.TrimSpace(linkedin), strings.TrimSpace(xThread), newsletter, nil
}

// generateDraftsSeparately generates each asset with its own prompt. Used when
// the combined generation cannot produce well-delimited sections.
func (m *Manager) generateDraftsSeparately(job *Job, hooksData HooksPayload, quoteCues []string) (string, string, string, error) {
	hooksJSON := mustMarshalHooks(hooksData)
	grounding := composeGroundingContext(job, hooksJSON, quoteCues)

	linkedin, err := m.callLLM(job,
		"You are a professional content writer. Generate ONLY a LinkedIn carousel draft. Do not include markdown fences or extra sections.",
		"Output only LinkedIn carousel content as 5-8 slides.\n"+
			"Use format: 'Slide N: ...'\n"+
			"Do not include section delimiters.\n"+
			"Ground every claim in provided hooks and quote cues.\n\n"+grounding,
		1400, 0.25,
	)
	if err != nil {
		return "", "", "", wrapDraftsFailure(err, "", m.limits.CaptureMaxChars)
	}

	xThread, err := m.callLLM(job,
		"You are a professional content writer. Generate ONLY an X thread draft.",
		"Output exactly 5 posts.\n"+
			"Format each as [N/5] text.\n"+
			"Each post must be <= 280 characters.\n"+
			"Do not include extra sections.\n"+
			"Ground claims in the provided hooks and quote cues.\n\n"+grounding,
		1200, 0.25,
	)
	if err != nil {
		return "", "", "", wrapDraftsFailure(err, "", m.limits.CaptureMaxChars)
	}

	newsletter, err := m.callLLM(job,
		"You are a professional content writer. Generate ONLY a newsletter summary draft.",
		"Output one polished markdown newsletter summary section.\n"+
			"No extra sections or delimiters.\n"+
			"Ground claims in the provided hooks and quote cues.\n\n"+grounding,
		1400, 0.25,
	)
	if err != nil {
		return "", "", "", wrapDraftsFailure(err, "", m.limits.CaptureMaxChars)
	}

	linkedin, err = m.validateLinkedInCarousel(job, strings.TrimSpace(linkedin), hooksData)
	if err != nil {
		return "", "", "", wrapDraftsFailure(err, "", m.limits.CaptureMaxChars)
	}
	xThread, err = m.validateXThread(job, strings.TrimSpace(xThread))
	if err != nil {
		return "", "", "", wrapDraftsFailure(err, "", m.limits.CaptureMaxChars)
	}
	newsletter, err = m.validateNewsletterSummary(job, strings.TrimSpace(newsletter), hooksData)
	if err != nil {
		return "", "", "", wrapDraftsFailure(err, "", m.limits.CaptureMaxChars)
	}

	return strings.TrimSpace(linkedin), strings.TrimSpace(xThread), newsletter, nil
}

// wrapDraftsFailure re-raises cancellation and existing draft failures, and
// wraps everything else as DRAFTS_GENERATION_FAILED.
func wrapDraftsFailure(err error, firstRaw string, captureMax int) error {
	pe, ok := AsError(err)
	if ok && (pe.Code == CodeJobCancelled || pe.Code == CodeDraftsGenerationFailed) {
		return pe
	}
	firstSafe, _ := truncateText(firstRaw, captureMax)
	details := map[string]any{
		"subcode":      SubcodeDraftsValidationFailed,
		"responseBody": firstSafe,
	}
	if ok {
		if pe.Code != CodeLLMRequestFailed {
			details["subcode"] = pe.Code
		}
		details["message"] = pe.Message
		details["details"] = pe.Details
	} else {
		details["message"] = err.Error()
	}
	return NewErrorWithDetails(CodeDraftsGenerationFailed, "Failed to generate draft assets.", details)
}

// validateXThread enforces exactly 5 posts of <= 280 bytes, with one LLM
// repair and a final deterministic truncation before giving up.
func (m *Manager) validateXThread(job *Job, xThreadText string) (string, error) {
	posts := normalizeXThreadPosts(extractXThreadPosts(xThreadText))
	if xThreadWithinLimit(posts) {
		return strings.Join(posts, "\n\n"), nil
	}

	repaired, err := m.callLLM(job,
		"Rewrite ONLY the X thread so it contains exactly 5 posts and each post is <= 280 characters. "+
			"Preserve meaning and keep [1/5]...[5/5] numbering.",
		"Rewrite this section only:\n"+xThreadText,
		900, 0.2,
	)
	if err == nil {
		repairedPosts := normalizeXThreadPosts(extractXThreadPosts(repaired))
		if len(repairedPosts) != 5 {
			err = NewErrorWithDetails(
				CodeDraftsGenerationFailed,
				"X thread did not contain exactly 5 posts after repair.",
				map[string]any{"subcode": SubcodeDraftsValidationFailed, "postCount": len(repairedPosts)},
			)
		} else if xThreadWithinLimit(repairedPosts) {
			return strings.Join(repairedPosts, "\n\n"), nil
		} else if truncated := truncateXThreadPosts(repairedPosts); xThreadWithinLimit(truncated) {
			m.logger.Warn("x thread truncated to char limit after repair", "jobId", job.ID)
			return strings.Join(truncated, "\n\n"), nil
		}
	}
	if err != nil {
		if pe, ok := AsError(err); ok && pe.Code == CodeJobCancelled {
			return "", pe
		}
		m.logger.Warn("x thread repair failed", "jobId", job.ID, "error", err)
	}

	if len(posts) == 5 {
		if truncated := truncateXThreadPosts(posts); xThreadWithinLimit(truncated) {
			m.logger.Warn("x thread truncated to char limit", "jobId", job.ID)
			return strings.Join(truncated, "\n\n"), nil
		}
	}

	return "", NewErrorWithDetails(
		CodeDraftsGenerationFailed,
		"Unable to produce a valid 5-post X thread.",
		map[string]any{"subcode": SubcodeDraftsValidationFailed, "postCount": len(posts)},
	)
}

// validateLinkedInCarousel enforces 5..8 slides, with one LLM repair and a
// deterministic fallback carousel built from the hooks payload.
func (m *Manager) validateLinkedInCarousel(job *Job, linkedinText string, hooksData HooksPayload) (string, error) {
	slides := extractLinkedInSlides(linkedinText)
	if len(slides) >= linkedInMinSlide && len(slides) <= linkedInMaxSlide {
		return strings.Join(slides, "\n\n"), nil
	}

	repaired, err := m.callLLM(job,
		"Rewrite ONLY a LinkedIn carousel. Output exactly 5 to 8 slides.",
		"Format each slide exactly as 'Slide N: ...'.\n"+
			"Do not include extra sections, delimiters, or explanations.\n"+
			"Preserve the original meaning and keep the requested draft tone.\n\n"+
			"Draft tone: "+job.DraftTone+"\n"+
			"Original content:\n"+linkedinText,
		1200, 0.2,
	)
	if err == nil {
		repairedSlides := extractLinkedInSlides(repaired)
		if len(repairedSlides) >= linkedInMinSlide && len(repairedSlides) <= linkedInMaxSlide {
			return strings.Join(repairedSlides, "\n\n"), nil
		}
	} else {
		if pe, ok := AsError(err); ok && pe.Code == CodeJobCancelled {
			return "", pe
		}
		m.logger.Warn("linkedin carousel repair failed", "jobId", job.ID, "error", err)
	}

	m.logger.Warn("linkedin carousel fell back to template", "jobId", job.ID)
	return buildFallbackLinkedInCarousel(hooksData, m.templates), nil
}

// validateNewsletterSummary enforces the newsletter quality gate, with one
// LLM repair and a deterministic fallback section.
func (m *Manager) validateNewsletterSummary(job *Job, newsletterText string, hooksData HooksPayload) (string, error) {
	cleaned := strings.TrimSpace(newsletterText)
	if newsletterIsUsable(cleaned) {
		return cleaned, nil
	}

	repaired, err := m.callLLM(job,
		"Rewrite ONLY a professional markdown newsletter summary.",
		"Output markdown only, with this structure:\n"+
			"## Overview\n"+
			"2-3 sentences.\n\n"+
			"### Key Takeaways\n"+
			"- bullet\n"+
			"- bullet\n"+
			"- bullet\n\n"+
			"### Why It Matters\n"+
			"2-3 sentences.\n\n"+
			"Rules: no delimiter markers (===), no placeholder text, no extra sections.\n"+
			"Draft tone: "+job.DraftTone+"\n\n"+
			"Original content:\n"+cleaned,
		1500, 0.2,
	)
	if err == nil {
		repairedClean := strings.TrimSpace(repaired)
		if newsletterIsUsable(repairedClean) {
			return repairedClean, nil
		}
	} else {
		if pe, ok := AsError(err); ok && pe.Code == CodeJobCancelled {
			return "", pe
		}
		m.logger.Warn("newsletter repair failed", "jobId", job.ID, "error", err)
	}

	m.logger.Warn("newsletter fell back to template", "jobId", job.ID)
	return buildFallbackNewsletterSummary(job.Title, hooksData, m.templates), nil
}

func composeGroundingContext(job *Job, hooksJSON string, quoteCues []string) string {
	quoteBlock := "- \"No explicit quote cues available.\""
	if len(quoteCues) > 0 {
		var lines []string
		for _, quote := range quoteCues {
			lines = append(lines, "- \""+quote+"\"")
		}
		quoteBlock = strings.Join(lines, "\n")
	}
	return "Video title: " + orUnknown(job.Title) + "\n" +
		"Channel: " + orUnknown(job.Channel) + "\n" +
		"Draft tone: " + job.DraftTone + "\n\n" +
		"Value hooks JSON:\n" + hooksJSON + "\n\n" +
		"Quote cues:\n" + quoteBlock
}

func mustMarshalHooks(hooksData HooksPayload) string {
	raw, err := json.MarshalIndent(hooksData, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(raw)
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Unknown"
	}
	return s
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
