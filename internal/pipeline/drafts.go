package pipeline

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	xThreadPostLimit = 280
	linkedInMinSlide = 5
	linkedInMaxSlide = 8
)

var (
	draftSectionsRe = regexp.MustCompile(`(?is)===LINKEDIN_CAROUSEL===\s*(.*?)\s*===X_THREAD===\s*(.*?)\s*===NEWSLETTER_SUMMARY===\s*(.*)`)
	slideMarkerRe   = regexp.MustCompile(`(?im)^\s*slide\s+(\d+)\s*:`)
	slideHeadRe     = regexp.MustCompile(`(?i)^\s*slide\s+\d+\s*:`)
	postMarkerRe    = regexp.MustCompile(`(?m)^\s*\[(\d)/5\]\s*`)
	postHeadRe      = regexp.MustCompile(`^\s*\[\d/5\]\s*`)
)

// DraftTemplates carries the deterministic fallbacks used when the generation
// engine cannot produce valid assets. Defaults are topic-neutral; deployments
// tuned for a niche can swap in domain wording.
type DraftTemplates struct {
	// DerivedHookKeywords rank transcript sentences when hooks must be
	// rebuilt from the transcript itself.
	DerivedHookKeywords []string
	DerivedHooks        []derivedHookTemplate

	FallbackOpeningSlide  string
	FallbackClosingSlides []string
	FallbackBullet        string
	FallbackOverview      string
	FallbackWhyItMatters  string
}

// DefaultDraftTemplates returns the built-in neutral template set.
func DefaultDraftTemplates() DraftTemplates {
	return DraftTemplates{
		DerivedHookKeywords: []string{
			"strategy", "process", "framework", "result", "lesson",
			"mistake", "growth", "system",
		},
		DerivedHooks: []derivedHookTemplate{
			{
				Hook:    "The core idea deserves a second look.",
				Who:     "viewers deciding whether to watch",
				Outcome: "Understand the main argument before committing the full runtime.",
			},
			{
				Hook:    "Concrete examples carry the message.",
				Who:     "practitioners applying the advice",
				Outcome: "Anchor the takeaways in the speaker's own evidence.",
			},
			{
				Hook:    "The closing advice is the actionable part.",
				Who:     "teams planning next steps",
				Outcome: "Turn the recommendations into a checklist for this week.",
			},
		},
		FallbackOpeningSlide: "Slide 1: Key Ideas From This Video\n" +
			"A quick tour of the strongest takeaways, grounded in what was actually said.",
		FallbackClosingSlides: []string{
			"Slide 5: Evidence Over Assertion\nEach takeaway above links back to a moment in the source video.",
			"Slide 6: Make It Operational\nPick one takeaway and define the first concrete step your team will run this week.",
			"Slide 7: Next Step\nRevisit the full transcript for context before sharing these points externally.",
		},
		FallbackBullet:       "- Review the generated hooks for the strongest takeaway to lead with.",
		FallbackOverview:     "distills the speaker's main argument into a short set of takeaways. The core message is that the strongest points come directly from the source material rather than from added commentary.",
		FallbackWhyItMatters: "Grounding outreach content in the speaker's own words keeps drafts accurate and defensible. That discipline saves an editing pass later and avoids walking back claims.",
	}
}

// splitDraftSections extracts the three delimited sections from raw model
// output, or ok=false when any delimiter is missing or out of order.
func splitDraftSections(rawText string) (linkedin, xThread, newsletter string, ok bool) {
	m := draftSectionsRe.FindStringSubmatch(rawText)
	if m == nil {
		return "", "", "", false
	}
	return strings.TrimSpace(m[1]), strings.TrimSpace(m[2]), strings.TrimSpace(m[3]), true
}

// extractLinkedInSlides splits carousel text into renumbered "Slide N:"
// blocks. Marker-free text with at least five non-blank lines is promoted to
// slides; shorter text yields nothing.
func extractLinkedInSlides(rawText string) []string {
	text := strings.TrimSpace(rawText)
	if text == "" {
		return nil
	}

	matches := slideMarkerRe.FindAllStringIndex(text, -1)
	if len(matches) > 0 {
		var slides []string
		for idx, match := range matches {
			start := match[0]
			end := len(text)
			if idx+1 < len(matches) {
				end = matches[idx+1][0]
			}
			block := strings.TrimSpace(text[start:end])
			normalized := strings.TrimSpace(replaceFirst(slideHeadRe, block, "Slide "+strconv.Itoa(idx+1)+":"))
			if normalized != "" {
				slides = append(slides, normalized)
			}
		}
		return slides
	}

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	if len(lines) < linkedInMinSlide {
		return nil
	}
	if len(lines) > linkedInMaxSlide {
		lines = lines[:linkedInMaxSlide]
	}
	slides := make([]string, 0, len(lines))
	for idx, line := range lines {
		slides = append(slides, "Slide "+strconv.Itoa(idx+1)+": "+line)
	}
	return slides
}

// extractXThreadPosts splits thread text into [N/5] chunks. Marker-free text
// is promoted line by line, up to five posts.
func extractXThreadPosts(rawText string) []string {
	text := strings.TrimSpace(rawText)
	if text == "" {
		return nil
	}

	matches := postMarkerRe.FindAllStringIndex(text, -1)
	if len(matches) > 0 {
		var posts []string
		for idx, match := range matches {
			start := match[0]
			end := len(text)
			if idx+1 < len(matches) {
				end = matches[idx+1][0]
			}
			if chunk := strings.TrimSpace(text[start:end]); chunk != "" {
				posts = append(posts, chunk)
			}
		}
		return posts
	}

	var posts []string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		posts = append(posts, "["+strconv.Itoa(len(posts)+1)+"/5] "+trimmed)
		if len(posts) >= 5 {
			break
		}
	}
	return posts
}

// normalizeXThreadPosts renumbers posts sequentially, dropping blanks.
func normalizeXThreadPosts(posts []string) []string {
	var normalized []string
	for _, source := range posts {
		source = strings.TrimSpace(source)
		if source == "" {
			continue
		}
		marker := "[" + strconv.Itoa(len(normalized)+1) + "/5] "
		if postHeadRe.MatchString(source) {
			source = replaceFirst(postHeadRe, source, marker)
		} else {
			source = marker + source
		}
		normalized = append(normalized, strings.TrimSpace(source))
	}
	return normalized
}

func xThreadWithinLimit(posts []string) bool {
	if len(posts) != 5 {
		return false
	}
	for _, post := range posts {
		if len(post) > xThreadPostLimit {
			return false
		}
	}
	return true
}

// truncateXThreadPosts hard-caps over-length posts at 277 bytes plus an
// ellipsis.
func truncateXThreadPosts(posts []string) []string {
	truncated := make([]string, 0, len(posts))
	for _, post := range posts {
		if len(post) <= xThreadPostLimit {
			truncated = append(truncated, post)
			continue
		}
		truncated = append(truncated, strings.TrimRight(post[:xThreadPostLimit-3], " \t\n")+"...")
	}
	return truncated
}

// newsletterIsUsable applies the quality gate for the newsletter section:
// no leaked delimiters, a minimum length, at least one markdown heading and
// at least one bullet.
func newsletterIsUsable(text string) bool {
	if text == "" || strings.Contains(text, "===") {
		return false
	}
	if len(text) < 320 {
		return false
	}
	hasHeading := strings.Contains(text, "## ") || strings.Contains(text, "### ")
	hasBullets := strings.Contains(text, "\n-") || strings.Contains(text, "\n* ")
	return hasHeading && hasBullets
}

// buildFallbackLinkedInCarousel assembles a deterministic carousel from the
// hooks payload when generation and repair both failed.
func buildFallbackLinkedInCarousel(payload HooksPayload, templates DraftTemplates) string {
	hooks := payload.Hooks
	if len(hooks) > 3 {
		hooks = hooks[:3]
	}

	slides := []string{templates.FallbackOpeningSlide}
	for idx, hook := range hooks {
		title := strings.TrimSpace(hook.Hook)
		if title == "" {
			title = "Hook " + strconv.Itoa(idx+1)
		}
		outcome := strings.TrimSpace(hook.Outcome)
		proof := strings.TrimSpace(hook.Proof)
		body := outcome
		if body == "" {
			body = proof
		}
		if proof != "" && outcome != "" && !strings.EqualFold(proof, outcome) {
			body = outcome + " Proof cue: " + proof
		}
		slides = append(slides, strings.TrimSpace("Slide "+strconv.Itoa(idx+2)+": "+title+"\n"+body))
	}
	slides = append(slides, templates.FallbackClosingSlides...)
	if len(slides) > 7 {
		slides = slides[:7]
	}
	return strings.Join(slides, "\n\n")
}

// buildFallbackNewsletterSummary assembles a deterministic newsletter section
// from the hooks payload.
func buildFallbackNewsletterSummary(title string, payload HooksPayload, templates DraftTemplates) string {
	hooks := payload.Hooks
	if len(hooks) > 3 {
		hooks = hooks[:3]
	}

	var bullets []string
	for _, hook := range hooks {
		line := strings.TrimSpace(hook.Outcome)
		if line == "" {
			line = strings.TrimSpace(hook.Hook)
		}
		if line == "" {
			continue
		}
		bullets = append(bullets, "- "+line)
	}
	for len(bullets) < 3 {
		bullets = append(bullets, templates.FallbackBullet)
	}
	if len(bullets) > 4 {
		bullets = bullets[:4]
	}

	topic := strings.TrimSpace(title)
	if topic == "" {
		topic = "the video topic"
	}

	overview := "## Overview\nThis session on " + topic + " " + templates.FallbackOverview
	takeaways := "### Key Takeaways\n" + strings.Join(bullets, "\n")
	why := "### Why It Matters\n" + templates.FallbackWhyItMatters
	return overview + "\n\n" + takeaways + "\n\n" + why
}

// replaceFirst rewrites only the first regexp match in s.
func replaceFirst(re *regexp.Regexp, s, replacement string) string {
	loc := re.FindStringIndex(s)
	if loc == nil {
		return s
	}
	return s[:loc[0]] + replacement + s[loc[1]:]
}
