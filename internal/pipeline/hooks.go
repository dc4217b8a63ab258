package pipeline

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// SupportingMoment is one grounding quote attached to a hook. Timestamps are
// always null until word-level ASR timing lands.
type SupportingMoment struct {
	Quote    string   `json:"quote"`
	StartSec *float64 `json:"startSec"`
	EndSec   *float64 `json:"endSec"`
}

// Hook is one extracted value hook.
type Hook struct {
	Rank              int                `json:"rank"`
	Hook              string             `json:"hook"`
	Who               string             `json:"who"`
	Outcome           string             `json:"outcome"`
	Proof             string             `json:"proof"`
	SupportingMoments []SupportingMoment `json:"supporting_moments"`
}

// HooksPayload is the hooks.json artifact.
type HooksPayload struct {
	HasTimestamps  bool   `json:"hasTimestamps"`
	GeneratedAtUTC string `json:"generatedAtUtc,omitempty"`
	DraftTone      string `json:"draftTone,omitempty"`
	Hooks          []Hook `json:"hooks"`
}

// FactsSheet is the facts_sheet.json artifact, a condensed brief a human can
// hand to downstream content tooling.
type FactsSheet struct {
	GeneratedAtUTC string   `json:"generatedAtUtc"`
	Topic          string   `json:"topic"`
	TargetAudience string   `json:"targetAudience"`
	KeyPoints      []string `json:"keyPoints"`
	NotableTerms   []string `json:"notableTerms"`
	DraftTone      string   `json:"draftTone"`
}

var jsonFenceRe = regexp.MustCompile(`(?is)` + "```" + `(?:json)?\s*(.*?)` + "```")

// tryParseJSONObject attempts to recover a JSON object from raw model output.
// Three candidates are tried in order: the full text, the contents of the
// first code fence, and the substring between the first "{" and the last "}".
func tryParseJSONObject(rawText string) (map[string]any, bool) {
	raw := strings.TrimSpace(rawText)
	if raw == "" {
		return nil, false
	}

	candidates := []string{raw}
	if m := jsonFenceRe.FindStringSubmatch(raw); m != nil {
		if fenced := strings.TrimSpace(m[1]); fenced != "" {
			candidates = append(candidates, fenced)
		}
	}
	first := strings.Index(raw, "{")
	last := strings.LastIndex(raw, "}")
	if first >= 0 && last > first {
		candidates = append(candidates, strings.TrimSpace(raw[first:last+1]))
	}

	for _, candidate := range candidates {
		var parsed map[string]any
		if err := json.Unmarshal([]byte(candidate), &parsed); err == nil && parsed != nil {
			return parsed, true
		}
	}
	return nil, false
}

// normalizeHooksPayload coerces a parsed model response into exactly three
// well-formed hooks. Missing fields are backfilled from sibling fields, each
// hook ends up with 2..3 supporting quotes, and entirely empty hooks are
// replaced by explicit placeholders so the artifact shape is stable.
func normalizeHooksPayload(payload map[string]any) (HooksPayload, error) {
	hooksRaw, ok := payload["hooks"].([]any)
	if !ok {
		return HooksPayload{}, NewError(CodeHooksExtractionFailed, "hooks payload did not contain a hooks array")
	}

	normalized := make([]Hook, 0, 3)
	for _, raw := range hooksRaw {
		if len(normalized) >= 3 {
			break
		}
		item, ok := raw.(map[string]any)
		if !ok {
			continue
		}

		hook := strings.TrimSpace(stringField(item, "hook"))
		who := strings.TrimSpace(stringField(item, "who"))
		outcome := strings.TrimSpace(stringField(item, "outcome"))
		proof := strings.TrimSpace(stringField(item, "proof"))
		if hook == "" && outcome == "" && proof == "" {
			continue
		}

		supporting := collectSupportingMoments(item)

		// Backfill to at least two quote cues so draft grounding never runs dry.
		for _, candidate := range []string{proof, outcome, hook, "No supporting quote provided."} {
			if len(supporting) >= 2 {
				break
			}
			quote := strings.TrimSpace(candidate)
			if quote == "" || containsQuote(supporting, quote) {
				continue
			}
			supporting = append(supporting, SupportingMoment{Quote: quote})
		}
		if len(supporting) > 3 {
			supporting = supporting[:3]
		}

		normalized = append(normalized, Hook{
			Hook:              firstNonEmpty(hook, "Value hook "+strconv.Itoa(len(normalized)+1)),
			Who:               firstNonEmpty(who, "target audience"),
			Outcome:           firstNonEmpty(outcome, proof, hook, "Actionable takeaway identified."),
			Proof:             firstNonEmpty(proof, outcome, hook, "No proof snippet returned."),
			SupportingMoments: supporting,
		})
	}

	for len(normalized) < 3 {
		n := len(normalized) + 1
		normalized = append(normalized, Hook{
			Hook:    "Value hook " + strconv.Itoa(n),
			Who:     "target audience",
			Outcome: "Actionable takeaway identified.",
			Proof:   "Generated fallback hook.",
			SupportingMoments: []SupportingMoment{
				{Quote: "Generated fallback hook."},
			},
		})
	}

	for i := range normalized {
		normalized[i].Rank = i + 1
	}
	return HooksPayload{HasTimestamps: false, Hooks: normalized[:3]}, nil
}

func collectSupportingMoments(item map[string]any) []SupportingMoment {
	supportingRaw, ok := item["supporting_moments"].([]any)
	if !ok {
		supportingRaw, _ = item["supportingMoments"].([]any)
	}
	supporting := make([]SupportingMoment, 0, 3)
	for _, momentRaw := range supportingRaw {
		if len(supporting) >= 3 {
			break
		}
		quote := ""
		switch moment := momentRaw.(type) {
		case map[string]any:
			quote = strings.TrimSpace(stringField(moment, "quote"))
		case string:
			quote = strings.TrimSpace(moment)
		}
		if quote != "" {
			supporting = append(supporting, SupportingMoment{Quote: quote})
		}
	}
	return supporting
}

func containsQuote(moments []SupportingMoment, quote string) bool {
	lowered := strings.ToLower(quote)
	for _, m := range moments {
		if strings.ToLower(strings.TrimSpace(m.Quote)) == lowered {
			return true
		}
	}
	return false
}

// hooksArePlaceholder reports whether at least two of the three hooks are
// normalization placeholders, meaning the model returned nothing usable.
func hooksArePlaceholder(payload HooksPayload) bool {
	if len(payload.Hooks) < 3 {
		return true
	}
	placeholders := 0
	for _, hook := range payload.Hooks[:3] {
		h := strings.ToLower(strings.TrimSpace(hook.Hook))
		proof := strings.ToLower(strings.TrimSpace(hook.Proof))
		outcome := strings.ToLower(strings.TrimSpace(hook.Outcome))
		if strings.HasPrefix(h, "value hook ") || proof == "generated fallback hook." || outcome == "actionable takeaway identified." {
			placeholders++
		}
	}
	return placeholders >= 2
}

// derivedHookTemplate seeds one transcript-derived hook when the model
// produced only placeholders.
type derivedHookTemplate struct {
	Hook    string
	Who     string
	Outcome string
}

var sentenceEndRe = regexp.MustCompile(`[.!?]\s+`)

// splitSentences splits a transcript at sentence boundaries, keeping the
// terminal punctuation with the preceding sentence.
func splitSentences(transcript string) []string {
	var sentences []string
	rest := transcript
	for {
		loc := sentenceEndRe.FindStringIndex(rest)
		if loc == nil {
			break
		}
		sentences = append(sentences, rest[:loc[0]+1])
		rest = rest[loc[1]:]
	}
	if rest != "" {
		sentences = append(sentences, rest)
	}
	return sentences
}

// buildTranscriptDerivedHooks ranks transcript sentences by keyword relevance
// and fills three hook templates with the best quotes. Returns nil when the
// transcript cannot support three grounded hooks.
func buildTranscriptDerivedHooks(transcript string, keywords []string, templates []derivedHookTemplate) []Hook {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" || len(templates) < 3 {
		return nil
	}

	var sentences []string
	for _, chunk := range splitSentences(transcript) {
		chunk = strings.TrimSpace(chunk)
		if len(chunk) >= 45 {
			sentences = append(sentences, chunk)
		}
	}
	if len(sentences) == 0 {
		return nil
	}

	var selected []string
	for _, sentence := range sentences {
		lowered := strings.ToLower(sentence)
		for _, keyword := range keywords {
			if strings.Contains(lowered, keyword) {
				selected = append(selected, sentence)
				break
			}
		}
		if len(selected) >= 6 {
			break
		}
	}
	if len(selected) < 6 {
		for _, sentence := range sentences {
			if containsString(selected, sentence) {
				continue
			}
			selected = append(selected, sentence)
			if len(selected) >= 6 {
				break
			}
		}
	}
	if len(selected) < 3 {
		return nil
	}

	hooks := make([]Hook, 0, 3)
	for idx := 0; idx < 3; idx++ {
		quoteA := selected[idx]
		if idx*2 < len(selected) {
			quoteA = selected[idx*2]
		}
		quoteB := selected[idx]
		if idx*2+1 < len(selected) {
			quoteB = selected[idx*2+1]
		}
		tmpl := templates[idx]
		hooks = append(hooks, Hook{
			Rank:    idx + 1,
			Hook:    tmpl.Hook,
			Who:     tmpl.Who,
			Outcome: tmpl.Outcome,
			Proof:   quoteA,
			SupportingMoments: []SupportingMoment{
				{Quote: quoteA},
				{Quote: quoteB},
			},
		})
	}
	return hooks
}

// buildFallbackHooks produces the three-hook payload used when no usable
// transcript exists.
func buildFallbackHooks(title string) []Hook {
	title = strings.TrimSpace(title)
	if title == "" {
		title = "this video"
	}
	return []Hook{
		{
			Rank:    1,
			Hook:    "Main theme overview",
			Who:     "general audience",
			Outcome: "Understand the central idea from " + title + ".",
			Proof:   "Transcript contained limited usable speech content.",
			SupportingMoments: []SupportingMoment{
				{Quote: "No usable speech transcript was produced."},
			},
		},
		{
			Rank:    2,
			Hook:    "Practical framing",
			Who:     "practitioners",
			Outcome: "Collect actionable framing points for future content.",
			Proof:   "Fallback hook generated due to sparse transcript.",
			SupportingMoments: []SupportingMoment{
				{Quote: "Fallback hook generated due to sparse transcript."},
			},
		},
		{
			Rank:    3,
			Hook:    "Communication angle",
			Who:     "content teams",
			Outcome: "Position the topic in concise, audience-facing language.",
			Proof:   "Fallback hook generated due to sparse transcript.",
			SupportingMoments: []SupportingMoment{
				{Quote: "Fallback hook generated due to sparse transcript."},
			},
		},
	}
}

// extractQuoteCues gathers up to maxQuotes distinct supporting quotes across
// all hooks, preserving hook order.
func extractQuoteCues(payload HooksPayload, maxQuotes int) []string {
	if maxQuotes < 1 {
		maxQuotes = 1
	}
	var cues []string
	seen := make(map[string]struct{})
	for _, hook := range payload.Hooks {
		for _, moment := range hook.SupportingMoments {
			quote := strings.TrimSpace(moment.Quote)
			if quote == "" {
				continue
			}
			key := strings.ToLower(quote)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			cues = append(cues, quote)
			if len(cues) >= maxQuotes {
				return cues
			}
		}
	}
	return cues
}

// buildSummaryText composes the one-line job summary from the top hook
// outcomes, capped at 800 bytes.
func buildSummaryText(title string, payload HooksPayload) string {
	var outcomes []string
	limit := len(payload.Hooks)
	if limit > 3 {
		limit = 3
	}
	for _, hook := range payload.Hooks[:limit] {
		outcome := strings.TrimSpace(firstNonEmpty(hook.Outcome, hook.Hook))
		outcome = strings.TrimRight(outcome, ".")
		if outcome != "" {
			outcomes = append(outcomes, outcome)
		}
	}

	title = strings.TrimSpace(title)
	if title == "" {
		title = "This video"
	}

	var summary string
	if len(outcomes) > 0 {
		summary = title + " highlights " + outcomes[0]
		if len(outcomes) > 1 {
			summary += "; " + strings.Join(outcomes[1:], "; ")
		}
		summary += "."
	} else {
		summary = title + " was transcribed successfully, but no strong value hooks were extracted."
	}

	if len(summary) > 800 {
		summary = strings.TrimRight(summary[:797], " \t\n") + "..."
	}
	return summary
}

var notableTermRe = regexp.MustCompile(`[A-Za-z][A-Za-z0-9_-]{2,}`)

var notableTermStopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "that": {}, "this": {},
	"from": {}, "into": {}, "your": {}, "about": {}, "video": {}, "draft": {},
	"value": {}, "hook": {}, "hooks": {}, "summary": {},
}

// extractNotableTerms pulls distinct keyword-ish tokens from the title,
// channel and hook fields, falling back to a neutral set when nothing sticks.
func extractNotableTerms(title, channel string, hooks []Hook, limit int) []string {
	if limit < 1 {
		limit = 1
	}
	seeds := []string{title, channel}
	for _, hook := range hooks {
		seeds = append(seeds, hook.Hook, hook.Who, hook.Outcome, hook.Proof)
	}

	var terms []string
	seen := make(map[string]struct{})
	for _, text := range seeds {
		for _, token := range notableTermRe.FindAllString(text, -1) {
			key := strings.ToLower(token)
			if _, stop := notableTermStopwords[key]; stop {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			terms = append(terms, token)
			if len(terms) >= limit {
				return terms
			}
		}
	}
	if len(terms) == 0 {
		return []string{"insight", "strategy", "execution"}
	}
	return terms
}

// buildFactsSheet condenses the hooks payload into the facts sheet artifact.
func buildFactsSheet(title string, payload HooksPayload, draftTone string) FactsSheet {
	var firstHook Hook
	if len(payload.Hooks) > 0 {
		firstHook = payload.Hooks[0]
	}

	title = strings.TrimSpace(title)
	topicSeed := strings.TrimSpace(firstNonEmpty(firstHook.Hook, firstHook.Outcome))
	var topic string
	switch {
	case title != "" && topicSeed != "":
		topic = title + " -- " + topicSeed + "."
	case title != "":
		topic = title
	case topicSeed != "":
		topic = topicSeed
	default:
		topic = "Core topic from transcripted video."
	}

	audience := strings.TrimSpace(firstHook.Who)
	if audience == "" {
		audience = "professionals seeking actionable insights"
	}

	var keyPoints []string
	for _, hook := range payload.Hooks {
		for _, candidate := range []string{hook.Outcome, hook.Proof, hook.Hook} {
			text := strings.TrimSpace(candidate)
			if text == "" {
				continue
			}
			withPeriod := text
			if !strings.HasSuffix(withPeriod, ".") {
				withPeriod += "."
			}
			if containsString(keyPoints, withPeriod) {
				continue
			}
			keyPoints = append(keyPoints, withPeriod)
			if len(keyPoints) >= 5 {
				break
			}
		}
		if len(keyPoints) >= 5 {
			break
		}
	}
	for len(keyPoints) < 5 {
		keyPoints = append(keyPoints, "Additional takeaway available in generated hook drafts.")
	}

	return FactsSheet{
		GeneratedAtUTC: formatUTC(time.Now()),
		Topic:          topic,
		TargetAudience: audience,
		KeyPoints:      keyPoints[:5],
		NotableTerms:   extractNotableTerms(title, "", payload.Hooks, 3),
		DraftTone:      draftTone,
	}
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func containsString(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
