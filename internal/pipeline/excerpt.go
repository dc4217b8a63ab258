package pipeline

import "strings"

// excerptSliceSize is the preferred size of each smart-excerpt slice: the
// first 2000 bytes, 2000 bytes around the midpoint, and the last 2000 bytes.
const excerptSliceSize = 2000

const excerptSeparator = "\n[...]\n"

// truncateText caps text at maxChars bytes, reporting whether truncation
// occurred.
func truncateText(text string, maxChars int) (string, bool) {
	if len(text) <= maxChars {
		return text, false
	}
	return text[:maxChars], true
}

// smartExcerpt condenses a long transcript to head + middle + tail slices
// joined by "[...]" separators so hook extraction sees the opening, the core
// and the close of the video. Transcripts that already fit are returned
// unchanged; a maxChars too tight to admit the separators degrades to a plain
// truncation.
func smartExcerpt(transcript string, maxChars int) string {
	transcript = strings.TrimSpace(transcript)
	if maxChars <= 0 || len(transcript) <= maxChars {
		return transcript
	}

	sepTotal := 2 * len(excerptSeparator)
	if maxChars <= sepTotal+3 {
		truncated, _ := truncateText(transcript, maxChars)
		return truncated
	}

	available := maxChars - sepTotal
	sliceSize := available / 3
	if sliceSize > excerptSliceSize {
		sliceSize = excerptSliceSize
	}
	if sliceSize < 1 {
		truncated, _ := truncateText(transcript, maxChars)
		return truncated
	}

	head := transcript[:sliceSize]
	midStart := len(transcript)/2 - sliceSize/2
	if midStart < 0 {
		midStart = 0
	}
	middle := transcript[midStart : midStart+sliceSize]
	tail := transcript[len(transcript)-sliceSize:]

	return head + excerptSeparator + middle + excerptSeparator + tail
}
