package llm

import (
	"regexp"
	"strings"
)

// Model output occasionally slips into markdown even when told not to.
// The synthesizer would read the punctuation aloud, so it gets stripped
// before any text reaches the voice.
var (
	codeFenceRe  = regexp.MustCompile("(?s)```.*?```")
	inlineCodeRe = regexp.MustCompile("`([^`]*)`")
	boldRe       = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	emphasisRe   = regexp.MustCompile(`\*([^*\n]+)\*`)
	underscoreRe = regexp.MustCompile(`_([^_\n]+)_`)
	headingRe    = regexp.MustCompile(`(?m)^#{1,6}\s*`)
	bulletRe     = regexp.MustCompile(`(?m)^\s*[-*]\s+`)
	spaceRunRe   = regexp.MustCompile(`[ \t]{2,}`)
)

// SanitizeForSpeech strips markdown decoration from model output so the
// synthesized voice speaks plain sentences.
func SanitizeForSpeech(text string) string {
	text = codeFenceRe.ReplaceAllString(text, " ")
	text = inlineCodeRe.ReplaceAllString(text, "$1")
	text = boldRe.ReplaceAllString(text, "$1")
	text = emphasisRe.ReplaceAllString(text, "$1")
	text = underscoreRe.ReplaceAllString(text, "$1")
	text = headingRe.ReplaceAllString(text, "")
	text = bulletRe.ReplaceAllString(text, "")
	text = spaceRunRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
