package prompt

import (
	"regexp"
	"strings"
)

const Separator = "\n\n"

// Compose joins a preset directive and free-form user text. Both parts are kept
// verbatim.
func Compose(presetText, userText string) string {
	if userText == "" {
		return presetText
	}
	if presetText == "" {
		return userText
	}
	return presetText + Separator + userText
}

var (
	zeroWidth  = regexp.MustCompile("[\u200B-\u200D\uFEFF]")
	whitespace = regexp.MustCompile(`\s+`)
)

// Clean normalises text pasted from mobile keyboards: non-breaking spaces,
// zero-width characters and runs of whitespace.
func Clean(s string) string {
	s = strings.ReplaceAll(s, "\u00A0", " ")
	s = zeroWidth.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = whitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
