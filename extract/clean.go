package extract

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// PreviewLen is the number of characters kept in a preview before the
// ellipsis.
const PreviewLen = 60

const ellipsis = "..."

var multiSpaceRe = regexp.MustCompile(`\s+`)

// CleanText removes zero-width characters. Line structure is kept.
func CleanText(text string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '\u200b', '\u200c', '\u200d', '\ufeff', '\u00ad':
			return -1
		}
		return r
	}, text)
}

// Preview collapses whitespace to single spaces and truncates to
// PreviewLen characters plus "...".
func Preview(text string) string {
	text = strings.TrimSpace(multiSpaceRe.ReplaceAllString(text, " "))
	if utf8.RuneCountInString(text) <= PreviewLen {
		return text
	}
	runes := []rune(text)
	return string(runes[:PreviewLen]) + ellipsis
}
