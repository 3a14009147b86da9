package knowledge

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var markupNoise = regexp.MustCompile("[*_`]+")

// Preview flattens an entry text to a single line without Markdown emphasis
// and caps it to maxRunes, for tables and event payloads.
func Preview(text string, maxRunes int) string {
	if maxRunes <= 0 {
		maxRunes = 60
	}
	s := markupNoise.ReplaceAllString(text, "")
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	runes := []rune(s)
	if maxRunes <= 1 {
		return string(runes[:maxRunes])
	}
	return strings.TrimSpace(string(runes[:maxRunes-1])) + "…"
}
