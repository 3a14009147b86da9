package knowledge

import (
	"regexp"
	"strings"
	"unicode"
)

// wordPattern matches maximal runs of Unicode letters, digits and underscore.
var wordPattern = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// NormalizeKeyList splits a comma-separated key list into trimmed, lowercase
// keys. Empty fragments are dropped; order and duplicates are preserved.
func NormalizeKeyList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		k := strings.ToLower(strings.TrimSpace(p))
		if k != "" {
			out = append(out, k)
		}
	}
	return out
}

// NormalizeKeys applies the key normalization to an already split list.
func NormalizeKeys(keys []string) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			out = append(out, k)
		}
	}
	return out
}

// Tokenize returns the set of lowercase word tokens found in text.
func Tokenize(text string) map[string]struct{} {
	words := wordPattern.FindAllString(strings.ToLower(text), -1)
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		out[w] = struct{}{}
	}
	return out
}

// SplitCommand separates the key-list portion of a command argument from its
// body on the first whitespace boundary.
func SplitCommand(raw string) (keys, body string, err error) {
	raw = strings.TrimSpace(raw)
	idx := strings.IndexFunc(raw, unicode.IsSpace)
	if idx < 0 {
		return "", "", ErrInputFormat
	}
	keys = raw[:idx]
	body = strings.TrimLeftFunc(raw[idx:], unicode.IsSpace)
	return keys, body, nil
}

func keySet(keys []string) map[string]struct{} {
	out := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		out[strings.ToLower(k)] = struct{}{}
	}
	return out
}

func intersects(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for k := range a {
		if _, ok := b[k]; ok {
			return true
		}
	}
	return false
}
