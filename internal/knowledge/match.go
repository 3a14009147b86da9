package knowledge

import "lookupbot/internal/model"

// MatchEntries returns the texts of every entry that has at least one key
// sharing a token with message. Texts are deduplicated and reported in the
// order their first matching entry appears.
func MatchEntries(entries []model.Entry, message string) []string {
	words := Tokenize(message)
	out := []string{}
	if len(words) == 0 {
		return out
	}
	seen := map[string]struct{}{}
	for _, e := range entries {
		if !entryMatches(e, words) {
			continue
		}
		if _, dup := seen[e.Text]; dup {
			continue
		}
		seen[e.Text] = struct{}{}
		out = append(out, e.Text)
	}
	return out
}

func entryMatches(e model.Entry, words map[string]struct{}) bool {
	for _, key := range e.Keys {
		if intersects(Tokenize(key), words) {
			return true
		}
	}
	return false
}
