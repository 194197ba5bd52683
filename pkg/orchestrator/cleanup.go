package orchestrator

import (
	"strings"
	"unicode"
)

// FillerCleaner strips hesitation words from a transcript before translation.
type FillerCleaner struct {
	words map[string]struct{}
}

func NewFillerCleaner(words []string) FillerCleaner {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			set[w] = struct{}{}
		}
	}
	return FillerCleaner{words: set}
}

// Clean drops filler tokens; punctuation around a token does not prevent a match.
func (c FillerCleaner) Clean(text string) string {
	fields := strings.Fields(text)
	if len(c.words) == 0 {
		return strings.Join(fields, " ")
	}
	kept := fields[:0]
	for _, f := range fields {
		token := strings.ToLower(strings.TrimFunc(f, func(r rune) bool {
			return unicode.IsPunct(r)
		}))
		if _, filler := c.words[token]; filler {
			continue
		}
		kept = append(kept, f)
	}
	return strings.Join(kept, " ")
}
