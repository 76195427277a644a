package structuring

import (
	"strings"
	"unicode/utf8"
)

// DiscardPolicy decides whether a transcript is too trivial to persist.
// Rules are checked in order: empty, minimum length, minimum word count,
// denylisted phrases.
type DiscardPolicy struct {
	MinChars int
	MinWords int
	Denylist []string // lowercase phrases
}

// DefaultDiscardPolicy returns the stock thresholds.
func DefaultDiscardPolicy() DiscardPolicy {
	return DiscardPolicy{
		MinChars: 10,
		MinWords: 3,
		Denylist: []string{"test", "testing", "hello world", "mock", "sample"},
	}
}

// ShouldDiscard reports whether the transcript should be dropped instead of
// structured and saved.
func (p DiscardPolicy) ShouldDiscard(transcript string) bool {
	trimmed := strings.TrimSpace(transcript)
	if trimmed == "" {
		return true
	}
	if utf8.RuneCountInString(trimmed) < p.MinChars {
		return true
	}
	if len(strings.Fields(trimmed)) < p.MinWords {
		return true
	}
	lower := strings.ToLower(trimmed)
	for _, phrase := range p.Denylist {
		if phrase == "" {
			continue
		}
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
