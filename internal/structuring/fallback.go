package structuring

import (
	"strings"
	"time"
)

// actionKeywords flag sentences that look like follow-ups when the model is
// unavailable.
var actionKeywords = []string{"todo", "task", "need to", "should", "must", "action", "follow up"}

// heuristicSummary builds a basic summary without a model. Used when the LLM
// call fails and to backfill empty fields in model output.
func heuristicSummary(transcript string, startedAt time.Time) Summary {
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}
	words := strings.Fields(transcript)

	title := "Conversation on " + startedAt.Format("January 2")
	if len(words) >= 10 {
		title = "Discussion about " + strings.Join(words[2:6], " ")
	}

	overview := transcript
	if runes := []rune(transcript); len(runes) > 200 {
		overview = string(runes[:200]) + "..."
	}

	var items []ActionItem
	for _, sentence := range strings.Split(transcript, ".") {
		s := strings.TrimSpace(sentence)
		if s == "" {
			continue
		}
		lower := strings.ToLower(s)
		for _, kw := range actionKeywords {
			if strings.Contains(lower, kw) {
				items = append(items, ActionItem{Description: s})
				break
			}
		}
	}

	return Summary{
		Title:       title,
		Overview:    overview,
		Emoji:       "💬",
		Category:    "general",
		ActionItems: items,
	}
}
