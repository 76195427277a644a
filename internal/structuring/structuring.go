// Package structuring turns a finished transcript into a structured
// conversation summary: discard filtering, LLM structuring and a local
// fallback when the model is unavailable.
package structuring

import (
	"context"
	"time"
)

// StructureRequest carries everything the structuring model needs.
type StructureRequest struct {
	Transcript   string    // "Speaker N: text" lines handed to the model
	PlainText    string    // bare spoken words; discard check and local fallback use this when set
	StartedAt    time.Time // when the conversation began, UTC
	LanguageCode string    // e.g. "en"
	Timezone     string    // IANA name used to anchor event times, e.g. "America/Los_Angeles"
}

// plainText is the text the discard thresholds measure. Speaker prefixes in
// the formatted transcript would inflate character and word counts.
func (r StructureRequest) plainText() string {
	if r.PlainText != "" {
		return r.PlainText
	}
	return r.Transcript
}

// Summary is the structured form of a conversation.
type Summary struct {
	Title       string       `json:"title"`
	Overview    string       `json:"overview"`
	Emoji       string       `json:"emoji"`
	Category    string       `json:"category"`
	ActionItems []ActionItem `json:"action_items"`
	Events      []Event      `json:"events"`
}

// ActionItem is a single follow-up extracted from the conversation.
type ActionItem struct {
	Description string `json:"description"`
	Completed   bool   `json:"completed"`
}

// Event is a calendar-worthy item mentioned in the conversation. Start stays
// a string as produced by the model (ISO 8601) so a sloppy datetime cannot
// fail the whole summary.
type Event struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Start       string `json:"start,omitempty"`
	Duration    int    `json:"duration,omitempty"` // minutes
}

// Result is the outcome of running the full structuring pipeline.
type Result struct {
	Summary   Summary
	Discarded bool // transcript too trivial to keep
	Degraded  bool // model failed, summary built locally
}

// Client produces a structured summary from a transcript.
type Client interface {
	GetTranscriptStructure(ctx context.Context, req StructureRequest) (*Summary, error)
}
