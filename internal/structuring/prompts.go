package structuring

import (
	"fmt"
	"time"
)

// structurePrompt instructs the model to produce the conversation structure.
// The reply must be bare JSON; markdown fences are tolerated and stripped at
// parse time.
const structurePrompt = `You analyze a raw conversation transcript and produce a structured summary. Answer ONLY with valid JSON:

{
  "title": "short descriptive title, max 10 words",
  "overview": "1-3 sentence summary of what was discussed",
  "emoji": "a single emoji capturing the conversation",
  "category": "one of: personal|education|health|finance|legal|business|work|travel|social|entertainment|technology|other",
  "action_items": [
    {"description": "concrete follow-up stated or implied in the conversation", "completed": false}
  ],
  "events": [
    {"title": "event name", "description": "what it is about", "start": "ISO 8601 datetime or empty string", "duration": 30}
  ]
}

Rules:
- The conversation started at %s (%s timezone). Resolve relative dates ("tomorrow", "next Friday") against it and express event start times in that timezone.
- "duration" is in minutes; use 30 when the conversation does not say.
- Only include action_items actually discussed. Empty lists are fine.
- Only include events with a concrete time reference.
- Write title and overview in the language "%s".

Transcript:
%s`

// buildStructurePrompt fills the prompt template for one request.
func buildStructurePrompt(req StructureRequest) string {
	tz := req.Timezone
	if tz == "" {
		tz = "UTC"
	}
	lang := req.LanguageCode
	if lang == "" {
		lang = "en"
	}
	startedAt := req.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}
	return fmt.Sprintf(structurePrompt,
		startedAt.Format(time.RFC3339),
		tz,
		lang,
		req.Transcript,
	)
}
