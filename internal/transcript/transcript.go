// Package transcript holds the domain model for transcribed speech: the
// fragments produced by a speech backend and the speaker-attributed segments
// assembled from them. It performs no I/O.
package transcript

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultConfidence is assigned to segments whose fragments carried no
// confidence score.
const DefaultConfidence = 0.95

// Fragment is a single piece of recognized speech as emitted by a backend.
type Fragment struct {
	Text       string  // recognized text, may have leading/trailing whitespace
	Speaker    string  // backend speaker label, e.g. "SPEAKER_0"
	Start      float64 // seconds from the beginning of the audio
	End        float64 // seconds from the beginning of the audio
	Confidence float64 // 0-1, zero when the backend did not score it
	Final      bool    // whether the backend considers this hypothesis final
}

// Segment is a contiguous span of speech attributed to one speaker. This is
// the unit sent to clients and persisted.
type Segment struct {
	Text       string  `json:"text"`
	Speaker    string  `json:"speaker"`
	SpeakerID  int     `json:"speaker_id"`
	IsUser     bool    `json:"is_user"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"confidence"`
}

// SpeakerIndex extracts the numeric index from a speaker label such as
// "SPEAKER_2". Labels without a parseable trailing index (including "unknown")
// map to 0.
func SpeakerIndex(label string) int {
	i := strings.LastIndexByte(label, '_')
	if i < 0 {
		return 0
	}
	n, err := strconv.Atoi(label[i+1:])
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// JoinText concatenates segment texts with single spaces, in order.
func JoinText(segments []Segment) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		if s.Text == "" {
			continue
		}
		parts = append(parts, s.Text)
	}
	return strings.Join(parts, " ")
}

// FormatTranscript renders segments as "Speaker N: text" lines, with "User"
// for segments attributed to the device owner. This is the shape handed to
// the structuring model.
func FormatTranscript(segments []Segment) string {
	var b strings.Builder
	for i, s := range segments {
		if i > 0 {
			b.WriteByte('\n')
		}
		if s.IsUser {
			b.WriteString("User: ")
		} else {
			fmt.Fprintf(&b, "Speaker %d: ", s.SpeakerID)
		}
		b.WriteString(s.Text)
	}
	return b.String()
}

// Duration returns the covered time span in seconds, assuming segments are
// ordered.
func Duration(segments []Segment) float64 {
	if len(segments) == 0 {
		return 0
	}
	return segments[len(segments)-1].End - segments[0].Start
}
