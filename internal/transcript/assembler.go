package transcript

import "strings"

// AssemblerConfig tunes how fragments are folded into segments.
type AssemblerConfig struct {
	// DefaultConfidence is used for segments whose opening fragment had no
	// confidence score. Zero means DefaultConfidence (0.95).
	DefaultConfidence float64

	// OwnerIsSpeakerZero marks segments spoken by speaker index 0 as the
	// device owner. Set when the capture session carries a speech profile.
	OwnerIsSpeakerZero bool
}

// Assembler folds a stream of fragments into speaker-attributed segments.
// Consecutive fragments from the same speaker merge into one segment; a
// speaker change closes the current segment and opens a new one. The fold is
// pure state: callers own concurrency.
type Assembler struct {
	cfg     AssemblerConfig
	current *Segment
}

// NewAssembler returns an assembler with no open segment.
func NewAssembler(cfg AssemblerConfig) *Assembler {
	if cfg.DefaultConfidence <= 0 {
		cfg.DefaultConfidence = DefaultConfidence
	}
	return &Assembler{cfg: cfg}
}

// Feed folds one fragment into the assembly. When the fragment closes the
// previously open segment (speaker change), that segment is returned with
// ok=true. Whitespace-only fragments are dropped without touching segment
// boundaries.
func (a *Assembler) Feed(f Fragment) (closed Segment, ok bool) {
	text := strings.TrimSpace(f.Text)
	if text == "" {
		return Segment{}, false
	}

	if a.current != nil && a.current.Speaker == f.Speaker {
		a.current.Text += " " + text
		if f.End > a.current.End {
			a.current.End = f.End
		}
		return Segment{}, false
	}

	if a.current != nil {
		closed, ok = *a.current, true
	}

	conf := f.Confidence
	if conf <= 0 {
		conf = a.cfg.DefaultConfidence
	}
	idx := SpeakerIndex(f.Speaker)
	a.current = &Segment{
		Text:       text,
		Speaker:    f.Speaker,
		SpeakerID:  idx,
		IsUser:     a.cfg.OwnerIsSpeakerZero && idx == 0,
		Start:      f.Start,
		End:        f.End,
		Confidence: conf,
	}
	return closed, ok
}

// Flush closes and returns the open segment, if any. The assembler is empty
// afterwards and can be reused.
func (a *Assembler) Flush() (Segment, bool) {
	if a.current == nil {
		return Segment{}, false
	}
	s := *a.current
	a.current = nil
	return s, true
}

// Fold runs a complete fragment sequence through a fresh assembler and
// returns all resulting segments. Used for batch transcription output, which
// applies the same boundary rule as live sessions.
func Fold(fragments []Fragment, cfg AssemblerConfig) []Segment {
	a := NewAssembler(cfg)
	var out []Segment
	for _, f := range fragments {
		if s, ok := a.Feed(f); ok {
			out = append(out, s)
		}
	}
	if s, ok := a.Flush(); ok {
		out = append(out, s)
	}
	return out
}
