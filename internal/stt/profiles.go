package stt

import (
	"fmt"
	"strings"
)

const defaultModel = "nova-2-general"

// streamingLanguages lists the language codes the streaming model accepts.
var streamingLanguages = map[string]bool{
	"bg": true, "ca": true, "cs": true, "da": true, "de": true,
	"el": true, "en": true, "es": true, "et": true, "fi": true,
	"fr": true, "hi": true, "hu": true, "id": true, "it": true,
	"ja": true, "ko": true, "lt": true, "lv": true, "ms": true,
	"nl": true, "no": true, "pl": true, "pt": true, "ro": true,
	"ru": true, "sk": true, "sv": true, "th": true, "tr": true,
	"uk": true, "vi": true, "zh": true,
}

// Profile selects the backend language and model for a session.
type Profile struct {
	Language string
	Model    string
}

// DefaultProfile is the fallback used when the requested language has no
// backend support.
func DefaultProfile() Profile {
	return Profile{Language: "en", Model: defaultModel}
}

// ResolveProfile maps a client language code to a backend profile. Region
// suffixes are stripped ("en-US" resolves as "en"). An empty code resolves to
// the default profile; an unsupported one returns ErrUnsupportedLanguage so
// the caller can fall back explicitly.
func ResolveProfile(language string) (Profile, error) {
	code := strings.ToLower(strings.TrimSpace(language))
	if i := strings.IndexByte(code, '-'); i > 0 {
		code = code[:i]
	}
	if code == "" {
		return DefaultProfile(), nil
	}
	if !streamingLanguages[code] {
		return Profile{}, fmt.Errorf("language %q: %w", language, ErrUnsupportedLanguage)
	}
	return Profile{Language: code, Model: defaultModel}, nil
}

// EncodingForCodec maps a client codec name to the backend encoding. Unknown
// codecs return ErrUnsupportedCodec.
func EncodingForCodec(codec string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(codec)) {
	case "pcm8", "pcm16":
		return "linear16", nil
	case "opus":
		return "opus", nil
	case "mulaw":
		return "mulaw", nil
	default:
		return "", fmt.Errorf("codec %q: %w", codec, ErrUnsupportedCodec)
	}
}
