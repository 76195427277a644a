package stt

import (
	"errors"

	"github.com/amywork777/taya-backend/internal/transcript"
)

// ErrBackendUnavailable indicates the speech backend rejected or could not
// serve the requested session. Callers fall back to the default profile or
// fail the session.
var ErrBackendUnavailable = errors.New("speech backend unavailable")

// ErrUnsupportedCodec indicates the client requested an audio codec with no
// backend encoding. Sessions fail fast on it.
var ErrUnsupportedCodec = errors.New("unsupported audio codec")

// ErrUnsupportedLanguage indicates the requested language has no streaming
// profile. Callers fall back to the default profile instead of failing.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// Stream is one live speech-to-text session against a backend.
type Stream interface {
	// Send forwards a chunk of raw audio to the backend. Once Finish has
	// begun it is a no-op, tolerating frames that race teardown.
	Send(audio []byte) error

	// Fragments returns the channel of recognized speech fragments. Finish
	// closes it.
	Fragments() <-chan transcript.Fragment

	// Errors returns a channel that receives backend errors.
	Errors() <-chan error

	// Finish flushes pending audio and tears the session down. Idempotent;
	// close errors are logged, never returned.
	Finish()
}
