package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/amywork777/taya-backend/internal/transcript"
)

const deepgramWSURL = "wss://api.deepgram.com/v1/listen"

// DeepgramStream implements Stream over Deepgram's live transcription API.
type DeepgramStream struct {
	conn       *websocket.Conn
	fragments  chan transcript.Fragment
	errors     chan error
	done       chan struct{}
	finishOnce sync.Once
	mu         sync.Mutex
	wg         sync.WaitGroup // Wait for readLoop to finish
}

// StreamConfig holds configuration for a live Deepgram session.
type StreamConfig struct {
	APIKey     string
	Language   string // e.g. "en"
	Model      string // e.g. "nova-2-general"
	SampleRate int    // e.g. 16000
	Channels   int    // e.g. 1 for mono
	Encoding   string // e.g. "linear16", see EncodingForCodec
	Punctuate  bool
	Diarize    bool // word-level speaker labels
}

// deepgramWord is one word hypothesis inside a Results message.
type deepgramWord struct {
	Word           string  `json:"word"`
	PunctuatedWord string  `json:"punctuated_word"`
	Start          float64 `json:"start"`
	End            float64 `json:"end"`
	Confidence     float64 `json:"confidence"`
	Speaker        *int    `json:"speaker"`
}

// deepgramLiveResponse represents a Deepgram WebSocket response.
type deepgramLiveResponse struct {
	Type    string `json:"type"`
	Channel struct {
		Alternatives []struct {
			Transcript string         `json:"transcript"`
			Confidence float64        `json:"confidence"`
			Words      []deepgramWord `json:"words"`
		} `json:"alternatives"`
	} `json:"channel"`
	IsFinal  bool    `json:"is_final"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
}

// NewDeepgramStream opens a live transcription session. Dial failures and
// backend rejections surface as ErrBackendUnavailable instead of hanging.
func NewDeepgramStream(ctx context.Context, cfg StreamConfig) (*DeepgramStream, error) {
	url := fmt.Sprintf("%s?model=%s&language=%s&encoding=%s&sample_rate=%d&channels=%d&punctuate=%t&diarize=%t",
		deepgramWSURL,
		cfg.Model,
		cfg.Language,
		cfg.Encoding,
		cfg.SampleRate,
		cfg.Channels,
		cfg.Punctuate,
		cfg.Diarize,
	)

	headers := http.Header{}
	headers.Set("Authorization", "Token "+cfg.APIKey)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, headers)
	if err != nil {
		return nil, fmt.Errorf("connect to deepgram: %w: %w", ErrBackendUnavailable, err)
	}

	s := &DeepgramStream{
		conn:      conn,
		fragments: make(chan transcript.Fragment, 100),
		errors:    make(chan error, 10),
		done:      make(chan struct{}),
	}

	s.wg.Add(1)
	go s.readLoop()

	return s, nil
}

// Send forwards raw audio to Deepgram. No-op once Finish has begun.
func (s *DeepgramStream) Send(audio []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.done:
		return nil
	default:
	}

	if err := s.conn.WriteMessage(websocket.BinaryMessage, audio); err != nil {
		return fmt.Errorf("send audio: %w", err)
	}
	return nil
}

// Fragments returns the channel of recognized fragments.
func (s *DeepgramStream) Fragments() <-chan transcript.Fragment {
	return s.fragments
}

// Errors returns the channel of backend errors.
func (s *DeepgramStream) Errors() <-chan error {
	return s.errors
}

// Finish asks Deepgram to flush, closes the connection and waits for the read
// loop. Safe to call more than once and from multiple goroutines.
func (s *DeepgramStream) Finish() {
	s.finishOnce.Do(func() {
		close(s.done)

		s.mu.Lock()
		closeMsg := []byte(`{"type": "CloseStream"}`)
		_ = s.conn.WriteMessage(websocket.TextMessage, closeMsg)
		s.mu.Unlock()

		if err := s.conn.Close(); err != nil {
			log.Debug("deepgram: close connection", "err", err)
		}

		// Wait for readLoop to finish before closing channels.
		s.wg.Wait()
		close(s.fragments)
		close(s.errors)
	})
}

// readLoop reads Deepgram responses and emits validated fragments.
func (s *DeepgramStream) readLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.done:
			return
		default:
		}

		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
				return
			case s.errors <- fmt.Errorf("read error: %w", err):
			default:
			}
			return
		}

		var resp deepgramLiveResponse
		if err := json.Unmarshal(msg, &resp); err != nil {
			log.Warn("deepgram: failed to parse response", "err", err)
			continue
		}

		if resp.Type != "Results" {
			continue
		}

		for _, frag := range fragmentsFromResponse(resp) {
			select {
			case <-s.done:
				return
			case s.fragments <- frag:
			}
		}
	}
}

// fragmentsFromResponse turns one Results message into fragments, splitting
// the word list into contiguous same-speaker runs. Empty transcripts are
// dropped here, at the adapter boundary.
func fragmentsFromResponse(resp deepgramLiveResponse) []transcript.Fragment {
	if len(resp.Channel.Alternatives) == 0 {
		return nil
	}
	alt := resp.Channel.Alternatives[0]
	if strings.TrimSpace(alt.Transcript) == "" {
		return nil
	}

	if len(alt.Words) == 0 {
		return []transcript.Fragment{{
			Text:       alt.Transcript,
			Speaker:    "SPEAKER_0",
			Start:      resp.Start,
			End:        resp.Start + resp.Duration,
			Confidence: alt.Confidence,
			Final:      resp.IsFinal,
		}}
	}

	var out []transcript.Fragment
	cur := -1
	var words []string
	var start, end float64

	flush := func() {
		if len(words) == 0 {
			return
		}
		out = append(out, transcript.Fragment{
			Text:       strings.Join(words, " "),
			Speaker:    fmt.Sprintf("SPEAKER_%d", cur),
			Start:      start,
			End:        end,
			Confidence: alt.Confidence,
			Final:      resp.IsFinal,
		})
		words = words[:0]
	}

	for _, w := range alt.Words {
		speaker := 0
		if w.Speaker != nil {
			speaker = *w.Speaker
		}
		text := w.PunctuatedWord
		if text == "" {
			text = w.Word
		}
		if text == "" {
			continue
		}
		if cur != speaker {
			flush()
			cur = speaker
			start = w.Start
		}
		words = append(words, text)
		end = w.End
	}
	flush()

	return out
}
