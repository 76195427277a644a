package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/amywork777/taya-backend/internal/transcript"
)

const deepgramRESTURL = "https://api.deepgram.com/v1/listen"

// PrerecordedClient transcribes uploaded audio files through Deepgram's
// prerecorded API.
type PrerecordedClient struct {
	apiKey     string
	httpClient *http.Client
}

// NewPrerecordedClient creates a batch transcription client. A nil httpClient
// gets a default with a generous timeout for large uploads.
func NewPrerecordedClient(apiKey string, httpClient *http.Client) *PrerecordedClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	return &PrerecordedClient{apiKey: apiKey, httpClient: httpClient}
}

// PrerecordedOptions tune a batch transcription request.
type PrerecordedOptions struct {
	Model    string // default "nova-2-general"
	Language string // default "en"
	MimeType string // content type of the uploaded audio, default "audio/wav"
}

// PrerecordedResult is a fully segmented batch transcription.
type PrerecordedResult struct {
	Segments []transcript.Segment
	Language string
	Duration float64 // seconds of audio
}

// prerecordedResponse mirrors the Deepgram prerecorded response shape.
type prerecordedResponse struct {
	Metadata struct {
		Duration float64 `json:"duration"`
	} `json:"metadata"`
	Results struct {
		Channels []struct {
			DetectedLanguage string `json:"detected_language"`
			Alternatives     []struct {
				Transcript string         `json:"transcript"`
				Confidence float64        `json:"confidence"`
				Words      []deepgramWord `json:"words"`
				Paragraphs *struct {
					Transcript string `json:"transcript"`
					Paragraphs []struct {
						Speaker   *int    `json:"speaker"`
						Start     float64 `json:"start"`
						End       float64 `json:"end"`
						Sentences []struct {
							Text  string  `json:"text"`
							Start float64 `json:"start"`
							End   float64 `json:"end"`
						} `json:"sentences"`
					} `json:"paragraphs"`
				} `json:"paragraphs"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// Transcribe uploads raw audio and returns diarized segments. Sentence
// structure from the backend is used when present; otherwise word-level
// output is folded with the same boundary rule as live sessions.
func (c *PrerecordedClient) Transcribe(ctx context.Context, audio []byte, opts PrerecordedOptions) (*PrerecordedResult, error) {
	model := opts.Model
	if model == "" {
		model = defaultModel
	}
	language := opts.Language
	if language == "" {
		language = "en"
	}

	url := fmt.Sprintf("%s?model=%s&language=%s&smart_format=true&diarize=true&punctuate=true&paragraphs=true",
		deepgramRESTURL, model, language)

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(audio))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	mimeType := opts.MimeType
	if mimeType == "" {
		mimeType = "audio/wav"
	}
	req.Header.Set("Content-Type", mimeType)
	req.Header.Set("Authorization", "Token "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("deepgram request: %w: %w", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("deepgram API error: %s - %s", resp.Status, string(respBody))
	}

	var parsed prerecordedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode deepgram response: %w", err)
	}

	return resultFromPrerecorded(&parsed, language), nil
}

func resultFromPrerecorded(resp *prerecordedResponse, fallbackLanguage string) *PrerecordedResult {
	out := &PrerecordedResult{
		Language: fallbackLanguage,
		Duration: resp.Metadata.Duration,
	}
	if len(resp.Results.Channels) == 0 {
		return out
	}
	ch := resp.Results.Channels[0]
	if ch.DetectedLanguage != "" {
		out.Language = ch.DetectedLanguage
	}
	if len(ch.Alternatives) == 0 {
		return out
	}
	alt := ch.Alternatives[0]

	if alt.Paragraphs != nil {
		conf := alt.Confidence
		if conf <= 0 {
			conf = transcript.DefaultConfidence
		}
		for _, p := range alt.Paragraphs.Paragraphs {
			speaker := 0
			if p.Speaker != nil {
				speaker = *p.Speaker
			}
			for _, sent := range p.Sentences {
				text := strings.TrimSpace(sent.Text)
				if text == "" {
					continue
				}
				out.Segments = append(out.Segments, transcript.Segment{
					Text:       text,
					Speaker:    fmt.Sprintf("SPEAKER_%d", speaker),
					SpeakerID:  speaker,
					Start:      sent.Start,
					End:        sent.End,
					Confidence: conf,
				})
			}
		}
		if len(out.Segments) > 0 {
			return out
		}
	}

	// No sentence structure: fold word-level output by speaker.
	frags := make([]transcript.Fragment, 0, len(alt.Words))
	for _, w := range alt.Words {
		text := w.PunctuatedWord
		if text == "" {
			text = w.Word
		}
		speaker := 0
		if w.Speaker != nil {
			speaker = *w.Speaker
		}
		frags = append(frags, transcript.Fragment{
			Text:       text,
			Speaker:    fmt.Sprintf("SPEAKER_%d", speaker),
			Start:      w.Start,
			End:        w.End,
			Confidence: w.Confidence,
			Final:      true,
		})
	}
	out.Segments = transcript.Fold(frags, transcript.AssemblerConfig{})
	return out
}
