package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/amywork777/taya-backend/internal/stt"
	"github.com/amywork777/taya-backend/internal/transcript"
)

type fakeTranscriber struct {
	result *stt.PrerecordedResult
	err    error

	gotAudio []byte
	gotOpts  stt.PrerecordedOptions
}

func (f *fakeTranscriber) Transcribe(_ context.Context, audio []byte, opts stt.PrerecordedOptions) (*stt.PrerecordedResult, error) {
	f.gotAudio = append([]byte(nil), audio...)
	f.gotOpts = opts
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func multipartUpload(t *testing.T, path, filename string, payload []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write(payload); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestTranscribeUpload(t *testing.T) {
	r := newTestRouter(newFakeSink())
	ft := &fakeTranscriber{result: &stt.PrerecordedResult{
		Segments: []transcript.Segment{
			{Text: "thanks for calling back about the quote", Speaker: "SPEAKER_0", SpeakerID: 0, End: 3.5, Confidence: 0.92},
		},
		Language: "en",
		Duration: 3.5,
	}}
	r.transcriber = ft

	audio := []byte{0x52, 0x49, 0x46, 0x46, 0, 0, 0, 0}
	req := multipartUpload(t, "/v1/transcribe", "recording.wav", audio)
	rec := httptest.NewRecorder()
	r.mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body %s", rec.Code, http.StatusOK, rec.Body.String())
	}

	var envelope struct {
		Success    bool                 `json:"success"`
		Transcript []transcript.Segment `json:"transcript"`
		Language   string               `json:"language"`
		Duration   float64              `json:"duration"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !envelope.Success {
		t.Error("success = false")
	}
	if len(envelope.Transcript) != 1 || envelope.Transcript[0].Text != "thanks for calling back about the quote" {
		t.Errorf("transcript = %+v", envelope.Transcript)
	}
	if envelope.Language != "en" || envelope.Duration != 3.5 {
		t.Errorf("language = %q duration = %v", envelope.Language, envelope.Duration)
	}

	if !bytes.Equal(ft.gotAudio, audio) {
		t.Error("backend did not receive the uploaded bytes")
	}
	if ft.gotOpts.Model != "nova-2-general" || ft.gotOpts.Language != "en" {
		t.Errorf("backend options = %+v", ft.gotOpts)
	}
}

func TestTranscribeLanguageFallsBack(t *testing.T) {
	r := newTestRouter(newFakeSink())
	ft := &fakeTranscriber{result: &stt.PrerecordedResult{Language: "en"}}
	r.transcriber = ft

	req := multipartUpload(t, "/v1/transcribe?language=xx", "recording.wav", []byte{1})
	rec := httptest.NewRecorder()
	r.mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ft.gotOpts.Language != "en" {
		t.Errorf("backend language = %q, want default en", ft.gotOpts.Language)
	}

	// Absent segments come back as an empty array, not null.
	var envelope struct {
		Transcript json.RawMessage `json:"transcript"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if string(envelope.Transcript) != "[]" {
		t.Errorf("transcript = %s, want []", envelope.Transcript)
	}
}

func TestTranscribeRequiresFile(t *testing.T) {
	r := newTestRouter(newFakeSink())
	r.transcriber = &fakeTranscriber{}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("language", "en")
	_ = mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/v1/transcribe", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rec := httptest.NewRecorder()
	r.mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestTranscribeRejectsEmptyFile(t *testing.T) {
	r := newTestRouter(newFakeSink())
	r.transcriber = &fakeTranscriber{}

	req := multipartUpload(t, "/v1/transcribe", "empty.wav", nil)
	rec := httptest.NewRecorder()
	r.mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestTranscribeBackendFailure(t *testing.T) {
	r := newTestRouter(newFakeSink())
	r.transcriber = &fakeTranscriber{err: errors.New("deepgram: 502")}

	req := multipartUpload(t, "/v1/transcribe", "recording.wav", []byte{1, 2})
	rec := httptest.NewRecorder()
	r.mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
}
