package httpapi

import (
	"io"
	"net/http"

	"github.com/amywork777/taya-backend/internal/stt"
	"github.com/amywork777/taya-backend/internal/transcript"
)

// maxUploadBytes caps transcription uploads.
const maxUploadBytes = 100 << 20

// handleTranscribe transcribes an uploaded recording in one shot. Nothing is
// persisted; the caller gets the diarized segments back directly.
func (r *Router) handleTranscribe(w http.ResponseWriter, req *http.Request) {
	req.Body = http.MaxBytesReader(w, req.Body, maxUploadBytes)
	if err := req.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, `{"error": "invalid multipart form"}`, http.StatusBadRequest)
		return
	}

	file, header, err := req.FormFile("file")
	if err != nil {
		http.Error(w, `{"error": "file is required"}`, http.StatusBadRequest)
		return
	}
	defer file.Close()

	audio, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, `{"error": "failed to read upload"}`, http.StatusBadRequest)
		return
	}
	if len(audio) == 0 {
		http.Error(w, `{"error": "file is empty"}`, http.StatusBadRequest)
		return
	}

	language := req.URL.Query().Get("language")
	if language == "" {
		language = r.cfg.DefaultLanguage
	}
	profile, err := stt.ResolveProfile(language)
	if err != nil {
		profile = stt.DefaultProfile()
	}

	result, err := r.transcriber.Transcribe(req.Context(), audio, stt.PrerecordedOptions{
		Model:    profile.Model,
		Language: profile.Language,
		MimeType: header.Header.Get("Content-Type"),
	})
	if err != nil {
		r.logger.Error("transcribe: backend failed", "filename", header.Filename, "err", err)
		captureError(req, err, "transcribe: backend failed")
		http.Error(w, `{"error": "transcription failed"}`, http.StatusInternalServerError)
		return
	}

	segments := result.Segments
	if segments == nil {
		segments = []transcript.Segment{}
	}

	r.logger.Info("transcribe: finished",
		"filename", header.Filename,
		"bytes", len(audio),
		"segments", len(segments),
		"duration_sec", result.Duration)

	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"transcript": segments,
		"language":   result.Language,
		"duration":   result.Duration,
	})
}
