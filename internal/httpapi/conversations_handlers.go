package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/amywork777/taya-backend/internal/costs"
	"github.com/amywork777/taya-backend/internal/store"
	"github.com/amywork777/taya-backend/internal/structuring"
	"github.com/amywork777/taya-backend/internal/transcript"
)

// handleListConversations lists an owner's conversations, newest first,
// without segments.
func (r *Router) handleListConversations(w http.ResponseWriter, req *http.Request) {
	uid := req.URL.Query().Get("uid")
	if uid == "" {
		http.Error(w, `{"error": "uid is required"}`, http.StatusBadRequest)
		return
	}

	limit := 50
	if l := req.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}
	offset := 0
	if o := req.URL.Query().Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	conversations, err := r.store.ListConversations(req.Context(), uid, limit, offset)
	if err != nil {
		r.logger.Error("conversations: failed to list", "uid", uid, "err", err)
		captureError(req, err, "conversations: list failed")
		http.Error(w, `{"error": "failed to list conversations"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"conversations": conversations,
		"count":         len(conversations),
	})
}

// handleGetConversation returns one conversation with its segments.
func (r *Router) handleGetConversation(w http.ResponseWriter, req *http.Request) {
	uid := req.URL.Query().Get("uid")
	if uid == "" {
		http.Error(w, `{"error": "uid is required"}`, http.StatusBadRequest)
		return
	}
	id := req.PathValue("id")
	if id == "" {
		http.Error(w, `{"error": "missing id"}`, http.StatusBadRequest)
		return
	}

	conversation, err := r.store.GetConversation(req.Context(), uid, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// A wrong owner reads the same as a missing row.
			http.Error(w, `{"error": "not found"}`, http.StatusNotFound)
			return
		}
		r.logger.Error("conversations: failed to get", "id", id, "err", err)
		captureError(req, err, "conversations: get failed")
		http.Error(w, `{"error": "failed to get conversation"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, conversation)
}

type createConversationRequest struct {
	StartedAt *time.Time           `json:"started_at"`
	Language  string               `json:"language"`
	Timezone  string               `json:"timezone"`
	Segments  []transcript.Segment `json:"transcript_segments"`
}

// handleCreateConversation saves a conversation from client-supplied
// transcript segments, running the same discard and structuring pipeline as a
// live session.
func (r *Router) handleCreateConversation(w http.ResponseWriter, req *http.Request) {
	uid := req.URL.Query().Get("uid")
	if uid == "" {
		http.Error(w, `{"error": "uid is required"}`, http.StatusBadRequest)
		return
	}

	var body createConversationRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, `{"error": "invalid request body"}`, http.StatusBadRequest)
		return
	}
	if len(body.Segments) == 0 {
		http.Error(w, `{"error": "transcript_segments is required"}`, http.StatusBadRequest)
		return
	}

	startedAt := nowUTC()
	if body.StartedAt != nil {
		startedAt = body.StartedAt.UTC()
	}
	language := body.Language
	if language == "" {
		language = r.cfg.DefaultLanguage
	}
	if language == "" {
		language = "en"
	}

	formatted := transcript.FormatTranscript(body.Segments)
	result := r.invoker.Structure(req.Context(), structuring.StructureRequest{
		Transcript:   formatted,
		PlainText:    transcript.JoinText(body.Segments),
		StartedAt:    startedAt,
		LanguageCode: language,
		Timezone:     body.Timezone,
	})
	if result.Discarded {
		http.Error(w, `{"error": "Conversation content not meaningful enough to save"}`, http.StatusBadRequest)
		return
	}

	conversation := store.Conversation{
		ID:        uuid.NewString(),
		UID:       uid,
		Status:    store.StatusInProgress,
		Source:    store.SourceAPI,
		Language:  language,
		StartedAt: startedAt,
		CreatedAt: nowUTC(),
	}
	if err := r.store.CreateConversation(req.Context(), conversation); err != nil {
		r.logger.Error("conversations: failed to create", "uid", uid, "err", err)
		captureError(req, err, "conversations: create failed")
		http.Error(w, `{"error": "failed to save conversation"}`, http.StatusInternalServerError)
		return
	}

	conversationCosts := costs.CalculateConversationCosts(costs.ConversationMetrics{
		AudioSeconds:            int(transcript.Duration(body.Segments)),
		StructuringInputTokens:  costs.EstimateTokens(formatted),
		StructuringOutputTokens: costs.EstimateTokens(result.Summary.Title + result.Summary.Overview),
	})

	finishedAt := nowUTC()
	if err := r.store.FinalizeConversation(req.Context(), conversation.ID, store.FinalizeParams{
		Status:     store.StatusCompleted,
		Summary:    result.Summary,
		Degraded:   result.Degraded,
		Language:   language,
		Segments:   body.Segments,
		FinishedAt: finishedAt,
		CostCents:  conversationCosts.TotalCostCents,
	}); err != nil {
		r.logger.Error("conversations: failed to finalize", "id", conversation.ID, "err", err)
		captureError(req, err, "conversations: finalize failed")
		http.Error(w, `{"error": "failed to save conversation"}`, http.StatusInternalServerError)
		return
	}

	conversation.Status = store.StatusCompleted
	conversation.Title = result.Summary.Title
	conversation.Overview = result.Summary.Overview
	conversation.Emoji = result.Summary.Emoji
	conversation.Category = result.Summary.Category
	conversation.ActionItems = result.Summary.ActionItems
	conversation.Events = result.Summary.Events
	conversation.Degraded = result.Degraded
	conversation.CostCents = conversationCosts.TotalCostCents
	conversation.FinishedAt = &finishedAt
	conversation.Segments = body.Segments
	if conversation.ActionItems == nil {
		conversation.ActionItems = []structuring.ActionItem{}
	}
	if conversation.Events == nil {
		conversation.Events = []structuring.Event{}
	}

	r.logger.Info("conversations: saved from api",
		"id", conversation.ID,
		"uid", uid,
		"segments", len(body.Segments),
		"degraded", result.Degraded)

	writeJSON(w, http.StatusCreated, conversation)
}

// handleGetConversationEvents lists the session event log for one
// conversation, for debugging session behavior in production.
func (r *Router) handleGetConversationEvents(w http.ResponseWriter, req *http.Request) {
	uid := req.URL.Query().Get("uid")
	if uid == "" {
		http.Error(w, `{"error": "uid is required"}`, http.StatusBadRequest)
		return
	}
	id := req.PathValue("id")
	if id == "" {
		http.Error(w, `{"error": "missing id"}`, http.StatusBadRequest)
		return
	}

	// Events are only visible to the conversation's owner.
	if _, err := r.store.GetConversation(req.Context(), uid, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			http.Error(w, `{"error": "not found"}`, http.StatusNotFound)
			return
		}
		r.logger.Error("conversations: failed to check owner", "id", id, "err", err)
		captureError(req, err, "conversations: events owner check failed")
		http.Error(w, `{"error": "failed to get conversation"}`, http.StatusInternalServerError)
		return
	}

	events, err := r.eventLog.ListEvents(req.Context(), id)
	if err != nil {
		r.logger.Error("conversations: failed to list events", "id", id, "err", err)
		captureError(req, err, "conversations: list events failed")
		http.Error(w, `{"error": "failed to list events"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"conversation_id": id,
		"events":          events,
		"count":           len(events),
	})
}
