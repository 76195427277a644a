package eventlog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EventType represents the type of conversation event
type EventType string

const (
	EventSessionStarted        EventType = "session_started"
	EventSTTConnected          EventType = "stt_connected"
	EventSTTFallback           EventType = "stt_fallback"
	EventSTTError              EventType = "stt_error"
	EventSegmentEmitted        EventType = "segment_emitted"
	EventStructuringCompleted  EventType = "structuring_completed"
	EventStructuringDegraded   EventType = "structuring_degraded"
	EventConversationDiscarded EventType = "conversation_discarded"
	EventConversationSaved     EventType = "conversation_saved"
	EventSessionClosed         EventType = "session_closed"
)

// Logger provides async event logging to the database
type Logger struct {
	db *pgxpool.Pool
}

// New creates a new event logger
func New(db *pgxpool.Pool) *Logger {
	return &Logger{db: db}
}

// Log writes an event to the database synchronously
func (l *Logger) Log(ctx context.Context, conversationID string, eventType EventType, data map[string]any) error {
	if l.db == nil || conversationID == "" {
		return nil // Silently skip if no DB or conversation ID
	}

	dataJSON, err := json.Marshal(data)
	if err != nil {
		dataJSON = []byte("{}")
	}

	_, err = l.db.Exec(ctx, `
		INSERT INTO conversation_events (conversation_id, event_type, event_data)
		VALUES ($1, $2, $3)
	`, conversationID, string(eventType), dataJSON)

	return err
}

// LogAsync logs an event without blocking the caller
func (l *Logger) LogAsync(conversationID string, eventType EventType, data map[string]any) {
	if l.db == nil || conversationID == "" {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = l.Log(ctx, conversationID, eventType, data)
	}()
}

// ConversationEvent is one logged event row.
type ConversationEvent struct {
	ID        string          `json:"id"`
	EventType string          `json:"event_type"`
	EventData json.RawMessage `json:"event_data"`
	CreatedAt time.Time       `json:"created_at"`
}

// ListEvents returns a conversation's events in insertion order.
func (l *Logger) ListEvents(ctx context.Context, conversationID string) ([]ConversationEvent, error) {
	if l.db == nil {
		return []ConversationEvent{}, nil
	}

	rows, err := l.db.Query(ctx, `
		SELECT id, event_type, event_data, created_at
		FROM conversation_events
		WHERE conversation_id = $1
		ORDER BY created_at ASC, id ASC
	`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []ConversationEvent{}
	for rows.Next() {
		var e ConversationEvent
		if err := rows.Scan(&e.ID, &e.EventType, &e.EventData, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
