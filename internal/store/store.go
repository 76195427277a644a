package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/amywork777/taya-backend/internal/structuring"
	"github.com/amywork777/taya-backend/internal/transcript"
)

type Store struct {
	db *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Conversation statuses.
const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusDiscarded  = "discarded"
	StatusAbandoned  = "abandoned"
)

// Conversation sources.
const (
	SourceStream = "stream" // live capture session
	SourceAPI    = "api"    // created through the REST API
)

// Conversation is one captured conversation with its structured summary.
type Conversation struct {
	ID          string                   `json:"id"`
	UID         string                   `json:"uid"`
	Status      string                   `json:"status"`
	Source      string                   `json:"source"`
	Language    string                   `json:"language"`
	Title       string                   `json:"title,omitempty"`
	Overview    string                   `json:"overview,omitempty"`
	Emoji       string                   `json:"emoji,omitempty"`
	Category    string                   `json:"category,omitempty"`
	ActionItems []structuring.ActionItem `json:"action_items"`
	Events      []structuring.Event      `json:"events"`
	Degraded    bool                     `json:"degraded,omitempty"`
	CostCents   int                      `json:"cost_cents,omitempty"`
	StartedAt   time.Time                `json:"started_at"`
	FinishedAt  *time.Time               `json:"finished_at,omitempty"`
	CreatedAt   time.Time                `json:"created_at"`
	Segments    []transcript.Segment     `json:"transcript_segments,omitempty"`
}

// FinalizeParams is everything written by the single end-of-session save.
type FinalizeParams struct {
	Status     string // completed or discarded
	Summary    structuring.Summary
	Degraded   bool
	Language   string
	Segments   []transcript.Segment
	FinishedAt time.Time
	CostCents  int
}

// ============================================================================
// Conversations
// ============================================================================

// CreateConversation inserts the in_progress row at session start. The caller
// supplies the id so it can be announced to the client before any audio flows.
func (s *Store) CreateConversation(ctx context.Context, c Conversation) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO conversations (id, uid, status, source, language, started_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, c.ID, c.UID, c.Status, c.Source, c.Language, c.StartedAt)
	return err
}

// FinalizeConversation writes the summary fields, final status and the full
// segment list in one transaction.
func (s *Store) FinalizeConversation(ctx context.Context, id string, p FinalizeParams) error {
	actionItems, err := json.Marshal(p.Summary.ActionItems)
	if err != nil {
		actionItems = []byte("[]")
	}
	events, err := json.Marshal(p.Summary.Events)
	if err != nil {
		events = []byte("[]")
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	result, err := tx.Exec(ctx, `
		UPDATE conversations
		SET status = $2,
		    title = $3,
		    overview = $4,
		    emoji = $5,
		    category = $6,
		    action_items = $7,
		    events = $8,
		    degraded = $9,
		    language = COALESCE(NULLIF($10, ''), language),
		    cost_cents = $11,
		    finished_at = $12
		WHERE id = $1
	`, id, p.Status, p.Summary.Title, p.Summary.Overview, p.Summary.Emoji, p.Summary.Category,
		actionItems, events, p.Degraded, p.Language, p.CostCents, p.FinishedAt)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}

	for i, seg := range p.Segments {
		_, err = tx.Exec(ctx, `
			INSERT INTO transcript_segments (conversation_id, idx, text, speaker, speaker_id, is_user, start_sec, end_sec, confidence)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, id, i, seg.Text, seg.Speaker, seg.SpeakerID, seg.IsUser, seg.Start, seg.End, seg.Confidence)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// GetConversation retrieves one conversation with its segments. Ownership is
// part of the key: a wrong uid behaves like a missing row.
func (s *Store) GetConversation(ctx context.Context, uid, id string) (*Conversation, error) {
	var c Conversation
	var actionItems, events []byte

	err := s.db.QueryRow(ctx, `
		SELECT id, uid, status, source, language,
		       COALESCE(title, ''), COALESCE(overview, ''), COALESCE(emoji, ''), COALESCE(category, ''),
		       COALESCE(action_items, '[]'), COALESCE(events, '[]'),
		       degraded, cost_cents,
		       started_at, finished_at, created_at
		FROM conversations
		WHERE id = $1 AND uid = $2
	`, id, uid).Scan(
		&c.ID, &c.UID, &c.Status, &c.Source, &c.Language,
		&c.Title, &c.Overview, &c.Emoji, &c.Category,
		&actionItems, &events,
		&c.Degraded, &c.CostCents,
		&c.StartedAt, &c.FinishedAt, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	unmarshalSummaryLists(&c, actionItems, events)

	rows, err := s.db.Query(ctx, `
		SELECT text, speaker, speaker_id, is_user, start_sec, end_sec, confidence
		FROM transcript_segments
		WHERE conversation_id = $1
		ORDER BY idx ASC
	`, c.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var seg transcript.Segment
		if err := rows.Scan(&seg.Text, &seg.Speaker, &seg.SpeakerID, &seg.IsUser, &seg.Start, &seg.End, &seg.Confidence); err != nil {
			return nil, err
		}
		c.Segments = append(c.Segments, seg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &c, nil
}

// ListConversations returns an owner's conversations, newest first, without
// segments. Discarded conversations are excluded.
func (s *Store) ListConversations(ctx context.Context, uid string, limit, offset int) ([]Conversation, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, uid, status, source, language,
		       COALESCE(title, ''), COALESCE(overview, ''), COALESCE(emoji, ''), COALESCE(category, ''),
		       COALESCE(action_items, '[]'), COALESCE(events, '[]'),
		       degraded, cost_cents,
		       started_at, finished_at, created_at
		FROM conversations
		WHERE uid = $1 AND status != $2
		ORDER BY started_at DESC
		LIMIT $3 OFFSET $4
	`, uid, StatusDiscarded, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	conversations := []Conversation{}
	for rows.Next() {
		var c Conversation
		var actionItems, events []byte
		err := rows.Scan(
			&c.ID, &c.UID, &c.Status, &c.Source, &c.Language,
			&c.Title, &c.Overview, &c.Emoji, &c.Category,
			&actionItems, &events,
			&c.Degraded, &c.CostCents,
			&c.StartedAt, &c.FinishedAt, &c.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		unmarshalSummaryLists(&c, actionItems, events)
		conversations = append(conversations, c)
	}
	return conversations, rows.Err()
}

// MarkStaleConversationsAbandoned flips in_progress conversations started
// before the cutoff to abandoned. Returns how many rows changed.
func (s *Store) MarkStaleConversationsAbandoned(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.Exec(ctx, `
		UPDATE conversations
		SET status = $1, finished_at = NOW()
		WHERE status = $2 AND started_at < $3
	`, StatusAbandoned, StatusInProgress, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

// unmarshalSummaryLists fills ActionItems and Events from their jsonb
// columns. Malformed data degrades to empty lists rather than failing the
// read.
func unmarshalSummaryLists(c *Conversation, actionItems, events []byte) {
	c.ActionItems = []structuring.ActionItem{}
	c.Events = []structuring.Event{}
	if len(actionItems) > 0 {
		_ = json.Unmarshal(actionItems, &c.ActionItems)
	}
	if len(events) > 0 {
		_ = json.Unmarshal(events, &c.Events)
	}
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping: %w", err)
	}
	return nil
}
