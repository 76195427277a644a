package httpapi

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/jackc/pgx/v5"

	"github.com/amywork777/taya-backend/internal/eventlog"
	"github.com/amywork777/taya-backend/internal/store"
	"github.com/amywork777/taya-backend/internal/structuring"
)

// fakeSink is an in-memory ConversationSink.
type fakeSink struct {
	mu            sync.Mutex
	conversations map[string]*store.Conversation
	tokens        []store.DevicePushToken
	finalizeCalls map[string]int

	createErr   error
	finalizeErr error

	// finalized receives a conversation id after each successful finalize,
	// letting tests wait for the async end-of-session pipeline.
	finalized chan string
}

func newFakeSink() *fakeSink {
	return &fakeSink{
		conversations: map[string]*store.Conversation{},
		finalizeCalls: map[string]int{},
		finalized:     make(chan string, 8),
	}
}

func (f *fakeSink) CreateConversation(_ context.Context, c store.Conversation) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := c
	f.conversations[c.ID] = &cp
	return nil
}

func (f *fakeSink) FinalizeConversation(_ context.Context, id string, p store.FinalizeParams) error {
	f.mu.Lock()
	f.finalizeCalls[id]++
	if f.finalizeErr != nil {
		f.mu.Unlock()
		return f.finalizeErr
	}
	c, ok := f.conversations[id]
	if !ok {
		f.mu.Unlock()
		return pgx.ErrNoRows
	}
	c.Status = p.Status
	c.Title = p.Summary.Title
	c.Overview = p.Summary.Overview
	c.Emoji = p.Summary.Emoji
	c.Category = p.Summary.Category
	c.ActionItems = p.Summary.ActionItems
	c.Events = p.Summary.Events
	c.Degraded = p.Degraded
	c.Language = p.Language
	c.Segments = p.Segments
	c.CostCents = p.CostCents
	finished := p.FinishedAt
	c.FinishedAt = &finished
	f.mu.Unlock()

	select {
	case f.finalized <- id:
	default:
	}
	return nil
}

func (f *fakeSink) GetConversation(_ context.Context, uid, id string) (*store.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.conversations[id]
	if !ok || c.UID != uid {
		return nil, pgx.ErrNoRows
	}
	cp := *c
	return &cp, nil
}

func (f *fakeSink) ListConversations(_ context.Context, uid string, limit, offset int) ([]store.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []store.Conversation{}
	for _, c := range f.conversations {
		if c.UID == uid && c.Status != store.StatusDiscarded {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeSink) RegisterPushToken(_ context.Context, uid, token, platform string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, t := range f.tokens {
		if t.UID == uid && t.Token == token {
			f.tokens[i].Platform = platform
			return nil
		}
	}
	f.tokens = append(f.tokens, store.DevicePushToken{UID: uid, Token: token, Platform: platform})
	return nil
}

func (f *fakeSink) UnregisterPushToken(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.tokens[:0]
	for _, t := range f.tokens {
		if t.Token != token {
			kept = append(kept, t)
		}
	}
	f.tokens = kept
	return nil
}

func (f *fakeSink) GetOwnerPushTokens(_ context.Context, uid string) ([]store.DevicePushToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []store.DevicePushToken{}
	for _, t := range f.tokens {
		if t.UID == uid {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeSink) conversation(id string) (store.Conversation, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.conversations[id]
	if !ok {
		return store.Conversation{}, false
	}
	return *c, true
}

// newTestRouter builds a Router on in-memory backends with routes wired. The
// structuring invoker has no model client, so every summary is heuristic.
func newTestRouter(sink ConversationSink) *Router {
	logger := log.New(io.Discard)
	r := &Router{
		cfg: RouterConfig{
			DefaultLanguage: "en",
		},
		logger:   logger,
		store:    sink,
		eventLog: eventlog.New(nil),
		invoker:  structuring.NewInvoker(nil, structuring.DefaultDiscardPolicy(), logger),
		sessions: NewSessionRegistry(),
		mux:      http.NewServeMux(),
	}
	r.routes()
	return r
}

func TestHealthEndpoints(t *testing.T) {
	r := newTestRouter(newFakeSink())

	tests := []struct {
		path     string
		wantCode int
	}{
		{"/", http.StatusOK},
		{"/health", http.StatusOK},
		{"/v1/health", http.StatusOK},
		{"/healthz", http.StatusOK},
		{"/readyz", http.StatusOK},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, tt.path, nil)
		rec := httptest.NewRecorder()
		r.mux.ServeHTTP(rec, req)
		if rec.Code != tt.wantCode {
			t.Errorf("GET %s = %d, want %d", tt.path, rec.Code, tt.wantCode)
		}
	}
}

func TestRootDoesNotSwallowUnknownPaths(t *testing.T) {
	r := newTestRouter(newFakeSink())

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec := httptest.NewRecorder()
	r.mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("GET /nope = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestCORSPreflight(t *testing.T) {
	r := newTestRouter(newFakeSink())
	handler := withCORS(r.mux)

	req := httptest.NewRequest(http.MethodOptions, "/v1/conversations", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("OPTIONS = %d, want %d", rec.Code, http.StatusNoContent)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, "*")
	}
}
