package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/getsentry/sentry-go"

	"github.com/amywork777/taya-backend/internal/eventlog"
	"github.com/amywork777/taya-backend/internal/notifications"
	"github.com/amywork777/taya-backend/internal/store"
	"github.com/amywork777/taya-backend/internal/structuring"
	"github.com/amywork777/taya-backend/internal/stt"
)

type RouterConfig struct {
	// Speech-to-text
	DeepgramAPIKey string

	// Structuring model
	OpenAIAPIKey     string
	StructuringModel string

	// Session defaults
	DefaultLanguage   string        // language when the client requests none
	HeartbeatIdle     time.Duration // idle window before a server heartbeat
	SessionDrainGrace time.Duration // wait for session goroutines at teardown

	// Discard policy applied to finished transcripts
	Discard structuring.DiscardPolicy

	// Notifications
	DiscordWebhookURL string

	// APNs Push Notifications
	APNsKeyPath    string // Path to .p8 key file
	APNsKeyID      string // Key ID from Apple Developer Portal
	APNsTeamID     string // Team ID from Apple Developer Portal
	APNsBundleID   string // App bundle ID (e.g., ai.taya.app)
	APNsProduction bool   // Use production environment

	// Shared HTTP client with connection pooling for the Deepgram and
	// OpenAI REST calls.
	HTTPClient *http.Client
}

// ConversationSink is the persistence surface the API writes and reads
// conversations through. *store.Store implements it; tests substitute fakes.
type ConversationSink interface {
	CreateConversation(ctx context.Context, c store.Conversation) error
	FinalizeConversation(ctx context.Context, id string, p store.FinalizeParams) error
	GetConversation(ctx context.Context, uid, id string) (*store.Conversation, error)
	ListConversations(ctx context.Context, uid string, limit, offset int) ([]store.Conversation, error)
	RegisterPushToken(ctx context.Context, uid, token, platform string) error
	UnregisterPushToken(ctx context.Context, token string) error
	GetOwnerPushTokens(ctx context.Context, uid string) ([]store.DevicePushToken, error)
}

// batchTranscriber transcribes a complete uploaded recording.
type batchTranscriber interface {
	Transcribe(ctx context.Context, audio []byte, opts stt.PrerecordedOptions) (*stt.PrerecordedResult, error)
}

type Router struct {
	cfg      RouterConfig
	logger   *log.Logger
	store    ConversationSink
	eventLog *eventlog.Logger
	discord  *notifications.Discord
	apns     *notifications.APNsClient
	invoker  *structuring.Invoker
	sessions *SessionRegistry
	mux      *http.ServeMux

	// Session backends, swapped for fakes in tests.
	dialStream  func(ctx context.Context, cfg stt.StreamConfig) (stt.Stream, error)
	transcriber batchTranscriber
}

func NewRouter(cfg RouterConfig, logger *log.Logger, s ConversationSink, eventLog *eventlog.Logger, sessions *SessionRegistry) http.Handler {
	// Initialize APNs client (may be nil if not configured)
	apnsClient, err := notifications.NewAPNsClient(notifications.APNsConfig{
		KeyPath:    cfg.APNsKeyPath,
		KeyID:      cfg.APNsKeyID,
		TeamID:     cfg.APNsTeamID,
		BundleID:   cfg.APNsBundleID,
		Production: cfg.APNsProduction,
	}, logger)
	if err != nil {
		logger.Warn("APNs client initialization failed", "error", err)
	}

	// Without a model key every summary is built locally and marked degraded.
	var structClient structuring.Client
	if cfg.OpenAIAPIKey != "" {
		structClient = structuring.NewOpenAIClient(structuring.OpenAIConfig{
			APIKey:     cfg.OpenAIAPIKey,
			Model:      cfg.StructuringModel,
			HTTPClient: cfg.HTTPClient,
		})
	}

	r := &Router{
		cfg:      cfg,
		logger:   logger,
		store:    s,
		eventLog: eventLog,
		discord:  notifications.NewDiscord(cfg.DiscordWebhookURL, logger),
		apns:     apnsClient,
		invoker:  structuring.NewInvoker(structClient, cfg.Discard, logger),
		sessions: sessions,
		mux:      http.NewServeMux(),
		dialStream: func(ctx context.Context, sc stt.StreamConfig) (stt.Stream, error) {
			stream, err := stt.NewDeepgramStream(ctx, sc)
			if err != nil {
				return nil, err
			}
			return stream, nil
		},
		transcriber: stt.NewPrerecordedClient(cfg.DeepgramAPIKey, cfg.HTTPClient),
	}

	r.routes()
	return withSentryRecovery(withCORS(r.mux))
}

func (r *Router) routes() {
	// Health checks
	r.mux.HandleFunc("GET /{$}", r.handleRoot)
	r.mux.HandleFunc("GET /health", r.handleHealth)
	r.mux.HandleFunc("GET /v1/health", r.handleHealth)
	r.mux.HandleFunc("GET /healthz", r.handleHealthz)
	r.mux.HandleFunc("GET /readyz", r.handleReadyz)

	// Live transcription socket
	r.mux.HandleFunc("GET /v4/listen", r.handleListenWS)

	// Batch transcription
	r.mux.HandleFunc("POST /v1/transcribe", r.handleTranscribe)

	// Conversations
	r.mux.HandleFunc("GET /v1/conversations", r.handleListConversations)
	r.mux.HandleFunc("POST /v1/conversations", r.handleCreateConversation)
	r.mux.HandleFunc("GET /v1/conversations/{id}", r.handleGetConversation)
	r.mux.HandleFunc("GET /v1/conversations/{id}/events", r.handleGetConversationEvents)

	// Push notifications
	r.mux.HandleFunc("POST /v1/users/push-token", r.handleRegisterPushToken)
	r.mux.HandleFunc("DELETE /v1/users/push-token", r.handleUnregisterPushToken)
}

func (r *Router) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "taya-backend",
		"status":  "running",
	})
}

func (r *Router) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (r *Router) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReadyz reports whether the process accepts new sessions. During a
// drain it returns 503 so the load balancer stops routing new connections
// here while in-flight sessions finish.
func (r *Router) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	if r.sessions != nil && r.sessions.IsDraining() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("draining"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func withSentryRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				hub := sentry.CurrentHub().Clone()
				hub.Scope().SetRequest(req)
				hub.RecoverWithContext(req.Context(), err)
				hub.Flush(2 * time.Second)
				http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, req)
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if req.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, req)
	})
}

func nowUTC() time.Time { return time.Now().UTC() }

// captureError sends an error to Sentry with request context
func captureError(req *http.Request, err error, msg string) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetRequest(req)
		scope.SetExtra("message", msg)
		sentry.CaptureException(err)
	})
}
