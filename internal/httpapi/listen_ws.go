package httpapi

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/amywork777/taya-backend/internal/costs"
	"github.com/amywork777/taya-backend/internal/eventlog"
	"github.com/amywork777/taya-backend/internal/notifications"
	"github.com/amywork777/taya-backend/internal/store"
	"github.com/amywork777/taya-backend/internal/structuring"
	"github.com/amywork777/taya-backend/internal/stt"
	"github.com/amywork777/taya-backend/internal/transcript"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// writeWait bounds a single frame write so a dead peer cannot pin the write
// loop past the drain grace.
const writeWait = 10 * time.Second

// finalizeTimeout bounds the end-of-session structuring and persistence work.
const finalizeTimeout = 30 * time.Second

// Server-to-client event names.
const (
	eventConversationStarted = "conversation_started"
	eventSegmentReceived     = "segment_received"
	eventHeartbeat           = "heartbeat"
	eventHeartbeatAck        = "heartbeat_ack"
)

// heartbeatToken is the only text frame clients are expected to send.
const heartbeatToken = "heartbeat"

// messageEvent is the envelope for every frame sent to the client.
type messageEvent struct {
	Type  string `json:"type"`
	Event string `json:"event"`
	Data  any    `json:"data"`
}

func newMessageEvent(event string, data any) messageEvent {
	return messageEvent{Type: "message_event", Event: event, Data: data}
}

type conversationStartedData struct {
	ConversationID string `json:"conversation_id"`
	SessionID      string `json:"session_id"`
}

type segmentReceivedData struct {
	Segment   transcript.Segment `json:"segment"`
	SessionID string             `json:"session_id"`
}

// sessionState tracks where a listen session is in its lifecycle.
type sessionState int

const (
	stateIdle sessionState = iota
	stateAccepting
	stateActive
	stateDraining
	stateClosed
)

func (s sessionState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateAccepting:
		return "accepting"
	case stateActive:
		return "active"
	case stateDraining:
		return "draining"
	case stateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// listenParams are the query parameters of a listen session.
type listenParams struct {
	UID                  string
	Language             string
	SampleRate           int
	Codec                string
	Channels             int
	IncludeSpeechProfile bool
}

func parseListenParams(q url.Values, defaultLanguage string) listenParams {
	if defaultLanguage == "" {
		defaultLanguage = "en"
	}
	p := listenParams{
		UID:                  q.Get("uid"),
		Language:             q.Get("language"),
		SampleRate:           8000,
		Codec:                "pcm8",
		Channels:             1,
		IncludeSpeechProfile: true,
	}
	if p.Language == "" {
		p.Language = defaultLanguage
	}
	if v := q.Get("sample_rate"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			p.SampleRate = n
		}
	}
	if v := q.Get("codec"); v != "" {
		p.Codec = v
	}
	if v := q.Get("channels"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			p.Channels = n
		}
	}
	if v := q.Get("include_speech_profile"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			p.IncludeSpeechProfile = b
		}
	}
	return p
}

// listenSession manages a single live transcription socket.
type listenSession struct {
	sessionID      string
	conversationID string
	uid            string
	params         listenParams
	profile        stt.Profile

	conn   *websocket.Conn
	connMu sync.Mutex

	stream    stt.Stream
	assembler *transcript.Assembler

	store    ConversationSink
	eventLog *eventlog.Logger
	invoker  *structuring.Invoker
	apns     *notifications.APNsClient
	discord  *notifications.Discord
	sessions *SessionRegistry
	logger   *log.Logger

	heartbeatIdle time.Duration
	drainGrace    time.Duration

	// outbound is the one ordered queue of frames to the client; only the
	// write loop writes data frames to the connection.
	outbound chan messageEvent

	// activity re-arms the liveness timer on every inbound frame.
	activity chan struct{}

	// segments is appended to by the fragment pump only, read at finalize.
	segments []transcript.Segment

	startedAt time.Time
	sttFailed atomic.Bool

	stateMu sync.Mutex
	state   sessionState

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup // write, pump and liveness loops

	closeOnce sync.Once
}

// handleListenWS upgrades to a websocket and runs one live transcription
// session over it until the client disconnects.
func (r *Router) handleListenWS(w http.ResponseWriter, req *http.Request) {
	params := parseListenParams(req.URL.Query(), r.cfg.DefaultLanguage)
	if params.UID == "" {
		http.Error(w, `{"error": "uid is required"}`, http.StatusBadRequest)
		return
	}

	if r.sessions != nil && !r.sessions.Add() {
		http.Error(w, `{"error": "server is draining"}`, http.StatusServiceUnavailable)
		return
	}
	release := func() {
		if r.sessions != nil {
			r.sessions.Done()
		}
	}

	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Warn("listen: upgrade failed", "err", err)
		release()
		return
	}

	// An unmappable codec fails the session before anything is acknowledged.
	encoding, err := stt.EncodingForCodec(params.Codec)
	if err != nil {
		r.logger.Warn("listen: unsupported codec", "codec", params.Codec, "uid", params.UID)
		msg := websocket.FormatCloseMessage(websocket.CloseUnsupportedData, "unsupported codec")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = conn.Close()
		release()
		return
	}

	profile, err := stt.ResolveProfile(params.Language)
	fallback := false
	if err != nil {
		// Unsupported language degrades to the default profile instead of
		// refusing the session.
		r.logger.Warn("listen: unsupported language, using default profile",
			"language", params.Language, "uid", params.UID)
		profile = stt.DefaultProfile()
		fallback = true
	}

	ctx, cancel := context.WithCancel(req.Context())

	streamCfg := stt.StreamConfig{
		APIKey:     r.cfg.DeepgramAPIKey,
		Language:   profile.Language,
		Model:      profile.Model,
		SampleRate: params.SampleRate,
		Channels:   params.Channels,
		Encoding:   encoding,
		Punctuate:  true,
		Diarize:    true,
	}
	stream, err := r.dialStream(ctx, streamCfg)
	if err != nil && profile != stt.DefaultProfile() {
		r.logger.Warn("listen: stream open failed, retrying with default profile",
			"language", profile.Language, "err", err)
		profile = stt.DefaultProfile()
		fallback = true
		streamCfg.Language = profile.Language
		streamCfg.Model = profile.Model
		stream, err = r.dialStream(ctx, streamCfg)
	}
	if err != nil {
		r.logger.Error("listen: speech backend unavailable", "uid", params.UID, "err", err)
		captureError(req, err, "listen: speech backend unavailable")
		if r.discord != nil {
			r.discord.NotifySTTOutage(ctx, err.Error())
		}
		msg := websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "Internal server error")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = conn.Close()
		cancel()
		release()
		return
	}

	sessionID := uuid.NewString()
	conversationID := uuid.NewString()

	session := &listenSession{
		sessionID:      sessionID,
		conversationID: conversationID,
		uid:            params.UID,
		params:         params,
		profile:        profile,
		conn:           conn,
		stream:         stream,
		assembler: transcript.NewAssembler(transcript.AssemblerConfig{
			OwnerIsSpeakerZero: params.IncludeSpeechProfile,
		}),
		store:         r.store,
		eventLog:      r.eventLog,
		invoker:       r.invoker,
		apns:          r.apns,
		discord:       r.discord,
		sessions:      r.sessions,
		logger:        r.logger,
		heartbeatIdle: r.heartbeatIdle(),
		drainGrace:    r.drainGrace(),
		outbound:      make(chan messageEvent, 64),
		activity:      make(chan struct{}, 1),
		startedAt:     nowUTC(),
		state:         stateAccepting,
		ctx:           ctx,
		cancel:        cancel,
	}

	r.logger.Info("listen: session started",
		"session_id", sessionID,
		"conversation_id", conversationID,
		"uid", params.UID,
		"language", profile.Language,
		"codec", params.Codec,
		"sample_rate", params.SampleRate)

	// The in_progress row is created up front so the announced id resolves
	// while the session is live. A failure here does not stop streaming; the
	// finalize write will report it again.
	if err := r.store.CreateConversation(ctx, store.Conversation{
		ID:        conversationID,
		UID:       params.UID,
		Status:    store.StatusInProgress,
		Source:    store.SourceStream,
		Language:  profile.Language,
		StartedAt: session.startedAt,
	}); err != nil {
		r.logger.Error("listen: failed to create conversation", "conversation_id", conversationID, "err", err)
		captureError(req, err, "listen: create conversation")
	}

	r.eventLog.LogAsync(conversationID, eventlog.EventSessionStarted, map[string]any{
		"session_id":  sessionID,
		"uid":         params.UID,
		"language":    profile.Language,
		"codec":       params.Codec,
		"sample_rate": params.SampleRate,
	})
	r.eventLog.LogAsync(conversationID, eventlog.EventSTTConnected, map[string]any{
		"model":    profile.Model,
		"language": profile.Language,
	})
	if fallback {
		r.eventLog.LogAsync(conversationID, eventlog.EventSTTFallback, map[string]any{
			"requested": params.Language,
			"used":      profile.Language,
		})
	}

	session.run()
}

func (r *Router) heartbeatIdle() time.Duration {
	if r.cfg.HeartbeatIdle > 0 {
		return r.cfg.HeartbeatIdle
	}
	return 30 * time.Second
}

func (r *Router) drainGrace() time.Duration {
	if r.cfg.SessionDrainGrace > 0 {
		return r.cfg.SessionDrainGrace
	}
	return 5 * time.Second
}

// run reads client frames until the socket dies. Everything else happens on
// the session's own goroutines.
func (s *listenSession) run() {
	defer s.cleanup()

	s.setState(stateActive)

	s.wg.Add(3)
	go s.writeLoop()
	go s.pumpFragments()
	go s.livenessLoop()

	// Queued before any audio is read, so it precedes every segment frame.
	s.emit(newMessageEvent(eventConversationStarted, conversationStartedData{
		ConversationID: s.conversationID,
		SessionID:      s.sessionID,
	}))

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		msgType, msg, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Info("listen: client closed session", "session_id", s.sessionID)
			} else {
				s.logger.Debug("listen: read ended", "session_id", s.sessionID, "err", err)
			}
			return
		}

		s.touchActivity()

		switch msgType {
		case websocket.BinaryMessage:
			if err := s.stream.Send(msg); err != nil {
				s.logger.Warn("listen: failed to forward audio", "session_id", s.sessionID, "err", err)
			}
		case websocket.TextMessage:
			if string(msg) == heartbeatToken {
				s.emit(newMessageEvent(eventHeartbeatAck, struct{}{}))
			}
			// Any other text frame is ignored.
		}
	}
}

// pumpFragments folds recognized fragments into segments and queues them for
// the client. It exits when Finish closes both stream channels.
func (s *listenSession) pumpFragments() {
	defer s.wg.Done()

	fragments := s.stream.Fragments()
	errCh := s.stream.Errors()

	for fragments != nil || errCh != nil {
		select {
		case frag, ok := <-fragments:
			if !ok {
				fragments = nil
				continue
			}
			if closed, ok := s.assembler.Feed(frag); ok {
				s.deliverSegment(closed)
			}
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			s.logger.Error("listen: speech backend error", "session_id", s.sessionID, "err", err)
			s.sttFailed.Store(true)
			s.eventLog.LogAsync(s.conversationID, eventlog.EventSTTError, map[string]any{
				"error": err.Error(),
			})
			// Closing the socket unblocks the read loop, which owns teardown.
			s.closeConn(websocket.CloseInternalServerErr, "Internal server error")
		}
	}
}

// deliverSegment records a closed segment and queues it for the client.
func (s *listenSession) deliverSegment(seg transcript.Segment) {
	s.segments = append(s.segments, seg)
	s.eventLog.LogAsync(s.conversationID, eventlog.EventSegmentEmitted, map[string]any{
		"idx":     len(s.segments) - 1,
		"speaker": seg.Speaker,
		"chars":   len(seg.Text),
	})
	s.emit(newMessageEvent(eventSegmentReceived, segmentReceivedData{
		Segment:   seg,
		SessionID: s.sessionID,
	}))
}

// writeLoop is the only writer of data frames on the connection, which keeps
// frame order exactly the queue order.
func (s *listenSession) writeLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case ev := <-s.outbound:
			if err := s.writeFrame(ev); err != nil {
				s.logger.Debug("listen: write failed", "session_id", s.sessionID, "err", err)
				// A broken pipe ends the session; closing unblocks the reader.
				_ = s.conn.Close()
				return
			}
		}
	}
}

// livenessLoop emits one heartbeat per idle period. Only inbound activity
// re-arms the timer; an idle client is never disconnected.
func (s *listenSession) livenessLoop() {
	defer s.wg.Done()

	timer := time.NewTimer(s.heartbeatIdle)
	defer timer.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.activity:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(s.heartbeatIdle)
		case <-timer.C:
			s.emit(newMessageEvent(eventHeartbeat, struct{}{}))
		}
	}
}

// emit queues a frame for the write loop, dropping it during shutdown.
func (s *listenSession) emit(ev messageEvent) {
	select {
	case s.outbound <- ev:
	case <-s.ctx.Done():
	}
}

func (s *listenSession) touchActivity() {
	select {
	case s.activity <- struct{}{}:
	default:
	}
}

func (s *listenSession) writeFrame(ev messageEvent) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(ev)
}

// closeConn sends a close frame and closes the socket. The first caller
// decides the close code; later calls are no-ops.
func (s *listenSession) closeConn(code int, reason string) {
	s.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(code, reason)
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = s.conn.Close()
	})
}

func (s *listenSession) setState(st sessionState) {
	s.stateMu.Lock()
	prev := s.state
	s.state = st
	s.stateMu.Unlock()
	if prev != st {
		s.logger.Debug("listen: session state", "session_id", s.sessionID, "from", prev.String(), "to", st.String())
	}
}

func (s *listenSession) cleanup() {
	s.setState(stateDraining)
	s.cancel()

	// Finish flushes Deepgram and closes the fragment channels, which in turn
	// ends the pump.
	s.stream.Finish()

	drained := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(s.drainGrace):
		s.logger.Warn("listen: session loops did not drain in time", "session_id", s.sessionID)
	}

	// The tail segment joins the transcript even though no client remains to
	// receive it.
	if tail, ok := s.assembler.Flush(); ok {
		s.segments = append(s.segments, tail)
	}

	if s.sttFailed.Load() {
		s.closeConn(websocket.CloseInternalServerErr, "Internal server error")
	} else {
		s.closeConn(websocket.CloseNormalClosure, "")
	}

	s.finalize()
	s.setState(stateClosed)

	s.logger.Info("listen: session closed",
		"session_id", s.sessionID,
		"conversation_id", s.conversationID,
		"segments", len(s.segments),
		"duration_sec", int(time.Since(s.startedAt).Seconds()))

	if s.sessions != nil {
		s.sessions.Done()
	}
}

// finalize runs the end-of-session pipeline: structure, persist, notify. The
// socket is already gone, so it uses a background context and only logs
// failures.
func (s *listenSession) finalize() {
	ctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
	defer cancel()

	formatted := transcript.FormatTranscript(s.segments)
	plain := transcript.JoinText(s.segments)
	result := s.invoker.Structure(ctx, structuring.StructureRequest{
		Transcript:   formatted,
		PlainText:    plain,
		StartedAt:    s.startedAt,
		LanguageCode: s.profile.Language,
	})

	status := store.StatusCompleted
	switch {
	case result.Discarded:
		status = store.StatusDiscarded
		s.eventLog.LogAsync(s.conversationID, eventlog.EventConversationDiscarded, map[string]any{
			"chars": len(plain),
		})
	case result.Degraded:
		s.eventLog.LogAsync(s.conversationID, eventlog.EventStructuringDegraded, map[string]any{
			"title": result.Summary.Title,
		})
	default:
		s.eventLog.LogAsync(s.conversationID, eventlog.EventStructuringCompleted, map[string]any{
			"title":    result.Summary.Title,
			"category": result.Summary.Category,
		})
	}

	metrics := costs.ConversationMetrics{
		AudioSeconds:            int(transcript.Duration(s.segments)),
		StructuringInputTokens:  costs.EstimateTokens(formatted),
		StructuringOutputTokens: costs.EstimateTokens(result.Summary.Title + result.Summary.Overview),
	}
	conversationCosts := costs.CalculateConversationCosts(metrics)

	err := s.store.FinalizeConversation(ctx, s.conversationID, store.FinalizeParams{
		Status:     status,
		Summary:    result.Summary,
		Degraded:   result.Degraded,
		Language:   s.profile.Language,
		Segments:   s.segments,
		FinishedAt: nowUTC(),
		CostCents:  conversationCosts.TotalCostCents,
	})
	if err != nil {
		s.logger.Error("listen: failed to finalize conversation", "conversation_id", s.conversationID, "err", err)
		sentry.CaptureException(err)
		return
	}

	if status == store.StatusCompleted {
		s.eventLog.LogAsync(s.conversationID, eventlog.EventConversationSaved, map[string]any{
			"cost_cents": conversationCosts.TotalCostCents,
			"degraded":   result.Degraded,
		})
		s.notifyOwner(ctx, result, metrics.AudioSeconds)
	}
	s.eventLog.LogAsync(s.conversationID, eventlog.EventSessionClosed, map[string]any{
		"segments":     len(s.segments),
		"duration_sec": metrics.AudioSeconds,
		"status":       status,
	})
}

// notifyOwner pushes the saved conversation to the owner's devices and posts
// the Discord embed. Failures are logged and dropped; the row is already
// saved.
func (s *listenSession) notifyOwner(ctx context.Context, result structuring.Result, durationSeconds int) {
	if s.discord != nil {
		s.discord.NotifyConversationSaved(ctx, s.uid, result.Summary.Title, result.Summary.Category,
			durationSeconds, result.Degraded)
	}

	if s.apns == nil {
		return
	}
	tokens, err := s.store.GetOwnerPushTokens(ctx, s.uid)
	if err != nil {
		s.logger.Warn("listen: failed to load push tokens", "uid", s.uid, "err", err)
		return
	}
	for _, t := range tokens {
		err := s.apns.SendConversationNotification(t.Token, notifications.ConversationNotification{
			ConversationID: s.conversationID,
			Title:          result.Summary.Title,
			Overview:       result.Summary.Overview,
			Emoji:          result.Summary.Emoji,
			Category:       result.Summary.Category,
		})
		if err != nil {
			s.logger.Warn("listen: failed to push notification", "uid", s.uid, "err", err)
		}
	}
}
