package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/amywork777/taya-backend/internal/eventlog"
	"github.com/amywork777/taya-backend/internal/httpapi"
	"github.com/amywork777/taya-backend/internal/store"
)

type App struct {
	cfg        Config
	logger     *log.Logger
	db         *pgxpool.Pool
	store      *store.Store
	eventLog   *eventlog.Logger
	httpClient *http.Client // Shared HTTP client with connection pooling for outbound API calls
}

func New(cfg Config, logger *log.Logger) (*App, error) {
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, err
	}

	s := store.New(db)
	el := eventlog.New(db)

	// Migrations are applied externally by the CI deploy job (docker exec psql).
	// No automatic migration runner at startup.

	// Shared HTTP client with connection pooling. Keeps TCP connections alive
	// across the per-conversation OpenAI structuring calls, batch Deepgram
	// transcription and notification webhooks.
	httpClient := &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   5 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}

	return &App{
		cfg:        cfg,
		logger:     logger,
		db:         db,
		store:      s,
		eventLog:   el,
		httpClient: httpClient,
	}, nil
}

// Store exposes the persistence layer for background jobs.
func (a *App) Store() *store.Store {
	return a.store
}

func (a *App) Router(sessions *httpapi.SessionRegistry) http.Handler {
	routerCfg := httpapi.RouterConfig{
		DeepgramAPIKey:    a.cfg.DeepgramAPIKey,
		OpenAIAPIKey:      a.cfg.OpenAIAPIKey,
		StructuringModel:  a.cfg.StructuringModel,
		DefaultLanguage:   a.cfg.DefaultLanguage,
		HeartbeatIdle:     a.cfg.HeartbeatIdle,
		SessionDrainGrace: a.cfg.SessionDrainGrace,
		Discard:           a.cfg.DiscardPolicy(),
		DiscordWebhookURL: a.cfg.DiscordWebhookURL,
		APNsKeyPath:       a.cfg.APNsKeyPath,
		APNsKeyID:         a.cfg.APNsKeyID,
		APNsTeamID:        a.cfg.APNsTeamID,
		APNsBundleID:      a.cfg.APNsBundleID,
		APNsProduction:    a.cfg.APNsProduction,
		HTTPClient:        a.httpClient,
	}
	return httpapi.NewRouter(routerCfg, a.logger, a.store, a.eventLog, sessions)
}

func (a *App) Close() error {
	if a.db != nil {
		a.db.Close()
	}
	return nil
}
