package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"

	"github.com/amywork777/taya-backend/internal/app"
	"github.com/amywork777/taya-backend/internal/httpapi"
	"github.com/amywork777/taya-backend/internal/jobs"
)

// drainWait bounds how long shutdown waits for in-flight capture sessions.
// http.Server.Shutdown does not track hijacked websocket connections, so the
// session registry is the only thing standing between SIGTERM and cut-off
// recordings.
const drainWait = 30 * time.Second

func main() {
	_ = godotenv.Load()

	cfg := app.LoadConfigFromEnv()

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	logger := log.NewWithOptions(os.Stdout, log.Options{
		ReportTimestamp: true,
		Level:           level,
	})

	// Initialize Sentry for error monitoring
	if cfg.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			EnableTracing:    true,
			TracesSampleRate: cfg.SentryTracesRate,
			Environment:      cfg.Environment,
		})
		if err != nil {
			logger.Warn("sentry init failed", "error", err)
		} else {
			logger.Info("sentry initialized")
			defer sentry.Flush(2 * time.Second)
		}
	}

	a, err := app.New(cfg, logger)
	if err != nil {
		if cfg.SentryDSN != "" {
			sentry.CaptureException(err)
			sentry.Flush(2 * time.Second)
		}
		logger.Fatal("init app", "error", err)
	}

	sessions := httpapi.NewSessionRegistry()

	reaper := jobs.NewStaleConversationJob(a.Store(), logger, cfg.ReaperInterval, cfg.StaleConversationAge)
	reaper.Start()

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           a.Router(sessions),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	// New capture sessions get a 503 from here on; /readyz flips so the load
	// balancer stops routing. In-flight sessions finish their transcripts.
	sessions.StartDraining()

	drained := make(chan struct{})
	go func() {
		sessions.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(drainWait):
		logger.Warn("capture sessions still active at drain deadline", "active", sessions.ActiveCount())
	}

	reaper.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(shutdownCtx)
	_ = a.Close()
}
