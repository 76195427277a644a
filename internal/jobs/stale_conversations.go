package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/amywork777/taya-backend/internal/store"
)

// StaleConversationJob sweeps conversations whose capture session never
// finished cleanly. It runs on a configurable interval (default: 30 minutes)
// and marks in_progress conversations older than the max age as abandoned, so
// a crashed client cannot leave rows open forever.
type StaleConversationJob struct {
	store    *store.Store
	logger   *log.Logger
	interval time.Duration
	maxAge   time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewStaleConversationJob creates a new stale conversation job.
func NewStaleConversationJob(s *store.Store, logger *log.Logger, interval, maxAge time.Duration) *StaleConversationJob {
	if interval == 0 {
		interval = 30 * time.Minute
	}
	if maxAge == 0 {
		maxAge = 2 * time.Hour
	}
	return &StaleConversationJob{
		store:    s,
		logger:   logger,
		interval: interval,
		maxAge:   maxAge,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the background job.
func (j *StaleConversationJob) Start() {
	j.wg.Add(1)
	go j.run()
	j.logger.Info("StaleConversationJob: started", "interval", j.interval, "max_age", j.maxAge)
}

// Stop gracefully stops the background job.
func (j *StaleConversationJob) Stop() {
	close(j.stopCh)
	j.wg.Wait()
	j.logger.Info("StaleConversationJob: stopped")
}

func (j *StaleConversationJob) run() {
	defer j.wg.Done()

	// Run immediately on start
	j.processStale()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.processStale()
		case <-j.stopCh:
			return
		}
	}
}

func (j *StaleConversationJob) processStale() {
	if j.store == nil {
		return
	}

	ctx := context.Background()
	cutoff := time.Now().UTC().Add(-j.maxAge)

	n, err := j.store.MarkStaleConversationsAbandoned(ctx, cutoff)
	if err != nil {
		j.logger.Error("StaleConversationJob: failed to mark stale conversations", "error", err)
		return
	}

	if n > 0 {
		j.logger.Info("StaleConversationJob: marked stale conversations abandoned", "count", n)
	}
}
