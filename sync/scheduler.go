package sync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pocketbase/pocketbase/core"
	"github.com/robfig/cron/v3"

	"github.com/heavenly/booksync/lodgify"
)

const (
	// scheduledPageSize is the page size used by the cron-driven batches.
	scheduledPageSize = 50

	// scheduledBatchBudget bounds one scheduled batch; the full crawl
	// keeps paging with fresh budgets until the feed is exhausted.
	scheduledBatchBudget = 5 * time.Minute
)

// Scheduler runs periodic sync batches: an hourly incremental pass over
// the first page of the feed, and a nightly full crawl with audit-record
// pruning.
type Scheduler struct {
	app    core.App
	cron   *cron.Cron
	source *lodgify.Client
	syncer *Syncer

	mu      sync.Mutex
	running bool
}

// NewScheduler creates a scheduler; Start must be called to activate it.
func NewScheduler(app core.App, source *lodgify.Client, syncer *Syncer) *Scheduler {
	return &Scheduler{
		app:    app,
		cron:   cron.New(),
		source: source,
		syncer: syncer,
	}
}

// Start registers the cron entries and starts the scheduler.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	_, err := s.cron.AddFunc("0 * * * *", func() {
		slog.Info("Starting scheduled hourly sync (first page)")
		s.runIncrementalSync()
	})
	if err != nil {
		return fmt.Errorf("adding hourly schedule: %w", err)
	}

	_, err = s.cron.AddFunc("0 3 * * *", func() {
		slog.Info("Starting scheduled daily sync (full crawl)")
		s.runFullSync()
	})
	if err != nil {
		return fmt.Errorf("adding daily schedule: %w", err)
	}

	s.cron.Start()
	s.running = true

	slog.Info("Sync scheduler started")
	return nil
}

// Stop gracefully stops the scheduler.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	slog.Info("Stopping sync scheduler")
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.running = false
	slog.Info("Sync scheduler stopped")
}

// runIncrementalSync upserts the first page of the feed, which carries the
// most recently changed bookings.
func (s *Scheduler) runIncrementalSync() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	start := time.Now()
	bookings, err := s.source.ListBookings(ctx, scheduledPageSize, 0)
	if err != nil {
		slog.Error("Hourly sync failed to fetch bookings", "error", err)
		recordSyncRun(s.app, "hourly", BatchResult{}, time.Since(start), err)
		return
	}

	result := s.syncer.RunBatch(ctx, bookings, s.propertyNames(ctx), 0, scheduledBatchBudget)
	recordSyncRun(s.app, "hourly", result, time.Since(start), nil)
	slog.Info("Hourly sync completed",
		"processed", result.Processed, "created", result.Created,
		"updated", result.Updated, "failed", result.Failed)
}

// runFullSync prunes old audit records, then pages through the whole feed.
func (s *Scheduler) runFullSync() {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Minute)
	defer cancel()

	if err := pruneOldSyncRuns(s.app); err != nil {
		slog.Warn("Failed to prune old sync runs", "error", err)
	}

	start := time.Now()
	props := s.propertyNames(ctx)

	var total BatchResult
	skip := 0
	for {
		bookings, err := s.source.ListBookings(ctx, scheduledPageSize, skip)
		if err != nil {
			slog.Error("Daily sync failed to fetch bookings", "skip", skip, "error", err)
			recordSyncRun(s.app, "daily", total, time.Since(start), err)
			return
		}
		if len(bookings) == 0 {
			break
		}

		result := s.syncer.RunBatch(ctx, bookings, props, skip, scheduledBatchBudget)
		total.Processed += result.Processed
		total.Created += result.Created
		total.Updated += result.Updated
		total.Failed += result.Failed
		total.NextSkip = result.NextSkip
		skip = result.NextSkip

		// Nothing cancels a background crawl except its own deadline, so
		// either interruption counts as the crawl timing out.
		if result.TimedOut || result.Cancelled || ctx.Err() != nil {
			total.TimedOut = true
			break
		}
		if len(bookings) < scheduledPageSize {
			break
		}
	}

	recordSyncRun(s.app, "daily", total, time.Since(start), nil)
	slog.Info("Daily sync completed",
		"processed", total.Processed, "created", total.Created,
		"updated", total.Updated, "failed", total.Failed, "timed_out", total.TimedOut)
}

// propertyNames fetches the property index; failures degrade to nil (the
// extractor falls back to its other naming heuristics).
func (s *Scheduler) propertyNames(ctx context.Context) map[string]string {
	props, err := s.source.PropertyIndex(ctx)
	if err != nil {
		slog.Warn("Could not fetch property index", "error", err)
		return nil
	}
	return props
}
