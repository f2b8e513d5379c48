// Package scheduler drives periodic feed refresh and retention purge.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"speedreader/internal/reconciler"
	"speedreader/internal/storage"
)

// Scheduler periodically reconciles all feeds and purges expired
// articles.
type Scheduler struct {
	store      storage.Storage
	reconciler *reconciler.Reconciler
	log        *slog.Logger
	interval   time.Duration
	retention  time.Duration
}

// New creates a Scheduler.
func New(store storage.Storage, rec *reconciler.Reconciler, interval, retention time.Duration, log *slog.Logger) *Scheduler {
	return &Scheduler{
		store:      store,
		reconciler: rec,
		log:        log,
		interval:   interval,
		retention:  retention,
	}
}

// Run starts the scheduler loop, blocking until ctx is cancelled. A
// full cycle runs immediately, then on every tick.
func (s *Scheduler) Run(ctx context.Context) {
	s.runCycle(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

// RefreshNow runs one refresh cycle outside the tick schedule (manual
// trigger from the UI).
func (s *Scheduler) RefreshNow(ctx context.Context) []reconciler.FeedReport {
	feeds, err := s.store.ListFeeds(ctx)
	if err != nil {
		s.log.Error("list feeds", "error", err)
		return nil
	}
	return s.reconciler.Refresh(ctx, feeds)
}

func (s *Scheduler) runCycle(ctx context.Context) {
	reports := s.RefreshNow(ctx)

	var inserted, suppressed, failed int
	for _, r := range reports {
		inserted += r.Inserted
		suppressed += r.Suppressed
		if r.Err != nil {
			failed++
		}
	}
	if len(reports) > 0 {
		s.log.Info("refresh cycle", "feeds", len(reports),
			"inserted", inserted, "suppressed", suppressed, "failed", failed)
	}

	purged, err := s.store.PurgeExpired(ctx, time.Now().UTC(), s.retention)
	if err != nil {
		s.log.Error("purge expired", "error", err)
		return
	}
	if purged > 0 {
		s.log.Info("purged expired articles", "count", purged)
	}
}
