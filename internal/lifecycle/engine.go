// Package lifecycle owns article state transitions and the auto-read timer.
package lifecycle

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"speedreader/internal/storage"
)

// DefaultDwell is how long an article must stay in view before it is
// auto-marked read.
const DefaultDwell = 2 * time.Second

// JobCanceller lets the engine cancel background work for a deleted
// article.
type JobCanceller interface {
	CancelAll(fingerprint string)
}

// Engine applies user-driven state transitions and arms per-article
// dwell timers. Deleted is absorbing: no transition leaves it, and the
// store enforces that at the row level.
type Engine struct {
	store storage.Storage
	jobs  JobCanceller
	dwell time.Duration
	log   *slog.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
}

// New creates an Engine with the default dwell duration.
func New(store storage.Storage, jobs JobCanceller, log *slog.Logger) *Engine {
	return &Engine{
		store:  store,
		jobs:   jobs,
		dwell:  DefaultDwell,
		log:    log,
		timers: make(map[string]*time.Timer),
	}
}

// SetDwell overrides the auto-read dwell duration.
func (e *Engine) SetDwell(d time.Duration) {
	e.dwell = d
}

// MarkRead marks a live article read.
func (e *Engine) MarkRead(ctx context.Context, fingerprint string) error {
	return e.store.SetRead(ctx, fingerprint, true)
}

// MarkUnread marks a live article unread.
func (e *Engine) MarkUnread(ctx context.Context, fingerprint string) error {
	return e.store.SetRead(ctx, fingerprint, false)
}

// ToggleStarred flips the starred flag on a live article.
func (e *Engine) ToggleStarred(ctx context.Context, fingerprint string) error {
	return e.store.ToggleStarred(ctx, fingerprint)
}

// Delete tombstones the article, cancels its background jobs, and
// disarms any pending auto-read timer. Idempotent.
func (e *Engine) Delete(ctx context.Context, fingerprint string) error {
	e.disarm(fingerprint)
	if err := e.store.SoftDelete(ctx, fingerprint); err != nil {
		return err
	}
	if e.jobs != nil {
		e.jobs.CancelAll(fingerprint)
	}
	return nil
}

// ViewEnter starts the dwell timer for an article entering view.
// Re-entering resets the timer. When the full dwell elapses without a
// ViewExit, the article transitions to read exactly once; the firing is
// a no-op if the article was deleted or already read by then.
func (e *Engine) ViewEnter(ctx context.Context, fingerprint string) {
	if err := e.store.SetLastViewed(ctx, fingerprint, time.Now()); err != nil {
		// Deleted or unknown articles don't get a timer.
		e.log.Debug("view enter", "fingerprint", fingerprint, "error", err)
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	if t, ok := e.timers[fingerprint]; ok {
		t.Stop()
	}
	e.timers[fingerprint] = time.AfterFunc(e.dwell, func() {
		e.fire(fingerprint)
	})
}

// ViewExit disarms the dwell timer when the article leaves view before
// the dwell elapses.
func (e *Engine) ViewExit(fingerprint string) {
	e.disarm(fingerprint)
}

// Close disarms all pending timers.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	for fp, t := range e.timers {
		t.Stop()
		delete(e.timers, fp)
	}
}

func (e *Engine) fire(fingerprint string) {
	e.mu.Lock()
	delete(e.timers, fingerprint)
	e.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	marked, err := e.store.MarkReadIfLive(ctx, fingerprint)
	if err != nil {
		e.log.Error("auto mark read", "fingerprint", fingerprint, "error", err)
		return
	}
	if marked {
		e.log.Debug("auto marked read", "fingerprint", fingerprint)
	}
}

func (e *Engine) disarm(fingerprint string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if t, ok := e.timers[fingerprint]; ok {
		t.Stop()
		delete(e.timers, fingerprint)
	}
}
