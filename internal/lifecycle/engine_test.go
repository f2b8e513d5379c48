package lifecycle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"speedreader/internal/model"
	"speedreader/internal/storage"
)

type recordingCanceller struct {
	mu        sync.Mutex
	cancelled []string
}

func (r *recordingCanceller) CancelAll(fingerprint string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelled = append(r.cancelled, fingerprint)
}

func (r *recordingCanceller) got() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make([]string, len(r.cancelled))
	copy(cp, r.cancelled)
	return cp
}

func newTestStore(t *testing.T) *storage.SQLite {
	t.Helper()
	s, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedArticle(t *testing.T, s *storage.SQLite, fp string) {
	t.Helper()
	_, err := s.UpsertArticle(context.Background(), &model.Article{
		Fingerprint: fp,
		FeedURL:     "https://example.com/rss",
		Title:       fp,
	})
	if err != nil {
		t.Fatalf("seed article: %v", err)
	}
}

func newTestEngine(t *testing.T, store *storage.SQLite, dwell time.Duration) (*Engine, *recordingCanceller) {
	t.Helper()
	canceller := &recordingCanceller{}
	e := New(store, canceller, slog.New(slog.NewTextHandler(io.Discard, nil)))
	e.SetDwell(dwell)
	t.Cleanup(e.Close)
	return e, canceller
}

// waitForRead polls until the article is read or the deadline passes.
func waitForRead(t *testing.T, s *storage.SQLite, fp string, timeout time.Duration) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		a, err := s.GetArticle(context.Background(), fp)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if a.Read {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func TestAutoReadAfterDwell(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedArticle(t, store, "f1")
	e, _ := newTestEngine(t, store, 20*time.Millisecond)

	e.ViewEnter(ctx, "f1")

	if !waitForRead(t, store, "f1", time.Second) {
		t.Fatal("article not auto-marked read after dwell")
	}

	a, _ := store.GetArticle(ctx, "f1")
	if a.LastViewedAt == nil {
		t.Error("view enter did not record last viewed time")
	}
}

func TestNoAutoReadWhenNavigatedAway(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedArticle(t, store, "f1")
	e, _ := newTestEngine(t, store, 50*time.Millisecond)

	e.ViewEnter(ctx, "f1")
	time.Sleep(10 * time.Millisecond)
	e.ViewExit("f1")

	time.Sleep(100 * time.Millisecond)
	a, _ := store.GetArticle(ctx, "f1")
	if a.Read {
		t.Fatal("article marked read despite leaving view before the dwell")
	}
}

func TestAutoReadAfterDeleteIsNoOp(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedArticle(t, store, "f1")
	e, _ := newTestEngine(t, store, 20*time.Millisecond)

	e.ViewEnter(ctx, "f1")

	// Delete through the store directly so the engine's own timer stays
	// armed: the firing itself must be a no-op on a deleted article.
	if err := store.SoftDelete(ctx, "f1"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	a, _ := store.GetArticle(ctx, "f1")
	if a.Read {
		t.Fatal("deleted article transitioned to read")
	}
	if !a.Deleted {
		t.Fatal("article lost its tombstone")
	}
}

func TestViewEnterResetsTimer(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedArticle(t, store, "f1")
	e, _ := newTestEngine(t, store, 60*time.Millisecond)

	e.ViewEnter(ctx, "f1")
	time.Sleep(40 * time.Millisecond)
	e.ViewEnter(ctx, "f1") // reset before the first dwell elapses
	time.Sleep(40 * time.Millisecond)

	a, _ := store.GetArticle(ctx, "f1")
	if a.Read {
		t.Fatal("timer not reset by re-entering view")
	}

	if !waitForRead(t, store, "f1", time.Second) {
		t.Fatal("article not read after the reset dwell elapsed")
	}
}

func TestDeleteCancelsJobsAndTimer(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedArticle(t, store, "f1")
	e, canceller := newTestEngine(t, store, 20*time.Millisecond)

	e.ViewEnter(ctx, "f1")
	if err := e.Delete(ctx, "f1"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	got := canceller.got()
	if len(got) != 1 || got[0] != "f1" {
		t.Errorf("job cancellation = %v, want [f1]", got)
	}

	time.Sleep(100 * time.Millisecond)
	a, _ := store.GetArticle(ctx, "f1")
	if !a.Deleted || a.Read {
		t.Errorf("unexpected state after delete: %+v", a)
	}

	// Idempotent.
	if err := e.Delete(ctx, "f1"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
}

func TestExplicitTransitions(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedArticle(t, store, "f1")
	e, _ := newTestEngine(t, store, time.Second)

	if err := e.MarkRead(ctx, "f1"); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	a, _ := store.GetArticle(ctx, "f1")
	if !a.Read {
		t.Fatal("not read")
	}

	if err := e.MarkUnread(ctx, "f1"); err != nil {
		t.Fatalf("mark unread: %v", err)
	}
	a, _ = store.GetArticle(ctx, "f1")
	if a.Read {
		t.Fatal("still read")
	}

	if err := e.ToggleStarred(ctx, "f1"); err != nil {
		t.Fatalf("star: %v", err)
	}
	a, _ = store.GetArticle(ctx, "f1")
	if !a.Starred {
		t.Fatal("not starred")
	}

	// Transitions on a deleted article surface NotFound.
	if err := e.Delete(ctx, "f1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := e.MarkRead(ctx, "f1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("mark read on deleted: %v", err)
	}
	if err := e.ToggleStarred(ctx, "f1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("star on deleted: %v", err)
	}
}
