package reconciler

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"speedreader/internal/fetcher"
	"speedreader/internal/model"
	"speedreader/internal/storage"
)

type stubFetcher struct {
	mu      sync.Mutex
	results map[string]*fetcher.Result
	errs    map[string]error
	calls   []string
}

func (s *stubFetcher) Fetch(_ context.Context, feedURL string) (*fetcher.Result, error) {
	s.mu.Lock()
	s.calls = append(s.calls, feedURL)
	s.mu.Unlock()
	if err, ok := s.errs[feedURL]; ok {
		return nil, err
	}
	return s.results[feedURL], nil
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

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func addFeed(t *testing.T, store storage.Storage, url string) model.Feed {
	t.Helper()
	feed := model.Feed{URL: url, Title: "Feed"}
	if err := store.UpsertFeed(context.Background(), &feed); err != nil {
		t.Fatalf("upsert feed: %v", err)
	}
	return feed
}

func TestRefreshInsertsAndCounts(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	feed := addFeed(t, store, "https://a.example.com/rss")

	stub := &stubFetcher{results: map[string]*fetcher.Result{
		"https://a.example.com/rss": {
			Title: "Feed A",
			Candidates: []model.Candidate{
				{GUID: "one", Title: "One", Link: "https://a/1"},
				{GUID: "two", Title: "Two", Link: "https://a/2"},
			},
		},
	}}

	r := New(store, stub, discardLogger())
	reports := r.Refresh(ctx, []model.Feed{feed})

	want := []FeedReport{{FeedURL: feed.URL, Inserted: 2}}
	if diff := cmp.Diff(want, reports, cmpopts.IgnoreFields(FeedReport{}, "Err")); diff != "" {
		t.Errorf("reports mismatch (-want +got):\n%s", diff)
	}

	articles, err := store.ListArticles(ctx, model.FilterAll)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(articles) != 2 {
		t.Fatalf("expected 2 articles, got %d", len(articles))
	}

	// Second refresh of the same content updates, nothing new.
	reports = r.Refresh(ctx, []model.Feed{feed})
	if reports[0].Inserted != 0 || reports[0].Updated != 2 {
		t.Errorf("second refresh: %+v", reports[0])
	}

	// Feed title picked up from the fetch result.
	got, err := store.GetFeed(ctx, feed.URL)
	if err != nil {
		t.Fatalf("get feed: %v", err)
	}
	if got.Title != "Feed A" {
		t.Errorf("feed title = %q", got.Title)
	}
	if got.LastFetchedAt == nil {
		t.Error("last fetch time not recorded")
	}
}

func TestRefreshSuppressesTombstoned(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	feed := addFeed(t, store, "https://a.example.com/rss")

	stub := &stubFetcher{results: map[string]*fetcher.Result{
		feed.URL: {Candidates: []model.Candidate{
			{GUID: "one", Title: "One", Link: "https://a/1"},
		}},
	}}
	r := New(store, stub, discardLogger())

	reports := r.Refresh(ctx, []model.Feed{feed})
	if reports[0].Inserted != 1 {
		t.Fatalf("first refresh: %+v", reports[0])
	}

	// User deletes the article; the next refresh re-discovers it.
	articles, _ := store.ListArticles(ctx, model.FilterAll)
	if err := store.SoftDelete(ctx, articles[0].Fingerprint); err != nil {
		t.Fatalf("delete: %v", err)
	}

	reports = r.Refresh(ctx, []model.Feed{feed})
	want := FeedReport{FeedURL: feed.URL, Suppressed: 1}
	if diff := cmp.Diff(want, reports[0]); diff != "" {
		t.Errorf("report mismatch (-want +got):\n%s", diff)
	}

	// Still invisible.
	articles, _ = store.ListArticles(ctx, model.FilterAll)
	if len(articles) != 0 {
		t.Errorf("tombstoned article resurfaced: %d", len(articles))
	}
}

func TestRefreshFeedFailureIsIsolated(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	bad := addFeed(t, store, "https://bad.example.com/rss")
	good := addFeed(t, store, "https://good.example.com/rss")

	stub := &stubFetcher{
		errs: map[string]error{
			bad.URL: &fetcher.FetchError{Kind: fetcher.KindNetwork, URL: bad.URL, Err: io.ErrUnexpectedEOF},
		},
		results: map[string]*fetcher.Result{
			good.URL: {Candidates: []model.Candidate{
				{GUID: "one", Title: "One", Link: "https://g/1"},
			}},
		},
	}
	r := New(store, stub, discardLogger())

	reports := r.Refresh(ctx, []model.Feed{bad, good})

	if reports[0].Err == nil {
		t.Error("expected error report for the failing feed")
	}
	if reports[1].Err != nil || reports[1].Inserted != 1 {
		t.Errorf("good feed affected by bad feed: %+v", reports[1])
	}

	// The failure is recorded on the feed without touching articles.
	gotBad, err := store.GetFeed(ctx, bad.URL)
	if err != nil {
		t.Fatalf("get feed: %v", err)
	}
	if gotBad.LastError == "" {
		t.Error("expected fetch error recorded on feed")
	}
	gotGood, _ := store.GetFeed(ctx, good.URL)
	if gotGood.LastError != "" {
		t.Errorf("unexpected error on good feed: %q", gotGood.LastError)
	}
}

func TestRefreshCustomFingerprint(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	feed := addFeed(t, store, "https://a.example.com/rss")

	stub := &stubFetcher{results: map[string]*fetcher.Result{
		feed.URL: {Candidates: []model.Candidate{{GUID: "one", Title: "One"}}},
	}}
	r := New(store, stub, discardLogger())
	r.SetFingerprint(func(feedURL string, c model.Candidate) string {
		return "custom:" + feedURL + ":" + c.GUID
	})

	r.Refresh(ctx, []model.Feed{feed})

	if _, err := store.GetArticle(ctx, "custom:"+feed.URL+":one"); err != nil {
		t.Fatalf("custom fingerprint not applied: %v", err)
	}
}
