// Package reconciler merges fetched feed entries into the store.
package reconciler

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"speedreader/internal/fetcher"
	"speedreader/internal/fingerprint"
	"speedreader/internal/model"
	"speedreader/internal/storage"
)

// maxConcurrentFetches bounds how many feeds refresh in parallel.
const maxConcurrentFetches = 5

// FeedFetcher is the boundary to feed retrieval and parsing.
type FeedFetcher interface {
	Fetch(ctx context.Context, feedURL string) (*fetcher.Result, error)
}

// FeedReport summarizes one feed's reconciliation outcome.
type FeedReport struct {
	FeedURL    string
	Inserted   int
	Updated    int
	Suppressed int
	Err        error
}

// Reconciler applies refresh cycles to the store. One feed's failure
// never aborts the rest of the batch.
type Reconciler struct {
	store       storage.Storage
	fetcher     FeedFetcher
	fingerprint fingerprint.Func
	log         *slog.Logger
}

// New creates a Reconciler using the default fingerprint function.
func New(store storage.Storage, fetcher FeedFetcher, log *slog.Logger) *Reconciler {
	return &Reconciler{
		store:       store,
		fetcher:     fetcher,
		fingerprint: fingerprint.Default,
		log:         log,
	}
}

// SetFingerprint replaces the identity function. Intended for sources
// whose GUID-less items need a different stability strategy.
func (r *Reconciler) SetFingerprint(fn fingerprint.Func) {
	r.fingerprint = fn
}

// Refresh fetches every given feed and reconciles its candidates,
// bounded to a few feeds at a time. Reports come back in feed order.
func (r *Reconciler) Refresh(ctx context.Context, feeds []model.Feed) []FeedReport {
	reports := make([]FeedReport, len(feeds))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFetches)
	for i, feed := range feeds {
		g.Go(func() error {
			reports[i] = r.refreshFeed(ctx, feed)
			return nil
		})
	}
	_ = g.Wait()

	return reports
}

func (r *Reconciler) refreshFeed(ctx context.Context, feed model.Feed) FeedReport {
	report := FeedReport{FeedURL: feed.URL}
	now := time.Now().UTC()

	result, err := r.fetcher.Fetch(ctx, feed.URL)
	if err != nil {
		r.log.Warn("fetch feed", "feed_url", feed.URL, "error", err)
		report.Err = err
		if storeErr := r.store.SetFeedFetched(ctx, feed.URL, now, err); storeErr != nil {
			r.log.Error("record fetch error", "feed_url", feed.URL, "error", storeErr)
		}
		return report
	}

	for _, c := range result.Candidates {
		article := &model.Article{
			Fingerprint: r.fingerprint(feed.URL, c),
			FeedURL:     feed.URL,
			GUID:        c.GUID,
			Title:       c.Title,
			Link:        c.Link,
			Author:      c.Author,
			Published:   c.Published,
			ContentHTML: c.ContentHTML,
			ContentText: c.ContentText,
		}
		res, err := r.store.UpsertArticle(ctx, article)
		if err != nil {
			r.log.Error("upsert article", "feed_url", feed.URL, "link", c.Link, "error", err)
			if report.Err == nil {
				report.Err = err
			}
			continue
		}
		switch res {
		case storage.Inserted:
			report.Inserted++
		case storage.Updated:
			report.Updated++
		case storage.Suppressed:
			report.Suppressed++
		}
	}

	if result.Title != "" && result.Title != feed.Title {
		feed.Title = result.Title
		if err := r.store.UpsertFeed(ctx, &feed); err != nil {
			r.log.Error("update feed title", "feed_url", feed.URL, "error", err)
		}
	}
	if err := r.store.SetFeedFetched(ctx, feed.URL, now, nil); err != nil {
		r.log.Error("record fetch time", "feed_url", feed.URL, "error", err)
	}

	r.log.Debug("reconciled feed", "feed_url", feed.URL,
		"inserted", report.Inserted, "updated", report.Updated, "suppressed", report.Suppressed)
	return report
}
