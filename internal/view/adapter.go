// Package view exposes a read-only listing and a command surface to
// the external UI layer.
package view

import (
	"context"

	"speedreader/internal/jobs"
	"speedreader/internal/lifecycle"
	"speedreader/internal/model"
	"speedreader/internal/storage"
)

// FeedDiscoverer resolves a user-supplied URL into a feed subscription.
type FeedDiscoverer interface {
	Discover(ctx context.Context, pageURL string) (*model.Feed, error)
}

// Adapter is the only thing the UI talks to. Reads come straight from
// the store's live-article listing; writes are forwarded to the
// lifecycle engine and job coordinator, never applied directly.
type Adapter struct {
	store    storage.Storage
	engine   *lifecycle.Engine
	jobs     *jobs.Coordinator
	discover FeedDiscoverer
}

// New creates an Adapter.
func New(store storage.Storage, engine *lifecycle.Engine, coordinator *jobs.Coordinator, discoverer FeedDiscoverer) *Adapter {
	return &Adapter{store: store, engine: engine, jobs: coordinator, discover: discoverer}
}

// List returns live articles matching the filter, newest first.
func (a *Adapter) List(ctx context.Context, filter model.Filter) ([]model.Article, error) {
	return a.store.ListArticles(ctx, filter)
}

// Get returns one article by fingerprint.
func (a *Adapter) Get(ctx context.Context, fingerprint string) (*model.Article, error) {
	return a.store.GetArticle(ctx, fingerprint)
}

// Feeds returns all subscribed feeds.
func (a *Adapter) Feeds(ctx context.Context) ([]model.Feed, error) {
	return a.store.ListFeeds(ctx)
}

// AddFeed subscribes to the feed at url. A page URL is resolved to its
// advertised feed link first; the returned feed is what was stored.
func (a *Adapter) AddFeed(ctx context.Context, url string) (*model.Feed, error) {
	feed, err := a.discover.Discover(ctx, url)
	if err != nil {
		return nil, err
	}
	if err := a.store.UpsertFeed(ctx, feed); err != nil {
		return nil, err
	}
	return feed, nil
}

// MarkRead marks an article read.
func (a *Adapter) MarkRead(ctx context.Context, fingerprint string) error {
	return a.engine.MarkRead(ctx, fingerprint)
}

// MarkUnread marks an article unread.
func (a *Adapter) MarkUnread(ctx context.Context, fingerprint string) error {
	return a.engine.MarkUnread(ctx, fingerprint)
}

// ToggleStarred flips an article's starred flag.
func (a *Adapter) ToggleStarred(ctx context.Context, fingerprint string) error {
	return a.engine.ToggleStarred(ctx, fingerprint)
}

// Delete tombstones an article and cancels its background jobs.
func (a *Adapter) Delete(ctx context.Context, fingerprint string) error {
	return a.engine.Delete(ctx, fingerprint)
}

// ViewEnter reports that an article came into view, arming the
// auto-read dwell timer.
func (a *Adapter) ViewEnter(ctx context.Context, fingerprint string) {
	a.engine.ViewEnter(ctx, fingerprint)
}

// ViewExit reports that an article left view before the dwell elapsed.
func (a *Adapter) ViewExit(fingerprint string) {
	a.engine.ViewExit(fingerprint)
}

// FetchContent starts a background full-content fetch.
func (a *Adapter) FetchContent(ctx context.Context, fingerprint string) error {
	return a.jobs.Start(ctx, fingerprint, model.JobContentFetch)
}

// Summarize starts a background summarization. Regenerating after a
// failure is the same call again.
func (a *Adapter) Summarize(ctx context.Context, fingerprint string) error {
	return a.jobs.Start(ctx, fingerprint, model.JobSummarize)
}

// Bookmark starts a background bookmark save.
func (a *Adapter) Bookmark(ctx context.Context, fingerprint string) error {
	return a.jobs.Start(ctx, fingerprint, model.JobBookmark)
}
