// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"errors"
	"time"

	"speedreader/internal/model"
)

// ErrNotFound is returned when an operation references an unknown
// fingerprint or feed URL. Callers treat it as "already deleted".
var ErrNotFound = errors.New("not found")

// UpsertResult reports what an article upsert did.
type UpsertResult int

// Upsert outcomes.
const (
	Inserted UpsertResult = iota
	Updated
	Suppressed
)

// String returns the lowercase name of the result.
func (r UpsertResult) String() string {
	switch r {
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	case Suppressed:
		return "suppressed"
	}
	return "unknown"
}

// Storage is the interface for all persistence operations.
//
// Mutations are atomic per fingerprint. The Set* job-result writes are
// conditional on the row being live: their bool result is false when
// the article was deleted (or purged) in the meantime, in which case
// nothing was written and the caller discards the result.
type Storage interface {
	UpsertFeed(ctx context.Context, feed *model.Feed) error
	GetFeed(ctx context.Context, url string) (*model.Feed, error)
	ListFeeds(ctx context.Context) ([]model.Feed, error)
	SetFeedFetched(ctx context.Context, url string, at time.Time, fetchErr error) error

	UpsertArticle(ctx context.Context, a *model.Article) (UpsertResult, error)
	GetArticle(ctx context.Context, fingerprint string) (*model.Article, error)
	ListArticles(ctx context.Context, filter model.Filter) ([]model.Article, error)

	SetRead(ctx context.Context, fingerprint string, read bool) error
	MarkReadIfLive(ctx context.Context, fingerprint string) (bool, error)
	ToggleStarred(ctx context.Context, fingerprint string) error
	SetLastViewed(ctx context.Context, fingerprint string, at time.Time) error
	SoftDelete(ctx context.Context, fingerprint string) error

	SetContent(ctx context.Context, fingerprint, html, text string) (bool, error)
	SetSummaryPending(ctx context.Context, fingerprint string) (bool, error)
	ClearSummaryPending(ctx context.Context, fingerprint string) (bool, error)
	SetSummary(ctx context.Context, fingerprint, text, modelVersion string) (bool, error)
	SetSummaryFailed(ctx context.Context, fingerprint string) (bool, error)
	SetBookmark(ctx context.Context, fingerprint string, bookmarkID int64, tags string) (bool, error)

	PurgeExpired(ctx context.Context, now time.Time, horizon time.Duration) (int, error)

	Close() error
}
