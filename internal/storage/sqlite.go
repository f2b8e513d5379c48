package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"speedreader/internal/model"
	"speedreader/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// SQLite implements Storage backed by a SQLite database.
//
// SQLite serializes writers, and every job-result write carries its
// liveness check in the same statement (WHERE deleted = 0), so a
// concurrent SoftDelete always wins regardless of ordering.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=OFF"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("disable foreign keys: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// UpsertFeed inserts a feed or refreshes its metadata, keyed by URL.
// Fetch bookkeeping (last_fetched_at, last_error) is left untouched.
func (s *SQLite) UpsertFeed(ctx context.Context, feed *model.Feed) error {
	now := time.Now().UTC().Format(timeLayout)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO feeds (url, title, site_url, description, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(url) DO UPDATE SET
		     title = excluded.title,
		     site_url = excluded.site_url,
		     description = excluded.description`,
		feed.URL, feed.Title, feed.SiteURL, feed.Description, now,
	)
	if err != nil {
		return fmt.Errorf("upsert feed: %w", err)
	}
	if feed.CreatedAt.IsZero() {
		feed.CreatedAt, _ = time.Parse(timeLayout, now)
	}
	return nil
}

// GetFeed returns a single feed by its URL.
func (s *SQLite) GetFeed(ctx context.Context, url string) (*model.Feed, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT url, title, site_url, description, last_fetched_at, last_error, created_at
		 FROM feeds WHERE url = ?`, url,
	)
	f, err := scanFeed(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("feed %s: %w", url, ErrNotFound)
	}
	return f, err
}

// ListFeeds returns all feeds ordered by title.
func (s *SQLite) ListFeeds(ctx context.Context) ([]model.Feed, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT url, title, site_url, description, last_fetched_at, last_error, created_at
		 FROM feeds ORDER BY title, url`,
	)
	if err != nil {
		return nil, fmt.Errorf("query feeds: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var feeds []model.Feed
	for rows.Next() {
		f, err := scanFeed(rows)
		if err != nil {
			return nil, err
		}
		feeds = append(feeds, *f)
	}
	return feeds, rows.Err()
}

// SetFeedFetched records the outcome of a fetch attempt. A nil fetchErr
// clears any previous error.
func (s *SQLite) SetFeedFetched(ctx context.Context, url string, at time.Time, fetchErr error) error {
	errText := ""
	if fetchErr != nil {
		errText = fetchErr.Error()
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE feeds SET last_fetched_at = ?, last_error = ? WHERE url = ?`,
		at.UTC().Format(timeLayout), errText, url,
	)
	if err != nil {
		return fmt.Errorf("set feed fetched: %w", err)
	}
	return nil
}

// UpsertArticle merges a reconciled candidate into the store. It is the
// single point enforcing the tombstone invariant: a fingerprint that
// exists with deleted = 1 is reported Suppressed and no field is
// written. An existing live row has its remote fields and last_seen_at
// refreshed; locally owned state (read, starred, summary, bookmark,
// full content) is never touched by an update.
func (s *SQLite) UpsertArticle(ctx context.Context, a *model.Article) (UpsertResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Suppressed, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(timeLayout)

	var deleted int
	err = tx.QueryRowContext(ctx,
		`SELECT deleted FROM articles WHERE fingerprint = ?`, a.Fingerprint,
	).Scan(&deleted)

	switch {
	case err == sql.ErrNoRows:
		_, err = tx.ExecContext(ctx,
			`INSERT INTO articles (fingerprint, feed_url, guid, title, link, author,
			     published_at, content_html, content_text, created_at, last_seen_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.Fingerprint, a.FeedURL, a.GUID, a.Title, a.Link, a.Author,
			timeText(a.Published), a.ContentHTML, a.ContentText, now, now,
		)
		if err != nil {
			return Suppressed, fmt.Errorf("insert article: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return Suppressed, fmt.Errorf("commit: %w", err)
		}
		return Inserted, nil

	case err != nil:
		return Suppressed, fmt.Errorf("check tombstone: %w", err)

	case deleted == 1:
		// Deleted articles stay deleted no matter what the remote says.
		return Suppressed, nil
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE articles SET title = ?, link = ?, author = ?, published_at = ?,
		     content_html = CASE WHEN ? != '' THEN ? ELSE content_html END,
		     content_text = CASE WHEN ? != '' THEN ? ELSE content_text END,
		     last_seen_at = ?
		 WHERE fingerprint = ?`,
		a.Title, a.Link, a.Author, timeText(a.Published),
		a.ContentHTML, a.ContentHTML,
		a.ContentText, a.ContentText,
		now, a.Fingerprint,
	)
	if err != nil {
		return Suppressed, fmt.Errorf("update article: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Suppressed, fmt.Errorf("commit: %w", err)
	}
	return Updated, nil
}

const articleColumns = `fingerprint, feed_url, guid, title, link, author, published_at,
	content_html, content_text, summary, summary_state, summary_model,
	bookmark_id, bookmark_tags, read, starred, deleted, last_viewed_at,
	created_at, last_seen_at`

// GetArticle returns a single article (tombstoned or not) by fingerprint.
func (s *SQLite) GetArticle(ctx context.Context, fingerprint string) (*model.Article, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+articleColumns+` FROM articles WHERE fingerprint = ?`, fingerprint,
	)
	a, err := scanArticle(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("article %s: %w", fingerprint, ErrNotFound)
	}
	return a, err
}

// ListArticles returns live articles matching the filter, newest first.
func (s *SQLite) ListArticles(ctx context.Context, filter model.Filter) ([]model.Article, error) {
	query := `SELECT ` + articleColumns + ` FROM articles WHERE deleted = 0`
	switch filter {
	case model.FilterUnread:
		query += ` AND read = 0`
	case model.FilterStarred:
		query += ` AND starred = 1`
	}
	query += ` ORDER BY published_at DESC NULLS LAST, last_seen_at DESC, fingerprint`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query articles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var articles []model.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		articles = append(articles, *a)
	}
	return articles, rows.Err()
}

// SetRead sets the read flag on a live article.
func (s *SQLite) SetRead(ctx context.Context, fingerprint string, read bool) error {
	return s.updateLive(ctx, "set read",
		`UPDATE articles SET read = ? WHERE fingerprint = ? AND deleted = 0`,
		boolToInt(read), fingerprint,
	)
}

// MarkReadIfLive transitions a live unread article to read. It reports
// whether the transition happened; a deleted, unknown, or already-read
// article is a no-op.
func (s *SQLite) MarkReadIfLive(ctx context.Context, fingerprint string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE articles SET read = 1 WHERE fingerprint = ? AND deleted = 0 AND read = 0`,
		fingerprint,
	)
	if err != nil {
		return false, fmt.Errorf("mark read if live: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// ToggleStarred flips the starred flag on a live article.
func (s *SQLite) ToggleStarred(ctx context.Context, fingerprint string) error {
	return s.updateLive(ctx, "toggle starred",
		`UPDATE articles SET starred = 1 - starred WHERE fingerprint = ? AND deleted = 0`,
		fingerprint,
	)
}

// SetLastViewed records when a live article entered view.
func (s *SQLite) SetLastViewed(ctx context.Context, fingerprint string, at time.Time) error {
	return s.updateLive(ctx, "set last viewed",
		`UPDATE articles SET last_viewed_at = ? WHERE fingerprint = ? AND deleted = 0`,
		at.UTC().Format(timeLayout), fingerprint,
	)
}

// SoftDelete tombstones an article and clears its job-visible fields.
// It is idempotent and succeeds even when the article is already
// deleted or does not exist.
func (s *SQLite) SoftDelete(ctx context.Context, fingerprint string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE articles SET deleted = 1,
		     content_html = '', content_text = '',
		     summary = '', summary_state = 'absent', summary_model = '',
		     bookmark_id = 0, bookmark_tags = ''
		 WHERE fingerprint = ?`,
		fingerprint,
	)
	if err != nil {
		return fmt.Errorf("soft delete: %w", err)
	}
	return nil
}

// SetContent stores extracted article content on a live row.
func (s *SQLite) SetContent(ctx context.Context, fingerprint, html, text string) (bool, error) {
	return s.updateIfLive(ctx, "set content",
		`UPDATE articles SET content_html = ?, content_text = ? WHERE fingerprint = ? AND deleted = 0`,
		html, text, fingerprint,
	)
}

// SetSummaryPending marks a live article's summary as being generated.
func (s *SQLite) SetSummaryPending(ctx context.Context, fingerprint string) (bool, error) {
	return s.updateIfLive(ctx, "set summary pending",
		`UPDATE articles SET summary_state = 'pending' WHERE fingerprint = ? AND deleted = 0`,
		fingerprint,
	)
}

// ClearSummaryPending resets a live article's summary state back to
// absent, but only if it is still pending. A summary that became ready
// or failed in the meantime is left alone.
func (s *SQLite) ClearSummaryPending(ctx context.Context, fingerprint string) (bool, error) {
	return s.updateIfLive(ctx, "clear summary pending",
		`UPDATE articles SET summary_state = 'absent'
		 WHERE fingerprint = ? AND deleted = 0 AND summary_state = 'pending'`,
		fingerprint,
	)
}

// SetSummary stores a generated summary on a live row.
func (s *SQLite) SetSummary(ctx context.Context, fingerprint, text, modelVersion string) (bool, error) {
	return s.updateIfLive(ctx, "set summary",
		`UPDATE articles SET summary = ?, summary_state = 'ready', summary_model = ?
		 WHERE fingerprint = ? AND deleted = 0`,
		text, modelVersion, fingerprint,
	)
}

// SetSummaryFailed marks a live article's summary generation as failed.
func (s *SQLite) SetSummaryFailed(ctx context.Context, fingerprint string) (bool, error) {
	return s.updateIfLive(ctx, "set summary failed",
		`UPDATE articles SET summary_state = 'failed' WHERE fingerprint = ? AND deleted = 0`,
		fingerprint,
	)
}

// SetBookmark stores the external bookmark identifier on a live row.
func (s *SQLite) SetBookmark(ctx context.Context, fingerprint string, bookmarkID int64, tags string) (bool, error) {
	return s.updateIfLive(ctx, "set bookmark",
		`UPDATE articles SET bookmark_id = ?, bookmark_tags = ? WHERE fingerprint = ? AND deleted = 0`,
		bookmarkID, tags, fingerprint,
	)
}

// PurgeExpired physically removes articles not seen (and not published)
// within the retention horizon. Starred articles are exempt; tombstones
// age out like everything else.
func (s *SQLite) PurgeExpired(ctx context.Context, now time.Time, horizon time.Duration) (int, error) {
	cutoff := now.Add(-horizon).UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM articles
		 WHERE starred = 0
		   AND max(coalesce(published_at, last_seen_at), last_seen_at) < ?`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("purge expired: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

// updateLive runs a live-row update and maps zero affected rows to
// ErrNotFound (the article is deleted or was never there).
func (s *SQLite) updateLive(ctx context.Context, op, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}

// updateIfLive runs a conditional job-result write. Zero affected rows
// means the article was deleted or purged: the result is reported as
// not-live so the caller can discard it.
func (s *SQLite) updateIfLive(ctx context.Context, op, query string, args ...any) (bool, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: rows affected: %w", op, err)
	}
	return n > 0, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func timeText(t *time.Time) *string {
	if t == nil {
		return nil
	}
	v := t.UTC().Format(timeLayout)
	return &v
}

type scannable interface {
	Scan(dest ...any) error
}

func scanFeed(row scannable) (*model.Feed, error) {
	var f model.Feed
	var lastFetched, created sql.NullString
	err := row.Scan(&f.URL, &f.Title, &f.SiteURL, &f.Description, &lastFetched, &f.LastError, &created)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan feed: %w", err)
	}
	if lastFetched.Valid {
		t, _ := time.Parse(timeLayout, lastFetched.String)
		f.LastFetchedAt = &t
	}
	if created.Valid {
		f.CreatedAt, _ = time.Parse(timeLayout, created.String)
	}
	return &f, nil
}

func scanArticle(row scannable) (*model.Article, error) {
	var a model.Article
	var read, starred, deleted int
	var summaryState string
	var published, lastViewed, created, lastSeen sql.NullString
	err := row.Scan(
		&a.Fingerprint, &a.FeedURL, &a.GUID, &a.Title, &a.Link, &a.Author, &published,
		&a.ContentHTML, &a.ContentText, &a.Summary, &summaryState, &a.SummaryModel,
		&a.BookmarkID, &a.BookmarkTags, &read, &starred, &deleted, &lastViewed,
		&created, &lastSeen,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan article: %w", err)
	}
	a.SummaryState = model.SummaryState(summaryState)
	a.Read = read == 1
	a.Starred = starred == 1
	a.Deleted = deleted == 1
	if published.Valid {
		t, _ := time.Parse(timeLayout, published.String)
		a.Published = &t
	}
	if lastViewed.Valid {
		t, _ := time.Parse(timeLayout, lastViewed.String)
		a.LastViewedAt = &t
	}
	if created.Valid {
		a.CreatedAt, _ = time.Parse(timeLayout, created.String)
	}
	if lastSeen.Valid {
		a.LastSeenAt, _ = time.Parse(timeLayout, lastSeen.String)
	}
	return &a, nil
}
