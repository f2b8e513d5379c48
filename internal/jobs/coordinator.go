// Package jobs coordinates cancellable background work per article.
package jobs

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"speedreader/internal/model"
	"speedreader/internal/storage"
)

// Start outcomes.
var (
	// ErrAlreadyRunning means a live job of this kind already exists
	// for the article.
	ErrAlreadyRunning = errors.New("job already running")
	// ErrArticleDeleted means the article is tombstoned or unknown;
	// no job is started.
	ErrArticleDeleted = errors.New("article deleted")
	// ErrNotConfigured means the collaborator for this job kind was
	// not set up (e.g. missing API credentials).
	ErrNotConfigured = errors.New("collaborator not configured")
)

// ContentFetcher retrieves and extracts an article's full text.
type ContentFetcher interface {
	FetchContent(ctx context.Context, link string) (html, text string, err error)
}

// Summarizer produces a short synopsis of article text.
type Summarizer interface {
	Summarize(ctx context.Context, title, content string) (text, modelVersion string, err error)
}

// Bookmarker saves an article to an external bookmarking service and
// returns the external identifier.
type Bookmarker interface {
	SaveBookmark(ctx context.Context, link, title, note, tags string) (int64, error)
}

type jobKey struct {
	fingerprint string
	kind        model.JobKind
}

type job struct {
	cancel    context.CancelFunc
	startedAt time.Time
}

// Coordinator runs at most one live job per (article, kind). Job
// records are in-memory only; a completed job's result is persisted
// through the store's conditional writes, so a result arriving after
// the article was deleted is discarded rather than resurrecting state.
type Coordinator struct {
	store      storage.Storage
	content    ContentFetcher
	summarizer Summarizer
	bookmarker Bookmarker
	log        *slog.Logger

	mu   sync.Mutex
	jobs map[jobKey]*job
	wg   sync.WaitGroup
}

// New creates a Coordinator. Nil collaborators disable the
// corresponding job kind.
func New(store storage.Storage, content ContentFetcher, summarizer Summarizer, bookmarker Bookmarker, log *slog.Logger) *Coordinator {
	return &Coordinator{
		store:      store,
		content:    content,
		summarizer: summarizer,
		bookmarker: bookmarker,
		log:        log,
		jobs:       make(map[jobKey]*job),
	}
}

// Start launches a background job for the article. It returns
// ErrAlreadyRunning when a live job of the same kind exists,
// ErrArticleDeleted when the article is tombstoned or unknown, and
// ErrNotConfigured when the needed collaborator is absent.
func (c *Coordinator) Start(ctx context.Context, fingerprint string, kind model.JobKind) error {
	if err := c.collaboratorFor(kind); err != nil {
		return err
	}

	article, err := c.store.GetArticle(ctx, fingerprint)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrArticleDeleted
		}
		return err
	}
	if article.Deleted {
		return ErrArticleDeleted
	}

	key := jobKey{fingerprint: fingerprint, kind: kind}

	c.mu.Lock()
	if _, ok := c.jobs[key]; ok {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	// The job outlives the caller's request; only Cancel stops it.
	jobCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.jobs[key] = &job{cancel: cancel, startedAt: time.Now()}
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		defer cancel()
		defer c.remove(key)
		c.run(jobCtx, article, kind)
	}()

	return nil
}

// Cancel requests cooperative cancellation of one job. The job observes
// it at its next collaborator call; a result already in flight is
// discarded by the store's delete-wins check instead.
func (c *Coordinator) Cancel(fingerprint string, kind model.JobKind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if j, ok := c.jobs[jobKey{fingerprint: fingerprint, kind: kind}]; ok {
		j.cancel()
	}
}

// CancelAll cancels every live job for the article.
func (c *Coordinator) CancelAll(fingerprint string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, j := range c.jobs {
		if key.fingerprint == fingerprint {
			j.cancel()
		}
	}
}

// Running reports whether a live job of the given kind exists.
func (c *Coordinator) Running(fingerprint string, kind model.JobKind) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.jobs[jobKey{fingerprint: fingerprint, kind: kind}]
	return ok
}

// Wait blocks until all live jobs have finished. Used on shutdown.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

func (c *Coordinator) collaboratorFor(kind model.JobKind) error {
	switch kind {
	case model.JobContentFetch:
		if c.content == nil {
			return ErrNotConfigured
		}
	case model.JobSummarize:
		if c.summarizer == nil {
			return ErrNotConfigured
		}
	case model.JobBookmark:
		if c.bookmarker == nil {
			return ErrNotConfigured
		}
	}
	return nil
}

func (c *Coordinator) remove(key jobKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.jobs, key)
}

func (c *Coordinator) run(ctx context.Context, article *model.Article, kind model.JobKind) {
	switch kind {
	case model.JobContentFetch:
		c.runContentFetch(ctx, article)
	case model.JobSummarize:
		c.runSummarize(ctx, article)
	case model.JobBookmark:
		c.runBookmark(ctx, article)
	}
}

func (c *Coordinator) runContentFetch(ctx context.Context, article *model.Article) {
	html, text, err := c.content.FetchContent(ctx, article.Link)
	if err != nil {
		if ctx.Err() != nil {
			c.log.Info("content fetch cancelled", "fingerprint", article.Fingerprint)
			return
		}
		c.log.Warn("content fetch failed", "fingerprint", article.Fingerprint, "link", article.Link, "error", err)
		return
	}

	live, err := c.store.SetContent(ctx, article.Fingerprint, html, text)
	if err != nil {
		c.log.Error("store content", "fingerprint", article.Fingerprint, "error", err)
		return
	}
	if !live {
		c.log.Info("discarding content for deleted article", "fingerprint", article.Fingerprint)
	}
}

func (c *Coordinator) runSummarize(ctx context.Context, article *model.Article) {
	live, err := c.store.SetSummaryPending(ctx, article.Fingerprint)
	if err != nil {
		c.log.Error("mark summary pending", "fingerprint", article.Fingerprint, "error", err)
		return
	}
	if !live {
		c.log.Info("discarding summary for deleted article", "fingerprint", article.Fingerprint)
		return
	}

	text := article.ContentText
	if text == "" {
		text = article.ContentHTML
	}
	// Fall back to a full content fetch when the feed entry had no body.
	if text == "" && c.content != nil {
		html, fetched, err := c.content.FetchContent(ctx, article.Link)
		if err == nil && fetched != "" {
			text = fetched
			if live, err := c.store.SetContent(ctx, article.Fingerprint, html, fetched); err != nil || !live {
				c.discardOrLog(live, err, "content", article.Fingerprint)
				c.clearPending(article.Fingerprint)
				return
			}
		}
	}

	summary, modelVersion, err := c.summarizer.Summarize(ctx, article.Title, text)
	if err != nil {
		if ctx.Err() != nil {
			c.log.Info("summarize cancelled", "fingerprint", article.Fingerprint)
			c.clearPending(article.Fingerprint)
			return
		}
		c.log.Warn("summarize failed", "fingerprint", article.Fingerprint, "error", err)
		if _, err := c.store.SetSummaryFailed(ctx, article.Fingerprint); err != nil {
			c.log.Error("mark summary failed", "fingerprint", article.Fingerprint, "error", err)
		}
		return
	}

	live, err = c.store.SetSummary(ctx, article.Fingerprint, summary, modelVersion)
	if err != nil {
		c.log.Error("store summary", "fingerprint", article.Fingerprint, "error", err)
		c.clearPending(article.Fingerprint)
		return
	}
	if !live {
		c.log.Info("discarding summary for deleted article", "fingerprint", article.Fingerprint)
	}
}

// clearPending resets a pending summary state when the job exits
// without a final result, so the article is not stuck in pending with
// no job behind it. Uses its own context because the job's may already
// be cancelled.
func (c *Coordinator) clearPending(fingerprint string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := c.store.ClearSummaryPending(ctx, fingerprint); err != nil {
		c.log.Error("clear summary pending", "fingerprint", fingerprint, "error", err)
	}
}

func (c *Coordinator) runBookmark(ctx context.Context, article *model.Article) {
	if article.BookmarkID != 0 {
		c.log.Debug("already bookmarked", "fingerprint", article.Fingerprint, "bookmark_id", article.BookmarkID)
		return
	}

	note := article.Summary
	if note == "" {
		note = firstSentence(article.ContentText)
	}

	id, err := c.bookmarker.SaveBookmark(ctx, article.Link, article.Title, note, article.BookmarkTags)
	if err != nil {
		if ctx.Err() != nil {
			c.log.Info("bookmark cancelled", "fingerprint", article.Fingerprint)
			return
		}
		c.log.Warn("bookmark failed", "fingerprint", article.Fingerprint, "link", article.Link, "error", err)
		return
	}

	live, err := c.store.SetBookmark(ctx, article.Fingerprint, id, article.BookmarkTags)
	if err != nil {
		c.log.Error("store bookmark", "fingerprint", article.Fingerprint, "error", err)
		return
	}
	if !live {
		c.log.Info("discarding bookmark for deleted article", "fingerprint", article.Fingerprint)
	}
}

func (c *Coordinator) discardOrLog(live bool, err error, what, fingerprint string) {
	if err != nil {
		c.log.Error("store "+what, "fingerprint", fingerprint, "error", err)
		return
	}
	if !live {
		c.log.Info("discarding "+what+" for deleted article", "fingerprint", fingerprint)
	}
}

// firstSentence returns the text up to and including the first sentence
// terminator, capped to keep bookmark notes short.
func firstSentence(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	if i := strings.IndexAny(text, ".!?"); i >= 0 && i < len(text)-1 {
		text = text[:i+1]
	}
	const maxNote = 280
	if len(text) > maxNote {
		text = text[:maxNote]
	}
	return text
}
