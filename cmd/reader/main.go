package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"speedreader/internal/collab"
	"speedreader/internal/config"
	"speedreader/internal/fetcher"
	"speedreader/internal/jobs"
	"speedreader/internal/lifecycle"
	"speedreader/internal/model"
	"speedreader/internal/opml"
	"speedreader/internal/reconciler"
	"speedreader/internal/scheduler"
	"speedreader/internal/storage"
	"speedreader/internal/view"
)

func main() {
	addURL := flag.String("add", "", "subscribe to a feed or site URL and exit")
	importPath := flag.String("import", "", "import feeds from an OPML file and exit")
	exportPath := flag.String("export", "", "export feeds to an OPML file and exit")
	refresh := flag.Bool("refresh", false, "refresh all feeds once and exit")
	list := flag.String("list", "", "list articles (unread|starred|all) and exit")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	var summarizer jobs.Summarizer
	if cfg.AnthropicAPIKey != "" {
		summarizer = collab.NewSummarizer(http.DefaultClient, cfg.AnthropicAPIKey)
	}
	var bookmarker jobs.Bookmarker
	if cfg.RaindropToken != "" {
		bookmarker = collab.NewRaindrop(http.DefaultClient, cfg.RaindropToken)
	}
	content := collab.NewContentFetcher(http.DefaultClient, collab.NewFirefoxCookies(cfg.FirefoxProfile))

	coordinator := jobs.New(store, content, summarizer, bookmarker, log)

	engine := lifecycle.New(store, coordinator, log)
	engine.SetDwell(cfg.ReadDwell)
	defer engine.Close()

	feeds := fetcher.New(http.DefaultClient)
	rec := reconciler.New(store, feeds, log)
	sched := scheduler.New(store, rec, cfg.RefreshInterval, cfg.Retention, log)
	adapter := view.New(store, engine, coordinator, feeds)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch {
	case *addURL != "":
		feed, err := adapter.AddFeed(ctx, *addURL)
		if err != nil {
			log.Error("add feed", "url", *addURL, "error", err)
			os.Exit(1)
		}
		fmt.Printf("Subscribed to %s (%s)\n", feed.Title, feed.URL)
		sched.RefreshNow(ctx)

	case *importPath != "":
		if err := importOPML(ctx, store, sched, *importPath); err != nil {
			log.Error("import opml", "path", *importPath, "error", err)
			os.Exit(1)
		}

	case *exportPath != "":
		if err := exportOPML(ctx, adapter, *exportPath); err != nil {
			log.Error("export opml", "path", *exportPath, "error", err)
			os.Exit(1)
		}

	case *refresh:
		reports := sched.RefreshNow(ctx)
		for _, r := range reports {
			if r.Err != nil {
				fmt.Printf("%s: %v\n", r.FeedURL, r.Err)
				continue
			}
			fmt.Printf("%s: %d new, %d updated, %d suppressed\n",
				r.FeedURL, r.Inserted, r.Updated, r.Suppressed)
		}

	case *list != "":
		if err := listArticles(ctx, adapter, model.Filter(*list)); err != nil {
			log.Error("list articles", "error", err)
			os.Exit(1)
		}

	default:
		log.Info("starting reader", "db", cfg.DatabasePath, "refresh_interval", cfg.RefreshInterval)
		sched.Run(ctx)
		coordinator.Wait()
		log.Info("reader stopped")
	}
}

func importOPML(ctx context.Context, store storage.Storage, sched *scheduler.Scheduler, path string) error {
	f, err := os.Open(path) //nolint:gosec // user-supplied subscription list
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	feeds, err := opml.Parse(f)
	if err != nil {
		return err
	}
	for i := range feeds {
		if err := store.UpsertFeed(ctx, &feeds[i]); err != nil {
			return err
		}
	}
	fmt.Printf("Imported %d feeds from %s\n", len(feeds), path)

	sched.RefreshNow(ctx)
	return nil
}

func exportOPML(ctx context.Context, adapter *view.Adapter, path string) error {
	feeds, err := adapter.Feeds(ctx)
	if err != nil {
		return err
	}

	f, err := os.Create(path) //nolint:gosec // user-supplied destination
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	if err := opml.Write(f, feeds); err != nil {
		return err
	}
	fmt.Printf("Exported %d feeds to %s\n", len(feeds), path)
	return nil
}

func listArticles(ctx context.Context, adapter *view.Adapter, filter model.Filter) error {
	articles, err := adapter.List(ctx, filter)
	if err != nil {
		return err
	}
	for _, a := range articles {
		marker := " "
		if a.Starred {
			marker = "*"
		}
		date := ""
		if a.Published != nil {
			date = a.Published.Format("2006-01-02")
		}
		fmt.Printf("%s %-10s  %s\n", marker, date, a.Title)
	}
	return nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
