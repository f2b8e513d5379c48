// Package fetcher downloads and parses RSS/Atom feeds into candidates.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"speedreader/internal/model"
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// ErrorKind classifies a fetch failure.
type ErrorKind string

// Fetch failure kinds.
const (
	KindNetwork    ErrorKind = "network"
	KindParse      ErrorKind = "parse"
	KindHTTPStatus ErrorKind = "http-status"
)

// FetchError is a typed failure from fetching or parsing one feed.
type FetchError struct {
	Kind   ErrorKind
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case KindHTTPStatus:
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.Status)
	default:
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }

// Result holds the outcome of fetching and parsing one feed.
type Result struct {
	Title       string
	SiteURL     string
	Description string
	Candidates  []model.Candidate
}

// Fetcher downloads and parses RSS/Atom feeds.
type Fetcher struct {
	client HTTPClient
}

// New creates a Fetcher with the given HTTP client.
func New(client HTTPClient) *Fetcher {
	return &Fetcher{client: client}
}

// Fetch downloads and parses the feed at url. Failures are reported as
// *FetchError; the caller owns retry policy.
func (f *Fetcher) Fetch(ctx context.Context, feedURL string) (*Result, error) {
	body, err := f.get(ctx, feedURL)
	if err != nil {
		return nil, err
	}

	parsed, err := gofeed.NewParser().ParseString(body)
	if err != nil {
		return nil, &FetchError{Kind: KindParse, URL: feedURL, Err: err}
	}

	result := &Result{
		Title:       parsed.Title,
		SiteURL:     parsed.Link,
		Description: parsed.Description,
		Candidates:  make([]model.Candidate, 0, len(parsed.Items)),
	}
	for _, item := range parsed.Items {
		result.Candidates = append(result.Candidates, candidateFromItem(item))
	}
	return result, nil
}

// Discover resolves url into a feed subscription. A direct RSS/Atom
// URL is parsed as-is; an HTML page is scanned for an alternate feed
// link which is then fetched.
func (f *Fetcher) Discover(ctx context.Context, pageURL string) (*model.Feed, error) {
	body, err := f.get(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	if parsed, err := gofeed.NewParser().ParseString(body); err == nil {
		return &model.Feed{
			URL:         pageURL,
			Title:       feedTitle(parsed),
			SiteURL:     parsed.Link,
			Description: parsed.Description,
		}, nil
	}

	feedURL, err := findFeedLink(body, pageURL)
	if err != nil {
		return nil, &FetchError{Kind: KindParse, URL: pageURL, Err: err}
	}

	feedBody, err := f.get(ctx, feedURL)
	if err != nil {
		return nil, err
	}
	parsed, err := gofeed.NewParser().ParseString(feedBody)
	if err != nil {
		return nil, &FetchError{Kind: KindParse, URL: feedURL, Err: err}
	}
	return &model.Feed{
		URL:         feedURL,
		Title:       feedTitle(parsed),
		SiteURL:     parsed.Link,
		Description: parsed.Description,
	}, nil
}

func (f *Fetcher) get(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", &FetchError{Kind: KindNetwork, URL: rawURL, Err: err}
	}
	req.Header.Set("User-Agent", "speedreader/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", &FetchError{Kind: KindNetwork, URL: rawURL, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", &FetchError{Kind: KindHTTPStatus, URL: rawURL, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 5*1024*1024))
	if err != nil {
		return "", &FetchError{Kind: KindNetwork, URL: rawURL, Err: err}
	}
	return string(body), nil
}

func candidateFromItem(item *gofeed.Item) model.Candidate {
	contentHTML := item.Content
	if contentHTML == "" {
		contentHTML = item.Description
	}

	var published *time.Time
	switch {
	case item.PublishedParsed != nil:
		published = item.PublishedParsed
	case item.UpdatedParsed != nil:
		published = item.UpdatedParsed
	}

	author := ""
	if len(item.Authors) > 0 {
		author = item.Authors[0].Name
	}

	title := item.Title
	if title == "" {
		title = "Untitled"
	}

	return model.Candidate{
		Title:       title,
		Link:        item.Link,
		GUID:        item.GUID,
		Author:      author,
		Published:   published,
		ContentHTML: contentHTML,
		ContentText: htmlToText(contentHTML),
	}
}

func feedTitle(f *gofeed.Feed) string {
	if f.Title == "" {
		return "Untitled Feed"
	}
	return f.Title
}

// htmlToText flattens entry HTML into whitespace-normalized plain text.
func htmlToText(html string) string {
	if html == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

// findFeedLink scans an HTML page for an alternate RSS/Atom link and
// resolves it against the page URL.
func findFeedLink(html, baseURL string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	href := ""
	doc.Find(`link[rel="alternate"]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		typ, _ := sel.Attr("type")
		if typ != "application/rss+xml" && typ != "application/atom+xml" {
			return true
		}
		href, _ = sel.Attr("href")
		return href == ""
	})
	if href == "" {
		return "", fmt.Errorf("no feed link found")
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return href, nil
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href, nil
	}
	return base.ResolveReference(ref).String(), nil
}
