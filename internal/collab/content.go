package collab

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"
)

var errTooShort = errors.New("extracted content too short")

// Pages shorter than this after extraction are treated as paywalls or
// boilerplate, not article bodies.
const minExtractedLength = 200

const browserUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0"

// CookieSource supplies cookie header material for a host. The cookie
// contents are opaque to the content fetcher.
type CookieSource interface {
	Cookies(ctx context.Context, host string) (string, error)
}

// ContentFetcher retrieves full article pages, optionally with browser
// cookies for access-restricted sources, and extracts readable text.
type ContentFetcher struct {
	client  HTTPClient
	cookies CookieSource
}

// NewContentFetcher creates a ContentFetcher. cookies may be nil.
func NewContentFetcher(client HTTPClient, cookies CookieSource) *ContentFetcher {
	return &ContentFetcher{client: client, cookies: cookies}
}

// FetchContent downloads the article page and extracts its readable
// body. It returns the cleaned HTML and the plain text.
func (f *ContentFetcher) FetchContent(ctx context.Context, link string) (string, string, error) {
	pageURL, err := url.Parse(link)
	if err != nil || pageURL.Host == "" {
		return "", "", &Error{Op: "content", Kind: KindNetwork, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return "", "", &Error{Op: "content", Kind: KindNetwork, Err: err}
	}
	req.Header.Set("User-Agent", browserUserAgent)

	if f.cookies != nil {
		if cookie, err := f.cookies.Cookies(ctx, pageURL.Host); err == nil && cookie != "" {
			req.Header.Set("Cookie", cookie)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", "", &Error{Op: "content", Kind: KindNetwork, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", "", &Error{Op: "content", Kind: statusKind(resp.StatusCode), Status: resp.StatusCode}
	}

	article, err := readability.FromReader(resp.Body, pageURL)
	if err != nil {
		return "", "", &Error{Op: "content", Kind: KindExtract, Err: err}
	}

	text := strings.TrimSpace(article.TextContent)
	if len(text) < minExtractedLength {
		return "", "", &Error{Op: "content", Kind: KindExtract, Err: errTooShort}
	}
	return article.Content, text, nil
}
