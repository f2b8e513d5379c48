package fetcher

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type mockTransport struct {
	// responses maps URL to body; empty means use body for all URLs.
	responses  map[string]string
	body       string
	statusCode int
	err        error
}

func (m *mockTransport) Do(req *http.Request) (*http.Response, error) {
	if m.err != nil {
		return nil, m.err
	}
	body := m.body
	if m.responses != nil {
		body = m.responses[req.URL.String()]
	}
	return &http.Response{
		StatusCode: m.statusCode,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
	}, nil
}

func loadFixture(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path) //nolint:gosec // test-only fixture loading
	if err != nil {
		t.Fatalf("read fixture %s: %v", path, err)
	}
	return string(data)
}

func TestFetch(t *testing.T) {
	xml := loadFixture(t, "../../testdata/sample.xml")

	tests := []struct {
		name      string
		transport *mockTransport
		wantTitle string
		wantItems int
		wantKind  ErrorKind
	}{
		{
			name:      "successful fetch",
			transport: &mockTransport{body: xml, statusCode: 200},
			wantTitle: "DevOps Weekly",
			wantItems: 5,
		},
		{
			name:      "http error status",
			transport: &mockTransport{body: "not found", statusCode: 404},
			wantKind:  KindHTTPStatus,
		},
		{
			name:      "network error",
			transport: &mockTransport{err: io.ErrUnexpectedEOF},
			wantKind:  KindNetwork,
		},
		{
			name:      "invalid xml",
			transport: &mockTransport{body: "not xml at all", statusCode: 200},
			wantKind:  KindParse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New(tt.transport)
			result, err := f.Fetch(context.Background(), "https://example.com/rss")

			if tt.wantKind != "" {
				var fetchErr *FetchError
				if !errors.As(err, &fetchErr) {
					t.Fatalf("expected *FetchError, got %v", err)
				}
				if fetchErr.Kind != tt.wantKind {
					t.Fatalf("kind = %s, want %s", fetchErr.Kind, tt.wantKind)
				}
				return
			}

			if err != nil {
				t.Fatalf("fetch: %v", err)
			}
			if result.Title != tt.wantTitle {
				t.Errorf("title = %q, want %q", result.Title, tt.wantTitle)
			}
			if len(result.Candidates) != tt.wantItems {
				t.Errorf("items = %d, want %d", len(result.Candidates), tt.wantItems)
			}
		})
	}
}

func TestFetchCandidateMapping(t *testing.T) {
	xml := loadFixture(t, "../../testdata/sample.xml")
	f := New(&mockTransport{body: xml, statusCode: 200})

	result, err := f.Fetch(context.Background(), "https://example.com/rss")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	first := result.Candidates[0]
	wantPublished := time.Date(2026, 8, 10, 9, 0, 0, 0, time.UTC)
	if first.GUID != "k8s-131" {
		t.Errorf("guid = %q", first.GUID)
	}
	if first.Link != "https://devops.example.com/k8s-131" {
		t.Errorf("link = %q", first.Link)
	}
	if first.Published == nil || !first.Published.Equal(wantPublished) {
		t.Errorf("published = %v, want %v", first.Published, wantPublished)
	}
	if diff := cmp.Diff("The Kubernetes project released version 1.31 with new features.", first.ContentText); diff != "" {
		t.Errorf("content text mismatch (-want +got):\n%s", diff)
	}

	// Third item carries no GUID; the fetcher leaves it empty for the
	// fingerprint fallback to handle.
	if got := result.Candidates[2].GUID; got != "" {
		t.Errorf("expected empty guid, got %q", got)
	}
}

func TestDiscoverDirectFeed(t *testing.T) {
	xml := loadFixture(t, "../../testdata/sample.xml")
	f := New(&mockTransport{body: xml, statusCode: 200})

	feed, err := f.Discover(context.Background(), "https://devops.example.com/rss")
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if feed.Title != "DevOps Weekly" {
		t.Errorf("title = %q", feed.Title)
	}
	if feed.URL != "https://devops.example.com/rss" {
		t.Errorf("url = %q", feed.URL)
	}
}

func TestDiscoverViaHTMLPage(t *testing.T) {
	xml := loadFixture(t, "../../testdata/sample.xml")
	page := `<!DOCTYPE html><html><head>
		<link rel="alternate" type="application/rss+xml" href="/feed.xml">
		</head><body>hello</body></html>`

	f := New(&mockTransport{
		statusCode: 200,
		responses: map[string]string{
			"https://devops.example.com":          page,
			"https://devops.example.com/feed.xml": xml,
		},
	})

	feed, err := f.Discover(context.Background(), "https://devops.example.com")
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if feed.URL != "https://devops.example.com/feed.xml" {
		t.Errorf("url = %q", feed.URL)
	}
	if feed.Title != "DevOps Weekly" {
		t.Errorf("title = %q", feed.Title)
	}
}

func TestDiscoverNoFeed(t *testing.T) {
	f := New(&mockTransport{body: "<html><body>nothing here</body></html>", statusCode: 200})
	_, err := f.Discover(context.Background(), "https://example.com")
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) || fetchErr.Kind != KindParse {
		t.Fatalf("expected parse error, got %v", err)
	}
}
