package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
)

const (
	raindropURL            = "https://api.raindrop.io/rest/v1"
	raindropCollectionName = "News Links"
)

// Raindrop saves bookmarks to raindrop.io. Bookmarks land in the
// "News Links" collection when it exists, otherwise unsorted.
type Raindrop struct {
	client HTTPClient
	token  string
	url    string

	mu           sync.Mutex
	collectionID int64
	lookedUp     bool
}

// NewRaindrop creates a Raindrop client with the given access token.
func NewRaindrop(client HTTPClient, token string) *Raindrop {
	return &Raindrop{client: client, token: token, url: raindropURL}
}

// SetURL overrides the API base URL (useful for testing).
func (r *Raindrop) SetURL(url string) { r.url = url }

type raindropRequest struct {
	Link        string         `json:"link"`
	Title       string         `json:"title,omitempty"`
	Note        string         `json:"note,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	PleaseParse struct{}       `json:"pleaseParse"`
	Collection  *collectionRef `json:"collection,omitempty"`
}

type collectionRef struct {
	ID int64 `json:"$id"`
}

type raindropResponse struct {
	Result bool `json:"result"`
	Item   struct {
		ID int64 `json:"_id"`
	} `json:"item"`
}

type collectionsResponse struct {
	Items []struct {
		ID    int64  `json:"_id"`
		Title string `json:"title"`
	} `json:"items"`
}

// SaveBookmark saves the article and returns the raindrop identifier.
// Tags are comma-separated.
func (r *Raindrop) SaveBookmark(ctx context.Context, link, title, note, tags string) (int64, error) {
	reqBody := raindropRequest{
		Link:  link,
		Title: title,
		Note:  note,
		Tags:  splitTags(tags),
	}
	if id := r.newsCollectionID(ctx); id != 0 {
		reqBody.Collection = &collectionRef{ID: id}
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return 0, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url+"/raindrop", bytes.NewReader(payload))
	if err != nil {
		return 0, &Error{Op: "bookmark", Kind: KindNetwork, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+r.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, &Error{Op: "bookmark", Kind: KindNetwork, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return 0, &Error{Op: "bookmark", Kind: statusKind(resp.StatusCode), Status: resp.StatusCode}
	}

	var body raindropResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, &Error{Op: "bookmark", Kind: KindNetwork, Err: err}
	}
	if !body.Result || body.Item.ID == 0 {
		return 0, &Error{Op: "bookmark", Kind: KindStatus, Err: fmt.Errorf("no item in response")}
	}
	return body.Item.ID, nil
}

// newsCollectionID looks up and caches the target collection. A failed
// lookup falls back to unsorted and is not retried this session.
func (r *Raindrop) newsCollectionID(ctx context.Context) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lookedUp {
		return r.collectionID
	}
	r.lookedUp = true

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url+"/collections", nil)
	if err != nil {
		return 0
	}
	req.Header.Set("Authorization", "Bearer "+r.token)

	resp, err := r.client.Do(req)
	if err != nil {
		return 0
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return 0
	}

	var body collectionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0
	}
	for _, c := range body.Items {
		if c.Title == raindropCollectionName {
			r.collectionID = c.ID
			break
		}
	}
	return r.collectionID
}

func splitTags(tags string) []string {
	var out []string
	for _, t := range strings.Split(tags, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
