package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

const (
	anthropicURL     = "https://api.anthropic.com/v1/messages"
	anthropicVersion = "2023-06-01"
	summaryModel     = "claude-3-5-haiku-20241022"

	// Articles are truncated before being sent for summarization.
	maxSummarizeInput = 10000
)

const summarySystemPrompt = `You are a helpful assistant that summarizes news articles.
Provide a concise, informative summary as short bullet points.
Focus on the key facts, main arguments, and important conclusions.
Use clear, accessible language.`

// Summarizer generates article summaries via the Anthropic messages API.
type Summarizer struct {
	client HTTPClient
	apiKey string
	url    string
}

// NewSummarizer creates a Summarizer with the given HTTP client and key.
func NewSummarizer(client HTTPClient, apiKey string) *Summarizer {
	return &Summarizer{client: client, apiKey: apiKey, url: anthropicURL}
}

// SetURL overrides the API endpoint (useful for testing).
func (s *Summarizer) SetURL(url string) { s.url = url }

type messageRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messageResponse struct {
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Summarize produces a bullet-point synopsis of the article and returns
// it together with the model version that generated it.
func (s *Summarizer) Summarize(ctx context.Context, title, content string) (string, string, error) {
	if len(content) > maxSummarizeInput {
		content = content[:maxSummarizeInput]
	}

	reqBody := messageRequest{
		Model:     summaryModel,
		MaxTokens: 1024,
		System:    summarySystemPrompt,
		Messages: []message{{
			Role:    "user",
			Content: fmt.Sprintf("Please summarize the following article:\n\nTitle: %s\n\nContent:\n%s", title, content),
		}},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", "", fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return "", "", &Error{Op: "summarize", Kind: KindNetwork, Err: err}
	}
	req.Header.Set("x-api-key", s.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)
	req.Header.Set("content-type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", "", &Error{Op: "summarize", Kind: KindNetwork, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", "", &Error{Op: "summarize", Kind: statusKind(resp.StatusCode), Status: resp.StatusCode}
	}

	var msg messageResponse
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		return "", "", &Error{Op: "summarize", Kind: KindNetwork, Err: err}
	}

	var parts []string
	for _, block := range msg.Content {
		if block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	return strings.Join(parts, "\n"), summaryModel, nil
}
