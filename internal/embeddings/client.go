// Package embeddings generates and caches the vector embeddings used to
// rank graph nodes by relevance: node contents at extraction time and
// query vectors for the context assembler's similarity retrieval.
package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

const (
	defaultBaseURL       = "https://openrouter.ai/api/v1"
	defaultBatchSize     = 100
	defaultMaxConcurrent = 5
	defaultTimeout       = 30 * time.Second
)

// Client generates embeddings via the OpenRouter API.
type Client struct {
	httpClient    *http.Client
	baseURL       string
	apiKey        string
	model         string
	batchSize     int
	maxConcurrent int
}

// ClientOption configures the Client
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithModel sets the embedding model
func WithModel(model string) ClientOption {
	return func(c *Client) {
		c.model = model
	}
}

// WithBatchSize sets the batch size for API requests
func WithBatchSize(size int) ClientOption {
	return func(c *Client) {
		c.batchSize = size
	}
}

// WithMaxConcurrent sets the max concurrent requests
func WithMaxConcurrent(n int) ClientOption {
	return func(c *Client) {
		c.maxConcurrent = n
	}
}

// WithTimeout sets the HTTP client timeout
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// NewClient creates a new embedding client
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		baseURL:       defaultBaseURL,
		apiKey:        apiKey,
		model:         DefaultModel,
		batchSize:     defaultBatchSize,
		maxConcurrent: defaultMaxConcurrent,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// EmbedTexts embeds a list of texts, preserving input order. Texts are
// split into batches of batchSize, requested concurrently under the
// maxConcurrent cap; any batch failure fails the whole call, since a node
// batch with holes in its embeddings is worse than no embeddings.
func (c *Client) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	results := make([][]float32, len(texts))
	sem := make(chan struct{}, c.maxConcurrent)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for start := 0; start < len(texts); start += c.batchSize {
		end := start + c.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		wg.Add(1)
		go func(start int, batch []string) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			embeddings, err := c.embedBatch(ctx, batch)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("embed texts %d..%d: %w", start, start+len(batch), err)
				}
				return
			}
			copy(results[start:], embeddings)
		}(start, texts[start:end])
	}

	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return results, nil
}

// EmbedText embeds a single text.
func (c *Client) EmbedText(ctx context.Context, text string) ([]float32, error) {
	results, err := c.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return results[0], nil
}

// GetDimension returns the embedding dimension for the configured model
func (c *Client) GetDimension() int {
	return GetEmbeddingDimension(c.model)
}

func (c *Client) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	reqBody := EmbeddingRequest{
		Model: c.model,
		Input: texts,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/embeddings", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	var embResp EmbeddingResponse
	if err := json.Unmarshal(body, &embResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	// The API reports an index per embedding; order by it rather than
	// trusting response order.
	embeddings := make([][]float32, len(texts))
	for _, data := range embResp.Data {
		if data.Index < len(embeddings) {
			embeddings[data.Index] = data.Embedding
		}
	}

	return embeddings, nil
}
