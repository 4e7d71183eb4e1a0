package nlp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EmbedderConfig holds embedding client configuration.
type EmbedderConfig struct {
	// BaseURL is the base URL of the embedding service.
	BaseURL string

	// APIKey is the shared secret sent with every request.
	APIKey string

	// Timeout bounds each embedding call (default: 10s).
	Timeout time.Duration
}

// EmbeddingClient calls a remote embedding service. Embedding failures are
// never swallowed: without a vector the semantic-search caller has no valid
// output, so errors propagate.
type EmbeddingClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	breaker *CircuitBreaker
	timeout time.Duration
}

// embedRequest is the wire format for an embedding request.
type embedRequest struct {
	Text    string       `json:"text"`
	Options embedOptions `json:"options"`
}

type embedOptions struct {
	Normalize bool   `json:"normalize"`
	Pooling   string `json:"pooling"`
}

// embedResponse is the expected response shape.
type embedResponse struct {
	Embedding []float64 `json:"embedding"`
}

// NewEmbeddingClient creates an embedding client. A zero Timeout defaults
// to 10s.
func NewEmbeddingClient(config EmbedderConfig) *EmbeddingClient {
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}

	return &EmbeddingClient{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		apiKey:  config.APIKey,
		client:  &http.Client{Timeout: config.Timeout},
		breaker: NewCircuitBreaker("embedder"),
		timeout: config.Timeout,
	}
}

// Embed returns the embedding vector for text. The service is asked for
// mean-pooled, unit-normalized vectors; the result is used as-is either way.
func (e *EmbeddingClient) Embed(ctx context.Context, text string) ([]float64, error) {
	result, err := e.breaker.Execute(ctx, func() (interface{}, error) {
		return e.embed(ctx, text)
	})
	if err != nil {
		return nil, err
	}
	return result.([]float64), nil
}

func (e *EmbeddingClient) embed(ctx context.Context, text string) ([]float64, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	body, err := json.Marshal(embedRequest{
		Text:    text,
		Options: embedOptions{Normalize: true, Pooling: "mean"},
	})
	if err != nil {
		return nil, fmt.Errorf("nlp: failed to marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("nlp: failed to create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("nlp: embed request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("nlp: embedder returned status %d: %s", resp.StatusCode, string(snippet))
	}

	var respData embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&respData); err != nil {
		return nil, fmt.Errorf("nlp: failed to decode embedder response: %w", err)
	}

	if len(respData.Embedding) == 0 {
		return nil, fmt.Errorf("nlp: embedder returned an empty vector")
	}

	return respData.Embedding, nil
}

// Compile-time assertion that EmbeddingClient satisfies Embedder.
var _ Embedder = (*EmbeddingClient)(nil)
