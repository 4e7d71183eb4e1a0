package nlp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbed_Success(t *testing.T) {
	var gotReq embedRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"embedding": []float64{0.1, 0.2, 0.3},
		})
	}))
	defer server.Close()

	embedder := NewEmbeddingClient(EmbedderConfig{BaseURL: server.URL, APIKey: "secret"})

	vector, err := embedder.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, vector)

	assert.Equal(t, "hello world", gotReq.Text)
	assert.True(t, gotReq.Options.Normalize)
	assert.Equal(t, "mean", gotReq.Options.Pooling)
}

func TestEmbed_FailureIsLoud(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer server.Close()

	embedder := NewEmbeddingClient(EmbedderConfig{BaseURL: server.URL})

	_, err := embedder.Embed(context.Background(), "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}

func TestEmbed_EmptyVector(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"embedding": []float64{}})
	}))
	defer server.Close()

	embedder := NewEmbeddingClient(EmbedderConfig{BaseURL: server.URL})

	_, err := embedder.Embed(context.Background(), "text")
	require.Error(t, err)
}

func TestEmbed_MalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"vector": [1, 2]}`))
	}))
	defer server.Close()

	embedder := NewEmbeddingClient(EmbedderConfig{BaseURL: server.URL})

	// The vector lives at a fixed path; any other shape raises.
	_, err := embedder.Embed(context.Background(), "text")
	require.Error(t, err)
}

func TestEmbed_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	embedder := NewEmbeddingClient(EmbedderConfig{BaseURL: server.URL, Timeout: 20 * time.Millisecond})

	_, err := embedder.Embed(context.Background(), "text")
	require.Error(t, err)
}
