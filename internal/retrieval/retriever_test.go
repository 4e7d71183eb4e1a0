package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/converselabs/contextd/internal/storage"
	"github.com/converselabs/contextd/pkg/types"
)

// fakeStore serves a fixed newest-first message list.
type fakeStore struct {
	messages []types.Message
	listErr  error
}

func (f *fakeStore) AddMessage(ctx context.Context, sessionID, role, content string) (*types.Message, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeStore) ListMessages(ctx context.Context, sessionID string) ([]types.Message, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.messages, nil
}

func (f *fakeStore) StoreEmbedding(ctx context.Context, messageID string, vector []float64) error {
	return errors.New("not implemented")
}

// semanticStore additionally answers candidate queries in-store.
type semanticStore struct {
	fakeStore
	candidates []types.ScoredMessage
	err        error

	gotExclude   []string
	gotThreshold float64
	gotLimit     int
}

func (f *semanticStore) SemanticCandidates(ctx context.Context, sessionID string, query []float64, exclude []string, threshold float64, limit int) ([]types.ScoredMessage, error) {
	f.gotExclude = exclude
	f.gotThreshold = threshold
	f.gotLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	return f.candidates, nil
}

type fakeEmbedder struct {
	vector []float64
	err    error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vector, nil
}

func message(id string, embedding []float64) types.Message {
	return types.Message{ID: id, SessionID: "s1", Role: "user", Content: "content " + id, Embedding: embedding}
}

func TestSearch_RecentPlusSemantic(t *testing.T) {
	// Ten messages, newest first. The five oldest carry embeddings with
	// distinct similarities to the query; the rest have none.
	query := []float64{1, 0}
	store := &fakeStore{messages: []types.Message{
		message("m10", nil),
		message("m9", nil),
		message("m8", nil),
		message("m7", nil),
		message("m6", nil),
		message("m5", []float64{1, 0}),     // similarity 1.0
		message("m4", []float64{1, 0.2}),   // ~0.98
		message("m3", []float64{1, 0.75}),  // ~0.8
		message("m2", []float64{0.5, 0.5}), // ~0.71
		message("m1", []float64{0, 1}),     // 0
	}}

	retriever := NewRetriever(store, &fakeEmbedder{vector: query})

	results, err := retriever.Search(context.Background(), "s1", "what do I like", SearchOptions{
		Limit:         5,
		MinSimilarity: 0.5,
		IncludeRecent: 3,
	})
	require.NoError(t, err)
	require.Len(t, results, 5)

	for i, id := range []string{"m10", "m9", "m8"} {
		assert.Equal(t, id, results[i].MessageID)
		assert.Equal(t, types.ReasonRecent, results[i].Reason)
	}

	// Budget of two semantic slots, most similar first.
	assert.Equal(t, "m5", results[3].MessageID)
	assert.Equal(t, types.ReasonSemantic, results[3].Reason)
	assert.InDelta(t, 1.0, results[3].Similarity, 1e-9)
	assert.Equal(t, "m4", results[4].MessageID)
	assert.Equal(t, types.ReasonSemantic, results[4].Reason)

	seen := make(map[string]bool)
	for _, r := range results {
		assert.False(t, seen[r.MessageID], "message %s appears twice", r.MessageID)
		seen[r.MessageID] = true
	}
}

func TestSearch_EmbeddingFailurePropagates(t *testing.T) {
	store := &fakeStore{messages: []types.Message{message("m1", nil)}}
	retriever := NewRetriever(store, &fakeEmbedder{err: errors.New("embedding service down")})

	_, err := retriever.Search(context.Background(), "s1", "query", SearchOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to embed query")
}

func TestSearch_RecentWindowFillsLimit(t *testing.T) {
	store := &fakeStore{messages: []types.Message{
		message("m3", []float64{1, 0}),
		message("m2", []float64{1, 0}),
		message("m1", []float64{1, 0}),
	}}
	retriever := NewRetriever(store, &fakeEmbedder{vector: []float64{1, 0}})

	results, err := retriever.Search(context.Background(), "s1", "query", SearchOptions{
		Limit:         2,
		IncludeRecent: 5,
	})
	require.NoError(t, err)
	require.Len(t, results, 2, "recent window is clamped to the limit")
	for _, r := range results {
		assert.Equal(t, types.ReasonRecent, r.Reason)
	}
}

func TestSearch_NoEmbeddingNeverSemantic(t *testing.T) {
	store := &fakeStore{messages: []types.Message{
		message("m3", nil),
		message("m2", nil),
		message("m1", []float64{1, 0}),
	}}
	retriever := NewRetriever(store, &fakeEmbedder{vector: []float64{1, 0}})

	results, err := retriever.Search(context.Background(), "s1", "query", SearchOptions{
		Limit:         3,
		MinSimilarity: 0.5,
		IncludeRecent: 1,
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "m3", results[0].MessageID)
	assert.Equal(t, "m1", results[1].MessageID, "only the embedded message qualifies semantically")
}

func TestSearch_ThresholdFiltersCandidates(t *testing.T) {
	store := &fakeStore{messages: []types.Message{
		message("m2", []float64{0, 1}), // similarity 0
		message("m1", []float64{1, 0}), // similarity 1
	}}
	retriever := NewRetriever(store, &fakeEmbedder{vector: []float64{1, 0}})

	results, err := retriever.Search(context.Background(), "s1", "query", SearchOptions{
		Limit:         5,
		MinSimilarity: 0.9,
		IncludeRecent: 0,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "m1", results[0].MessageID)
}

func TestSearch_MismatchedDimensionsSkipped(t *testing.T) {
	store := &fakeStore{messages: []types.Message{
		message("m2", []float64{1, 0, 0}), // wrong dimension, skipped
		message("m1", []float64{1, 0}),
	}}
	retriever := NewRetriever(store, &fakeEmbedder{vector: []float64{1, 0}})

	results, err := retriever.Search(context.Background(), "s1", "query", SearchOptions{
		Limit:         5,
		MinSimilarity: 0.5,
		IncludeRecent: 0,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "m1", results[0].MessageID)
}

func TestSearch_UsesInStoreCandidatesWhenAvailable(t *testing.T) {
	store := &semanticStore{
		fakeStore: fakeStore{messages: []types.Message{
			message("m3", nil),
			message("m2", nil),
			message("m1", nil),
		}},
		candidates: []types.ScoredMessage{
			{MessageID: "m1", Content: "content m1", Similarity: 0.95, Reason: types.ReasonSemantic},
		},
	}
	retriever := NewRetriever(store, &fakeEmbedder{vector: []float64{1, 0}})

	results, err := retriever.Search(context.Background(), "s1", "query", SearchOptions{
		Limit:         3,
		MinSimilarity: 0.5,
		IncludeRecent: 2,
	})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "m1", results[2].MessageID)

	assert.Equal(t, []string{"m3", "m2"}, store.gotExclude, "recent window is excluded from candidates")
	assert.InDelta(t, 0.5, store.gotThreshold, 1e-9)
	assert.Equal(t, 1, store.gotLimit)
}

func TestSearch_FallsBackWhenStoreCannotRank(t *testing.T) {
	store := &semanticStore{
		fakeStore: fakeStore{messages: []types.Message{
			message("m2", nil),
			message("m1", []float64{1, 0}),
		}},
		err: storage.ErrSemanticUnavailable,
	}
	retriever := NewRetriever(store, &fakeEmbedder{vector: []float64{1, 0}})

	results, err := retriever.Search(context.Background(), "s1", "query", SearchOptions{
		Limit:         2,
		MinSimilarity: 0.5,
		IncludeRecent: 1,
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "m1", results[1].MessageID, "in-process scoring still ranks the rest")
}

func TestSearch_ValidatesInput(t *testing.T) {
	retriever := NewRetriever(&fakeStore{}, &fakeEmbedder{vector: []float64{1}})

	_, err := retriever.Search(context.Background(), "", "query", SearchOptions{})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	_, err = retriever.Search(context.Background(), "s1", "", SearchOptions{})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}
