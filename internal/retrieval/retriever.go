// Package retrieval ranks a session's messages for a query by blending
// recency with embedding similarity.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"

	"github.com/converselabs/contextd/internal/similarity"
	"github.com/converselabs/contextd/internal/storage"
	"github.com/converselabs/contextd/pkg/types"
)

// Embedder generates the query vector. Embedding failure aborts the search;
// there is no useful result without a query vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// SearchOptions tune a single search call. Zero values fall back to the
// defaults below.
type SearchOptions struct {
	// Limit bounds the total result size, recent entries included.
	Limit int

	// MinSimilarity is the similarity floor for the semantic slice.
	MinSimilarity float64

	// IncludeRecent is how many of the newest messages are returned
	// unconditionally before similarity is consulted. Zero means the whole
	// result is similarity-ranked.
	IncludeRecent int
}

const (
	defaultLimit         = 10
	defaultMinSimilarity = 0.3
)

// Retriever performs recency-plus-similarity search over stored messages.
type Retriever struct {
	store    storage.MessageStore
	embedder Embedder
}

// NewRetriever builds a retriever over the given message store and embedder.
func NewRetriever(store storage.MessageStore, embedder Embedder) *Retriever {
	return &Retriever{store: store, embedder: embedder}
}

// Search returns up to opts.Limit scored messages for the query: the
// opts.IncludeRecent newest messages first, then the remaining messages with
// stored embeddings ranked by cosine similarity, most similar first, filtered
// by opts.MinSimilarity. A message appears at most once; the recent window is
// never re-considered for the semantic slice. Messages without a stored
// embedding can only appear via the recent path.
func (r *Retriever) Search(ctx context.Context, sessionID, query string, opts SearchOptions) ([]types.ScoredMessage, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session ID is required", storage.ErrInvalidInput)
	}
	if query == "" {
		return nil, fmt.Errorf("%w: query text is required", storage.ErrInvalidInput)
	}
	if r.embedder == nil {
		return nil, errors.New("retrieval: no embedder configured")
	}

	if opts.Limit <= 0 {
		opts.Limit = defaultLimit
	}
	if opts.MinSimilarity <= 0 {
		opts.MinSimilarity = defaultMinSimilarity
	}
	if opts.IncludeRecent < 0 {
		opts.IncludeRecent = 0
	}

	queryVector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("retrieval: failed to embed query: %w", err)
	}

	messages, err := r.store.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("retrieval: failed to list messages: %w", err)
	}

	recentCount := opts.IncludeRecent
	if recentCount > len(messages) {
		recentCount = len(messages)
	}
	if recentCount > opts.Limit {
		recentCount = opts.Limit
	}

	results := make([]types.ScoredMessage, 0, opts.Limit)
	for _, message := range messages[:recentCount] {
		scored := types.ScoredMessage{
			MessageID: message.ID,
			Content:   message.Content,
			Reason:    types.ReasonRecent,
		}
		if len(message.Embedding) > 0 {
			if score, err := similarity.Cosine(queryVector, message.Embedding); err == nil {
				scored.Similarity = score
			}
		}
		results = append(results, scored)
	}

	budget := opts.Limit - recentCount
	if budget <= 0 {
		return results, nil
	}

	semantic, err := r.semanticSlice(ctx, sessionID, queryVector, messages, recentCount, opts.MinSimilarity, budget)
	if err != nil {
		return nil, err
	}

	return append(results, semantic...), nil
}

// semanticSlice ranks the messages past the recent window. When the backend
// can rank in-database it is asked first; otherwise every remaining message
// with an embedding is scored in process.
func (r *Retriever) semanticSlice(ctx context.Context, sessionID string, queryVector []float64, messages []types.Message, recentCount int, minSimilarity float64, budget int) ([]types.ScoredMessage, error) {
	if searcher, ok := r.store.(storage.SemanticSearcher); ok {
		exclude := make([]string, 0, recentCount)
		for _, message := range messages[:recentCount] {
			exclude = append(exclude, message.ID)
		}

		candidates, err := searcher.SemanticCandidates(ctx, sessionID, queryVector, exclude, minSimilarity, budget)
		switch {
		case err == nil:
			return candidates, nil
		case errors.Is(err, storage.ErrSemanticUnavailable):
			// fall through to in-process scoring
		default:
			return nil, fmt.Errorf("retrieval: semantic candidate query failed: %w", err)
		}
	}

	var candidates []types.ScoredMessage
	for _, message := range messages[recentCount:] {
		if len(message.Embedding) == 0 {
			continue
		}

		score, err := similarity.Cosine(queryVector, message.Embedding)
		if err != nil {
			log.Printf("retrieval: skipping message %s: %v", message.ID, err)
			continue
		}
		if score < minSimilarity {
			continue
		}

		candidates = append(candidates, types.ScoredMessage{
			MessageID:  message.ID,
			Content:    message.Content,
			Similarity: score,
			Reason:     types.ReasonSemantic,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Similarity > candidates[j].Similarity
	})

	if len(candidates) > budget {
		candidates = candidates[:budget]
	}
	return candidates, nil
}
