package postgres

import (
	"context"
	"fmt"

	"github.com/lib/pq"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/converselabs/contextd/internal/storage"
	"github.com/converselabs/contextd/pkg/types"
)

// Compile-time assertion: the pgvector path satisfies the optional
// capability interface.
var _ storage.SemanticSearcher = (*Store)(nil)

// SemanticCandidates ranks a session's embedded messages against the query
// vector using pgvector's cosine distance operator. Returns
// storage.ErrSemanticUnavailable when the extension is not installed so the
// caller can score in process instead.
func (s *Store) SemanticCandidates(ctx context.Context, sessionID string, query []float64, exclude []string, threshold float64, limit int) ([]types.ScoredMessage, error) {
	if !s.pgvectorAvailable {
		return nil, storage.ErrSemanticUnavailable
	}
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session ID is required", storage.ErrInvalidInput)
	}
	if len(query) == 0 {
		return nil, fmt.Errorf("%w: query vector cannot be empty", storage.ErrInvalidInput)
	}
	if limit <= 0 {
		return nil, nil
	}
	if exclude == nil {
		exclude = []string{}
	}

	f32 := make([]float32, len(query))
	for i, v := range query {
		f32[i] = float32(v)
	}
	vec := pgvector.NewVector(f32)

	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.content, 1 - (e.embedding_vec <=> $2) AS similarity
		FROM message_embeddings e
		JOIN messages m ON m.id = e.message_id
		WHERE m.session_id = $1
		  AND e.embedding_vec IS NOT NULL
		  AND m.id <> ALL($3)
		  AND 1 - (e.embedding_vec <=> $2) >= $4
		ORDER BY e.embedding_vec <=> $2
		LIMIT $5`,
		sessionID, vec, pq.Array(exclude), threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: semantic candidate query failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var candidates []types.ScoredMessage
	for rows.Next() {
		scored := types.ScoredMessage{Reason: types.ReasonSemantic}
		if err := rows.Scan(&scored.MessageID, &scored.Content, &scored.Similarity); err != nil {
			return nil, fmt.Errorf("postgres: scan candidate row: %w", err)
		}
		candidates = append(candidates, scored)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: candidate rows error: %w", err)
	}

	return candidates, nil
}
