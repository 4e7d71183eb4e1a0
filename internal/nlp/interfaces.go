package nlp

import (
	"context"

	"github.com/converselabs/contextd/pkg/types"
)

// EntityExtractor is the interface for remote named-entity extraction.
// Failures are returned as errors; callers decide whether to degrade
// (message ingestion does) or to propagate.
type EntityExtractor interface {
	ExtractEntities(ctx context.Context, text string) ([]types.EntityCandidate, error)
}

// Embedder is the interface for generating vector embeddings.
// Unlike entity extraction there is no meaningful empty fallback, so
// failures always surface as errors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}
