package sqlite

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/converselabs/contextd/internal/storage"
)

// StoreEmbedding stores (or replaces) the embedding vector for a message.
// Vectors are serialized as little-endian float64 BLOBs.
func (s *Store) StoreEmbedding(ctx context.Context, messageID string, vector []float64) error {
	if messageID == "" {
		return fmt.Errorf("%w: message ID is required", storage.ErrInvalidInput)
	}
	if len(vector) == 0 {
		return fmt.Errorf("%w: embedding vector cannot be empty", storage.ErrInvalidInput)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO message_embeddings (message_id, embedding, dimension, created_at, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(message_id) DO UPDATE SET
			embedding = excluded.embedding,
			dimension = excluded.dimension,
			updated_at = CURRENT_TIMESTAMP`,
		messageID, serializeVector(vector), len(vector))
	if err != nil {
		return fmt.Errorf("sqlite: failed to store embedding: %w", err)
	}

	return nil
}

// serializeVector encodes a float64 slice as little-endian bytes.
func serializeVector(vector []float64) []byte {
	buf := make([]byte, len(vector)*8)
	for i, v := range vector {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

// deserializeVector decodes a little-endian float64 blob, validating the
// buffer against the stored dimension.
func deserializeVector(buf []byte, dimension int) ([]float64, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("sqlite: invalid embedding dimension %d", dimension)
	}
	if len(buf) != dimension*8 {
		return nil, fmt.Errorf("sqlite: embedding buffer size mismatch: expected %d bytes, got %d", dimension*8, len(buf))
	}

	vector := make([]float64, dimension)
	for i := range vector {
		vector[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return vector, nil
}
