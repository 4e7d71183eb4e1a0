// Package similarity provides the vector similarity primitives used by
// semantic retrieval.
package similarity

import (
	"errors"
	"math"
)

// ErrDimensionMismatch is returned when the two input vectors have
// different lengths.
var ErrDimensionMismatch = errors.New("similarity: vector dimensions do not match")

// Cosine computes the cosine similarity between two equal-length vectors.
// The result is in [-1, 1]. If either vector has zero magnitude the
// similarity is defined as 0 rather than dividing by zero.
func Cosine(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, ErrDimensionMismatch
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0, nil
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}
