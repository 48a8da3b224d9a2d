package biometric

import (
	"fmt"
	"math"
)

// CosineSimilarity computes the cosine similarity between two embeddings,
// clamped to [0, 1]. Voice embeddings are expected to be non-negatively
// correlated in practice; clipping the raw [-1, 1] cosine at zero keeps
// downstream scoring monotonic and interpretable as match strength.
//
// Both vectors must be non-empty and of equal length. A zero-norm vector
// yields 0.0 rather than an error: legitimate biometric embeddings are never
// zero, and a zero result avoids division by zero.
func CosineSimilarity(a, b Embedding) (float64, error) {
	if len(a) == 0 || len(b) == 0 {
		return 0, fmt.Errorf("%w: embedding cannot be empty", ErrInvalidEmbedding)
	}
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: dimension mismatch %d vs %d", ErrInvalidEmbedding, len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		ai, bi := float64(a[i]), float64(b[i])
		dot += ai * bi
		normA += ai * ai
		normB += bi * bi
	}

	if normA == 0 || normB == 0 {
		return 0, nil
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return clamp01(sim), nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
