package biometric

import (
	"errors"
	"math"
	"testing"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a, b     Embedding
		expected float64
		wantErr  bool
	}{
		{
			name:     "identical vectors",
			a:        Embedding{1, 2, 3},
			b:        Embedding{1, 2, 3},
			expected: 1.0,
		},
		{
			name:     "scaled vectors",
			a:        Embedding{1, 2, 3},
			b:        Embedding{2, 4, 6},
			expected: 1.0,
		},
		{
			name:     "orthogonal vectors",
			a:        Embedding{1, 0},
			b:        Embedding{0, 1},
			expected: 0.0,
		},
		{
			name:     "opposite vectors clamp to zero",
			a:        Embedding{1, 2, 3},
			b:        Embedding{-1, -2, -3},
			expected: 0.0,
		},
		{
			name:     "zero norm yields zero",
			a:        Embedding{0, 0, 0},
			b:        Embedding{1, 2, 3},
			expected: 0.0,
		},
		{
			name:    "empty first vector",
			a:       Embedding{},
			b:       Embedding{1},
			wantErr: true,
		},
		{
			name:    "empty second vector",
			a:       Embedding{1},
			b:       Embedding{},
			wantErr: true,
		},
		{
			name:    "dimension mismatch",
			a:       Embedding{1, 2},
			b:       Embedding{1, 2, 3},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CosineSimilarity(tt.a, tt.b)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected error, got nil")
				}
				if !errors.Is(err, ErrInvalidEmbedding) {
					t.Errorf("Expected ErrInvalidEmbedding, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("Expected %g, got %g", tt.expected, got)
			}
		})
	}
}

func TestCosineSimilaritySymmetric(t *testing.T) {
	a := Embedding{0.1, 0.7, -0.3, 0.5}
	b := Embedding{0.4, -0.2, 0.9, 0.1}

	ab, err := CosineSimilarity(a, b)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	ba, err := CosineSimilarity(b, a)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if ab != ba {
		t.Errorf("Similarity should be symmetric: %g vs %g", ab, ba)
	}
}

func TestCosineSimilarityRange(t *testing.T) {
	vectors := []Embedding{
		{0.5, -0.5, 0.5, -0.5},
		{1, 1, 1, 1},
		{-1, 0, 1, 0},
		{0.001, 0.002, 0.003, 0.004},
	}

	for i, a := range vectors {
		for j, b := range vectors {
			sim, err := CosineSimilarity(a, b)
			if err != nil {
				t.Fatalf("vectors %d,%d: unexpected error: %v", i, j, err)
			}
			if sim < 0 || sim > 1 {
				t.Errorf("vectors %d,%d: similarity %g outside [0, 1]", i, j, sim)
			}
		}
	}
}
