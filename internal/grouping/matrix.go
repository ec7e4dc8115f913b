package grouping

import (
	"context"
	"fmt"

	"github.com/hyperjump/simgroup/internal/models"
)

// SimilarityMatrix expands pairs into a dense symmetric n x n matrix with 1 on the
// diagonal. Index pairs missing from pairs are left at 0.
func SimilarityMatrix(n int, pairs []models.Pair) ([][]float64, error) {
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
		m[i][i] = 1
	}
	for _, p := range pairs {
		for _, idx := range [2]int{p.I, p.J} {
			if idx < 0 || idx >= n {
				return nil, &InvalidIndexError{Index: idx, N: n}
			}
		}
		m[p.I][p.J] = p.Score
		m[p.J][p.I] = p.Score
	}
	return m, nil
}

// Matrix scores every pair of items with the engine's scorer and returns the dense
// similarity matrix in input order. It is derived on demand and never kept.
func (e *Engine) Matrix(ctx context.Context, items []models.Item) ([][]float64, error) {
	vectors := make([][]float32, len(items))
	for i, it := range items {
		vectors[i] = it.Vector
	}
	pairs, err := e.scorer.ScorePairs(ctx, vectors)
	if err != nil {
		return nil, fmt.Errorf("score pairs: %w", err)
	}
	return SimilarityMatrix(len(items), pairs)
}
