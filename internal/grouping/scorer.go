// Package grouping clusters items into groups of near-duplicates: it scores every
// pair of item vectors, keeps pairs above a threshold, takes the connected components
// of the resulting graph and labels each component with a fresh group ID.
package grouping

import (
	"context"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/simgroup/internal/models"
	"github.com/hyperjump/simgroup/internal/vector"
)

// minParallelItems is the input size below which scoring stays on one goroutine.
const minParallelItems = 64

// PairScorer produces a scored Pair for candidate index pairs of the given vectors.
type PairScorer interface {
	ScorePairs(ctx context.Context, vectors [][]float32) ([]models.Pair, error)
}

// CosineScorer scores every unordered pair by cosine similarity. Rows are sharded
// across Workers goroutines and merged before sorting.
type CosineScorer struct {
	// Workers is the number of scoring goroutines; <= 0 means GOMAXPROCS.
	Workers int
}

// NewCosineScorer returns an all-pairs cosine scorer using the given worker count.
func NewCosineScorer(workers int) *CosineScorer {
	return &CosineScorer{Workers: workers}
}

// ScorePairs returns all n(n-1)/2 pairs sorted by score descending, ties by (I, J).
func (s *CosineScorer) ScorePairs(ctx context.Context, vectors [][]float32) ([]models.Pair, error) {
	if err := CheckDimensions(vectors); err != nil {
		return nil, err
	}
	n := len(vectors)
	if n < 2 {
		return []models.Pair{}, nil
	}

	norms := make([]float64, n)
	for i, v := range vectors {
		norms[i] = vector.L2Norm(v)
	}

	workers := s.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if n < minParallelItems || workers == 1 {
		workers = 1
	}
	if workers > n-1 {
		workers = n - 1
	}

	shards := make([][]models.Pair, workers)
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		w := w
		g.Go(func() error {
			// round-robin rows: row i has n-1-i pairs, so striding balances the load
			var local []models.Pair
			for i := w; i < n-1; i += workers {
				if err := gctx.Err(); err != nil {
					return err
				}
				for j := i + 1; j < n; j++ {
					local = append(local, models.Pair{
						I:     i,
						J:     j,
						Score: vector.CosineWithNorms(vectors[i], vectors[j], norms[i], norms[j]),
					})
				}
			}
			shards[w] = local
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	pairs := make([]models.Pair, 0, n*(n-1)/2)
	for _, shard := range shards {
		pairs = append(pairs, shard...)
	}
	SortPairs(pairs)
	return pairs, nil
}

// CheckDimensions verifies all vectors have the length of the first one.
func CheckDimensions(vectors [][]float32) error {
	if len(vectors) == 0 {
		return nil
	}
	want := len(vectors[0])
	for i, v := range vectors[1:] {
		if len(v) != want {
			return &DimensionMismatchError{Index: i + 1, Got: len(v), Want: want}
		}
	}
	return nil
}

// SortPairs orders pairs by score descending, then by I and J ascending.
func SortPairs(pairs []models.Pair) {
	sort.Slice(pairs, func(a, b int) bool {
		pa, pb := pairs[a], pairs[b]
		if pa.Score != pb.Score {
			return pa.Score > pb.Score
		}
		if pa.I != pb.I {
			return pa.I < pb.I
		}
		return pa.J < pb.J
	})
}
