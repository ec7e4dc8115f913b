package grouping

import (
	"math"

	"github.com/hyperjump/simgroup/internal/models"
)

// DefaultThreshold is the similarity above which two items are considered the same entity.
const DefaultThreshold = 0.65

// ValidateThreshold returns an *InvalidThresholdError unless t is in [-1, 1].
func ValidateThreshold(t float64) error {
	if math.IsNaN(t) || t < -1 || t > 1 {
		return &InvalidThresholdError{Threshold: t}
	}
	return nil
}

// FilterPairs returns the pairs whose score is strictly greater than threshold,
// preserving their order. A pair scoring exactly threshold is dropped.
func FilterPairs(pairs []models.Pair, threshold float64) ([]models.Pair, error) {
	if err := ValidateThreshold(threshold); err != nil {
		return nil, err
	}
	kept := make([]models.Pair, 0)
	for _, p := range pairs {
		if p.Score > threshold {
			kept = append(kept, p)
		}
	}
	return kept, nil
}
