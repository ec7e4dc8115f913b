package grouping

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/simgroup/internal/models"
)

// Result is the outcome of one grouping run.
type Result struct {
	Assignments []models.GroupAssignment `json:"assignments"`
	Groups      []models.Group           `json:"groups"`
	Stats       Stats                    `json:"stats"`
}

// Stats summarizes a run.
type Stats struct {
	Items     int     `json:"items"`
	Pairs     int     `json:"pairs"`
	Edges     int     `json:"edges"`
	Groups    int     `json:"groups"`
	Assigned  int     `json:"assigned"`
	Threshold float64 `json:"threshold"`
	ElapsedMS int64   `json:"elapsed_ms"`
}

// Engine wires scorer, filter, grouper and labeler into one computation.
type Engine struct {
	scorer  PairScorer
	labeler *Labeler
	logger  *zap.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithScorer replaces the all-pairs cosine scorer.
func WithScorer(s PairScorer) EngineOption {
	return func(e *Engine) { e.scorer = s }
}

// WithTokenGenerator sets the source of group IDs.
func WithTokenGenerator(g TokenGenerator) EngineOption {
	return func(e *Engine) { e.labeler = NewLabeler(g) }
}

// WithLogger sets a logger for stage timings.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// NewEngine returns an engine with a cosine scorer on GOMAXPROCS workers and UUID group IDs.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		scorer:  NewCosineScorer(0),
		labeler: NewLabeler(nil),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ComputeSimilarityGroups groups items whose vectors are transitively more similar than
// threshold. Items with no similar partner are absent from the result. Any error aborts the
// whole computation; no partial result is returned.
func (e *Engine) ComputeSimilarityGroups(ctx context.Context, items []models.Item, threshold float64) (*Result, error) {
	start := time.Now()
	if err := ValidateThreshold(threshold); err != nil {
		return nil, err
	}

	ids := make([]string, len(items))
	vectors := make([][]float32, len(items))
	for i, it := range items {
		ids[i] = it.ID
		vectors[i] = it.Vector
	}

	pairs, err := e.scorer.ScorePairs(ctx, vectors)
	if err != nil {
		return nil, fmt.Errorf("score pairs: %w", err)
	}
	e.logger.Debug("pairs scored", zap.Int("items", len(items)), zap.Int("pairs", len(pairs)),
		zap.Duration("elapsed", time.Since(start)))

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	edges, err := FilterPairs(pairs, threshold)
	if err != nil {
		return nil, err
	}

	components, err := GroupComponents(len(items), edges)
	if err != nil {
		return nil, fmt.Errorf("group components: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	assignments, groups, err := e.labeler.Label(ids, components)
	if err != nil {
		return nil, fmt.Errorf("label components: %w", err)
	}

	result := &Result{
		Assignments: assignments,
		Groups:      groups,
		Stats: Stats{
			Items:     len(items),
			Pairs:     len(pairs),
			Edges:     len(edges),
			Groups:    len(groups),
			Assigned:  len(assignments),
			Threshold: threshold,
			ElapsedMS: time.Since(start).Milliseconds(),
		},
	}
	e.logger.Debug("similarity groups computed",
		zap.Int("edges", len(edges)),
		zap.Int("groups", len(groups)),
		zap.Int("assigned", len(assignments)),
		zap.Duration("elapsed", time.Since(start)))
	return result, nil
}

// ComputeSimilarityGroups runs a default engine and returns only the assignments.
func ComputeSimilarityGroups(ctx context.Context, items []models.Item, threshold float64) ([]models.GroupAssignment, error) {
	res, err := NewEngine().ComputeSimilarityGroups(ctx, items, threshold)
	if err != nil {
		return nil, err
	}
	return res.Assignments, nil
}
