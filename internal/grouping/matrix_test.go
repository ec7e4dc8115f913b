package grouping

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/hyperjump/simgroup/internal/models"
)

func TestSimilarityMatrix(t *testing.T) {
	m, err := SimilarityMatrix(3, []models.Pair{{I: 0, J: 2, Score: 0.8}, {I: 0, J: 1, Score: -0.2}})
	if err != nil {
		t.Fatalf("SimilarityMatrix: %v", err)
	}
	want := [][]float64{
		{1, -0.2, 0.8},
		{-0.2, 1, 0},
		{0.8, 0, 1},
	}
	if !reflect.DeepEqual(m, want) {
		t.Errorf("SimilarityMatrix() = %v, want %v", m, want)
	}

	if _, err := SimilarityMatrix(2, []models.Pair{{I: 0, J: 2}}); !errors.Is(err, ErrInvalidIndex) {
		t.Errorf("out-of-range pair: error = %v, want ErrInvalidIndex", err)
	}
}

func TestEngine_Matrix(t *testing.T) {
	items := []models.Item{
		{ID: "a", Vector: []float32{1, 0}},
		{ID: "b", Vector: []float32{1, 1}},
		{ID: "c", Vector: []float32{0, 1}},
	}
	m, err := NewEngine().Matrix(context.Background(), items)
	if err != nil {
		t.Fatalf("Matrix: %v", err)
	}
	if len(m) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(m))
	}
	for i := range m {
		if m[i][i] != 1 {
			t.Errorf("diagonal m[%d][%d] = %v, want 1", i, i, m[i][i])
		}
		for j := range m {
			if m[i][j] != m[j][i] {
				t.Errorf("matrix not symmetric at (%d, %d): %v vs %v", i, j, m[i][j], m[j][i])
			}
		}
	}
	if math.Abs(m[0][1]-1/math.Sqrt2) > 1e-6 || m[0][2] != 0 {
		t.Errorf("unexpected scores: %v", m)
	}

	empty, err := NewEngine().Matrix(context.Background(), nil)
	if err != nil || len(empty) != 0 {
		t.Errorf("empty input: got %v, %v", empty, err)
	}

	_, err = NewEngine().Matrix(context.Background(), []models.Item{
		{ID: "a", Vector: []float32{1}},
		{ID: "b", Vector: []float32{1, 0}},
	})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("mismatched dimensions: error = %v, want ErrDimensionMismatch", err)
	}
}
