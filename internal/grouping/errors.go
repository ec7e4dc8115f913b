package grouping

import (
	"errors"
	"fmt"
)

var (
	// ErrDimensionMismatch is returned when input vectors do not share one length.
	ErrDimensionMismatch = errors.New("dimension mismatch")
	// ErrInvalidThreshold is returned for a threshold outside [-1, 1].
	ErrInvalidThreshold = errors.New("invalid threshold")
	// ErrInvalidIndex is returned when an edge refers to a vertex that does not exist.
	// It signals a wiring bug between stages, not bad input.
	ErrInvalidIndex = errors.New("invalid index")
)

// DimensionMismatchError reports the first vector whose length differs from vector 0.
type DimensionMismatchError struct {
	Index int
	Got   int
	Want  int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("%v: vector %d has %d dimensions, expected %d", ErrDimensionMismatch, e.Index, e.Got, e.Want)
}

func (e *DimensionMismatchError) Unwrap() error { return ErrDimensionMismatch }

// InvalidThresholdError carries the rejected threshold.
type InvalidThresholdError struct {
	Threshold float64
}

func (e *InvalidThresholdError) Error() string {
	return fmt.Sprintf("%v: %v is outside [-1, 1]", ErrInvalidThreshold, e.Threshold)
}

func (e *InvalidThresholdError) Unwrap() error { return ErrInvalidThreshold }

// InvalidIndexError reports an edge endpoint outside [0, n).
type InvalidIndexError struct {
	Index int
	N     int
}

func (e *InvalidIndexError) Error() string {
	return fmt.Sprintf("%v: %d not in [0, %d)", ErrInvalidIndex, e.Index, e.N)
}

func (e *InvalidIndexError) Unwrap() error { return ErrInvalidIndex }
