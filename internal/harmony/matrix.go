package harmony

import (
	"errors"
	"fmt"
	"math"
)

// Matrix maps transition keys to their probability across a corpus.
type Matrix map[string]float64

var ErrInvalidMatrix = errors.New("invalid transition matrix")

const matrixSumTolerance = 1e-6

// BuildMatrix merges per-file counts and normalises them into probabilities.
func BuildMatrix(counts ...Transitions) Matrix {
	merged := make(Transitions)
	for _, c := range counts {
		merged.Merge(c)
	}
	return MatrixFromCounts(merged)
}

// MatrixFromCounts normalises counts into probabilities. No counts yield an empty matrix.
func MatrixFromCounts(t Transitions) Matrix {
	m := make(Matrix, len(t))
	total := t.Total()
	if total == 0 {
		return m
	}
	for k, c := range t {
		if c > 0 {
			m[k] = float64(c) / float64(total)
		}
	}
	return m
}

// Sum is the total probability mass.
func (m Matrix) Sum() float64 {
	var s float64
	for _, p := range m {
		s += p
	}
	return s
}

// Validate checks that probabilities lie in (0, 1] and sum to one.
func (m Matrix) Validate() error {
	if len(m) == 0 {
		return fmt.Errorf("%w: no transitions", ErrInvalidMatrix)
	}
	for k, p := range m {
		if math.IsNaN(p) || p <= 0 || p > 1 {
			return fmt.Errorf("%w: probability %v for %s", ErrInvalidMatrix, p, k)
		}
	}
	if sum := m.Sum(); math.Abs(sum-1) > matrixSumTolerance {
		return fmt.Errorf("%w: probabilities sum to %v", ErrInvalidMatrix, sum)
	}
	return nil
}
