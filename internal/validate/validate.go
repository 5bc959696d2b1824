// Package validate checks a transposed matrix against its closed-form value.
//
// After n launches of the transpose-accumulate kernel starting from
// A[j*order+i] = order*j+i and B = 0, element B[j*order+i] holds
//
//	(i*order+j)*n + n*(n-1)/2
//
// The harness runs iterations+1 launches, which gives the expression used by
// Reference.
package validate

import (
	"fmt"
	"io"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Epsilon is the largest aggregate error that still validates.
const Epsilon = 1.0e-8

// Result is the outcome of a validation.
type Result struct {
	AbsErr  float64
	Epsilon float64
	Valid   bool
}

// Reference returns the expected value of B[j*order+i] after a run of the
// given number of measured iterations.
func Reference(i, j, order, iterations int) float64 {
	passes := float64(iterations + 1)
	return float64(i*order+j)*passes + passes*(float64(iterations)/2.0)
}

// AggregateError sums |B - reference| over every element of b.
func AggregateError(b []float64, order, iterations int) (float64, error) {
	if len(b) != order*order {
		return 0, fmt.Errorf("matrix has %d elements, want %d", len(b), order*order)
	}

	expected := make([]float64, order)
	var total float64
	for j := 0; j < order; j++ {
		for i := 0; i < order; i++ {
			expected[i] = Reference(i, j, order, iterations)
		}
		total += floats.Distance(b[j*order:(j+1)*order], expected, 1)
	}
	return total, nil
}

// Check validates b and reports the aggregate error against Epsilon. A NaN
// error never validates.
func Check(b []float64, order, iterations int) (Result, error) {
	absErr, err := AggregateError(b, order, iterations)
	if err != nil {
		return Result{}, err
	}
	return Result{
		AbsErr:  absErr,
		Epsilon: Epsilon,
		Valid:   absErr < Epsilon && !math.IsNaN(absErr),
	}, nil
}

// Dump writes "i j A B" for every element, row by row.
func Dump(w io.Writer, a, b *mat.Dense) error {
	rows, cols := a.Dims()
	if br, bc := b.Dims(); br != rows || bc != cols {
		return fmt.Errorf("dump: dimension mismatch %dx%d vs %dx%d", rows, cols, br, bc)
	}
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if _, err := fmt.Fprintf(w, "%d %d %f %f\n", i, j, a.At(i, j), b.At(i, j)); err != nil {
				return err
			}
		}
	}
	return nil
}
