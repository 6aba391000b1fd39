package emfit

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Distribution is a parametric density over R^n that can be refit to
// weighted data. It is the only capability EM needs from a mixture
// component.
type Distribution interface {
	// Dim returns the dimension n of the sample space.
	Dim() int

	// Density returns the (non-negative) probability density at x.
	// Density panics if len(x) != Dim().
	Density(x []float64) float64

	// LikelihoodEstimate replaces the parameters of the receiver with the
	// weighted maximum-likelihood fit to the rows of x, where weights[i] is
	// the weight of row i. If the weights sum to zero the parameters are
	// left as they are and nil is returned. On error the receiver is
	// unchanged.
	LikelihoodEstimate(weights []float64, x mat.Matrix) error
}

// checkWeighted validates weighted samples against a distribution of
// dimension dim and returns the total weight.
func checkWeighted(dim int, weights []float64, x mat.Matrix) (float64, error) {
	r, c := x.Dims()
	if c != dim {
		return 0, fmt.Errorf("%w: samples have %d columns, distribution has dimension %d", ErrDimensionMismatch, c, dim)
	}
	if len(weights) != r {
		return 0, fmt.Errorf("%w: %d weights for %d samples", ErrDimensionMismatch, len(weights), r)
	}
	return floats.Sum(weights), nil
}

// weightedMean stores the weighted mean of each column of x into dst.
// col is scratch space of length equal to the number of rows of x.
func weightedMean(dst, col, weights []float64, x mat.Matrix) {
	for j := range dst {
		mat.Col(col, j, x)
		dst[j] = stat.Mean(col, weights)
	}
}
