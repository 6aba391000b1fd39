package emfit

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// invSqrt2Pi is 1/sqrt(2π).
var invSqrt2Pi = 1 / math.Sqrt(2*math.Pi)

// IndependentGaussian is a multivariate normal distribution with a diagonal
// covariance matrix, so every axis is an independent univariate normal.
//
// Mean and Deviation may be read and assigned directly; they must have the
// same length, which is the dimension of the distribution.
type IndependentGaussian struct {
	Mean      []float64
	Deviation []float64
}

// NewIndependentGaussian returns a standard normal distribution in dim
// dimensions: zero mean and unit deviation on every axis.
func NewIndependentGaussian(dim int) *IndependentGaussian {
	if dim <= 0 {
		panic("emfit: non-positive dimension")
	}
	dev := make([]float64, dim)
	for i := range dev {
		dev[i] = 1
	}
	return &IndependentGaussian{
		Mean:      make([]float64, dim),
		Deviation: dev,
	}
}

// NewIndependentGaussianParams returns an IndependentGaussian with a copy of
// the given mean and per-axis standard deviations.
func NewIndependentGaussianParams(mean, deviation []float64) (*IndependentGaussian, error) {
	if len(mean) == 0 || len(mean) != len(deviation) {
		return nil, fmt.Errorf("%w: mean has length %d, deviation has length %d", ErrDimensionMismatch, len(mean), len(deviation))
	}
	return &IndependentGaussian{
		Mean:      append([]float64(nil), mean...),
		Deviation: append([]float64(nil), deviation...),
	}, nil
}

// Dim returns the dimension of the distribution.
func (g *IndependentGaussian) Dim() int {
	return len(g.Mean)
}

// Density returns the probability density at x.
func (g *IndependentGaussian) Density(x []float64) float64 {
	if len(x) != len(g.Mean) {
		panic(badInputLength)
	}
	p := 1.0
	var s float64
	for j, v := range x {
		d := v - g.Mean[j]
		sigma := g.Deviation[j]
		p *= invSqrt2Pi / sigma
		s -= d * d / (2 * sigma * sigma)
	}
	return p * math.Exp(s)
}

// LikelihoodEstimate sets the mean to the weighted mean of the rows of x and
// then the deviation of every axis to the weighted standard deviation about
// that new mean, normalized by the total weight. If the weighted samples do
// not vary along some axis, ErrSingularCovariance is returned and the
// distribution is unchanged.
func (g *IndependentGaussian) LikelihoodEstimate(weights []float64, x mat.Matrix) error {
	sum, err := checkWeighted(g.Dim(), weights, x)
	if err != nil {
		return err
	}
	if sum == 0 {
		return nil
	}
	r, _ := x.Dims()
	col := make([]float64, r)
	mean := make([]float64, g.Dim())
	weightedMean(mean, col, weights, x)

	dev := make([]float64, g.Dim())
	for j := range dev {
		mat.Col(col, j, x)
		var s2 float64
		for i, v := range col {
			d := v - mean[j]
			s2 += weights[i] * d * d
		}
		dev[j] = math.Sqrt(s2 / sum)
		if dev[j] == 0 {
			return fmt.Errorf("%w: zero deviation on axis %d", ErrSingularCovariance, j)
		}
	}
	g.Mean = mean
	g.Deviation = dev
	return nil
}

// Covariance returns the diagonal covariance matrix diag(σ²). If dst is nil
// a new matrix is allocated, otherwise the result is stored in dst.
func (g *IndependentGaussian) Covariance(dst *mat.SymDense) *mat.SymDense {
	n := g.Dim()
	if dst == nil {
		dst = mat.NewSymDense(n, nil)
	} else {
		dst.Reset()
		dst.ReuseAsSym(n)
	}
	for j, s := range g.Deviation {
		dst.SetSym(j, j, s*s)
	}
	return dst
}
