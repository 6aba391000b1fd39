package emfit

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var logTwoPi = math.Log(2 * math.Pi)

// Gaussian is a multivariate normal distribution with a full covariance
// matrix.
//
// The distribution stores the inverse of the covariance matrix together with
// the normalization constant (2π)^(-n/2)·sqrt(det Σ⁻¹). The two are only ever
// set together, through SetInvCovariance or SetCovariance.
type Gaussian struct {
	dim    int
	mean   []float64
	invCov *mat.SymDense
	norm   float64

	// diff is scratch space for Density.
	diff []float64
}

// NewGaussian returns a standard normal distribution in dim dimensions:
// zero mean and identity covariance.
func NewGaussian(dim int) *Gaussian {
	if dim <= 0 {
		panic("emfit: non-positive dimension")
	}
	inv := mat.NewSymDense(dim, nil)
	for i := 0; i < dim; i++ {
		inv.SetSym(i, i, 1)
	}
	return &Gaussian{
		dim:    dim,
		mean:   make([]float64, dim),
		invCov: inv,
		norm:   math.Exp(-0.5 * float64(dim) * logTwoPi),
		diff:   make([]float64, dim),
	}
}

// NewGaussianCov returns a Gaussian with the given mean and covariance
// matrix. ErrSingularCovariance is returned if cov is not positive definite.
func NewGaussianCov(mean []float64, cov mat.Symmetric) (*Gaussian, error) {
	g := NewGaussian(max(len(mean), 1))
	if err := g.SetMean(mean); err != nil {
		return nil, err
	}
	if err := g.SetCovariance(cov); err != nil {
		return nil, err
	}
	return g, nil
}

// NewGaussianInvCov returns a Gaussian with the given mean and inverse
// covariance matrix. ErrSingularCovariance is returned if inv is not
// positive definite.
func NewGaussianInvCov(mean []float64, inv mat.Symmetric) (*Gaussian, error) {
	g := NewGaussian(max(len(mean), 1))
	if err := g.SetMean(mean); err != nil {
		return nil, err
	}
	if err := g.SetInvCovariance(inv); err != nil {
		return nil, err
	}
	return g, nil
}

// Dim returns the dimension of the distribution.
func (g *Gaussian) Dim() int {
	return g.dim
}

// Mean returns the mean of the distribution. If dst is nil a new slice is
// allocated, otherwise the mean is copied into dst.
func (g *Gaussian) Mean(dst []float64) []float64 {
	if dst == nil {
		dst = make([]float64, g.dim)
	}
	if len(dst) != g.dim {
		panic(badInputLength)
	}
	copy(dst, g.mean)
	return dst
}

// SetMean sets the mean of the distribution to a copy of mean.
func (g *Gaussian) SetMean(mean []float64) error {
	if len(mean) != g.dim {
		return fmt.Errorf("%w: mean has length %d, distribution has dimension %d", ErrDimensionMismatch, len(mean), g.dim)
	}
	copy(g.mean, mean)
	return nil
}

// InvCovariance returns the inverse covariance matrix. If dst is nil a new
// matrix is allocated, otherwise the result is stored in dst.
func (g *Gaussian) InvCovariance(dst *mat.SymDense) *mat.SymDense {
	if dst == nil {
		dst = mat.NewSymDense(g.dim, nil)
	}
	dst.CopySym(g.invCov)
	return dst
}

// Covariance returns the covariance matrix, the inverse of the stored
// inverse covariance. If dst is nil a new matrix is allocated, otherwise the
// result is stored in dst.
func (g *Gaussian) Covariance(dst *mat.SymDense) *mat.SymDense {
	var chol mat.Cholesky
	if ok := chol.Factorize(g.invCov); !ok {
		// SetInvCovariance only accepts positive definite matrices.
		panic("emfit: stored inverse covariance is not positive definite")
	}
	if dst == nil {
		dst = mat.NewSymDense(g.dim, nil)
	}
	if err := chol.InverseTo(dst); err != nil {
		panic(err)
	}
	return dst
}

// Normalization returns the cached normalization constant
// (2π)^(-n/2)·sqrt(det Σ⁻¹).
func (g *Gaussian) Normalization() float64 {
	return g.norm
}

// SetInvCovariance sets the inverse covariance matrix to a copy of inv and
// recomputes the normalization constant. ErrSingularCovariance is returned,
// and the distribution left unchanged, if inv is not positive definite.
func (g *Gaussian) SetInvCovariance(inv mat.Symmetric) error {
	if n := inv.SymmetricDim(); n != g.dim {
		return fmt.Errorf("%w: matrix is %d×%d, distribution has dimension %d", ErrDimensionMismatch, n, n, g.dim)
	}
	var chol mat.Cholesky
	if ok := chol.Factorize(inv); !ok {
		return ErrSingularCovariance
	}
	g.invCov.CopySym(inv)
	g.norm = math.Exp(-0.5*float64(g.dim)*logTwoPi + 0.5*chol.LogDet())
	return nil
}

// SetCovariance sets the inverse covariance matrix to the inverse of cov and
// recomputes the normalization constant. ErrSingularCovariance is returned,
// and the distribution left unchanged, if cov is not positive definite.
func (g *Gaussian) SetCovariance(cov mat.Symmetric) error {
	if n := cov.SymmetricDim(); n != g.dim {
		return fmt.Errorf("%w: matrix is %d×%d, distribution has dimension %d", ErrDimensionMismatch, n, n, g.dim)
	}
	var chol mat.Cholesky
	if ok := chol.Factorize(cov); !ok {
		return ErrSingularCovariance
	}
	var inv mat.SymDense
	if err := chol.InverseTo(&inv); err != nil {
		return fmt.Errorf("%w: %v", ErrSingularCovariance, err)
	}
	// det Σ⁻¹ = 1/det Σ.
	g.invCov.CopySym(&inv)
	g.norm = math.Exp(-0.5*float64(g.dim)*logTwoPi - 0.5*chol.LogDet())
	return nil
}

// Density returns the probability density at x.
func (g *Gaussian) Density(x []float64) float64 {
	if len(x) != g.dim {
		panic(badInputLength)
	}
	floats.SubTo(g.diff, x, g.mean)
	d := mat.NewVecDense(g.dim, g.diff)
	return g.norm * math.Exp(-0.5*mat.Inner(d, g.invCov, d))
}

// LikelihoodEstimate sets the mean to the weighted mean of the rows of x and
// the covariance to the weighted scatter about that mean, normalized by the
// total weight. If the resulting covariance is singular
// ErrSingularCovariance is returned and the distribution is unchanged.
func (g *Gaussian) LikelihoodEstimate(weights []float64, x mat.Matrix) error {
	sum, err := checkWeighted(g.dim, weights, x)
	if err != nil {
		return err
	}
	if sum == 0 {
		return nil
	}
	r, _ := x.Dims()
	col := make([]float64, r)
	mean := make([]float64, g.dim)
	weightedMean(mean, col, weights, x)

	// Rows of xt are the centered sample coordinates scaled by sqrt(w), so
	// xt·xtᵀ is the weighted scatter matrix.
	xt := mat.NewDense(g.dim, r, nil)
	for j := 0; j < g.dim; j++ {
		v := xt.RawRowView(j)
		mat.Col(v, j, x)
		for i := range v {
			w := weights[i]
			if w < 0 {
				panic("emfit: negative weight")
			}
			v[i] = (v[i] - mean[j]) * math.Sqrt(w)
		}
	}
	cov := mat.NewSymDense(g.dim, nil)
	cov.SymOuterK(1/sum, xt)

	if err := g.SetCovariance(cov); err != nil {
		return err
	}
	copy(g.mean, mean)
	return nil
}
