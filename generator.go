package emfit

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"

	"gonum.org/v1/gonum/mat"
)

// Generator draws random samples.
type Generator interface {
	// Rand returns a random sample. If dst is not nil, the sample is stored
	// in dst and dst is returned; otherwise a new slice is allocated.
	Rand(dst []float64) []float64
}

func uniformSource(src rand.Source) func() float64 {
	if src == nil {
		return rand.Float64
	}
	return rand.New(src).Float64
}

// NormalGenerator draws standard normal values with the polar method. Every
// accepted point yields two values; the second is kept for the next call.
type NormalGenerator struct {
	rnd      func() float64
	hasValue bool
	value    float64
}

// NewNormalGenerator returns a NormalGenerator drawing uniform values from
// src. If src is nil, the default in exp/rand is used.
func NewNormalGenerator(src rand.Source) *NormalGenerator {
	return &NormalGenerator{rnd: uniformSource(src)}
}

// Next returns a standard normal value.
func (n *NormalGenerator) Next() float64 {
	if n.hasValue {
		n.hasValue = false
		return n.value
	}
	var x, y, s float64
	for {
		x = 2*n.rnd() - 1
		y = 2*n.rnd() - 1
		s = x*x + y*y
		if s <= 1 && s != 0 {
			break
		}
	}
	f := math.Sqrt(-2 * math.Log(s) / s)
	n.value = x * f
	n.hasValue = true
	return y * f
}

// GaussianGenerator draws samples from a multivariate normal distribution by
// transforming standard normal vectors with V·sqrt(Λ), where V and Λ are the
// eigenvectors and eigenvalues of the covariance matrix.
type GaussianGenerator struct {
	mean      []float64
	transform *mat.Dense
	normal    *NormalGenerator
	z         []float64
}

// NewGaussianGenerator returns a generator for the normal distribution with
// the given mean and covariance. Eigenvalues that come out slightly negative
// from rounding are treated as zero; ErrSingularCovariance is returned if the
// eigendecomposition fails or an eigenvalue is clearly negative.
func NewGaussianGenerator(mean []float64, cov mat.Symmetric, src rand.Source) (*GaussianGenerator, error) {
	n := cov.SymmetricDim()
	if len(mean) != n {
		return nil, fmt.Errorf("%w: mean has length %d, covariance is %d×%d", ErrDimensionMismatch, len(mean), n, n)
	}
	var eig mat.EigenSym
	if ok := eig.Factorize(cov, true); !ok {
		return nil, fmt.Errorf("%w: eigendecomposition failed", ErrSingularCovariance)
	}
	vals := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	tol := 1e-12 * math.Max(1, mat.Norm(cov, math.Inf(1)))
	scale := make([]float64, n)
	for i, v := range vals {
		if v < -tol {
			return nil, fmt.Errorf("%w: negative eigenvalue %v", ErrSingularCovariance, v)
		}
		scale[i] = math.Sqrt(math.Max(v, 0))
	}
	transform := mat.NewDense(n, n, nil)
	transform.Mul(&vecs, mat.NewDiagDense(n, scale))

	return &GaussianGenerator{
		mean:      append([]float64(nil), mean...),
		transform: transform,
		normal:    NewNormalGenerator(src),
		z:         make([]float64, n),
	}, nil
}

// GaussianGeneratorFrom returns a generator for g.
func GaussianGeneratorFrom(g *Gaussian, src rand.Source) (*GaussianGenerator, error) {
	return NewGaussianGenerator(g.Mean(nil), g.Covariance(nil), src)
}

// IndependentGaussianGeneratorFrom returns a generator for g.
func IndependentGaussianGeneratorFrom(g *IndependentGaussian, src rand.Source) (*GaussianGenerator, error) {
	return NewGaussianGenerator(g.Mean, g.Covariance(nil), src)
}

// Rand returns a random sample from the distribution.
func (g *GaussianGenerator) Rand(dst []float64) []float64 {
	n := len(g.mean)
	if dst == nil {
		dst = make([]float64, n)
	}
	if len(dst) != n {
		panic(badInputLength)
	}
	for i := range g.z {
		g.z[i] = g.normal.Next()
	}
	out := mat.NewVecDense(n, dst)
	out.MulVec(g.transform, mat.NewVecDense(n, g.z))
	out.AddVec(out, mat.NewVecDense(n, g.mean))
	return dst
}

// MixtureGenerator draws samples from a mixture: a component is chosen with
// probability equal to its prior, and the sample is drawn from it.
type MixtureGenerator struct {
	prior []float64
	gens  []Generator
	rnd   func() float64
}

// NewMixtureGenerator returns a generator for m. Every component of m must be
// a type NewGenerator accepts. The priors and component parameters are copied,
// so later changes to m do not affect the generator.
func NewMixtureGenerator(m Mixture, src rand.Source) (*MixtureGenerator, error) {
	nComp := m.Len()
	if nComp == 0 {
		return nil, ErrZeroComponents
	}
	mg := &MixtureGenerator{
		prior: make([]float64, nComp),
		gens:  make([]Generator, nComp),
		rnd:   uniformSource(src),
	}
	for k := 0; k < nComp; k++ {
		mg.prior[k] = m.Prior(k)
		gen, err := NewGenerator(m.Dist(k), src)
		if err != nil {
			return nil, fmt.Errorf("component %d: %w", k, err)
		}
		mg.gens[k] = gen
	}
	return mg, nil
}

// Pick returns the index of a component chosen at random according to the
// priors. If rounding leaves the cumulative prior below the drawn value, the
// last component is returned.
func (mg *MixtureGenerator) Pick() int {
	p := mg.rnd()
	var sum float64
	for k, w := range mg.prior {
		sum += w
		if sum >= p {
			return k
		}
	}
	return len(mg.prior) - 1
}

// Rand returns a random sample from the mixture.
func (mg *MixtureGenerator) Rand(dst []float64) []float64 {
	return mg.gens[mg.Pick()].Rand(dst)
}

// NewGenerator returns a generator for d, which must be a *Gaussian, an
// *IndependentGaussian or a Mixture of those. ErrNoGenerator is returned for
// any other type.
func NewGenerator(d any, src rand.Source) (Generator, error) {
	switch d := d.(type) {
	case *Gaussian:
		return GaussianGeneratorFrom(d, src)
	case *IndependentGaussian:
		return IndependentGaussianGeneratorFrom(d, src)
	case Mixture:
		return NewMixtureGenerator(d, src)
	default:
		return nil, fmt.Errorf("%w: %T", ErrNoGenerator, d)
	}
}
