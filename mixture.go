package emfit

import (
	"fmt"
)

// Mixture is a finite mixture of distributions: a density formed as the
// prior-weighted sum of its components. EM fits a Mixture in place.
type Mixture interface {
	// Len returns the number of components K.
	Len() int
	// Dim returns the dimension of the sample space.
	Dim() int
	// Density returns Σₖ prior[k]·component[k].Density(x).
	Density(x []float64) float64
	// WeightedDensity returns prior[k]·component[k].Density(x).
	WeightedDensity(k int, x []float64) float64
	// Dist returns component k. Refitting the returned value refits the
	// component held by the mixture.
	Dist(k int) Distribution
	// Prior returns the weight of component k.
	Prior(k int) float64
	// SetPrior sets the weight of component k.
	SetPrior(k int, p float64)
}

// priors is the prior vector shared by the mixture implementations.
type priors []float64

func uniformPriors(k int) priors {
	if k <= 0 {
		panic(ErrZeroComponents)
	}
	p := make(priors, k)
	for i := range p {
		p[i] = 1 / float64(k)
	}
	return p
}

// Prior returns the weight of component k.
func (p priors) Prior(k int) float64 {
	return p[k]
}

// SetPrior sets the weight of component k.
func (p priors) SetPrior(k int, v float64) {
	p[k] = v
}

// Priors copies the prior vector into dst. If dst is nil a new slice is
// allocated.
func (p priors) Priors(dst []float64) []float64 {
	if dst == nil {
		dst = make([]float64, len(p))
	}
	if len(dst) != len(p) {
		panic(badInputLength)
	}
	copy(dst, p)
	return dst
}

// MixtureModel is a mixture of K components that all have the same concrete
// type D. D is normally a pointer type such as *Gaussian, so that the
// components refit by EM are the ones stored in the model.
type MixtureModel[D Distribution] struct {
	priors
	comps []D
}

// NewMixtureModel returns a mixture of k components, each created by
// newDist, with uniform priors 1/k. All components must have the same
// dimension.
func NewMixtureModel[D Distribution](k int, newDist func() D) *MixtureModel[D] {
	p := uniformPriors(k)
	comps := make([]D, k)
	for i := range comps {
		comps[i] = newDist()
		if comps[i].Dim() != comps[0].Dim() {
			panic("emfit: components have different dimensions")
		}
	}
	return &MixtureModel[D]{priors: p, comps: comps}
}

// Len returns the number of components.
func (m *MixtureModel[D]) Len() int {
	return len(m.comps)
}

// Dim returns the dimension of the sample space.
func (m *MixtureModel[D]) Dim() int {
	return m.comps[0].Dim()
}

// Component returns component k.
func (m *MixtureModel[D]) Component(k int) D {
	if k < 0 || k >= len(m.comps) {
		panic(badComponent)
	}
	return m.comps[k]
}

// SetComponent replaces component k with d.
func (m *MixtureModel[D]) SetComponent(k int, d D) error {
	if k < 0 || k >= len(m.comps) {
		panic(badComponent)
	}
	if d.Dim() != m.Dim() {
		return fmt.Errorf("%w: component has dimension %d, mixture has dimension %d", ErrDimensionMismatch, d.Dim(), m.Dim())
	}
	m.comps[k] = d
	return nil
}

// Dist returns component k as a Distribution.
func (m *MixtureModel[D]) Dist(k int) Distribution {
	return m.Component(k)
}

// Density returns the mixture density at x.
func (m *MixtureModel[D]) Density(x []float64) float64 {
	var p float64
	for k, c := range m.comps {
		p += m.priors[k] * c.Density(x)
	}
	return p
}

// WeightedDensity returns the density of component k at x scaled by the
// prior of component k.
func (m *MixtureModel[D]) WeightedDensity(k int, x []float64) float64 {
	return m.priors[k] * m.Component(k).Density(x)
}

// GeneralMixtureModel is a mixture whose components may have different
// concrete types, for example a diagonal and a full-covariance Gaussian.
type GeneralMixtureModel struct {
	priors
	dim   int
	comps []Distribution
}

// NewGeneralMixtureModel returns a mixture of k components in dim
// dimensions with uniform priors 1/k. Every component starts as a standard
// normal Gaussian; use Set to change it.
func NewGeneralMixtureModel(k, dim int) *GeneralMixtureModel {
	p := uniformPriors(k)
	comps := make([]Distribution, k)
	for i := range comps {
		comps[i] = NewGaussian(dim)
	}
	return &GeneralMixtureModel{priors: p, dim: dim, comps: comps}
}

// Len returns the number of components.
func (m *GeneralMixtureModel) Len() int {
	return len(m.comps)
}

// Dim returns the dimension of the sample space.
func (m *GeneralMixtureModel) Dim() int {
	return m.dim
}

// Set replaces component k with d, which may be of any type that has the
// dimension of the mixture.
func (m *GeneralMixtureModel) Set(k int, d Distribution) error {
	if k < 0 || k >= len(m.comps) {
		panic(badComponent)
	}
	if d == nil {
		panic("emfit: nil distribution")
	}
	if d.Dim() != m.dim {
		return fmt.Errorf("%w: component has dimension %d, mixture has dimension %d", ErrDimensionMismatch, d.Dim(), m.dim)
	}
	m.comps[k] = d
	return nil
}

// Dist returns component k.
func (m *GeneralMixtureModel) Dist(k int) Distribution {
	if k < 0 || k >= len(m.comps) {
		panic(badComponent)
	}
	return m.comps[k]
}

// Density returns the mixture density at x.
func (m *GeneralMixtureModel) Density(x []float64) float64 {
	var p float64
	for k, c := range m.comps {
		p += m.priors[k] * c.Density(x)
	}
	return p
}

// WeightedDensity returns the density of component k at x scaled by the
// prior of component k.
func (m *GeneralMixtureModel) WeightedDensity(k int, x []float64) float64 {
	return m.priors[k] * m.Dist(k).Density(x)
}
