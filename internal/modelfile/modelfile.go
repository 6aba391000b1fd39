// Package modelfile describes Gaussian mixtures in YAML, for the command
// line tools to read models to sample from and to write learned models.
package modelfile

import (
	"errors"
	"fmt"
	"io"

	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"

	"github.com/btracey/emfit"
)

// ErrComponentKind is returned when a component sets both or neither of
// deviation and covariance, or a mixture holds a type that cannot be
// described.
var ErrComponentKind = errors.New("modelfile: component must have exactly one of deviation or covariance")

// Component is one Gaussian of a mixture. Exactly one of Deviation (a
// diagonal Gaussian) and Covariance (a full-covariance Gaussian) is set.
type Component struct {
	Prior      float64     `yaml:"prior"`
	Mean       []float64   `yaml:"mean,flow"`
	Deviation  []float64   `yaml:"deviation,flow,omitempty"`
	Covariance [][]float64 `yaml:"covariance,flow,omitempty"`
}

// Model is a mixture of Gaussians.
type Model struct {
	Components []Component `yaml:"components"`
}

// Reference returns the two component mixture used by default for sample
// generation.
func Reference() *Model {
	return &Model{Components: []Component{
		{Prior: 0.3, Mean: []float64{7, 9}, Deviation: []float64{2, 1}},
		{Prior: 0.7, Mean: []float64{-5, -5}, Deviation: []float64{1, 2}},
	}}
}

// Load decodes a model from r.
func Load(r io.Reader) (*Model, error) {
	var m Model
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("modelfile: %w", err)
	}
	return &m, nil
}

// Save encodes the model to w.
func (m *Model) Save(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("modelfile: %w", err)
	}
	return enc.Close()
}

// Build returns the mixture the model describes.
func (m *Model) Build() (*emfit.GeneralMixtureModel, error) {
	if len(m.Components) == 0 {
		return nil, emfit.ErrZeroComponents
	}
	dim := len(m.Components[0].Mean)
	if dim == 0 {
		return nil, fmt.Errorf("modelfile: component 0: %w: empty mean", emfit.ErrDimensionMismatch)
	}
	mix := emfit.NewGeneralMixtureModel(len(m.Components), dim)
	for k, c := range m.Components {
		d, err := c.distribution()
		if err != nil {
			return nil, fmt.Errorf("modelfile: component %d: %w", k, err)
		}
		if err := mix.Set(k, d); err != nil {
			return nil, fmt.Errorf("modelfile: component %d: %w", k, err)
		}
		mix.SetPrior(k, c.Prior)
	}
	return mix, nil
}

func (c Component) distribution() (emfit.Distribution, error) {
	switch {
	case c.Deviation != nil && c.Covariance == nil:
		return emfit.NewIndependentGaussianParams(c.Mean, c.Deviation)
	case c.Covariance != nil && c.Deviation == nil:
		n := len(c.Covariance)
		cov := mat.NewSymDense(n, nil)
		for i, row := range c.Covariance {
			if len(row) != n {
				return nil, fmt.Errorf("%w: covariance row %d has %d entries", emfit.ErrDimensionMismatch, i, len(row))
			}
			for j := i; j < n; j++ {
				cov.SetSym(i, j, row[j])
			}
		}
		return emfit.NewGaussianCov(c.Mean, cov)
	default:
		return nil, ErrComponentKind
	}
}

// FromMixture describes m, whose components must be *emfit.Gaussian or
// *emfit.IndependentGaussian.
func FromMixture(m emfit.Mixture) (*Model, error) {
	out := &Model{Components: make([]Component, m.Len())}
	for k := range out.Components {
		c := Component{Prior: m.Prior(k)}
		switch d := m.Dist(k).(type) {
		case *emfit.IndependentGaussian:
			c.Mean = append([]float64(nil), d.Mean...)
			c.Deviation = append([]float64(nil), d.Deviation...)
		case *emfit.Gaussian:
			c.Mean = d.Mean(nil)
			cov := d.Covariance(nil)
			n := cov.SymmetricDim()
			c.Covariance = make([][]float64, n)
			for i := range c.Covariance {
				c.Covariance[i] = make([]float64, n)
				for j := range c.Covariance[i] {
					c.Covariance[i][j] = cov.At(i, j)
				}
			}
		default:
			return nil, fmt.Errorf("modelfile: component %d has type %T: %w", k, d, ErrComponentKind)
		}
		out.Components[k] = c
	}
	return out, nil
}
