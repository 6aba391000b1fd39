// Package emfit fits finite mixture distributions to data with the
// expectation-maximization algorithm, and draws samples from known mixtures.
package emfit

import (
	"fmt"
	"math"

	"go.uber.org/zap"
	"golang.org/x/exp/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// DegeneratePolicy decides what Normalize does with a sample to which every
// component assigns zero weighted density.
type DegeneratePolicy int

const (
	// EqualShare sets the responsibilities of the sample to 1/K, so the
	// sample contributes equally to every component.
	EqualShare DegeneratePolicy = iota
	// ScaleByShare divides the responsibilities of the sample by 1/K. Since
	// they are all zero the sample keeps zero responsibility everywhere and
	// does not contribute to the maximization step.
	ScaleByShare
)

// EM runs expectation-maximization steps on a mixture. The mixture is
// updated in place by every step. An EM must not be used concurrently, and
// no two EMs should share a Mixture.
type EM struct {
	// Mixture is the mixture being fit. Must not be nil.
	Mixture Mixture
	// Src specifies the source for random initialization. If nil, the default
	// in exp/rand is used.
	Src rand.Source
	// Policy sets how samples with zero density under every component are
	// normalized. The default is EqualShare.
	Policy DegeneratePolicy
	// Logger receives per-step debug records. If nil, nothing is logged.
	Logger *zap.Logger
}

// NewEM returns an EM bound to m.
func NewEM(m Mixture) *EM {
	return &EM{Mixture: m}
}

func (em *EM) logger() *zap.Logger {
	if em.Logger == nil {
		return zap.NewNop()
	}
	return em.Logger
}

// checkSamples verifies that xs holds at least one sample of the mixture's
// dimension, and returns the number of samples.
func (em *EM) checkSamples(xs mat.Matrix) (int, error) {
	if em.Mixture == nil {
		panic("em: mixture not set")
	}
	r, c := xs.Dims()
	if r == 0 {
		return 0, ErrNoSamples
	}
	if c != em.Mixture.Dim() {
		return 0, fmt.Errorf("%w: samples have %d columns, mixture has dimension %d", ErrDimensionMismatch, c, em.Mixture.Dim())
	}
	return r, nil
}

// Expectation stores into a the weighted density of every sample under every
// component: a[k][i] = prior[k]·density_k(xs[i]). a must be K×M where M is the
// number of rows of xs.
func (em *EM) Expectation(xs mat.Matrix, a *mat.Dense) {
	nComp := em.Mixture.Len()
	r, c := xs.Dims()
	if ra, ca := a.Dims(); ra != nComp || ca != r {
		panic("em: responsibility matrix has wrong shape")
	}
	x := make([]float64, c)
	for i := 0; i < r; i++ {
		mat.Row(x, i, xs)
		for k := 0; k < nComp; k++ {
			a.Set(k, i, em.Mixture.WeightedDensity(k, x))
		}
	}
}

// Normalize scales every column of a so it sums to one. Columns that sum to
// zero are handled according to em.Policy.
func (em *EM) Normalize(a *mat.Dense) {
	nComp, r := a.Dims()
	share := 1 / float64(nComp)
	for i := 0; i < r; i++ {
		var sum float64
		for k := 0; k < nComp; k++ {
			sum += a.At(k, i)
		}
		if sum != 0 {
			for k := 0; k < nComp; k++ {
				a.Set(k, i, a.At(k, i)/sum)
			}
			continue
		}
		for k := 0; k < nComp; k++ {
			switch em.Policy {
			case ScaleByShare:
				a.Set(k, i, a.At(k, i)/share)
			default:
				a.Set(k, i, share)
			}
		}
	}
}

// Maximization sets the prior of every component to the mean of its row of a,
// and refits the component to the samples weighted by that row.
//
// The shapes of xs and a are checked before anything is changed. Components
// are refit in order and the priors are only assigned once every refit has
// succeeded. If component k fails to refit, the error is returned, the priors
// and components k and later are unchanged, and components before k keep
// their new parameters.
func (em *EM) Maximization(xs mat.Matrix, a *mat.Dense) error {
	r, err := em.checkSamples(xs)
	if err != nil {
		return err
	}
	nComp := em.Mixture.Len()
	if ra, ca := a.Dims(); ra != nComp || ca != r {
		return fmt.Errorf("%w: responsibility matrix is %d×%d, want %d×%d", ErrDimensionMismatch, ra, ca, nComp, r)
	}
	prior := make([]float64, nComp)
	for k := 0; k < nComp; k++ {
		w := a.RawRowView(k)
		prior[k] = floats.Sum(w) / float64(len(w))
		if err := em.Mixture.Dist(k).LikelihoodEstimate(w, xs); err != nil {
			return fmt.Errorf("em: component %d: %w", k, err)
		}
	}
	for k, p := range prior {
		em.Mixture.SetPrior(k, p)
	}
	return nil
}

// Iterate performs one expectation-maximization step on the samples in the
// rows of xs.
func (em *EM) Iterate(xs mat.Matrix) error {
	r, err := em.checkSamples(xs)
	if err != nil {
		return err
	}
	a := mat.NewDense(em.Mixture.Len(), r, nil)
	em.Expectation(xs, a)
	em.Normalize(a)
	return em.Maximization(xs, a)
}

// Init seeds the mixture parameters from random responsibilities: every
// entry is drawn uniformly from [0, 1), the columns are normalized, and a
// maximization step is run.
func (em *EM) Init(xs mat.Matrix) error {
	r, err := em.checkSamples(xs)
	if err != nil {
		return err
	}
	rnd := rand.Float64
	if em.Src != nil {
		rnd = rand.New(em.Src).Float64
	}
	nComp := em.Mixture.Len()
	a := mat.NewDense(nComp, r, nil)
	for k := 0; k < nComp; k++ {
		for i := 0; i < r; i++ {
			a.Set(k, i, rnd())
		}
	}
	em.Normalize(a)
	return em.Maximization(xs, a)
}

// Fit initializes the mixture from xs with Init and then runs iterations
// expectation-maximization steps.
func (em *EM) Fit(xs mat.Matrix, iterations int) error {
	log := em.logger()
	if err := em.Init(xs); err != nil {
		return err
	}
	for iter := 0; iter < iterations; iter++ {
		if err := em.Iterate(xs); err != nil {
			return fmt.Errorf("em: iteration %d: %w", iter, err)
		}
		if ce := log.Check(zap.DebugLevel, "em iteration"); ce != nil {
			ce.Write(
				zap.Int("iter", iter),
				zap.Float64s("priors", em.priors()),
				zap.Float64("logLikelihood", em.LogLikelihood(xs)),
			)
		}
	}
	log.Debug("em finished",
		zap.Int("iterations", iterations),
		zap.Float64s("priors", em.priors()),
	)
	return nil
}

// LogLikelihood returns the log-likelihood of the samples in the rows of xs
// under the current mixture.
func (em *EM) LogLikelihood(xs mat.Matrix) float64 {
	r, c := xs.Dims()
	x := make([]float64, c)
	var ll float64
	for i := 0; i < r; i++ {
		mat.Row(x, i, xs)
		ll += math.Log(em.Mixture.Density(x))
	}
	return ll
}

func (em *EM) priors() []float64 {
	p := make([]float64, em.Mixture.Len())
	for k := range p {
		p[k] = em.Mixture.Prior(k)
	}
	return p
}
