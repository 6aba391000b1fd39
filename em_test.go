package emfit_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/btracey/emfit"
)

// sampleMixture draws n samples from m into the rows of a new matrix.
func sampleMixture(t testing.TB, m emfit.Mixture, n int, seed uint64) *mat.Dense {
	gen, err := emfit.NewMixtureGenerator(m, rand.NewSource(seed))
	require.NoError(t, err)
	xs := mat.NewDense(n, m.Dim(), nil)
	for i := 0; i < n; i++ {
		gen.Rand(xs.RawRowView(i))
	}
	return xs
}

// matchLabels returns the permutation of the two learned components that
// puts the component nearest to (7, 9) first.
func matchLabels(means [][]float64) (int, int) {
	d0 := floats.Distance(means[0], []float64{7, 9}, 2)
	d1 := floats.Distance(means[1], []float64{7, 9}, 2)
	if d0 <= d1 {
		return 0, 1
	}
	return 1, 0
}

func TestExpectation(t *testing.T) {
	m := referenceMixture(t)
	em := emfit.NewEM(m)
	xs := mat.NewDense(3, 2, []float64{7, 9, -5, -5, 1, 2})
	a := mat.NewDense(2, 3, nil)
	em.Expectation(xs, a)
	for k := 0; k < 2; k++ {
		for i := 0; i < 3; i++ {
			assert.Equal(t, m.WeightedDensity(k, xs.RawRowView(i)), a.At(k, i))
		}
	}
	assert.Panics(t, func() { em.Expectation(xs, mat.NewDense(3, 2, nil)) })
}

func TestNormalize(t *testing.T) {
	a := mat.NewDense(3, 4, []float64{
		0.2, 0, 1e-300, 5,
		0.3, 0, 0, 5,
		0.5, 0, 0, 10,
	})
	em := emfit.NewEM(emfit.NewGeneralMixtureModel(3, 1))
	em.Normalize(a)
	for _, i := range []int{0, 2, 3} {
		assert.InDelta(t, 1, floats.Sum(mat.Col(nil, i, a)), 1e-9)
	}
	assert.Equal(t, []float64{0.25, 0.25, 0.5}, mat.Col(nil, 3, a))
	assert.Equal(t, []float64{1, 0, 0}, mat.Col(nil, 2, a))
	for k := 0; k < 3; k++ {
		assert.InDelta(t, 1.0/3, a.At(k, 1), 1e-15, "degenerate column gets an equal share")
	}
}

func TestNormalizeScaleByShare(t *testing.T) {
	a := mat.NewDense(2, 2, []float64{
		0, 1,
		0, 3,
	})
	em := emfit.NewEM(emfit.NewGeneralMixtureModel(2, 1))
	em.Policy = emfit.ScaleByShare
	em.Normalize(a)
	assert.Equal(t, []float64{0, 0}, mat.Col(nil, 0, a), "zero column stays zero")
	assert.Equal(t, []float64{0.25, 0.75}, mat.Col(nil, 1, a))
}

func TestMaximizationPriorSum(t *testing.T) {
	m := emfit.NewMixtureModel(3, func() *emfit.IndependentGaussian { return emfit.NewIndependentGaussian(2) })
	em := emfit.NewEM(m)
	xs := square()
	a := mat.NewDense(3, 4, []float64{
		0.1, 0.5, 0.2, 0.9,
		0.3, 0.1, 0.7, 0.05,
		0.2, 0.4, 0.3, 0.6,
	})
	var want float64
	for k := 0; k < 3; k++ {
		want += floats.Sum(a.RawRowView(k)) / 4
	}
	require.NoError(t, em.Maximization(xs, a))

	var got float64
	for k := 0; k < 3; k++ {
		assert.InDelta(t, floats.Sum(a.RawRowView(k))/4, m.Prior(k), 1e-15)
		got += m.Prior(k)
	}
	assert.InDelta(t, want, got, 1e-12)

	// Normalized responsibilities give priors summing to one.
	em.Normalize(a)
	require.NoError(t, em.Maximization(xs, a))
	assert.InDelta(t, 1, floats.Sum(m.Priors(nil)), 1e-12)
}

func TestMaximizationSingular(t *testing.T) {
	m := emfit.NewMixtureModel(2, func() *emfit.Gaussian { return emfit.NewGaussian(2) })
	em := emfit.NewEM(m)
	xs := mat.NewDense(2, 2, []float64{1, 1, 3, 3})
	a := mat.NewDense(2, 2, []float64{
		1, 0,
		0.5, 0.5,
	})
	err := em.Maximization(xs, a)
	require.ErrorIs(t, err, emfit.ErrSingularCovariance)
	assert.Contains(t, err.Error(), "component 0")
	assert.Equal(t, []float64{0.5, 0.5}, m.Priors(nil))
	assert.Equal(t, []float64{0, 0}, m.Component(0).Mean(nil))
}

func TestMaximizationSingularLaterComponent(t *testing.T) {
	m := emfit.NewMixtureModel(2, func() *emfit.IndependentGaussian { return emfit.NewIndependentGaussian(2) })
	em := emfit.NewEM(m)
	// Component 1 only sees the first two corners, which share y = 0.
	a := mat.NewDense(2, 4, []float64{
		0.25, 0.25, 0.25, 0.25,
		0.5, 0.5, 0, 0,
	})
	err := em.Maximization(square(), a)
	require.ErrorIs(t, err, emfit.ErrSingularCovariance)
	assert.Contains(t, err.Error(), "component 1")
	assert.Equal(t, []float64{0.5, 0.5}, m.Priors(nil))
	assert.Equal(t, []float64{1, 1}, m.Component(0).Mean, "earlier components keep their refit")
	assert.Equal(t, []float64{0, 0}, m.Component(1).Mean)
	assert.Equal(t, []float64{1, 1}, m.Component(1).Deviation)
}

func TestMaximizationShapeErrors(t *testing.T) {
	m := emfit.NewMixtureModel(2, func() *emfit.IndependentGaussian { return emfit.NewIndependentGaussian(2) })
	em := emfit.NewEM(m)
	a := mat.NewDense(2, 2, []float64{
		0.9, 0.9,
		0.1, 0.1,
	})

	err := em.Maximization(mat.NewDense(2, 3, nil), a)
	require.ErrorIs(t, err, emfit.ErrDimensionMismatch)
	err = em.Maximization(mat.NewDense(4, 2, nil), a)
	require.ErrorIs(t, err, emfit.ErrDimensionMismatch)
	err = em.Maximization(mat.NewDense(2, 2, nil), mat.NewDense(3, 2, nil))
	require.ErrorIs(t, err, emfit.ErrDimensionMismatch)

	assert.Equal(t, []float64{0.5, 0.5}, m.Priors(nil))
	assert.Equal(t, []float64{0, 0}, m.Component(0).Mean)
	assert.Equal(t, []float64{1, 1}, m.Component(0).Deviation)
}

func TestIterateInputErrors(t *testing.T) {
	m := emfit.NewMixtureModel(2, func() *emfit.IndependentGaussian { return emfit.NewIndependentGaussian(2) })
	em := emfit.NewEM(m)

	err := em.Iterate(mat.NewDense(3, 3, nil))
	require.ErrorIs(t, err, emfit.ErrDimensionMismatch)
	require.ErrorIs(t, em.Init(mat.NewDense(3, 1, nil)), emfit.ErrDimensionMismatch)
	require.ErrorIs(t, em.Iterate(&mat.Dense{}), emfit.ErrNoSamples)

	assert.Equal(t, []float64{0, 0}, m.Component(0).Mean)
	assert.Equal(t, 0.5, m.Prior(0))
}

func TestInitDeterministic(t *testing.T) {
	xs := sampleMixture(t, referenceMixture(t), 200, 3)
	fit := func() []float64 {
		m := emfit.NewMixtureModel(2, func() *emfit.IndependentGaussian { return emfit.NewIndependentGaussian(2) })
		em := emfit.NewEM(m)
		em.Src = rand.NewSource(11)
		require.NoError(t, em.Init(xs))
		assert.InDelta(t, 1, floats.Sum(m.Priors(nil)), 1e-12)
		return append(m.Priors(nil), m.Component(0).Mean...)
	}
	assert.Equal(t, fit(), fit())
}

func TestRoundTripIndependent(t *testing.T) {
	xs := sampleMixture(t, referenceMixture(t), 1000, 1)

	learned := emfit.NewMixtureModel(2, func() *emfit.IndependentGaussian { return emfit.NewIndependentGaussian(2) })
	em := emfit.NewEM(learned)
	em.Src = rand.NewSource(2)
	require.NoError(t, em.Init(xs))
	for i := 0; i < 100; i++ {
		require.NoError(t, em.Iterate(xs))
	}

	means := [][]float64{learned.Component(0).Mean, learned.Component(1).Mean}
	i0, i1 := matchLabels(means)
	assert.InDelta(t, 0.3, learned.Prior(i0), 0.05)
	assert.InDelta(t, 0.7, learned.Prior(i1), 0.05)
	assert.InDeltaSlice(t, []float64{7, 9}, means[i0], 0.5)
	assert.InDeltaSlice(t, []float64{-5, -5}, means[i1], 0.5)
	assert.InDeltaSlice(t, []float64{2, 1}, learned.Component(i0).Deviation, 0.3)
	assert.InDeltaSlice(t, []float64{1, 2}, learned.Component(i1).Deviation, 0.3)
}

func TestRoundTripFullCovariance(t *testing.T) {
	xs := sampleMixture(t, referenceMixture(t), 1000, 4)

	learned := emfit.NewMixtureModel(2, func() *emfit.Gaussian { return emfit.NewGaussian(2) })
	em := emfit.NewEM(learned)
	em.Src = rand.NewSource(5)
	require.NoError(t, em.Fit(xs, 100))

	means := [][]float64{learned.Component(0).Mean(nil), learned.Component(1).Mean(nil)}
	i0, i1 := matchLabels(means)
	assert.InDelta(t, 0.3, learned.Prior(i0), 0.05)
	assert.InDelta(t, 0.7, learned.Prior(i1), 0.05)
	assert.InDeltaSlice(t, []float64{7, 9}, means[i0], 0.5)
	assert.InDeltaSlice(t, []float64{-5, -5}, means[i1], 0.5)

	cov := learned.Component(i1).Covariance(nil)
	assert.InDelta(t, 1, cov.At(0, 0), 0.3)
	assert.InDelta(t, 4, cov.At(1, 1), 0.8)
	assert.InDelta(t, 0, cov.At(0, 1), 0.4)
}

func TestRoundTripHeterogeneous(t *testing.T) {
	xs := sampleMixture(t, referenceMixture(t), 1000, 6)

	learned := emfit.NewGeneralMixtureModel(2, 2)
	require.NoError(t, learned.Set(0, emfit.NewIndependentGaussian(2)))
	em := emfit.NewEM(learned)
	em.Src = rand.NewSource(7)
	require.NoError(t, em.Fit(xs, 100))

	means := [][]float64{
		learned.Dist(0).(*emfit.IndependentGaussian).Mean,
		learned.Dist(1).(*emfit.Gaussian).Mean(nil),
	}
	i0, i1 := matchLabels(means)
	assert.InDelta(t, 0.3, learned.Prior(i0), 0.05)
	assert.InDelta(t, 0.7, learned.Prior(i1), 0.05)
	assert.InDeltaSlice(t, []float64{7, 9}, means[i0], 0.5)
	assert.InDeltaSlice(t, []float64{-5, -5}, means[i1], 0.5)
}

func TestLogLikelihoodNonDecreasing(t *testing.T) {
	xs := sampleMixture(t, referenceMixture(t), 500, 8)
	learned := emfit.NewMixtureModel(2, func() *emfit.IndependentGaussian { return emfit.NewIndependentGaussian(2) })
	em := emfit.NewEM(learned)
	em.Src = rand.NewSource(9)
	require.NoError(t, em.Init(xs))

	prev := em.LogLikelihood(xs)
	for i := 0; i < 30; i++ {
		require.NoError(t, em.Iterate(xs))
		ll := em.LogLikelihood(xs)
		require.False(t, math.IsNaN(ll))
		assert.GreaterOrEqual(t, ll, prev-1e-8*math.Abs(prev), "iteration %d", i)
		prev = ll
	}
}

func TestFitLogsIterations(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	xs := sampleMixture(t, referenceMixture(t), 100, 10)
	learned := emfit.NewMixtureModel(2, func() *emfit.IndependentGaussian { return emfit.NewIndependentGaussian(2) })
	em := emfit.NewEM(learned)
	em.Src = rand.NewSource(1)
	em.Logger = zap.New(core)

	require.NoError(t, em.Fit(xs, 5))
	assert.Equal(t, 5, logs.FilterMessage("em iteration").Len())
	assert.Equal(t, 1, logs.FilterMessage("em finished").Len())
}
