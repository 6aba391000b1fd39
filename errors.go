package emfit

import "errors"

// Errors returned by the package. Callers should match them with errors.Is;
// returned errors may wrap them with the component index or operation.
var (
	// ErrDimensionMismatch is returned when a sample, weight vector or
	// parameter does not have the length the receiver was built with.
	ErrDimensionMismatch = errors.New("emfit: dimension mismatch")

	// ErrSingularCovariance is returned when a covariance (or inverse
	// covariance) matrix is not symmetric positive definite, so it cannot
	// be inverted or used as a Gaussian parameter.
	ErrSingularCovariance = errors.New("emfit: covariance matrix is not positive definite")

	// ErrNoGenerator is returned by NewGenerator for a type it cannot sample.
	ErrNoGenerator = errors.New("emfit: no generator for distribution type")

	// ErrZeroComponents is returned when a mixture would have no components.
	ErrZeroComponents = errors.New("emfit: mixture has no components")

	// ErrNoSamples is returned when EM is run on an empty sample set.
	ErrNoSamples = errors.New("emfit: no samples")
)

const (
	badInputLength = "emfit: input slice length mismatch"
	badComponent   = "emfit: component index out of range"
)
