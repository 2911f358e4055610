package register

import "github.com/pkg/errors"

// Registration error kinds. Entry-point validation and solver failures wrap
// one of these so callers can test with errors.Is.
var (
	// ErrDimensionMismatch means source and target dimensionality differ, or
	// is not 2 or 3.
	ErrDimensionMismatch = errors.New("source and target must both be 2D or both be 3D")

	// ErrPrecisionMismatch means source and target were built from different
	// numeric types.
	ErrPrecisionMismatch = errors.New("source and target numeric precision must match")

	// ErrInvalidParameter covers out-of-range configuration values.
	ErrInvalidParameter = errors.New("invalid registration parameter")

	// ErrNormalsRequire3D means a point-to-plane or normal-weighted fit was
	// requested on 2D data.
	ErrNormalsRequire3D = errors.New("point-to-plane and normal weighting require 3D point sets")

	// ErrInsufficientCorrespondences means too few correspondences reached
	// the solver, or the geometry they describe is degenerate.
	ErrInsufficientCorrespondences = errors.New("not enough well-posed correspondences to solve")
)
