package register

import (
	"math/rand"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/alignkit/alignkit/pointset"
)

// default values for alignment configs.
const (
	// single nearest neighbor; classic ICP.
	defaultK = 1

	// non-positive sigma means adaptive: use the k-th neighbor distance.
	defaultSigma = -1.

	// keep every correspondence.
	defaultOutlierProportion = 0.

	// iteration cap for the iterative fit.
	defaultMaxIterations = 100

	// points subsampled per iteration; 0 means use all.
	defaultNSamples = 1000

	// stop once the smoothed relative improvement falls below this.
	defaultMinRelativeImprovement = 1e-6

	// EMA smoothing factor for the relative improvement signal.
	defaultEMAAlpha = 0.3

	// seed for the default subsampling generator; fixed so runs are
	// reproducible unless the caller injects their own.
	defaultRandomSeed = 1
)

// KNNConfig configures a single soft-correspondence alignment step.
type KNNConfig struct {
	// K is the number of nearest neighbors per source point. 1 is classic
	// ICP; larger values build Gaussian-weighted soft correspondences.
	K int

	// Sigma is the Gaussian kernel width. Non-positive selects adaptive
	// scaling from the k-th neighbor distance.
	Sigma float64

	// OutlierProportion in [0,1) is the fraction of worst correspondences
	// dropped before solving. 0 disables rejection.
	OutlierProportion float64
}

// NewKNNConfig returns a config with default values.
func NewKNNConfig() KNNConfig {
	return KNNConfig{
		K:                 defaultK,
		Sigma:             defaultSigma,
		OutlierProportion: defaultOutlierProportion,
	}
}

// ICPConfig configures the iterative alignment loop.
type ICPConfig struct {
	KNNConfig

	// MaxIterations caps the loop; must be at least 1.
	MaxIterations int

	// NSamples is how many source points are subsampled per iteration
	// without replacement. 0 uses every point.
	NSamples int

	// MinRelativeImprovement is the convergence threshold on the smoothed
	// relative error improvement.
	MinRelativeImprovement float64

	// EMAAlpha in (0,1] weighs the newest relative improvement in the
	// exponential moving average.
	EMAAlpha float64

	// Rand drives the per-iteration subsampling. Nil gets a fixed-seed
	// generator so alignment runs are reproducible by default.
	Rand *rand.Rand
}

// NewICPConfig returns a config with default values.
func NewICPConfig() ICPConfig {
	return ICPConfig{
		KNNConfig:              NewKNNConfig(),
		MaxIterations:          defaultMaxIterations,
		NSamples:               defaultNSamples,
		MinRelativeImprovement: defaultMinRelativeImprovement,
		EMAAlpha:               defaultEMAAlpha,
	}
}

func (cfg *KNNConfig) validate() error {
	var err error
	if cfg.K < 1 {
		err = multierr.Combine(err, errors.Wrapf(ErrInvalidParameter, "k must be at least 1, got %d", cfg.K))
	}
	if cfg.OutlierProportion < 0 || cfg.OutlierProportion >= 1 {
		err = multierr.Combine(err,
			errors.Wrapf(ErrInvalidParameter, "outlier proportion must be in [0,1), got %v", cfg.OutlierProportion))
	}
	return err
}

func (cfg *ICPConfig) validate() error {
	err := cfg.KNNConfig.validate()
	if cfg.MaxIterations < 1 {
		err = multierr.Combine(err,
			errors.Wrapf(ErrInvalidParameter, "max iterations must be at least 1, got %d", cfg.MaxIterations))
	}
	if cfg.NSamples < 0 {
		err = multierr.Combine(err,
			errors.Wrapf(ErrInvalidParameter, "sample count must be non-negative, got %d", cfg.NSamples))
	}
	if cfg.MinRelativeImprovement < 0 {
		err = multierr.Combine(err,
			errors.Wrapf(ErrInvalidParameter, "min relative improvement must be non-negative, got %v", cfg.MinRelativeImprovement))
	}
	if cfg.EMAAlpha <= 0 || cfg.EMAAlpha > 1 {
		err = multierr.Combine(err,
			errors.Wrapf(ErrInvalidParameter, "ema alpha must be in (0,1], got %v", cfg.EMAAlpha))
	}
	return err
}

// validatePair checks the invariants shared by every fit entry point. It runs
// before any computation; no partial work happens on invalid input.
func validatePair(source, target *pointset.PointSet) error {
	if source.Dims() != target.Dims() {
		return errors.Wrapf(ErrDimensionMismatch, "source is %dD, target is %dD", source.Dims(), target.Dims())
	}
	if source.Precision() != target.Precision() {
		return errors.Wrapf(ErrPrecisionMismatch, "source is %s, target is %s", source.Precision(), target.Precision())
	}
	if (source.HasNormals() || target.HasNormals()) && source.Dims() != 3 {
		return ErrNormalsRequire3D
	}
	return nil
}
