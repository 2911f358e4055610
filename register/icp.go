package register

import (
	"context"
	"math/rand"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"

	"github.com/alignkit/alignkit/pointset"
	"github.com/alignkit/alignkit/spatialmath"
	"github.com/alignkit/alignkit/utils"
)

// ICPStatus says how an iterative alignment run ended.
type ICPStatus int

const (
	// StatusConverged means the smoothed relative improvement fell below the
	// configured threshold.
	StatusConverged ICPStatus = iota
	// StatusMaxIterationsReached means the iteration cap ended the run first.
	StatusMaxIterationsReached
)

func (s ICPStatus) String() string {
	if s == StatusConverged {
		return "converged"
	}
	return "max iterations reached"
}

// ICPResult reports how an iterative alignment run went.
type ICPResult struct {
	Status ICPStatus

	// Iterations actually executed.
	Iterations int

	// MeanResidual is the mean correspondence residual of the last
	// iteration, before outlier rejection.
	MeanResidual float64
}

// convergenceTracker smooths the relative error improvement with an
// exponential moving average and lives for exactly one run.
type convergenceTracker struct {
	alpha    float64
	prevErr  float64
	havePrev bool
	ema      float64
	haveEMA  bool
}

// observe folds in the error of the latest iteration. ready is false until a
// relative improvement exists, i.e. until the second observation.
func (t *convergenceTracker) observe(err float64) (ema float64, ready bool) {
	if !t.havePrev {
		t.prevErr = err
		t.havePrev = true
		return 0, false
	}
	rel := 0.0
	if t.prevErr > 0 {
		rel = (t.prevErr - err) / t.prevErr
	}
	if !t.haveEMA {
		t.ema = rel
		t.haveEMA = true
	} else {
		t.ema = t.alpha*rel + (1-t.alpha)*t.ema
	}
	t.prevErr = err
	return t.ema, true
}

// FitICPAlignment iteratively refines a rigid transform aligning source onto
// target. Each iteration subsamples the source, finds k-NN soft
// correspondences against the index using points moved by the delta
// accumulated so far, rejects outliers, solves for an increment, and checks
// an EMA-smoothed convergence signal.
//
// The returned delta maps the original source world coordinates to target
// world coordinates; the result reports whether the run converged or hit the
// iteration cap. A solver failure mid-run aborts the run and is returned as
// the error. Cancellation via ctx takes effect between iterations. A nil
// logger falls back to the global logger.
func FitICPAlignment(
	ctx context.Context,
	source, target *pointset.PointSet,
	index pointset.NeighborIndex,
	cfg ICPConfig,
	logger golog.Logger,
) (*spatialmath.Transformation, *ICPResult, error) {
	if err := validatePair(source, target); err != nil {
		return nil, nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, nil, err
	}
	if logger == nil {
		logger = golog.Global()
	}

	mode := alignmentModeOf(source, target)
	n := source.Size()
	rnd := cfg.Rand
	if rnd == nil {
		rnd = rand.New(rand.NewSource(defaultRandomSeed))
	}

	delta := spatialmath.NewIdentity(source.Dims())
	tracker := convergenceTracker{alpha: cfg.EMAAlpha}
	var result ICPResult

	for iter := 0; iter < cfg.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		var sample []int
		if cfg.NSamples > 0 && cfg.NSamples < n {
			sample = utils.SampleIndicesWithoutReplacement(n, cfg.NSamples, rnd)
		} else {
			sample = make([]int, n)
			for i := range sample {
				sample[i] = i
			}
		}

		queries := make([]r3.Vector, len(sample))
		for i, idx := range sample {
			queries[i] = delta.TransformPoint(source.WorldPoint(idx))
		}
		var queryNormals []r3.Vector
		if mode == modeNormalWeighted {
			queryNormals = make([]r3.Vector, len(sample))
			for i, idx := range sample {
				queryNormals[i] = delta.TransformNormal(source.WorldNormal(idx))
			}
		}

		corrs, err := gatherCorrespondences(ctx, queries, queryNormals, target, index, cfg.KNNConfig, mode)
		if err != nil {
			return nil, nil, err
		}

		iterErr := meanResidual(corrs)
		corrs = rejectOutliers(corrs, cfg.OutlierProportion)

		var step *spatialmath.Transformation
		if mode.usesTargetNormals() {
			step, err = solvePointToPlane(queries, corrs)
		} else {
			step, err = solvePointToPoint(queries, corrs, source.Dims())
		}
		if err != nil {
			return nil, nil, err
		}

		delta = step.Compose(delta)
		result.Iterations = iter + 1
		result.MeanResidual = iterErr

		ema, ready := tracker.observe(iterErr)
		logger.Debugf("icp iteration %d: residual %.6g ema %.6g", iter+1, iterErr, ema)
		if ready && ema < cfg.MinRelativeImprovement {
			result.Status = StatusConverged
			return delta, &result, nil
		}
	}

	result.Status = StatusMaxIterationsReached
	return delta, &result, nil
}
