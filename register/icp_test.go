package register

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/alignkit/alignkit/pointset"
	"github.com/alignkit/alignkit/spatialmath"
	"github.com/alignkit/alignkit/utils"
)

// chamferAfter measures the mean nearest-neighbor distance of source moved by
// delta against the target index.
func chamferAfter(
	t *testing.T,
	source *pointset.PointSet,
	index pointset.NeighborIndex,
	delta *spatialmath.Transformation,
) float64 {
	t.Helper()
	frame := delta
	if source.Frame() != nil {
		frame = delta.Compose(source.Frame())
	}
	moved, err := source.WithFrame(frame)
	test.That(t, err, test.ShouldBeNil)
	d, err := ChamferError(context.Background(), moved, index)
	test.That(t, err, test.ShouldBeNil)
	return d
}

func TestICPIdentity(t *testing.T) {
	logger := golog.NewTestLogger(t)
	pts := randomCloud(100, rand.New(rand.NewSource(3)))
	source := mustPointSet(3, pointset.Float64, pts)
	target := mustPointSet(3, pointset.Float64, pts)

	delta, result, err := FitICPAlignment(
		context.Background(), source, target, pointset.NewFlatIndex(target), NewICPConfig(), logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, result.Status, test.ShouldEqual, StatusConverged)
	test.That(t, delta.AlmostEqual(spatialmath.NewIdentity(3), 1e-4), test.ShouldBeTrue)
	test.That(t, result.MeanResidual, test.ShouldBeLessThan, 1e-8)
}

func TestICPRecoversTranslation(t *testing.T) {
	logger := golog.NewTestLogger(t)
	pts := randomCloud(200, rand.New(rand.NewSource(7)))
	offset := r3.Vector{X: 0.1, Y: 0.05, Z: 0.1}

	source := mustPointSet(3, pointset.Float64, pts)
	shifted := make([]r3.Vector, len(pts))
	for i, p := range pts {
		shifted[i] = p.Add(offset)
	}
	target := mustPointSet(3, pointset.Float64, shifted)
	index := pointset.NewFlatIndex(target)

	cfg := NewICPConfig()
	cfg.MaxIterations = 50
	delta, result, err := FitICPAlignment(context.Background(), source, target, index, cfg, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, result.Iterations, test.ShouldBeLessThanOrEqualTo, 50)
	test.That(t, chamferAfter(t, source, index, delta), test.ShouldBeLessThan, 0.01)
}

func TestICPOutputIsRigid(t *testing.T) {
	logger := golog.NewTestLogger(t)
	pts := randomCloud(150, rand.New(rand.NewSource(11)))
	tf := spatialmath.NewFromRodrigues(
		r3.Vector{X: 0.05, Y: -0.08, Z: 0.1},
		r3.Vector{X: 0.05, Y: -0.02, Z: 0.08},
	)

	source := mustPointSet(3, pointset.Float64, pts)
	target := mustPointSet(3, pointset.Float64, transformAll(pts, tf))

	delta, _, err := FitICPAlignment(
		context.Background(), source, target, pointset.NewFlatIndex(target), NewICPConfig(), logger)
	test.That(t, err, test.ShouldBeNil)

	m := delta.Matrix()
	r, c := m.Dims()
	test.That(t, r, test.ShouldEqual, 4)
	test.That(t, c, test.ShouldEqual, 4)
	for j := 0; j < 3; j++ {
		test.That(t, m.At(3, j), test.ShouldEqual, 0)
	}
	test.That(t, m.At(3, 3), test.ShouldEqual, 1)
	test.That(t, delta.OrthogonalityError(), test.ShouldBeLessThan, 0.1)
	test.That(t, math.Abs(delta.RotationDeterminant()-1), test.ShouldBeLessThan, 0.1)
}

// iterationsToReach runs the loop with convergence checking disabled and
// reports the smallest iteration count whose accumulated delta brings the
// chamfer error under threshold.
func iterationsToReach(
	t *testing.T,
	source, target *pointset.PointSet,
	threshold float64,
	maxIters int,
) int {
	t.Helper()
	logger := golog.NewTestLogger(t)
	index := pointset.NewFlatIndex(target)
	for iters := 1; iters <= maxIters; iters++ {
		cfg := NewICPConfig()
		cfg.MaxIterations = iters
		cfg.MinRelativeImprovement = 0
		cfg.NSamples = 0
		delta, _, err := FitICPAlignment(context.Background(), source, target, index, cfg, logger)
		test.That(t, err, test.ShouldBeNil)
		if chamferAfter(t, source, index, delta) < threshold {
			return iters
		}
	}
	t.Fatalf("chamfer error never fell under %v within %d iterations", threshold, maxIters)
	return maxIters
}

func TestPointToPlaneConvergesFaster(t *testing.T) {
	pts, normals := wavySurface(18, 18)
	tf := spatialmath.NewFromRodrigues(
		r3.Vector{X: 0.02, Y: 0.03, Z: -0.02},
		r3.Vector{X: 0.03, Y: -0.02, Z: 0.02},
	)
	source := mustPointSet(3, pointset.Float64, transformAll(pts, tf))

	planeTarget := mustPointSetWithNormals(pointset.Float64, pts, normals)
	pointTarget := mustPointSet(3, pointset.Float64, pts)

	const threshold = 5e-3
	planeIters := iterationsToReach(t, source, planeTarget, threshold, 40)
	pointIters := iterationsToReach(t, source, pointTarget, threshold, 40)
	test.That(t, planeIters, test.ShouldBeLessThanOrEqualTo, pointIters)
}

func TestICPUnequalSizes(t *testing.T) {
	logger := golog.NewTestLogger(t)
	pts := randomCloud(100, rand.New(rand.NewSource(13)))
	offset := r3.Vector{X: 0.06, Y: 0.04, Z: -0.05}

	// source observes only half of the target, shifted
	subset := make([]r3.Vector, 50)
	for i := range subset {
		subset[i] = pts[i].Add(offset)
	}
	source := mustPointSet(3, pointset.Float64, subset)
	target := mustPointSet(3, pointset.Float64, pts)
	index := pointset.NewFlatIndex(target)

	delta, _, err := FitICPAlignment(context.Background(), source, target, index, NewICPConfig(), logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, chamferAfter(t, source, index, delta), test.ShouldBeLessThan, 0.01)
}

func TestICPOutlierRejectionHelps(t *testing.T) {
	logger := golog.NewTestLogger(t)
	rnd := rand.New(rand.NewSource(17))
	pts := randomCloud(150, rnd)
	offset := r3.Vector{X: 0.05, Y: 0.03, Z: 0.04}

	shifted := make([]r3.Vector, len(pts))
	for i, p := range pts {
		shifted[i] = p.Add(offset)
	}
	// corrupt a tenth of the source points with large excursions
	for i := 0; i < len(shifted); i += 10 {
		shifted[i] = shifted[i].Add(r3.Vector{X: 3 * rnd.Float64(), Y: 3, Z: -2})
	}
	source := mustPointSet(3, pointset.Float64, shifted)
	target := mustPointSet(3, pointset.Float64, pts)
	index := pointset.NewFlatIndex(target)

	run := func(proportion float64) *spatialmath.Transformation {
		cfg := NewICPConfig()
		cfg.OutlierProportion = proportion
		delta, _, err := FitICPAlignment(context.Background(), source, target, index, cfg, logger)
		test.That(t, err, test.ShouldBeNil)
		return delta
	}
	baseline := run(0)
	robust := run(0.3)

	// judge each delta against the clean pairs only
	clean := make([]r3.Vector, 0, len(pts))
	for i, p := range pts {
		if i%10 != 0 {
			clean = append(clean, p.Add(offset))
		}
	}
	cleanSource := mustPointSet(3, pointset.Float64, clean)
	baselineErr := chamferAfter(t, cleanSource, index, baseline)
	robustErr := chamferAfter(t, cleanSource, index, robust)
	test.That(t, robustErr, test.ShouldBeLessThanOrEqualTo, baselineErr)
	test.That(t, robustErr, test.ShouldBeLessThan, 0.02)
}

func TestICPNilLogger(t *testing.T) {
	pts := randomCloud(30, rand.New(rand.NewSource(53)))
	source := mustPointSet(3, pointset.Float64, pts)
	target := mustPointSet(3, pointset.Float64, pts)

	delta, result, err := FitICPAlignment(
		context.Background(), source, target, pointset.NewFlatIndex(target), NewICPConfig(), nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, result.Status, test.ShouldEqual, StatusConverged)
	test.That(t, delta.AlmostEqual(spatialmath.NewIdentity(3), 1e-4), test.ShouldBeTrue)
}

func TestICPContextCancellation(t *testing.T) {
	logger := golog.NewTestLogger(t)
	pts := randomCloud(40, rand.New(rand.NewSource(19)))
	source := mustPointSet(3, pointset.Float64, pts)
	target := mustPointSet(3, pointset.Float64, pts)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := FitICPAlignment(ctx, source, target, pointset.NewFlatIndex(target), NewICPConfig(), logger)
	test.That(t, err, test.ShouldBeError, context.Canceled)
}

func TestICPInvalidInputs(t *testing.T) {
	logger := golog.NewTestLogger(t)
	ctx := context.Background()
	pts3 := randomCloud(20, rand.New(rand.NewSource(23)))
	cloud3 := mustPointSet(3, pointset.Float64, pts3)
	index := pointset.NewFlatIndex(cloud3)

	pts2 := make([]r3.Vector, 20)
	for i, p := range pts3 {
		pts2[i] = r3.Vector{X: p.X, Y: p.Y}
	}
	cloud2 := mustPointSet(2, pointset.Float64, pts2)
	cloud32 := mustPointSet(3, pointset.Float32, pts3)

	_, _, err := FitICPAlignment(ctx, cloud2, cloud3, index, NewICPConfig(), logger)
	test.That(t, errors.Is(err, ErrDimensionMismatch), test.ShouldBeTrue)

	_, _, err = FitICPAlignment(ctx, cloud32, cloud3, index, NewICPConfig(), logger)
	test.That(t, errors.Is(err, ErrPrecisionMismatch), test.ShouldBeTrue)

	bad := NewICPConfig()
	bad.K = 0
	bad.EMAAlpha = 2
	_, _, err = FitICPAlignment(ctx, cloud3, cloud3, index, bad, logger)
	test.That(t, errors.Is(err, ErrInvalidParameter), test.ShouldBeTrue)
}

func TestICPSubsampling(t *testing.T) {
	logger := golog.NewTestLogger(t)
	pts := randomCloud(300, rand.New(rand.NewSource(29)))
	offset := r3.Vector{X: 0.04, Y: -0.03, Z: 0.05}
	shifted := make([]r3.Vector, len(pts))
	for i, p := range pts {
		shifted[i] = p.Add(offset)
	}
	source := mustPointSet(3, pointset.Float64, shifted)
	target := mustPointSet(3, pointset.Float64, pts)
	index := pointset.NewFlatIndex(target)

	cfg := NewICPConfig()
	cfg.NSamples = 60
	cfg.Rand = rand.New(rand.NewSource(31))
	delta, _, err := FitICPAlignment(context.Background(), source, target, index, cfg, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, chamferAfter(t, source, index, delta), test.ShouldBeLessThan, 0.01)
}

func TestKNNStepReducesChamfer(t *testing.T) {
	ctx := context.Background()
	pts := randomCloud(120, rand.New(rand.NewSource(37)))
	offset := r3.Vector{X: 0.08, Y: 0.02, Z: -0.06}
	shifted := make([]r3.Vector, len(pts))
	for i, p := range pts {
		shifted[i] = p.Add(offset)
	}
	source := mustPointSet(3, pointset.Float64, shifted)
	target := mustPointSet(3, pointset.Float64, pts)
	index := pointset.NewFlatIndex(target)

	before, err := ChamferError(ctx, source, index)
	test.That(t, err, test.ShouldBeNil)

	delta, err := FitKNNAlignment(ctx, source, target, index, NewKNNConfig())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, chamferAfter(t, source, index, delta), test.ShouldBeLessThan, before)
}

func TestKNNSoftCorrespondencesAlign(t *testing.T) {
	ctx := context.Background()
	pts := randomCloud(120, rand.New(rand.NewSource(41)))
	offset := r3.Vector{X: 0.03, Y: 0.02, Z: 0.01}
	shifted := make([]r3.Vector, len(pts))
	for i, p := range pts {
		shifted[i] = p.Add(offset)
	}
	source := mustPointSet(3, pointset.Float64, shifted)
	target := mustPointSet(3, pointset.Float64, pts)
	index := pointset.NewFlatIndex(target)

	before, err := ChamferError(ctx, source, index)
	test.That(t, err, test.ShouldBeNil)

	cfg := NewKNNConfig()
	cfg.K = 4
	delta, err := FitKNNAlignment(ctx, source, target, index, cfg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, chamferAfter(t, source, index, delta), test.ShouldBeLessThan, before)
}

func TestICPDeltaComposesWithSourceFrame(t *testing.T) {
	logger := golog.NewTestLogger(t)
	pts := randomCloud(100, rand.New(rand.NewSource(43)))

	// the source carries a frame moving it away from the target
	frame := spatialmath.NewFromRodrigues(
		r3.Vector{Z: utils.DegToRad(4)},
		r3.Vector{X: 0.05, Y: -0.04, Z: 0.03},
	)
	base := mustPointSet(3, pointset.Float64, pts)
	source, err := base.WithFrame(frame)
	test.That(t, err, test.ShouldBeNil)
	target := mustPointSet(3, pointset.Float64, pts)
	index := pointset.NewFlatIndex(target)

	delta, _, err := FitICPAlignment(context.Background(), source, target, index, NewICPConfig(), logger)
	test.That(t, err, test.ShouldBeNil)

	// delta is relative to world coordinates; composing it onto the source
	// frame is the caller's explicit step
	test.That(t, chamferAfter(t, source, index, delta), test.ShouldBeLessThan, 0.01)
	// delta undoes the frame, so together they cancel
	test.That(t, delta.Compose(frame).AlmostEqual(spatialmath.NewIdentity(3), 0.05), test.ShouldBeTrue)
}

func TestConvergenceTracker(t *testing.T) {
	tracker := convergenceTracker{alpha: 0.5}

	_, ready := tracker.observe(10)
	test.That(t, ready, test.ShouldBeFalse)

	ema, ready := tracker.observe(5)
	test.That(t, ready, test.ShouldBeTrue)
	test.That(t, ema, test.ShouldAlmostEqual, 0.5)

	// rel = (5-4)/5 = 0.2; ema = 0.5*0.2 + 0.5*0.5
	ema, _ = tracker.observe(4)
	test.That(t, ema, test.ShouldAlmostEqual, 0.35)

	// zero previous error never divides by zero
	tracker = convergenceTracker{alpha: 0.3}
	tracker.observe(0)
	ema, ready = tracker.observe(0)
	test.That(t, ready, test.ShouldBeTrue)
	test.That(t, ema, test.ShouldEqual, 0)
}
