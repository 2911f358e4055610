// Package register estimates rigid transformations aligning one point set
// onto another, with or without known correspondence.
//
// Three entry points cover the usual workflow: FitRigidAlignment for point
// sets already in index correspondence, FitKNNAlignment for one
// soft-correspondence step against a prebuilt neighbor index, and
// FitICPAlignment for the full iterative loop with convergence detection.
// ChamferError evaluates an alignment.
//
// Every fit returns a DELTA transform mapping source world coordinates to
// target world coordinates. Nothing is composed with a PointSet's frame
// implicitly; updating a frame is always the caller's explicit step:
//
//	delta, _ := register.FitRigidAlignment(source, target)
//	total := delta.Compose(sourceFrame)
//
// The solve mode is picked once per call from the inputs: target normals
// select point-to-plane, normals on both sides add normal-agreement
// weighting, and everything else is point-to-point (Kabsch).
package register

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/alignkit/alignkit/pointset"
	"github.com/alignkit/alignkit/spatialmath"
)

// FitRigidAlignment computes the optimal rigid transform between point sets
// in index correspondence (point i of source matches point i of target). No
// correspondence search and no iteration happen; this is the closed-form
// solve.
func FitRigidAlignment(source, target *pointset.PointSet) (*spatialmath.Transformation, error) {
	if err := validatePair(source, target); err != nil {
		return nil, err
	}
	if source.Size() != target.Size() {
		return nil, errors.Wrapf(ErrInvalidParameter,
			"one-shot fit requires index correspondence, source has %d points and target has %d",
			source.Size(), target.Size())
	}

	mode := alignmentModeOf(source, target)
	n := source.Size()

	src := make([]r3.Vector, n)
	for i := 0; i < n; i++ {
		src[i] = source.WorldPoint(i)
	}

	corrs := make([]correspondence, n)
	for i := 0; i < n; i++ {
		c := correspondence{srcIndex: i, target: target.WorldPoint(i), weight: 1}
		if mode.usesTargetNormals() {
			c.normal = target.WorldNormal(i)
		}
		if mode == modeNormalWeighted {
			c.weight = clampUnit(source.WorldNormal(i).Dot(c.normal))
		}
		corrs[i] = c
	}

	if mode.usesTargetNormals() {
		return solvePointToPlane(src, corrs)
	}
	return solvePointToPoint(src, corrs, source.Dims())
}

// clampUnit clips a normal-agreement dot product into [0,1] so opposing
// normals drop out of the solve instead of fighting it.
func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
