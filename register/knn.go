package register

import (
	"context"

	"github.com/golang/geo/r3"

	"github.com/alignkit/alignkit/pointset"
	"github.com/alignkit/alignkit/spatialmath"
)

// FitKNNAlignment runs a single soft-correspondence alignment step: every
// source point is matched to a Gaussian-weighted blend of its k nearest
// target neighbors, the worst matches are optionally rejected, and one rigid
// transform is solved. With k=1 and no rejection this is exactly one classic
// ICP increment.
//
// index must be prebuilt over the target set's world coordinates and is only
// queried, never modified.
func FitKNNAlignment(
	ctx context.Context,
	source, target *pointset.PointSet,
	index pointset.NeighborIndex,
	cfg KNNConfig,
) (*spatialmath.Transformation, error) {
	if err := validatePair(source, target); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	mode := alignmentModeOf(source, target)

	queries := make([]r3.Vector, source.Size())
	for i := range queries {
		queries[i] = source.WorldPoint(i)
	}
	var queryNormals []r3.Vector
	if mode == modeNormalWeighted {
		queryNormals = make([]r3.Vector, source.Size())
		for i := range queryNormals {
			queryNormals[i] = source.WorldNormal(i)
		}
	}

	corrs, err := gatherCorrespondences(ctx, queries, queryNormals, target, index, cfg, mode)
	if err != nil {
		return nil, err
	}
	corrs = rejectOutliers(corrs, cfg.OutlierProportion)

	if mode.usesTargetNormals() {
		return solvePointToPlane(queries, corrs)
	}
	return solvePointToPoint(queries, corrs, source.Dims())
}
