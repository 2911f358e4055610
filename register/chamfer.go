package register

import (
	"context"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"

	"github.com/alignkit/alignkit/pointset"
	"github.com/alignkit/alignkit/utils"
)

// ChamferError computes the one-directional mean nearest-neighbor distance
// from the source set's world coordinates to the indexed target. It is an
// evaluation metric, not part of any solve; for a symmetric measure compute
// both directions and average.
func ChamferError(ctx context.Context, source *pointset.PointSet, index pointset.NeighborIndex) (float64, error) {
	if source.Size() == 0 {
		return 0, errors.Wrap(ErrInvalidParameter, "source point set is empty")
	}
	if index.Size() == 0 {
		return 0, errors.Wrap(ErrInvalidParameter, "target index is empty")
	}

	dists := make([]float64, source.Size())
	err := utils.GroupWorkParallel(
		ctx,
		source.Size(),
		func(groupSize int) {},
		func(groupNum, groupSize, from, to int) (utils.MemberWorkFunc, utils.GroupWorkDoneFunc) {
			return func(memberNum, workNum int) {
				nn := index.QueryKNN(source.WorldPoint(workNum), 1)
				dists[workNum] = nn[0].Distance
			}, nil
		},
	)
	if err != nil {
		return 0, err
	}
	return floats.Sum(dists) / float64(len(dists)), nil
}
