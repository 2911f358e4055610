package register

import (
	"context"
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/alignkit/alignkit/pointset"
	"github.com/alignkit/alignkit/utils"
)

// alignmentMode is fixed once at call entry; no per-point dispatch happens
// inside the loop.
type alignmentMode int

const (
	modePointToPoint alignmentMode = iota
	modePointToPlane
	modeNormalWeighted
)

// alignmentModeOf picks the solve mode from which inputs carry normals.
// Target normals select point-to-plane; normals on both sides additionally
// weight correspondences by normal agreement.
func alignmentModeOf(source, target *pointset.PointSet) alignmentMode {
	switch {
	case source.HasNormals() && target.HasNormals():
		return modeNormalWeighted
	case target.HasNormals():
		return modePointToPlane
	default:
		return modePointToPoint
	}
}

func (m alignmentMode) usesTargetNormals() bool {
	return m != modePointToPoint
}

// correspondence pairs one source point with its (possibly soft) target.
type correspondence struct {
	srcIndex int

	// target is the weight-aggregated target point in world coordinates.
	target r3.Vector

	// normal is the aggregated target normal; only set for plane modes.
	normal r3.Vector

	// weight multiplies the correspondence in the solve. 1 except under
	// normal-agreement weighting.
	weight float64

	// residual is the current alignment error of this pair: Euclidean
	// distance for point-to-point, distance along the target normal for
	// point-to-plane.
	residual float64
}

// softCorrespondence aggregates the k nearest neighbors of query into a
// single weighted target point (and normal, when requested).
//
// Weights follow a Gaussian kernel exp(-d²/(2σ²)) with σ taken from the
// farthest of the k neighbors when sigma is non-positive. When σ or the whole
// weight sum underflows, the kernel carries no information, so the weights
// fall back to uniform rather than dividing by zero.
func softCorrespondence(
	query r3.Vector,
	neighbors []pointset.Neighbor,
	target *pointset.PointSet,
	sigma float64,
	wantNormal bool,
) (pt, normal r3.Vector) {
	if len(neighbors) == 1 {
		nb := neighbors[0]
		pt = target.WorldPoint(nb.Index)
		if wantNormal {
			normal = target.WorldNormal(nb.Index)
		}
		return pt, normal
	}

	sigma2 := sigma * sigma
	if sigma <= 0 {
		// adaptive: the k-th (largest) neighbor distance
		d := neighbors[len(neighbors)-1].Distance
		sigma2 = d * d
	}

	var weightSum float64
	var normalSum r3.Vector
	if sigma2 >= 1e-30 {
		for _, nb := range neighbors {
			w := math.Exp(-utils.Square(nb.Distance) / (2 * sigma2))
			pt = pt.Add(target.WorldPoint(nb.Index).Mul(w))
			if wantNormal {
				normalSum = normalSum.Add(target.WorldNormal(nb.Index).Mul(w))
			}
			weightSum += w
		}
	}
	if weightSum < 1e-300 {
		// σ underflowed, or the kernel underflowed for every neighbor (tiny
		// fixed σ against order-1 distances). Either way the weights carry no
		// information; blend uniformly instead of dividing by zero.
		pt, normalSum, weightSum = r3.Vector{}, r3.Vector{}, 0
		for _, nb := range neighbors {
			pt = pt.Add(target.WorldPoint(nb.Index))
			if wantNormal {
				normalSum = normalSum.Add(target.WorldNormal(nb.Index))
			}
			weightSum++
		}
	}
	pt = pt.Mul(1 / weightSum)
	if wantNormal {
		if normalSum.Norm() < 1e-12 {
			// opposing normals cancelled out; fall back to the nearest
			normal = target.WorldNormal(neighbors[0].Index)
		} else {
			normal = normalSum.Normalize()
		}
	}
	return pt, normal
}

// gatherCorrespondences finds one correspondence per query point, fanning the
// index queries out over worker goroutines. queries (and queryNormals, in the
// normal-weighted mode) are world coordinates with any accumulated delta
// already applied; the index is read-only for the duration of the call and
// every result is collected before this returns.
func gatherCorrespondences(
	ctx context.Context,
	queries []r3.Vector,
	queryNormals []r3.Vector,
	target *pointset.PointSet,
	index pointset.NeighborIndex,
	cfg KNNConfig,
	mode alignmentMode,
) ([]correspondence, error) {
	if index.Size() == 0 {
		return nil, errors.Wrap(ErrInsufficientCorrespondences, "target index is empty")
	}
	k := cfg.K
	if k > index.Size() {
		k = index.Size()
	}

	corrs := make([]correspondence, len(queries))
	wantNormal := mode.usesTargetNormals()
	err := utils.GroupWorkParallel(
		ctx,
		len(queries),
		func(groupSize int) {},
		func(groupNum, groupSize, from, to int) (utils.MemberWorkFunc, utils.GroupWorkDoneFunc) {
			return func(memberNum, workNum int) {
				q := queries[workNum]
				neighbors := index.QueryKNN(q, k)
				pt, normal := softCorrespondence(q, neighbors, target, cfg.Sigma, wantNormal)

				c := correspondence{srcIndex: workNum, target: pt, normal: normal, weight: 1}
				if wantNormal {
					c.residual = math.Abs(q.Sub(pt).Dot(normal))
				} else {
					c.residual = q.Sub(pt).Norm()
				}
				if mode == modeNormalWeighted {
					agreement := queryNormals[workNum].Dot(normal)
					if agreement < 0 {
						agreement = 0
					} else if agreement > 1 {
						agreement = 1
					}
					c.weight = agreement
				}
				corrs[workNum] = c
			}, nil
		},
	)
	if err != nil {
		return nil, err
	}
	return corrs, nil
}

// meanResidual is the current alignment error over a correspondence set,
// computed before outlier rejection.
func meanResidual(corrs []correspondence) float64 {
	if len(corrs) == 0 {
		return 0
	}
	sum := 0.0
	for _, c := range corrs {
		sum += c.residual
	}
	return sum / float64(len(corrs))
}
