package register

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/alignkit/alignkit/spatialmath"
)

// each correspondence contributes one scalar equation, so the 6-unknown
// system needs at least 6 of them.
const minPlanePairs = 6

// solvePointToPlane minimizes Σ w·((R·s + t - y)·n)² over rigid (R, t) using
// the small-angle linearization R ≈ I + [ω]x. src points, soft targets and
// soft target normals are world coordinates. The 6x6 weighted normal
// equations are assembled directly and solved with a dense factorization; ω
// is then lifted back to an exact rotation via Rodrigues so the result stays
// rigid even for larger angular steps.
//
// 3D only; the 2D path never reaches here because normals require 3D.
func solvePointToPlane(src []r3.Vector, corrs []correspondence) (*spatialmath.Transformation, error) {
	if len(corrs) < minPlanePairs {
		return nil, errors.Wrapf(ErrInsufficientCorrespondences,
			"point-to-plane needs at least %d pairs, got %d", minPlanePairs, len(corrs))
	}

	// rows are a = [s x n ; n], rhs b = (y - s)·n; accumulate M = Σ w·a·aᵀ
	// and v = Σ w·b·a.
	m := mat.NewSymDense(6, nil)
	v := mat.NewVecDense(6, nil)
	var row [6]float64
	weightSum := 0.0
	for _, c := range corrs {
		s := src[c.srcIndex]
		n := c.normal
		cr := s.Cross(n)
		row[0], row[1], row[2] = cr.X, cr.Y, cr.Z
		row[3], row[4], row[5] = n.X, n.Y, n.Z
		b := c.target.Sub(s).Dot(n)

		w := c.weight
		weightSum += w
		for i := 0; i < 6; i++ {
			for j := i; j < 6; j++ {
				m.SetSym(i, j, m.At(i, j)+w*row[i]*row[j])
			}
			v.SetVec(i, v.AtVec(i)+w*b*row[i])
		}
	}
	if weightSum <= 0 {
		return nil, errors.Wrap(ErrInsufficientCorrespondences, "correspondence weights sum to zero")
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(m); !ok {
		return nil, errors.Wrap(ErrInsufficientCorrespondences, "point-to-plane system is singular")
	}
	var x mat.VecDense
	if err := chol.SolveVecTo(&x, v); err != nil {
		return nil, errors.Wrap(ErrInsufficientCorrespondences, "point-to-plane system is singular")
	}

	omega := r3.Vector{X: x.AtVec(0), Y: x.AtVec(1), Z: x.AtVec(2)}
	trans := r3.Vector{X: x.AtVec(3), Y: x.AtVec(4), Z: x.AtVec(5)}
	return spatialmath.NewFromRodrigues(omega, trans), nil
}
