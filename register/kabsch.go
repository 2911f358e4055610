package register

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/alignkit/alignkit/spatialmath"
)

// relative singular-value threshold below which the cross-covariance is
// treated as rank deficient.
const degenerateSingularValueRatio = 1e-12

// solvePointToPoint computes the weighted least-squares rigid transform
// mapping source points onto their correspondence targets
// (Kabsch/Procrustes). src holds world coordinates indexed by
// correspondence.srcIndex.
func solvePointToPoint(src []r3.Vector, corrs []correspondence, dims int) (*spatialmath.Transformation, error) {
	minPairs := 2
	if dims == 3 {
		minPairs = 3
	}
	if len(corrs) < minPairs {
		return nil, errors.Wrapf(ErrInsufficientCorrespondences,
			"%dD point-to-point needs at least %d pairs, got %d", dims, minPairs, len(corrs))
	}

	weightSum := 0.0
	var cs, ct r3.Vector
	for _, c := range corrs {
		weightSum += c.weight
		cs = cs.Add(src[c.srcIndex].Mul(c.weight))
		ct = ct.Add(c.target.Mul(c.weight))
	}
	if weightSum <= 0 {
		return nil, errors.Wrap(ErrInsufficientCorrespondences, "correspondence weights sum to zero")
	}
	cs = cs.Mul(1 / weightSum)
	ct = ct.Mul(1 / weightSum)

	if dims == 2 {
		return solveRotation2D(src, corrs, cs, ct)
	}
	return solveRotation3D(src, corrs, cs, ct)
}

// solveRotation3D runs the SVD branch: H = Σ w·(s-cs)(t-ct)ᵀ, H = UΣVᵀ,
// R = V·Uᵀ with the usual reflection fix so det(R) = +1.
func solveRotation3D(src []r3.Vector, corrs []correspondence, cs, ct r3.Vector) (*spatialmath.Transformation, error) {
	h := mat.NewDense(3, 3, nil)
	for _, c := range corrs {
		s := src[c.srcIndex].Sub(cs)
		t := c.target.Sub(ct)
		sv := []float64{s.X, s.Y, s.Z}
		tv := []float64{t.X, t.Y, t.Z}
		for r := 0; r < 3; r++ {
			for cc := 0; cc < 3; cc++ {
				h.Set(r, cc, h.At(r, cc)+c.weight*sv[r]*tv[cc])
			}
		}
	}

	var svd mat.SVD
	if ok := svd.Factorize(h, mat.SVDFull); !ok {
		return nil, errors.Wrap(ErrInsufficientCorrespondences, "failed to factorize cross-covariance")
	}
	values := svd.Values(nil)
	if values[1] <= degenerateSingularValueRatio*math.Max(values[0], 1) {
		return nil, errors.Wrap(ErrInsufficientCorrespondences, "correspondences are collinear")
	}

	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	rot := mat.NewDense(3, 3, nil)
	rot.Mul(&v, u.T())
	if mat.Det(rot) < 0 {
		// reflection: flip the axis of least variance and recompute
		for r := 0; r < 3; r++ {
			v.Set(r, 2, -v.At(r, 2))
		}
		rot.Mul(&v, u.T())
	}

	trans := ct.Sub(matVec3(rot, cs))
	return spatialmath.NewFromRotationTranslation(rot, trans), nil
}

// solveRotation2D reduces the 2x2 analogue to a single rotation angle.
func solveRotation2D(src []r3.Vector, corrs []correspondence, cs, ct r3.Vector) (*spatialmath.Transformation, error) {
	var dot, cross float64
	for _, c := range corrs {
		s := src[c.srcIndex].Sub(cs)
		t := c.target.Sub(ct)
		dot += c.weight * (s.X*t.X + s.Y*t.Y)
		cross += c.weight * (s.X*t.Y - s.Y*t.X)
	}
	if math.Abs(dot) < 1e-30 && math.Abs(cross) < 1e-30 {
		return nil, errors.Wrap(ErrInsufficientCorrespondences, "2D correspondences carry no rotational signal")
	}
	theta := math.Atan2(cross, dot)

	c, s := math.Cos(theta), math.Sin(theta)
	trans := r3.Vector{
		X: ct.X - (c*cs.X - s*cs.Y),
		Y: ct.Y - (s*cs.X + c*cs.Y),
	}
	return spatialmath.NewFromAngleTranslation2D(theta, trans), nil
}

func matVec3(m *mat.Dense, v r3.Vector) r3.Vector {
	return r3.Vector{
		X: m.At(0, 0)*v.X + m.At(0, 1)*v.Y + m.At(0, 2)*v.Z,
		Y: m.At(1, 0)*v.X + m.At(1, 1)*v.Y + m.At(1, 2)*v.Z,
		Z: m.At(2, 0)*v.X + m.At(2, 1)*v.Y + m.At(2, 2)*v.Z,
	}
}
