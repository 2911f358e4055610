// Package spatialmath implements rigid transformations of 2D and 3D space as
// homogeneous matrices.
//
// A Transformation is a rotation plus a translation, no scale and no
// reflection. 2D transforms are 3x3 matrices, 3D transforms are 4x4, and the
// bottom row is always [0 ... 0 1]. Values are immutable once constructed;
// all operations return new transformations.
package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Transformation is a rigid homogeneous transform. The zero value is not
// usable; construct with NewIdentity or one of the other constructors.
type Transformation struct {
	dims int
	m    *mat.Dense
}

// NewIdentity returns the identity transform for the given dimensionality (2 or 3).
func NewIdentity(dims int) *Transformation {
	n := dims + 1
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return &Transformation{dims: dims, m: m}
}

// NewFromMatrix wraps a homogeneous matrix in a Transformation. The matrix
// must be 3x3 or 4x4 with a [0 ... 0 1] bottom row; the rotation block is not
// checked for orthogonality here.
func NewFromMatrix(m *mat.Dense) (*Transformation, error) {
	r, c := m.Dims()
	if r != c || (r != 3 && r != 4) {
		return nil, errors.Errorf("expected a 3x3 or 4x4 matrix, got %dx%d", r, c)
	}
	for j := 0; j < c-1; j++ {
		if m.At(r-1, j) != 0 {
			return nil, errors.Errorf("bottom row entry (%d,%d) must be 0", r-1, j)
		}
	}
	if m.At(r-1, c-1) != 1 {
		return nil, errors.New("bottom right entry must be 1")
	}
	return &Transformation{dims: r - 1, m: mat.DenseCopyOf(m)}, nil
}

// NewFromRotationTranslation builds a 3D transform from a 3x3 rotation matrix
// and a translation vector. The rotation is copied as given.
func NewFromRotationTranslation(rot *mat.Dense, t r3.Vector) *Transformation {
	m := mat.NewDense(4, 4, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			m.Set(i, j, rot.At(i, j))
		}
	}
	m.Set(0, 3, t.X)
	m.Set(1, 3, t.Y)
	m.Set(2, 3, t.Z)
	m.Set(3, 3, 1)
	return &Transformation{dims: 3, m: m}
}

// NewFromAngleTranslation2D builds a 2D transform from a rotation angle in
// radians and a translation. The Z component of the translation is ignored.
func NewFromAngleTranslation2D(theta float64, t r3.Vector) *Transformation {
	c, s := math.Cos(theta), math.Sin(theta)
	m := mat.NewDense(3, 3, []float64{
		c, -s, t.X,
		s, c, t.Y,
		0, 0, 1,
	})
	return &Transformation{dims: 2, m: m}
}

// NewFromRodrigues builds a 3D transform from a rotation vector (axis scaled
// by angle) and a translation, using the exact Rodrigues formula. The result
// is orthonormal by construction, which matters when the rotation vector
// comes from a small-angle linearization with a not-so-small angle.
func NewFromRodrigues(w, t r3.Vector) *Transformation {
	theta := w.Norm()
	rot := mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
	if theta > 1e-12 {
		k := skew(w)
		k2 := mat.NewDense(3, 3, nil)
		k2.Mul(k, k)

		a := math.Sin(theta) / theta
		b := (1 - math.Cos(theta)) / (theta * theta)

		var sk, sk2 mat.Dense
		sk.Scale(a, k)
		sk2.Scale(b, k2)
		rot.Add(rot, &sk)
		rot.Add(rot, &sk2)
	}
	return NewFromRotationTranslation(rot, t)
}

// skew returns the cross-product matrix [w]x.
func skew(w r3.Vector) *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		0, -w.Z, w.Y,
		w.Z, 0, -w.X,
		-w.Y, w.X, 0,
	})
}

// Dims returns 2 or 3.
func (t *Transformation) Dims() int {
	return t.dims
}

// Matrix returns a copy of the underlying homogeneous matrix.
func (t *Transformation) Matrix() *mat.Dense {
	return mat.DenseCopyOf(t.m)
}

// Rotation returns a copy of the rotation block.
func (t *Transformation) Rotation() *mat.Dense {
	return mat.DenseCopyOf(t.m.Slice(0, t.dims, 0, t.dims))
}

// Translation returns the translation component. For 2D transforms Z is 0.
func (t *Transformation) Translation() r3.Vector {
	if t.dims == 2 {
		return r3.Vector{X: t.m.At(0, 2), Y: t.m.At(1, 2)}
	}
	return r3.Vector{X: t.m.At(0, 3), Y: t.m.At(1, 3), Z: t.m.At(2, 3)}
}

// Compose returns t * other, the transform that applies other first and then
// t. Both transforms must have the same dimensionality.
func (t *Transformation) Compose(other *Transformation) *Transformation {
	if t.dims != other.dims {
		panic(errors.Errorf("cannot compose a %dD transform with a %dD transform", t.dims, other.dims))
	}
	n := t.dims + 1
	m := mat.NewDense(n, n, nil)
	m.Mul(t.m, other.m)
	return &Transformation{dims: t.dims, m: m}
}

// TransformPoint applies the transform to a point. For 2D transforms the Z
// component passes through unchanged.
func (t *Transformation) TransformPoint(p r3.Vector) r3.Vector {
	if t.dims == 2 {
		return r3.Vector{
			X: t.m.At(0, 0)*p.X + t.m.At(0, 1)*p.Y + t.m.At(0, 2),
			Y: t.m.At(1, 0)*p.X + t.m.At(1, 1)*p.Y + t.m.At(1, 2),
			Z: p.Z,
		}
	}
	return r3.Vector{
		X: t.m.At(0, 0)*p.X + t.m.At(0, 1)*p.Y + t.m.At(0, 2)*p.Z + t.m.At(0, 3),
		Y: t.m.At(1, 0)*p.X + t.m.At(1, 1)*p.Y + t.m.At(1, 2)*p.Z + t.m.At(1, 3),
		Z: t.m.At(2, 0)*p.X + t.m.At(2, 1)*p.Y + t.m.At(2, 2)*p.Z + t.m.At(2, 3),
	}
}

// TransformNormal applies only the rotation block to a direction vector.
func (t *Transformation) TransformNormal(n r3.Vector) r3.Vector {
	if t.dims == 2 {
		return r3.Vector{
			X: t.m.At(0, 0)*n.X + t.m.At(0, 1)*n.Y,
			Y: t.m.At(1, 0)*n.X + t.m.At(1, 1)*n.Y,
			Z: n.Z,
		}
	}
	return r3.Vector{
		X: t.m.At(0, 0)*n.X + t.m.At(0, 1)*n.Y + t.m.At(0, 2)*n.Z,
		Y: t.m.At(1, 0)*n.X + t.m.At(1, 1)*n.Y + t.m.At(1, 2)*n.Z,
		Z: t.m.At(2, 0)*n.X + t.m.At(2, 1)*n.Y + t.m.At(2, 2)*n.Z,
	}
}

// OrthogonalityError returns the Frobenius norm of R*Rᵀ - I for the rotation
// block. Zero for a perfectly rigid transform.
func (t *Transformation) OrthogonalityError() float64 {
	r := t.Rotation()
	var rrt mat.Dense
	rrt.Mul(r, r.T())
	sum := 0.0
	for i := 0; i < t.dims; i++ {
		for j := 0; j < t.dims; j++ {
			v := rrt.At(i, j)
			if i == j {
				v--
			}
			sum += v * v
		}
	}
	return math.Sqrt(sum)
}

// RotationDeterminant returns the determinant of the rotation block, +1 for a
// proper rotation.
func (t *Transformation) RotationDeterminant() float64 {
	return mat.Det(t.Rotation())
}

// AlmostEqual reports whether two transforms of the same dimensionality agree
// entrywise within tol.
func (t *Transformation) AlmostEqual(other *Transformation, tol float64) bool {
	if t.dims != other.dims {
		return false
	}
	n := t.dims + 1
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if math.Abs(t.m.At(i, j)-other.m.At(i, j)) > tol {
				return false
			}
		}
	}
	return true
}
