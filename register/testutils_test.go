package register

import (
	"math"
	"math/rand"

	"github.com/golang/geo/r3"

	"github.com/alignkit/alignkit/pointset"
	"github.com/alignkit/alignkit/spatialmath"
)

// randomCloud samples n points uniformly from the unit cube.
func randomCloud(n int, r *rand.Rand) []r3.Vector {
	pts := make([]r3.Vector, n)
	for i := range pts {
		pts[i] = r3.Vector{X: r.Float64(), Y: r.Float64(), Z: r.Float64()}
	}
	return pts
}

func transformAll(pts []r3.Vector, tf *spatialmath.Transformation) []r3.Vector {
	out := make([]r3.Vector, len(pts))
	for i, p := range pts {
		out[i] = tf.TransformPoint(p)
	}
	return out
}

func rotateAll(normals []r3.Vector, tf *spatialmath.Transformation) []r3.Vector {
	out := make([]r3.Vector, len(normals))
	for i, n := range normals {
		out[i] = tf.TransformNormal(n)
	}
	return out
}

// wavySurface samples a smooth height field z = a·sin(fx·x)·cos(fy·y) on a
// grid over [-1,1]² together with its analytic unit normals. Useful for
// point-to-plane cases, where the target needs meaningful normals.
func wavySurface(nx, ny int) (pts, normals []r3.Vector) {
	const a, fx, fy = 0.25, 1.5, 1.5
	for i := 0; i < nx; i++ {
		for j := 0; j < ny; j++ {
			x := -1 + 2*float64(i)/float64(nx-1)
			y := -1 + 2*float64(j)/float64(ny-1)
			pts = append(pts, r3.Vector{X: x, Y: y, Z: a * math.Sin(fx*x) * math.Cos(fy*y)})
			// normal of z - f(x,y) = 0 is (-df/dx, -df/dy, 1) normalized
			dzdx := a * fx * math.Cos(fx*x) * math.Cos(fy*y)
			dzdy := -a * fy * math.Sin(fx*x) * math.Sin(fy*y)
			normals = append(normals, r3.Vector{X: -dzdx, Y: -dzdy, Z: 1}.Normalize())
		}
	}
	return pts, normals
}

func mustPointSet(dims int, prec pointset.Precision, pts []r3.Vector) *pointset.PointSet {
	ps, err := pointset.New(dims, prec, pts)
	if err != nil {
		panic(err)
	}
	return ps
}

func mustPointSetWithNormals(prec pointset.Precision, pts, normals []r3.Vector) *pointset.PointSet {
	ps, err := pointset.NewWithNormals(3, prec, pts, normals)
	if err != nil {
		panic(err)
	}
	return ps
}
