// Package pointset defines the point sets consumed by the registration
// engine and the nearest-neighbor index contract it queries.
//
// A PointSet is an ordered sequence of 2D or 3D points, optionally carrying
// per-point unit normals and an affine frame mapping local coordinates to
// world coordinates. The registration engine only ever reads a PointSet; the
// frame, in particular, is never mutated by any fit operation.
package pointset

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/alignkit/alignkit/spatialmath"
)

// Precision records the numeric type of the data a PointSet was built from.
// Coordinates are stored as float64 either way; the tag exists so that
// sets originating from different precisions are rejected at fit entry
// instead of silently mixed.
type Precision int

const (
	// Float32 marks single precision source data.
	Float32 Precision = iota
	// Float64 marks double precision source data.
	Float64
)

func (p Precision) String() string {
	if p == Float32 {
		return "float32"
	}
	return "float64"
}

// PointSet is an immutable ordered collection of points.
type PointSet struct {
	dims      int
	precision Precision
	points    []r3.Vector
	normals   []r3.Vector
	frame     *spatialmath.Transformation
}

// New creates a PointSet from points. dims must be 2 or 3; 2D points store
// their third component as 0. The slice is not copied.
func New(dims int, precision Precision, points []r3.Vector) (*PointSet, error) {
	if dims != 2 && dims != 3 {
		return nil, errors.Errorf("point sets must be 2D or 3D, got %dD", dims)
	}
	return &PointSet{dims: dims, precision: precision, points: points}, nil
}

// New2D creates a 2D PointSet from planar points.
func New2D(precision Precision, points []r2.Point) (*PointSet, error) {
	pts := make([]r3.Vector, len(points))
	for i, p := range points {
		pts[i] = r3.Vector{X: p.X, Y: p.Y}
	}
	return New(2, precision, pts)
}

// NewWithNormals creates a PointSet with one unit normal per point.
// Normals require 3D points.
func NewWithNormals(dims int, precision Precision, points, normals []r3.Vector) (*PointSet, error) {
	ps, err := New(dims, precision, points)
	if err != nil {
		return nil, err
	}
	if dims != 3 {
		return nil, errors.New("normals require 3D points")
	}
	if len(normals) != len(points) {
		return nil, errors.Errorf("have %d points but %d normals", len(points), len(normals))
	}
	ps.normals = normals
	return ps, nil
}

// WithFrame returns a shallow copy of the set whose local coordinates are
// mapped to world coordinates by frame. The frame's dimensionality must match
// the set's.
func (ps *PointSet) WithFrame(frame *spatialmath.Transformation) (*PointSet, error) {
	if frame != nil && frame.Dims() != ps.dims {
		return nil, errors.Errorf("frame is %dD but point set is %dD", frame.Dims(), ps.dims)
	}
	cp := *ps
	cp.frame = frame
	return &cp, nil
}

// Size returns the number of points.
func (ps *PointSet) Size() int {
	return len(ps.points)
}

// Dims returns 2 or 3.
func (ps *PointSet) Dims() int {
	return ps.dims
}

// Precision returns the set's numeric type tag.
func (ps *PointSet) Precision() Precision {
	return ps.precision
}

// HasNormals reports whether every point carries a normal.
func (ps *PointSet) HasNormals() bool {
	return ps.normals != nil
}

// Frame returns the local-to-world frame, or nil when the set is already in
// world coordinates.
func (ps *PointSet) Frame() *spatialmath.Transformation {
	return ps.frame
}

// Point returns the i-th point in local coordinates.
func (ps *PointSet) Point(i int) r3.Vector {
	return ps.points[i]
}

// Normal returns the i-th normal in local coordinates. Only valid when
// HasNormals is true.
func (ps *PointSet) Normal(i int) r3.Vector {
	return ps.normals[i]
}

// WorldPoint returns the i-th point with the frame applied.
func (ps *PointSet) WorldPoint(i int) r3.Vector {
	if ps.frame == nil {
		return ps.points[i]
	}
	return ps.frame.TransformPoint(ps.points[i])
}

// WorldNormal returns the i-th normal rotated into world coordinates.
func (ps *PointSet) WorldNormal(i int) r3.Vector {
	if ps.frame == nil {
		return ps.normals[i]
	}
	return ps.frame.TransformNormal(ps.normals[i])
}
