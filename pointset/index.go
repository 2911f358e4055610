package pointset

import (
	"math"
	"sort"

	"github.com/golang/geo/r3"
)

// Neighbor is one nearest-neighbor query result.
type Neighbor struct {
	// Index into the target point set the index was built over.
	Index int
	// Distance is the Euclidean distance from the query point.
	Distance float64
}

// NeighborIndex is a prebuilt nearest-neighbor index over a target point
// set's world coordinates. Implementations must be safe for concurrent
// queries; the registration engine issues queries from multiple goroutines
// and never mutates the index.
type NeighborIndex interface {
	// QueryKNN returns up to k neighbors of p sorted ascending by distance.
	// k larger than the indexed set is clamped to its size.
	QueryKNN(p r3.Vector, k int) []Neighbor

	// Size returns the number of indexed points.
	Size() int
}

// flatIndex answers k-NN queries by exhaustive scan. It exists so the module
// and its tests are self-contained; swap in a spatial tree behind the same
// interface for large clouds.
type flatIndex struct {
	points []r3.Vector
}

// NewFlatIndex builds an exhaustive-scan index over the set's current world
// coordinates. Later changes to the set's frame are not reflected.
func NewFlatIndex(ps *PointSet) NeighborIndex {
	points := make([]r3.Vector, ps.Size())
	for i := range points {
		points[i] = ps.WorldPoint(i)
	}
	return &flatIndex{points: points}
}

func (fi *flatIndex) Size() int {
	return len(fi.points)
}

func (fi *flatIndex) QueryKNN(p r3.Vector, k int) []Neighbor {
	if k < 1 || len(fi.points) == 0 {
		return nil
	}
	if k > len(fi.points) {
		k = len(fi.points)
	}
	// Keep the k best seen so far; for the k=1 ICP hot path this is a plain
	// min scan.
	if k == 1 {
		best := Neighbor{Index: -1}
		bestDist2 := -1.0
		for i, q := range fi.points {
			d2 := dist2(p, q)
			if bestDist2 < 0 || d2 < bestDist2 {
				bestDist2 = d2
				best = Neighbor{Index: i, Distance: d2}
			}
		}
		best.Distance = math.Sqrt(best.Distance)
		return []Neighbor{best}
	}

	all := make([]Neighbor, len(fi.points))
	for i, q := range fi.points {
		all[i] = Neighbor{Index: i, Distance: dist2(p, q)}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Distance < all[j].Distance })
	out := all[:k:k]
	for i := range out {
		out[i].Distance = math.Sqrt(out[i].Distance)
	}
	return out
}

func dist2(a, b r3.Vector) float64 {
	dx, dy, dz := a.X-b.X, a.Y-b.Y, a.Z-b.Z
	return dx*dx + dy*dy + dz*dz
}
