package utils

import (
	"math"
	"math/rand"
)

func DegToRad(degrees float64) float64 {
	return degrees * math.Pi / 180
}

func RadToDeg(radians float64) float64 {
	return radians * 180 / math.Pi
}

// Math.pow( x, 2 ) is slow, this is faster
func Square(n float64) float64 {
	return n * n
}

// SampleRandomIntRange samples a random integer within a range given by [min, max]
// using the given rand.Rand
func SampleRandomIntRange(min, max int, r *rand.Rand) int {
	return r.Intn(max-min+1) + min
}

// SampleIndicesWithoutReplacement picks n distinct indices from [0, size)
// using a partial Fisher-Yates shuffle of the given rand.Rand. n greater than
// size returns all indices.
func SampleIndicesWithoutReplacement(size, n int, r *rand.Rand) []int {
	if n > size {
		n = size
	}
	indices := make([]int, size)
	for i := range indices {
		indices[i] = i
	}
	for i := 0; i < n; i++ {
		j := SampleRandomIntRange(i, size-1, r)
		indices[i], indices[j] = indices[j], indices[i]
	}
	return indices[:n:n]
}
