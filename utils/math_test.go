package utils

import (
	"math/rand"
	"testing"

	"go.viam.com/test"
)

func TestSquare(t *testing.T) {
	test.That(t, Square(3), test.ShouldEqual, 9)
	test.That(t, Square(-0.5), test.ShouldEqual, 0.25)
}

func TestDegRadRoundTrip(t *testing.T) {
	test.That(t, RadToDeg(DegToRad(37)), test.ShouldAlmostEqual, 37)
}

func TestSampleIndicesWithoutReplacement(t *testing.T) {
	r := rand.New(rand.NewSource(3))

	got := SampleIndicesWithoutReplacement(10, 4, r)
	test.That(t, len(got), test.ShouldEqual, 4)
	seen := map[int]bool{}
	for _, idx := range got {
		test.That(t, idx, test.ShouldBeGreaterThanOrEqualTo, 0)
		test.That(t, idx, test.ShouldBeLessThan, 10)
		test.That(t, seen[idx], test.ShouldBeFalse)
		seen[idx] = true
	}

	// asking for more than exists returns everything once
	got = SampleIndicesWithoutReplacement(3, 7, r)
	test.That(t, len(got), test.ShouldEqual, 3)

	// same seed, same sample
	a := SampleIndicesWithoutReplacement(100, 10, rand.New(rand.NewSource(42)))
	b := SampleIndicesWithoutReplacement(100, 10, rand.New(rand.NewSource(42)))
	test.That(t, a, test.ShouldResemble, b)
}
