package util

import "math"

// ArgMax returns the index of the largest value, or -1 for an empty slice.
// Ties resolve to the first occurrence.
func ArgMax(vs []float64) int {
	if len(vs) == 0 {
		return -1
	}
	best := 0
	for i := 1; i < len(vs); i++ {
		if vs[i] > vs[best] {
			best = i
		}
	}
	return best
}

// ApproxEqual reports whether a and b differ by at most tol.
func ApproxEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

// SumFloats adds up a slice.
func SumFloats(vs []float64) float64 {
	sum := 0.0
	for _, v := range vs {
		sum += v
	}
	return sum
}
