package distance

import "math"

// Dot calculates the dot product of two vectors.
// Assumes vectors are the same length (caller's responsibility).
func Dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// SquaredNorm returns the sum of squared components.
func SquaredNorm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return sum
}

// Norm returns the L2 magnitude of v.
func Norm(v []float32) float64 {
	return math.Sqrt(SquaredNorm(v))
}

// Cosine returns the cosine of the angle between a and b.
//
// ok is false when either vector has zero magnitude, in which case the cosine
// is undefined and 0 is returned. The result is clamped to [-1, 1] to absorb
// rounding. Assumes vectors are the same length (caller's responsibility).
func Cosine(a, b []float32) (cos float64, ok bool) {
	na, nb := SquaredNorm(a), SquaredNorm(b)
	if na == 0 || nb == 0 {
		return 0, false
	}
	cos = Dot(a, b) / (math.Sqrt(na) * math.Sqrt(nb))
	if math.IsNaN(cos) {
		return 0, false
	}
	return max(-1, min(1, cos)), true
}
