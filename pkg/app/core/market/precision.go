package market

import "math"

// Epsilon is the magnitude below which sizes and positions are treated as
// exactly zero.
const Epsilon = 1e-7

// SnapZero returns 0 when |x| < Epsilon, otherwise x. Every size or position
// that results from subtraction goes through here before it is stored.
func SnapZero(x float64) float64 {
	if math.Abs(x) < Epsilon {
		return 0
	}
	return x
}

// IsZero reports whether x snaps to zero
func IsZero(x float64) bool {
	return SnapZero(x) == 0
}
