package refl

import "math"

// Nice rounds v to the given number of significant digits.
//
//	Nice(0.0314159, 2) == 0.031
func Nice(v float64, digits int) float64 {
	if v == 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	place := math.Floor(math.Log10(math.Abs(v)))
	scale := math.Pow(10, place-float64(digits-1))
	return math.Copysign(math.Floor(math.Abs(v)/scale+0.5)*scale, v)
}
