// Package mathx provides small numeric helpers for formatting instrument values
package mathx

import "math"

// Round rounds a float to the nearest "unit" (0.1 for tenth, 0.01 for hundredth, and so on).
// Halves round away from zero.
func Round(x, unit float64) float64 {
	return math.Round(x/unit) * unit
}

// Clamp limits x to [low, high]
func Clamp(x, low, high float64) float64 {
	return math.Max(low, math.Min(x, high))
}
