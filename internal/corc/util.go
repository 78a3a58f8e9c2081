package corc

import (
	"fmt"
	"math"
)

// Clamp restricts a value to the range [min, max].
func Clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// formatFloat formats a float for display.
// If the float is an integer, it is formatted as an integer.
// Otherwise, it is formatted with 2 decimal places.
func formatFloat(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%.2f", f)
}

// kgToTonnes converts kilograms to metric tonnes.
func kgToTonnes(kg float64) float64 {
	return kg / KgPerTonne
}
