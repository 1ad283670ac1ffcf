// Package safeconv provides integer conversions that saturate instead of wrapping.
package safeconv

import "math"

// Uint64ToInt64 converts v to int64, clamping at math.MaxInt64.
func Uint64ToInt64(v uint64) int64 {
	if v > math.MaxInt64 {
		return math.MaxInt64
	}

	return int64(v)
}

// Float64ToInt64 truncates v toward zero, clamping to the int64 range.
// NaN converts to zero.
func Float64ToInt64(v float64) int64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v >= math.MaxInt64:
		return math.MaxInt64
	case v <= math.MinInt64:
		return math.MinInt64
	default:
		return int64(v)
	}
}
