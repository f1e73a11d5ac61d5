package service

import (
	"math"

	"comment-map/engine"
)

// NormalizeOrdinates min-max scales each axis independently onto [-1, 1].
// A degenerate axis, where every value is equal, collapses to 0, as do
// non-finite values.
func NormalizeOrdinates(points []engine.Point) []engine.Point {
	out := make([]engine.Point, len(points))
	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	for i, p := range points {
		xs[i], ys[i] = p.X, p.Y
	}
	xs = normalizeAxis(xs)
	ys = normalizeAxis(ys)
	for i := range out {
		out[i] = engine.Point{X: xs[i], Y: ys[i]}
	}
	return out
}

func normalizeAxis(values []float64) []float64 {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		if !isFinite(v) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}

	out := make([]float64, len(values))
	if hi <= lo {
		return out
	}
	// Halved operands keep the differences finite across the float64 range.
	span := hi/2 - lo/2
	for i, v := range values {
		if !isFinite(v) {
			continue
		}
		n := 2*((v/2-lo/2)/span) - 1
		if math.IsNaN(n) {
			continue
		}
		out[i] = math.Max(-1, math.Min(1, n))
	}
	return out
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
