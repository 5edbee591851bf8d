package analog

import (
	"math"

	"Fractal/internal/services/features"
)

// Shape similarity blends correlation with an RMS-distance kernel.
const (
	corrWeight = 0.6
	rmsWeight  = 0.4
)

// Similarity compares two normalized vectors of equal length and returns a score in [0,1]:
// 0.6*((pearson+1)/2) + 0.4*exp(-rms/sigma), sigma being the spread of a.
// Identical vectors score exactly 1.
func Similarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	if equal(a, b) {
		return 1
	}
	corr := features.Pearson(a, b)

	var ss float64
	for i := range a {
		d := a[i] - b[i]
		ss += d * d
	}
	rms := math.Sqrt(ss / float64(len(a)))
	sigma := features.StdDev(a)
	if sigma < 1e-9 {
		sigma = 1e-9
	}

	return features.Clamp01(corrWeight*(corr+1)/2 + rmsWeight*math.Exp(-rms/sigma))
}

// VolatilityMatch compares the log-return volatility of two paths: 1 - |va-vb|/max(va,vb).
func VolatilityMatch(a, b []float64) float64 {
	va := features.StdDev(features.LogReturnsFromPath(a))
	vb := features.StdDev(features.LogReturnsFromPath(b))
	return ratioScore(va, vb)
}

// DrawdownShape compares max-drawdown depth and relative trough timing of two paths.
func DrawdownShape(a, b []float64) float64 {
	da, ta := pathDrawdown(a)
	db, tb := pathDrawdown(b)
	return features.Clamp01(0.6*ratioScore(da, db) + 0.4*(1-math.Abs(ta-tb)))
}

// Stability scores how smooth a path is around its linear trend, from the lag-1
// autocorrelation of the OLS residuals mapped to [0,1]. A perfectly linear path scores 1.
func Stability(v []float64) float64 {
	n := len(v)
	if n < 3 {
		return 0
	}
	var sx, sy, sxx, sxy float64
	for i, y := range v {
		x := float64(i)
		sx += x
		sy += y
		sxx += x * x
		sxy += x * y
	}
	fn := float64(n)
	slope := (fn*sxy - sx*sy) / (fn*sxx - sx*sx)
	icpt := (sy - slope*sx) / fn

	res := make([]float64, n)
	var rv float64
	for i, y := range v {
		res[i] = y - (icpt + slope*float64(i))
		rv += res[i] * res[i]
	}
	if rv < 1e-18 {
		return 1
	}
	var cov float64
	for i := 1; i < n; i++ {
		cov += res[i] * res[i-1]
	}
	return features.Clamp01((1 + cov/rv) / 2)
}

func pathDrawdown(v []float64) (depth, timing float64) {
	equity := make([]float64, len(v))
	for i, x := range v {
		equity[i] = 1 + x
	}
	d, trough := features.MaxDrawdown(equity)
	if len(v) > 1 {
		timing = float64(trough) / float64(len(v)-1)
	}
	return d, timing
}

func ratioScore(a, b float64) float64 {
	hi := math.Max(a, b)
	if hi == 0 {
		return 1
	}
	return features.Clamp01(1 - math.Abs(a-b)/hi)
}

func equal(a, b []float64) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
