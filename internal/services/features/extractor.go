package features

import (
	"math"
)

// DailyBarsPerYear annualizes daily series; crypto trades every calendar day.
const DailyBarsPerYear = 365

// LogReturns computes r_t = ln(C_t / C_{t-1}) over a close series.
// It returns a slice of length len(closes)-1, or nil if insufficient data.
func LogReturns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	out := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		prev := closes[i-1]
		cur := closes[i]
		if prev <= 0 || cur <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, math.Log(cur/prev))
	}
	return out
}

// LogReturnsFromPath converts a normalized path (v_i = P_i/P_0 - 1) to log returns.
func LogReturnsFromPath(path []float64) []float64 {
	closes := make([]float64, len(path))
	for i, v := range path {
		closes[i] = 1 + v
	}
	return LogReturns(closes)
}

// RealizedVolatility computes the annualized sample volatility of the last window log returns.
func RealizedVolatility(logReturns []float64, window int, barsPerYear float64) float64 {
	if window <= 1 || len(logReturns) < window {
		return 0
	}
	sum := 0.0
	sum2 := 0.0
	for i := len(logReturns) - window; i < len(logReturns); i++ {
		r := logReturns[i]
		sum += r
		sum2 += r * r
	}
	n := float64(window)
	mean := sum / n
	variance := (sum2 - n*mean*mean) / (n - 1)
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance * barsPerYear)
}

// SMA returns the simple moving average of the n values ending at index end (inclusive).
// ok is false when fewer than n values are available.
func SMA(values []float64, end, n int) (float64, bool) {
	if n <= 0 || end < n-1 || end >= len(values) {
		return 0, false
	}
	sum := 0.0
	for i := end - n + 1; i <= end; i++ {
		sum += values[i]
	}
	return sum / float64(n), true
}

// RollingSMA returns the n-period SMA for each index; entries before n-1 are NaN.
func RollingSMA(values []float64, n int) []float64 {
	out := make([]float64, len(values))
	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= n {
			sum -= values[i-n]
		}
		if i >= n-1 && n > 0 {
			out[i] = sum / float64(n)
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}
