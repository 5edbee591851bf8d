package analog

import (
	"fmt"
	"math"
	"sort"

	"Fractal/internal/domain/models"
	"Fractal/internal/services/features"
)

// Aggregate builds the per-day percentile curves and terminal statistics of the matches'
// first days forward returns. Fewer than minMatches matches is a readiness condition.
func Aggregate(matches []models.Match, days, minMatches int) (models.AftermathDistribution, error) {
	if len(matches) < minMatches || len(matches) == 0 {
		return models.AftermathDistribution{}, models.NewNotReady(models.ErrInsufficientMatches, minMatches, len(matches),
			"not enough non-overlapping analogs with a complete aftermath")
	}
	if days <= 0 {
		return models.AftermathDistribution{}, fmt.Errorf("%w: aftermath days %d", models.ErrComputation, days)
	}
	for _, m := range matches {
		if len(m.AftermathReturns) < days {
			return models.AftermathDistribution{}, fmt.Errorf("%w: match %s has %d aftermath days, need %d",
				models.ErrComputation, m.ID, len(m.AftermathReturns), days)
		}
	}

	k := len(matches)
	series := models.PercentileSeries{
		P10: make([]float64, days),
		P25: make([]float64, days),
		P50: make([]float64, days),
		P75: make([]float64, days),
		P90: make([]float64, days),
	}
	col := make([]float64, k)
	for t := 0; t < days; t++ {
		for i, m := range matches {
			col[i] = m.AftermathReturns[t]
		}
		sort.Float64s(col)
		series.P10[t] = features.PercentileSorted(col, 0.10)
		series.P25[t] = features.PercentileSorted(col, 0.25)
		series.P50[t] = features.PercentileSorted(col, 0.50)
		series.P75[t] = features.PercentileSorted(col, 0.75)
		series.P90[t] = features.PercentileSorted(col, 0.90)
	}

	return models.AftermathDistribution{
		Days:   days,
		Series: series,
		Stats:  terminalStats(matches, days),
	}, nil
}

func terminalStats(matches []models.Match, days int) models.AftermathStats {
	k := len(matches)
	terminal := make([]float64, k)
	maxDD := make([]float64, k)
	for i, m := range matches {
		path := m.AftermathReturns[:days]
		terminal[i] = path[days-1]
		equity := make([]float64, days+1)
		equity[0] = 1
		for t, r := range path {
			equity[t+1] = 1 + r
		}
		maxDD[i], _ = features.MaxDrawdown(equity)
	}

	sorted := make([]float64, k)
	copy(sorted, terminal)
	sort.Float64s(sorted)
	median := features.PercentileSorted(sorted, 0.5)

	hits, ups := 0, 0
	for _, r := range terminal {
		if features.Sign(r) == features.Sign(median) {
			hits++
		}
		if r > 0 {
			ups++
		}
	}

	return models.AftermathStats{
		SampleSize:   k,
		HitRate:      float64(hits) / float64(k),
		MedianReturn: median,
		MeanReturn:   features.Mean(terminal),
		AvgMaxDD:     features.Mean(maxDD),
		P95MaxDD:     features.Percentile(maxDD, 0.95),
		P10Return:    features.PercentileSorted(sorted, 0.10),
		P90Return:    features.PercentileSorted(sorted, 0.90),
		WorstReturn:  sorted[0],
		BestReturn:   sorted[k-1],
		UpFraction:   float64(ups) / float64(k),
	}
}

// MeanSubScores averages similarity and stability across matches.
func MeanSubScores(matches []models.Match) (similarity, stability float64) {
	if len(matches) == 0 {
		return 0, 0
	}
	for _, m := range matches {
		similarity += m.Similarity
		stability += m.SubScores.Stability
	}
	n := float64(len(matches))
	return similarity / n, stability / n
}

// QualityScore rates a match set in [0,1] from mean similarity, mean stability and fill ratio.
func QualityScore(matches []models.Match, topK int) float64 {
	if len(matches) == 0 || topK <= 0 {
		return 0
	}
	sim, stab := MeanSubScores(matches)
	fill := math.Min(1, float64(len(matches))/float64(topK))
	return features.Round(features.Clamp01(0.5*sim+0.2*stab+0.3*fill), 4)
}
