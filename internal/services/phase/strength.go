package phase

import (
	"math"
	"sort"
	"time"

	"Fractal/internal/domain/models"
	"Fractal/internal/services/features"
)

const (
	fullSampleCount   = 20
	defaultDivergence = 50.0
	recencyLimit      = 730 * 24 * time.Hour
	highTailReturn    = -0.20
)

// StrengthInput describes the phase strength measurement for one focus horizon.
type StrengthInput struct {
	Candles    []models.Candle
	Labels     []models.Phase
	Phase      models.Phase
	Focus      models.Horizon
	Days       int
	VolRegime  models.VolRegime
	Divergence *models.Divergence
}

// Strength measures forward returns over in.Days after every historical start of a zone
// with the current phase whose forward window is complete, and grades the result.
func Strength(in StrengthInput) models.PhaseStrength {
	out := models.PhaseStrength{
		Phase:           in.Phase,
		PhaseID:         in.Phase.ID(),
		Focus:           in.Focus,
		Tier:            models.TierOf(in.Focus),
		VolRegime:       in.VolRegime,
		DivergenceScore: defaultDivergence,
		Flags:           []string{},
	}
	n := len(in.Candles)
	if n > 0 {
		out.Asof = in.Candles[n-1].TS
	}
	if in.Divergence != nil {
		out.DivergenceScore = in.Divergence.Score
	}

	var samples []float64
	var lastStart time.Time
	for _, s := range spans(in.Labels) {
		if s.phase != in.Phase || s.start+in.Days > n-1 || in.Days <= 0 {
			continue
		}
		base := in.Candles[s.start].Close
		if base <= 0 {
			continue
		}
		samples = append(samples, in.Candles[s.start+in.Days].Close/base-1)
		lastStart = in.Candles[s.start].TS
	}
	out.Samples = len(samples)

	var p10 float64
	if len(samples) > 0 {
		sorted := append([]float64(nil), samples...)
		sort.Float64s(sorted)
		median := features.PercentileSorted(sorted, 0.5)
		p10 = features.PercentileSorted(sorted, 0.10)
		hits := 0
		for _, r := range samples {
			if features.Sign(r) == features.Sign(median) {
				hits++
			}
		}
		out.HitRate = float64(hits) / float64(len(samples))
		out.Expectancy = features.Mean(samples)
		if sd := features.StdDev(samples); sd > 0 {
			out.Sharpe = out.Expectancy / sd
		}
	}

	score := 100 * (0.35*out.HitRate +
		0.25*features.Clamp01((out.Sharpe+1)/2) +
		0.20*math.Min(1, float64(out.Samples)/fullSampleCount) +
		0.20*out.DivergenceScore/100)
	out.Score = features.Round(score, 2)
	out.StrengthIndex = features.Round(score/100, 4)
	out.Grade = strengthGrade(out.Score)
	out.HitRate = features.Round(out.HitRate, 4)
	out.Expectancy = features.Round(out.Expectancy, 6)
	out.Sharpe = features.Round(out.Sharpe, 4)

	switch {
	case out.Samples < 5:
		out.Flags = append(out.Flags, models.FlagVeryLowSample)
	case out.Samples < 10:
		out.Flags = append(out.Flags, models.FlagLowSample)
	}
	if in.Divergence != nil && (in.Divergence.Grade == "D" || in.Divergence.Grade == "F") {
		out.Flags = append(out.Flags, models.FlagHighDivergence)
	}
	if len(samples) > 0 && p10 < highTailReturn {
		out.Flags = append(out.Flags, models.FlagHighTail)
	}
	if lastStart.IsZero() || out.Asof.Sub(lastStart) > recencyLimit {
		out.Flags = append(out.Flags, models.FlagLowRecency)
	}
	if out.Sharpe < 0 {
		out.Flags = append(out.Flags, models.FlagNegativeSharpe)
	}
	if in.VolRegime == models.VolCrisis {
		out.Flags = append(out.Flags, models.FlagVolCrisis)
	}
	return out
}

func strengthGrade(score float64) string {
	switch {
	case score >= 80:
		return "A"
	case score >= 65:
		return "B"
	case score >= 50:
		return "C"
	case score >= 35:
		return "D"
	default:
		return "F"
	}
}
