package forecast

import (
	"math"

	"Fractal/internal/domain/models"
	"Fractal/internal/services/features"
	"Fractal/pkg/config"
)

// Compare measures agreement between the synthetic and replay return paths over their
// common length. PERFECT_MATCH (grade A) is set iff rmse < PerfectRMSE and correlation >
// PerfectCorr, and then no warning flag is raised.
func Compare(synthetic, replay []float64, cfg config.DivergenceConfig) models.Divergence {
	n := min(len(synthetic), len(replay))
	if n == 0 {
		return models.Divergence{Grade: "F", Flags: []string{}}
	}
	s, r := synthetic[:n], replay[:n]

	var ss, ape float64
	apeN := 0
	mismatch := 0
	prevS, prevR := 0.0, 0.0
	for t := 0; t < n; t++ {
		d := s[t] - r[t]
		ss += d * d
		if base := 1 + r[t]; base > 0 {
			ape += math.Abs(d) / base
			apeN++
		}
		if features.Sign(s[t]-prevS) != features.Sign(r[t]-prevR) {
			mismatch++
		}
		prevS, prevR = s[t], r[t]
	}

	out := models.Divergence{
		Samples:                n,
		RMSE:                   math.Sqrt(ss / float64(n)),
		TerminalDelta:          s[n-1] - r[n-1],
		DirectionalMismatchPct: float64(mismatch) / float64(n),
		Flags:                  []string{},
	}
	if apeN > 0 {
		out.MAPE = ape / float64(apeN)
	}
	if ss == 0 {
		out.Correlation = 1
	} else {
		out.Correlation = features.Pearson(s, r)
	}

	out.Score = features.Round(100*(0.5*features.Clamp01(1-out.RMSE/(2*cfg.HighRMSE))+0.5*(out.Correlation+1)/2), 2)

	if out.RMSE < cfg.PerfectRMSE && out.Correlation > cfg.PerfectCorr {
		out.Grade = "A"
		out.Flags = append(out.Flags, models.FlagPerfectMatch)
		return out
	}

	out.Grade = "F"
	for _, g := range cfg.Grades {
		if out.RMSE < g.MaxRMSE && out.Correlation > g.MinCorr {
			out.Grade = g.Grade
			break
		}
	}

	if out.RMSE > cfg.HighRMSE {
		out.Flags = append(out.Flags, models.FlagHighDivergence)
	}
	if out.Correlation < cfg.LowCorr {
		out.Flags = append(out.Flags, models.FlagLowCorr)
	}
	if math.Abs(out.TerminalDelta) > cfg.TermDrift {
		out.Flags = append(out.Flags, models.FlagTermDrift)
	}
	if out.DirectionalMismatchPct > cfg.DirMismatch {
		out.Flags = append(out.Flags, models.FlagDirMismatch)
	}
	return out
}
