package phase

import (
	"Fractal/internal/domain/models"
	"Fractal/internal/services/features"
)

// Ratio cut-offs between the LOW, NORMAL, HIGH, EXPANSION and CRISIS regimes.
var volRegimeCuts = []struct {
	below  float64
	regime models.VolRegime
}{
	{0.75, models.VolLow},
	{1.25, models.VolNormal},
	{1.75, models.VolHigh},
	{2.5, models.VolExpansion},
}

// ClassifyVolatility compares the annualized realized volatility of the last shortWin
// log returns with a baseline over up to longWin returns.
func ClassifyVolatility(candles []models.Candle, shortWin, longWin int) models.VolatilitySnapshot {
	lr := features.LogReturns(models.Closes(candles))
	if len(lr) < shortWin || shortWin < 2 {
		return models.VolatilitySnapshot{Regime: models.VolNormal, Ratio: 1}
	}
	realized := features.RealizedVolatility(lr, shortWin, features.DailyBarsPerYear)
	baseline := features.RealizedVolatility(lr, min(longWin, len(lr)), features.DailyBarsPerYear)

	ratio := 1.0
	if baseline > 0 {
		ratio = realized / baseline
	}
	regime := models.VolCrisis
	for _, c := range volRegimeCuts {
		if ratio < c.below {
			regime = c.regime
			break
		}
	}
	return models.VolatilitySnapshot{
		Regime:      regime,
		RealizedVol: features.Round(realized, 6),
		BaselineVol: features.Round(baseline, 6),
		Ratio:       features.Round(ratio, 4),
	}
}
