package analog

import (
	"math"
	"math/rand"
	"time"

	"Fractal/internal/domain/models"
)

var epoch = time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)

// randomWalk generates n daily candles from a seeded geometric random walk with a slow cycle.
func randomWalk(n int, seed int64) []models.Candle {
	rng := rand.New(rand.NewSource(seed))
	out := make([]models.Candle, n)
	price := 100.0
	for i := 0; i < n; i++ {
		drift := 0.002 * math.Sin(float64(i)/40)
		price *= math.Exp(drift + 0.02*rng.NormFloat64())
		out[i] = models.Candle{
			Symbol: "BTC",
			TS:     epoch.AddDate(0, 0, i),
			Open:   price,
			High:   price * 1.01,
			Low:    price * 0.99,
			Close:  price,
			Volume: 1000,
		}
	}
	return out
}

func matchAt(id string, to time.Time, sim, vol, dd, stab float64) models.Match {
	return models.Match{
		ID:         id,
		DateRange:  models.DateRange{From: to.AddDate(0, 0, -29), To: to},
		Similarity: sim,
		SubScores:  models.SubScores{VolatilityMatch: vol, DrawdownShape: dd, Stability: stab},
	}
}
