package phase

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"Fractal/internal/domain/models"
	"Fractal/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2016, 1, 1, 0, 0, 0, 0, time.UTC)

func series(closes []float64) []models.Candle {
	out := make([]models.Candle, len(closes))
	for i, c := range closes {
		out[i] = models.Candle{TS: epoch.AddDate(0, 0, i), Open: c, High: c, Low: c, Close: c}
	}
	return out
}

// trend builds n closes growing by rate per day with small seeded noise.
func trend(start float64, n int, rate float64, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float64, n)
	p := start
	for i := range out {
		p *= 1 + rate + 0.002*rng.NormFloat64()
		out[i] = p
	}
	return out
}

func TestLabelWarmupIsUnknown(t *testing.T) {
	c := NewClassifier(config.DefaultEngine().Phase)
	labels := c.Label(series(trend(100, 300, 0.003, 1)))
	for i := 0; i < c.Warmup()-1; i++ {
		require.Equal(t, models.PhaseUnknown, labels[i])
	}
	assert.NotEqual(t, models.PhaseUnknown, labels[len(labels)-1])
}

func TestLabelMarkupAndMarkdown(t *testing.T) {
	c := NewClassifier(config.DefaultEngine().Phase)

	up := c.Label(series(trend(100, 400, 0.004, 2)))
	assert.Equal(t, models.PhaseMarkup, up[len(up)-1])

	closes := append(trend(100, 300, 0.003, 3), trend(240, 150, -0.005, 4)...)
	down := c.Label(series(closes))
	assert.Equal(t, models.PhaseMarkdown, down[len(down)-1])
}

func TestLabelCapitulation(t *testing.T) {
	c := NewClassifier(config.DefaultEngine().Phase)
	closes := trend(100, 320, 0.001, 5)
	closes = append(closes, closes[len(closes)-1]*0.80)
	labels := c.Label(series(closes))
	assert.Equal(t, models.PhaseCapitulation, labels[len(labels)-1])
}

func TestLabelPrefixStable(t *testing.T) {
	c := NewClassifier(config.DefaultEngine().Phase)
	candles := series(append(trend(100, 300, 0.003, 6), trend(240, 200, -0.002, 7)...))
	full := c.Label(candles)
	prefix := c.Label(candles[:420])
	assert.Equal(t, full[:420], prefix)
}

func TestZonesAreContiguous(t *testing.T) {
	c := NewClassifier(config.DefaultEngine().Phase)
	candles := series(append(trend(100, 300, 0.003, 8), trend(240, 300, -0.003, 9)...))
	snap, labels := c.Snapshot(candles)
	require.NotEmpty(t, snap.Zones)

	total := 0
	for i, z := range snap.Zones {
		assert.NotEqual(t, models.PhaseUnknown, z.Phase)
		assert.False(t, z.To.Before(z.From))
		total += z.Days
		if i > 0 {
			prev := snap.Zones[i-1]
			assert.NotEqual(t, prev.Phase, z.Phase)
			assert.Equal(t, prev.To.AddDate(0, 0, 1), z.From)
		}
	}
	known := 0
	for _, l := range labels {
		if l != models.PhaseUnknown {
			known++
		}
	}
	assert.Equal(t, known, total)
	last := snap.Zones[len(snap.Zones)-1]
	assert.Equal(t, last.Phase, snap.Phase)
	assert.Equal(t, last.From, snap.Since)
}

func TestClassifyVolatility(t *testing.T) {
	rng := rand.New(rand.NewSource(10))
	closes := make([]float64, 400)
	p := 100.0
	for i := range closes {
		sd := 0.01
		if i >= 380 {
			sd = 0.06
		}
		p *= math.Exp(sd * rng.NormFloat64())
		closes[i] = p
	}
	snap := ClassifyVolatility(series(closes), 20, 252)
	assert.Contains(t, []models.VolRegime{models.VolExpansion, models.VolCrisis}, snap.Regime)
	assert.Greater(t, snap.Ratio, 1.75)

	calm := ClassifyVolatility(series(trend(100, 10, 0.001, 1)), 20, 252)
	assert.Equal(t, models.VolNormal, calm.Regime)
}

func TestStrength(t *testing.T) {
	labels := make([]models.Phase, 200)
	closes := make([]float64, 200)
	for i := range closes {
		closes[i] = 100 + float64(i)
		labels[i] = models.PhaseAccumulation
		if (i/10)%2 == 0 {
			labels[i] = models.PhaseMarkup
		}
	}
	st := Strength(StrengthInput{
		Candles:   series(closes),
		Labels:    labels,
		Phase:     models.PhaseMarkup,
		Focus:     models.Horizon7d,
		Days:      7,
		VolRegime: models.VolCrisis,
	})

	assert.Equal(t, 10, st.Samples)
	assert.Equal(t, 1.0, st.HitRate)
	assert.Equal(t, models.TierTiming, st.Tier)
	assert.Equal(t, 2, st.PhaseID)
	assert.Equal(t, 50.0, st.DivergenceScore)
	assert.Contains(t, st.Flags, models.FlagVolCrisis)
	assert.NotContains(t, st.Flags, models.FlagLowSample)
	assert.GreaterOrEqual(t, st.Score, 0.0)
	assert.LessOrEqual(t, st.Score, 100.0)

	none := Strength(StrengthInput{Candles: series(closes), Labels: labels, Phase: models.PhaseCapitulation, Focus: models.Horizon30d, Days: 30})
	assert.Equal(t, 0, none.Samples)
	assert.Equal(t, "F", none.Grade)
	assert.Contains(t, none.Flags, models.FlagVeryLowSample)
	assert.Contains(t, none.Flags, models.FlagLowRecency)
}
