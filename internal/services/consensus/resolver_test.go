package consensus

import (
	"math"
	"math/rand"
	"testing"

	"Fractal/internal/domain/models"
	"Fractal/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var normal = models.RegimeContext{Phase: models.PhaseMarkup, VolRegime: models.VolNormal}

func votes(medians map[models.Horizon]float64) []models.VoteInput {
	out := make([]models.VoteInput, 0, len(medians))
	for _, h := range models.AllHorizons {
		if m, ok := medians[h]; ok {
			out = append(out, models.VoteInput{Horizon: h, MedianReturn: m, Available: true})
		}
	}
	return out
}

func allSix(m float64) map[models.Horizon]float64 {
	out := map[models.Horizon]float64{}
	for _, h := range models.AllHorizons {
		out[h] = m
	}
	return out
}

func TestAllBullishIsFullConsensus(t *testing.T) {
	eng := config.DefaultEngine()
	res := NewResolver(&eng).Resolve(votes(allSix(0.04)), normal)

	assert.Equal(t, 100, res.ConsensusIndex)
	assert.Equal(t, models.Bullish, res.Direction)
	assert.Equal(t, models.ConflictNone, res.ConflictLevel)
	assert.Equal(t, models.ActionBuy, res.Resolved.Action)
	assert.Equal(t, models.ModeTrendFollow, res.Resolved.Mode)
	assert.Equal(t, 1.0, res.Resolved.SizeMultiplier)
	assert.Equal(t, models.TierStructure, res.DominantTier)
	assert.False(t, res.StructuralLock)
	assert.Empty(t, res.Missing)
	require.Len(t, res.Votes, 6)
}

func TestAllBullishEqualWeights(t *testing.T) {
	eng := config.DefaultEngine()
	for i := range eng.Horizons {
		eng.Horizons[i].BaseWeight = 1.0 / 6
	}
	res := NewResolver(&eng).Resolve(votes(allSix(0.02)), normal)
	assert.Equal(t, 100, res.ConsensusIndex)
	assert.Equal(t, models.ConflictNone, res.ConflictLevel)
	assert.Equal(t, models.ActionBuy, res.Resolved.Action)
}

func TestAllBearish(t *testing.T) {
	eng := config.DefaultEngine()
	res := NewResolver(&eng).Resolve(votes(allSix(-0.03)), normal)
	assert.Equal(t, 0, res.ConsensusIndex)
	assert.Equal(t, models.ActionSell, res.Resolved.Action)
}

func TestStructuralLockOverridesTiming(t *testing.T) {
	eng := config.DefaultEngine()
	r := NewResolver(&eng)
	in := votes(map[models.Horizon]float64{
		models.Horizon7d:   0.25,
		models.Horizon14d:  0.30,
		models.Horizon30d:  0.10,
		models.Horizon90d:  0.12,
		models.Horizon180d: -0.04,
		models.Horizon365d: -0.02,
	})

	for _, regime := range []models.VolRegime{models.VolNormal, models.VolHigh, models.VolCrisis} {
		res := r.Resolve(in, models.RegimeContext{Phase: models.PhaseDistribution, VolRegime: regime})
		assert.True(t, res.StructuralLock, regime)
		assert.True(t, res.TimingOverrideBlocked, regime)
		assert.Equal(t, models.TierStructure, res.DominantTier)
		assert.Equal(t, models.Bearish, res.Direction)
		assert.Equal(t, models.ConflictStructuralLock, res.ConflictLevel)
		assert.Equal(t, models.ActionSell, res.Resolved.Action)
		assert.Equal(t, models.ModeCounterSignalBlocked, res.Resolved.Mode)
		assert.Equal(t, 0.5, res.Resolved.SizeMultiplier)
	}
}

func TestCounterTrendHalvesSize(t *testing.T) {
	eng := config.DefaultEngine()
	weights := []float64{0.2, 0.2, 0.25, 0.25, 0.05, 0.05}
	for i := range eng.Horizons {
		eng.Horizons[i].BaseWeight = weights[i]
	}
	in := votes(map[models.Horizon]float64{
		models.Horizon7d:   0.02,
		models.Horizon14d:  0.02,
		models.Horizon30d:  0.03,
		models.Horizon90d:  0.05,
		models.Horizon180d: -0.05,
		models.Horizon365d: -0.08,
	})
	res := NewResolver(&eng).Resolve(in, normal)

	assert.False(t, res.StructuralLock)
	assert.Equal(t, 90, res.ConsensusIndex)
	assert.Equal(t, models.ConflictModerate, res.ConflictLevel)
	assert.Equal(t, models.ActionBuy, res.Resolved.Action)
	assert.Equal(t, models.ModeCounterTrend, res.Resolved.Mode)
	assert.Equal(t, 0.25, res.Resolved.SizeMultiplier)
}

func TestIndexIsAffineInWeightedNet(t *testing.T) {
	eng := config.DefaultEngine()
	in := votes(map[models.Horizon]float64{
		models.Horizon7d:   -0.03,
		models.Horizon14d:  0.02,
		models.Horizon30d:  0.04,
		models.Horizon90d:  -0.06,
		models.Horizon180d: 0.08,
		models.Horizon365d: 0.10,
	})
	res := NewResolver(&eng).Resolve(in, normal)

	var sw, sws float64
	for _, v := range res.Votes {
		sw += v.Weight
		sws += v.Weight * v.Direction.Score()
	}
	net := sws / sw
	assert.Equal(t, int(math.Round(50+50*net)), res.ConsensusIndex)
	assert.InDelta(t, 100*net, float64(2*res.ConsensusIndex-100), 2)
}

func TestSevereConflictHolds(t *testing.T) {
	eng := config.DefaultEngine()
	in := votes(map[models.Horizon]float64{
		models.Horizon7d:   0.02,
		models.Horizon14d:  0.02,
		models.Horizon30d:  -0.03,
		models.Horizon90d:  -0.05,
		models.Horizon180d: 0.05,
		models.Horizon365d: 0.08,
	})
	res := NewResolver(&eng).Resolve(in, normal)
	assert.Equal(t, models.ConflictSevere, res.ConflictLevel)
	assert.Equal(t, models.ActionHold, res.Resolved.Action)
	assert.Equal(t, models.ModeWait, res.Resolved.Mode)
	assert.Equal(t, 0.0, res.Resolved.SizeMultiplier)
}

func TestMissingVotesDegradeGracefully(t *testing.T) {
	eng := config.DefaultEngine()
	r := NewResolver(&eng)

	in := votes(allSix(0.03))
	in[5] = models.VoteInput{Horizon: models.Horizon365d, Reason: "INSUFFICIENT_HISTORY"}
	res := r.Resolve(in, normal)
	assert.False(t, res.Degraded)
	assert.Equal(t, []models.Horizon{models.Horizon365d}, res.Missing)
	assert.Equal(t, 0.75, res.Coverage)
	assert.Equal(t, 0.75, res.Resolved.SizeMultiplier)
	assert.Equal(t, "INSUFFICIENT_HISTORY", res.Votes[5].Reason)
	assert.Equal(t, 0.0, res.Votes[5].Weight)

	few := r.Resolve(votes(map[models.Horizon]float64{models.Horizon7d: 0.05, models.Horizon14d: 0.05}), normal)
	assert.True(t, few.Degraded)
	assert.Equal(t, 50, few.ConsensusIndex)
	assert.Equal(t, models.Flat, few.Direction)
	assert.Equal(t, models.ActionHold, few.Resolved.Action)
	assert.Equal(t, models.ModeWait, few.Resolved.Mode)
	assert.Len(t, few.Missing, 4)
}

func TestCapitulationClampsTiming(t *testing.T) {
	eng := config.DefaultEngine()
	res := NewResolver(&eng).Resolve(votes(allSix(0.02)), models.RegimeContext{Phase: models.PhaseCapitulation, VolRegime: models.VolNormal})
	assert.InDelta(t, 0.05, res.Votes[0].Weight, 1e-12)
	assert.InDelta(t, 0.15, res.Votes[2].Weight, 1e-12)
}

func TestIndexAlwaysBounded(t *testing.T) {
	eng := config.DefaultEngine()
	r := NewResolver(&eng)
	rng := rand.New(rand.NewSource(42))
	regimes := []models.VolRegime{models.VolLow, models.VolNormal, models.VolHigh, models.VolExpansion, models.VolCrisis}
	for i := 0; i < 500; i++ {
		m := map[models.Horizon]float64{}
		for _, h := range models.AllHorizons {
			if rng.Float64() < 0.85 {
				m[h] = rng.NormFloat64() * 0.05
			}
		}
		res := r.Resolve(votes(m), models.RegimeContext{Phase: models.PhaseAccumulation, VolRegime: regimes[rng.Intn(len(regimes))]})
		assert.GreaterOrEqual(t, res.ConsensusIndex, 0)
		assert.LessOrEqual(t, res.ConsensusIndex, 100)
		assert.GreaterOrEqual(t, res.Resolved.SizeMultiplier, 0.0)
		assert.LessOrEqual(t, res.Resolved.SizeMultiplier, 1.0)
	}
}
