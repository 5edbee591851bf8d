package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Fractal/internal/domain/models"
	"Fractal/internal/services/consensus"
	"Fractal/pkg/logger"
	"Fractal/pkg/util"
)

func newIntel(f *fixture) *IntelUseCase {
	return NewIntelUseCase(f.focus, consensus.NewResolver(f.eng), logger.Nop())
}

func TestIntelTimelineReplaysTrailingDays(t *testing.T) {
	series := walk("SPX", 1000, 8)
	f := newFixture(t, series)
	uc := newIntel(f)
	ctx := context.Background()

	tl, err := uc.Timeline(ctx, "spx", 15)
	require.NoError(t, err)
	assert.Equal(t, "SPX", tl.Meta.Symbol)
	assert.Equal(t, 15, tl.Meta.Days)
	assert.Equal(t, series[999].TS, tl.Meta.Asof)
	require.Len(t, tl.Series, 15)
	for i, p := range tl.Series {
		assert.Equal(t, util.FormatDate(series[985+i].TS), p.Date)
		assert.NotEmpty(t, p.PhaseGrade)
		assert.NotEmpty(t, p.VolRegime)
	}

	locks, structure := 0, 0
	for _, p := range tl.Series {
		if p.StructuralLock {
			locks++
		}
		if p.DominanceTier == models.TierStructure {
			structure++
		}
	}
	assert.Equal(t, locks, tl.Stats.LockDays)
	assert.InDelta(t, 100*float64(structure)/15, tl.Stats.StructureDominancePct, 0.01)
	assert.Contains(t, []string{models.TrendUp, models.TrendDown, models.TrendFlat}, tl.Stats.Trend7d)

	hits := f.metrics.hits()
	again, err := uc.Timeline(ctx, "SPX", 15)
	require.NoError(t, err)
	assert.Equal(t, hits+1, f.metrics.hits())
	assert.Equal(t, tl.Series, again.Series)
}

func TestIntelTimelineSeesNoLaterCandles(t *testing.T) {
	series := walk("SPX", 1000, 8)
	ctx := context.Background()

	short, err := newIntel(newFixture(t, series[:995])).Timeline(ctx, "SPX", 5)
	require.NoError(t, err)
	full, err := newIntel(newFixture(t, series)).Timeline(ctx, "SPX", 10)
	require.NoError(t, err)

	assert.Equal(t, short.Series, full.Series[:5])
}

func TestIntelTimelineWindowLongerThanHistory(t *testing.T) {
	f := newFixture(t, walk("SPX", 40, 2))
	tl, err := newIntel(f).Timeline(context.Background(), "SPX", 90)
	require.NoError(t, err)
	assert.Equal(t, 40, tl.Meta.Days)
	require.Len(t, tl.Series, 40)
	for _, p := range tl.Series {
		assert.False(t, p.StructuralLock)
	}

	_, err = newIntel(f).Timeline(context.Background(), "ETH", 90)
	assert.True(t, models.IsNotReady(err))
}

func TestIntelStats(t *testing.T) {
	mk := func(score float64, tier models.Tier, lock bool) models.IntelPoint {
		return models.IntelPoint{PhaseScore: score, DominanceTier: tier, StructuralLock: lock}
	}
	var series []models.IntelPoint
	for i := 0; i < 7; i++ {
		series = append(series, mk(40, models.TierTactical, false))
	}
	for i := 0; i < 7; i++ {
		series = append(series, mk(60, models.TierStructure, i < 3))
	}

	st := intelStats(series)
	assert.Equal(t, 3, st.LockDays)
	assert.Equal(t, 50.0, st.StructureDominancePct)
	assert.Equal(t, 50.0, st.AvgPhaseScore)
	assert.Equal(t, models.TrendUp, st.Trend7d)
	assert.Equal(t, 20.0, st.Trend7dDelta)

	assert.Equal(t, models.TrendFlat, intelStats(series[:5]).Trend7d)
	assert.Equal(t, models.TrendFlat, intelStats(nil).Trend7d)
}
