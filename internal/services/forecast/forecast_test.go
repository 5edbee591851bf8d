package forecast

import (
	"testing"
	"time"

	"Fractal/internal/domain/models"
	"Fractal/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var asof = time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)

func distribution(days int) models.AftermathDistribution {
	s := models.PercentileSeries{
		P10: make([]float64, days), P25: make([]float64, days), P50: make([]float64, days),
		P75: make([]float64, days), P90: make([]float64, days),
	}
	for t := 0; t < days; t++ {
		x := float64(t+1) * 0.01
		s.P10[t], s.P25[t], s.P50[t], s.P75[t], s.P90[t] = x-0.05, x-0.02, x, x+0.02, x+0.05
	}
	return models.AftermathDistribution{Days: days, Series: s, Stats: models.AftermathStats{WorstReturn: -0.12}}
}

func TestBuild(t *testing.T) {
	primary := models.Match{ID: "m_20200101", AftermathReturns: []float64{0.02, -0.01, 0.03, 0.05, 0.04, 0.06, 0.08, 0.09}}
	f, err := Build(BuildInput{
		Asof:         asof,
		CurrentPrice: 100,
		Distribution: distribution(7),
		Primary:      primary,
		Checkpoints:  []int{7, 14, 30},
	})
	require.NoError(t, err)

	assert.Equal(t, 100.0, f.Anchor.Price)
	assert.Equal(t, asof, f.Anchor.Date)
	require.Len(t, f.SyntheticPath, 7)
	assert.Equal(t, 1, f.SyntheticPath[0].Day)
	assert.Equal(t, asof.AddDate(0, 0, 1), f.SyntheticPath[0].Date)
	assert.Equal(t, 101.0, f.SyntheticPath[0].Price)
	assert.Equal(t, 107.0, f.SyntheticPath[6].Price)
	assert.Equal(t, 112.0, f.UpperBand[6].Price)
	assert.Equal(t, 102.0, f.LowerBand[6].Price)

	require.Len(t, f.ReplayPath, 7, "replay is clipped to the horizon")
	assert.Equal(t, 102.0, f.ReplayPath[0].Price)
	assert.Equal(t, 108.0, f.ReplayPath[6].Price)

	assert.Equal(t, models.TailFloor{Return: -0.12, Price: 88}, f.TailFloor)
	require.Len(t, f.Markers, 1)
	assert.Equal(t, 7, f.Markers[0].Day)
	assert.InDelta(t, 0.07, f.Markers[0].ExpectedReturn, 1e-12)
	assert.InDelta(t, 0.08, f.Markers[0].ReplayReturn, 1e-12)

	_, err = Build(BuildInput{CurrentPrice: 0, Distribution: distribution(7)})
	assert.ErrorIs(t, err, models.ErrComputation)
}

func TestRenderVariants(t *testing.T) {
	f, err := Build(BuildInput{
		Asof:         asof,
		CurrentPrice: 50,
		Distribution: distribution(3),
		Primary:      models.Match{AftermathReturns: []float64{0.01, 0.02, 0.03}},
	})
	require.NoError(t, err)

	syn := Render(NewView(f, ModeSynthetic))
	assert.Equal(t, ModeSynthetic, syn.Mode)
	assert.Equal(t, f.SyntheticPath, syn.Main)
	assert.Nil(t, syn.Replay)

	rep := Render(NewView(f, ModeReplay))
	assert.Equal(t, f.ReplayPath, rep.Main)
	assert.Nil(t, rep.Upper)

	hyb := Render(NewView(f, ModeHybrid))
	assert.Equal(t, f.SyntheticPath, hyb.Main)
	assert.Equal(t, f.ReplayPath, hyb.Replay)

	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeHybrid, m)
	_, err = ParseMode("blend")
	assert.Error(t, err)
}

func TestCompareIdenticalPathsIsPerfect(t *testing.T) {
	cfg := config.DefaultEngine().Divergence
	path := []float64{0.01, 0.03, 0.02, -0.01, 0.04, 0.06}

	d := Compare(path, append([]float64(nil), path...), cfg)
	assert.Equal(t, 0.0, d.RMSE)
	assert.Equal(t, 1.0, d.Correlation)
	assert.Equal(t, "A", d.Grade)
	assert.Equal(t, []string{models.FlagPerfectMatch}, d.Flags)
	assert.Equal(t, 0.0, d.DirectionalMismatchPct)
	assert.Equal(t, 100.0, d.Score)
}

func TestCompareWarnings(t *testing.T) {
	cfg := config.DefaultEngine().Divergence
	syn := []float64{0.01, 0.02, 0.03, 0.04, 0.05, 0.06}
	rep := []float64{-0.05, -0.06, -0.12, -0.08, -0.20, -0.15}

	d := Compare(syn, rep, cfg)
	assert.NotEqual(t, "A", d.Grade)
	assert.NotContains(t, d.Flags, models.FlagPerfectMatch)
	assert.Contains(t, d.Flags, models.FlagHighDivergence)
	assert.Contains(t, d.Flags, models.FlagTermDrift)
	assert.Contains(t, d.Flags, models.FlagLowCorr)
	assert.Contains(t, d.Flags, models.FlagDirMismatch)
	assert.Equal(t, "F", d.Grade)
	assert.InDelta(t, 0.21, d.TerminalDelta, 1e-12)
}

func TestComparePerfectIffThresholds(t *testing.T) {
	cfg := config.DefaultEngine().Divergence
	base := []float64{0.01, 0.02, 0.03, 0.04, 0.05, 0.06, 0.07, 0.08}
	for _, shift := range []float64{0.001, 0.01, 0.019, 0.021, 0.05} {
		other := make([]float64, len(base))
		for i, v := range base {
			other[i] = v + shift
		}
		d := Compare(base, other, cfg)
		perfect := d.RMSE < cfg.PerfectRMSE && d.Correlation > cfg.PerfectCorr
		assert.Equal(t, perfect, d.Grade == "A", "shift %v", shift)
		assert.Equal(t, perfect, len(d.Flags) == 1 && d.Flags[0] == models.FlagPerfectMatch, "shift %v", shift)
	}
}

func TestCompareEmpty(t *testing.T) {
	d := Compare(nil, []float64{0.1}, config.DefaultEngine().Divergence)
	assert.Equal(t, 0, d.Samples)
	assert.Equal(t, "F", d.Grade)
}
