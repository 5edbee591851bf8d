package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Fractal/internal/domain/models"
)

func TestTerminalAllHorizons(t *testing.T) {
	f := newFixture(t, walk("SPX", 2700, 21))
	ctx := context.Background()

	term, err := f.terminal.Get(ctx, TerminalParams{Symbol: "SPX", Focus: models.Horizon30d, Preset: models.PresetBalanced})
	require.NoError(t, err)

	assert.Equal(t, "SPX", term.Meta.Symbol)
	assert.Equal(t, 2700, term.Meta.CandleCount)
	assert.Len(t, term.Chart.Candles, f.eng.ChartCandles)
	require.NotNil(t, term.Chart.Forecast)
	assert.Nil(t, term.Chart.Forecasts)
	require.Len(t, term.HorizonMatrix, 6)
	for _, row := range term.HorizonMatrix {
		assert.Equal(t, StatusOK, row.Status, row.Horizon)
	}
	assert.Empty(t, term.Consensus.Missing)
	assert.InDelta(t, 1.0, term.Consensus.Coverage, 1e-9)
	assert.LessOrEqual(t, len(term.PhaseSnapshot.Zones), terminalZones)
	assert.Equal(t, models.Horizon30d, term.Decision.Focus)
	assert.Equal(t, term.Consensus.ConsensusIndex, f.metrics.index["SPX"])

	ext, err := f.terminal.Get(ctx, TerminalParams{Symbol: "SPX", Focus: models.Horizon30d, Preset: models.PresetBalanced, Extended: true})
	require.NoError(t, err)
	assert.Len(t, ext.Chart.Forecasts, 6)
	assert.Equal(t, term.Consensus, ext.Consensus)
}

func TestTerminalMissingHorizonsDegrade(t *testing.T) {
	f := newFixture(t, walk("SPX", 1000, 4))

	term, err := f.terminal.Get(context.Background(), TerminalParams{Symbol: "SPX", Focus: models.Horizon365d, Preset: models.PresetAggressive})
	require.NoError(t, err)

	assert.ElementsMatch(t, []models.Horizon{models.Horizon180d, models.Horizon365d}, term.Consensus.Missing)
	status := map[models.Horizon]string{}
	for _, row := range term.HorizonMatrix {
		status[row.Horizon] = row.Status
	}
	assert.Equal(t, StatusOK, status[models.Horizon90d])
	assert.Equal(t, StatusNotReady, status[models.Horizon180d])
	assert.Equal(t, StatusNotReady, status[models.Horizon365d])

	assert.Nil(t, term.Chart.Forecast)
	assert.Equal(t, models.TradeNone, term.Decision.Mode)
	assert.Equal(t, models.ActionHold, term.Decision.Action)
	assert.Equal(t, models.Horizon365d, term.PhaseSnapshot.Strength.Focus)
}

func TestTerminalDegenerateHorizonIsMissingVote(t *testing.T) {
	series := walk("SPX", 2700, 21)
	flat := series[len(series)-21].Close
	for i := len(series) - 20; i < len(series); i++ {
		c := &series[i]
		c.Open, c.High, c.Low, c.Close = flat, flat, flat, flat
	}
	f := newFixture(t, series)

	term, err := f.terminal.Get(context.Background(), TerminalParams{Symbol: "SPX", Focus: models.Horizon30d, Preset: models.PresetBalanced})
	require.NoError(t, err)

	assert.Equal(t, []models.Horizon{models.Horizon7d}, term.Consensus.Missing)
	for _, row := range term.HorizonMatrix {
		if row.Horizon == models.Horizon7d {
			assert.Equal(t, StatusError, row.Status)
			assert.Equal(t, "DEGENERATE_WINDOW", row.Error)
			continue
		}
		assert.Equal(t, StatusOK, row.Status, row.Horizon)
	}
	assert.Equal(t, "DEGENERATE_WINDOW", f.metrics.failures[models.Horizon7d])
	assert.NotNil(t, term.Chart.Forecast)
}

func TestTerminalNotReadyWhenNoHorizonReady(t *testing.T) {
	f := newFixture(t, walk("SPX", 150, 4))

	_, err := f.terminal.Get(context.Background(), TerminalParams{Symbol: "SPX", Focus: models.Horizon30d, Preset: models.PresetBalanced})
	require.Error(t, err)
	assert.True(t, models.IsNotReady(err))
}

func TestTerminalUnknownAsset(t *testing.T) {
	f := newFixture(t, walk("SPX", 150, 4))

	_, err := f.terminal.Get(context.Background(), TerminalParams{Symbol: "ETH", Focus: models.Horizon30d, Preset: models.PresetBalanced})
	assert.True(t, models.IsNotReady(err))
}

func TestTerminalValidatesParams(t *testing.T) {
	f := newFixture(t, walk("SPX", 10, 4))
	ctx := context.Background()

	_, err := f.terminal.Get(ctx, TerminalParams{Symbol: "SPX", Focus: "1d", Preset: models.PresetBalanced})
	assert.ErrorIs(t, err, models.ErrInvalidHorizon)

	_, err = f.terminal.Get(ctx, TerminalParams{Symbol: "SPX", Focus: models.Horizon30d, Preset: "YOLO"})
	assert.ErrorIs(t, err, models.ErrInvalidPreset)
}

func TestTerminalCancelled(t *testing.T) {
	f := newFixture(t, walk("SPX", 2700, 9))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.terminal.Get(ctx, TerminalParams{Symbol: "SPX", Focus: models.Horizon30d, Preset: models.PresetBalanced})
	assert.ErrorIs(t, err, context.Canceled)
}
