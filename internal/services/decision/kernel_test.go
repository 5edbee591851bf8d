package decision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Fractal/internal/domain/models"
	"Fractal/pkg/config"
)

func strongInput() models.DecisionInput {
	return models.DecisionInput{
		Focus:  models.Horizon30d,
		Preset: models.PresetBalanced,
		Consensus: models.ConsensusResult{
			ConsensusIndex: 90,
			Direction:      models.Bullish,
			ConflictLevel:  models.ConflictNone,
			Dispersion:     0.04,
			Coverage:       1,
			Resolved:       models.Resolved{Action: models.ActionBuy, Mode: models.ModeTrendFollow, SizeMultiplier: 1},
		},
		Available: true,
		Stats: models.AftermathStats{
			SampleSize:   10,
			HitRate:      0.8,
			UpFraction:   0.8,
			MedianReturn: 0.05,
			P10Return:    -0.02,
			P90Return:    0.1,
			P95MaxDD:     0.08,
		},
		Divergence:    models.Divergence{Score: 90, Grade: "A"},
		MeanStability: 0.8,
		MatchCount:    10,
		TopK:          10,
		VolRegime:     models.VolNormal,
	}
}

func newKernel() *Kernel {
	eng := config.DefaultEngine()
	return NewKernel(&eng)
}

func TestDecideFullTrade(t *testing.T) {
	out, err := newKernel().Decide(strongInput())
	require.NoError(t, err)

	assert.Equal(t, models.ActionBuy, out.Action)
	assert.Equal(t, models.TradeFull, out.Mode)
	assert.Empty(t, out.Blockers)
	assert.InDelta(t, 1.0, out.PositionSize, 1e-9)
	assert.InDelta(t, 0.05, out.ExpectedReturn, 1e-9)
	assert.InDelta(t, -0.02, out.SoftStop, 1e-9)
	assert.InDelta(t, 2.5, out.RiskReward, 1e-9)
	assert.InDelta(t, 0.08, out.TailRisk, 1e-9)

	assert.InDelta(t, 0.8, out.Diagnostics.Confidence.Value, 1e-4)
	assert.InDelta(t, 0.94, out.Diagnostics.Reliability.Value, 1e-4)
	assert.InDelta(t, 0.7219, out.Diagnostics.Entropy.Value, 1e-4)
	assert.InDelta(t, 0.768, out.Diagnostics.Stability.Value, 1e-4)
	for _, d := range []models.Diagnostic{
		out.Diagnostics.Confidence, out.Diagnostics.Reliability, out.Diagnostics.Entropy,
		out.Diagnostics.Stability, out.Diagnostics.TailRisk,
	} {
		assert.Equal(t, models.StatusPass, d.Status)
	}

	assert.InDelta(t, 72.42, out.EdgeScore, 0.01)
	assert.Equal(t, models.EdgeStrong, out.EdgeGrade)
	assert.Contains(t, out.Reason, "BUY FULL")
}

func TestDecideDegradesPerFailure(t *testing.T) {
	in := strongInput()
	in.Preset = models.PresetConservative
	in.Stats.HitRate = 0.5
	in.Stats.P95MaxDD = 0.2
	in.MeanStability = 0.5

	out, err := newKernel().Decide(in)
	require.NoError(t, err)

	assert.Equal(t, []string{BlockerLowStability, BlockerTailRisk}, out.Blockers)
	assert.Equal(t, models.TradeMicro, out.Mode)
	assert.InDelta(t, 0.25, out.PositionSize, 1e-9)
	assert.Equal(t, models.ActionBuy, out.Action)

	assert.Equal(t, models.StatusWarn, out.Diagnostics.Confidence.Status)
	assert.Equal(t, models.StatusWarn, out.Diagnostics.Entropy.Status)
	assert.Equal(t, models.StatusFail, out.Diagnostics.Stability.Status)
	assert.Equal(t, models.StatusFail, out.Diagnostics.TailRisk.Status)
	assert.Contains(t, out.Reason, BlockerLowStability)
}

func TestDecideAllGatesFail(t *testing.T) {
	in := strongInput()
	in.Preset = models.PresetConservative
	in.Consensus.ConsensusIndex = 55
	in.Stats.HitRate = 0.5
	in.Stats.UpFraction = 0.5
	in.Stats.P95MaxDD = 0.5
	in.Divergence.Score = 20
	in.MatchCount = 2
	in.MeanStability = 0.1

	out, err := newKernel().Decide(in)
	require.NoError(t, err)

	assert.Equal(t, []string{
		BlockerLowConfidence, BlockerLowReliability, BlockerHighEntropy, BlockerLowStability, BlockerTailRisk,
	}, out.Blockers)
	assert.Equal(t, models.TradeNone, out.Mode)
	assert.Equal(t, models.ActionHold, out.Action)
	assert.Zero(t, out.PositionSize)
	assert.Zero(t, out.SoftStop)
	assert.Zero(t, out.RiskReward)
	assert.Equal(t, models.EdgeWeak, out.EdgeGrade)
}

func TestDecideHoldConsensus(t *testing.T) {
	in := strongInput()
	in.Consensus.Resolved = models.Resolved{Action: models.ActionHold, Mode: models.ModeWait}
	in.Consensus.ConflictLevel = models.ConflictSevere

	out, err := newKernel().Decide(in)
	require.NoError(t, err)

	assert.Equal(t, []string{BlockerNoConsensus}, out.Blockers)
	assert.Equal(t, models.TradeNone, out.Mode)
	assert.Equal(t, models.ActionHold, out.Action)
	assert.Zero(t, out.PositionSize)
	assert.Zero(t, out.ExpectedReturn)
	assert.Contains(t, out.Reason, "SEVERE")
}

func TestDecideFocusUnavailable(t *testing.T) {
	in := strongInput()
	in.Available = false

	out, err := newKernel().Decide(in)
	require.NoError(t, err)
	require.NotEmpty(t, out.Blockers)
	assert.Equal(t, BlockerFocusUnavailable, out.Blockers[0])
	assert.Equal(t, models.TradeNone, out.Mode)
}

func TestDecideSellSizing(t *testing.T) {
	in := strongInput()
	in.Consensus.ConsensusIndex = 10
	in.Consensus.Resolved = models.Resolved{Action: models.ActionSell, Mode: models.ModeTrendFollow, SizeMultiplier: 0.5}
	in.Stats.MedianReturn = -0.05
	in.Stats.HitRate = 0.8
	in.Stats.UpFraction = 0.2
	in.VolRegime = models.VolHigh

	out, err := newKernel().Decide(in)
	require.NoError(t, err)

	assert.Equal(t, models.ActionSell, out.Action)
	assert.InDelta(t, 0.05, out.ExpectedReturn, 1e-9)
	assert.InDelta(t, 0.1, out.SoftStop, 1e-9)
	assert.InDelta(t, 0.5, out.RiskReward, 1e-9)
	assert.InDelta(t, 0.375, out.PositionSize, 1e-9)
}

func TestDecideInvalidPreset(t *testing.T) {
	in := strongInput()
	in.Preset = "YOLO"
	_, err := newKernel().Decide(in)
	assert.ErrorIs(t, err, models.ErrInvalidPreset)
}

func TestBinaryEntropy(t *testing.T) {
	assert.Zero(t, binaryEntropy(0))
	assert.Zero(t, binaryEntropy(1))
	assert.InDelta(t, 1.0, binaryEntropy(0.5), 1e-12)
	assert.InDelta(t, binaryEntropy(0.3), binaryEntropy(0.7), 1e-12)
}
