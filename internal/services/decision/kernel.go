package decision

import (
	"fmt"
	"math"

	"Fractal/internal/domain/models"
	"Fractal/internal/services/features"
	"Fractal/pkg/config"
)

// Blockers, in the order they are checked.
const (
	BlockerFocusUnavailable = "FOCUS_UNAVAILABLE"
	BlockerNoConsensus      = "NO_CONSENSUS"
	BlockerLowConfidence    = "LOW_CONFIDENCE"
	BlockerLowReliability   = "LOW_RELIABILITY"
	BlockerHighEntropy      = "HIGH_ENTROPY"
	BlockerLowStability     = "LOW_STABILITY"
	BlockerTailRisk         = "TAIL_RISK"
)

const (
	boundMin = "min"
	boundMax = "max"

	minStopDistance = 0.01
)

// Kernel converts consensus and per-horizon diagnostics into a sized recommendation.
type Kernel struct {
	eng *config.Engine
}

func NewKernel(eng *config.Engine) *Kernel {
	return &Kernel{eng: eng}
}

type gate struct {
	name    string
	blocker string
	diag    *models.Diagnostic
}

// Decide gates the diagnostics against the preset in a fixed order. Every failing gate adds
// a blocker and degrades the mode one step; the mode never moves back up.
func (k *Kernel) Decide(in models.DecisionInput) (models.DecisionOutput, error) {
	preset, err := k.eng.Preset(in.Preset)
	if err != nil {
		return models.DecisionOutput{}, err
	}
	margin := k.eng.WarnMargin

	c := in.Consensus
	confidence := 0.5*in.Stats.HitRate + 0.5*math.Abs(float64(c.ConsensusIndex)-50)/50
	reliability := 0.4 * in.Divergence.Score / 100
	if in.TopK > 0 {
		reliability = 0.6*in.Divergence.Score/100 + 0.4*math.Min(1, float64(in.MatchCount)/float64(in.TopK))
	}
	entropy := binaryEntropy(in.Stats.UpFraction)
	stability := in.MeanStability * (1 - features.Clamp01(c.Dispersion))

	out := models.DecisionOutput{
		Focus:  in.Focus,
		Preset: in.Preset,
		Diagnostics: models.Diagnostics{
			Confidence:  evaluate(confidence, preset.MinConfidence, boundMin, margin),
			Reliability: evaluate(reliability, preset.MinReliability, boundMin, margin),
			Entropy:     evaluate(entropy, preset.MaxEntropy, boundMax, margin),
			Stability:   evaluate(stability, preset.MinStability, boundMin, margin),
			TailRisk:    evaluate(in.Stats.P95MaxDD, preset.MaxTailP95DD, boundMax, margin),
		},
		Blockers: []string{},
	}

	edge := 100 * (0.35*confidence + 0.25*reliability + 0.2*(1-entropy) + 0.2*stability)
	out.EdgeScore = features.Round(features.Clamp(edge, 0, 100), 2)
	out.EdgeGrade = edgeGrade(out.EdgeScore)

	mode := models.TradeFull
	switch {
	case !in.Available:
		mode = models.TradeNone
		out.Blockers = append(out.Blockers, BlockerFocusUnavailable)
	case c.Resolved.Action == models.ActionHold:
		mode = models.TradeNone
		out.Blockers = append(out.Blockers, BlockerNoConsensus)
	}

	gates := []gate{
		{"confidence", BlockerLowConfidence, &out.Diagnostics.Confidence},
		{"reliability", BlockerLowReliability, &out.Diagnostics.Reliability},
		{"entropy", BlockerHighEntropy, &out.Diagnostics.Entropy},
		{"stability", BlockerLowStability, &out.Diagnostics.Stability},
		{"tailRisk", BlockerTailRisk, &out.Diagnostics.TailRisk},
	}
	var binding *gate
	for i := range gates {
		g := &gates[i]
		if g.diag.Status != models.StatusFail {
			continue
		}
		out.Blockers = append(out.Blockers, g.blocker)
		mode = mode.Degrade()
		if binding == nil {
			binding = g
		}
	}
	out.Mode = mode

	out.Action = c.Resolved.Action
	if mode == models.TradeNone {
		out.Action = models.ActionHold
	}
	sign := out.Action.Sign()
	out.PositionSize = features.Round(mode.Fraction()*c.Resolved.SizeMultiplier*k.eng.SizeScale(in.VolRegime), 4)
	out.ExpectedReturn = sign * in.Stats.MedianReturn
	switch out.Action {
	case models.ActionBuy:
		out.SoftStop = math.Min(in.Stats.P10Return, -minStopDistance)
	case models.ActionSell:
		out.SoftStop = math.Max(in.Stats.P90Return, minStopDistance)
	}
	if out.SoftStop != 0 {
		out.RiskReward = features.Round(math.Abs(out.ExpectedReturn)/math.Abs(out.SoftStop), 4)
	}
	out.TailRisk = features.Round(in.Stats.P95MaxDD*out.PositionSize, 6)

	out.Reason = k.reason(in, out, binding, gates)
	return out, nil
}

func (k *Kernel) reason(in models.DecisionInput, out models.DecisionOutput, binding *gate, gates []gate) string {
	if len(out.Blockers) > 0 {
		switch out.Blockers[0] {
		case BlockerFocusUnavailable:
			return fmt.Sprintf("focus horizon %s produced no analysis; no trade", in.Focus)
		case BlockerNoConsensus:
			return fmt.Sprintf("consensus resolved to HOLD (%s, conflict %s); no trade", in.Consensus.Resolved.Mode, in.Consensus.ConflictLevel)
		}
		if binding != nil {
			return fmt.Sprintf("%s blocked: %s %.3f vs %s %.3f; mode %s",
				binding.blocker, binding.name, binding.diag.Value, binding.diag.Bound, binding.diag.Threshold, out.Mode)
		}
	}

	var best *gate
	bestMargin := math.Inf(-1)
	for i := range gates {
		m := relMargin(*gates[i].diag)
		if m > bestMargin {
			best, bestMargin = &gates[i], m
		}
	}
	return fmt.Sprintf("%s %s with %s edge; strongest diagnostic %s %.3f vs %s %.3f",
		out.Action, out.Mode, out.EdgeGrade, best.name, best.diag.Value, best.diag.Bound, best.diag.Threshold)
}

func evaluate(value, threshold float64, bound string, margin float64) models.Diagnostic {
	d := models.Diagnostic{Value: features.Round(value, 4), Threshold: threshold, Bound: bound, Status: models.StatusPass}
	switch bound {
	case boundMin:
		if value < threshold {
			d.Status = models.StatusFail
		} else if value < threshold*(1+margin) {
			d.Status = models.StatusWarn
		}
	case boundMax:
		if value > threshold {
			d.Status = models.StatusFail
		} else if value > threshold*(1-margin) {
			d.Status = models.StatusWarn
		}
	}
	return d
}

func relMargin(d models.Diagnostic) float64 {
	if d.Threshold == 0 {
		return 0
	}
	if d.Bound == boundMax {
		return (d.Threshold - d.Value) / d.Threshold
	}
	return (d.Value - d.Threshold) / d.Threshold
}

// binaryEntropy is the Shannon entropy in bits of a Bernoulli(p) outcome.
func binaryEntropy(p float64) float64 {
	if p <= 0 || p >= 1 {
		return 0
	}
	return -(p*math.Log2(p) + (1-p)*math.Log2(1-p))
}

func edgeGrade(score float64) models.EdgeGrade {
	switch {
	case score >= 75:
		return models.EdgeInstitutional
	case score >= 60:
		return models.EdgeStrong
	case score >= 45:
		return models.EdgeNeutral
	default:
		return models.EdgeWeak
	}
}
