package phase

import (
	"math"

	"Fractal/internal/domain/models"
	"Fractal/internal/services/features"
	"Fractal/pkg/config"
)

// Classifier labels every day with a market phase from closes and moving averages.
// Labels depend only on a trailing window plus the previous label, so any prefix of a
// series is labelled the same way as the full series.
type Classifier struct {
	cfg config.PhaseConfig
}

func NewClassifier(cfg config.PhaseConfig) *Classifier {
	return &Classifier{cfg: cfg}
}

// Warmup is the number of candles needed before the first non-UNKNOWN label.
func (c *Classifier) Warmup() int {
	return max(c.cfg.LongMA+c.cfg.SlopeLookback, c.cfg.VolWindow+1, c.cfg.SidewaysLookback+1)
}

// Label returns one phase per candle.
func (c *Classifier) Label(candles []models.Candle) []models.Phase {
	n := len(candles)
	labels := make([]models.Phase, n)
	closes := models.Closes(candles)
	smaS := features.RollingSMA(closes, c.cfg.ShortMA)
	smaL := features.RollingSMA(closes, c.cfg.LongMA)
	rets := make([]float64, n)
	for i := 1; i < n; i++ {
		if closes[i-1] > 0 {
			rets[i] = closes[i]/closes[i-1] - 1
		}
	}

	warm := c.Warmup()
	prev := models.PhaseUnknown
	lastTrend := models.PhaseUnknown
	k := c.cfg.SlopeLookback

	for i := 0; i < n; i++ {
		if i < warm-1 {
			labels[i] = models.PhaseUnknown
			continue
		}
		cl := closes[i]
		sigma := features.StdDev(rets[i-c.cfg.VolWindow : i])
		slopeL := relChange(smaL[i], smaL[i-k])
		slopeS := relChange(smaS[i], smaS[i-k])
		momentum := relChange(cl, closes[i-c.cfg.SidewaysLookback])

		var label models.Phase
		switch {
		case rets[i] < -math.Max(c.cfg.CapitulationK*sigma, c.cfg.CapitulationFloor):
			label = models.PhaseCapitulation
		case cl > smaS[i] && cl > smaL[i] && slopeL > c.cfg.SlopeEps:
			label = models.PhaseMarkup
		case cl < smaS[i] && cl < smaL[i] && slopeL < -c.cfg.SlopeEps:
			label = models.PhaseMarkdown
		case isDownOrRecovering(prev) && slopeS > c.cfg.SlopeEps && cl > smaS[i]:
			label = models.PhaseRecovery
		case math.Abs(momentum) < c.cfg.SidewaysBand:
			if lastTrend == models.PhaseMarkup {
				label = models.PhaseDistribution
			} else {
				label = models.PhaseAccumulation
			}
		case prev != models.PhaseUnknown:
			label = prev
		default:
			label = models.PhaseAccumulation
		}

		switch label {
		case models.PhaseMarkup:
			lastTrend = models.PhaseMarkup
		case models.PhaseMarkdown, models.PhaseCapitulation:
			lastTrend = models.PhaseMarkdown
		}
		labels[i] = label
		prev = label
	}
	return labels
}

// Snapshot labels the series and returns the current phase with its zone history.
func (c *Classifier) Snapshot(candles []models.Candle) (models.PhaseSnapshot, []models.Phase) {
	labels := c.Label(candles)
	zones := Zones(candles, labels)
	snap := models.PhaseSnapshot{Phase: models.PhaseUnknown, Zones: zones}
	if len(zones) > 0 && len(labels) > 0 && labels[len(labels)-1] != models.PhaseUnknown {
		last := zones[len(zones)-1]
		snap.Phase = last.Phase
		snap.Since = last.From
	}
	return snap, labels
}

type span struct {
	phase      models.Phase
	start, end int
}

func spans(labels []models.Phase) []span {
	var out []span
	for i := 0; i < len(labels); {
		j := i
		for j+1 < len(labels) && labels[j+1] == labels[i] {
			j++
		}
		if labels[i] != models.PhaseUnknown && labels[i] != "" {
			out = append(out, span{phase: labels[i], start: i, end: j})
		}
		i = j + 1
	}
	return out
}

// Zones segments labelled history into contiguous runs, skipping UNKNOWN days.
func Zones(candles []models.Candle, labels []models.Phase) []models.PhaseZone {
	sp := spans(labels)
	out := make([]models.PhaseZone, 0, len(sp))
	for _, s := range sp {
		z := models.PhaseZone{
			Phase: s.phase,
			From:  candles[s.start].TS,
			To:    candles[s.end].TS,
			Days:  s.end - s.start + 1,
		}
		if base := candles[s.start].Close; base > 0 {
			z.Return = candles[s.end].Close/base - 1
		}
		out = append(out, z)
	}
	return out
}

func isDownOrRecovering(p models.Phase) bool {
	return p == models.PhaseMarkdown || p == models.PhaseCapitulation || p == models.PhaseRecovery
}

func relChange(cur, past float64) float64 {
	if past == 0 || math.IsNaN(past) || math.IsNaN(cur) {
		return 0
	}
	return cur/past - 1
}
