package consensus

import (
	"math"

	"Fractal/internal/domain/models"
	"Fractal/internal/services/features"
	"Fractal/pkg/config"
)

// Reason attached to horizons that produced no vote and gave no reason of their own.
const reasonMissing = "MISSING"

// Resolver fuses the six horizon votes into one consensus.
type Resolver struct {
	eng *config.Engine
}

func NewResolver(eng *config.Engine) *Resolver {
	return &Resolver{eng: eng}
}

// Resolve weights each available vote by its base weight and the regime multiplier of its
// tier, then derives the consensus index, conflict level, structural lock and action.
// The index maps the weighted net direction in [-1,1] to [0,100]: 0 all bearish, 50
// neutral, 100 all bullish.
func (r *Resolver) Resolve(inputs []models.VoteInput, regime models.RegimeContext) models.ConsensusResult {
	cc := r.eng.Consensus
	byHorizon := make(map[models.Horizon]models.VoteInput, len(inputs))
	for _, in := range inputs {
		byHorizon[in.Horizon] = in
	}
	mult, ok := cc.RegimeMultipliers[regime.VolRegime]
	if !ok {
		mult = config.RegimeMultiplier{Structure: 1, Tactical: 1, Timing: 1}
	}

	res := models.ConsensusResult{
		Votes:   make([]models.HorizonVote, 0, len(r.eng.Horizons)),
		Missing: []models.Horizon{},
		Regime:  regime,
	}

	var total, availBase, allBase float64
	available := 0
	for _, hc := range r.eng.Horizons {
		in, found := byHorizon[hc.Key]
		v := models.HorizonVote{
			Horizon:    hc.Key,
			Tier:       hc.Tier,
			Direction:  models.Flat,
			BaseWeight: hc.BaseWeight,
		}
		allBase += hc.BaseWeight
		if !found || !in.Available {
			v.Reason = reasonMissing
			if found && in.Reason != "" {
				v.Reason = in.Reason
			}
			res.Missing = append(res.Missing, hc.Key)
			res.Votes = append(res.Votes, v)
			continue
		}

		m := mult.For(hc.Tier)
		if regime.Phase == models.PhaseCapitulation && hc.Tier == models.TierTiming {
			m = math.Min(m, cc.CapitulationTimingClamp)
		}
		v.Available = true
		v.MedianReturn = in.MedianReturn
		v.Direction = voteDirection(in.MedianReturn, cc.DeadBand)
		v.Weight = hc.BaseWeight * m
		total += v.Weight
		availBase += hc.BaseWeight
		available++
		res.Votes = append(res.Votes, v)
	}
	if allBase > 0 {
		res.Coverage = features.Round(availBase/allBase, 4)
	}

	if available < cc.MinVotes || total <= 0 {
		res.Degraded = true
		res.ConsensusIndex = 50
		res.Direction = models.Flat
		res.ConflictLevel = models.ConflictNone
		res.Tiers = summarize(res.Votes, total, cc.FlatThreshold)
		res.Resolved = models.Resolved{Action: models.ActionHold, Mode: models.ModeWait}
		return res
	}

	var net float64
	for i := range res.Votes {
		v := &res.Votes[i]
		v.Contribution = v.Weight * v.Direction.Score() / total
		net += v.Contribution
	}
	var dispersion float64
	for _, v := range res.Votes {
		d := v.Direction.Score() - net
		dispersion += v.Weight * d * d
	}
	dispersion /= total

	res.ConsensusIndex = int(math.Round(features.Clamp(50+50*net, 0, 100)))
	res.Direction = netDirection(net, cc.FlatThreshold)
	res.Dispersion = features.Round(dispersion, 6)
	res.ConflictLevel = conflictFor(dispersion, cc.ConflictBands)
	res.Tiers = summarize(res.Votes, total, cc.FlatThreshold)

	structure := tierOf(res.Tiers, models.TierStructure)
	timing := tierOf(res.Tiers, models.TierTiming)
	if structure.Share >= cc.StructureShare &&
		structure.Direction != models.Flat && timing.Direction != models.Flat &&
		structure.Direction != timing.Direction {
		res.StructuralLock = true
		res.TimingOverrideBlocked = true
		res.DominantTier = models.TierStructure
		res.Direction = structure.Direction
		res.ConflictLevel = models.ConflictStructuralLock
		res.Resolved = models.Resolved{
			Action:         models.ActionFor(structure.Direction),
			Mode:           models.ModeCounterSignalBlocked,
			SizeMultiplier: features.Round(0.5*res.Coverage, 4),
		}
		return res
	}

	res.DominantTier = dominant(res.Tiers)
	res.Resolved = resolve(res.Direction, res.ConflictLevel, structure.Direction, res.Coverage)
	return res
}

// resolve applies the decision table for the unlocked case.
func resolve(dir models.Direction, conflict models.ConflictLevel, structureDir models.Direction, coverage float64) models.Resolved {
	wait := models.Resolved{Action: models.ActionHold, Mode: models.ModeWait}
	if dir == models.Flat {
		return wait
	}
	var size float64
	switch conflict {
	case models.ConflictNone:
		size = 1
	case models.ConflictLow:
		size = 0.75
	case models.ConflictModerate:
		size = 0.5
	case models.ConflictHigh:
		size = 0.25
	default:
		return wait
	}

	mode := models.ModeTrendFollow
	if structureDir != models.Flat && structureDir != dir {
		if conflict == models.ConflictHigh {
			return wait
		}
		mode = models.ModeCounterTrend
		size *= 0.5
	}
	return models.Resolved{
		Action:         models.ActionFor(dir),
		Mode:           mode,
		SizeMultiplier: features.Round(size*coverage, 4),
	}
}

func summarize(votes []models.HorizonVote, total, flat float64) []models.TierSummary {
	out := make([]models.TierSummary, 0, len(models.AllTiers))
	for _, t := range models.AllTiers {
		s := models.TierSummary{Tier: t, Direction: models.Flat}
		var signed float64
		for _, v := range votes {
			if v.Tier != t || !v.Available {
				continue
			}
			s.Weight += v.Weight
			signed += v.Weight * v.Direction.Score()
			s.Votes++
		}
		if s.Weight > 0 {
			s.Net = signed / s.Weight
			s.Direction = netDirection(s.Net, flat)
		}
		if total > 0 {
			s.Share = s.Weight / total
		}
		out = append(out, s)
	}
	return out
}

// dominant picks the tier with the largest absolute weighted contribution; ties go to the longer tier.
func dominant(tiers []models.TierSummary) models.Tier {
	var best models.Tier
	bestVal := -1.0
	for _, t := range tiers {
		val := math.Abs(t.Net * t.Share)
		if val > bestVal || (val == bestVal && t.Tier.Rank() > best.Rank()) {
			best, bestVal = t.Tier, val
		}
	}
	return best
}

func tierOf(tiers []models.TierSummary, t models.Tier) models.TierSummary {
	for _, s := range tiers {
		if s.Tier == t {
			return s
		}
	}
	return models.TierSummary{Tier: t, Direction: models.Flat}
}

func voteDirection(median, deadBand float64) models.Direction {
	switch {
	case median > deadBand:
		return models.Bullish
	case median < -deadBand:
		return models.Bearish
	default:
		return models.Flat
	}
}

func netDirection(net, flat float64) models.Direction {
	switch {
	case net > flat:
		return models.Bullish
	case net < -flat:
		return models.Bearish
	default:
		return models.Flat
	}
}

func conflictFor(dispersion float64, bands []float64) models.ConflictLevel {
	levels := []models.ConflictLevel{models.ConflictNone, models.ConflictLow, models.ConflictModerate, models.ConflictHigh}
	for i, b := range bands {
		if i < len(levels) && dispersion < b {
			return levels[i]
		}
	}
	return models.ConflictSevere
}
