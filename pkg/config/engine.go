package config

import (
	"fmt"
	"math"

	"Fractal/internal/domain/models"
)

// HorizonConfig parameterizes one horizon pipeline.
type HorizonConfig struct {
	Key        models.Horizon `yaml:"key"`
	Tier       models.Tier    `yaml:"tier"`
	Days       int            `yaml:"days"`
	WindowLen  int            `yaml:"window_len"`
	TopK       int            `yaml:"top_k"`
	MinMatches int            `yaml:"min_matches"`
	MinHistory int            `yaml:"min_history"`
	BaseWeight float64        `yaml:"base_weight"`
	// ExclusionGap is the minimum distance in days between the end dates of two accepted matches.
	ExclusionGap int `yaml:"exclusion_gap"`
}

// SelectionWeights weight the primary-match composite score.
type SelectionWeights struct {
	Similarity float64 `yaml:"similarity"`
	Volatility float64 `yaml:"volatility"`
	Drawdown   float64 `yaml:"drawdown"`
	Stability  float64 `yaml:"stability"`
}

// RegimeMultiplier scales tier weights under a volatility regime.
type RegimeMultiplier struct {
	Structure float64 `yaml:"structure"`
	Tactical  float64 `yaml:"tactical"`
	Timing    float64 `yaml:"timing"`
}

// For returns the multiplier of a tier.
func (m RegimeMultiplier) For(t models.Tier) float64 {
	switch t {
	case models.TierStructure:
		return m.Structure
	case models.TierTactical:
		return m.Tactical
	case models.TierTiming:
		return m.Timing
	default:
		return 1
	}
}

type ConsensusConfig struct {
	DeadBand       float64 `yaml:"dead_band"`
	FlatThreshold  float64 `yaml:"flat_threshold"`
	StructureShare float64 `yaml:"structure_share"`
	MinVotes       int     `yaml:"min_votes"`
	// ConflictBands are ascending dispersion cut-offs for LOW, MODERATE, HIGH and SEVERE.
	ConflictBands           []float64                             `yaml:"conflict_bands"`
	RegimeMultipliers       map[models.VolRegime]RegimeMultiplier `yaml:"regime_multipliers"`
	CapitulationTimingClamp float64                               `yaml:"capitulation_timing_clamp"`
}

// GradeBand is the rmse ceiling and correlation floor of one divergence grade.
type GradeBand struct {
	Grade   string  `yaml:"grade"`
	MaxRMSE float64 `yaml:"max_rmse"`
	MinCorr float64 `yaml:"min_corr"`
}

type DivergenceConfig struct {
	PerfectRMSE float64     `yaml:"perfect_rmse"`
	PerfectCorr float64     `yaml:"perfect_corr"`
	Grades      []GradeBand `yaml:"grades"`
	HighRMSE    float64     `yaml:"high_rmse"`
	LowCorr     float64     `yaml:"low_corr"`
	TermDrift   float64     `yaml:"term_drift"`
	DirMismatch float64     `yaml:"dir_mismatch"`
}

type PhaseConfig struct {
	ShortMA           int     `yaml:"short_ma"`
	LongMA            int     `yaml:"long_ma"`
	SlopeLookback     int     `yaml:"slope_lookback"`
	SlopeEps          float64 `yaml:"slope_eps"`
	SidewaysLookback  int     `yaml:"sideways_lookback"`
	SidewaysBand      float64 `yaml:"sideways_band"`
	CapitulationK     float64 `yaml:"capitulation_k"`
	CapitulationFloor float64 `yaml:"capitulation_floor"`
	VolWindow         int     `yaml:"vol_window"`
	VolBaseline       int     `yaml:"vol_baseline"`
}

// PresetConfig holds the gate thresholds of a risk preset.
type PresetConfig struct {
	MinConfidence  float64 `yaml:"min_confidence"`
	MinReliability float64 `yaml:"min_reliability"`
	MaxEntropy     float64 `yaml:"max_entropy"`
	MinStability   float64 `yaml:"min_stability"`
	MaxTailP95DD   float64 `yaml:"max_tail_p95dd"`
}

// Engine holds the immutable tables of the analog engine.
type Engine struct {
	Horizons     []HorizonConfig                  `yaml:"horizons"`
	TierTotals   map[models.Tier]float64          `yaml:"tier_totals"`
	Selection    map[models.Tier]SelectionWeights `yaml:"selection"`
	Consensus    ConsensusConfig                  `yaml:"consensus"`
	Divergence   DivergenceConfig                 `yaml:"divergence"`
	Phase        PhaseConfig                      `yaml:"phase"`
	Presets      map[models.Preset]PresetConfig   `yaml:"presets"`
	VolSizeScale map[models.VolRegime]float64     `yaml:"vol_size_scale"`
	Checkpoints  []int                            `yaml:"checkpoints"`
	ChartCandles int                              `yaml:"chart_candles"`
	// WarnMargin is the relative distance to a threshold that still counts as WARN instead of PASS.
	WarnMargin float64 `yaml:"warn_margin"`
}

// DefaultEngine returns the documented engine defaults.
func DefaultEngine() Engine {
	return Engine{
		Horizons: []HorizonConfig{
			{Key: models.Horizon7d, Tier: models.TierTiming, Days: 7, WindowLen: 20, TopK: 25, MinMatches: 8, MinHistory: 250, BaseWeight: 0.10, ExclusionGap: 5},
			{Key: models.Horizon14d, Tier: models.TierTiming, Days: 14, WindowLen: 30, TopK: 25, MinMatches: 8, MinHistory: 300, BaseWeight: 0.10, ExclusionGap: 7},
			{Key: models.Horizon30d, Tier: models.TierTactical, Days: 30, WindowLen: 30, TopK: 25, MinMatches: 8, MinHistory: 500, BaseWeight: 0.15, ExclusionGap: 10},
			{Key: models.Horizon90d, Tier: models.TierTactical, Days: 90, WindowLen: 60, TopK: 20, MinMatches: 6, MinHistory: 900, BaseWeight: 0.20, ExclusionGap: 20},
			{Key: models.Horizon180d, Tier: models.TierStructure, Days: 180, WindowLen: 90, TopK: 15, MinMatches: 5, MinHistory: 1400, BaseWeight: 0.20, ExclusionGap: 30},
			{Key: models.Horizon365d, Tier: models.TierStructure, Days: 365, WindowLen: 120, TopK: 10, MinMatches: 4, MinHistory: 2200, BaseWeight: 0.25, ExclusionGap: 40},
		},
		TierTotals: map[models.Tier]float64{
			models.TierTiming:    0.20,
			models.TierTactical:  0.35,
			models.TierStructure: 0.45,
		},
		Selection: map[models.Tier]SelectionWeights{
			models.TierTiming:    {Similarity: 0.4, Volatility: 0.3, Drawdown: 0.2, Stability: 0.1},
			models.TierTactical:  {Similarity: 0.5, Volatility: 0.2, Drawdown: 0.2, Stability: 0.1},
			models.TierStructure: {Similarity: 0.6, Volatility: 0.1, Drawdown: 0.2, Stability: 0.1},
		},
		Consensus: ConsensusConfig{
			DeadBand:       0.005,
			FlatThreshold:  0.15,
			StructureShare: 0.40,
			MinVotes:       3,
			ConflictBands:  []float64{0.05, 0.25, 0.5, 0.75},
			RegimeMultipliers: map[models.VolRegime]RegimeMultiplier{
				models.VolLow:       {Structure: 1, Tactical: 1, Timing: 1},
				models.VolNormal:    {Structure: 1, Tactical: 1, Timing: 1},
				models.VolHigh:      {Structure: 1.2, Tactical: 1, Timing: 0.8},
				models.VolExpansion: {Structure: 1.3, Tactical: 1, Timing: 0.6},
				models.VolCrisis:    {Structure: 1.5, Tactical: 0.9, Timing: 0.5},
			},
			CapitulationTimingClamp: 0.5,
		},
		Divergence: DivergenceConfig{
			PerfectRMSE: 0.02,
			PerfectCorr: 0.95,
			Grades: []GradeBand{
				{Grade: "B", MaxRMSE: 0.05, MinCorr: 0.8},
				{Grade: "C", MaxRMSE: 0.10, MinCorr: 0.5},
				{Grade: "D", MaxRMSE: 0.20, MinCorr: 0},
			},
			HighRMSE:    0.10,
			LowCorr:     0.30,
			TermDrift:   0.10,
			DirMismatch: 0.55,
		},
		Phase: PhaseConfig{
			ShortMA:           50,
			LongMA:            200,
			SlopeLookback:     10,
			SlopeEps:          0.002,
			SidewaysLookback:  20,
			SidewaysBand:      0.05,
			CapitulationK:     3.0,
			CapitulationFloor: 0.07,
			VolWindow:         20,
			VolBaseline:       252,
		},
		Presets: map[models.Preset]PresetConfig{
			models.PresetConservative: {MinConfidence: 0.60, MinReliability: 0.55, MaxEntropy: 0.80, MinStability: 0.50, MaxTailP95DD: 0.15},
			models.PresetBalanced:     {MinConfidence: 0.50, MinReliability: 0.45, MaxEntropy: 0.90, MinStability: 0.40, MaxTailP95DD: 0.25},
			models.PresetAggressive:   {MinConfidence: 0.40, MinReliability: 0.35, MaxEntropy: 0.95, MinStability: 0.30, MaxTailP95DD: 0.40},
		},
		VolSizeScale: map[models.VolRegime]float64{
			models.VolLow:       1,
			models.VolNormal:    1,
			models.VolHigh:      0.75,
			models.VolExpansion: 0.5,
			models.VolCrisis:    0.25,
		},
		Checkpoints:  []int{7, 14, 30, 90, 180, 365},
		ChartCandles: 365,
		WarnMargin:   0.10,
	}
}

// Horizon looks up a horizon's configuration.
func (e *Engine) Horizon(h models.Horizon) (HorizonConfig, bool) {
	for _, hc := range e.Horizons {
		if hc.Key == h {
			return hc, true
		}
	}
	return HorizonConfig{}, false
}

// TotalBaseWeight sums the base weights of all horizons.
func (e *Engine) TotalBaseWeight() float64 {
	var sum float64
	for _, hc := range e.Horizons {
		sum += hc.BaseWeight
	}
	return sum
}

// CheckpointsFor returns the checkpoints that fall inside a horizon of the given length.
func (e *Engine) CheckpointsFor(days int) []int {
	out := make([]int, 0, len(e.Checkpoints))
	for _, d := range e.Checkpoints {
		if d <= days {
			out = append(out, d)
		}
	}
	if len(out) == 0 || out[len(out)-1] != days {
		out = append(out, days)
	}
	return out
}

// Preset returns the thresholds of a preset.
func (e *Engine) Preset(p models.Preset) (PresetConfig, error) {
	pc, ok := e.Presets[p]
	if !ok {
		return PresetConfig{}, fmt.Errorf("%w: %q", models.ErrInvalidPreset, p)
	}
	return pc, nil
}

// SizeScale returns the position size scale for a volatility regime.
func (e *Engine) SizeScale(r models.VolRegime) float64 {
	if v, ok := e.VolSizeScale[r]; ok {
		return v
	}
	return 1
}

// Validate checks the engine tables for completeness and consistency.
func (e *Engine) Validate() error {
	if len(e.Horizons) != len(models.AllHorizons) {
		return fmt.Errorf("engine.horizons: expected %d horizons, got %d", len(models.AllHorizons), len(e.Horizons))
	}
	sums := make(map[models.Tier]float64, len(models.AllTiers))
	for _, h := range models.AllHorizons {
		hc, ok := e.Horizon(h)
		if !ok {
			return fmt.Errorf("engine.horizons: missing %s", h)
		}
		if hc.Tier != models.TierOf(h) {
			return fmt.Errorf("engine.horizons.%s: tier %s, expected %s", h, hc.Tier, models.TierOf(h))
		}
		if hc.Days <= 0 || hc.WindowLen < 2 {
			return fmt.Errorf("engine.horizons.%s: days and window_len must be positive", h)
		}
		if hc.MinMatches < 1 || hc.TopK < hc.MinMatches {
			return fmt.Errorf("engine.horizons.%s: need 1 <= min_matches <= top_k", h)
		}
		if hc.MinHistory < hc.WindowLen+hc.Days {
			return fmt.Errorf("engine.horizons.%s: min_history must cover window_len + days", h)
		}
		if hc.BaseWeight < 0 || hc.ExclusionGap < 0 {
			return fmt.Errorf("engine.horizons.%s: negative weight or gap", h)
		}
		sums[hc.Tier] += hc.BaseWeight
	}
	for _, t := range models.AllTiers {
		total, ok := e.TierTotals[t]
		if !ok {
			return fmt.Errorf("engine.tier_totals: missing %s", t)
		}
		if math.Abs(sums[t]-total) > 1e-9 {
			return fmt.Errorf("engine.tier_totals.%s: horizon weights sum to %.4f, expected %.4f", t, sums[t], total)
		}
		if _, ok := e.Selection[t]; !ok {
			return fmt.Errorf("engine.selection: missing %s", t)
		}
	}
	for _, p := range models.AllPresets {
		if _, ok := e.Presets[p]; !ok {
			return fmt.Errorf("engine.presets: missing %s", p)
		}
	}
	if len(e.Consensus.ConflictBands) != 4 {
		return fmt.Errorf("engine.consensus.conflict_bands: expected 4 bands")
	}
	for i := 1; i < len(e.Consensus.ConflictBands); i++ {
		if e.Consensus.ConflictBands[i] <= e.Consensus.ConflictBands[i-1] {
			return fmt.Errorf("engine.consensus.conflict_bands must be ascending")
		}
	}
	if e.Consensus.MinVotes < 1 || e.Consensus.MinVotes > len(models.AllHorizons) {
		return fmt.Errorf("engine.consensus.min_votes out of range")
	}
	for i, g := range e.Divergence.Grades {
		switch g.Grade {
		case "B", "C", "D", "E":
		case "A":
			return fmt.Errorf("engine.divergence.grades[%d]: grade A is reserved for perfect_rmse/perfect_corr", i)
		default:
			return fmt.Errorf("engine.divergence.grades[%d]: unknown grade %q", i, g.Grade)
		}
	}
	if e.Phase.ShortMA >= e.Phase.LongMA {
		return fmt.Errorf("engine.phase: short_ma must be shorter than long_ma")
	}
	return nil
}
