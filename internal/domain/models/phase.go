package models

import (
	"fmt"
	"strings"
	"time"
)

// Phase is a market regime label.
type Phase string

const (
	PhaseUnknown      Phase = "UNKNOWN"
	PhaseAccumulation Phase = "ACCUMULATION"
	PhaseMarkup       Phase = "MARKUP"
	PhaseDistribution Phase = "DISTRIBUTION"
	PhaseMarkdown     Phase = "MARKDOWN"
	PhaseRecovery     Phase = "RECOVERY"
	PhaseCapitulation Phase = "CAPITULATION"
)

var knownPhases = []Phase{
	PhaseAccumulation, PhaseMarkup, PhaseDistribution,
	PhaseMarkdown, PhaseRecovery, PhaseCapitulation,
}

// ID returns a stable numeric id (1..6), 0 for UNKNOWN.
func (p Phase) ID() int {
	for i, k := range knownPhases {
		if p == k {
			return i + 1
		}
	}
	return 0
}

// ParsePhase validates a phase name. Empty input yields an empty phase (no filter).
func ParsePhase(s string) (Phase, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return "", nil
	}
	for _, k := range knownPhases {
		if Phase(s) == k {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPhase, s)
}

// PhaseZone is a contiguous run of days sharing one phase label.
type PhaseZone struct {
	Phase  Phase     `json:"phase"`
	From   time.Time `json:"from"`
	To     time.Time `json:"to"`
	Days   int       `json:"days"`
	Return float64   `json:"return"`
}

// PhaseSnapshot is the current phase plus the historical zone segmentation.
type PhaseSnapshot struct {
	Phase Phase       `json:"phase"`
	Since time.Time   `json:"since"`
	Zones []PhaseZone `json:"zones"`
}

// VolRegime buckets current realized volatility against its baseline.
type VolRegime string

const (
	VolLow       VolRegime = "LOW"
	VolNormal    VolRegime = "NORMAL"
	VolHigh      VolRegime = "HIGH"
	VolExpansion VolRegime = "EXPANSION"
	VolCrisis    VolRegime = "CRISIS"
)

// VolatilitySnapshot describes the current volatility regime.
type VolatilitySnapshot struct {
	Regime      VolRegime `json:"regime"`
	RealizedVol float64   `json:"realizedVol"`
	BaselineVol float64   `json:"baselineVol"`
	Ratio       float64   `json:"ratio"`
}

// Phase strength flags.
const (
	FlagLowSample      = "LOW_SAMPLE"
	FlagVeryLowSample  = "VERY_LOW_SAMPLE"
	FlagHighDivergence = "HIGH_DIVERGENCE"
	FlagHighTail       = "HIGH_TAIL"
	FlagLowRecency     = "LOW_RECENCY"
	FlagNegativeSharpe = "NEGATIVE_SHARPE"
	FlagVolCrisis      = "VOL_CRISIS"
)

// PhaseStrength grades how reliably the current phase has paid off historically.
type PhaseStrength struct {
	Phase           Phase     `json:"phase"`
	PhaseID         int       `json:"phaseId"`
	Focus           Horizon   `json:"focus"`
	Tier            Tier      `json:"tier"`
	Grade           string    `json:"grade"`
	Score           float64   `json:"score"`
	StrengthIndex   float64   `json:"strengthIndex"`
	HitRate         float64   `json:"hitRate"`
	Sharpe          float64   `json:"sharpe"`
	Expectancy      float64   `json:"expectancy"`
	Samples         int       `json:"samples"`
	VolRegime       VolRegime `json:"volRegime"`
	DivergenceScore float64   `json:"divergenceScore"`
	Flags           []string  `json:"flags"`
	Asof            time.Time `json:"asof"`
}

// RegimeContext carries the regime inputs used to scale horizon votes.
type RegimeContext struct {
	Phase     Phase     `json:"phase"`
	VolRegime VolRegime `json:"volRegime"`
}
