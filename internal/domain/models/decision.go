package models

import (
	"fmt"
	"strings"
)

// Preset names a risk profile.
type Preset string

const (
	PresetConservative Preset = "CONSERVATIVE"
	PresetBalanced     Preset = "BALANCED"
	PresetAggressive   Preset = "AGGRESSIVE"
)

// AllPresets lists presets from most to least cautious.
var AllPresets = []Preset{PresetConservative, PresetBalanced, PresetAggressive}

// ParsePreset validates a preset name (case-insensitive). Empty input yields BALANCED.
func ParsePreset(s string) (Preset, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return PresetBalanced, nil
	}
	for _, p := range AllPresets {
		if Preset(s) == p {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPreset, s)
}

// TradeMode is the final sizing mode.
type TradeMode string

const (
	TradeFull    TradeMode = "FULL"
	TradePartial TradeMode = "PARTIAL"
	TradeMicro   TradeMode = "MICRO"
	TradeNone    TradeMode = "NO_TRADE"
)

// Degrade moves one step down the FULL -> PARTIAL -> MICRO -> NO_TRADE ladder.
func (m TradeMode) Degrade() TradeMode {
	switch m {
	case TradeFull:
		return TradePartial
	case TradePartial:
		return TradeMicro
	default:
		return TradeNone
	}
}

// Fraction is the share of full size allowed by the mode.
func (m TradeMode) Fraction() float64 {
	switch m {
	case TradeFull:
		return 1
	case TradePartial:
		return 0.5
	case TradeMicro:
		return 0.25
	default:
		return 0
	}
}

// EdgeGrade buckets the edge score.
type EdgeGrade string

const (
	EdgeInstitutional EdgeGrade = "INSTITUTIONAL"
	EdgeStrong        EdgeGrade = "STRONG"
	EdgeNeutral       EdgeGrade = "NEUTRAL"
	EdgeWeak          EdgeGrade = "WEAK"
)

// Diagnostic status values.
const (
	StatusPass = "PASS"
	StatusWarn = "WARN"
	StatusFail = "FAIL"
)

// Diagnostic is one gated kernel input.
type Diagnostic struct {
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
	Bound     string  `json:"bound"`
	Status    string  `json:"status"`
}

// Diagnostics groups the gated kernel inputs.
type Diagnostics struct {
	Confidence  Diagnostic `json:"confidence"`
	Reliability Diagnostic `json:"reliability"`
	Entropy     Diagnostic `json:"entropy"`
	Stability   Diagnostic `json:"stability"`
	TailRisk    Diagnostic `json:"tailRisk"`
}

// DecisionInput carries everything the kernel needs for one focus horizon.
type DecisionInput struct {
	Focus          Horizon         `json:"focus"`
	Preset         Preset          `json:"preset"`
	Consensus      ConsensusResult `json:"consensus"`
	Available      bool            `json:"available"`
	Stats          AftermathStats  `json:"stats"`
	Divergence     Divergence      `json:"divergence"`
	MeanSimilarity float64         `json:"meanSimilarity"`
	MeanStability  float64         `json:"meanStability"`
	MatchCount     int             `json:"matchCount"`
	TopK           int             `json:"topK"`
	VolRegime      VolRegime       `json:"volRegime"`
}

// DecisionOutput is the kernel's trade recommendation.
type DecisionOutput struct {
	Focus          Horizon     `json:"focus"`
	Preset         Preset      `json:"preset"`
	Action         Action      `json:"action"`
	EdgeScore      float64     `json:"edgeScore"`
	EdgeGrade      EdgeGrade   `json:"edgeGrade"`
	Diagnostics    Diagnostics `json:"diagnostics"`
	Mode           TradeMode   `json:"mode"`
	PositionSize   float64     `json:"positionSize"`
	RiskReward     float64     `json:"riskReward"`
	ExpectedReturn float64     `json:"expectedReturn"`
	SoftStop       float64     `json:"softStop"`
	TailRisk       float64     `json:"tailRisk"`
	Blockers       []string    `json:"blockers"`
	Reason         string      `json:"reason"`
}
