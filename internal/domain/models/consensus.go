package models

// Direction is the sign of a vote or of the consensus.
type Direction string

const (
	Bullish Direction = "BULLISH"
	Bearish Direction = "BEARISH"
	Flat    Direction = "FLAT"
)

// Score maps a direction to +1, 0 or -1.
func (d Direction) Score() float64 {
	switch d {
	case Bullish:
		return 1
	case Bearish:
		return -1
	default:
		return 0
	}
}

// ConflictLevel grades disagreement between horizon votes.
type ConflictLevel string

const (
	ConflictNone           ConflictLevel = "NONE"
	ConflictLow            ConflictLevel = "LOW"
	ConflictModerate       ConflictLevel = "MODERATE"
	ConflictHigh           ConflictLevel = "HIGH"
	ConflictSevere         ConflictLevel = "SEVERE"
	ConflictStructuralLock ConflictLevel = "STRUCTURAL_LOCK"
)

// Action is the resolved trade direction.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// Sign returns +1 for BUY, -1 for SELL and 0 for HOLD.
func (a Action) Sign() float64 {
	switch a {
	case ActionBuy:
		return 1
	case ActionSell:
		return -1
	default:
		return 0
	}
}

// ActionFor maps a direction to an action.
func ActionFor(d Direction) Action {
	switch d {
	case Bullish:
		return ActionBuy
	case Bearish:
		return ActionSell
	default:
		return ActionHold
	}
}

// ResolveMode describes how the action relates to the dominant trend.
type ResolveMode string

const (
	ModeTrendFollow          ResolveMode = "TREND_FOLLOW"
	ModeCounterTrend         ResolveMode = "COUNTER_TREND"
	ModeCounterSignalBlocked ResolveMode = "COUNTER_SIGNAL_BLOCKED"
	ModeWait                 ResolveMode = "WAIT"
)

// VoteInput is one horizon's contribution before weighting.
type VoteInput struct {
	Horizon      Horizon `json:"horizon"`
	MedianReturn float64 `json:"medianReturn"`
	Available    bool    `json:"available"`
	Reason       string  `json:"reason,omitempty"`
}

// HorizonVote is a weighted horizon vote.
type HorizonVote struct {
	Horizon      Horizon   `json:"horizon"`
	Tier         Tier      `json:"tier"`
	Direction    Direction `json:"direction"`
	MedianReturn float64   `json:"medianReturn"`
	BaseWeight   float64   `json:"baseWeight"`
	Weight       float64   `json:"weight"`
	Contribution float64   `json:"contribution"`
	Available    bool      `json:"available"`
	Reason       string    `json:"reason,omitempty"`
}

// TierSummary aggregates the votes of one tier.
type TierSummary struct {
	Tier      Tier      `json:"tier"`
	Weight    float64   `json:"weight"`
	Share     float64   `json:"share"`
	Net       float64   `json:"net"`
	Direction Direction `json:"direction"`
	Votes     int       `json:"votes"`
}

// Resolved is the outcome of the consensus decision table.
type Resolved struct {
	Action         Action      `json:"action"`
	Mode           ResolveMode `json:"mode"`
	SizeMultiplier float64     `json:"sizeMultiplier"`
}

// ConsensusResult fuses six horizon votes into one view.
type ConsensusResult struct {
	ConsensusIndex        int           `json:"consensusIndex"`
	Direction             Direction     `json:"direction"`
	ConflictLevel         ConflictLevel `json:"conflictLevel"`
	Dispersion            float64       `json:"dispersion"`
	DominantTier          Tier          `json:"dominantTier"`
	StructuralLock        bool          `json:"structuralLock"`
	TimingOverrideBlocked bool          `json:"timingOverrideBlocked"`
	Coverage              float64       `json:"coverage"`
	Degraded              bool          `json:"degraded"`
	Votes                 []HorizonVote `json:"votes"`
	Tiers                 []TierSummary `json:"tiers"`
	Missing               []Horizon     `json:"missing"`
	Regime                RegimeContext `json:"regime"`
	Resolved              Resolved      `json:"resolved"`
}

// TierWeights returns the effective weight per tier.
func (c ConsensusResult) TierWeights() map[Tier]float64 {
	out := make(map[Tier]float64, len(c.Tiers))
	for _, t := range c.Tiers {
		out[t.Tier] = t.Weight
	}
	return out
}
