package models

import "time"

// Trend labels of the 7 day phase score trend.
const (
	TrendUp   = "UP"
	TrendDown = "DOWN"
	TrendFlat = "FLAT"
)

// IntelPoint is the replayed phase and consensus state at the close of one day.
type IntelPoint struct {
	Date           string    `json:"date"`
	PhaseType      Phase     `json:"phaseType"`
	PhaseGrade     string    `json:"phaseGrade"`
	PhaseScore     float64   `json:"phaseScore"`
	DominanceTier  Tier      `json:"dominanceTier"`
	StructuralLock bool      `json:"structuralLock"`
	ConsensusIndex int       `json:"consensusIndex"`
	Direction      Direction `json:"direction"`
	VolRegime      VolRegime `json:"volRegime"`
}

type IntelStats struct {
	LockDays              int     `json:"lockDays"`
	StructureDominancePct float64 `json:"structureDominancePct"`
	AvgPhaseScore         float64 `json:"avgPhaseScore"`
	Trend7d               string  `json:"trend7d"`
	Trend7dDelta          float64 `json:"trend7dDelta"`
}

type IntelMeta struct {
	Symbol      string    `json:"symbol"`
	Window      int       `json:"window"`
	Days        int       `json:"days"`
	Asof        time.Time `json:"asof"`
	DataVersion int64     `json:"dataVersion"`
}

// IntelTimeline is the per-day intel series of one asset, oldest day first.
type IntelTimeline struct {
	Meta   IntelMeta    `json:"meta"`
	Series []IntelPoint `json:"series"`
	Stats  IntelStats   `json:"stats"`
}
