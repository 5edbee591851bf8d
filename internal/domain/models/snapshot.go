package models

import "time"

// KernelDigest is the compact kernel outcome kept in memory snapshots.
type KernelDigest struct {
	Direction      Direction     `json:"direction"`
	Action         Action        `json:"action"`
	Mode           TradeMode     `json:"mode"`
	FinalSize      float64       `json:"finalSize"`
	ConsensusIndex int           `json:"consensusIndex"`
	ConflictLevel  ConflictLevel `json:"conflictLevel"`
}

// KernelSnapshot records one focus x preset kernel outcome for an asof date.
type KernelSnapshot struct {
	ID          string           `json:"id"`
	Symbol      string           `json:"symbol"`
	AsofDate    time.Time        `json:"asofDate"`
	Focus       Horizon          `json:"focus"`
	Preset      Preset           `json:"preset"`
	Digest      KernelDigest     `json:"kernelDigest"`
	TierWeights map[Tier]float64 `json:"tierWeights"`
	CreatedAt   time.Time        `json:"createdAt"`
}

// SnapshotWriteResult reports a snapshot write run.
type SnapshotWriteResult struct {
	Symbol   string    `json:"symbol"`
	AsofDate time.Time `json:"asofDate"`
	Written  int       `json:"written"`
	Skipped  int       `json:"skipped"`
	Queued   bool      `json:"queued"`
}

// CandlesAppended is the ingestion notification consumed from Kafka.
type CandlesAppended struct {
	Symbol string `json:"symbol"`
	TS     int64  `json:"ts"`
	Count  int    `json:"count"`
}

// DataVersionNotice is pushed to stream subscribers when an asset's data version moves.
type DataVersionNotice struct {
	Type    string `json:"type"`
	Symbol  string `json:"symbol"`
	Version int64  `json:"version"`
	TS      int64  `json:"ts"`
}

// SnapshotOutcome is the realized result of a snapshot once its focus horizon has elapsed.
type SnapshotOutcome struct {
	SnapshotID     string    `json:"snapshotId"`
	Symbol         string    `json:"symbol"`
	AsofDate       time.Time `json:"asofDate"`
	Focus          Horizon   `json:"focus"`
	Preset         Preset    `json:"preset"`
	Direction      Direction `json:"direction"`
	ExitDate       time.Time `json:"exitDate"`
	EntryClose     float64   `json:"entryClose"`
	ExitClose      float64   `json:"exitClose"`
	RealizedReturn float64   `json:"realizedReturn"`
	Hit            bool      `json:"hit"`
	ResolvedAt     time.Time `json:"resolvedAt"`
}

// Reasons a snapshot is left unresolved.
const (
	SkipNotElapsed = "NOT_ELAPSED"
	SkipNoAsofBar  = "NO_ASOF_CANDLE"
	SkipBadPrice   = "BAD_PRICE"
)

type FocusResolution struct {
	Resolved int `json:"resolved"`
	Skipped  int `json:"skipped"`
}

// OutcomeResolution reports one resolve-outcomes run.
type OutcomeResolution struct {
	Symbol           string                      `json:"symbol"`
	LatestCandleDate string                      `json:"latestCandleDate"`
	Resolved         int                         `json:"resolved"`
	Skipped          int                         `json:"skipped"`
	ByFocus          map[Horizon]FocusResolution `json:"byFocus"`
	Reasons          map[string]int              `json:"reasons"`
}

type OutcomeBucket struct {
	Count                int     `json:"count"`
	Hits                 int     `json:"hits"`
	HitRate              float64 `json:"hitRate"`
	AvgRealizedReturnPct float64 `json:"avgRealizedReturnPct"`
}

// ForwardStats aggregates resolved outcomes of one asset.
type ForwardStats struct {
	Symbol               string                    `json:"symbol"`
	TotalResolved        int                       `json:"totalResolved"`
	HitRate              float64                   `json:"hitRate"`
	AvgRealizedReturnPct float64                   `json:"avgRealizedReturnPct"`
	ByPreset             map[Preset]OutcomeBucket  `json:"byPreset"`
	ByFocus              map[Horizon]OutcomeBucket `json:"byFocus"`
}

type LatestSnapshot struct {
	Found    bool            `json:"found"`
	Snapshot *KernelSnapshot `json:"snapshot,omitempty"`
}

// SnapshotTally counts stored snapshots of one focus and preset.
type SnapshotTally struct {
	Focus  Horizon
	Preset Preset
	N      int
}

type SnapshotCount struct {
	Symbol   string          `json:"symbol"`
	Total    int             `json:"total"`
	ByFocus  map[Horizon]int `json:"byFocus"`
	ByPreset map[Preset]int  `json:"byPreset"`
}
