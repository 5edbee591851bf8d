package repository

import (
	"strings"
	"time"

	"Fractal/internal/domain/models"
	domrepo "Fractal/internal/domain/repository"
)

// buildCandleQuery renders a candle select with `?` placeholders; callers Rebind for their driver.
// With a limit the newest rows are selected descending and the caller reverses them.
func buildCandleQuery(table string, final bool, q domrepo.CandleQuery) (string, []any, bool) {
	var b strings.Builder
	b.WriteString("SELECT symbol, ts, open, high, low, close, volume, cohort FROM ")
	b.WriteString(table)
	if final {
		b.WriteString(" FINAL")
	}
	b.WriteString(" WHERE symbol = ?")
	args := []any{q.Symbol}
	if !q.From.IsZero() {
		b.WriteString(" AND ts >= ?")
		args = append(args, q.From.UTC())
	}
	if !q.To.IsZero() {
		b.WriteString(" AND ts <= ?")
		args = append(args, q.To.UTC())
	}
	desc := q.Limit > 0
	if desc {
		b.WriteString(" ORDER BY ts DESC LIMIT ?")
		args = append(args, q.Limit)
	} else {
		b.WriteString(" ORDER BY ts ASC")
	}
	return b.String(), args, desc
}

func reverseCandles(c []models.Candle) {
	for i, j := 0, len(c)-1; i < j; i, j = i+1, j-1 {
		c[i], c[j] = c[j], c[i]
	}
}

func normalizeCandles(c []models.Candle) {
	for i := range c {
		c[i].TS = c[i].TS.UTC()
	}
}

// snapshotRow is the flat storage shape of a KernelSnapshot.
type snapshotRow struct {
	ID             string    `db:"id"`
	Symbol         string    `db:"symbol"`
	AsofDate       time.Time `db:"asof_date"`
	Focus          string    `db:"focus"`
	Preset         string    `db:"preset"`
	Direction      string    `db:"direction"`
	Action         string    `db:"action"`
	Mode           string    `db:"mode"`
	FinalSize      float64   `db:"final_size"`
	ConsensusIndex int32     `db:"consensus_index"`
	ConflictLevel  string    `db:"conflict_level"`
	WTiming        float64   `db:"w_timing"`
	WTactical      float64   `db:"w_tactical"`
	WStructure     float64   `db:"w_structure"`
	CreatedAt      time.Time `db:"created_at"`
}

const snapshotColumns = "id, symbol, asof_date, focus, preset, direction, action, mode, final_size, " +
	"consensus_index, conflict_level, w_timing, w_tactical, w_structure, created_at"

func toSnapshotRow(s models.KernelSnapshot) snapshotRow {
	return snapshotRow{
		ID:             s.ID,
		Symbol:         s.Symbol,
		AsofDate:       s.AsofDate.UTC(),
		Focus:          string(s.Focus),
		Preset:         string(s.Preset),
		Direction:      string(s.Digest.Direction),
		Action:         string(s.Digest.Action),
		Mode:           string(s.Digest.Mode),
		FinalSize:      s.Digest.FinalSize,
		ConsensusIndex: int32(s.Digest.ConsensusIndex),
		ConflictLevel:  string(s.Digest.ConflictLevel),
		WTiming:        s.TierWeights[models.TierTiming],
		WTactical:      s.TierWeights[models.TierTactical],
		WStructure:     s.TierWeights[models.TierStructure],
		CreatedAt:      s.CreatedAt.UTC(),
	}
}

func (r snapshotRow) args() []any {
	return []any{r.ID, r.Symbol, r.AsofDate, r.Focus, r.Preset, r.Direction, r.Action, r.Mode, r.FinalSize,
		r.ConsensusIndex, r.ConflictLevel, r.WTiming, r.WTactical, r.WStructure, r.CreatedAt}
}

func (r snapshotRow) model() models.KernelSnapshot {
	return models.KernelSnapshot{
		ID:       r.ID,
		Symbol:   r.Symbol,
		AsofDate: r.AsofDate.UTC(),
		Focus:    models.Horizon(r.Focus),
		Preset:   models.Preset(r.Preset),
		Digest: models.KernelDigest{
			Direction:      models.Direction(r.Direction),
			Action:         models.Action(r.Action),
			Mode:           models.TradeMode(r.Mode),
			FinalSize:      r.FinalSize,
			ConsensusIndex: int(r.ConsensusIndex),
			ConflictLevel:  models.ConflictLevel(r.ConflictLevel),
		},
		TierWeights: map[models.Tier]float64{
			models.TierTiming:    r.WTiming,
			models.TierTactical:  r.WTactical,
			models.TierStructure: r.WStructure,
		},
		CreatedAt: r.CreatedAt.UTC(),
	}
}

// outcomeRow is the flat storage shape of a SnapshotOutcome.
type outcomeRow struct {
	SnapshotID     string    `db:"snapshot_id"`
	Symbol         string    `db:"symbol"`
	AsofDate       time.Time `db:"asof_date"`
	Focus          string    `db:"focus"`
	Preset         string    `db:"preset"`
	Direction      string    `db:"direction"`
	ExitDate       time.Time `db:"exit_date"`
	EntryClose     float64   `db:"entry_close"`
	ExitClose      float64   `db:"exit_close"`
	RealizedReturn float64   `db:"realized_return"`
	Hit            bool      `db:"hit"`
	ResolvedAt     time.Time `db:"resolved_at"`
}

const outcomeColumns = "snapshot_id, symbol, asof_date, focus, preset, direction, exit_date, " +
	"entry_close, exit_close, realized_return, hit, resolved_at"

func toOutcomeRow(o models.SnapshotOutcome) outcomeRow {
	return outcomeRow{
		SnapshotID:     o.SnapshotID,
		Symbol:         o.Symbol,
		AsofDate:       o.AsofDate.UTC(),
		Focus:          string(o.Focus),
		Preset:         string(o.Preset),
		Direction:      string(o.Direction),
		ExitDate:       o.ExitDate.UTC(),
		EntryClose:     o.EntryClose,
		ExitClose:      o.ExitClose,
		RealizedReturn: o.RealizedReturn,
		Hit:            o.Hit,
		ResolvedAt:     o.ResolvedAt.UTC(),
	}
}

func (r outcomeRow) args() []any {
	return []any{r.SnapshotID, r.Symbol, r.AsofDate, r.Focus, r.Preset, r.Direction, r.ExitDate,
		r.EntryClose, r.ExitClose, r.RealizedReturn, r.Hit, r.ResolvedAt}
}

func (r outcomeRow) model() models.SnapshotOutcome {
	return models.SnapshotOutcome{
		SnapshotID:     r.SnapshotID,
		Symbol:         r.Symbol,
		AsofDate:       r.AsofDate.UTC(),
		Focus:          models.Horizon(r.Focus),
		Preset:         models.Preset(r.Preset),
		Direction:      models.Direction(r.Direction),
		ExitDate:       r.ExitDate.UTC(),
		EntryClose:     r.EntryClose,
		ExitClose:      r.ExitClose,
		RealizedReturn: r.RealizedReturn,
		Hit:            r.Hit,
		ResolvedAt:     r.ResolvedAt.UTC(),
	}
}

type tallyRow struct {
	Focus  string `db:"focus"`
	Preset string `db:"preset"`
	N      int64  `db:"n"`
}

func tallies(rows []tallyRow) []models.SnapshotTally {
	out := make([]models.SnapshotTally, len(rows))
	for i, r := range rows {
		out[i] = models.SnapshotTally{Focus: models.Horizon(r.Focus), Preset: models.Preset(r.Preset), N: int(r.N)}
	}
	return out
}

func snapshotModels(rows []snapshotRow) []models.KernelSnapshot {
	out := make([]models.KernelSnapshot, len(rows))
	for i, r := range rows {
		out[i] = r.model()
	}
	return out
}
