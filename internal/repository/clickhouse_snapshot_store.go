package repository

import (
	"context"
	"fmt"

	"Fractal/internal/domain/models"
	pkgch "Fractal/pkg/clickhouse"
)

// CHSnapshotStore keeps kernel snapshots in a ReplacingMergeTree keyed by id.
// Outcomes live in a second table keyed by snapshot id.
type CHSnapshotStore struct {
	ch       *pkgch.Client
	table    string
	outcomes string
}

func NewCHSnapshotStore(ch *pkgch.Client) *CHSnapshotStore {
	return &CHSnapshotStore{
		ch:       ch,
		table:    ch.Database() + ".kernel_snapshots",
		outcomes: ch.Database() + ".snapshot_outcomes",
	}
}

func (s *CHSnapshotStore) Init(ctx context.Context) error {
	return s.ch.InitSchema(ctx, []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id              String,
			symbol          LowCardinality(String),
			asof_date       Date,
			focus           LowCardinality(String),
			preset          LowCardinality(String),
			direction       LowCardinality(String),
			action          LowCardinality(String),
			mode            LowCardinality(String),
			final_size      Float64,
			consensus_index Int32,
			conflict_level  LowCardinality(String),
			w_timing        Float64,
			w_tactical      Float64,
			w_structure     Float64,
			created_at      DateTime64(3, 'UTC')
		) ENGINE = ReplacingMergeTree(created_at)
		ORDER BY (symbol, asof_date, id)`, s.table),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			snapshot_id     String,
			symbol          LowCardinality(String),
			asof_date       Date,
			focus           LowCardinality(String),
			preset          LowCardinality(String),
			direction       LowCardinality(String),
			exit_date       Date,
			entry_close     Float64,
			exit_close      Float64,
			realized_return Float64,
			hit             Bool,
			resolved_at     DateTime64(3, 'UTC')
		) ENGINE = ReplacingMergeTree(resolved_at)
		ORDER BY (symbol, snapshot_id)`, s.outcomes),
	})
}

func (s *CHSnapshotStore) Exists(ctx context.Context, ids []string) (map[string]bool, error) {
	out := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var found []string
	query := fmt.Sprintf(`SELECT id FROM %s WHERE has(?, id)`, s.table)
	if err := s.ch.DB().SelectContext(ctx, &found, query, ids); err != nil {
		return nil, fmt.Errorf("snapshot exists: %w", err)
	}
	for _, id := range found {
		out[id] = true
	}
	return out, nil
}

func (s *CHSnapshotStore) Save(ctx context.Context, snaps []models.KernelSnapshot) error {
	rows := make([][]any, 0, len(snaps))
	for _, snap := range snaps {
		rows = append(rows, toSnapshotRow(snap).args())
	}
	query := fmt.Sprintf(`INSERT INTO %s (%s)`, s.table, snapshotColumns)
	if err := s.ch.InsertBatch(ctx, query, rows); err != nil {
		return fmt.Errorf("save snapshots: %w", err)
	}
	return nil
}

func (s *CHSnapshotStore) List(ctx context.Context, symbol string, limit int) ([]models.KernelSnapshot, error) {
	var rows []snapshotRow
	query := fmt.Sprintf(`SELECT %s FROM %s FINAL WHERE symbol = ?
		ORDER BY asof_date DESC, focus, preset LIMIT ?`, snapshotColumns, s.table)
	if err := s.ch.DB().SelectContext(ctx, &rows, query, symbol, limit); err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	return snapshotModels(rows), nil
}

func (s *CHSnapshotStore) Latest(ctx context.Context, symbol string, focus models.Horizon, preset models.Preset) (*models.KernelSnapshot, error) {
	var rows []snapshotRow
	query := fmt.Sprintf(`SELECT %s FROM %s FINAL WHERE symbol = ? AND focus = ? AND preset = ?
		ORDER BY asof_date DESC LIMIT 1`, snapshotColumns, s.table)
	if err := s.ch.DB().SelectContext(ctx, &rows, query, symbol, string(focus), string(preset)); err != nil {
		return nil, fmt.Errorf("latest snapshot: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	snap := rows[0].model()
	return &snap, nil
}

func (s *CHSnapshotStore) Count(ctx context.Context, symbol string) ([]models.SnapshotTally, error) {
	var rows []tallyRow
	query := fmt.Sprintf(`SELECT focus, preset, toInt64(count()) AS n FROM %s FINAL WHERE symbol = ?
		GROUP BY focus, preset`, s.table)
	if err := s.ch.DB().SelectContext(ctx, &rows, query, symbol); err != nil {
		return nil, fmt.Errorf("count snapshots: %w", err)
	}
	return tallies(rows), nil
}

func (s *CHSnapshotStore) Unresolved(ctx context.Context, symbol string) ([]models.KernelSnapshot, error) {
	var rows []snapshotRow
	query := fmt.Sprintf(`SELECT %s FROM %s FINAL WHERE symbol = ?
		AND id NOT IN (SELECT snapshot_id FROM %s WHERE symbol = ?)
		ORDER BY asof_date, focus, preset`, snapshotColumns, s.table, s.outcomes)
	if err := s.ch.DB().SelectContext(ctx, &rows, query, symbol, symbol); err != nil {
		return nil, fmt.Errorf("unresolved snapshots: %w", err)
	}
	return snapshotModels(rows), nil
}

func (s *CHSnapshotStore) SaveOutcomes(ctx context.Context, outcomes []models.SnapshotOutcome) error {
	rows := make([][]any, 0, len(outcomes))
	for _, o := range outcomes {
		rows = append(rows, toOutcomeRow(o).args())
	}
	query := fmt.Sprintf(`INSERT INTO %s (%s)`, s.outcomes, outcomeColumns)
	if err := s.ch.InsertBatch(ctx, query, rows); err != nil {
		return fmt.Errorf("save outcomes: %w", err)
	}
	return nil
}

func (s *CHSnapshotStore) Outcomes(ctx context.Context, symbol string) ([]models.SnapshotOutcome, error) {
	var rows []outcomeRow
	query := fmt.Sprintf(`SELECT %s FROM %s FINAL WHERE symbol = ? ORDER BY asof_date, focus, preset`,
		outcomeColumns, s.outcomes)
	if err := s.ch.DB().SelectContext(ctx, &rows, query, symbol); err != nil {
		return nil, fmt.Errorf("list outcomes: %w", err)
	}
	out := make([]models.SnapshotOutcome, len(rows))
	for i, r := range rows {
		out[i] = r.model()
	}
	return out, nil
}
