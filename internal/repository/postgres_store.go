package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"Fractal/internal/domain/models"
	domrepo "Fractal/internal/domain/repository"
	applogger "Fractal/pkg/logger"
)

const (
	pgCandleTable   = "candles"
	pgSnapshotTable = "kernel_snapshots"
	pgOutcomeTable  = "snapshot_outcomes"
)

var pgSchema = []string{
	`CREATE TABLE IF NOT EXISTS candles (
		symbol TEXT             NOT NULL,
		ts     TIMESTAMPTZ      NOT NULL,
		open   DOUBLE PRECISION NOT NULL,
		high   DOUBLE PRECISION NOT NULL,
		low    DOUBLE PRECISION NOT NULL,
		close  DOUBLE PRECISION NOT NULL,
		volume DOUBLE PRECISION NOT NULL DEFAULT 0,
		cohort TEXT             NOT NULL DEFAULT '',
		PRIMARY KEY (symbol, ts)
	)`,
	`CREATE TABLE IF NOT EXISTS kernel_snapshots (
		id              TEXT PRIMARY KEY,
		symbol          TEXT             NOT NULL,
		asof_date       DATE             NOT NULL,
		focus           TEXT             NOT NULL,
		preset          TEXT             NOT NULL,
		direction       TEXT             NOT NULL,
		action          TEXT             NOT NULL,
		mode            TEXT             NOT NULL,
		final_size      DOUBLE PRECISION NOT NULL,
		consensus_index INTEGER          NOT NULL,
		conflict_level  TEXT             NOT NULL,
		w_timing        DOUBLE PRECISION NOT NULL,
		w_tactical      DOUBLE PRECISION NOT NULL,
		w_structure     DOUBLE PRECISION NOT NULL,
		created_at      TIMESTAMPTZ      NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS kernel_snapshots_symbol_asof ON kernel_snapshots (symbol, asof_date DESC)`,
	`CREATE TABLE IF NOT EXISTS snapshot_outcomes (
		snapshot_id     TEXT PRIMARY KEY REFERENCES kernel_snapshots (id),
		symbol          TEXT             NOT NULL,
		asof_date       DATE             NOT NULL,
		focus           TEXT             NOT NULL,
		preset          TEXT             NOT NULL,
		direction       TEXT             NOT NULL,
		exit_date       DATE             NOT NULL,
		entry_close     DOUBLE PRECISION NOT NULL,
		exit_close      DOUBLE PRECISION NOT NULL,
		realized_return DOUBLE PRECISION NOT NULL,
		hit             BOOLEAN          NOT NULL,
		resolved_at     TIMESTAMPTZ      NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS snapshot_outcomes_symbol ON snapshot_outcomes (symbol)`,
}

// OpenPostgres opens a sqlx pool on lib/pq and pings it.
func OpenPostgres(ctx context.Context, dsn string, maxOpen, maxIdle int) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return db, nil
}

// InitPostgresSchema creates the candle and snapshot tables.
func InitPostgresSchema(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range pgSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// PGCandleStore implements CandleStore on Postgres.
type PGCandleStore struct {
	db *sqlx.DB
	l  *applogger.Logger
}

func NewPGCandleStore(db *sqlx.DB, l *applogger.Logger) *PGCandleStore {
	if l == nil {
		l = applogger.Nop()
	}
	return &PGCandleStore{db: db, l: l.With(applogger.String("component", "repository.pg_candles"))}
}

func (s *PGCandleStore) GetCandles(ctx context.Context, q domrepo.CandleQuery) ([]models.Candle, error) {
	start := time.Now()
	query, args, desc := buildCandleQuery(pgCandleTable, false, q)

	out := make([]models.Candle, 0, 1024)
	if err := s.db.SelectContext(ctx, &out, s.db.Rebind(query), args...); err != nil {
		s.l.Error("postgres get_candles query error", applogger.String("symbol", q.Symbol), applogger.Error(err))
		return nil, fmt.Errorf("get candles: %w", err)
	}
	if desc {
		reverseCandles(out)
	}
	normalizeCandles(out)
	s.l.Debug("postgres get_candles ok",
		applogger.String("symbol", q.Symbol),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}

func (s *PGCandleStore) GetLatest(ctx context.Context, symbol string) (*models.Candle, error) {
	var c models.Candle
	err := s.db.GetContext(ctx, &c, `SELECT symbol, ts, open, high, low, close, volume, cohort
		FROM candles WHERE symbol = $1 ORDER BY ts DESC LIMIT 1`, symbol)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get latest candle: %w", err)
	}
	c.TS = c.TS.UTC()
	return &c, nil
}

func (s *PGCandleStore) GetCount(ctx context.Context, symbol string) (int64, error) {
	var n int64
	if err := s.db.GetContext(ctx, &n, `SELECT count(*) FROM candles WHERE symbol = $1`, symbol); err != nil {
		return 0, fmt.Errorf("count candles: %w", err)
	}
	return n, nil
}

// AppendCandles upserts bars; a re-sent bar replaces the stored one.
func (s *PGCandleStore) AppendCandles(ctx context.Context, candles []models.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	rows := make([]models.Candle, len(candles))
	copy(rows, candles)
	normalizeCandles(rows)
	_, err := sqlx.NamedExecContext(ctx, s.db, `INSERT INTO candles (symbol, ts, open, high, low, close, volume, cohort)
		VALUES (:symbol, :ts, :open, :high, :low, :close, :volume, :cohort)
		ON CONFLICT (symbol, ts) DO UPDATE SET open = EXCLUDED.open, high = EXCLUDED.high,
			low = EXCLUDED.low, close = EXCLUDED.close, volume = EXCLUDED.volume, cohort = EXCLUDED.cohort`, rows)
	if err != nil {
		return fmt.Errorf("append candles: %w", err)
	}
	return nil
}

func (s *PGCandleStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// PGSnapshotStore implements SnapshotStore on Postgres.
type PGSnapshotStore struct {
	db *sqlx.DB
}

func NewPGSnapshotStore(db *sqlx.DB) *PGSnapshotStore {
	return &PGSnapshotStore{db: db}
}

func (s *PGSnapshotStore) Init(ctx context.Context) error {
	return InitPostgresSchema(ctx, s.db)
}

func (s *PGSnapshotStore) Exists(ctx context.Context, ids []string) (map[string]bool, error) {
	out := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var found []string
	if err := s.db.SelectContext(ctx, &found, `SELECT id FROM kernel_snapshots WHERE id = ANY($1)`, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("snapshot exists: %w", err)
	}
	for _, id := range found {
		out[id] = true
	}
	return out, nil
}

// Save inserts snapshots; ids already present are left untouched.
func (s *PGSnapshotStore) Save(ctx context.Context, snaps []models.KernelSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	rows := make([]snapshotRow, len(snaps))
	for i, snap := range snaps {
		rows[i] = toSnapshotRow(snap)
	}
	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (:id, :symbol, :asof_date, :focus, :preset, :direction,
		:action, :mode, :final_size, :consensus_index, :conflict_level, :w_timing, :w_tactical, :w_structure, :created_at)
		ON CONFLICT (id) DO NOTHING`, pgSnapshotTable, snapshotColumns)
	if _, err := sqlx.NamedExecContext(ctx, s.db, query, rows); err != nil {
		return fmt.Errorf("save snapshots: %w", err)
	}
	return nil
}

func (s *PGSnapshotStore) List(ctx context.Context, symbol string, limit int) ([]models.KernelSnapshot, error) {
	var rows []snapshotRow
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE symbol = $1
		ORDER BY asof_date DESC, focus, preset LIMIT $2`, snapshotColumns, pgSnapshotTable)
	if err := s.db.SelectContext(ctx, &rows, query, symbol, limit); err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	return snapshotModels(rows), nil
}

func (s *PGSnapshotStore) Latest(ctx context.Context, symbol string, focus models.Horizon, preset models.Preset) (*models.KernelSnapshot, error) {
	var row snapshotRow
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE symbol = $1 AND focus = $2 AND preset = $3
		ORDER BY asof_date DESC LIMIT 1`, snapshotColumns, pgSnapshotTable)
	err := s.db.GetContext(ctx, &row, query, symbol, string(focus), string(preset))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest snapshot: %w", err)
	}
	snap := row.model()
	return &snap, nil
}

func (s *PGSnapshotStore) Count(ctx context.Context, symbol string) ([]models.SnapshotTally, error) {
	var rows []tallyRow
	query := fmt.Sprintf(`SELECT focus, preset, count(*) AS n FROM %s WHERE symbol = $1
		GROUP BY focus, preset`, pgSnapshotTable)
	if err := s.db.SelectContext(ctx, &rows, query, symbol); err != nil {
		return nil, fmt.Errorf("count snapshots: %w", err)
	}
	return tallies(rows), nil
}

func (s *PGSnapshotStore) Unresolved(ctx context.Context, symbol string) ([]models.KernelSnapshot, error) {
	var rows []snapshotRow
	query := fmt.Sprintf(`SELECT %s FROM %s k WHERE k.symbol = $1
		AND NOT EXISTS (SELECT 1 FROM %s o WHERE o.snapshot_id = k.id)
		ORDER BY k.asof_date, k.focus, k.preset`, snapshotColumns, pgSnapshotTable, pgOutcomeTable)
	if err := s.db.SelectContext(ctx, &rows, query, symbol); err != nil {
		return nil, fmt.Errorf("unresolved snapshots: %w", err)
	}
	return snapshotModels(rows), nil
}

// SaveOutcomes keeps the first outcome stored per snapshot.
func (s *PGSnapshotStore) SaveOutcomes(ctx context.Context, outcomes []models.SnapshotOutcome) error {
	if len(outcomes) == 0 {
		return nil
	}
	rows := make([]outcomeRow, len(outcomes))
	for i, o := range outcomes {
		rows[i] = toOutcomeRow(o)
	}
	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (:snapshot_id, :symbol, :asof_date, :focus, :preset, :direction,
		:exit_date, :entry_close, :exit_close, :realized_return, :hit, :resolved_at)
		ON CONFLICT (snapshot_id) DO NOTHING`, pgOutcomeTable, outcomeColumns)
	if _, err := sqlx.NamedExecContext(ctx, s.db, query, rows); err != nil {
		return fmt.Errorf("save outcomes: %w", err)
	}
	return nil
}

func (s *PGSnapshotStore) Outcomes(ctx context.Context, symbol string) ([]models.SnapshotOutcome, error) {
	var rows []outcomeRow
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE symbol = $1 ORDER BY asof_date, focus, preset`,
		outcomeColumns, pgOutcomeTable)
	if err := s.db.SelectContext(ctx, &rows, query, symbol); err != nil {
		return nil, fmt.Errorf("list outcomes: %w", err)
	}
	out := make([]models.SnapshotOutcome, len(rows))
	for i, r := range rows {
		out[i] = r.model()
	}
	return out, nil
}
