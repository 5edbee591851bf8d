package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"Fractal/internal/domain/models"
	domrepo "Fractal/internal/domain/repository"
	pkgch "Fractal/pkg/clickhouse"
	applogger "Fractal/pkg/logger"
)

// CHCandleStore implements CandleStore backed by ClickHouse.
type CHCandleStore struct {
	ch    *pkgch.Client
	table string
	l     *applogger.Logger
}

func NewCHCandleStore(ch *pkgch.Client, l *applogger.Logger) *CHCandleStore {
	if l == nil {
		l = applogger.Nop()
	}
	return &CHCandleStore{
		ch:    ch,
		table: ch.Database() + ".candles",
		l:     l.With(applogger.String("component", "repository.ch_candles")),
	}
}

// Init creates the candle table. ReplacingMergeTree folds re-sent bars with the same (symbol, ts).
func (s *CHCandleStore) Init(ctx context.Context) error {
	return s.ch.InitSchema(ctx, []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			symbol LowCardinality(String),
			ts     DateTime('UTC'),
			open   Float64,
			high   Float64,
			low    Float64,
			close  Float64,
			volume Float64,
			cohort LowCardinality(String)
		) ENGINE = ReplacingMergeTree
		ORDER BY (symbol, ts)`, s.table),
	})
}

func (s *CHCandleStore) GetCandles(ctx context.Context, q domrepo.CandleQuery) ([]models.Candle, error) {
	start := time.Now()
	query, args, desc := buildCandleQuery(s.table, true, q)

	out := make([]models.Candle, 0, 1024)
	if err := s.ch.DB().SelectContext(ctx, &out, query, args...); err != nil {
		s.l.Error("clickhouse get_candles query error",
			applogger.String("symbol", q.Symbol),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("get candles: %w", err)
	}
	if desc {
		reverseCandles(out)
	}
	normalizeCandles(out)

	s.l.Debug("clickhouse get_candles ok",
		applogger.String("symbol", q.Symbol),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}

func (s *CHCandleStore) GetLatest(ctx context.Context, symbol string) (*models.Candle, error) {
	var c models.Candle
	query := fmt.Sprintf(`SELECT symbol, ts, open, high, low, close, volume, cohort
		FROM %s FINAL WHERE symbol = ? ORDER BY ts DESC LIMIT 1`, s.table)
	if err := s.ch.DB().GetContext(ctx, &c, query, symbol); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get latest candle: %w", err)
	}
	c.TS = c.TS.UTC()
	return &c, nil
}

func (s *CHCandleStore) GetCount(ctx context.Context, symbol string) (int64, error) {
	var n uint64
	query := fmt.Sprintf(`SELECT count() FROM %s FINAL WHERE symbol = ?`, s.table)
	if err := s.ch.DB().GetContext(ctx, &n, query, symbol); err != nil {
		return 0, fmt.Errorf("count candles: %w", err)
	}
	return int64(n), nil
}

func (s *CHCandleStore) AppendCandles(ctx context.Context, candles []models.Candle) error {
	rows := make([][]any, 0, len(candles))
	for _, c := range candles {
		rows = append(rows, []any{c.Symbol, c.TS.UTC(), c.Open, c.High, c.Low, c.Close, c.Volume, c.Cohort})
	}
	query := fmt.Sprintf(`INSERT INTO %s (symbol, ts, open, high, low, close, volume, cohort)`, s.table)
	if err := s.ch.InsertBatch(ctx, query, rows); err != nil {
		return fmt.Errorf("append candles: %w", err)
	}
	return nil
}

func (s *CHCandleStore) Health(ctx context.Context) error {
	return s.ch.Health(ctx)
}
