package repository

import (
	"context"
	"time"

	"Fractal/internal/domain/models"
)

// CandleQuery selects candles of one symbol. Zero From/To are open bounds; Limit > 0 keeps the latest Limit candles.
type CandleQuery struct {
	Symbol string
	From   time.Time
	To     time.Time
	Limit  int
}

// CandleStore provides read-only access to daily candles ordered by timestamp ascending.
type CandleStore interface {
	GetCandles(ctx context.Context, q CandleQuery) ([]models.Candle, error)
	GetLatest(ctx context.Context, symbol string) (*models.Candle, error)
	GetCount(ctx context.Context, symbol string) (int64, error)
	Health(ctx context.Context) error
}

// CandleWriter appends candles. Implemented by stores that accept backfills.
type CandleWriter interface {
	AppendCandles(ctx context.Context, candles []models.Candle) error
}
