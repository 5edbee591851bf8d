package usecase

import (
	"context"
	"fmt"
	"time"

	"Fractal/internal/domain/models"
	domrepo "Fractal/internal/domain/repository"
	"Fractal/pkg/util"
)

const maxCandlesLimit = 50000

// CandlesUseCase serves raw candle history.
type CandlesUseCase struct {
	store domrepo.CandleStore
}

func NewCandlesUseCase(store domrepo.CandleStore) *CandlesUseCase {
	return &CandlesUseCase{store: store}
}

type GetCandlesParams struct {
	Symbol string
	From   time.Time
	To     time.Time
	Limit  int
}

func (uc *CandlesUseCase) GetCandles(ctx context.Context, p GetCandlesParams) (*models.CandlesResponse, error) {
	symbol, err := normalizeSymbol(p.Symbol)
	if err != nil {
		return nil, err
	}
	if !p.From.IsZero() && !p.To.IsZero() && p.From.After(p.To) {
		return nil, fmt.Errorf("%w: from must be <= to", models.ErrInvalidRequest)
	}
	if p.Limit <= 0 {
		p.Limit = 1000
	}
	if p.Limit > maxCandlesLimit {
		p.Limit = maxCandlesLimit
	}

	candles, err := uc.store.GetCandles(ctx, domrepo.CandleQuery{Symbol: symbol, From: p.From, To: p.To, Limit: p.Limit})
	if err != nil {
		return nil, fmt.Errorf("%w: get candles: %v", models.ErrUpstreamData, err)
	}

	views := make([]models.CandleView, len(candles))
	for i, c := range candles {
		views[i] = models.NewCandleView(c)
	}
	return &models.CandlesResponse{Symbol: symbol, Count: len(views), Candles: views}, nil
}

func normalizeSymbol(s string) (string, error) {
	sym := util.NormalizeSymbol(s)
	if !util.IsValidSymbol(sym) {
		return "", fmt.Errorf("%w: %q", models.ErrInvalidSymbol, s)
	}
	return sym, nil
}

func cloneCandles(in []models.Candle) []models.Candle {
	out := make([]models.Candle, len(in))
	copy(out, in)
	return out
}
