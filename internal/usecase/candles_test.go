package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Fractal/internal/domain/models"
	domrepo "Fractal/internal/domain/repository"
	"Fractal/internal/repository"
)

func TestGetCandles(t *testing.T) {
	candles := walk("SPX", 50, 1)
	candles[49].Cohort = models.CohortLive
	store := repository.NewMemoryCandleStore()
	require.NoError(t, store.AppendCandles(context.Background(), candles))
	uc := NewCandlesUseCase(store)

	res, err := uc.GetCandles(context.Background(), GetCandlesParams{Symbol: "spx", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, "SPX", res.Symbol)
	assert.Equal(t, 10, res.Count)
	last := res.Candles[9]
	assert.Equal(t, candles[49].TS.UnixMilli(), last.TS)
	assert.Equal(t, candles[49].TS.Format("2006-01-02"), last.Date)
	assert.Equal(t, models.CohortLive, last.Cohort)

	res, err = uc.GetCandles(context.Background(), GetCandlesParams{Symbol: "SPX", From: candles[10].TS, To: candles[12].TS})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Count)

	_, err = uc.GetCandles(context.Background(), GetCandlesParams{Symbol: "SPX", From: candles[12].TS, To: candles[10].TS})
	assert.ErrorIs(t, err, models.ErrInvalidRequest)
}

type brokenStore struct{ domrepo.CandleStore }

func (brokenStore) GetCandles(context.Context, domrepo.CandleQuery) ([]models.Candle, error) {
	return nil, errors.New("connection refused")
}

func (brokenStore) Health(context.Context) error { return errors.New("connection refused") }

func TestGetCandlesUpstreamError(t *testing.T) {
	uc := NewCandlesUseCase(brokenStore{})
	_, err := uc.GetCandles(context.Background(), GetCandlesParams{Symbol: "SPX"})
	assert.ErrorIs(t, err, models.ErrUpstreamData)
}

func TestHealthCheck(t *testing.T) {
	f := newFixture(t, walk("SPX", 5, 1))
	st := NewHealthUseCase(f.store, f.results, "2.1.0").Check(context.Background())
	assert.Equal(t, models.HealthStatus{OK: true, Store: "ok", Cache: "ok", Version: "2.1.0"}, st)

	st = NewHealthUseCase(brokenStore{}, f.results, "2.1.0").Check(context.Background())
	assert.False(t, st.OK)
	assert.Equal(t, "connection refused", st.Store)
}

type stubQueue struct {
	waiting, retrying, dead int64
	err                     error
}

func (q stubQueue) Depth(context.Context) (int64, int64, int64, error) {
	return q.waiting, q.retrying, q.dead, q.err
}

func TestHealthCheckQueueDepth(t *testing.T) {
	f := newFixture(t, walk("SPX", 5, 1))

	st := NewHealthUseCase(f.store, f.results, "2.1.0").WithQueue(stubQueue{waiting: 2, dead: 1}).Check(context.Background())
	assert.True(t, st.OK)
	require.NotNil(t, st.Queue)
	assert.Equal(t, models.QueueDepth{Waiting: 2, Dead: 1}, *st.Queue)

	st = NewHealthUseCase(f.store, f.results, "2.1.0").WithQueue(stubQueue{err: errors.New("redis down")}).Check(context.Background())
	assert.False(t, st.OK)
	assert.Equal(t, "redis down", st.Queue.Error)
}
