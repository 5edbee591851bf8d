package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Fractal/internal/domain/models"
	domrepo "Fractal/internal/domain/repository"
)

type countingStore struct {
	*MemoryCandleStore
	reads int
}

func (c *countingStore) GetCandles(ctx context.Context, q domrepo.CandleQuery) ([]models.Candle, error) {
	c.reads++
	return c.MemoryCandleStore.GetCandles(ctx, q)
}

func TestCachedCandleStore(t *testing.T) {
	ctx := context.Background()
	inner := &countingStore{MemoryCandleStore: NewMemoryCandleStore()}
	base := day("2024-01-01")
	require.NoError(t, inner.AppendCandles(ctx, []models.Candle{{Symbol: "SPX", TS: base, Close: 1}}))

	s := NewCachedCandleStore(inner, time.Minute)
	q := domrepo.CandleQuery{Symbol: "SPX"}

	first, err := s.GetCandles(ctx, q)
	require.NoError(t, err)
	first[0].Close = 99

	second, err := s.GetCandles(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, 1.0, second[0].Close)
	assert.Equal(t, 1, inner.reads)

	require.NoError(t, s.AppendCandles(ctx, []models.Candle{{Symbol: "SPX", TS: base.AddDate(0, 0, 1), Close: 2}}))
	third, err := s.GetCandles(ctx, q)
	require.NoError(t, err)
	assert.Len(t, third, 2)
	assert.Equal(t, 2, inner.reads)
}

type readOnlyStore struct{ domrepo.CandleStore }

func TestCachedCandleStoreReadOnly(t *testing.T) {
	s := NewCachedCandleStore(readOnlyStore{NewMemoryCandleStore()}, time.Minute)
	err := s.AppendCandles(context.Background(), []models.Candle{{Symbol: "SPX"}})
	assert.Error(t, err)
}

// gatedStore blocks the first GetCandles until release is closed.
type gatedStore struct {
	*MemoryCandleStore
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedStore) GetCandles(ctx context.Context, q domrepo.CandleQuery) ([]models.Candle, error) {
	v, err := g.MemoryCandleStore.GetCandles(ctx, q)
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.entered)
		<-g.release
	}
	return v, err
}

func TestCachedCandleStoreReadOverlappingInvalidateIsNotCached(t *testing.T) {
	ctx := context.Background()
	base := day("2024-01-01")
	inner := &gatedStore{MemoryCandleStore: NewMemoryCandleStore(), entered: make(chan struct{}), release: make(chan struct{})}
	require.NoError(t, inner.AppendCandles(ctx, []models.Candle{{Symbol: "SPX", TS: base, Close: 1}}))
	s := NewCachedCandleStore(inner, time.Hour)
	q := domrepo.CandleQuery{Symbol: "SPX"}

	done := make(chan []models.Candle)
	go func() {
		v, _ := s.GetCandles(ctx, q)
		done <- v
	}()
	<-inner.entered
	require.NoError(t, inner.AppendCandles(ctx, []models.Candle{{Symbol: "SPX", TS: base.AddDate(0, 0, 1), Close: 2}}))
	s.Invalidate("SPX")
	close(inner.release)

	assert.Len(t, <-done, 1)
	assert.Zero(t, s.cache.Len())

	got, err := s.GetCandles(ctx, q)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestCachedCandleStoreSeesAppendsFromAnotherInstance(t *testing.T) {
	ctx := context.Background()
	base := day("2024-01-01")
	shared := NewMemoryCandleStore()
	require.NoError(t, shared.AppendCandles(ctx, []models.Candle{{Symbol: "SPX", TS: base, Close: 1}}))
	a := NewCachedCandleStore(shared, time.Hour)
	b := NewCachedCandleStore(shared, time.Hour)
	q := domrepo.CandleQuery{Symbol: "SPX"}

	first, err := a.GetCandles(ctx, q)
	require.NoError(t, err)
	require.Len(t, first, 1)

	require.NoError(t, b.AppendCandles(ctx, []models.Candle{{Symbol: "SPX", TS: base.AddDate(0, 0, 1), Close: 2}}))

	second, err := a.GetCandles(ctx, q)
	require.NoError(t, err)
	assert.Len(t, second, 2)

	bounded := domrepo.CandleQuery{Symbol: "SPX", To: base}
	v, err := a.GetCandles(ctx, bounded)
	require.NoError(t, err)
	assert.Len(t, v, 1)
}
