package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Fractal/internal/domain/models"
	domrepo "Fractal/internal/domain/repository"
	"Fractal/internal/repository"
	icache "Fractal/internal/service/cache"
	pkgcache "Fractal/pkg/cache"
	"Fractal/pkg/config"
	"Fractal/pkg/logger"
)

type recNotifier struct {
	notices []models.DataVersionNotice
}

func (n *recNotifier) Notify(_ string, notice models.DataVersionNotice) {
	n.notices = append(n.notices, notice)
}

type recInvalidator struct {
	symbols []string
}

func (r *recInvalidator) Invalidate(symbol string) { r.symbols = append(r.symbols, symbol) }

func TestCandleEventsBumpAndNotify(t *testing.T) {
	f := newFixture(t, walk("SPX", 1200, 2))
	ctx := context.Background()
	_, err := f.focus.Build(ctx, "SPX", models.Horizon7d, "")
	require.NoError(t, err)

	notifier := &recNotifier{}
	inv := &recInvalidator{}
	h := NewCandleEventsHandler("fractal.candles.appended", f.versions, f.results, inv, notifier, logger.Nop())
	h.now = func() time.Time { return time.UnixMilli(1_700_000_000_000) }
	assert.Equal(t, "fractal.candles.appended", h.Topic())

	require.NoError(t, h.Handle(ctx, []byte(`{"symbol":"spx","ts":1700000000,"count":1}`)))

	v, err := f.versions.Current(ctx, "SPX")
	require.NoError(t, err)
	assert.Equal(t, int64(1201), v)
	assert.Equal(t, []string{"SPX"}, inv.symbols)
	require.Len(t, notifier.notices, 1)
	assert.Equal(t, models.DataVersionNotice{Type: "data_version", Symbol: "SPX", Version: 1201, TS: 1_700_000_000_000}, notifier.notices[0])

	_, ok, err := f.results.Get(ctx, "fp:SPX:7d:all:1200")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, h.Handle(ctx, []byte(`{"symbol":"SPX"}`)))
	assert.Equal(t, int64(1_700_000_000_000), notifier.notices[1].TS)
	assert.Equal(t, int64(1202), notifier.notices[1].Version)
}

func TestCandleEventsRejectsBadPayload(t *testing.T) {
	f := newFixture(t, walk("SPX", 10, 2))
	h := NewCandleEventsHandler("t", f.versions, f.results, nil, nil, logger.Nop())

	assert.Error(t, h.Handle(context.Background(), []byte(`not json`)))
	assert.ErrorIs(t, h.Handle(context.Background(), []byte(`{"symbol":"a b"}`)), models.ErrInvalidSymbol)
}

// gatedCandles holds the first candle read open until release is closed.
type gatedCandles struct {
	*repository.MemoryCandleStore
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *gatedCandles) GetCandles(ctx context.Context, q domrepo.CandleQuery) ([]models.Candle, error) {
	v, err := g.MemoryCandleStore.GetCandles(ctx, q)
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.entered)
		<-g.release
	}
	return v, err
}

func TestAppendDuringInFlightReadIsNotServedStale(t *testing.T) {
	ctx := context.Background()
	series := walk("SPX", 801, 3)
	inner := &gatedCandles{MemoryCandleStore: repository.NewMemoryCandleStore(), entered: make(chan struct{}), release: make(chan struct{})}
	require.NoError(t, inner.AppendCandles(ctx, series[:800]))
	store := repository.NewCachedCandleStore(inner, time.Hour)

	kv := pkgcache.NewMemoryCache()
	t.Cleanup(func() { _ = kv.Close() })
	eng := config.DefaultEngine()
	versions := icache.NewVersionRegistry(kv, store)
	results := icache.NewResultCache(kv, time.Hour)
	focus := NewFocusPackUseCase(store, versions, results, newRecMetrics(), &eng, logger.Nop())
	events := NewCandleEventsHandler("t", versions, results, store, nil, logger.Nop())

	done := make(chan error)
	go func() {
		_, err := focus.Build(ctx, "SPX", models.Horizon7d, "")
		done <- err
	}()
	<-inner.entered
	require.NoError(t, inner.AppendCandles(ctx, series[800:]))
	_, err := events.Apply(ctx, "SPX", 0)
	require.NoError(t, err)
	close(inner.release)
	require.NoError(t, <-done)

	pack, err := focus.Build(ctx, "SPX", models.Horizon7d, "")
	require.NoError(t, err)
	assert.Equal(t, int64(801), pack.Meta.DataVersion)
	assert.Equal(t, 801, pack.Meta.CandleCount)
	assert.Equal(t, series[800].TS, pack.Meta.Asof)
}
