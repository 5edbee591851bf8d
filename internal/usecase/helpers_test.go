package usecase

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"Fractal/internal/domain/models"
	icache "Fractal/internal/service/cache"
	"Fractal/internal/repository"
	"Fractal/internal/services/consensus"
	"Fractal/internal/services/decision"
	pkgcache "Fractal/pkg/cache"
	"Fractal/pkg/config"
	"Fractal/pkg/logger"
)

var epoch = time.Date(2012, 1, 2, 0, 0, 0, 0, time.UTC)

func walk(symbol string, n int, seed int64) []models.Candle {
	rng := rand.New(rand.NewSource(seed))
	out := make([]models.Candle, n)
	price := 100.0
	for i := 0; i < n; i++ {
		drift := 0.0015 * math.Sin(float64(i)/60)
		price *= math.Exp(drift + 0.015*rng.NormFloat64())
		out[i] = models.Candle{
			Symbol: symbol,
			TS:     epoch.AddDate(0, 0, i),
			Open:   price,
			High:   price * 1.01,
			Low:    price * 0.99,
			Close:  price,
			Volume: 1000,
		}
	}
	return out
}

type recMetrics struct {
	mu       sync.Mutex
	cache    map[string]int
	failures map[models.Horizon]string
	index    map[string]int
	stages   map[string]int
}

func newRecMetrics() *recMetrics {
	return &recMetrics{cache: map[string]int{}, failures: map[models.Horizon]string{}, index: map[string]int{}, stages: map[string]int{}}
}

func (m *recMetrics) RecordError(string)            {}
func (m *recMetrics) RecordLatency(string, float64) {}
func (m *recMetrics) RecordHorizon(h models.Horizon, stage string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stages[string(h)+"/"+stage]++
}
func (m *recMetrics) RecordHorizonFailure(h models.Horizon, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[h] = reason
}
func (m *recMetrics) RecordCache(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache[result]++
}
func (m *recMetrics) RecordConsensus(symbol string, index int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.index[symbol] = index
}

func (m *recMetrics) hits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cache["hit"]
}

type fixture struct {
	store    *repository.MemoryCandleStore
	versions *icache.VersionRegistry
	results  *icache.ResultCache
	metrics  *recMetrics
	eng      *config.Engine
	focus    *FocusPackUseCase
	terminal *TerminalUseCase
}

func newFixture(t *testing.T, candles []models.Candle) *fixture {
	t.Helper()
	ctx := context.Background()
	store := repository.NewMemoryCandleStore()
	require.NoError(t, store.AppendCandles(ctx, candles))

	kv := pkgcache.NewMemoryCache(pkgcache.WithMemoryMaxSize(256))
	t.Cleanup(func() { _ = kv.Close() })

	eng := config.DefaultEngine()
	f := &fixture{
		store:    store,
		versions: icache.NewVersionRegistry(kv, store),
		results:  icache.NewResultCache(kv, time.Hour),
		metrics:  newRecMetrics(),
		eng:      &eng,
	}
	f.focus = NewFocusPackUseCase(store, f.versions, f.results, f.metrics, f.eng, logger.Nop())
	f.terminal = NewTerminalUseCase(f.focus, consensus.NewResolver(f.eng), decision.NewKernel(f.eng), logger.Nop())
	return f
}
