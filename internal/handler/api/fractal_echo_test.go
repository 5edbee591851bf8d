package api

import (
	"context"
	"encoding/json"
	"math"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	models "Fractal/internal/domain/models"
	"Fractal/internal/repository"
	icache "Fractal/internal/service/cache"
	"Fractal/internal/service/ratelimit"
	"Fractal/internal/services/consensus"
	"Fractal/internal/services/decision"
	"Fractal/internal/usecase"
	pkgcache "Fractal/pkg/cache"
	"Fractal/pkg/config"
	xlogger "Fractal/pkg/logger"
	"Fractal/pkg/metrics"
)

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func candles(n int) []models.Candle {
	rng := rand.New(rand.NewSource(17))
	start := time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.Candle, n)
	price := 50.0
	for i := range out {
		price *= math.Exp(0.001*math.Sin(float64(i)/50) + 0.015*rng.NormFloat64())
		out[i] = models.Candle{Symbol: "SPX", TS: start.AddDate(0, 0, i), Open: price, High: price, Low: price, Close: price}
	}
	return out
}

func newEcho(t *testing.T, n int, limiter *ratelimit.Limiter) *echo.Echo {
	t.Helper()
	store := repository.NewMemoryCandleStore()
	require.NoError(t, store.AppendCandles(context.Background(), candles(n)))
	kv := pkgcache.NewMemoryCache()
	t.Cleanup(func() { _ = kv.Close() })

	eng := config.DefaultEngine()
	log := xlogger.Nop()
	results := icache.NewResultCache(kv, time.Hour)
	focus := usecase.NewFocusPackUseCase(store, icache.NewVersionRegistry(kv, store), results, metrics.Noop{}, &eng, log)
	terminal := usecase.NewTerminalUseCase(focus, consensus.NewResolver(&eng), decision.NewKernel(&eng), log)
	snaps := usecase.NewSnapshotUseCase(terminal, repository.NewMemorySnapshotStore(), repository.NopSnapshotPublisher{}, nil, log)

	intel := usecase.NewIntelUseCase(focus, consensus.NewResolver(&eng), log)

	h := NewFractalEchoHandler(log, focus, terminal, usecase.NewCandlesUseCase(store), snaps, intel,
		usecase.NewHealthUseCase(store, results, "test"), nil, limiter, 10*time.Second)
	e := echo.New()
	h.RegisterRoutes(e)
	return e
}

func do(t *testing.T, e *echo.Echo, method, target string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

func TestHealth(t *testing.T) {
	e := newEcho(t, 10, nil)
	rec, env := do(t, e, http.MethodGet, "/api/health")
	assert.Equal(t, http.StatusOK, rec.Code)

	var st models.HealthStatus
	require.NoError(t, json.Unmarshal(env.Data, &st))
	assert.True(t, st.OK)
	assert.Equal(t, "test", st.Version)
}

func TestFocusPackEndpoint(t *testing.T) {
	e := newEcho(t, 1200, nil)
	rec, env := do(t, e, http.MethodGet, basePath+"/focus-pack?symbol=spx&focus=30d")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Meta        models.FocusMeta   `json:"meta"`
		ChartSeries models.ChartSeries `json:"chartSeries"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &body))
	assert.Equal(t, "SPX", body.Meta.Symbol)
	assert.Equal(t, models.Horizon30d, body.Meta.Focus)
	assert.Equal(t, "hybrid", body.ChartSeries.Mode)
	assert.NotEmpty(t, body.ChartSeries.Replay)
	assert.Equal(t, "private, max-age=15", rec.Header().Get(echo.HeaderCacheControl))
}

func TestFocusPackErrors(t *testing.T) {
	e := newEcho(t, 120, nil)

	rec, env := do(t, e, http.MethodGet, basePath+"/focus-pack?symbol=SPX&focus=45d")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, string(env.Data), "ERR_INVALID_HORIZON")

	rec, env = do(t, e, http.MethodGet, basePath+"/focus-pack?symbol=SPX&phase=sideways")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, string(env.Data), "ERR_INVALID_PHASE")

	rec, _ = do(t, e, http.MethodGet, basePath+"/focus-pack?focus=30d")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env = do(t, e, http.MethodGet, basePath+"/focus-pack?symbol=BTC$USD&focus=30d")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, string(env.Data), "ERR_INVALID_SYMBOL")

	rec, _ = do(t, e, http.MethodGet, basePath+"/focus-pack?symbol=SPX&mode=fancy")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env = do(t, e, http.MethodGet, basePath+"/focus-pack?symbol=SPX&focus=30d")
	assert.Equal(t, http.StatusTooEarly, rec.Code)
	var nr models.NotReadyError
	require.NoError(t, json.Unmarshal(env.Data, &nr))
	assert.Equal(t, "INSUFFICIENT_HISTORY", nr.Reason)
	assert.Equal(t, 500, nr.Required)
	assert.Equal(t, 120, nr.Available)
	assert.NotEmpty(t, nr.Hint)
}

func TestTerminalEndpoint(t *testing.T) {
	e := newEcho(t, 1000, nil)
	rec, env := do(t, e, http.MethodGet, basePath+"/terminal?symbol=SPX&focus=7d&preset=conservative")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var term models.Terminal
	require.NoError(t, json.Unmarshal(env.Data, &term))
	assert.Equal(t, models.PresetConservative, term.Meta.Preset)
	assert.Len(t, term.HorizonMatrix, 6)
	assert.Len(t, term.Consensus.Missing, 2)

	rec, env = do(t, e, http.MethodGet, basePath+"/terminal?symbol=SPX&preset=reckless")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, string(env.Data), "ERR_ONEOF")
}

func TestCandlesEndpoint(t *testing.T) {
	e := newEcho(t, 30, nil)
	rec, env := do(t, e, http.MethodGet, basePath+"/candles?symbol=SPX&from=2015-01-05&to=2015-01-09")
	require.Equal(t, http.StatusOK, rec.Code)

	var res models.CandlesResponse
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, 5, res.Count)
	assert.Equal(t, "2015-01-05", res.Candles[0].Date)

	rec, env = do(t, e, http.MethodGet, basePath+"/candles?symbol=SPX&from=yesterday")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, string(env.Data), "ERR_INVALID_TIME")
}

func TestSnapshotEndpoints(t *testing.T) {
	e := newEcho(t, 1000, nil)

	rec, env := do(t, e, http.MethodPost, basePath+"/admin/memory/write-snapshots?symbol=SPX")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res models.SnapshotWriteResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, 18, res.Written)

	rec, env = do(t, e, http.MethodGet, basePath+"/admin/memory/snapshots?symbol=SPX&limit=5")
	require.Equal(t, http.StatusOK, rec.Code)
	var list models.SnapshotList
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Equal(t, 5, list.Count)

	rec, _ = do(t, e, http.MethodPost, basePath+"/admin/memory/write-snapshots")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMemoryEndpoints(t *testing.T) {
	e := newEcho(t, 1000, nil)

	rec, env := do(t, e, http.MethodGet, basePath+"/admin/memory/snapshots/latest?symbol=SPX&focus=30d")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var latest models.LatestSnapshot
	require.NoError(t, json.Unmarshal(env.Data, &latest))
	assert.False(t, latest.Found)

	rec, _ = do(t, e, http.MethodPost, basePath+"/admin/memory/write-snapshots?symbol=SPX")
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env = do(t, e, http.MethodGet, basePath+"/admin/memory/snapshots/latest?symbol=SPX&focus=30d")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &latest))
	require.True(t, latest.Found)
	assert.Equal(t, models.PresetBalanced, latest.Snapshot.Preset)
	var raw struct {
		Snapshot map[string]json.RawMessage `json:"snapshot"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &raw))
	for _, field := range []string{"kernelDigest", "tierWeights", "asofDate", "focus", "preset"} {
		assert.Contains(t, raw.Snapshot, field)
	}

	rec, env = do(t, e, http.MethodGet, basePath+"/admin/memory/snapshots/count?symbol=SPX")
	require.Equal(t, http.StatusOK, rec.Code)
	var count models.SnapshotCount
	require.NoError(t, json.Unmarshal(env.Data, &count))
	assert.Equal(t, 18, count.Total)

	rec, env = do(t, e, http.MethodPost, basePath+"/admin/memory/resolve-outcomes?symbol=SPX")
	require.Equal(t, http.StatusOK, rec.Code)
	var res models.OutcomeResolution
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, "2017-09-26", res.LatestCandleDate)
	assert.Equal(t, 18, res.Skipped)
	for _, h := range models.AllHorizons {
		assert.Contains(t, res.ByFocus, h)
	}

	rec, env = do(t, e, http.MethodGet, basePath+"/admin/memory/forward-stats?symbol=SPX")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats models.ForwardStats
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Zero(t, stats.TotalResolved)

	rec, env = do(t, e, http.MethodGet, basePath+"/admin/memory/snapshots/latest?symbol=SPX&focus=2d")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, string(env.Data), "ERR_INVALID_HORIZON")
}

func TestIntelTimelineEndpoint(t *testing.T) {
	e := newEcho(t, 1000, nil)
	rec, env := do(t, e, http.MethodGet, basePath+"/admin/intel/timeline?symbol=SPX&window=10")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var tl models.IntelTimeline
	require.NoError(t, json.Unmarshal(env.Data, &tl))
	assert.Equal(t, "SPX", tl.Meta.Symbol)
	require.Len(t, tl.Series, 10)
	assert.Equal(t, "2017-09-26", tl.Series[9].Date)
	assert.NotEmpty(t, tl.Series[0].PhaseGrade)

	rec, _ = do(t, e, http.MethodGet, basePath+"/admin/intel/timeline?symbol=SPX&window=1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRateLimit(t *testing.T) {
	e := newEcho(t, 30, ratelimit.New(0.0001, 1))
	rec, _ := do(t, e, http.MethodGet, basePath+"/candles?symbol=SPX")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = do(t, e, http.MethodGet, basePath+"/candles?symbol=SPX")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec, _ = do(t, e, http.MethodGet, "/api/health")
	assert.Equal(t, http.StatusOK, rec.Code)
}
