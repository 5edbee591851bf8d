package di

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	domrepo "Fractal/internal/domain/repository"
	internalrepo "Fractal/internal/repository"
	"Fractal/pkg/cache"
	"Fractal/pkg/config"
	"Fractal/pkg/logger"
	"Fractal/pkg/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fileConfig(t *testing.T) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "candles.csv")
	csv := "symbol,date,open,high,low,close\n" +
		"BTC,2026-01-01,100,110,95,105\n" +
		"BTC,2026-01-02,105,112,101,111\n"
	require.NoError(t, os.WriteFile(path, []byte(csv), 0o644))

	cfg := &config.Config{Engine: config.DefaultEngine()}
	cfg.CandleStore.Type = "file"
	cfg.CandleStore.File = path
	cfg.CandleStore.CacheTTL = time.Minute
	cfg.Cache.MaxEntries = 16
	cfg.Cache.TTL = time.Hour
	return cfg
}

func TestProvideFileBackedStores(t *testing.T) {
	cfg := fileConfig(t)

	ch, chCleanup, err := ProvideClickHouseClient(cfg)
	require.NoError(t, err)
	defer chCleanup()
	assert.Nil(t, ch)

	pg, pgCleanup, err := ProvidePostgres(cfg)
	require.NoError(t, err)
	defer pgCleanup()
	assert.Nil(t, pg)

	store, err := ProvideCandleStore(cfg, ch, pg, logger.Nop())
	require.NoError(t, err)
	n, err := store.GetCount(context.Background(), "BTC")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	snaps, err := ProvideSnapshotStore(cfg, ch, pg)
	require.NoError(t, err)
	assert.IsType(t, &internalrepo.MemorySnapshotStore{}, snaps)
}

func TestProvideCandleStoreMissingFile(t *testing.T) {
	cfg := fileConfig(t)
	cfg.CandleStore.File = filepath.Join(t.TempDir(), "absent.csv")

	_, err := ProvideCandleStore(cfg, nil, nil, logger.Nop())
	assert.Error(t, err)
}

func TestOptionalInfrastructureDisabled(t *testing.T) {
	cfg := fileConfig(t)

	rc, cleanup, err := ProvideRedisCache(cfg)
	require.NoError(t, err)
	defer cleanup()
	assert.Nil(t, rc)

	svc, svcCleanup := ProvideCacheService(cfg, rc)
	defer svcCleanup()
	assert.IsType(t, &cache.MemoryCache{}, svc)

	producer, err := ProvideKafkaProducer(cfg)
	require.NoError(t, err)
	assert.Nil(t, producer)

	pub, pubCleanup := ProvideSnapshotPublisher(cfg, producer)
	defer pubCleanup()
	assert.IsType(t, internalrepo.NopSnapshotPublisher{}, pub)

	consumer, err := ProvideKafkaConsumer(cfg, logger.Nop())
	require.NoError(t, err)
	assert.Nil(t, consumer)

	assert.Nil(t, ProvideJobQueue(cfg, rc, logger.Nop()))
	assert.Nil(t, ProvideRateLimiter(cfg))
}

func TestSnapshotUseCaseRunsInlineWithoutQueue(t *testing.T) {
	cfg := fileConfig(t)
	log := logger.Nop()
	eng := ProvideEngine(cfg)

	store, err := ProvideCandleStore(cfg, nil, nil, log)
	require.NoError(t, err)
	svc, cleanup := ProvideCacheService(cfg, nil)
	defer cleanup()

	var cs domrepo.CandleStore = store
	focus := ProvideFocusPackUseCase(cs, ProvideVersionRegistry(svc, store), ProvideResultCache(cfg, svc),
		metrics.Noop{}, eng, log)
	terminal := ProvideTerminalUseCase(focus, ProvideConsensusResolver(eng), ProvideDecisionKernel(eng), log)

	uc := ProvideSnapshotUseCase(terminal, internalrepo.NewMemorySnapshotStore(), internalrepo.NopSnapshotPublisher{}, nil, log)
	res, err := uc.Write(context.Background(), "BTC")

	// Two candles cannot satisfy any horizon; the write must fail inline instead of queueing.
	assert.Error(t, err)
	assert.Nil(t, res)
}
