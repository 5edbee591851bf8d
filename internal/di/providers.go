package di

import (
	"context"
	"fmt"
	"time"

	domrepo "Fractal/internal/domain/repository"
	domsvc "Fractal/internal/domain/service"
	"Fractal/internal/handler/api"
	"Fractal/internal/handler/ws"
	internalrepo "Fractal/internal/repository"
	icache "Fractal/internal/service/cache"
	pipemetrics "Fractal/internal/service/metrics"
	"Fractal/internal/service/ratelimit"
	"Fractal/internal/services/consensus"
	"Fractal/internal/services/decision"
	"Fractal/internal/usecase"
	pkgcache "Fractal/pkg/cache"
	pkgch "Fractal/pkg/clickhouse"
	"Fractal/pkg/config"
	pkgkafka "Fractal/pkg/kafka"
	"Fractal/pkg/logger"
	"Fractal/pkg/metrics"
	"Fractal/pkg/queue"
	"Fractal/pkg/server"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
)

// Version is reported by /api/health. Overridden at link time.
var Version = "dev"

const initTimeout = 10 * time.Second

// ProvideLogger builds the application logger from the log section.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	l, err := logger.New(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(logger.String("env", cfg.Environment)), nil
}

// ProvideMetrics registers the pipeline collectors and returns the Prometheus recorder.
func ProvideMetrics() *metrics.Recorder {
	pipemetrics.Register()
	return metrics.New(prometheus.DefaultRegisterer)
}

func ProvideEngine(cfg *config.Config) *config.Engine {
	return &cfg.Engine
}

// ProvideRedisCache connects to Redis when enabled. A nil result means Redis is off.
func ProvideRedisCache(cfg *config.Config) (*pkgcache.RedisCache, func(), error) {
	if !cfg.Redis.Enabled {
		return nil, func() {}, nil
	}
	rc, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisAddr(cfg.Redis.Host, cfg.Redis.Port),
		pkgcache.WithRedisAuth(cfg.Redis.Password, cfg.Redis.DB),
		pkgcache.WithRedisPoolSize(cfg.Redis.PoolSize),
		pkgcache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	return rc, func() { _ = rc.Close() }, nil
}

// ProvideCacheService returns the result/version store: memory only, or memory in front of Redis.
func ProvideCacheService(cfg *config.Config, rc *pkgcache.RedisCache) (pkgcache.Service, func()) {
	var svc pkgcache.Service
	if rc != nil {
		svc = pkgcache.NewLayeredCache(rc,
			pkgcache.WithLayeredMemorySize(cfg.Cache.MaxEntries),
			pkgcache.WithLayeredMemoryTTL(time.Minute),
		)
	} else {
		svc = pkgcache.NewMemoryCache(pkgcache.WithMemoryMaxSize(cfg.Cache.MaxEntries))
	}
	return svc, func() { _ = svc.Close() }
}

// ProvideClickHouseClient connects only when ClickHouse backs the candle store.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, func(), error) {
	if cfg.CandleStore.Type != "clickhouse" {
		return nil, func() {}, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithAddress(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}

// ProvidePostgres opens the pool only when Postgres backs the candle store.
func ProvidePostgres(cfg *config.Config) (*sqlx.DB, func(), error) {
	if cfg.CandleStore.Type != "postgres" {
		return nil, func() {}, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()

	db, err := internalrepo.OpenPostgres(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxOpenConns, cfg.Postgres.MaxIdleConns)
	if err != nil {
		return nil, nil, err
	}
	if err := internalrepo.InitPostgresSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return db, func() { _ = db.Close() }, nil
}

// ProvideCandleStore selects the backend by candle_store.type and fronts it with a read-through cache.
func ProvideCandleStore(cfg *config.Config, ch *pkgch.Client, pg *sqlx.DB, log *logger.Logger) (*internalrepo.CachedCandleStore, error) {
	var base domrepo.CandleStore
	switch cfg.CandleStore.Type {
	case "clickhouse":
		store := internalrepo.NewCHCandleStore(ch, log)
		ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
		defer cancel()
		if err := store.Init(ctx); err != nil {
			return nil, fmt.Errorf("clickhouse schema: %w", err)
		}
		base = store
	case "postgres":
		base = internalrepo.NewPGCandleStore(pg, log)
	default:
		store, err := internalrepo.LoadCSVFile(cfg.CandleStore.File)
		if err != nil {
			return nil, fmt.Errorf("load candles: %w", err)
		}
		log.Info("candle file loaded",
			logger.String("file", cfg.CandleStore.File),
			logger.Strings("symbols", store.Symbols()))
		base = store
	}
	return internalrepo.NewCachedCandleStore(base, cfg.CandleStore.CacheTTL), nil
}

// ProvideSnapshotStore keeps snapshots next to the candles.
func ProvideSnapshotStore(cfg *config.Config, ch *pkgch.Client, pg *sqlx.DB) (domrepo.SnapshotStore, error) {
	var store domrepo.SnapshotStore
	switch cfg.CandleStore.Type {
	case "clickhouse":
		store = internalrepo.NewCHSnapshotStore(ch)
	case "postgres":
		store = internalrepo.NewPGSnapshotStore(pg)
	default:
		store = internalrepo.NewMemorySnapshotStore()
	}
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("snapshot store init: %w", err)
	}
	return store, nil
}

// ProvideKafkaProducer creates the snapshot producer when Kafka is enabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.Linger, cfg.Kafka.Producer.WriteTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideSnapshotPublisher owns the producer; its cleanup closes it.
func ProvideSnapshotPublisher(cfg *config.Config, producer *pkgkafka.Producer) (domrepo.SnapshotPublisher, func()) {
	if producer == nil {
		return internalrepo.NopSnapshotPublisher{}, func() {}
	}
	pub := internalrepo.NewKafkaSnapshotPublisher(producer, cfg.Kafka.SnapshotsTopic)
	return pub, func() { _ = pub.Close() }
}

// ProvideKafkaConsumer creates the candle events consumer when Kafka is enabled.
func ProvideKafkaConsumer(cfg *config.Config, log *logger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	c := cfg.Kafka.Consumer
	consumer, err := pkgkafka.NewConsumer(log,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(c.GroupID),
		pkgkafka.WithConsumerWorkers(c.Workers),
		pkgkafka.WithConsumerBufferSize(c.BufferSize),
		pkgkafka.WithConsumerRetry(c.RetryMax, c.BackoffMin, c.BackoffMax),
		pkgkafka.WithConsumerDLQ(c.DLQTopic),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.NewHookChain(
		pkgkafka.LoggingHook{Log: log, Slow: time.Second},
	))
	return consumer, nil
}

// ProvideJobQueue builds the Redis job queue when enabled. Jobs are registered by the App.
func ProvideJobQueue(cfg *config.Config, rc *pkgcache.RedisCache, log *logger.Logger) *queue.RedisQueue {
	if !cfg.Queue.Enabled || rc == nil {
		return nil
	}
	return queue.NewRedisQueue(log, &queue.QueueConfig{
		Workers:    cfg.Queue.Workers,
		RetryLimit: 3,
		Poll:       cfg.Queue.Poll,
		JobTimeout: cfg.Server.RequestTimeout,
	}, rc.Client(), queue.WithKeyPrefix(cfg.Queue.Name))
}

func ProvideResultCache(cfg *config.Config, svc pkgcache.Service) *icache.ResultCache {
	return icache.NewResultCache(svc, cfg.Cache.TTL)
}

func ProvideVersionRegistry(svc pkgcache.Service, store *internalrepo.CachedCandleStore) *icache.VersionRegistry {
	return icache.NewVersionRegistry(svc, store)
}

func ProvideConsensusResolver(eng *config.Engine) domsvc.ConsensusResolver {
	return consensus.NewResolver(eng)
}

func ProvideDecisionKernel(eng *config.Engine) domsvc.DecisionKernel {
	return decision.NewKernel(eng)
}

func ProvideFocusPackUseCase(store domrepo.CandleStore, versions domrepo.VersionRegistry, cache domrepo.ResultCache,
	m domrepo.Metrics, eng *config.Engine, log *logger.Logger) *usecase.FocusPackUseCase {
	return usecase.NewFocusPackUseCase(store, versions, cache, m, eng, log)
}

func ProvideTerminalUseCase(focus *usecase.FocusPackUseCase, resolver domsvc.ConsensusResolver,
	kernel domsvc.DecisionKernel, log *logger.Logger) *usecase.TerminalUseCase {
	return usecase.NewTerminalUseCase(focus, resolver, kernel, log)
}

func ProvideCandlesUseCase(store domrepo.CandleStore) *usecase.CandlesUseCase {
	return usecase.NewCandlesUseCase(store)
}

func ProvideHealthUseCase(store domrepo.CandleStore, cache domrepo.ResultCache, q *queue.RedisQueue) *usecase.HealthUseCase {
	uc := usecase.NewHealthUseCase(store, cache, Version)
	if q != nil {
		uc.WithQueue(q)
	}
	return uc
}

// ProvideSnapshotUseCase writes inline unless the job queue is enabled.
func ProvideSnapshotUseCase(terminal *usecase.TerminalUseCase, store domrepo.SnapshotStore,
	publisher domrepo.SnapshotPublisher, q *queue.RedisQueue, log *logger.Logger) *usecase.SnapshotUseCase {
	var jobs usecase.JobEnqueuer
	if q != nil {
		jobs = q
	}
	return usecase.NewSnapshotUseCase(terminal, store, publisher, jobs, log)
}

func ProvideIntelUseCase(focus *usecase.FocusPackUseCase, resolver domsvc.ConsensusResolver, log *logger.Logger) *usecase.IntelUseCase {
	return usecase.NewIntelUseCase(focus, resolver, log)
}

// ProvideHub creates the live data version hub. Its cleanup disconnects every subscriber.
func ProvideHub(log *logger.Logger) (*ws.Hub, func()) {
	hub := ws.NewHub(log)
	return hub, hub.Close
}

func ProvideCandleEventsHandler(cfg *config.Config, versions domrepo.VersionRegistry, cache domrepo.ResultCache,
	store *internalrepo.CachedCandleStore, hub *ws.Hub, log *logger.Logger) *usecase.CandleEventsHandler {
	return usecase.NewCandleEventsHandler(cfg.Kafka.CandlesTopic, versions, cache, store, hub, log)
}

// ProvideRateLimiter returns nil when rate limiting is disabled.
func ProvideRateLimiter(cfg *config.Config) *ratelimit.Limiter {
	if !cfg.RateLimit.Enabled {
		return nil
	}
	return ratelimit.New(cfg.RateLimit.Rate, cfg.RateLimit.Capacity)
}

func ProvideFractalHandler(cfg *config.Config, log *logger.Logger, focus *usecase.FocusPackUseCase,
	terminal *usecase.TerminalUseCase, candles *usecase.CandlesUseCase, snapshots *usecase.SnapshotUseCase,
	intel *usecase.IntelUseCase, health *usecase.HealthUseCase, hub *ws.Hub, limiter *ratelimit.Limiter) *api.FractalEchoHandler {
	return api.NewFractalEchoHandler(log, focus, terminal, candles, snapshots, intel, health, hub, limiter, cfg.Server.RequestTimeout)
}

// ProvideApp assembles the application server.
func ProvideApp(
	cfg *config.Config,
	log *logger.Logger,
	handler *api.FractalEchoHandler,
	consumer *pkgkafka.Consumer,
	events *usecase.CandleEventsHandler,
	jobs *queue.RedisQueue,
	snapshots *usecase.SnapshotUseCase,
) *server.App {
	app := server.New(cfg, log, handler)
	if consumer != nil {
		app.WithConsumer(consumer, events)
	}
	if jobs != nil {
		app.WithQueue(jobs, usecase.NewSnapshotJob(snapshots))
	}
	return app
}
