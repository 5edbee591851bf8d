//go:build wireinject
// +build wireinject

package di

import (
	domrepo "Fractal/internal/domain/repository"
	internalrepo "Fractal/internal/repository"
	icache "Fractal/internal/service/cache"
	"Fractal/pkg/config"
	"Fractal/pkg/metrics"
	"Fractal/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application with its cleanup.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,
		ProvideEngine,

		// Infrastructure clients
		ProvideRedisCache,
		ProvideCacheService,
		ProvideClickHouseClient,
		ProvidePostgres,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvideJobQueue,

		// Repositories
		ProvideCandleStore,
		ProvideSnapshotStore,
		ProvideSnapshotPublisher,
		ProvideResultCache,
		ProvideVersionRegistry,
		wire.Bind(new(domrepo.CandleStore), new(*internalrepo.CachedCandleStore)),
		wire.Bind(new(domrepo.ResultCache), new(*icache.ResultCache)),
		wire.Bind(new(domrepo.VersionRegistry), new(*icache.VersionRegistry)),
		wire.Bind(new(domrepo.Metrics), new(*metrics.Recorder)),

		// Engine services and use cases
		ProvideConsensusResolver,
		ProvideDecisionKernel,
		ProvideFocusPackUseCase,
		ProvideTerminalUseCase,
		ProvideCandlesUseCase,
		ProvideHealthUseCase,
		ProvideSnapshotUseCase,
		ProvideIntelUseCase,
		ProvideCandleEventsHandler,

		// Transport
		ProvideHub,
		ProvideRateLimiter,
		ProvideFractalHandler,

		ProvideApp,
	)
	return nil, nil, nil
}
