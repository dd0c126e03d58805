//go:build wireinject
// +build wireinject

package di

import (
	"LobCast/pkg/config"
	"LobCast/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Observability
		ProvideMetrics,
		ProvideLogger,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvideRedisClient,
		ProvideRedisQueue,
		ProvideQueueService,

		// Repositories
		ProvideSnapshotStore,
		ProvideSnapshotPublisher,
		ProvideRunStore,
		ProvidePredictionStore,
		ProvidePredictionPublisher,
		ProvideArchiver,
		ProvideMarketStream,

		// Domain services
		ProvideTracker,
		ProvideRuntime,
		ProvideModelCompiler,
		ProvideDatasetUploader,
		ProvideTrainer,
		ProvidePredictor,
		ProvideBytesCache,
		ProvideRateLimiter,

		// Use cases
		ProvideSnapshotProcessor,
		ProvideSnapshotCollector,
		ProvideKafkaSnapshotsHandler,
		ProvideDatasetBuilder,
		ProvideTrainingUseCase,
		ProvideTrainingJob,
		ProvideInferenceUseCase,

		// HTTP surface
		ProvideRunsHandler,
		ProvideHealthHandler,
		ProvideHTTPHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
