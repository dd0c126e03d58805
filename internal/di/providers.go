package di

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"LobCast/internal/domain/repository"
	domsvc "LobCast/internal/domain/service"
	"LobCast/internal/handler/api"
	mid "LobCast/internal/middleware"
	internalrepo "LobCast/internal/repository"
	"LobCast/internal/service/cache"
	"LobCast/internal/service/lobfeed"
	"LobCast/internal/service/ratelimit"
	"LobCast/internal/service/window"
	rtsvc "LobCast/internal/services/runtime"
	"LobCast/internal/usecase"
	pkgch "LobCast/pkg/clickhouse"
	"LobCast/pkg/config"
	xhttp "LobCast/pkg/http"
	pkgkafka "LobCast/pkg/kafka"
	applogger "LobCast/pkg/logger"
	"LobCast/pkg/metrics"
	pkgqueue "LobCast/pkg/queue"
	"LobCast/pkg/server"
)

// digestPublisher adapts the Kafka producer to the log collector's
// Publisher interface. Digests carry no key; partition assignment does not
// matter for them.
type digestPublisher struct {
	producer *pkgkafka.Producer
}

func (d digestPublisher) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return d.producer.Publish(ctx, topic, nil, payload)
}

// ProvideLogger creates the application logger and, when enabled, attaches
// the aggregated error digest shipping to Kafka.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*applogger.Logger, error) {
	level := cfg.Log.Level
	if level == "" {
		level = "info"
	}
	lgr, err := applogger.New(&applogger.Config{
		Level:      level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	if cfg.Log.Digest.Enabled && producer != nil {
		lgr.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   cfg.Log.Digest.Interval,
			CountThreshold: cfg.Log.Digest.CountThreshold,
			Topic:          cfg.Log.Digest.Topic,
			Publisher:      digestPublisher{producer: producer},
		})
	}

	return lgr, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient creates a ClickHouse client and prepares the
// snapshot, run and prediction tables.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db := cfg.ClickHouse.Database
	if err := client.InitSchema(ctx, []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", db),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s.lob_snapshots (instrument String, ts DateTime64(3), seq UInt64, ask_prices Array(Float64), ask_sizes Array(Float64), bid_prices Array(Float64), bid_sizes Array(Float64)) ENGINE=MergeTree ORDER BY (instrument, ts)", db),
		// Run updates insert full rows; reads use FINAL to collapse to the
		// newest version per id.
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s.lob_runs (id String, status String, window_length Int32, horizon Int32, num_features Int32, recurrent_units Int32, batch_size Int32, epochs Int32, validation_split Float64, shuffle_seed Int64, device String, train_samples Int32, test_samples Int32, epoch Int32, loss Float64, accuracy Float64, val_loss Float64, val_accuracy Float64, error String, created_at DateTime64(3), updated_at DateTime64(3), started_at Nullable(DateTime64(3)), finished_at Nullable(DateTime64(3))) ENGINE=ReplacingMergeTree(updated_at) ORDER BY id", db),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s.lob_epochs (run_id String, epoch Int32, loss Float64, accuracy Float64, val_loss Float64, val_accuracy Float64, ts DateTime64(3)) ENGINE=MergeTree ORDER BY (run_id, epoch)", db),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s.lob_predictions (instrument String, ts DateTime64(3), run_id String, horizon Int32, p_down Float64, p_stationary Float64, p_up Float64, class Int32, confidence Float64, source String) ENGINE=MergeTree ORDER BY (instrument, ts)", db),
	}); err != nil {
		_ = client.Close() // cannot log here (DI layer no logger); propagate error
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	return client, nil
}

// ProvideKafkaProducer creates the Kafka producer shared by the snapshot
// and prediction publishers.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}

	return producer, nil
}

// ProvideKafkaConsumer creates the Kafka consumer configured from YAML.
func ProvideKafkaConsumer(cfg *config.Config, lgr *applogger.Logger) (*pkgkafka.Consumer, error) {
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerLogger(lgr),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideRedisClient creates the Redis client shared by the training queue
// and the prediction cache. Connections are dialed lazily.
func ProvideRedisClient(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

// ProvideRedisQueue creates the training queue, or nil when the queue is
// disabled and runs execute inline.
func ProvideRedisQueue(cfg *config.Config, lgr *applogger.Logger, client *redis.Client) *pkgqueue.RedisQueue {
	if !cfg.Queue.Enabled {
		return nil
	}
	return pkgqueue.NewRedisQueue(lgr, &pkgqueue.QueueConfig{
		Workers:    cfg.Queue.Workers,
		RetryLimit: cfg.Queue.MaxRetries,
		RetryDelay: cfg.Queue.RetryDelay,
	}, client, pkgqueue.ModeProducerConsumer)
}

// ProvideQueueService exposes the queue to use cases. The nil check matters:
// a nil *RedisQueue wrapped in a non-nil interface would defeat the
// queue-disabled path.
func ProvideQueueService(rq *pkgqueue.RedisQueue) pkgqueue.QueueService {
	if rq == nil {
		return nil
	}
	return rq
}

// ProvideSnapshotStore creates the ClickHouse snapshot repository.
func ProvideSnapshotStore(chClient *pkgch.Client, cfg *config.Config) repository.SnapshotStore {
	return internalrepo.NewClickHouseSnapshotStore(chClient.DB(), cfg.ClickHouse.Database+".lob_snapshots")
}

// ProvideSnapshotPublisher creates the Kafka snapshot publisher.
func ProvideSnapshotPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.Publisher {
	return internalrepo.NewKafkaSnapshotPublisher(producer, cfg.Kafka.SnapshotTopic)
}

// ProvideRunStore creates the ClickHouse run repository.
func ProvideRunStore(chClient *pkgch.Client, cfg *config.Config) repository.RunStore {
	return internalrepo.NewClickHouseRunStore(chClient.DB(),
		cfg.ClickHouse.Database+".lob_runs",
		cfg.ClickHouse.Database+".lob_epochs")
}

// ProvidePredictionStore creates the ClickHouse prediction repository.
func ProvidePredictionStore(chClient *pkgch.Client, cfg *config.Config) repository.PredictionStore {
	return internalrepo.NewClickHousePredictionStore(chClient.DB(), cfg.ClickHouse.Database+".lob_predictions")
}

// ProvidePredictionPublisher creates the Kafka prediction publisher.
func ProvidePredictionPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.PredictionPublisher {
	return internalrepo.NewKafkaPredictionPublisher(producer, cfg.Kafka.PredictionTopic)
}

// ProvideArchiver creates the Parquet cold archive, or nil when archiving
// is disabled.
func ProvideArchiver(cfg *config.Config) repository.Archiver {
	if !cfg.Archive.Enabled {
		return nil
	}
	return internalrepo.NewParquetArchive(cfg.Archive.Dir)
}

// ProvideMarketStream creates the exchange WebSocket depth stream.
func ProvideMarketStream(cfg *config.Config) repository.MarketStream {
	return lobfeed.New(
		cfg.Feed.WebSocketURL,
		cfg.Feed.Instruments,
		cfg.Feed.Depth,
		cfg.Feed.ReconnectDelay,
		cfg.Feed.PingInterval,
	)
}

// ProvideTracker creates the rolling window tracker sized to the configured
// model input.
func ProvideTracker(cfg *config.Config) (*window.Tracker, error) {
	return window.NewTracker(cfg.Dataset.WindowLength, cfg.Dataset.NumFeatures)
}

// ProvideRuntime creates the tensor runtime lifecycle client.
func ProvideRuntime(cfg *config.Config) domsvc.Runtime {
	return rtsvc.NewHTTPRuntime(cfg)
}

// ProvideModelCompiler creates the model compilation client.
func ProvideModelCompiler(cfg *config.Config) domsvc.ModelCompiler {
	return rtsvc.NewHTTPModelCompiler(cfg)
}

// ProvideDatasetUploader creates the chunked dataset upload client.
func ProvideDatasetUploader(cfg *config.Config) domsvc.DatasetUploader {
	return rtsvc.NewHTTPDatasetUploader(cfg)
}

// ProvideTrainer creates the training control client.
func ProvideTrainer(cfg *config.Config) domsvc.Trainer {
	return rtsvc.NewHTTPTrainer(cfg)
}

// ProvidePredictor creates the scoring client.
func ProvidePredictor(cfg *config.Config) domsvc.Predictor {
	return rtsvc.NewHTTPPredictor(cfg)
}

// ProvideSnapshotProcessor creates the snapshot fan-out use case.
func ProvideSnapshotProcessor(
	pub repository.Publisher,
	store repository.SnapshotStore,
	archiver repository.Archiver,
	metrics repository.Metrics,
	cfg *config.Config,
) *usecase.SnapshotProcessor {
	return usecase.NewSnapshotProcessor(pub, store, archiver, metrics, cfg.Feed.Backend)
}

// ProvideSnapshotCollector creates the feed collector use case.
func ProvideSnapshotCollector(
	stream repository.MarketStream,
	processor *usecase.SnapshotProcessor,
	metrics repository.Metrics,
	cfg *config.Config,
) *usecase.SnapshotCollector {
	// Throttle and truncate between the WebSocket and the backends.
	pipe := mid.NewSnapshotPipeline(processor, metrics,
		mid.WithMinInterval(cfg.Feed.ThrottleMin),
		mid.WithBufferSize(cfg.Feed.BufferSize),
		mid.WithTransform(mid.TruncateDepth(cfg.Feed.Depth)),
	)
	return usecase.NewSnapshotCollector(stream, processor, metrics, pipe)
}

// ProvideKafkaSnapshotsHandler registers the handler for the snapshots topic.
func ProvideKafkaSnapshotsHandler(
	store repository.SnapshotStore,
	tracker *window.Tracker,
	metrics repository.Metrics,
	cfg *config.Config,
) *usecase.KafkaSnapshotsHandler {
	return usecase.NewKafkaSnapshotsHandler(cfg.Kafka.SnapshotTopic, store, tracker, metrics)
}

// ProvideDatasetBuilder creates the fold loading and windowizing service.
func ProvideDatasetBuilder(cfg *config.Config, metrics repository.Metrics) *usecase.DatasetBuilder {
	return usecase.NewDatasetBuilder(cfg, metrics)
}

// ProvideTrainingUseCase creates the training orchestration use case.
func ProvideTrainingUseCase(
	cfg *config.Config,
	lgr *applogger.Logger,
	store repository.RunStore,
	builder *usecase.DatasetBuilder,
	runtime domsvc.Runtime,
	compiler domsvc.ModelCompiler,
	uploader domsvc.DatasetUploader,
	trainer domsvc.Trainer,
	q pkgqueue.QueueService,
	metrics repository.Metrics,
) *usecase.TrainingUseCase {
	return usecase.NewTrainingUseCase(cfg, lgr, store, builder, runtime, compiler, uploader, trainer, q, metrics)
}

// ProvideTrainingJob creates the queue job that drives a training run.
func ProvideTrainingJob(training *usecase.TrainingUseCase) *usecase.TrainingJob {
	return usecase.NewTrainingJob(training)
}

// ProvideBytesCache picks the prediction cache backend: Redis when an
// address is configured, otherwise in-process TTL.
func ProvideBytesCache(cfg *config.Config, client *redis.Client) cache.BytesCache {
	if cfg.Redis.Addr != "" {
		return cache.NewRedisCache(client)
	}
	return cache.NewTTLCache()
}

// ProvideRateLimiter creates the per-instrument prediction rate limiter.
func ProvideRateLimiter() *ratelimit.Limiter {
	return ratelimit.New()
}

// ProvideInferenceUseCase creates the prediction serving use case.
func ProvideInferenceUseCase(
	cfg *config.Config,
	lgr *applogger.Logger,
	tracker *window.Tracker,
	predictor domsvc.Predictor,
	store repository.PredictionStore,
	publisher repository.PredictionPublisher,
	bytesCache cache.BytesCache,
	limiter *ratelimit.Limiter,
	metrics repository.Metrics,
) *usecase.InferenceUseCase {
	return usecase.NewInferenceUseCase(cfg, lgr, tracker, predictor, store, publisher, bytesCache, limiter, metrics)
}

// ProvideRunsHandler creates the HTTP handler for runs and predictions.
func ProvideRunsHandler(
	lgr *applogger.Logger,
	training *usecase.TrainingUseCase,
	inference *usecase.InferenceUseCase,
) *api.RunsEchoHandler {
	return api.NewRunsEchoHandler(lgr, training, inference)
}

// ProvideHealthHandler assembles the dependency probes behind /health.
// Redis is probed only when an address is configured; the in-process cache
// path carries no Redis dependency.
func ProvideHealthHandler(
	cfg *config.Config,
	lgr *applogger.Logger,
	chClient *pkgch.Client,
	redisClient *redis.Client,
	rt domsvc.Runtime,
) *api.HealthEchoHandler {
	checks := []api.HealthCheck{
		{Name: "clickhouse", Probe: chClient.Health},
		{Name: "kafka", Probe: func(ctx context.Context) error {
			return pkgkafka.Ping(ctx, cfg.Kafka.Brokers)
		}},
		{Name: "runtime", Probe: rt.Ping},
	}
	if cfg.Redis.Addr != "" {
		checks = append(checks, api.HealthCheck{Name: "redis", Probe: func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}})
	}
	return api.NewHealthEchoHandler(lgr, checks...)
}

// ProvideHTTPHandler bundles the route registrars for the HTTP server.
func ProvideHTTPHandler(runs *api.RunsEchoHandler, health *api.HealthEchoHandler) xhttp.Handler {
	return xhttp.Handlers{runs, health}
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	lgr *applogger.Logger,
	handler xhttp.Handler,
	collector *usecase.SnapshotCollector,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaSnapshotsHandler,
	rq *pkgqueue.RedisQueue,
	job *usecase.TrainingJob,
	rt domsvc.Runtime,
	archiver repository.Archiver,
	metrics repository.Metrics,
	chClient *pkgch.Client,
) *server.App {
	if consumer != nil {
		// Count dispatch failures per topic; handler-level errors are
		// recorded by the handlers themselves.
		consumer.WithConsumerHook(pkgkafka.HookFuncs{
			Err: func(_ context.Context, topic string, _ kafka.Message, _ []byte, _ error) {
				metrics.RecordError("consume_" + topic)
			},
		})
	}
	if rq != nil {
		rq.RegisterJob(job)
	}
	app := server.New(cfg, lgr, handler, collector, consumer, kh, rq, rt, archiver, metrics, chClient)
	if collector != nil {
		app.SnapshotProc = collector.Processor()
	}
	return app
}
