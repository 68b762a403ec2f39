package di

import (
	"context"
	"fmt"
	"time"

	"CandleCast/internal/domain/repository"
	"CandleCast/internal/handler/api"
	mid "CandleCast/internal/middleware"
	internalrepo "CandleCast/internal/repository"
	"CandleCast/internal/service/exchange"
	"CandleCast/internal/service/lunarcrush"
	svcmetrics "CandleCast/internal/service/metrics"
	"CandleCast/internal/service/ratelimit"
	"CandleCast/internal/services/drift"
	"CandleCast/internal/services/features"
	"CandleCast/internal/services/prediction"
	"CandleCast/internal/services/training"
	"CandleCast/internal/usecase"
	"CandleCast/pkg/cache"
	pkgch "CandleCast/pkg/clickhouse"
	"CandleCast/pkg/config"
	xhttp "CandleCast/pkg/http"
	pkgkafka "CandleCast/pkg/kafka"
	applogger "CandleCast/pkg/logger"
	"CandleCast/pkg/metrics"
	"CandleCast/pkg/queue"
	"CandleCast/pkg/scheduler"

	"github.com/segmentio/kafka-go"
)

// ProvideLogger builds the process logger. Error entries are shipped to the
// logs topic once the producer exists, see ProvideKafkaProducer.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: "stdout"})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("service", cfg.Service), applogger.String("env", cfg.Environment)), nil
}

// ProvideClickHouseClient creates a ClickHouse client and applies the schema.
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
	if !cfg.ClickHouse.InitSchema {
		return client, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, pkgch.Schema(cfg.ClickHouse.Database)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideRedis connects the shared Redis client.
func ProvideRedis(cfg *config.Config) (*cache.RedisCache, error) {
	rc, err := cache.NewRedisCache(
		cache.WithRedisHost(cfg.Redis.Host),
		cache.WithRedisPort(cfg.Redis.Port),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPool(cfg.Redis.PoolSize, 2, 5*time.Second),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	return rc, nil
}

// LatestCache is the in-process layer in front of Redis for latest-value reads.
type LatestCache struct{ *cache.LayeredCache }

func ProvideLatestCache(rc *cache.RedisCache) LatestCache {
	return LatestCache{cache.NewLayeredCache(rc,
		cache.WithLayeredMemorySize(1024),
		cache.WithLayeredMemoryTTL(5*time.Second),
	)}
}

// ProvideKafkaProducer creates the producer and attaches the error-log
// collector to it when enabled.
func ProvideKafkaProducer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Producer, error) {
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	if cfg.Log.Collect {
		l.AddCollector(&applogger.CollectionConfig{
			Service:        cfg.Service,
			TimeInterval:   cfg.Log.Interval,
			CountThreshold: cfg.Log.BatchLimit,
			Topic:          cfg.Log.Topic,
			Publisher:      producer,
		})
	}
	return producer, nil
}

// ProvideKafkaConsumer creates a Kafka consumer configured from YAML.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerStartOffset(cfg.Kafka.Consumer.StartOffset),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Topics.DLQ),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.HookFuncs{
		Err: func(_ context.Context, topic string, _ kafka.Message, _ []byte, err error) {
			l.Warn("kafka record failed", applogger.String("topic", topic), applogger.Error(err))
		},
	})
	return consumer, nil
}

// ProvideMetrics creates the stream recorder and registers the model and API
// collectors on the default registry.
func ProvideMetrics() repository.Metrics {
	svcmetrics.Register()
	return metrics.New()
}

func ProvidePublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.Publisher {
	return internalrepo.NewKafkaPublisher(producer, internalrepo.Topics{
		Trades:     cfg.Kafka.Topics.Trades,
		Candles:    cfg.Kafka.Topics.Candles,
		Indicators: cfg.Kafka.Topics.Indicators,
		Prediction: cfg.Kafka.Topics.Prediction,
		Sentiment:  cfg.Kafka.Topics.Sentiment,
		Drift:      cfg.Kafka.Topics.Drift,
	})
}

func ProvideMarketStore(ch *pkgch.Client) repository.MarketStore {
	return internalrepo.NewClickHouseMarketStore(ch)
}

func ProvideFeatureStore(ch *pkgch.Client, l *applogger.Logger) repository.FeatureStore {
	return internalrepo.NewCHFeatureStore(ch, l)
}

// ProvidePredictionStore caches the latest prediction for one horizon.
func ProvidePredictionStore(ch *pkgch.Client, lc LatestCache, cfg *config.Config) repository.PredictionStore {
	return internalrepo.NewPredictionStore(ch, lc, cfg.Model.Horizon+cfg.Model.Duration)
}

func ProvideSentimentStore(ch *pkgch.Client, lc LatestCache, cfg *config.Config) repository.SentimentStore {
	return internalrepo.NewSentimentRepository(ch, lc, cfg.Sentiment.CacheTTL)
}

func ProvideDriftAlertLog(ch *pkgch.Client) repository.DriftAlertLog {
	return internalrepo.NewClickHouseDriftLog(ch)
}

func ProvideModelRegistry(rc *cache.RedisCache, cfg *config.Config) repository.ModelRegistry {
	return internalrepo.NewRedisModelRegistry(rc.Client(), cfg.Redis.Prefix)
}

// ProvideFeatureNames is the model input: candle fields, every configured
// indicator, calendar and sentiment features.
func ProvideFeatureNames(cfg *config.Config) []string {
	return features.DefaultFeatureNames(cfg.Indicators.Names())
}

func ProvideAssembler(cfg *config.Config) *features.Assembler {
	return features.NewAssembler(cfg.Features.SentimentStaleness, ProvideFeatureNames(cfg))
}

func ProvidePredictionServer(cfg *config.Config, registry repository.ModelRegistry, l *applogger.Logger) *prediction.Server {
	return prediction.NewServer(cfg.Pairs, cfg.Model.ConfidenceZ, cfg.Model.Horizon, registry, l)
}

func ProvideTrainer(cfg *config.Config, registry repository.ModelRegistry, l *applogger.Logger) *training.Trainer {
	return training.NewTrainer(training.Config{
		Features:           ProvideFeatureNames(cfg),
		MinSamples:         cfg.Model.MinSamples,
		ValidationRatio:    cfg.Model.ValidationRatio,
		Trials:             cfg.Model.Trials,
		Folds:              cfg.Model.Folds,
		Seed:               cfg.Model.Seed,
		PromotionTolerance: cfg.Model.PromotionTolerance,
		BaselineTolerance:  cfg.Model.BaselineTolerance,
	}, registry, l)
}

func ProvideDriftMonitor(cfg *config.Config) *drift.Monitor {
	return drift.NewMonitor(drift.Config{
		Method:         cfg.Drift.Method,
		Threshold:      cfg.Drift.Threshold,
		Consecutive:    cfg.Drift.Consecutive,
		Bins:           cfg.Drift.Bins,
		MAEDegradation: cfg.Drift.MAEDegradation,
		DatasetShare:   cfg.Drift.DatasetShare,
	})
}

// ProvideJobQueue creates the training queue. Jobs are registered in ProvideScheduler.
func ProvideJobQueue(cfg *config.Config, rc *cache.RedisCache, l *applogger.Logger) *queue.RedisQueue {
	return queue.NewRedisQueue(l, queue.QueueConfig{
		Workers:    cfg.Queue.Workers,
		RetryLimit: cfg.Queue.RetryLimit,
		RetryDelay: cfg.Queue.RetryDelay,
	}, rc.Client(), queue.WithKeyPrefix(cfg.Redis.Prefix+":jobs"))
}

func ProvideInferenceUseCase(
	assembler *features.Assembler,
	server *prediction.Server,
	sentiment repository.SentimentStore,
	store repository.PredictionStore,
	pub repository.Publisher,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.InferenceUseCase {
	return usecase.NewInferenceUseCase(assembler, server, sentiment, store, pub, m, l)
}

func ProvideInferencePipeline(uc *usecase.InferenceUseCase, m repository.Metrics, l *applogger.Logger, cfg *config.Config) *mid.InferencePipeline {
	return mid.NewInferencePipeline(uc, m, l,
		mid.WithWorkers(cfg.Inference.Workers),
		mid.WithQueueSize(cfg.Inference.QueueSize),
	)
}

func ProvideCandleSink(pub repository.Publisher, store repository.MarketStore, pipe *mid.InferencePipeline, m repository.Metrics, cfg *config.Config) *usecase.CandleSinkUseCase {
	return usecase.NewCandleSinkUseCase(pub, store, pipe, m, cfg.Model.Duration)
}

func ProvideStreamRouter(cfg *config.Config, sink *usecase.CandleSinkUseCase, m repository.Metrics, l *applogger.Logger) *usecase.StreamRouter {
	return usecase.NewStreamRouter(usecase.RouterConfig{
		Pairs:         cfg.Pairs,
		Durations:     cfg.Stream.Durations,
		Lateness:      cfg.Stream.Lateness,
		FlushInterval: cfg.Stream.FlushInterval,
		Buffer:        cfg.Stream.LaneBuffer,
		Indicators:    cfg.Indicators,
	}, sink, m, l)
}

// ProvideKafkaHandlers returns the inbound topic handlers.
func ProvideKafkaHandlers(cfg *config.Config, router *usecase.StreamRouter, sentiment repository.SentimentStore, m repository.Metrics) []pkgkafka.MessageHandler {
	return []pkgkafka.MessageHandler{
		usecase.NewKafkaTradesHandler(cfg.Kafka.Topics.Trades, router, m),
		usecase.NewKafkaSentimentHandler(cfg.Kafka.Topics.Sentiment, sentiment, m),
	}
}

// ProvideTradeCollector returns nil when the exchange connector is disabled,
// e.g. when another process feeds the trades topic.
func ProvideTradeCollector(cfg *config.Config, pub repository.Publisher, m repository.Metrics, l *applogger.Logger) *usecase.TradeCollector {
	if !cfg.Exchange.Enabled {
		return nil
	}
	stream := exchange.NewBinanceClient(exchange.Config{
		URL:            cfg.Exchange.URL,
		Pairs:          cfg.Pairs,
		ReconnectDelay: cfg.Exchange.ReconnectDelay,
		PingInterval:   cfg.Exchange.PingInterval,
	}, l)
	return usecase.NewTradeCollector(usecase.CollectorConfig{
		BatchSize:    cfg.Exchange.BatchSize,
		BatchTimeout: cfg.Exchange.BatchTimeout,
		MaxBackoff:   cfg.Exchange.MaxReconnect,
	}, stream, pub, m, l)
}

func ProvideTrainingUseCase(
	cfg *config.Config,
	store repository.FeatureStore,
	sentiment repository.SentimentStore,
	assembler *features.Assembler,
	trainer *training.Trainer,
	server *prediction.Server,
	rc *cache.RedisCache,
	l *applogger.Logger,
) *usecase.TrainingUseCase {
	return usecase.NewTrainingUseCase(usecase.TrainingConfig{
		Duration: cfg.Model.Duration,
		Horizon:  cfg.Model.Horizon,
		Window:   cfg.Model.TrainingWindow,
		LockTTL:  cfg.Model.LockTTL,
	}, store, sentiment, assembler, trainer, server, rc, l)
}

func ProvideDriftUseCase(
	cfg *config.Config,
	store repository.FeatureStore,
	assembler *features.Assembler,
	monitor *drift.Monitor,
	server *prediction.Server,
	alerts repository.DriftAlertLog,
	pub repository.Publisher,
	jobs *queue.RedisQueue,
	l *applogger.Logger,
) *usecase.DriftUseCase {
	return usecase.NewDriftUseCase(usecase.DriftConfig{
		Duration:       cfg.Model.Duration,
		Window:         cfg.Drift.Window,
		RetrainOnAlert: cfg.Drift.RetrainOnAlert,
	}, store, assembler, monitor, server, alerts, pub, jobs, l)
}

func ProvidePredictionsUseCase(
	cfg *config.Config,
	store repository.PredictionStore,
	registry repository.ModelRegistry,
	server *prediction.Server,
	monitor *drift.Monitor,
	jobs *queue.RedisQueue,
) *usecase.PredictionsUseCase {
	return usecase.NewPredictionsUseCase(cfg.Pairs, store, registry, server, monitor, jobs)
}

// ProvideScheduler registers the training job with the queue and the
// periodic jobs with cron.
func ProvideScheduler(
	cfg *config.Config,
	l *applogger.Logger,
	jobs *queue.RedisQueue,
	train *usecase.TrainingUseCase,
	driftUC *usecase.DriftUseCase,
	server *prediction.Server,
	pub repository.Publisher,
	m repository.Metrics,
) (*scheduler.Scheduler, error) {
	jobs.RegisterJob(usecase.NewTrainJob(train, l))

	s := scheduler.New(l)
	pairs := cfg.Pairs
	if err := s.Add("training", cfg.Model.Schedule, func(ctx context.Context) error {
		return usecase.EnqueueTraining(ctx, jobs, pairs, "schedule")
	}); err != nil {
		return nil, err
	}
	if err := s.Add("model_reload", cfg.Model.ReloadSchedule, func(ctx context.Context) error {
		return server.Refresh(ctx, pairs)
	}); err != nil {
		return nil, err
	}
	if err := s.Add("drift", cfg.Drift.Schedule, func(ctx context.Context) error {
		return driftUC.CheckAll(ctx, pairs)
	}); err != nil {
		return nil, err
	}
	if cfg.Sentiment.Enabled {
		client := lunarcrush.NewClient(cfg.Sentiment.BaseURL, cfg.Sentiment.APIKey, cfg.Sentiment.Timeout)
		poller := usecase.NewSentimentPoller(pairs, client, pub, m, l)
		if err := s.Add("sentiment", cfg.Sentiment.Schedule, poller.Poll); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func ProvidePredictionsHandler(l *applogger.Logger, uc *usecase.PredictionsUseCase, ch *pkgch.Client, rc *cache.RedisCache) *api.PredictionsEchoHandler {
	return api.NewPredictionsEchoHandler(l, uc, map[string]api.HealthCheck{
		"clickhouse": ch.Health,
		"redis":      rc.Ping,
	})
}

func ProvideHTTPServer(cfg *config.Config, l *applogger.Logger, h *api.PredictionsEchoHandler) *xhttp.Server {
	return xhttp.NewServer(l, []xhttp.Handler{h},
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithRateLimit(ratelimit.New(cfg.Server.RateLimit, cfg.Server.RateBurst)),
	)
}

func ProvideLocalCaches(lc LatestCache) []*cache.LayeredCache {
	return []*cache.LayeredCache{lc.LayeredCache}
}
