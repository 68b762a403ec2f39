//go:build wireinject
// +build wireinject

package di

import (
	"CandleCast/pkg/config"
	"CandleCast/pkg/server"

	"github.com/google/wire"
)

var infraSet = wire.NewSet(
	ProvideLogger,
	ProvideMetrics,
	ProvideClickHouseClient,
	ProvideRedis,
	ProvideLatestCache,
	ProvideLocalCaches,
	ProvideKafkaProducer,
	ProvideKafkaConsumer,
	ProvideJobQueue,
)

var repositorySet = wire.NewSet(
	ProvidePublisher,
	ProvideMarketStore,
	ProvideFeatureStore,
	ProvidePredictionStore,
	ProvideSentimentStore,
	ProvideDriftAlertLog,
	ProvideModelRegistry,
)

var serviceSet = wire.NewSet(
	ProvideAssembler,
	ProvidePredictionServer,
	ProvideTrainer,
	ProvideDriftMonitor,
)

var usecaseSet = wire.NewSet(
	ProvideInferenceUseCase,
	ProvideInferencePipeline,
	ProvideCandleSink,
	ProvideStreamRouter,
	ProvideKafkaHandlers,
	ProvideTradeCollector,
	ProvideTrainingUseCase,
	ProvideDriftUseCase,
	ProvidePredictionsUseCase,
	ProvideScheduler,
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		infraSet,
		repositorySet,
		serviceSet,
		usecaseSet,
		ProvidePredictionsHandler,
		ProvideHTTPServer,
		wire.Struct(new(server.Components), "*"),
		server.New,
	)
	return &server.App{}, nil
}
