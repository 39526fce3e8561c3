//go:build wireinject
// +build wireinject

package di

import (
	"Overlord/internal/domain/repository"
	"Overlord/internal/service/feedstore"
	"Overlord/pkg/config"
	applogger "Overlord/pkg/logger"
	"Overlord/pkg/metrics"
	"Overlord/pkg/server"

	"github.com/google/wire"
)

var metricsSet = wire.NewSet(
	ProvideRegistry,
	ProvideMetrics,
	wire.Bind(new(repository.Metrics), new(*metrics.Recorder)),
)

// InitializeDashboardApp wires the dashboards selected by cfg.Dashboard.Mode.
func InitializeDashboardApp(cfg *config.Config, l *applogger.Logger) (*server.App, error) {
	wire.Build(
		metricsSet,
		ProvideScheduler,

		// Upstream clients
		ProvideBackendClient,
		ProvidePushDialer,
		ProvideBackoff,

		// Controllers
		ProvidePollingController,
		ProvideStreamingController,

		// HTTP
		ProvideDashboardHandlers,
		ProvideHTTPServer,

		ProvideDashboardApp,
	)
	return &server.App{}, nil
}

// InitializeFeedApp wires the webhook feed API and its ingestion backend.
func InitializeFeedApp(cfg *config.Config, l *applogger.Logger) (*server.App, func(), error) {
	wire.Build(
		metricsSet,

		// Storage
		ProvideCache,
		ProvideFeedStore,
		wire.Bind(new(repository.FeedStore), new(*feedstore.Store)),

		// Ingestion
		ProvideKafkaProducer,
		ProvideRedisQueue,
		ProvideUpdatePublisher,
		ProvideUpdateProcessor,
		ProvideKafkaConsumer,
		ProvideKafkaUpdatesHandler,
		ProvideQueueUpdatesJob,

		// HTTP
		ProvideScheduler,
		ProvideWebhookLimiter,
		ProvideFeedHandlers,
		ProvideHTTPServer,

		ProvideFeedApp,
	)
	return &server.App{}, nil, nil
}

// InitializeSimulatorApp wires the simulator that posts to a running feed API.
func InitializeSimulatorApp(cfg *config.Config, l *applogger.Logger) (*server.App, error) {
	wire.Build(
		ProvideScheduler,
		ProvideFeedClient,
		ProvideSimulator,
		ProvideSimulatorApp,
	)
	return &server.App{}, nil
}
