//go:build wireinject
// +build wireinject

package di

import (
	"EnergyDash/pkg/config"
	"EnergyDash/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideCache,
		ProvideClickHouseClient,
		ProvideKafkaProducer,

		// Repositories
		ProvideSnapshotCache,
		ProvideSampleStore,
		ProvideSamplePublisher,
		ProvidePurchaseClient,
		ProvideFeedDialer,

		// Use cases
		ProvideSinks,
		ProvideFanout,
		ProvideSession,
		ProvideClock,
		ProvideLimiter,

		// HTTP
		ProvideDashboardHandler,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
