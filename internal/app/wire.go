//go:build wireinject
// +build wireinject

package app

import (
	"github.com/google/wire"
	"github.com/sirupsen/logrus"

	"github.com/eslsoft/spacedrep/internal/adapter/httpapi"
	"github.com/eslsoft/spacedrep/internal/infrastructure/config"
	"github.com/eslsoft/spacedrep/internal/infrastructure/metrics"
	"github.com/eslsoft/spacedrep/internal/infrastructure/server"
	"github.com/eslsoft/spacedrep/internal/usecase"
)

var configSet = wire.NewSet(
	config.Load,
	usecase.NewOptions,
)

var repositorySet = wire.NewSet(
	NewStores,
	provideStateRepository,
	provideContentRepository,
)

var usecaseSet = wire.NewSet(
	usecase.NewReviewUsecase,
	usecase.NewQueueUsecase,
	usecase.NewStatsUsecase,
	provideBackupService,
)

var serverSet = wire.NewSet(
	server.NewLogger,
	wire.Bind(new(logrus.FieldLogger), new(*logrus.Logger)),
	metrics.NewCollector,
	httpapi.NewHandler,
	server.NewServer,
)

// Initialize builds the application container using Wire.
func Initialize() (*Container, func(), error) {
	wire.Build(
		configSet,
		repositorySet,
		usecaseSet,
		serverSet,
		wire.Struct(new(Container), "*"),
	)
	return nil, nil, nil
}
