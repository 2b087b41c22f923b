package app

import (
	"github.com/sirupsen/logrus"

	"github.com/eslsoft/spacedrep/internal/infrastructure/config"
	"github.com/eslsoft/spacedrep/internal/infrastructure/server"
	"github.com/eslsoft/spacedrep/internal/usecase"
	"github.com/eslsoft/spacedrep/internal/usecase/backup"
)

// Container aggregates the application dependencies produced by Wire.
type Container struct {
	Config *config.Config
	Logger *logrus.Logger
	Server *server.Server
	Stores *Stores
	Review usecase.ReviewUsecase
	Queue  usecase.QueueUsecase
	Stats  usecase.StatsUsecase
	Backup *backup.Service
}
