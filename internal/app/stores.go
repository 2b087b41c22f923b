package app

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	adapterrepo "github.com/eslsoft/spacedrep/internal/adapter/repository"
	"github.com/eslsoft/spacedrep/internal/infrastructure/config"
	"github.com/eslsoft/spacedrep/internal/infrastructure/database"
	"github.com/eslsoft/spacedrep/internal/repository"
	"github.com/eslsoft/spacedrep/internal/usecase/backup"
)

// Stores holds the repositories selected for the configured driver.
type Stores struct {
	States   repository.LearnerStateRepository
	Contents repository.ContentRepository
}

// NewStores opens the configured database, applies the schema and builds the
// repositories. PostgreSQL states go through a pgx pool; everything else uses
// database/sql.
func NewStores(cfg *config.Config, logger logrus.FieldLogger) (*Stores, func(), error) {
	driver, err := cfg.DatabaseDriver()
	if err != nil {
		return nil, nil, err
	}
	db, closeDB, err := database.OpenSQL(cfg)
	if err != nil {
		return nil, nil, err
	}
	cleanups := []func(){closeDB}
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.StorageTimeout())
	defer cancel()
	if err := database.Migrate(ctx, db, driver); err != nil {
		cleanup()
		return nil, nil, err
	}

	stores := &Stores{Contents: adapterrepo.NewSQLContentRepository(db, driver)}
	switch driver {
	case config.DriverPostgres:
		pool, closePool, err := database.NewConnection(cfg, logger)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("db connect: %w", err)
		}
		cleanups = append(cleanups, closePool)
		stores.States = adapterrepo.NewPostgresStateRepository(pool)
	default:
		stores.States = adapterrepo.NewSQLiteStateRepository(db, cfg.Database.Retries)
	}

	if cfg.Breaker.Enabled {
		stores.States = adapterrepo.NewBreakerStateRepository(stores.States, adapterrepo.BreakerSettings{
			MaxFailures: cfg.Breaker.MaxFailures,
			OpenTimeout: cfg.Breaker.OpenTimeout,
		}, logger)
	}

	logger.WithField("driver", driver).Info("storage ready")
	return stores, cleanup, nil
}

func provideStateRepository(s *Stores) repository.LearnerStateRepository { return s.States }

func provideContentRepository(s *Stores) repository.ContentRepository { return s.Contents }

func provideBackupService(states repository.LearnerStateRepository, contents repository.ContentRepository) (*backup.Service, error) {
	return backup.NewService(states, contents)
}
