package database

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"           // postgres driver for database/sql
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver

	"github.com/eslsoft/spacedrep/internal/infrastructure/config"
)

// OpenSQL opens a database/sql handle for the configured driver.
func OpenSQL(cfg *config.Config) (*sql.DB, func(), error) {
	driver, err := cfg.DatabaseDriver()
	if err != nil {
		return nil, nil, err
	}
	dsn, err := cfg.DatabaseURL()
	if err != nil {
		return nil, nil, err
	}
	return Open(driver, dsn)
}

// Open opens and pings a database/sql handle. SQLite handles are limited to a
// single connection so writers serialize instead of failing with SQLITE_BUSY.
func Open(driver, dsn string) (*sql.DB, func(), error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s db: %w", driver, err)
	}
	if driver == config.DriverSQLite {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("ping %s db: %w", driver, err)
	}
	if driver == config.DriverSQLite {
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON;"); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("enable sqlite foreign keys: %w", err)
		}
	}

	return db, func() { _ = db.Close() }, nil
}
