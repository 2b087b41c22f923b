package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/eslsoft/spacedrep/internal/infrastructure/config"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS content_items (
		id TEXT PRIMARY KEY,
		difficulty REAL NOT NULL DEFAULT 5 CHECK (difficulty >= 1 AND difficulty <= 10)
	)`,
	`CREATE TABLE IF NOT EXISTS learner_content_states (
		id TEXT PRIMARY KEY,
		learner_id TEXT NOT NULL,
		content_id TEXT NOT NULL,
		ease_factor REAL NOT NULL,
		current_interval REAL NOT NULL,
		repetitions INTEGER NOT NULL DEFAULT 0,
		total_reviews INTEGER NOT NULL DEFAULT 0,
		success_count INTEGER NOT NULL DEFAULT 0,
		last_reviewed TIMESTAMP NULL,
		next_review TIMESTAMP NOT NULL,
		last_response_quality INTEGER NULL,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		UNIQUE (learner_id, content_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_lcs_learner_next_review ON learner_content_states (learner_id, next_review)`,
	`CREATE INDEX IF NOT EXISTS idx_lcs_content ON learner_content_states (content_id)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS content_items (
		id VARCHAR(128) PRIMARY KEY,
		difficulty DOUBLE PRECISION NOT NULL DEFAULT 5 CHECK (difficulty >= 1 AND difficulty <= 10)
	)`,
	`CREATE TABLE IF NOT EXISTS learner_content_states (
		id UUID PRIMARY KEY,
		learner_id VARCHAR(128) NOT NULL,
		content_id VARCHAR(128) NOT NULL,
		ease_factor DOUBLE PRECISION NOT NULL,
		current_interval DOUBLE PRECISION NOT NULL,
		repetitions INTEGER NOT NULL DEFAULT 0,
		total_reviews INTEGER NOT NULL DEFAULT 0,
		success_count INTEGER NOT NULL DEFAULT 0,
		last_reviewed TIMESTAMPTZ NULL,
		next_review TIMESTAMPTZ NOT NULL,
		last_response_quality SMALLINT NULL,
		version BIGINT NOT NULL DEFAULT 1,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		CONSTRAINT uq_lcs_learner_content UNIQUE (learner_id, content_id),
		CONSTRAINT ck_lcs_success CHECK (success_count <= total_reviews)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_lcs_learner_next_review ON learner_content_states (learner_id, next_review)`,
	`CREATE INDEX IF NOT EXISTS idx_lcs_content ON learner_content_states (content_id)`,
}

// Migrate creates the tables and indexes used by the scheduler. It is idempotent.
func Migrate(ctx context.Context, db *sql.DB, driver string) error {
	var stmts []string
	switch driver {
	case config.DriverSQLite:
		stmts = sqliteSchema
	case config.DriverPostgres:
		stmts = postgresSchema
	default:
		return fmt.Errorf("unsupported database driver %q", driver)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}
	return nil
}
