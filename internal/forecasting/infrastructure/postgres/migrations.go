package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Migration is one versioned schema change.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

const schemaMigrationsTable = `
CREATE TABLE IF NOT EXISTS forecast_schema_migrations (
	version INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Migrations returns the schema history in order. Append only.
func Migrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_forecast_series", SQL: `
CREATE TABLE IF NOT EXISTS forecast_series (
	id BIGSERIAL PRIMARY KEY,
	name VARCHAR(100) NOT NULL UNIQUE,
	description TEXT NOT NULL DEFAULT '',
	external_id TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`},
		{Version: 2, Name: "create_forecast_bindings", SQL: `
CREATE TABLE IF NOT EXISTS forecast_bindings (
	id BIGSERIAL PRIMARY KEY,
	series_id BIGINT NOT NULL REFERENCES forecast_series(id) ON DELETE CASCADE,
	name VARCHAR(100) NOT NULL,
	path VARCHAR(255) NOT NULL,
	model_type VARCHAR(20) NOT NULL,
	granularity VARCHAR(10) NOT NULL DEFAULT 'D',
	exog_columns JSONB,
	exog_rules JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (series_id, name)
)`},
		{Version: 3, Name: "create_forecast_points", SQL: `
CREATE TABLE IF NOT EXISTS forecast_points (
	id BIGSERIAL PRIMARY KEY,
	binding_id BIGINT NOT NULL REFERENCES forecast_bindings(id) ON DELETE CASCADE,
	prediction_datetime TIMESTAMPTZ NOT NULL,
	value DOUBLE PRECISION NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (binding_id, prediction_datetime)
)`},
		{Version: 4, Name: "index_bindings_series_granularity", SQL: `
CREATE INDEX IF NOT EXISTS forecast_bindings_series_granularity_idx
	ON forecast_bindings (series_id, granularity, id)`},
	}
}

// Migrate applies every migration not yet recorded, each in its own transaction.
// It returns the number of migrations applied.
func Migrate(ctx context.Context, db *sql.DB) (int, error) {
	if db == nil {
		return 0, errors.New("migrate: nil db")
	}
	if _, err := db.ExecContext(ctx, schemaMigrationsTable); err != nil {
		return 0, fmt.Errorf("migrate: create tracking table: %w", err)
	}
	applied := 0
	for _, m := range Migrations() {
		var exists bool
		if err := db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM forecast_schema_migrations WHERE version = $1)`, m.Version).Scan(&exists); err != nil {
			return applied, err
		}
		if exists {
			continue
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return applied, err
		}
		if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
			_ = tx.Rollback()
			return applied, fmt.Errorf("migrate: %d %s: %w", m.Version, m.Name, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO forecast_schema_migrations (version, name) VALUES ($1, $2)`, m.Version, m.Name); err != nil {
			_ = tx.Rollback()
			return applied, err
		}
		if err := tx.Commit(); err != nil {
			return applied, err
		}
		applied++
	}
	return applied, nil
}
