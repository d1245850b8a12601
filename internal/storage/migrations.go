package storage

import (
	"context"
	"fmt"
)

// migrate creates the schema if it doesn't exist. Every statement is valid
// for both SQLite and PostgreSQL.
func (db *DB) migrate(ctx context.Context) error {
	for i, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	if db.dialect == dialectPostgres {
		for i, stmt := range postgresMigrations {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("postgres migration %d: %w", i, err)
			}
		}
	}
	db.logger.Info("database migrations applied", "count", len(migrations))
	return nil
}

var migrations = []string{
	// Trips
	`CREATE TABLE IF NOT EXISTS trips (
		id                TEXT PRIMARY KEY,
		username          TEXT NOT NULL,
		start_location    TEXT NOT NULL DEFAULT '',
		end_location      TEXT NOT NULL DEFAULT '',
		legs              TEXT NOT NULL,
		status            TEXT NOT NULL,
		current_leg_index INTEGER NOT NULL DEFAULT 0,
		start_time        TEXT NOT NULL,
		end_time          TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_trips_user_start ON trips(username, start_time)`,
	// At most one active trip per user
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_trips_one_active ON trips(username) WHERE status = 'ON_TRIP'`,

	// Named places referenced by commute plans
	`CREATE TABLE IF NOT EXISTS locations (
		id   TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		lat  DOUBLE PRECISION NOT NULL DEFAULT 0,
		lon  DOUBLE PRECISION NOT NULL DEFAULT 0
	)`,

	// Commute plans
	`CREATE TABLE IF NOT EXISTS commute_plans (
		id                TEXT PRIMARY KEY,
		username          TEXT NOT NULL,
		notify_time       TEXT NOT NULL,
		recurrence_days   TEXT NOT NULL,
		start_location_id TEXT NOT NULL REFERENCES locations(id),
		end_location_id   TEXT NOT NULL REFERENCES locations(id),
		legs              TEXT NOT NULL
	)`,

	// Notification jobs; selected_days is a Monday-first "1000000" bitmap
	`CREATE TABLE IF NOT EXISTS notification_jobs (
		id              TEXT PRIMARY KEY,
		notification_id TEXT NOT NULL DEFAULT '',
		route_id        TEXT NOT NULL DEFAULT '',
		device_id       TEXT NOT NULL,
		scheduled_time  TEXT NOT NULL,
		timezone        TEXT NOT NULL,
		selected_days   TEXT NOT NULL,
		message_title   TEXT NOT NULL,
		message_body    TEXT NOT NULL DEFAULT '',
		status          TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_notification_jobs_status ON notification_jobs(status)`,

	// Push tokens per device
	`CREATE TABLE IF NOT EXISTS device_tokens (
		device_id  TEXT PRIMARY KEY,
		username   TEXT NOT NULL,
		token      TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_device_tokens_user ON device_tokens(username)`,
}

// postgresMigrations upgrade schemas created by earlier releases. Each one
// is a no-op on a current schema.
var postgresMigrations = []string{
	// REAL is single precision on PostgreSQL
	`ALTER TABLE locations
		ALTER COLUMN lat TYPE DOUBLE PRECISION,
		ALTER COLUMN lon TYPE DOUBLE PRECISION`,
}
