package db

import (
	"context"
	"fmt"
)

// schemaStatements bootstrap the relational layout. The partial unique
// indexes on trips back the at-most-one-active-trip rule per driver and per
// bus, so a concurrent start-trip race cannot commit a duplicate.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS routes (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS drivers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		password_hash TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT 'driver',
		status TEXT NOT NULL DEFAULT 'inactive',
		current_bus TEXT,
		route_id TEXT REFERENCES routes(id)
	)`,
	`CREATE TABLE IF NOT EXISTS buses (
		number TEXT PRIMARY KEY,
		status TEXT NOT NULL DEFAULT 'halt',
		current_driver TEXT REFERENCES drivers(id),
		route_id TEXT REFERENCES routes(id)
	)`,
	`CREATE TABLE IF NOT EXISTS trips (
		id TEXT PRIMARY KEY,
		driver_id TEXT NOT NULL REFERENCES drivers(id),
		bus_number TEXT NOT NULL REFERENCES buses(number),
		status TEXT NOT NULL DEFAULT 'active',
		start_time TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		end_time TIMESTAMPTZ
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS trips_one_active_per_driver
		ON trips (driver_id) WHERE status = 'active'`,
	`CREATE UNIQUE INDEX IF NOT EXISTS trips_one_active_per_bus
		ON trips (bus_number) WHERE status = 'active'`,
	`CREATE TABLE IF NOT EXISTS trip_locations (
		id BIGSERIAL PRIMARY KEY,
		trip_id TEXT NOT NULL REFERENCES trips(id) ON DELETE CASCADE,
		latitude DOUBLE PRECISION NOT NULL,
		longitude DOUBLE PRECISION NOT NULL,
		recorded_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS trip_locations_trip_recorded
		ON trip_locations (trip_id, recorded_at DESC)`,
}

// Migrate applies the schema statements in order. Statements are idempotent
// so running at every startup is safe.
func Migrate(ctx context.Context, q Querier) error {
	for _, stmt := range schemaStatements {
		if _, err := q.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("db: migrate: %w", err)
		}
	}
	return nil
}
