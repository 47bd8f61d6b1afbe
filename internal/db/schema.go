package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema contains all statements for creating tables and indexes.
// Every statement is idempotent, so both the service and the worker
// can run Setup on start without coordination.
const Schema = `
-- Activities synced from the source feed, keyed by the source-assigned id.
-- Rows are append-only; only the lazily enriched polyline is ever updated.
CREATE TABLE IF NOT EXISTS activity (
    id BIGINT PRIMARY KEY,
    name TEXT NOT NULL,
    start_date TIMESTAMP NOT NULL,
    distance_km DOUBLE PRECISION NOT NULL DEFAULT 0,
    moving_time_seconds INTEGER NOT NULL DEFAULT 0,
    elevation_gain_m DOUBLE PRECISION NOT NULL DEFAULT 0,
    polyline TEXT
);

CREATE INDEX IF NOT EXISTS activity_start_date_idx ON activity (start_date);

-- Derived cache, fully recomputed for the current year on each sync cycle.
CREATE TABLE IF NOT EXISTS monthly_stats (
    year INTEGER NOT NULL,
    month INTEGER NOT NULL,
    distance_km DOUBLE PRECISION NOT NULL DEFAULT 0,
    PRIMARY KEY (year, month)
);

-- Body weight history, one sample per calendar day, upserted on ingestion.
CREATE TABLE IF NOT EXISTS weight_sample (
    day DATE PRIMARY KEY,
    kilograms DOUBLE PRECISION NOT NULL
);
`

func Setup(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
