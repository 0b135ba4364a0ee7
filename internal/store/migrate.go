package store

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ramanngartan/arealens-geocode/internal/db"
)

// schema is the full DDL for the upload store. Statements are idempotent so
// migrate can run on every deploy.
var schema = []string{
	`CREATE EXTENSION IF NOT EXISTS postgis`,
	`CREATE TABLE IF NOT EXISTS uploads (
		id         uuid PRIMARY KEY,
		filename   text NOT NULL,
		row_count  integer NOT NULL DEFAULT 0,
		status     text NOT NULL DEFAULT 'uploaded',
		error      text,
		created_at timestamptz NOT NULL DEFAULT now(),
		updated_at timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS upload_rows (
		upload_id      uuid NOT NULL REFERENCES uploads(id) ON DELETE CASCADE,
		row_index      integer NOT NULL,
		raw_address    text NOT NULL,
		service_type   text,
		customer_count integer,
		revenue_bucket text,
		geocode_status text NOT NULL DEFAULT 'pending',
		lat            double precision,
		lng            double precision,
		geom           geometry(Point, 4326),
		error          text,
		created_at     timestamptz NOT NULL DEFAULT now(),
		updated_at     timestamptz NOT NULL DEFAULT now(),
		PRIMARY KEY (upload_id, row_index)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_upload_rows_status ON upload_rows (upload_id, geocode_status)`,
	`CREATE INDEX IF NOT EXISTS idx_upload_rows_geom ON upload_rows USING GIST (geom)`,
}

// Migrate applies the store schema. An advisory lock prevents concurrent
// migration runs from overlapping deploys.
func Migrate(ctx context.Context, pool db.Pool) error {
	log := zap.L().With(zap.String("component", "store.migrate"))

	if _, err := pool.Exec(ctx, "SELECT pg_advisory_lock(7143021)"); err != nil {
		return eris.Wrap(err, "store: acquire migration advisory lock")
	}
	defer func() {
		if _, err := pool.Exec(ctx, "SELECT pg_advisory_unlock(7143021)"); err != nil {
			log.Warn("failed to release migration advisory lock", zap.Error(err))
		}
	}()

	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return eris.Wrap(err, "store: apply schema")
		}
	}

	log.Info("schema up to date")
	return nil
}
