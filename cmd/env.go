package main

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/ramanngartan/arealens-geocode/internal/db"
	"github.com/ramanngartan/arealens-geocode/internal/insights"
	"github.com/ramanngartan/arealens-geocode/internal/pipeline"
	"github.com/ramanngartan/arealens-geocode/internal/store"
	"github.com/ramanngartan/arealens-geocode/pkg/geocode"
)

// env bundles the shared runtime dependencies the commands compose.
type env struct {
	pool     *pgxpool.Pool
	store    *store.Postgres
	geocoder geocode.Client
	pipeline *pipeline.Pipeline
	insights *insights.Engine
}

func (e *env) Close() {
	e.pool.Close()
}

// initStore connects the database and builds the store. Used by commands
// that do not need a geocoding provider.
func initStore(ctx context.Context) (*env, error) {
	if cfg.Store.DatabaseURL == "" {
		return nil, eris.New("database URL is required (AREALENS_STORE_DATABASE_URL)")
	}

	pool, err := db.Connect(ctx, cfg.Store.DatabaseURL, &cfg.Store.Pool)
	if err != nil {
		return nil, err
	}

	return &env{
		pool:  pool,
		store: store.New(pool),
	}, nil
}

// initEnv builds the full runtime: store, geocoder, pipeline, and insight
// engine wired from config.
func initEnv(ctx context.Context) (*env, error) {
	e, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if cfg.Geocoder.Token == "" {
		e.Close()
		return nil, eris.New("geocoder token is required (AREALENS_GEOCODER_TOKEN)")
	}

	e.geocoder = geocode.NewClient(cfg.Geocoder.Token,
		geocode.WithBaseURL(cfg.Geocoder.BaseURL),
		geocode.WithRateLimit(cfg.Geocoder.RPS),
	)

	e.pipeline = pipeline.New(e.store, e.geocoder,
		pipeline.WithBatchSize(cfg.Pipeline.BatchSize),
		pipeline.WithBatchRate(cfg.Pipeline.BatchesPerSecond),
	)

	e.insights = insights.NewEngine(e.store, e.geocoder, insights.Options{
		DenseAreaCount:   cfg.Insights.DenseAreaCount,
		WhitespaceCount:  cfg.Insights.WhitespaceCount,
		WhitespaceMaxKm:  cfg.Insights.WhitespaceMaxKm,
		RadiusClampMinKm: cfg.Insights.RadiusClampMinKm,
		RadiusClampMaxKm: cfg.Insights.RadiusClampMaxKm,
	})

	return e, nil
}
