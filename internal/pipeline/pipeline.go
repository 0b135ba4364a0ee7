// Package pipeline drives batched, rate-limited geocoding of upload rows.
package pipeline

import (
	"context"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/ramanngartan/arealens-geocode/internal/store"
	"github.com/ramanngartan/arealens-geocode/pkg/geocode"
)

// RowStore is the persistence surface the pipeline needs.
type RowStore interface {
	UpdateUploadStatus(ctx context.Context, id, status, errMsg string) error
	ListPendingRows(ctx context.Context, uploadID string) ([]store.Row, error)
	MarkRowSuccess(ctx context.Context, uploadID string, rowIndex int, lat, lng float64) error
	MarkRowFailed(ctx context.Context, uploadID string, rowIndex int, reason string) error
}

// Pipeline geocodes pending rows in fixed-size batches. Rows inside a batch
// resolve concurrently; batch starts are paced by a token-bucket limiter so
// the external provider is never hammered.
type Pipeline struct {
	store     RowStore
	resolver  geocode.Client
	batchSize int
	limiter   *rate.Limiter
}

// Option configures the Pipeline.
type Option func(*Pipeline)

// WithBatchSize sets how many rows resolve concurrently per batch.
func WithBatchSize(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithBatchRate sets the batch-starts-per-second pacing.
func WithBatchRate(perSecond float64) Option {
	return func(p *Pipeline) {
		if perSecond > 0 {
			p.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// New creates a Pipeline over the given store and resolver.
func New(st RowStore, resolver geocode.Client, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:     st,
		resolver:  resolver,
		batchSize: 10,
		limiter:   rate.NewLimiter(5, 1), // one batch per 200ms
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run geocodes every pending row of an upload and settles the upload status:
// done when at least one row succeeded (or none were pending), failed when
// every attempted row failed or the run itself faulted. Each row is attempted
// exactly once; there is no automatic retry.
func (p *Pipeline) Run(ctx context.Context, uploadID string) error {
	log := zap.L().With(zap.String("upload_id", uploadID))

	if err := p.store.UpdateUploadStatus(ctx, uploadID, store.UploadStatusProcessing, ""); err != nil {
		return err
	}

	if err := p.process(ctx, uploadID, log); err != nil {
		log.Error("geocode run failed", zap.Error(err))
		if statusErr := p.store.UpdateUploadStatus(ctx, uploadID, store.UploadStatusFailed, err.Error()); statusErr != nil {
			log.Error("failed to record run failure", zap.Error(statusErr))
		}
		return err
	}
	return nil
}

func (p *Pipeline) process(ctx context.Context, uploadID string, log *zap.Logger) error {
	rows, err := p.store.ListPendingRows(ctx, uploadID)
	if err != nil {
		return eris.Wrap(err, "pipeline: list pending rows")
	}

	if len(rows) == 0 {
		log.Info("no pending rows, nothing to geocode")
		return p.store.UpdateUploadStatus(ctx, uploadID, store.UploadStatusDone, "")
	}

	var succeeded, failed atomic.Int64

	for start := 0; start < len(rows); start += p.batchSize {
		// The limiter is the inter-batch throttle: the first wait spends
		// the initial token, every later one paces the next batch start.
		if err := p.limiter.Wait(ctx); err != nil {
			return eris.Wrap(err, "pipeline: batch pacing")
		}

		end := start + p.batchSize
		if end > len(rows) {
			end = len(rows)
		}

		eg, gCtx := errgroup.WithContext(ctx)
		for _, row := range rows[start:end] {
			eg.Go(func() error {
				return p.resolveRow(gCtx, uploadID, row, &succeeded, &failed, log)
			})
		}
		if err := eg.Wait(); err != nil {
			return err
		}
	}

	status := store.UploadStatusDone
	if succeeded.Load() == 0 {
		status = store.UploadStatusFailed
	}

	log.Info("geocode run complete",
		zap.Int64("succeeded", succeeded.Load()),
		zap.Int64("failed", failed.Load()),
		zap.String("status", status),
	)

	return p.store.UpdateUploadStatus(ctx, uploadID, status, "")
}

// resolveRow attempts one row. Resolver misses and errors are recorded on the
// row and never abort the run; only store write failures bubble up.
func (p *Pipeline) resolveRow(ctx context.Context, uploadID string, row store.Row, succeeded, failed *atomic.Int64, log *zap.Logger) error {
	result, err := p.resolver.Resolve(ctx, row.RawAddress)
	if err != nil {
		failed.Add(1)
		log.Warn("geocode failed",
			zap.Int("row_index", row.RowIndex),
			zap.Error(err),
		)
		return eris.Wrapf(p.store.MarkRowFailed(ctx, uploadID, row.RowIndex, eris.Cause(err).Error()),
			"pipeline: record row %d failure", row.RowIndex)
	}

	if !result.Matched {
		failed.Add(1)
		return eris.Wrapf(p.store.MarkRowFailed(ctx, uploadID, row.RowIndex, result.Reason),
			"pipeline: record row %d miss", row.RowIndex)
	}

	succeeded.Add(1)
	return eris.Wrapf(p.store.MarkRowSuccess(ctx, uploadID, row.RowIndex, result.Latitude, result.Longitude),
		"pipeline: record row %d success", row.RowIndex)
}
