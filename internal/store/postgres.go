package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/ramanngartan/arealens-geocode/internal/db"
)

// Postgres implements Store on a pgx pool.
type Postgres struct {
	pool db.Pool
}

// New creates a Postgres store on the given pool.
func New(pool db.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// CreateUpload implements Store.
func (s *Postgres) CreateUpload(ctx context.Context, u *Upload) error {
	if u.Status == "" {
		u.Status = UploadStatusUploaded
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO uploads (id, filename, row_count, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())`,
		u.ID, u.Filename, u.RowCount, u.Status,
	)
	return eris.Wrap(err, "store: create upload")
}

// GetUpload implements Store.
func (s *Postgres) GetUpload(ctx context.Context, id string) (*Upload, error) {
	var u Upload
	var errMsg *string
	err := s.pool.QueryRow(ctx, `
		SELECT id, filename, row_count, status, error, created_at, updated_at
		FROM uploads
		WHERE id = $1`,
		id,
	).Scan(&u.ID, &u.Filename, &u.RowCount, &u.Status, &errMsg, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "store: get upload")
	}
	if errMsg != nil {
		u.Error = *errMsg
	}
	return &u, nil
}

// UpdateUploadStatus implements Store.
func (s *Postgres) UpdateUploadStatus(ctx context.Context, id, status, errMsg string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE uploads
		SET status = $2, error = $3, updated_at = now()
		WHERE id = $1`,
		id, status, nilIfEmpty(errMsg),
	)
	return eris.Wrapf(err, "store: update upload %s to %s", id, status)
}

// InsertRows implements Store using the COPY protocol.
func (s *Postgres) InsertRows(ctx context.Context, uploadID string, rows []Row) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	copyRows := make([][]any, len(rows))
	for i, r := range rows {
		copyRows[i] = []any{
			uploadID, r.RowIndex, r.RawAddress,
			nilIfEmpty(r.ServiceType), r.CustomerCount, nilIfEmpty(r.RevenueBucket),
			RowStatusPending,
		}
	}

	n, err := db.CopyFrom(ctx, s.pool, "upload_rows",
		[]string{"upload_id", "row_index", "raw_address", "service_type", "customer_count", "revenue_bucket", "geocode_status"},
		copyRows,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "store: insert rows for upload %s", uploadID)
	}
	return n, nil
}

// ListPendingRows implements Store.
func (s *Postgres) ListPendingRows(ctx context.Context, uploadID string) ([]Row, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT upload_id, row_index, raw_address, service_type, customer_count, revenue_bucket, geocode_status
		FROM upload_rows
		WHERE upload_id = $1 AND geocode_status = 'pending'
		ORDER BY row_index`,
		uploadID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "store: query pending rows")
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		var serviceType, revenueBucket *string
		if err := rows.Scan(
			&r.UploadID, &r.RowIndex, &r.RawAddress,
			&serviceType, &r.CustomerCount, &revenueBucket, &r.GeocodeStatus,
		); err != nil {
			return nil, eris.Wrap(err, "store: scan pending row")
		}
		if serviceType != nil {
			r.ServiceType = *serviceType
		}
		if revenueBucket != nil {
			r.RevenueBucket = *revenueBucket
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "store: iterate pending rows")
	}
	return out, nil
}

// MarkRowSuccess implements Store. The geom column is kept in sync with the
// coordinates so the GIST index covers distance queries.
func (s *Postgres) MarkRowSuccess(ctx context.Context, uploadID string, rowIndex int, lat, lng float64) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE upload_rows
		SET geocode_status = 'success',
		    lat = $3,
		    lng = $4,
		    geom = ST_SetSRID(ST_MakePoint($4, $3), 4326),
		    error = NULL,
		    updated_at = now()
		WHERE upload_id = $1 AND row_index = $2`,
		uploadID, rowIndex, lat, lng,
	)
	return eris.Wrapf(err, "store: mark row %d success", rowIndex)
}

// MarkRowFailed implements Store.
func (s *Postgres) MarkRowFailed(ctx context.Context, uploadID string, rowIndex int, reason string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE upload_rows
		SET geocode_status = 'failed',
		    error = $3,
		    updated_at = now()
		WHERE upload_id = $1 AND row_index = $2`,
		uploadID, rowIndex, reason,
	)
	return eris.Wrapf(err, "store: mark row %d failed", rowIndex)
}

// ListPoints implements Store.
func (s *Postgres) ListPoints(ctx context.Context, uploadID string) ([]Point, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT row_index, lat, lng, COALESCE(customer_count, 0)
		FROM upload_rows
		WHERE upload_id = $1 AND geocode_status = 'success'
		ORDER BY row_index`,
		uploadID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "store: query points")
	}
	defer rows.Close()

	var points []Point
	for rows.Next() {
		var p Point
		if err := rows.Scan(&p.RowIndex, &p.Latitude, &p.Longitude, &p.CustomerCount); err != nil {
			return nil, eris.Wrap(err, "store: scan point")
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "store: iterate points")
	}
	return points, nil
}

// CountOutcomes implements Store.
func (s *Postgres) CountOutcomes(ctx context.Context, uploadID string) (Outcomes, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT geocode_status, COUNT(*)
		FROM upload_rows
		WHERE upload_id = $1
		GROUP BY geocode_status`,
		uploadID,
	)
	if err != nil {
		return Outcomes{}, eris.Wrap(err, "store: count outcomes")
	}
	defer rows.Close()

	var out Outcomes
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return Outcomes{}, eris.Wrap(err, "store: scan outcome count")
		}
		switch status {
		case RowStatusPending:
			out.Pending = n
		case RowStatusSuccess:
			out.Success = n
		case RowStatusFailed:
			out.Failed = n
		}
	}
	if err := rows.Err(); err != nil {
		return Outcomes{}, eris.Wrap(err, "store: iterate outcome counts")
	}
	return out, nil
}

// nilIfEmpty returns nil for empty strings, allowing NULL storage in Postgres.
func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
