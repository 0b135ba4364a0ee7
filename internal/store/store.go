// Package store persists uploads and their address rows in Postgres/PostGIS.
package store

import (
	"context"
	"time"
)

// Upload lifecycle statuses. Done and failed are terminal.
const (
	UploadStatusUploaded   = "uploaded"
	UploadStatusProcessing = "processing"
	UploadStatusDone       = "done"
	UploadStatusFailed     = "failed"
)

// Row geocode statuses. A row leaves pending exactly once and never returns.
const (
	RowStatusPending = "pending"
	RowStatusSuccess = "success"
	RowStatusFailed  = "failed"
)

// Upload is one imported address file.
type Upload struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	RowCount  int       `json:"row_count"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Row is one customer address within an upload.
type Row struct {
	UploadID      string   `json:"upload_id"`
	RowIndex      int      `json:"row_index"`
	RawAddress    string   `json:"raw_address"`
	ServiceType   string   `json:"service_type,omitempty"`
	CustomerCount int      `json:"customer_count"`
	RevenueBucket string   `json:"revenue_bucket,omitempty"`
	GeocodeStatus string   `json:"geocode_status"`
	Latitude      *float64 `json:"lat,omitempty"`
	Longitude     *float64 `json:"lng,omitempty"`
	Error         string   `json:"error,omitempty"`
}

// Outcomes tallies an upload's rows by geocode status.
type Outcomes struct {
	Pending int `json:"pending"`
	Success int `json:"success"`
	Failed  int `json:"failed"`
}

// Point is the read-only projection of a successfully geocoded row.
type Point struct {
	RowIndex      int     `json:"row_index"`
	Latitude      float64 `json:"lat"`
	Longitude     float64 `json:"lng"`
	CustomerCount int     `json:"customer_count"`
}

// Store defines persistence operations for uploads and rows.
type Store interface {
	// CreateUpload inserts a new upload in status uploaded.
	CreateUpload(ctx context.Context, u *Upload) error

	// GetUpload retrieves an upload by ID.
	GetUpload(ctx context.Context, id string) (*Upload, error)

	// UpdateUploadStatus transitions an upload's status, recording an
	// error message for failed runs.
	UpdateUploadStatus(ctx context.Context, id, status, errMsg string) error

	// InsertRows bulk-loads rows for an upload.
	InsertRows(ctx context.Context, uploadID string, rows []Row) (int64, error)

	// ListPendingRows returns pending rows ordered by row index.
	ListPendingRows(ctx context.Context, uploadID string) ([]Row, error)

	// MarkRowSuccess records a geocode hit and clears any previous error.
	MarkRowSuccess(ctx context.Context, uploadID string, rowIndex int, lat, lng float64) error

	// MarkRowFailed records a geocode miss with a human-readable reason.
	MarkRowFailed(ctx context.Context, uploadID string, rowIndex int, reason string) error

	// ListPoints returns successfully geocoded points ordered by row index.
	ListPoints(ctx context.Context, uploadID string) ([]Point, error)

	// CountOutcomes tallies an upload's rows by geocode status.
	CountOutcomes(ctx context.Context, uploadID string) (Outcomes, error)
}
