// Package importer validates and loads customer address files (CSV or XLSX)
// into the upload store.
package importer

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/ramanngartan/arealens-geocode/internal/store"
)

// Inserter is the persistence surface the importer needs.
type Inserter interface {
	CreateUpload(ctx context.Context, u *store.Upload) error
	InsertRows(ctx context.Context, uploadID string, rows []store.Row) (int64, error)
}

// columns maps a header layout to field positions. A negative index means
// the column is absent.
type columns struct {
	address       int
	serviceType   int
	customerCount int
	revenueBucket int
}

// ImportFile reads an address file, validates its header, and loads it as a
// new upload with all rows pending. The extension picks the parser: .xlsx
// uses the spreadsheet reader, everything else is treated as CSV.
func ImportFile(ctx context.Context, ins Inserter, path string) (*store.Upload, error) {
	var records [][]string
	var err error
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		records, err = readXLSX(path)
	} else {
		records, err = readCSV(path)
	}
	if err != nil {
		return nil, err
	}

	return Import(ctx, ins, filepath.Base(path), records)
}

// Import validates the header and persists the upload. Validation failures
// are returned before anything is written; they never reach the pipeline.
func Import(ctx context.Context, ins Inserter, filename string, records [][]string) (*store.Upload, error) {
	rows, err := ParseRecords(records)
	if err != nil {
		return nil, err
	}
	return Save(ctx, ins, filename, rows)
}

// ParseRecords validates the header and converts records to pending rows.
// Errors here are caused by the file contents, never by infrastructure.
func ParseRecords(records [][]string) ([]store.Row, error) {
	if len(records) == 0 {
		return nil, eris.New("import: file is empty")
	}

	cols, err := mapColumns(records[0])
	if err != nil {
		return nil, err
	}

	rows := buildRows(records[1:], cols)
	if len(rows) == 0 {
		return nil, eris.New("import: no data rows after header")
	}
	return rows, nil
}

// Save persists a validated row set as a new upload with all rows pending.
func Save(ctx context.Context, ins Inserter, filename string, rows []store.Row) (*store.Upload, error) {
	upload := &store.Upload{
		ID:       uuid.NewString(),
		Filename: filename,
		RowCount: len(rows),
		Status:   store.UploadStatusUploaded,
	}
	if err := ins.CreateUpload(ctx, upload); err != nil {
		return nil, err
	}

	n, err := ins.InsertRows(ctx, upload.ID, rows)
	if err != nil {
		return nil, err
	}

	zap.L().Info("upload imported",
		zap.String("upload_id", upload.ID),
		zap.String("filename", filename),
		zap.Int64("rows", n),
	)
	return upload, nil
}

// mapColumns locates the known columns in the header. The address column is
// required; everything else is optional.
func mapColumns(header []string) (columns, error) {
	cols := columns{address: -1, serviceType: -1, customerCount: -1, revenueBucket: -1}

	for i, h := range header {
		switch normalizeHeader(h) {
		case "address", "raw_address", "street_address":
			if cols.address < 0 {
				cols.address = i
			}
		case "service_type", "service":
			cols.serviceType = i
		case "customer_count", "customers":
			cols.customerCount = i
		case "revenue_bucket", "revenue":
			cols.revenueBucket = i
		}
	}

	if cols.address < 0 {
		return cols, eris.New("import: missing required address column")
	}
	return cols, nil
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.ReplaceAll(h, " ", "_")
}

// buildRows converts records to pending store rows. Rows with a blank
// address are kept: the pipeline records them as failed so every input row
// has a visible outcome. A non-numeric customer count carries zero weight.
func buildRows(records [][]string, cols columns) []store.Row {
	var rows []store.Row
	for _, rec := range records {
		if isBlank(rec) {
			continue
		}

		row := store.Row{
			RowIndex:      len(rows),
			RawAddress:    field(rec, cols.address),
			ServiceType:   field(rec, cols.serviceType),
			RevenueBucket: field(rec, cols.revenueBucket),
			GeocodeStatus: store.RowStatusPending,
		}
		if n, err := strconv.Atoi(field(rec, cols.customerCount)); err == nil && n > 0 {
			row.CustomerCount = n
		}
		rows = append(rows, row)
	}
	return rows
}

func field(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func isBlank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// readCSV reads all records from a CSV file on disk.
func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "import: open csv")
	}
	defer f.Close() //nolint:errcheck

	return ReadCSV(f)
}

// ReadCSV reads all records from CSV content, for HTTP multipart uploads.
func ReadCSV(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // allow ragged rows; buildRows pads
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "import: parse csv")
	}
	return records, nil
}

// readXLSX reads the first sheet of a spreadsheet as string records.
func readXLSX(path string) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "import: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("import: xlsx has no sheets")
	}

	sheet := f.Sheets[0]
	records := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		records = append(records, cells)
	}
	return records, nil
}
