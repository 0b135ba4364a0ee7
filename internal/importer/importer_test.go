package importer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramanngartan/arealens-geocode/internal/store"
)

type captureInserter struct {
	upload    *store.Upload
	rows      []store.Row
	createErr error
}

func (c *captureInserter) CreateUpload(_ context.Context, u *store.Upload) error {
	if c.createErr != nil {
		return c.createErr
	}
	c.upload = u
	return nil
}

func (c *captureInserter) InsertRows(_ context.Context, _ string, rows []store.Row) (int64, error) {
	c.rows = rows
	return int64(len(rows)), nil
}

func writeTempCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "addresses.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestImportFile_CSV(t *testing.T) {
	path := writeTempCSV(t, strings.Join([]string{
		"address,service_type,customer_count,revenue_bucket",
		`"123 Market St, San Francisco",fiber,5,high`,
		"456 Oak Ave,,2,",
		"789 Pine Rd,cable,,low",
	}, "\n"))

	ins := &captureInserter{}
	upload, err := ImportFile(context.Background(), ins, path)
	require.NoError(t, err)

	assert.Equal(t, "addresses.csv", upload.Filename)
	assert.Equal(t, 3, upload.RowCount)
	assert.Equal(t, store.UploadStatusUploaded, upload.Status)
	assert.NotEmpty(t, upload.ID)

	require.Len(t, ins.rows, 3)
	assert.Equal(t, "123 Market St, San Francisco", ins.rows[0].RawAddress)
	assert.Equal(t, "fiber", ins.rows[0].ServiceType)
	assert.Equal(t, 5, ins.rows[0].CustomerCount)
	assert.Equal(t, "high", ins.rows[0].RevenueBucket)
	assert.Equal(t, store.RowStatusPending, ins.rows[0].GeocodeStatus)

	// Missing customer count carries zero weight.
	assert.Equal(t, 0, ins.rows[2].CustomerCount)
}

func TestImportFile_AlternateHeaderNames(t *testing.T) {
	path := writeTempCSV(t, strings.Join([]string{
		"Raw Address,Customers",
		"1 Main St,7",
	}, "\n"))

	ins := &captureInserter{}
	upload, err := ImportFile(context.Background(), ins, path)
	require.NoError(t, err)
	assert.Equal(t, 1, upload.RowCount)
	assert.Equal(t, "1 Main St", ins.rows[0].RawAddress)
	assert.Equal(t, 7, ins.rows[0].CustomerCount)
}

func TestImportFile_MissingAddressColumn(t *testing.T) {
	path := writeTempCSV(t, "name,city\nAlice,Springfield\n")

	_, err := ImportFile(context.Background(), &captureInserter{}, path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required address column")
}

func TestImportFile_HeaderOnly(t *testing.T) {
	path := writeTempCSV(t, "address\n")

	_, err := ImportFile(context.Background(), &captureInserter{}, path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no data rows")
}

func TestImportFile_Empty(t *testing.T) {
	path := writeTempCSV(t, "")

	_, err := ImportFile(context.Background(), &captureInserter{}, path)
	require.Error(t, err)
}

func TestImportFile_SkipsBlankRows(t *testing.T) {
	path := writeTempCSV(t, strings.Join([]string{
		"address,customer_count",
		"1 Main St,1",
		",",
		"2 Oak Ave,abc",
	}, "\n"))

	ins := &captureInserter{}
	upload, err := ImportFile(context.Background(), ins, path)
	require.NoError(t, err)

	require.Equal(t, 2, upload.RowCount)
	assert.Equal(t, 0, ins.rows[0].RowIndex)
	assert.Equal(t, 1, ins.rows[1].RowIndex)
	// Non-numeric count carries zero weight.
	assert.Equal(t, 0, ins.rows[1].CustomerCount)
}

func TestImportFile_RaggedRows(t *testing.T) {
	path := writeTempCSV(t, strings.Join([]string{
		"address,service_type,customer_count",
		"1 Main St",
		"2 Oak Ave,fiber,3,extra",
	}, "\n"))

	ins := &captureInserter{}
	_, err := ImportFile(context.Background(), ins, path)
	require.NoError(t, err)

	require.Len(t, ins.rows, 2)
	assert.Equal(t, "1 Main St", ins.rows[0].RawAddress)
	assert.Equal(t, "", ins.rows[0].ServiceType)
	assert.Equal(t, 3, ins.rows[1].CustomerCount)
}

func TestImportFile_CreateUploadError(t *testing.T) {
	path := writeTempCSV(t, "address\n1 Main St\n")

	_, err := ImportFile(context.Background(), &captureInserter{createErr: errors.New("db down")}, path)
	require.Error(t, err)
}

func TestReadCSV(t *testing.T) {
	records, err := ReadCSV(strings.NewReader("address,customer_count\n1 Main St,4\n"))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, []string{"address", "customer_count"}, records[0])
}

func TestParseRecords_Valid(t *testing.T) {
	rows, err := ParseRecords([][]string{
		{"address", "customer_count"},
		{"1 Main St", "4"},
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "1 Main St", rows[0].RawAddress)
	assert.Equal(t, 4, rows[0].CustomerCount)
	assert.Equal(t, store.RowStatusPending, rows[0].GeocodeStatus)
}

func TestParseRecords_MissingAddressColumn(t *testing.T) {
	_, err := ParseRecords([][]string{{"name"}, {"Alice"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required address column")
}

func TestSave(t *testing.T) {
	ins := &captureInserter{}
	rows := []store.Row{{RowIndex: 0, RawAddress: "1 Main St", GeocodeStatus: store.RowStatusPending}}

	upload, err := Save(context.Background(), ins, "upload.csv", rows)
	require.NoError(t, err)
	assert.Equal(t, "upload.csv", upload.Filename)
	assert.Equal(t, 1, upload.RowCount)
	require.Len(t, ins.rows, 1)
}
