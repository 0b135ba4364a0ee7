package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramanngartan/arealens-geocode/internal/store"
	"github.com/ramanngartan/arealens-geocode/pkg/geocode"
)

// memStore is an in-memory RowStore. Rows resolve concurrently within a
// batch, so every mutation takes the lock.
type memStore struct {
	mu       sync.Mutex
	rows     []store.Row
	statuses []string
	listErr  error
	markErr  error
}

func (m *memStore) UpdateUploadStatus(_ context.Context, _, status, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses = append(m.statuses, status)
	return nil
}

func (m *memStore) ListPendingRows(_ context.Context, _ string) ([]store.Row, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.rows, nil
}

func (m *memStore) MarkRowSuccess(_ context.Context, _ string, rowIndex int, lat, lng float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.markErr != nil {
		return m.markErr
	}
	m.rows[rowIndex].GeocodeStatus = store.RowStatusSuccess
	m.rows[rowIndex].Latitude = &lat
	m.rows[rowIndex].Longitude = &lng
	return nil
}

func (m *memStore) MarkRowFailed(_ context.Context, _ string, rowIndex int, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.markErr != nil {
		return m.markErr
	}
	m.rows[rowIndex].GeocodeStatus = store.RowStatusFailed
	m.rows[rowIndex].Error = reason
	return nil
}

func (m *memStore) finalStatus() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.statuses) == 0 {
		return ""
	}
	return m.statuses[len(m.statuses)-1]
}

// addrResolver resolves by address content: "miss ..." is unmatched,
// "boom ..." errors, anything else matches at a fixed coordinate.
type addrResolver struct{}

func (addrResolver) Resolve(_ context.Context, address string) (*geocode.Result, error) {
	switch {
	case strings.HasPrefix(address, "boom"):
		return nil, errors.New("provider exploded")
	case strings.HasPrefix(address, "miss"):
		return &geocode.Result{Matched: false, Reason: "no match for address"}, nil
	default:
		return &geocode.Result{Matched: true, Latitude: 37.77, Longitude: -122.42}, nil
	}
}

func (addrResolver) ReverseResolve(_ context.Context, _, _ float64) (string, error) {
	return "", errors.New("not used")
}

func pendingRows(addresses ...string) []store.Row {
	rows := make([]store.Row, len(addresses))
	for i, a := range addresses {
		rows[i] = store.Row{RowIndex: i, RawAddress: a, GeocodeStatus: store.RowStatusPending}
	}
	return rows
}

func fastPipeline(st RowStore) *Pipeline {
	return New(st, addrResolver{}, WithBatchSize(2), WithBatchRate(1000))
}

func TestRun_NoPendingRows_Done(t *testing.T) {
	st := &memStore{}
	require.NoError(t, fastPipeline(st).Run(context.Background(), "u1"))
	assert.Equal(t, []string{store.UploadStatusProcessing, store.UploadStatusDone}, st.statuses)
}

func TestRun_MixedOutcomes_DoneAndNoRowPending(t *testing.T) {
	st := &memStore{rows: pendingRows("1 Main St", "miss nowhere", "2 Oak Ave", "boom lane", "3 Pine Rd")}

	require.NoError(t, fastPipeline(st).Run(context.Background(), "u1"))

	assert.Equal(t, store.UploadStatusDone, st.finalStatus())
	for _, r := range st.rows {
		assert.NotEqual(t, store.RowStatusPending, r.GeocodeStatus, "row %d left pending", r.RowIndex)
	}
	assert.Equal(t, store.RowStatusSuccess, st.rows[0].GeocodeStatus)
	assert.Equal(t, store.RowStatusFailed, st.rows[1].GeocodeStatus)
	assert.Equal(t, "no match for address", st.rows[1].Error)
	assert.Equal(t, store.RowStatusFailed, st.rows[3].GeocodeStatus)
	assert.Equal(t, "provider exploded", st.rows[3].Error)
	require.NotNil(t, st.rows[0].Latitude)
	assert.InDelta(t, 37.77, *st.rows[0].Latitude, 1e-9)
}

func TestRun_AllRowsFail_UploadFailed(t *testing.T) {
	st := &memStore{rows: pendingRows("miss a", "miss b", "boom c")}

	require.NoError(t, fastPipeline(st).Run(context.Background(), "u1"))

	assert.Equal(t, store.UploadStatusFailed, st.finalStatus())
	for _, r := range st.rows {
		assert.Equal(t, store.RowStatusFailed, r.GeocodeStatus)
	}
}

func TestRun_ListError_UploadFailed(t *testing.T) {
	st := &memStore{listErr: errors.New("db down")}

	err := fastPipeline(st).Run(context.Background(), "u1")
	require.Error(t, err)
	assert.Equal(t, store.UploadStatusFailed, st.finalStatus())
}

func TestRun_StoreWriteError_Bubbles(t *testing.T) {
	st := &memStore{rows: pendingRows("1 Main St"), markErr: errors.New("write refused")}

	err := fastPipeline(st).Run(context.Background(), "u1")
	require.Error(t, err)
	assert.Equal(t, store.UploadStatusFailed, st.finalStatus())
}

func TestRun_BatchesLargerInput(t *testing.T) {
	addresses := make([]string, 23)
	for i := range addresses {
		addresses[i] = "1 Main St"
	}
	st := &memStore{rows: pendingRows(addresses...)}

	require.NoError(t, fastPipeline(st).Run(context.Background(), "u1"))

	assert.Equal(t, store.UploadStatusDone, st.finalStatus())
	for _, r := range st.rows {
		assert.Equal(t, store.RowStatusSuccess, r.GeocodeStatus)
	}
}
