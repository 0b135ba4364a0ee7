package insights

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramanngartan/arealens-geocode/internal/store"
)

func TestCellKey_RoundsToTwoDecimals(t *testing.T) {
	assert.Equal(t, "37.77,-122.42", CellKey(37.774901, -122.419412))
	assert.Equal(t, "37.77,-122.42", CellKey(37.774888, -122.419399))
	assert.Equal(t, "0.00,0.00", CellKey(0, 0))
	assert.Equal(t, "-33.87,151.21", CellKey(-33.8688, 151.2093))
}

func TestCellKey_NoNegativeZero(t *testing.T) {
	// Points on either side of the prime meridian or equator share a cell
	// when their coordinates round to zero.
	assert.Equal(t, "0.00,10.00", CellKey(0.0004, 10))
	assert.Equal(t, "0.00,10.00", CellKey(-0.0004, 10))
	assert.Equal(t, "51.51,0.00", CellKey(51.5074, -0.0021))
	assert.Equal(t, "51.51,0.00", CellKey(51.5080, 0.0019))
}

func TestAggregate_MergesAcrossMeridian(t *testing.T) {
	points := []store.Point{
		{Latitude: 51.5074, Longitude: -0.0021, CustomerCount: 1},
		{Latitude: 51.5080, Longitude: 0.0019, CustomerCount: 2},
	}

	cells := Aggregate(points)
	require.Len(t, cells, 1)
	assert.Equal(t, "51.51,0.00", cells[0].Key)
	assert.Equal(t, 2, cells[0].Count)
	assert.Equal(t, 3, cells[0].Customers)
}

func TestAggregate_MergesNearbyPoints(t *testing.T) {
	points := []store.Point{
		{RowIndex: 0, Latitude: 37.774901, Longitude: -122.419412, CustomerCount: 2},
		{RowIndex: 1, Latitude: 37.774888, Longitude: -122.419399, CustomerCount: 3},
		{RowIndex: 2, Latitude: 40.712800, Longitude: -74.006000, CustomerCount: 1},
	}

	cells := Aggregate(points)
	assert.Len(t, cells, 2)

	sf := cells[0]
	assert.Equal(t, "37.77,-122.42", sf.Key)
	assert.Equal(t, 2, sf.Count)
	assert.Equal(t, 5, sf.Customers)

	// Centroid is the mean of the raw coordinates, not the rounded key.
	assert.InDelta(t, (37.774901+37.774888)/2, sf.CenterLat, 1e-9)
	assert.InDelta(t, (-122.419412+-122.419399)/2, sf.CenterLng, 1e-9)

	ny := cells[1]
	assert.Equal(t, "40.71,-74.01", ny.Key)
	assert.Equal(t, 1, ny.Count)
}

func TestAggregate_OrderCountDescThenKeyAsc(t *testing.T) {
	points := []store.Point{
		{Latitude: 10.00, Longitude: 10.00},
		{Latitude: 20.00, Longitude: 20.00},
		{Latitude: 30.00, Longitude: 30.00},
		{Latitude: 30.001, Longitude: 30.001},
	}

	cells := Aggregate(points)
	assert.Len(t, cells, 3)
	assert.Equal(t, "30.00,30.00", cells[0].Key)
	// Equal counts fall back to ascending key order.
	assert.Equal(t, "10.00,10.00", cells[1].Key)
	assert.Equal(t, "20.00,20.00", cells[2].Key)
}

func TestAggregate_Deterministic(t *testing.T) {
	points := []store.Point{
		{Latitude: 51.5074, Longitude: -0.1278, CustomerCount: 1},
		{Latitude: 51.5080, Longitude: -0.1280, CustomerCount: 2},
		{Latitude: 48.8566, Longitude: 2.3522, CustomerCount: 4},
	}

	first := Aggregate(points)
	for range 20 {
		assert.Equal(t, first, Aggregate(points))
	}
}

func TestAggregate_Empty(t *testing.T) {
	assert.Empty(t, Aggregate(nil))
	assert.Empty(t, Aggregate([]store.Point{}))
}
