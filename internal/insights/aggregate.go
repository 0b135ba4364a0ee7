// Package insights computes density insights over geocoded customer points:
// grid-cell aggregation, dense-area ranking, concentration scoring, and
// whitespace detection.
package insights

import (
	"math"
	"sort"
	"strconv"

	"github.com/ramanngartan/arealens-geocode/internal/store"
)

// Cell is a spatial bucket keyed by coordinates rounded to two decimal
// places (~1.1 km at mid-latitudes).
type Cell struct {
	Key       string  `json:"cell_id"`
	Count     int     `json:"count"`
	CenterLat float64 `json:"center_lat"`
	CenterLng float64 `json:"center_lng"`
	Customers int     `json:"total_customers"`
}

// CellKey derives the grid key for a coordinate. Two points share a cell
// iff their coordinates round to the same two decimals.
func CellKey(lat, lng float64) string {
	return formatCoord(lat) + "," + formatCoord(lng)
}

// formatCoord rounds half away from zero to two decimals. Negative zero is
// normalized so points straddling the equator or prime meridian land in the
// same cell.
func formatCoord(v float64) string {
	r := math.Round(v*100) / 100
	if r == 0 {
		r = 0
	}
	return strconv.FormatFloat(r, 'f', 2, 64)
}

// Aggregate groups points into grid cells. The centroid is the arithmetic
// mean of the unrounded member coordinates, not the cell's rounded key.
// Output is ordered by occupancy descending, then cell key ascending, so
// identical inputs always produce identical cells in identical order.
func Aggregate(points []store.Point) []Cell {
	type acc struct {
		count     int
		sumLat    float64
		sumLng    float64
		customers int
	}
	buckets := make(map[string]*acc)

	for _, p := range points {
		key := CellKey(p.Latitude, p.Longitude)
		a, ok := buckets[key]
		if !ok {
			a = &acc{}
			buckets[key] = a
		}
		a.count++
		a.sumLat += p.Latitude
		a.sumLng += p.Longitude
		a.customers += p.CustomerCount
	}

	cells := make([]Cell, 0, len(buckets))
	for key, a := range buckets {
		cells = append(cells, Cell{
			Key:       key,
			Count:     a.count,
			CenterLat: a.sumLat / float64(a.count),
			CenterLng: a.sumLng / float64(a.count),
			Customers: a.customers,
		})
	}

	sort.Slice(cells, func(i, j int) bool {
		if cells[i].Count != cells[j].Count {
			return cells[i].Count > cells[j].Count
		}
		return cells[i].Key < cells[j].Key
	})

	return cells
}
