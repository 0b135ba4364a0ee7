package insights

import (
	"context"
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ramanngartan/arealens-geocode/internal/store"
	"github.com/ramanngartan/arealens-geocode/pkg/geocode"
)

// PointSource supplies the geocoded points for an upload.
type PointSource interface {
	ListPoints(ctx context.Context, uploadID string) ([]store.Point, error)
}

// Options configures insight computation. Zero values fall back to defaults.
type Options struct {
	DenseAreaCount   int     // dense cells to report (default 3)
	WhitespaceCount  int     // whitespace cells to report (default 3)
	WhitespaceMaxKm  float64 // max distance from a dense centroid (default 3)
	RadiusClampMinKm float64 // display radius lower bound (default 0.5)
	RadiusClampMaxKm float64 // display radius upper bound (default 3)
}

func (o Options) withDefaults() Options {
	if o.DenseAreaCount <= 0 {
		o.DenseAreaCount = 3
	}
	if o.WhitespaceCount <= 0 {
		o.WhitespaceCount = 3
	}
	if o.WhitespaceMaxKm <= 0 {
		o.WhitespaceMaxKm = 3
	}
	if o.RadiusClampMinKm <= 0 {
		o.RadiusClampMinKm = 0.5
	}
	if o.RadiusClampMaxKm <= 0 {
		o.RadiusClampMaxKm = 3
	}
	return o
}

// DenseArea is a top-ranked grid cell by customer point occupancy.
type DenseArea struct {
	CellID    string  `json:"cell_id"`
	Count     int     `json:"count"`
	CenterLat float64 `json:"center_lat"`
	CenterLng float64 `json:"center_lng"`
	Label     string  `json:"label"`
}

// WhitespaceArea is a low-occupancy grid cell near a dense area.
type WhitespaceArea struct {
	CellID     string  `json:"cell_id"`
	Count      int     `json:"count"`
	CenterLat  float64 `json:"center_lat"`
	CenterLng  float64 `json:"center_lng"`
	DistanceKm float64 `json:"distance_km"`
	RadiusKm   float64 `json:"radius_km"`
	Label      string  `json:"label"`
}

// Report is the insights output for one upload. It is computed on demand
// and never persisted.
type Report struct {
	TopDenseAreas        []DenseArea      `json:"top_dense_areas"`
	ConcentrationPercent int              `json:"concentration_percent"`
	WhiteSpaceAreas      []WhitespaceArea `json:"white_space_areas"`
}

// Engine computes insight reports from geocoded points.
type Engine struct {
	points   PointSource
	resolver geocode.Client
	opts     Options
}

// NewEngine creates an Engine over the given point source and resolver.
func NewEngine(points PointSource, resolver geocode.Client, opts Options) *Engine {
	return &Engine{
		points:   points,
		resolver: resolver,
		opts:     opts.withDefaults(),
	}
}

// Compute builds the insights report for an upload.
func (e *Engine) Compute(ctx context.Context, uploadID string) (*Report, error) {
	points, err := e.points.ListPoints(ctx, uploadID)
	if err != nil {
		return nil, eris.Wrap(err, "insights: list points")
	}

	cells := Aggregate(points)
	if len(cells) == 0 {
		return &Report{
			TopDenseAreas:   []DenseArea{},
			WhiteSpaceAreas: []WhitespaceArea{},
		}, nil
	}

	dense := topDense(cells, e.opts.DenseAreaCount)
	white := e.whitespace(cells, dense)

	// The label memo is scoped to this computation: cells whose centroids
	// round to the same key share one reverse-geocode call, and nothing
	// leaks across requests.
	memo := make(map[string]string)

	report := &Report{
		TopDenseAreas:        make([]DenseArea, 0, len(dense)),
		ConcentrationPercent: concentrationPercent(cells, dense),
		WhiteSpaceAreas:      make([]WhitespaceArea, 0, len(white)),
	}

	for _, c := range dense {
		report.TopDenseAreas = append(report.TopDenseAreas, DenseArea{
			CellID:    c.Key,
			Count:     c.Count,
			CenterLat: c.CenterLat,
			CenterLng: c.CenterLng,
			Label:     e.label(ctx, memo, c.CenterLat, c.CenterLng),
		})
	}

	for _, w := range white {
		w.Label = e.label(ctx, memo, w.CenterLat, w.CenterLng)
		report.WhiteSpaceAreas = append(report.WhiteSpaceAreas, w)
	}

	return report, nil
}

// topDense returns the n highest-occupancy cells. Single-point cells are
// whitespace candidates, never dense. Aggregate already orders by count
// descending with an ascending-key tie-break, so selection is deterministic
// for equal counts.
func topDense(cells []Cell, n int) []Cell {
	dense := make([]Cell, 0, n)
	for _, c := range cells {
		if c.Count < 2 || len(dense) == n {
			break
		}
		dense = append(dense, c)
	}
	return dense
}

// concentrationPercent is the share of total customer weight held by the
// dense cells, rounded half up. Zero total weight yields zero.
func concentrationPercent(cells, dense []Cell) int {
	var total, in int
	for _, c := range cells {
		total += c.Customers
	}
	for _, c := range dense {
		in += c.Customers
	}
	if total == 0 {
		return 0
	}
	return int(math.Floor(float64(in)/float64(total)*100 + 0.5))
}

// whitespace finds cells with at most one point, excluding the dense cells,
// within the distance threshold of the nearest dense centroid, ordered by
// that distance ascending.
func (e *Engine) whitespace(cells, dense []Cell) []WhitespaceArea {
	denseKeys := make(map[string]bool, len(dense))
	for _, d := range dense {
		denseKeys[d.Key] = true
	}

	var out []WhitespaceArea
	for _, c := range cells {
		if c.Count > 1 || denseKeys[c.Key] {
			continue
		}

		distKm := nearestKm(c, dense)
		if distKm > e.opts.WhitespaceMaxKm {
			continue
		}

		out = append(out, WhitespaceArea{
			CellID:     c.Key,
			Count:      c.Count,
			CenterLat:  c.CenterLat,
			CenterLng:  c.CenterLng,
			DistanceKm: distKm,
			RadiusKm:   e.displayRadiusKm(distKm),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].DistanceKm != out[j].DistanceKm {
			return out[i].DistanceKm < out[j].DistanceKm
		}
		return out[i].CellID < out[j].CellID
	})

	if len(out) > e.opts.WhitespaceCount {
		out = out[:e.opts.WhitespaceCount]
	}
	return out
}

// nearestKm is the spherical distance from a cell's centroid to the closest
// dense centroid.
func nearestKm(c Cell, dense []Cell) float64 {
	from := orb.Point{c.CenterLng, c.CenterLat}
	min := math.Inf(1)
	for _, d := range dense {
		km := geo.Distance(from, orb.Point{d.CenterLng, d.CenterLat}) / 1000
		if km < min {
			min = km
		}
	}
	return min
}

// displayRadiusKm derives the radius the presentation layer draws around a
// whitespace area: the distance rounded up to whole kilometers, clamped.
func (e *Engine) displayRadiusKm(distKm float64) float64 {
	r := math.Ceil(distKm)
	if r < e.opts.RadiusClampMinKm {
		r = e.opts.RadiusClampMinKm
	}
	if r > e.opts.RadiusClampMaxKm {
		r = e.opts.RadiusClampMaxKm
	}
	return r
}

// label resolves a human-readable label for a centroid, memoized by the
// rounded-coordinate key. Reverse failures degrade to a coordinate string.
func (e *Engine) label(ctx context.Context, memo map[string]string, lat, lng float64) string {
	key := CellKey(lat, lng)
	if l, ok := memo[key]; ok {
		return l
	}

	l, err := e.resolver.ReverseResolve(ctx, lat, lng)
	if err != nil {
		zap.L().Debug("insights: reverse geocode failed, using coordinate label",
			zap.String("cell", key),
			zap.Error(err),
		)
		l = geocode.FallbackLabel(lat, lng)
	}

	memo[key] = l
	return l
}
