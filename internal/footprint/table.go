// Package footprint converts raw STAC items into a flat, geometry-bearing
// table keyed by acquisition time.
package footprint

import (
	"sort"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Row is one normalized item: its footprint geometry, its acquisition
// timestamp, and the item's attributes flattened into dotted-path columns.
type Row struct {
	ID       string
	Geometry orb.Geometry
	// Time is the acquisition timestamp (UTC). Zero when the source item
	// carried no datetime property.
	Time    time.Time
	Columns map[string]any
}

// Table is a footprint table: one row per item, ordered by acquisition time.
type Table struct {
	rows []Row
}

// NewTable builds a table from rows, sorting them by acquisition time.
func NewTable(rows []Row) *Table {
	sorted := make([]Row, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Time.Before(sorted[j].Time)
	})
	return &Table{rows: sorted}
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// Rows returns the rows in acquisition-time order.
func (t *Table) Rows() []Row {
	return t.rows
}

// Times returns the acquisition-time index.
func (t *Table) Times() []time.Time {
	times := make([]time.Time, len(t.rows))
	for i, row := range t.rows {
		times[i] = row.Time
	}
	return times
}

// ColumnNames returns the sorted union of column names across all rows.
func (t *Table) ColumnNames() []string {
	seen := make(map[string]bool)
	for _, row := range t.rows {
		for name := range row.Columns {
			seen[name] = true
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Bound returns the union bound of all row geometries.
// The second return value is false for an empty table.
func (t *Table) Bound() (orb.Bound, bool) {
	if len(t.rows) == 0 {
		return orb.Bound{}, false
	}

	bound := t.rows[0].Geometry.Bound()
	for _, row := range t.rows[1:] {
		bound = bound.Union(row.Geometry.Bound())
	}
	return bound, true
}

// FeatureCollection exports the table as a GeoJSON FeatureCollection for
// plotting and HTTP delivery. Column values become feature properties; the
// acquisition time is rendered as an RFC3339 "datetime" property.
func (t *Table) FeatureCollection() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, row := range t.rows {
		f := geojson.NewFeature(row.Geometry)
		f.ID = row.ID
		for name, value := range row.Columns {
			if ts, ok := value.(time.Time); ok {
				f.Properties[name] = ts.UTC().Format(time.RFC3339)
				continue
			}
			f.Properties[name] = value
		}
		if !row.Time.IsZero() {
			f.Properties["datetime"] = row.Time.UTC().Format(time.RFC3339)
		}
		fc.Append(f)
	}
	return fc
}
