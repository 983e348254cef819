package footprint

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/paulmach/orb"
	orbjson "github.com/paulmach/orb/geojson"

	"github.com/rkm/stac-cube/internal/stac"
)

// timestampColumns are the property names parsed into time.Time values.
// A column absent from the source items is skipped silently.
var timestampColumns = []string{"datetime", "created", "updated"}

// Normalize converts raw STAC items into a footprint table: one row per
// item, geometry parsed, nested attributes flattened to dotted paths, and
// designated timestamp columns parsed into UTC time values. The input items
// are never mutated. An empty input yields an empty table.
func Normalize(items []*stac.Item) (*Table, error) {
	rows := make([]Row, 0, len(items))

	for i, item := range items {
		if item == nil {
			return nil, fmt.Errorf("item %d is nil", i)
		}

		row, err := normalizeItem(item)
		if err != nil {
			return nil, fmt.Errorf("failed to normalize item %q: %w", item.Id, err)
		}
		rows = append(rows, row)
	}

	return NewTable(rows), nil
}

func normalizeItem(item *stac.Item) (Row, error) {
	geom, err := ParseGeometry(item.Geometry)
	if err != nil {
		return Row{}, fmt.Errorf("failed to parse geometry: %w", err)
	}

	columns := make(map[string]any)
	flatten("", copyValue(item.Properties), columns)

	// Flatten asset descriptors alongside the properties so the table can
	// be inspected without going back to the raw items.
	for name, asset := range item.Assets {
		if asset == nil {
			continue
		}
		columns["assets."+name+".href"] = asset.Href
		if asset.Type != "" {
			columns["assets."+name+".type"] = asset.Type
		}
	}

	for _, col := range timestampColumns {
		raw, ok := columns[col]
		if !ok || raw == nil {
			continue
		}
		s, ok := raw.(string)
		if !ok {
			if _, already := raw.(time.Time); already {
				continue
			}
			return Row{}, fmt.Errorf("column %q is not a timestamp string", col)
		}
		t, err := stac.ParseTimestamp(s)
		if err != nil {
			return Row{}, fmt.Errorf("failed to parse column %q: %w", col, err)
		}
		columns[col] = t
	}

	row := Row{
		ID:       item.Id,
		Geometry: geom,
		Columns:  columns,
	}
	if t, ok := columns["datetime"].(time.Time); ok {
		row.Time = t
	}

	return row, nil
}

// ParseGeometry converts a decoded GeoJSON geometry value (as go-stac leaves
// it: a map or a raw message) into an orb geometry.
func ParseGeometry(value any) (orb.Geometry, error) {
	if value == nil {
		return nil, fmt.Errorf("item has no geometry")
	}

	var raw []byte
	switch v := value.(type) {
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to re-encode geometry: %w", err)
		}
		raw = encoded
	}

	geom, err := orbjson.UnmarshalGeometry(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid GeoJSON geometry: %w", err)
	}
	return geom.Geometry(), nil
}

// flatten writes nested map values into out under dotted-path keys.
// Non-map values (including slices) are stored as-is.
func flatten(prefix string, value any, out map[string]any) {
	m, ok := value.(map[string]any)
	if !ok {
		out[prefix] = value
		return
	}

	for key, v := range m {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		if nested, ok := v.(map[string]any); ok {
			flatten(path, nested, out)
			continue
		}
		out[path] = v
	}
}

// copyValue deep-copies maps and slices so normalization never aliases the
// source item's property tree.
func copyValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		cp := make(map[string]any, len(v))
		for key, inner := range v {
			cp[key] = copyValue(inner)
		}
		return cp
	case []any:
		cp := make([]any, len(v))
		for i, inner := range v {
			cp[i] = copyValue(inner)
		}
		return cp
	default:
		return v
	}
}
