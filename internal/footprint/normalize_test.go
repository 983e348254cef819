package footprint

import (
	"strings"
	"testing"
	"time"

	"github.com/paulmach/orb"

	"github.com/rkm/stac-cube/internal/stac"
)

func pointGeometry(lon, lat float64) map[string]any {
	return map[string]any{
		"type":        "Point",
		"coordinates": []any{lon, lat},
	}
}

func testItem(id, datetime string) *stac.Item {
	item := stac.NewItem(id, "sentinel-2-l2a", "1.0.0")
	item.Geometry = pointGeometry(149.1, -35.3)
	item.Properties["datetime"] = datetime
	item.Assets["red"] = &stac.Asset{Href: "https://data.example.com/" + id + "/B04.tif", Type: "image/tiff"}
	return item
}

func TestNormalize(t *testing.T) {
	items := []*stac.Item{
		testItem("S2A_002", "2023-06-20T00:05:32Z"),
		testItem("S2A_001", "2023-06-15T00:05:32Z"),
	}

	table, err := Normalize(items)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if table.Len() != 2 {
		t.Fatalf("Expected 2 rows, got %d", table.Len())
	}

	// Rows come back sorted by acquisition time, not insertion order.
	rows := table.Rows()
	if rows[0].ID != "S2A_001" || rows[1].ID != "S2A_002" {
		t.Errorf("Unexpected row order: %s, %s", rows[0].ID, rows[1].ID)
	}

	expected := time.Date(2023, 6, 15, 0, 5, 32, 0, time.UTC)
	if !rows[0].Time.Equal(expected) {
		t.Errorf("Expected time %s, got %s", expected, rows[0].Time)
	}
	if rows[0].Time.Location() != time.UTC {
		t.Errorf("Expected UTC time, got location %s", rows[0].Time.Location())
	}

	if _, ok := rows[0].Geometry.(orb.Point); !ok {
		t.Errorf("Expected point geometry, got %T", rows[0].Geometry)
	}

	if href := rows[0].Columns["assets.red.href"]; href != "https://data.example.com/S2A_001/B04.tif" {
		t.Errorf("Unexpected asset href column: %v", href)
	}
	if mediaType := rows[0].Columns["assets.red.type"]; mediaType != "image/tiff" {
		t.Errorf("Unexpected asset type column: %v", mediaType)
	}
}

func TestNormalizeEmpty(t *testing.T) {
	table, err := Normalize(nil)
	if err != nil {
		t.Fatalf("Expected empty input to succeed, got error: %v", err)
	}
	if table.Len() != 0 {
		t.Errorf("Expected empty table, got %d rows", table.Len())
	}
}

func TestNormalizeFlattensNestedProperties(t *testing.T) {
	item := testItem("S2A_001", "2023-06-15T00:05:32Z")
	item.Properties["eo:cloud_cover"] = 3.5
	item.Properties["proj:transform"] = []any{10.0, 0.0, 0.0}
	item.Properties["view"] = map[string]any{
		"sun": map[string]any{
			"azimuth": 41.2,
		},
	}

	table, err := Normalize([]*stac.Item{item})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	row := table.Rows()[0]
	if row.Columns["eo:cloud_cover"] != 3.5 {
		t.Errorf("Unexpected cloud cover column: %v", row.Columns["eo:cloud_cover"])
	}
	if row.Columns["view.sun.azimuth"] != 41.2 {
		t.Errorf("Expected nested property flattened to dotted path, got: %v", row.Columns["view.sun.azimuth"])
	}
	if _, ok := row.Columns["view.sun.azimuth"]; !ok {
		t.Error("Expected view.sun.azimuth column to exist")
	}
	if _, ok := row.Columns["view"]; ok {
		t.Error("Expected intermediate map key to be replaced by dotted paths")
	}
}

func TestNormalizeOptionalTimestampColumns(t *testing.T) {
	item := testItem("S2A_001", "2023-06-15T00:05:32Z")
	item.Properties["created"] = "2023-06-16T08:00:00Z"
	// "updated" is deliberately absent.

	table, err := Normalize([]*stac.Item{item})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	row := table.Rows()[0]
	created, ok := row.Columns["created"].(time.Time)
	if !ok {
		t.Fatalf("Expected created column parsed to time.Time, got %T", row.Columns["created"])
	}
	if !created.Equal(time.Date(2023, 6, 16, 8, 0, 0, 0, time.UTC)) {
		t.Errorf("Unexpected created time: %s", created)
	}
	if _, ok := row.Columns["updated"]; ok {
		t.Error("Expected absent updated column to stay absent")
	}
}

func TestNormalizeErrors(t *testing.T) {
	t.Run("nil item", func(t *testing.T) {
		_, err := Normalize([]*stac.Item{nil})
		if err == nil {
			t.Fatal("Expected error, got nil")
		}
	})

	t.Run("missing geometry", func(t *testing.T) {
		item := testItem("S2A_001", "2023-06-15T00:05:32Z")
		item.Geometry = nil

		_, err := Normalize([]*stac.Item{item})
		if err == nil {
			t.Fatal("Expected error, got nil")
		}
		if !strings.Contains(err.Error(), `"S2A_001"`) {
			t.Errorf("Expected error naming the item, got: %v", err)
		}
	})

	t.Run("unparseable datetime", func(t *testing.T) {
		item := testItem("S2A_001", "not-a-timestamp")

		_, err := Normalize([]*stac.Item{item})
		if err == nil {
			t.Fatal("Expected error, got nil")
		}
	})

	t.Run("non-string timestamp column", func(t *testing.T) {
		item := testItem("S2A_001", "2023-06-15T00:05:32Z")
		item.Properties["created"] = 12345

		_, err := Normalize([]*stac.Item{item})
		if err == nil {
			t.Fatal("Expected error, got nil")
		}
	})
}

func TestNormalizeDoesNotMutateInput(t *testing.T) {
	item := testItem("S2A_001", "2023-06-15T00:05:32Z")
	item.Properties["platform"] = "sentinel-2a"

	if _, err := Normalize([]*stac.Item{item}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	// The datetime property in the source item must still be the raw string.
	if item.Properties["datetime"] != "2023-06-15T00:05:32Z" {
		t.Errorf("Input item mutated: datetime is %v", item.Properties["datetime"])
	}
	if item.Properties["platform"] != "sentinel-2a" {
		t.Errorf("Input item mutated: platform is %v", item.Properties["platform"])
	}
}

func TestFeatureCollection(t *testing.T) {
	items := []*stac.Item{testItem("S2A_001", "2023-06-15T00:05:32Z")}

	table, err := Normalize(items)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	fc := table.FeatureCollection()
	if len(fc.Features) != 1 {
		t.Fatalf("Expected 1 feature, got %d", len(fc.Features))
	}

	f := fc.Features[0]
	if f.ID != "S2A_001" {
		t.Errorf("Unexpected feature ID: %v", f.ID)
	}
	if f.Properties["datetime"] != "2023-06-15T00:05:32Z" {
		t.Errorf("Expected RFC3339 datetime property, got: %v", f.Properties["datetime"])
	}
}

func TestTableBound(t *testing.T) {
	empty := NewTable(nil)
	if _, ok := empty.Bound(); ok {
		t.Error("Expected no bound for empty table")
	}

	a := testItem("a", "2023-06-15T00:05:32Z")
	a.Geometry = pointGeometry(149.0, -35.0)
	b := testItem("b", "2023-06-16T00:05:32Z")
	b.Geometry = pointGeometry(150.0, -34.0)

	table, err := Normalize([]*stac.Item{a, b})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	bound, ok := table.Bound()
	if !ok {
		t.Fatal("Expected a bound")
	}
	if bound.Min != (orb.Point{149.0, -35.0}) || bound.Max != (orb.Point{150.0, -34.0}) {
		t.Errorf("Unexpected bound: %v", bound)
	}
}
