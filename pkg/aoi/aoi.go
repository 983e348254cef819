// Package aoi reads the area-of-interest geometry consumed once at pipeline
// start.
package aoi

import (
	"fmt"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// ReadFile reads a single areal geometry from a GeoJSON file. The file may
// contain a bare geometry, a Feature, or a FeatureCollection (in which case
// the first feature's geometry is taken). Non-areal geometries are rejected.
func ReadFile(path string) (orb.Geometry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read AOI file: %w", err)
	}

	geom, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("invalid AOI file %q: %w", path, err)
	}
	return geom, nil
}

// Parse decodes a GeoJSON document into a single areal geometry.
func Parse(data []byte) (orb.Geometry, error) {
	if fc, err := geojson.UnmarshalFeatureCollection(data); err == nil {
		if len(fc.Features) == 0 {
			return nil, fmt.Errorf("feature collection is empty")
		}
		return areal(fc.Features[0].Geometry)
	}

	if f, err := geojson.UnmarshalFeature(data); err == nil {
		return areal(f.Geometry)
	}

	g, err := geojson.UnmarshalGeometry(data)
	if err != nil {
		return nil, fmt.Errorf("not a GeoJSON geometry, feature, or feature collection: %w", err)
	}
	return areal(g.Geometry())
}

// areal checks the geometry bounds an area.
func areal(geom orb.Geometry) (orb.Geometry, error) {
	switch geom.(type) {
	case orb.Polygon, orb.MultiPolygon, orb.Bound:
		return geom, nil
	case nil:
		return nil, fmt.Errorf("feature has no geometry")
	default:
		return nil, fmt.Errorf("AOI must be a polygon or box, got %s", geom.GeoJSONType())
	}
}
