// Package catalog implements the STAC item-search client used to find scenes
// over an area of interest.
package catalog

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/rkm/stac-cube/internal/stac"
)

// SearchRequest describes one item-search query. A request is treated as
// immutable once issued: the client encodes a copy and never writes back.
type SearchRequest struct {
	// Collections to search (STAC collection IDs)
	Collections []string

	// Intersects restricts results to items overlapping this geometry (the AOI).
	Intersects orb.Geometry

	// BBox is an alternative spatial filter [west, south, east, north].
	BBox []float64

	// Temporal filters; either may be nil for an open-ended interval.
	Start *time.Time
	End   *time.Time

	// Filter is a CQL2-JSON attribute predicate, e.g. a cloud-cover bound.
	Filter any

	// Limit is the page size requested from the catalog.
	Limit int
}

// MaxCloudCover returns a CQL2-JSON predicate restricting results to items
// whose eo:cloud_cover property does not exceed the given percentage.
func MaxCloudCover(percent float64) any {
	return map[string]any{
		"op": "<=",
		"args": []any{
			map[string]any{"property": "eo:cloud_cover"},
			percent,
		},
	}
}

// body is the wire form of a search request, per the STAC item-search spec.
type body struct {
	Collections []string        `json:"collections,omitempty"`
	Intersects  json.RawMessage `json:"intersects,omitempty"`
	BBox        []float64       `json:"bbox,omitempty"`
	DateTime    string          `json:"datetime,omitempty"`
	Filter      any             `json:"filter,omitempty"`
	FilterLang  string          `json:"filter-lang,omitempty"`
	Limit       int             `json:"limit,omitempty"`
}

// encode validates the request and renders its JSON body.
func (req *SearchRequest) encode() ([]byte, error) {
	if len(req.Collections) == 0 {
		return nil, fmt.Errorf("search request must name at least one collection")
	}

	if len(req.BBox) != 0 && len(req.BBox) != 4 && len(req.BBox) != 6 {
		return nil, fmt.Errorf("bbox must have 4 or 6 coordinates, got %d", len(req.BBox))
	}

	if req.Limit < 0 {
		return nil, fmt.Errorf("limit must be non-negative, got %d", req.Limit)
	}

	b := body{
		Collections: req.Collections,
		BBox:        req.BBox,
		DateTime:    stac.FormatInterval(req.Start, req.End),
		Filter:      req.Filter,
		Limit:       req.Limit,
	}

	if req.Filter != nil {
		b.FilterLang = "cql2-json"
	}

	if req.Intersects != nil {
		raw, err := geojson.NewGeometry(req.Intersects).MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("failed to encode intersects geometry: %w", err)
		}
		b.Intersects = raw
	}

	payload, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("failed to encode search request: %w", err)
	}
	return payload, nil
}

// withLimit returns a copy of the request with the page size replaced.
func (req *SearchRequest) withLimit(limit int) *SearchRequest {
	cp := *req
	cp.Limit = limit
	return &cp
}
