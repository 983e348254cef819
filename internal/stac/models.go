// Package stac provides STAC API types and utilities, wrapping planetlabs/go-stac
// for core types and adding item-search response types.
package stac

import (
	"time"

	gostac "github.com/planetlabs/go-stac"
)

// Re-export core types from planetlabs/go-stac for convenience
type (
	Item       = gostac.Item
	Collection = gostac.Collection
	Asset      = gostac.Asset
	Link       = gostac.Link
)

// ItemCollection represents a STAC ItemCollection (GeoJSON FeatureCollection)
// This extends the standard FeatureCollection with STAC-specific pagination fields.
type ItemCollection struct {
	Type           string         `json:"type"` // "FeatureCollection"
	Features       []*gostac.Item `json:"features"`
	Links          []*gostac.Link `json:"links"`
	NumberMatched  *int           `json:"numberMatched,omitempty"`
	NumberReturned int            `json:"numberReturned"`
	Context        *Context       `json:"context,omitempty"`
}

// Context provides additional metadata about the response (STAC Context extension)
type Context struct {
	Returned int  `json:"returned"`
	Limit    int  `json:"limit,omitempty"`
	Matched  *int `json:"matched,omitempty"`
}

// NewItemCollection creates a new ItemCollection with the given items.
func NewItemCollection(items []*gostac.Item) *ItemCollection {
	return &ItemCollection{
		Type:           "FeatureCollection",
		Features:       items,
		Links:          make([]*gostac.Link, 0),
		NumberReturned: len(items),
	}
}

// NextLink returns the pagination link with rel="next", or nil if the
// response is the last page.
func (ic *ItemCollection) NextLink() *gostac.Link {
	for _, link := range ic.Links {
		if link != nil && link.Rel == "next" {
			return link
		}
	}
	return nil
}

// Matched returns the total match count reported by the catalog, preferring
// the top-level numberMatched field over the context extension. The second
// return value is false when the catalog reported neither.
func (ic *ItemCollection) Matched() (int, bool) {
	if ic.NumberMatched != nil {
		return *ic.NumberMatched, true
	}
	if ic.Context != nil && ic.Context.Matched != nil {
		return *ic.Context.Matched, true
	}
	return 0, false
}

// NewItem creates a new STAC Item with the given ID and collection.
func NewItem(id, collection, version string) *gostac.Item {
	return &gostac.Item{
		Version:    version,
		Id:         id,
		Collection: collection,
		Properties: make(map[string]any),
		Assets:     make(map[string]*gostac.Asset),
		Links:      make([]*gostac.Link, 0),
	}
}

// Datetime returns the item's acquisition timestamp parsed from the
// "datetime" property, normalized to UTC. The second return value is false
// when the property is absent or not a parseable timestamp.
func Datetime(item *gostac.Item) (time.Time, bool) {
	if item == nil || item.Properties == nil {
		return time.Time{}, false
	}
	raw, ok := item.Properties["datetime"]
	if !ok || raw == nil {
		return time.Time{}, false
	}
	switch v := raw.(type) {
	case time.Time:
		return v.UTC(), true
	case string:
		t, err := ParseTimestamp(v)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	default:
		return time.Time{}, false
	}
}
