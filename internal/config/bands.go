package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// BandSpec describes how the raster data behind one asset pattern is encoded.
type BandSpec struct {
	// Pattern is a wildcard matched against asset/band names, e.g. "B0[234]"
	// or "red".
	Pattern string `json:"pattern"`
	// DType is the sample encoding: "uint8", "int16", "uint16", "float32"
	// or "float64".
	DType string `json:"dtype"`
	// NoData is the sample value marking missing pixels.
	NoData float64 `json:"nodata"`
	// Unit is the physical unit of decoded samples, e.g. "reflectance".
	Unit string `json:"unit,omitempty"`
}

// CollectionBands holds the band encoding configuration for one collection.
// This is typically loaded from JSON files in the bands directory.
type CollectionBands struct {
	Collection string `json:"collection"`
	// Resolution is the ground sample distance of the cube grid, in the
	// units of the clip geometry's CRS (degrees for EPSG:4326 input).
	Resolution float64    `json:"resolution"`
	Bands      []BandSpec `json:"bands"`
}

// Resolve returns the spec whose pattern matches the given band name.
// Patterns use path.Match syntax; the first declared match wins.
func (c *CollectionBands) Resolve(band string) (*BandSpec, error) {
	for i := range c.Bands {
		ok, err := path.Match(c.Bands[i].Pattern, band)
		if err != nil {
			return nil, fmt.Errorf("invalid band pattern %q: %w", c.Bands[i].Pattern, err)
		}
		if ok {
			return &c.Bands[i], nil
		}
	}
	return nil, fmt.Errorf("no band configuration matches %q in collection %q", band, c.Collection)
}

// BandRegistry holds per-collection band configurations indexed by collection ID.
type BandRegistry struct {
	collections map[string]*CollectionBands
}

// NewBandRegistry creates a new empty band registry.
func NewBandRegistry() *BandRegistry {
	return &BandRegistry{
		collections: make(map[string]*CollectionBands),
	}
}

// LoadBands loads band definitions from JSON files in the specified directory.
// Only files with a .json extension are processed.
func LoadBands(bandsDir string) (*BandRegistry, error) {
	registry := NewBandRegistry()

	info, err := os.Stat(bandsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to access bands directory %q: %w", bandsDir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("bands path %q is not a directory", bandsDir)
	}

	entries, err := os.ReadDir(bandsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read bands directory %q: %w", bandsDir, err)
	}

	loadedCount := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		filename := entry.Name()
		if !strings.HasSuffix(strings.ToLower(filename), ".json") {
			continue
		}

		filePath := filepath.Join(bandsDir, filename)
		bands, err := loadBandsFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("failed to load band definitions from %q: %w", filePath, err)
		}

		if err := registry.Add(bands); err != nil {
			return nil, fmt.Errorf("failed to register band definitions from %q: %w", filePath, err)
		}

		loadedCount++
	}

	if loadedCount == 0 {
		return nil, fmt.Errorf("no band definition files found in %q", bandsDir)
	}

	return registry, nil
}

// loadBandsFile loads a single collection's band configuration from a JSON file.
func loadBandsFile(filePath string) (*CollectionBands, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var bands CollectionBands
	if err := json.Unmarshal(data, &bands); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	if err := validateBands(&bands); err != nil {
		return nil, fmt.Errorf("invalid band configuration: %w", err)
	}

	return &bands, nil
}

var validDTypes = map[string]bool{
	"uint8":   true,
	"int16":   true,
	"uint16":  true,
	"float32": true,
	"float64": true,
}

// validateBands checks that a collection band configuration is valid.
func validateBands(c *CollectionBands) error {
	if c.Collection == "" {
		return fmt.Errorf("collection ID is required")
	}

	if c.Resolution <= 0 {
		return fmt.Errorf("collection resolution must be positive, got %v", c.Resolution)
	}

	if len(c.Bands) == 0 {
		return fmt.Errorf("collection must define at least one band")
	}

	for i, b := range c.Bands {
		if b.Pattern == "" {
			return fmt.Errorf("bands[%d]: pattern is required", i)
		}
		if _, err := path.Match(b.Pattern, "probe"); err != nil {
			return fmt.Errorf("bands[%d]: invalid pattern %q: %w", i, b.Pattern, err)
		}
		if !validDTypes[b.DType] {
			return fmt.Errorf("bands[%d]: invalid dtype %q", i, b.DType)
		}
	}

	return nil
}

// Add registers a collection's band configuration in the registry.
// Returns an error if the collection is already registered.
func (r *BandRegistry) Add(bands *CollectionBands) error {
	if bands == nil {
		return fmt.Errorf("cannot add nil band configuration")
	}

	if _, exists := r.collections[bands.Collection]; exists {
		return fmt.Errorf("band configuration for collection %q already exists", bands.Collection)
	}

	r.collections[bands.Collection] = bands
	return nil
}

// Get retrieves a collection's band configuration by collection ID.
// Returns nil if the collection does not exist.
func (r *BandRegistry) Get(collection string) *CollectionBands {
	return r.collections[collection]
}

// Has checks if band configuration exists for the given collection ID.
func (r *BandRegistry) Has(collection string) bool {
	_, exists := r.collections[collection]
	return exists
}

// IDs returns all configured collection IDs.
func (r *BandRegistry) IDs() []string {
	ids := make([]string, 0, len(r.collections))
	for id := range r.collections {
		ids = append(ids, id)
	}
	return ids
}

// Count returns the number of configured collections.
func (r *BandRegistry) Count() int {
	return len(r.collections)
}
