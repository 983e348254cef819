package cube

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"

	"github.com/rkm/stac-cube/internal/config"
	"github.com/rkm/stac-cube/internal/footprint"
	"github.com/rkm/stac-cube/internal/stac"
)

// ErrNoItems is returned when a cube is loaded from an empty item set.
var ErrNoItems = errors.New("cannot load a cube from zero items")

// Options configures cube assembly.
type Options struct {
	// Clip is the spatial clip region: a bounding box or polygon. Required.
	Clip orb.Geometry

	// Bands is the per-collection band encoding registry. Required.
	Bands *config.BandRegistry

	// ChunkX, ChunkY are the chunk sizes per spatial axis.
	ChunkX, ChunkY int

	// GroupSolarDay merges items acquired on the same local solar calendar
	// day into a single time slice.
	GroupSolarDay bool

	// Rewrite is the asset URL rewrite hook; nil leaves hrefs untouched.
	Rewrite RewriteFunc

	// AlternatePolicy decides whether a declined rewrite falls back to the
	// default href or fails the load.
	AlternatePolicy AlternatePolicy

	// Fetcher reads fragment windows at materialization time. Required.
	Fetcher Fetcher

	Logger *slog.Logger
}

// sourceAsset is one resolved asset contributing to a band's mosaic.
type sourceAsset struct {
	itemID string
	href   string
	spec   config.BandSpec
}

// timeSlice is one step of the temporal axis: per band, the mosaic sources
// in item order.
type timeSlice struct {
	time    time.Time
	sources map[string][]sourceAsset
}

// Cube is a lazy, chunked, multi-band, multi-temporal array handle. It holds
// no remote resources; data is fetched only when chunks are computed.
type Cube struct {
	id      string
	bands   []string
	grid    Grid
	chunkX  int
	chunkY  int
	slices  []timeSlice
	fetcher Fetcher
	logger  *slog.Logger
}

// Load assembles a virtual cube from normalized items and a band selection.
// No network I/O is performed; the returned cube is a pure description of
// the data to fetch. An empty item set or a band absent from every item's
// asset mapping fails fast.
func Load(items []*stac.Item, bands []string, opts Options) (*Cube, error) {
	if len(items) == 0 {
		return nil, ErrNoItems
	}
	if len(bands) == 0 {
		return nil, fmt.Errorf("no bands requested")
	}
	if opts.Clip == nil {
		return nil, fmt.Errorf("a clip geometry is required")
	}
	if opts.Bands == nil {
		return nil, fmt.Errorf("a band registry is required")
	}
	if opts.Fetcher == nil {
		return nil, fmt.Errorf("a fetcher is required")
	}
	if opts.ChunkX < 1 || opts.ChunkY < 1 {
		return nil, fmt.Errorf("chunk sizes must be positive, got %dx%d", opts.ChunkX, opts.ChunkY)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// Every requested band must appear in at least one item's assets.
	for _, band := range bands {
		found := false
		for _, item := range items {
			if item != nil && item.Assets != nil {
				if _, ok := item.Assets[band]; ok {
					found = true
					break
				}
			}
		}
		if !found {
			return nil, fmt.Errorf("band %q is absent from every item's asset mapping", band)
		}
	}

	resolution, err := commonResolution(items, opts.Bands)
	if err != nil {
		return nil, err
	}

	grid, err := NewGrid(opts.Clip.Bound(), resolution)
	if err != nil {
		return nil, fmt.Errorf("failed to build cube grid: %w", err)
	}

	slices, err := buildSlices(items, bands, opts)
	if err != nil {
		return nil, err
	}

	logger.Debug("assembled virtual cube",
		slog.Int("items", len(items)),
		slog.Int("time_slices", len(slices)),
		slog.Int("bands", len(bands)),
		slog.Int("grid_width", grid.Width),
		slog.Int("grid_height", grid.Height),
	)

	return &Cube{
		id:      uuid.NewString(),
		bands:   append([]string(nil), bands...),
		grid:    grid,
		chunkX:  opts.ChunkX,
		chunkY:  opts.ChunkY,
		slices:  slices,
		fetcher: opts.Fetcher,
		logger:  logger,
	}, nil
}

// commonResolution resolves the grid resolution from the items' collections,
// requiring every collection to be configured and to agree.
func commonResolution(items []*stac.Item, registry *config.BandRegistry) (float64, error) {
	resolution := 0.0
	for _, item := range items {
		if item == nil {
			continue
		}
		cfg := registry.Get(item.Collection)
		if cfg == nil {
			return 0, fmt.Errorf("no band configuration for collection %q", item.Collection)
		}
		if resolution == 0 {
			resolution = cfg.Resolution
			continue
		}
		if cfg.Resolution != resolution {
			return 0, fmt.Errorf("items span collections with differing resolutions (%v and %v)", resolution, cfg.Resolution)
		}
	}
	if resolution == 0 {
		return 0, fmt.Errorf("could not resolve a grid resolution")
	}
	return resolution, nil
}

// buildSlices groups items into time slices and resolves every contributing
// asset href through the rewrite hook.
func buildSlices(items []*stac.Item, bands []string, opts Options) ([]timeSlice, error) {
	type keyed struct {
		key   time.Time
		items []*stac.Item
	}

	groups := make(map[time.Time]*keyed)
	var order []time.Time

	for _, item := range items {
		if item == nil {
			continue
		}

		acquired, ok := stac.Datetime(item)
		if !ok {
			return nil, fmt.Errorf("item %q has no parseable datetime property", item.Id)
		}

		key := acquired
		if opts.GroupSolarDay {
			geom, err := footprint.ParseGeometry(item.Geometry)
			if err != nil {
				return nil, fmt.Errorf("item %q: %w", item.Id, err)
			}
			key = SolarDay(acquired, centroidLon(geom))
		}

		g, ok := groups[key]
		if !ok {
			g = &keyed{key: key}
			groups[key] = g
			order = append(order, key)
		}
		g.items = append(g.items, item)
	}

	sort.Slice(order, func(i, j int) bool { return order[i].Before(order[j]) })

	slices := make([]timeSlice, 0, len(order))
	for _, key := range order {
		g := groups[key]

		s := timeSlice{
			time:    sliceTime(g.items, key),
			sources: make(map[string][]sourceAsset),
		}

		for _, item := range g.items {
			cfg := opts.Bands.Get(item.Collection)
			for _, band := range bands {
				asset, ok := item.Assets[band]
				if !ok || asset == nil {
					continue
				}

				spec, err := cfg.Resolve(band)
				if err != nil {
					return nil, fmt.Errorf("item %q: %w", item.Id, err)
				}

				resolved, err := resolveAsset(opts.Rewrite, opts.AlternatePolicy, Asset{
					Name:      band,
					Href:      asset.Href,
					MediaType: asset.Type,
				})
				if err != nil {
					return nil, fmt.Errorf("item %q: %w", item.Id, err)
				}

				s.sources[band] = append(s.sources[band], sourceAsset{
					itemID: item.Id,
					href:   resolved.Href,
					spec:   *spec,
				})
			}
		}

		slices = append(slices, s)
	}

	return slices, nil
}

// sliceTime picks the earliest acquisition in the group as the slice time.
func sliceTime(items []*stac.Item, fallback time.Time) time.Time {
	earliest := time.Time{}
	for _, item := range items {
		if t, ok := stac.Datetime(item); ok {
			if earliest.IsZero() || t.Before(earliest) {
				earliest = t
			}
		}
	}
	if earliest.IsZero() {
		return fallback
	}
	return earliest
}

// Bands returns the band names in request order.
func (c *Cube) Bands() []string {
	return c.bands
}

// Times returns the temporal axis.
func (c *Cube) Times() []time.Time {
	times := make([]time.Time, len(c.slices))
	for i, s := range c.slices {
		times[i] = s.time
	}
	return times
}

// Grid returns the shared spatial grid.
func (c *Cube) Grid() Grid {
	return c.grid
}

// Windows returns the chunk partition of the grid.
func (c *Cube) Windows() []Window {
	return c.grid.Windows(c.chunkX, c.chunkY)
}

// Band returns the lazy single-band view for the given band name.
func (c *Cube) Band(name string) (*BandView, error) {
	for _, band := range c.bands {
		if band == name {
			return &BandView{
				id:   c.id + "/" + name,
				cube: c,
				band: name,
			}, nil
		}
	}
	return nil, fmt.Errorf("band %q is not part of this cube (have %v)", name, c.bands)
}

// BandView is the lazy handle for one band of a cube.
type BandView struct {
	id   string
	cube *Cube
	band string
}

// ID implements Lazy.
func (b *BandView) ID() string { return b.id }

// Label implements Lazy.
func (b *BandView) Label() string { return "band " + b.band }

// Grid implements Lazy.
func (b *BandView) Grid() Grid { return b.cube.grid }

// Times implements Lazy.
func (b *BandView) Times() []time.Time { return b.cube.Times() }

// Channels implements Lazy.
func (b *BandView) Channels() int { return 1 }

// Windows implements Lazy.
func (b *BandView) Windows() []Window { return b.cube.Windows() }

// ComputeWindow fetches and mosaics the band's sources for one chunk.
// Missing pixels stay NaN; later items in the slice fill gaps left by
// earlier ones.
func (b *BandView) ComputeWindow(ctx context.Context, timeIndex int, w Window) (*Chunk, error) {
	if timeIndex < 0 || timeIndex >= len(b.cube.slices) {
		return nil, fmt.Errorf("time index %d out of range [0,%d)", timeIndex, len(b.cube.slices))
	}

	acc := make([]float64, w.W*w.H)
	for i := range acc {
		acc[i] = math.NaN()
	}

	for _, src := range b.cube.slices[timeIndex].sources[b.band] {
		data, err := b.cube.fetcher.ReadWindow(ctx, src.href, src.spec, b.cube.grid, w)
		if err != nil {
			return nil, fmt.Errorf("band %q item %q: %w", b.band, src.itemID, err)
		}
		if len(data) != len(acc) {
			return nil, fmt.Errorf("band %q item %q: fetcher returned %d samples, want %d", b.band, src.itemID, len(data), len(acc))
		}

		for i, v := range data {
			if math.IsNaN(acc[i]) && !math.IsNaN(v) {
				acc[i] = v
			}
		}
	}

	return &Chunk{
		Window:    w,
		TimeIndex: timeIndex,
		Channels:  1,
		Data:      acc,
	}, nil
}
