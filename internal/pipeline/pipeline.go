// Package pipeline wires the search, normalize, load, derive, and
// materialize stages into one run.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rkm/stac-cube/internal/catalog"
	"github.com/rkm/stac-cube/internal/config"
	"github.com/rkm/stac-cube/internal/cube"
	"github.com/rkm/stac-cube/internal/derive"
	"github.com/rkm/stac-cube/internal/exec"
	"github.com/rkm/stac-cube/internal/footprint"
	"github.com/rkm/stac-cube/pkg/aoi"
)

// Params selects what one pipeline run searches for and derives.
type Params struct {
	// AOIPath is the GeoJSON file holding the area of interest.
	AOIPath string

	// Collections are the catalog collections to search.
	Collections []string

	// Bands are the asset names loaded into the cube.
	Bands []string

	// NIRBand and RedBand feed the normalized-difference index (NDVI).
	NIRBand string
	RedBand string

	// RGBBands assign bands to the red, green, and blue channels.
	RGBBands [3]string

	// CompositeMin and CompositeMax are the composite clamp range.
	CompositeMin float64
	CompositeMax float64

	// Temporal search interval; either end may be nil.
	Start *time.Time
	End   *time.Time

	// MaxCloudCover filters items by eo:cloud_cover; negative disables.
	MaxCloudCover float64

	// UsePool materializes on a provisioned local worker pool.
	UsePool bool

	// PoolEnv is propagated to pool workers for credential passthrough.
	PoolEnv map[string]string

	// RewriteScheme swaps object-store https hrefs for this storage scheme
	// (e.g. "s3"); empty leaves hrefs untouched.
	RewriteScheme string
}

// Output is the result of one pipeline run.
type Output struct {
	Table    *footprint.Table
	Products map[string]*exec.Result
}

// Run executes the pipeline: search the catalog over the AOI, normalize the
// matched items into a footprint table, assemble the virtual cube, derive
// NDVI and an RGB composite, and materialize both. Zero matched items is a
// valid outcome: the returned output holds an empty table and no products.
func Run(ctx context.Context, cfg *config.Config, params Params, logger *slog.Logger) (*Output, error) {
	if logger == nil {
		logger = slog.Default()
	}

	clip, err := aoi.ReadFile(params.AOIPath)
	if err != nil {
		return nil, err
	}

	client := catalog.NewClient(cfg.Catalog.BaseURL, cfg.Catalog.Timeout).
		WithLogger(logger).
		WithMaxPages(cfg.Search.MaxPages)

	req := &catalog.SearchRequest{
		Collections: params.Collections,
		Intersects:  clip,
		Start:       params.Start,
		End:         params.End,
		Limit:       cfg.Search.Limit,
	}
	if params.MaxCloudCover >= 0 {
		req.Filter = catalog.MaxCloudCover(params.MaxCloudCover)
	}

	items, err := client.FetchAll(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("catalog search failed: %w", err)
	}

	table, err := footprint.Normalize(items)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize items: %w", err)
	}

	logger.Info("catalog search completed",
		slog.Int("items", table.Len()),
		slog.Any("collections", params.Collections),
	)

	if table.Len() == 0 {
		return &Output{Table: table, Products: map[string]*exec.Result{}}, nil
	}

	registry, err := config.LoadBands(cfg.Cube.BandsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load band configuration: %w", err)
	}

	policy, err := cube.ParseAlternatePolicy(cfg.Cube.AlternatePolicy)
	if err != nil {
		return nil, err
	}

	opts := cube.Options{
		Clip:            clip,
		Bands:           registry,
		ChunkX:          cfg.Cube.ChunkX,
		ChunkY:          cfg.Cube.ChunkY,
		GroupSolarDay:   cfg.Cube.GroupSolarDay,
		AlternatePolicy: policy,
		Fetcher:         cube.NewHTTPFetcher(cfg.Catalog.Timeout).WithLogger(logger),
		Logger:          logger,
	}
	if params.RewriteScheme != "" {
		opts.Rewrite = cube.ProtocolRewriter(params.RewriteScheme)
	}

	dataCube, err := cube.Load(items, params.Bands, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to load cube: %w", err)
	}

	nir, err := dataCube.Band(params.NIRBand)
	if err != nil {
		return nil, err
	}
	red, err := dataCube.Band(params.RedBand)
	if err != nil {
		return nil, err
	}

	ndvi, err := derive.NormalizedDifference(nir, red)
	if err != nil {
		return nil, fmt.Errorf("failed to build index: %w", err)
	}

	channels := make([]cube.Lazy, 3)
	for i, band := range params.RGBBands {
		view, err := dataCube.Band(band)
		if err != nil {
			return nil, err
		}
		channels[i] = view
	}

	rgb, err := derive.RGBComposite(channels[0], channels[1], channels[2], derive.CompositeOptions{
		Min: params.CompositeMin,
		Max: params.CompositeMax,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build composite: %w", err)
	}

	var poolClient *exec.Client
	if params.UsePool {
		pool, err := exec.NewLocalPool(exec.PoolOptions{
			MinWorkers: cfg.Pool.MinWorkers,
			MaxWorkers: cfg.Pool.MaxWorkers,
			Env:        params.PoolEnv,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to provision worker pool: %w", err)
		}
		defer pool.Stop()
		poolClient = pool.Client()
	}

	trigger := exec.New(poolClient, logger)

	results, err := trigger.Materialize(ctx, ndvi, rgb)
	if err != nil {
		return nil, err
	}

	logger.Info("materialization completed",
		slog.Int("time_slices", len(results[0].Times)),
	)

	return &Output{
		Table: table,
		Products: map[string]*exec.Result{
			"ndvi": results[0],
			"rgb":  results[1],
		},
	}, nil
}
