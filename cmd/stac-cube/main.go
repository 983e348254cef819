// stac-cube batch pipeline entry point
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"image/png"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rkm/stac-cube/internal/api"
	"github.com/rkm/stac-cube/internal/config"
	"github.com/rkm/stac-cube/internal/pipeline"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		aoiPath      = flag.String("aoi", "", "path to the AOI GeoJSON file (required)")
		collections  = flag.String("collections", "sentinel-2-l2a", "comma-separated catalog collections")
		bands        = flag.String("bands", "red,green,blue,nir", "comma-separated cube bands")
		nirBand      = flag.String("nir", "nir", "band feeding the index numerator")
		redBand      = flag.String("red", "red", "band feeding the index denominator")
		rgbBands     = flag.String("rgb", "red,green,blue", "three bands for the composite, comma-separated")
		startStr     = flag.String("start", "", "search interval start (RFC3339)")
		endStr       = flag.String("end", "", "search interval end (RFC3339)")
		cloudCover   = flag.Float64("cloud-cover", 10, "maximum eo:cloud_cover percent; negative disables")
		compositeMin = flag.Float64("composite-min", 0, "composite clamp minimum")
		compositeMax = flag.Float64("composite-max", 3000, "composite clamp maximum")
		usePool      = flag.Bool("pool", false, "materialize on a local worker pool")
		rewrite      = flag.String("rewrite-scheme", "", "rewrite object-store hrefs to this scheme, e.g. s3")
		outDir       = flag.String("out", "./out", "output directory")
	)
	flag.Parse()

	if *aoiPath == "" {
		return fmt.Errorf("-aoi is required")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := setupLogger(cfg.Logging.Level, cfg.Logging.Format)

	params := pipeline.Params{
		AOIPath:       *aoiPath,
		Collections:   splitList(*collections),
		Bands:         splitList(*bands),
		NIRBand:       *nirBand,
		RedBand:       *redBand,
		CompositeMin:  *compositeMin,
		CompositeMax:  *compositeMax,
		MaxCloudCover: *cloudCover,
		UsePool:       *usePool,
		RewriteScheme: *rewrite,
	}

	rgb := splitList(*rgbBands)
	if len(rgb) != 3 {
		return fmt.Errorf("-rgb must name exactly three bands, got %d", len(rgb))
	}
	copy(params.RGBBands[:], rgb)

	if *startStr != "" {
		t, err := time.Parse(time.RFC3339, *startStr)
		if err != nil {
			return fmt.Errorf("invalid -start: %w", err)
		}
		params.Start = &t
	}
	if *endStr != "" {
		t, err := time.Parse(time.RFC3339, *endStr)
		if err != nil {
			return fmt.Errorf("invalid -end: %w", err)
		}
		params.End = &t
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out, err := pipeline.Run(ctx, cfg, params, logger)
	if err != nil {
		return err
	}

	if err := writeOutputs(out, *outDir); err != nil {
		return err
	}

	logger.Info("pipeline completed",
		"items", out.Table.Len(),
		"products", len(out.Products),
		"out_dir", *outDir,
	)
	return nil
}

// writeOutputs writes the footprint table as GeoJSON and every product time
// slice as PNG.
func writeOutputs(out *pipeline.Output, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	fc, err := json.MarshalIndent(out.Table.FeatureCollection(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode footprints: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "footprints.geojson"), fc, 0o644); err != nil {
		return fmt.Errorf("failed to write footprints: %w", err)
	}

	for name, result := range out.Products {
		for i := range result.Times {
			img, err := api.RenderPNG(result, i)
			if err != nil {
				return fmt.Errorf("failed to render %s slice %d: %w", name, i, err)
			}

			path := filepath.Join(dir, fmt.Sprintf("%s_%02d.png", name, i))
			f, err := os.Create(path)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", path, err)
			}
			if err := png.Encode(f, img); err != nil {
				f.Close()
				return fmt.Errorf("failed to encode %s: %w", path, err)
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("failed to close %s: %w", path, err)
			}
		}
	}

	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
