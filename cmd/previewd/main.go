// previewd runs the pipeline once and serves the results over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rkm/stac-cube/internal/config"
	"github.com/rkm/stac-cube/internal/pipeline"
	"github.com/rkm/stac-cube/pkg/server"
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
		usePool      = flag.Bool("pool", true, "materialize on a local worker pool")
		rewrite      = flag.String("rewrite-scheme", "", "rewrite object-store hrefs to this scheme, e.g. s3")
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

	logger.Info("starting previewd",
		"host", cfg.Preview.Host,
		"port", cfg.Preview.Port,
	)

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

	preview, err := server.New(server.Options{
		Table:    out.Table,
		Products: out.Products,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create preview server: %w", err)
	}

	httpServer := &http.Server{
		Addr:         cfg.Preview.Address(),
		Handler:      preview.Router(),
		ReadTimeout:  cfg.Preview.ReadTimeout,
		WriteTimeout: cfg.Preview.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Preview.ShutdownTimeout)
	defer cancel()

	logger.Info("shutting down server", "timeout", cfg.Preview.ShutdownTimeout)
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	logger.Info("server stopped")
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
