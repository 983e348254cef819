// Package server provides a public API for embedding the stac-cube preview
// server in another application.
package server

import (
	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/rkm/stac-cube/internal/api"
	"github.com/rkm/stac-cube/internal/exec"
	"github.com/rkm/stac-cube/internal/footprint"
)

// Options configures the preview server.
type Options struct {
	// Table is the footprint table served at /footprints (required).
	Table *footprint.Table

	// Products are the materialized results served at /products, keyed by
	// the name exposed in URLs.
	Products map[string]*exec.Result

	// Logger is the slog logger to use.
	// Default: slog.Default()
	Logger *slog.Logger
}

// Server is a preview server that can be embedded in another application.
type Server struct {
	router chi.Router
}

// New creates a new preview server with the given options.
func New(opts Options) (*Server, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Table == nil {
		opts.Table = footprint.NewTable(nil)
	}

	handlers := api.NewHandlers(opts.Table, opts.Products, opts.Logger)
	router := api.NewRouter(handlers, opts.Logger)

	return &Server{router: router}, nil
}

// Router returns the chi.Router for mounting in another application.
func (s *Server) Router() chi.Router {
	return s.router
}
