package api

import (
	"image/png"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rkm/stac-cube/internal/exec"
	"github.com/rkm/stac-cube/internal/footprint"
)

// Handlers holds the preview server's request handlers and their state: the
// footprint table and the materialized products to serve.
type Handlers struct {
	table    *footprint.Table
	products map[string]*exec.Result
	logger   *slog.Logger
}

// NewHandlers creates the preview handlers.
func NewHandlers(table *footprint.Table, products map[string]*exec.Result, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	if products == nil {
		products = make(map[string]*exec.Result)
	}
	return &Handlers{
		table:    table,
		products: products,
		logger:   logger,
	}
}

// Health returns a liveness response.
// GET /healthz
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Footprints returns the footprint table as a GeoJSON FeatureCollection.
// GET /footprints
func (h *Handlers) Footprints(w http.ResponseWriter, r *http.Request) {
	WriteGeoJSON(w, http.StatusOK, h.table.FeatureCollection())
}

// productInfo describes one registered product.
type productInfo struct {
	Name     string   `json:"name"`
	Label    string   `json:"label"`
	Channels int      `json:"channels"`
	Times    []string `json:"times"`
}

// Products lists the registered products and their time slices.
// GET /products
func (h *Handlers) Products(w http.ResponseWriter, r *http.Request) {
	infos := make([]productInfo, 0, len(h.products))
	for name, result := range h.products {
		times := make([]string, len(result.Times))
		for i, t := range result.Times {
			times[i] = t.UTC().Format(time.RFC3339)
		}
		infos = append(infos, productInfo{
			Name:     name,
			Label:    result.Label,
			Channels: result.Channels,
			Times:    times,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })

	WriteJSON(w, http.StatusOK, map[string]any{"products": infos})
}

// ProductSlice renders one time slice of a product as PNG.
// GET /products/{name}/{index}.png
func (h *Handlers) ProductSlice(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	result, ok := h.products[name]
	if !ok {
		WriteNotFound(w, "product not found: "+name)
		return
	}

	indexParam := strings.TrimSuffix(chi.URLParam(r, "index"), ".png")
	index, err := strconv.Atoi(indexParam)
	if err != nil {
		WriteBadRequest(w, "invalid time slice index: "+indexParam)
		return
	}

	img, err := RenderPNG(result, index)
	if err != nil {
		WriteNotFound(w, err.Error())
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	if err := png.Encode(w, img); err != nil {
		h.logger.Error("failed to encode PNG response",
			slog.String("product", name),
			slog.String("error", err.Error()),
		)
	}
}
