package api

import (
	"encoding/json"
	"image/png"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rkm/stac-cube/internal/cube"
	"github.com/rkm/stac-cube/internal/exec"
	"github.com/rkm/stac-cube/internal/footprint"
)

func testResult(t *testing.T, channels int, data []float64) *exec.Result {
	t.Helper()
	grid, err := cube.NewGrid(orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{2, 2}}, 1)
	require.NoError(t, err)
	require.Len(t, data, channels*grid.Width*grid.Height)

	return &exec.Result{
		ID:       "test-result",
		Label:    "test product",
		Grid:     grid,
		Times:    []time.Time{time.Date(2023, 6, 15, 0, 5, 32, 0, time.UTC)},
		Channels: channels,
		Data:     [][]float64{data},
	}
}

func testServer(t *testing.T) *httptest.Server {
	t.Helper()

	table := footprint.NewTable([]footprint.Row{{
		ID:       "S2A_001",
		Geometry: orb.Point{149.1, -35.3},
		Time:     time.Date(2023, 6, 15, 0, 5, 32, 0, time.UTC),
		Columns:  map[string]any{"eo:cloud_cover": 3.5},
	}})

	products := map[string]*exec.Result{
		"ndvi": testResult(t, 1, []float64{0, 0.5, 1, math.NaN()}),
		"rgb": testResult(t, 4, []float64{
			0, 50, 100, 0, // R
			10, 60, 110, 0, // G
			20, 70, 120, 0, // B
			255, 255, 255, 0, // A
		}),
	}

	handlers := NewHandlers(table, products, nil)
	server := httptest.NewServer(NewRouter(handlers, nil))
	t.Cleanup(server.Close)
	return server
}

func TestHealth(t *testing.T) {
	server := testServer(t)

	resp, err := http.Get(server.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestFootprints(t *testing.T) {
	server := testServer(t)

	resp, err := http.Get(server.URL + "/footprints")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/geo+json", resp.Header.Get("Content-Type"))

	var fc map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&fc))
	assert.Equal(t, "FeatureCollection", fc["type"])

	features, ok := fc["features"].([]any)
	require.True(t, ok)
	require.Len(t, features, 1)

	feature := features[0].(map[string]any)
	props := feature["properties"].(map[string]any)
	assert.Equal(t, "2023-06-15T00:05:32Z", props["datetime"])
	assert.Equal(t, 3.5, props["eo:cloud_cover"])
}

func TestProducts(t *testing.T) {
	server := testServer(t)

	resp, err := http.Get(server.URL + "/products")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Products []struct {
			Name     string   `json:"name"`
			Channels int      `json:"channels"`
			Times    []string `json:"times"`
		} `json:"products"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Products, 2)

	// Sorted by name.
	assert.Equal(t, "ndvi", body.Products[0].Name)
	assert.Equal(t, 1, body.Products[0].Channels)
	assert.Equal(t, "rgb", body.Products[1].Name)
	assert.Equal(t, 4, body.Products[1].Channels)
	assert.Equal(t, []string{"2023-06-15T00:05:32Z"}, body.Products[0].Times)
}

func TestProductSlicePNG(t *testing.T) {
	server := testServer(t)

	for _, name := range []string{"ndvi", "rgb"} {
		t.Run(name, func(t *testing.T) {
			resp, err := http.Get(server.URL + "/products/" + name + "/0.png")
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))

			img, err := png.Decode(resp.Body)
			require.NoError(t, err)
			assert.Equal(t, 2, img.Bounds().Dx())
			assert.Equal(t, 2, img.Bounds().Dy())
		})
	}
}

func TestProductSliceErrors(t *testing.T) {
	server := testServer(t)

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"unknown product", "/products/evi/0.png", http.StatusNotFound},
		{"bad index", "/products/ndvi/first.png", http.StatusBadRequest},
		{"out-of-range index", "/products/ndvi/9.png", http.StatusNotFound},
		{"unknown endpoint", "/nope", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Get(server.URL + tt.path)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.status, resp.StatusCode)

			var apiErr APIError
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&apiErr))
			assert.NotEmpty(t, apiErr.Code)
		})
	}
}

func TestMethodNotAllowed(t *testing.T) {
	server := testServer(t)

	resp, err := http.Post(server.URL+"/products", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
