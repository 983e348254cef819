package cube

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/rkm/stac-cube/internal/config"
)

// Fetcher reads a pixel window of a remote band raster. Implementations
// decode samples to float64 and map the configured no-data value to NaN.
//
// The default fetcher treats each asset as a flat, row-major binary fragment
// aligned to the cube grid, addressed by byte range -- the layout used by
// tiled fragment stores.
type Fetcher interface {
	ReadWindow(ctx context.Context, href string, spec config.BandSpec, grid Grid, w Window) ([]float64, error)
}

// HTTPFetcher fetches fragment windows over HTTP using ranged requests.
type HTTPFetcher struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// NewHTTPFetcher creates the default fragment fetcher.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: slog.Default(),
	}
}

// WithLogger sets a custom logger for the fetcher.
func (f *HTTPFetcher) WithLogger(logger *slog.Logger) *HTTPFetcher {
	f.logger = logger
	return f
}

// ReadWindow fetches the byte range covering the window's rows and decodes
// the requested columns.
func (f *HTTPFetcher) ReadWindow(ctx context.Context, href string, spec config.BandSpec, grid Grid, w Window) ([]float64, error) {
	size, err := SampleSize(spec.DType)
	if err != nil {
		return nil, err
	}

	// Full rows y0..y0+h-1; columns are trimmed after decoding.
	start := int64(w.Y0) * int64(grid.Width) * int64(size)
	end := int64(w.Y0+w.H)*int64(grid.Width)*int64(size) - 1

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, href, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create fragment request: %w", err)
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end))
	req.Header.Set("User-Agent", "stac-cube/1.0")

	f.logger.DebugContext(ctx, "fetching fragment window",
		slog.String("href", href),
		slog.String("window", w.String()),
		slog.Int64("range_start", start),
		slog.Int64("range_end", end),
	)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fragment request failed: %w", err)
	}
	defer resp.Body.Close()

	var raw []byte
	switch resp.StatusCode {
	case http.StatusPartialContent:
		raw, err = io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read fragment response: %w", err)
		}
	case http.StatusOK:
		// Server ignored the range header; slice the full body.
		full, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read fragment response: %w", err)
		}
		if int64(len(full)) < end+1 {
			return nil, fmt.Errorf("fragment %q too short: have %d bytes, need %d", href, len(full), end+1)
		}
		raw = full[start : end+1]
	default:
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("fragment %q returned status %d: %s", href, resp.StatusCode, string(body))
	}

	want := w.H * grid.Width * size
	if len(raw) != want {
		return nil, fmt.Errorf("fragment %q window %s: got %d bytes, want %d", href, w, len(raw), want)
	}

	rows, err := DecodeSamples(raw, spec)
	if err != nil {
		return nil, fmt.Errorf("fragment %q: %w", href, err)
	}

	// Trim to the window's columns.
	out := make([]float64, w.W*w.H)
	for y := 0; y < w.H; y++ {
		copy(out[y*w.W:(y+1)*w.W], rows[y*grid.Width+w.X0:y*grid.Width+w.X0+w.W])
	}
	return out, nil
}

// SampleSize returns the encoded byte width of one sample of the given dtype.
func SampleSize(dtype string) (int, error) {
	switch dtype {
	case "uint8":
		return 1, nil
	case "int16", "uint16":
		return 2, nil
	case "float32":
		return 4, nil
	case "float64":
		return 8, nil
	default:
		return 0, fmt.Errorf("unsupported dtype %q", dtype)
	}
}

// DecodeSamples decodes little-endian raw samples to float64, mapping the
// spec's no-data value to NaN.
func DecodeSamples(raw []byte, spec config.BandSpec) ([]float64, error) {
	size, err := SampleSize(spec.DType)
	if err != nil {
		return nil, err
	}
	if len(raw)%size != 0 {
		return nil, fmt.Errorf("raw length %d is not a multiple of sample size %d", len(raw), size)
	}

	n := len(raw) / size
	out := make([]float64, n)

	for i := 0; i < n; i++ {
		var v float64
		switch spec.DType {
		case "uint8":
			v = float64(raw[i])
		case "int16":
			v = float64(int16(binary.LittleEndian.Uint16(raw[i*2:])))
		case "uint16":
			v = float64(binary.LittleEndian.Uint16(raw[i*2:]))
		case "float32":
			v = float64(math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:])))
		case "float64":
			v = math.Float64frombits(binary.LittleEndian.Uint64(raw[i*8:]))
		}
		if v == spec.NoData {
			v = math.NaN()
		}
		out[i] = v
	}

	return out, nil
}
