// Package cube assembles lazy, chunked, multi-band, multi-temporal arrays
// from normalized catalog items. Construction is pure graph building; remote
// data is only read when a chunk is computed during materialization.
package cube

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/paulmach/orb"
)

// Window is a pixel-space rectangle within the cube grid.
type Window struct {
	X0, Y0 int
	W, H   int
}

func (w Window) String() string {
	return fmt.Sprintf("(%d,%d %dx%d)", w.X0, w.Y0, w.W, w.H)
}

// Chunk is one computed block of data: Channels planes of W*H samples for a
// single time slice. Data is channel-major: Data[c*W*H + y*W + x].
type Chunk struct {
	Window    Window
	TimeIndex int
	Channels  int
	Data      []float64
}

// At returns the sample at channel ch, window-relative row y, column x.
func (c *Chunk) At(ch, y, x int) float64 {
	return c.Data[ch*c.Window.W*c.Window.H+y*c.Window.W+x]
}

// Grid is the spatial raster grid shared by every band of a cube: the clip
// bound discretized at the collection's resolution.
type Grid struct {
	Bound      orb.Bound
	Resolution float64
	Width      int
	Height     int
}

// NewGrid discretizes a clip bound at the given resolution.
func NewGrid(bound orb.Bound, resolution float64) (Grid, error) {
	if resolution <= 0 {
		return Grid{}, fmt.Errorf("resolution must be positive, got %v", resolution)
	}
	if bound.IsEmpty() {
		return Grid{}, fmt.Errorf("clip bound is empty")
	}

	width := int(math.Ceil((bound.Max[0] - bound.Min[0]) / resolution))
	height := int(math.Ceil((bound.Max[1] - bound.Min[1]) / resolution))
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}

	return Grid{
		Bound:      bound,
		Resolution: resolution,
		Width:      width,
		Height:     height,
	}, nil
}

// Windows partitions the grid into chunks of at most chunkX by chunkY pixels.
func (g Grid) Windows(chunkX, chunkY int) []Window {
	var windows []Window
	for y := 0; y < g.Height; y += chunkY {
		h := chunkY
		if y+h > g.Height {
			h = g.Height - y
		}
		for x := 0; x < g.Width; x += chunkX {
			w := chunkX
			if x+w > g.Width {
				w = g.Width - x
			}
			windows = append(windows, Window{X0: x, Y0: y, W: w, H: h})
		}
	}
	return windows
}

// Equal reports whether two grids describe the same raster.
func (g Grid) Equal(other Grid) bool {
	return g.Width == other.Width &&
		g.Height == other.Height &&
		g.Resolution == other.Resolution &&
		g.Bound == other.Bound
}

// Lazy is a deferred computation over the cube grid. Implementations must be
// pure: ComputeWindow may fetch remote data for leaf nodes but must not
// mutate shared state, so chunks can be evaluated concurrently and in any
// order.
type Lazy interface {
	// ID uniquely identifies this graph node for persist caching.
	ID() string
	// Label names the node in errors and logs.
	Label() string
	// Grid returns the shared spatial grid.
	Grid() Grid
	// Times returns the temporal axis.
	Times() []time.Time
	// Channels returns the number of sample planes per pixel.
	Channels() int
	// Windows returns the chunk partition of the grid.
	Windows() []Window
	// ComputeWindow evaluates one chunk of one time slice.
	ComputeWindow(ctx context.Context, timeIndex int, w Window) (*Chunk, error)
}
