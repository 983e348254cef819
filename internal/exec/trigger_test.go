package exec

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rkm/stac-cube/internal/cube"
)

// rampLazy is a two-chunk lazy node whose sample at (y, x) is y*width+x,
// counting every chunk computation.
type rampLazy struct {
	id       string
	label    string
	grid     cube.Grid
	times    []time.Time
	computes atomic.Int64

	failWindow *cube.Window
}

func newRampLazy(t *testing.T, id string) *rampLazy {
	t.Helper()
	grid, err := cube.NewGrid(orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{4, 2}}, 1)
	require.NoError(t, err)

	return &rampLazy{
		id:    id,
		label: "ramp " + id,
		grid:  grid,
		times: []time.Time{
			time.Date(2023, 6, 15, 0, 5, 32, 0, time.UTC),
			time.Date(2023, 6, 16, 0, 5, 32, 0, time.UTC),
		},
	}
}

func (r *rampLazy) ID() string             { return r.id }
func (r *rampLazy) Label() string          { return r.label }
func (r *rampLazy) Grid() cube.Grid        { return r.grid }
func (r *rampLazy) Times() []time.Time     { return r.times }
func (r *rampLazy) Channels() int          { return 1 }
func (r *rampLazy) Windows() []cube.Window { return r.grid.Windows(2, 2) }

func (r *rampLazy) ComputeWindow(_ context.Context, timeIndex int, w cube.Window) (*cube.Chunk, error) {
	r.computes.Add(1)

	if r.failWindow != nil && *r.failWindow == w {
		return nil, fmt.Errorf("simulated fragment failure")
	}

	data := make([]float64, w.W*w.H)
	for y := 0; y < w.H; y++ {
		for x := 0; x < w.W; x++ {
			data[y*w.W+x] = float64((w.Y0+y)*r.grid.Width + (w.X0 + x))
		}
	}
	return &cube.Chunk{Window: w, TimeIndex: timeIndex, Channels: 1, Data: data}, nil
}

func assertRamp(t *testing.T, result *Result) {
	t.Helper()
	for ti := range result.Times {
		for y := 0; y < result.Grid.Height; y++ {
			for x := 0; x < result.Grid.Width; x++ {
				expected := float64(y*result.Grid.Width + x)
				assert.Equal(t, expected, result.At(ti, 0, y, x),
					"time %d sample (%d,%d)", ti, y, x)
			}
		}
	}
}

func TestMaterializeSync(t *testing.T) {
	lazy := newRampLazy(t, "a")
	trigger := New(nil, nil)

	results, err := trigger.Materialize(context.Background(), lazy)
	require.NoError(t, err)
	require.Len(t, results, 1)

	// 2 time slices, 2 windows on the 4x2 grid.
	assert.Equal(t, int64(4), lazy.computes.Load())
	assertRamp(t, results[0])
}

func TestMaterializePersists(t *testing.T) {
	lazy := newRampLazy(t, "a")
	trigger := New(nil, nil)

	first, err := trigger.Materialize(context.Background(), lazy)
	require.NoError(t, err)

	computed := lazy.computes.Load()

	second, err := trigger.Materialize(context.Background(), lazy)
	require.NoError(t, err)

	assert.Equal(t, computed, lazy.computes.Load(), "persisted result should not recompute")
	assert.Same(t, first[0], second[0])

	trigger.Forget(lazy)
	_, err = trigger.Materialize(context.Background(), lazy)
	require.NoError(t, err)
	assert.Greater(t, lazy.computes.Load(), computed, "forgotten result should recompute")
}

func TestMaterializeMultiple(t *testing.T) {
	a := newRampLazy(t, "a")
	b := newRampLazy(t, "b")
	trigger := New(nil, nil)

	results, err := trigger.Materialize(context.Background(), a, b)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assertRamp(t, results[0])
	assertRamp(t, results[1])
}

func TestMaterializeAggregatesErrors(t *testing.T) {
	lazy := newRampLazy(t, "a")
	lazy.failWindow = &cube.Window{X0: 2, Y0: 0, W: 2, H: 2}

	trigger := New(nil, nil)

	_, err := trigger.Materialize(context.Background(), lazy)
	require.Error(t, err)

	// The aggregated error names the failing result and window.
	assert.ErrorContains(t, err, "materialization failed")
	assert.ErrorContains(t, err, "ramp a")
	assert.ErrorContains(t, err, "(2,0 2x2)")
	assert.ErrorContains(t, err, "simulated fragment failure")

	// A failed call persists nothing: the retry recomputes everything.
	computed := lazy.computes.Load()
	lazy.failWindow = nil

	_, err = trigger.Materialize(context.Background(), lazy)
	require.NoError(t, err)
	assert.Greater(t, lazy.computes.Load(), computed)
}

func TestMaterializeNothing(t *testing.T) {
	trigger := New(nil, nil)

	_, err := trigger.Materialize(context.Background())
	assert.Error(t, err)

	_, err = trigger.Materialize(context.Background(), nil)
	assert.Error(t, err)
}

func TestMaterializeOnPool(t *testing.T) {
	pool, err := NewLocalPool(PoolOptions{MinWorkers: 2, MaxWorkers: 4}, nil)
	require.NoError(t, err)
	defer pool.Stop()

	lazy := newRampLazy(t, "a")
	trigger := New(pool.Client(), nil)

	results, err := trigger.Materialize(context.Background(), lazy)
	require.NoError(t, err)
	require.Len(t, results, 1)

	assertRamp(t, results[0])
}

func TestMaterializeOnStoppedPool(t *testing.T) {
	pool, err := NewLocalPool(PoolOptions{MinWorkers: 1, MaxWorkers: 1}, nil)
	require.NoError(t, err)
	pool.Stop()

	trigger := New(pool.Client(), nil)

	_, err = trigger.Materialize(context.Background(), newRampLazy(t, "a"))
	require.Error(t, err)
}

func TestResultAt(t *testing.T) {
	lazy := newRampLazy(t, "a")
	trigger := New(nil, nil)

	results, err := trigger.Materialize(context.Background(), lazy)
	require.NoError(t, err)

	result := results[0]
	assert.Equal(t, 0.0, result.At(0, 0, 0, 0))
	assert.Equal(t, 7.0, result.At(1, 0, 1, 3))
	assert.False(t, math.IsNaN(result.At(0, 0, 1, 2)))
}
