// Package derive builds lazy derived products (normalized-difference
// indices, RGB composites) over cube bands. All constructors are pure graph
// building; computation happens chunk by chunk at materialization.
package derive

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/rkm/stac-cube/internal/cube"
)

// NormalizedDifference builds the lazy elementwise index (a-b)/(a+b),
// clipped to [0,1]. A 0/0 pixel propagates NaN; degenerate infinities from
// a zero sum with nonzero operands are clipped into range. NDVI is this
// index over the near-infrared and red bands.
func NormalizedDifference(a, b cube.Lazy) (cube.Lazy, error) {
	if a == nil || b == nil {
		return nil, fmt.Errorf("both operands are required")
	}
	if a.Channels() != 1 || b.Channels() != 1 {
		return nil, fmt.Errorf("normalized difference requires single-channel operands")
	}
	if err := checkAligned(a, b); err != nil {
		return nil, err
	}

	return &ratioIndex{
		id:    uuid.NewString(),
		label: fmt.Sprintf("normalized difference of (%s, %s)", a.Label(), b.Label()),
		a:     a,
		b:     b,
	}, nil
}

// checkAligned verifies two lazy results share grid and time axes.
func checkAligned(a, b cube.Lazy) error {
	if !a.Grid().Equal(b.Grid()) {
		return fmt.Errorf("operands have mismatched grids")
	}

	at, bt := a.Times(), b.Times()
	if len(at) != len(bt) {
		return fmt.Errorf("operands have mismatched time axes: %d vs %d slices", len(at), len(bt))
	}
	for i := range at {
		if !at[i].Equal(bt[i]) {
			return fmt.Errorf("operands have mismatched time axes at slice %d", i)
		}
	}
	return nil
}

type ratioIndex struct {
	id    string
	label string
	a, b  cube.Lazy
}

func (r *ratioIndex) ID() string             { return r.id }
func (r *ratioIndex) Label() string          { return r.label }
func (r *ratioIndex) Grid() cube.Grid        { return r.a.Grid() }
func (r *ratioIndex) Times() []time.Time     { return r.a.Times() }
func (r *ratioIndex) Channels() int          { return 1 }
func (r *ratioIndex) Windows() []cube.Window { return r.a.Windows() }

func (r *ratioIndex) ComputeWindow(ctx context.Context, timeIndex int, w cube.Window) (*cube.Chunk, error) {
	ca, err := r.a.ComputeWindow(ctx, timeIndex, w)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", r.a.Label(), err)
	}
	cb, err := r.b.ComputeWindow(ctx, timeIndex, w)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", r.b.Label(), err)
	}

	out := make([]float64, len(ca.Data))
	for i := range out {
		// 0/0 yields NaN, which propagates through the clip untouched.
		v := (ca.Data[i] - cb.Data[i]) / (ca.Data[i] + cb.Data[i])
		out[i] = clip01(v)
	}

	return &cube.Chunk{
		Window:    w,
		TimeIndex: timeIndex,
		Channels:  1,
		Data:      out,
	}, nil
}

func clip01(v float64) float64 {
	if math.IsNaN(v) {
		return v
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
