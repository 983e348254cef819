package cube

import (
	"testing"

	"github.com/paulmach/orb"
)

func TestNewGrid(t *testing.T) {
	bound := orb.Bound{Min: orb.Point{149.0, -35.5}, Max: orb.Point{149.5, -35.0}}

	grid, err := NewGrid(bound, 0.1)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if grid.Width != 5 || grid.Height != 5 {
		t.Errorf("Expected 5x5 grid, got %dx%d", grid.Width, grid.Height)
	}
}

func TestNewGridErrors(t *testing.T) {
	bound := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1, 1}}

	if _, err := NewGrid(bound, 0); err == nil {
		t.Error("Expected error for zero resolution, got nil")
	}
	if _, err := NewGrid(orb.Bound{Min: orb.Point{1, 1}, Max: orb.Point{0, 0}}, 0.1); err == nil {
		t.Error("Expected error for empty bound, got nil")
	}
}

func TestGridWindows(t *testing.T) {
	bound := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{5, 3}}
	grid, err := NewGrid(bound, 1)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	windows := grid.Windows(2, 2)

	expected := []Window{
		{X0: 0, Y0: 0, W: 2, H: 2},
		{X0: 2, Y0: 0, W: 2, H: 2},
		{X0: 4, Y0: 0, W: 1, H: 2},
		{X0: 0, Y0: 2, W: 2, H: 1},
		{X0: 2, Y0: 2, W: 2, H: 1},
		{X0: 4, Y0: 2, W: 1, H: 1},
	}

	if len(windows) != len(expected) {
		t.Fatalf("Expected %d windows, got %d", len(expected), len(windows))
	}
	for i, want := range expected {
		if windows[i] != want {
			t.Errorf("Window %d: expected %v, got %v", i, want, windows[i])
		}
	}

	// The partition covers every pixel exactly once.
	total := 0
	for _, w := range windows {
		total += w.W * w.H
	}
	if total != grid.Width*grid.Height {
		t.Errorf("Windows cover %d pixels, grid has %d", total, grid.Width*grid.Height)
	}
}

func TestChunkAt(t *testing.T) {
	chunk := &Chunk{
		Window:   Window{W: 2, H: 2},
		Channels: 2,
		Data:     []float64{0, 1, 2, 3, 10, 11, 12, 13},
	}

	if v := chunk.At(0, 1, 0); v != 2 {
		t.Errorf("Expected sample 2, got %v", v)
	}
	if v := chunk.At(1, 0, 1); v != 11 {
		t.Errorf("Expected sample 11, got %v", v)
	}
}

func TestGridEqual(t *testing.T) {
	bound := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1, 1}}
	a, err := NewGrid(bound, 0.5)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	b, err := NewGrid(bound, 0.5)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	c, err := NewGrid(bound, 0.25)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if !a.Equal(b) {
		t.Error("Expected identical grids to be equal")
	}
	if a.Equal(c) {
		t.Error("Expected grids with different resolutions to differ")
	}
}
