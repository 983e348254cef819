package api

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/rkm/stac-cube/internal/exec"
)

// RenderPNG renders one time slice of a materialized result to an image.
// Four-channel composites map directly onto NRGBA; single-channel products
// render as grayscale with NaN pixels black.
func RenderPNG(r *exec.Result, timeIndex int) (image.Image, error) {
	if timeIndex < 0 || timeIndex >= len(r.Times) {
		return nil, fmt.Errorf("time index %d out of range [0,%d)", timeIndex, len(r.Times))
	}

	switch r.Channels {
	case 4:
		return renderNRGBA(r, timeIndex), nil
	case 1:
		return renderGray(r, timeIndex), nil
	default:
		return nil, fmt.Errorf("cannot render %d-channel result", r.Channels)
	}
}

func renderNRGBA(r *exec.Result, timeIndex int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, r.Grid.Width, r.Grid.Height))
	for y := 0; y < r.Grid.Height; y++ {
		for x := 0; x < r.Grid.Width; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: sampleByte(r.At(timeIndex, 0, y, x)),
				G: sampleByte(r.At(timeIndex, 1, y, x)),
				B: sampleByte(r.At(timeIndex, 2, y, x)),
				A: sampleByte(r.At(timeIndex, 3, y, x)),
			})
		}
	}
	return img
}

func renderGray(r *exec.Result, timeIndex int) *image.Gray {
	lo, hi := sliceRange(r, timeIndex)

	// Products already scaled to [0,1] (ratio indices) keep their scale so
	// renders are comparable across time slices.
	if lo >= 0 && hi <= 1 {
		lo, hi = 0, 1
	}
	if hi <= lo {
		hi = lo + 1
	}

	img := image.NewGray(image.Rect(0, 0, r.Grid.Width, r.Grid.Height))
	for y := 0; y < r.Grid.Height; y++ {
		for x := 0; x < r.Grid.Width; x++ {
			v := r.At(timeIndex, 0, y, x)
			if math.IsNaN(v) {
				img.SetGray(x, y, color.Gray{Y: 0})
				continue
			}
			img.SetGray(x, y, color.Gray{Y: sampleByte((v - lo) / (hi - lo) * 255)})
		}
	}
	return img
}

// sliceRange returns the finite min and max of one time slice.
func sliceRange(r *exec.Result, timeIndex int) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range r.Data[timeIndex] {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if lo > hi {
		return 0, 1
	}
	return lo, hi
}

func sampleByte(v float64) uint8 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
