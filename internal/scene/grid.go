// Package scene plans turntable renders: the spherical camera grid, per-frame poses,
// the fixed lighting rig and texture matching. It never talks to the host application.
package scene

import (
	"errors"
	"fmt"
	"math"
)

const (
	// VerticalRange is the elevation sweep in degrees, starting at the horizon.
	VerticalRange = 80.0
	// FullTurn is one horizontal revolution in degrees.
	FullTurn = 360.0
	// ZOffset is added to every camera height after projecting onto the sphere.
	ZOffset = 0.5
)

// ErrTooFewImages is returned for totals that cannot form a grid with at least two rows.
var ErrTooFewImages = errors.New("total images must be at least 2")

// Grid is the sampling lattice derived from the requested frame count.
type Grid struct {
	VSteps int     // rows of elevation
	HSteps int     // columns of azimuth
	VStep  float64 // degrees between rows
	HStep  float64 // degrees between columns
}

// NewGrid sizes the grid: VSteps = ceil(sqrt(n)), HSteps = ceil(n / VSteps).
func NewGrid(totalImages int) (Grid, error) {
	if totalImages < 2 {
		return Grid{}, fmt.Errorf("%w, got %d", ErrTooFewImages, totalImages)
	}

	vSteps := int(math.Ceil(math.Sqrt(float64(totalImages))))
	hSteps := int(math.Ceil(float64(totalImages) / float64(vSteps)))

	return Grid{
		VSteps: vSteps,
		HSteps: hSteps,
		VStep:  VerticalRange / float64(vSteps-1),
		HStep:  FullTurn / float64(hSteps),
	}, nil
}

// Sample walks the grid and calls fn once per frame with its index and angles in degrees.
//
// Azimuth advances first; when it reaches a full turn it wraps and elevation advances.
// The walk stops after totalImages frames, or as soon as elevation exceeds VerticalRange,
// which can be before totalImages when the grid does not divide evenly.
// It returns the number of frames emitted. An error from fn stops the walk.
func (g Grid) Sample(totalImages int, fn func(index int, h, v float64) error) (int, error) {
	h, v := 0.0, 0.0
	index := 0

	for index < totalImages {
		if err := fn(index, h, v); err != nil {
			return index, err
		}
		index++

		h += g.HStep
		if h >= FullTurn {
			h -= FullTurn
			v += g.VStep
			if v > VerticalRange {
				break
			}
		}
	}
	return index, nil
}

// FrameCount is how many frames Sample would emit for totalImages.
func (g Grid) FrameCount(totalImages int) int {
	n, _ := g.Sample(totalImages, func(int, float64, float64) error { return nil })
	return n
}
