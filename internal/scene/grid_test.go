package scene

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGrid(t *testing.T) {
	tests := []struct {
		n              int
		vSteps, hSteps int
		vStep, hStep   float64
	}{
		{2, 2, 1, 80, 360},
		{5, 3, 2, 40, 180},
		{10, 4, 3, 80.0 / 3, 120},
		{17, 5, 4, 20, 90},
		{100, 10, 10, 80.0 / 9, 36},
	}

	for _, tt := range tests {
		g, err := NewGrid(tt.n)
		require.NoError(t, err, "n=%d", tt.n)
		assert.Equal(t, tt.vSteps, g.VSteps, "n=%d", tt.n)
		assert.Equal(t, tt.hSteps, g.HSteps, "n=%d", tt.n)
		assert.InDelta(t, tt.vStep, g.VStep, 1e-12, "n=%d", tt.n)
		assert.InDelta(t, tt.hStep, g.HStep, 1e-12, "n=%d", tt.n)
	}
}

func TestNewGrid_TooFew(t *testing.T) {
	for _, n := range []int{-3, 0, 1} {
		_, err := NewGrid(n)
		assert.ErrorIs(t, err, ErrTooFewImages, "n=%d", n)
	}
}

func TestSample_Order(t *testing.T) {
	g, err := NewGrid(10)
	require.NoError(t, err)

	type frame struct {
		idx  int
		h, v float64
	}
	var got []frame
	n, err := g.Sample(10, func(idx int, h, v float64) error {
		got = append(got, frame{idx, h, v})
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	require.Len(t, got, 10)

	// Azimuth runs through a full row before elevation moves.
	expected := []struct{ h, v float64 }{
		{0, 0}, {120, 0}, {240, 0},
		{0, 80.0 / 3}, {120, 80.0 / 3}, {240, 80.0 / 3},
		{0, 160.0 / 3}, {120, 160.0 / 3}, {240, 160.0 / 3},
		{0, 80},
	}
	for i, e := range expected {
		assert.Equal(t, i, got[i].idx)
		assert.InDelta(t, e.h, got[i].h, 1e-9, "frame %d azimuth", i)
		assert.InDelta(t, e.v, got[i].v, 1e-9, "frame %d elevation", i)
	}
}

func TestSample_EmitsRequestedCount(t *testing.T) {
	for _, n := range []int{2, 3, 5, 10, 17, 50, 100} {
		g, err := NewGrid(n)
		require.NoError(t, err)
		assert.Equal(t, n, g.FrameCount(n), "n=%d", n)
	}
}

func TestSample_EarlyCutoff(t *testing.T) {
	// Totals just above a square leave the last row incomplete and elevation
	// passes the top of the sweep before the count is reached.
	tests := []struct{ n, emitted int }{
		{171, 170},
		{182, 170},
		{183, 182},
		{190, 182},
	}
	for _, tt := range tests {
		g, err := NewGrid(tt.n)
		require.NoError(t, err)
		assert.Equal(t, tt.emitted, g.FrameCount(tt.n), "n=%d", tt.n)
	}
}

func TestSample_NeverExceedsRange(t *testing.T) {
	for n := 2; n <= 400; n++ {
		g, err := NewGrid(n)
		require.NoError(t, err)

		emitted, err := g.Sample(n, func(_ int, h, v float64) error {
			if h < 0 || h >= FullTurn {
				return errors.New("azimuth out of range")
			}
			if v < 0 || v > VerticalRange+1e-9 {
				return errors.New("elevation out of range")
			}
			return nil
		})
		require.NoError(t, err, "n=%d", n)
		assert.LessOrEqual(t, emitted, n, "n=%d", n)
	}
}

func TestSample_StopsOnError(t *testing.T) {
	g, err := NewGrid(10)
	require.NoError(t, err)

	boom := errors.New("render failed")
	n, err := g.Sample(10, func(idx int, _, _ float64) error {
		if idx == 4 {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 4, n)
}
