package scene

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
)

func deg(r float64) float64 { return r * 180 / math.Pi }

// rotationFromEuler builds R = Rz(c) * Ry(b) * Rx(a).
func rotationFromEuler(e [3]float64) [3][3]float64 {
	sa, ca := math.Sincos(e[0])
	sb, cb := math.Sincos(e[1])
	sc, cc := math.Sincos(e[2])
	return [3][3]float64{
		{cc * cb, cc*sb*sa - sc*ca, cc*sb*ca + sc*sa},
		{sc * cb, sc*sb*sa + cc*ca, sc*sb*ca - cc*sa},
		{-sb, cb * sa, cb * ca},
	}
}

func TestBoundingBoxCentroid(t *testing.T) {
	offset := r3.Vector{X: 3, Y: -2, Z: 7}
	var corners []r3.Vector
	for _, x := range []float64{0, 1} {
		for _, y := range []float64{0, 1} {
			for _, z := range []float64{0, 1} {
				corners = append(corners, r3.Vector{X: x, Y: y, Z: z}.Add(offset))
			}
		}
	}

	c := BoundingBoxCentroid(corners)
	assert.InDelta(t, 3.5, c.X, 1e-12)
	assert.InDelta(t, -1.5, c.Y, 1e-12)
	assert.InDelta(t, 7.5, c.Z, 1e-12)

	assert.Equal(t, r3.Vector{}, BoundingBoxCentroid(nil))
}

func TestCameraPosition(t *testing.T) {
	center := r3.Vector{X: 1, Y: 2, Z: 3}

	p := CameraPosition(center, 0, 0, 5, ZOffset)
	assert.InDelta(t, 6, p.X, 1e-12)
	assert.InDelta(t, 2, p.Y, 1e-12)
	assert.InDelta(t, 3.5, p.Z, 1e-12)

	p = CameraPosition(center, 90, 0, 5, ZOffset)
	assert.InDelta(t, 1, p.X, 1e-12)
	assert.InDelta(t, 7, p.Y, 1e-12)
	assert.InDelta(t, 3.5, p.Z, 1e-12)

	p = CameraPosition(center, 0, 90, 5, 0)
	assert.InDelta(t, 1, p.X, 1e-12)
	assert.InDelta(t, 2, p.Y, 1e-12)
	assert.InDelta(t, 8, p.Z, 1e-12)
}

func TestCameraPosition_Distance(t *testing.T) {
	center := r3.Vector{X: -4, Y: 0.25, Z: 1}
	for _, h := range []float64{0, 33, 120, 250, 359} {
		for _, v := range []float64{0, 26.6, 45, 80} {
			p := CameraPosition(center, h, v, 4.5, ZOffset)
			lifted := center.Add(r3.Vector{Z: ZOffset})
			assert.InDelta(t, 4.5, p.Sub(lifted).Norm(), 1e-9, "h=%v v=%v", h, v)
		}
	}
}

func TestLookAt_AlongX(t *testing.T) {
	e := LookAt(r3.Vector{X: 5}, r3.Vector{})
	assert.InDelta(t, 90, deg(e[0]), 1e-9)
	assert.InDelta(t, 0, deg(e[1]), 1e-9)
	assert.InDelta(t, 90, deg(e[2]), 1e-9)
}

func TestLookAt_PointsMinusZAtTarget(t *testing.T) {
	target := r3.Vector{X: 0.2, Y: -0.4, Z: 1.1}
	for _, h := range []float64{0, 45, 170, 300} {
		for _, v := range []float64{0, 30, 80} {
			from := CameraPosition(target, h, v, 6, ZOffset)
			R := rotationFromEuler(LookAt(from, target))

			// Camera -Z in world space is minus the third column.
			forward := r3.Vector{X: -R[0][2], Y: -R[1][2], Z: -R[2][2]}
			want := target.Sub(from).Normalize()
			assert.InDelta(t, 0, forward.Sub(want).Norm(), 1e-9, "h=%v v=%v", h, v)

			// Camera +X stays horizontal so the horizon is level.
			assert.InDelta(t, 0, R[2][0], 1e-9, "h=%v v=%v", h, v)
		}
	}
}

func TestLookAt_StraightDown(t *testing.T) {
	e := LookAt(r3.Vector{Z: 10}, r3.Vector{})
	R := rotationFromEuler(e)
	forward := r3.Vector{X: -R[0][2], Y: -R[1][2], Z: -R[2][2]}
	assert.InDelta(t, -1, forward.Z, 1e-9)
	for _, v := range e {
		assert.False(t, math.IsNaN(v))
	}
}

func TestCameraToWorld(t *testing.T) {
	from := r3.Vector{X: 5}
	m := CameraToWorld(from, r3.Vector{})

	assert.Equal(t, [4]float64{0, 0, 0, 1}, m[3])
	assert.InDelta(t, 5, m[0][3], 1e-12)
	// Third column is the camera's +Z, pointing away from the target.
	assert.InDelta(t, 1, m[0][2], 1e-12)
	assert.InDelta(t, 0, m[1][2], 1e-12)
	assert.InDelta(t, 0, m[2][2], 1e-12)

	R := rotationFromEuler(LookAt(from, r3.Vector{}))
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			assert.InDelta(t, R[i][j], m[i][j], 1e-9)
		}
	}
}

func TestCameraAngleX(t *testing.T) {
	assert.InDelta(t, 2*math.Atan(36.0/100), CameraAngleX(50), 1e-12)
	// 18mm on a 36mm sensor is a 90 degree field of view.
	assert.InDelta(t, math.Pi/2, CameraAngleX(18), 1e-12)
}
