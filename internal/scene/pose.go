package scene

import (
	"math"

	"github.com/golang/geo/r3"
)

// SensorWidth is the host application's default camera sensor width in millimetres.
const SensorWidth = 36.0

var worldUp = r3.Vector{X: 0, Y: 0, Z: 1}

// Pose is one camera placement: where the camera sits and how it is rotated.
type Pose struct {
	Index    int        `json:"index"`
	HAngle   float64    `json:"h_angle"` // degrees
	VAngle   float64    `json:"v_angle"` // degrees
	Position r3.Vector  `json:"position"`
	Rotation [3]float64 `json:"rotation"` // Euler XYZ, radians
	Path     string     `json:"path"`
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

// BoundingBoxCentroid is the mean of the given corner points (normally the 8 world-space corners).
func BoundingBoxCentroid(corners []r3.Vector) r3.Vector {
	var sum r3.Vector
	if len(corners) == 0 {
		return sum
	}
	for _, c := range corners {
		sum = sum.Add(c)
	}
	return sum.Mul(1 / float64(len(corners)))
}

// CameraPosition projects (h, v) in degrees onto a sphere of radius distance around center
// and lifts the result by zOffset.
func CameraPosition(center r3.Vector, h, v, distance, zOffset float64) r3.Vector {
	hr, vr := radians(h), radians(v)
	return r3.Vector{
		X: center.X + distance*math.Cos(vr)*math.Cos(hr),
		Y: center.Y + distance*math.Cos(vr)*math.Sin(hr),
		Z: center.Z + distance*math.Sin(vr) + zOffset,
	}
}

// lookAxes returns the camera's local X, Y and Z axes in world space for a camera at from
// whose -Z axis points at to and whose +Y axis leans towards world up.
func lookAxes(from, to r3.Vector) (x, y, z r3.Vector) {
	z = from.Sub(to).Normalize()
	up := worldUp
	if math.Abs(z.Dot(up)) > 1-1e-9 {
		// Looking straight up or down: any horizontal up works, pick +Y.
		up = r3.Vector{X: 0, Y: 1, Z: 0}
	}
	x = up.Cross(z).Normalize()
	y = z.Cross(x)
	return x, y, z
}

// LookAt returns the Euler XYZ rotation (radians) that aims a camera at from towards to.
// With R = Rz(c) * Ry(b) * Rx(a), the columns of R are the camera's local axes.
func LookAt(from, to r3.Vector) [3]float64 {
	x, y, z := lookAxes(from, to)

	// Row 2 of R is (x.Z, y.Z, z.Z); column 0 is x.
	b := math.Asin(clamp(-x.Z, -1, 1))
	a := math.Atan2(y.Z, z.Z)
	c := math.Atan2(x.Y, x.X)
	return [3]float64{a, b, c}
}

// CameraToWorld is the 4x4 camera-to-world matrix for a camera at from looking at to.
func CameraToWorld(from, to r3.Vector) [4][4]float64 {
	x, y, z := lookAxes(from, to)
	return [4][4]float64{
		{x.X, y.X, z.X, from.X},
		{x.Y, y.Y, z.Y, from.Y},
		{x.Z, y.Z, z.Z, from.Z},
		{0, 0, 0, 1},
	}
}

// CameraAngleX is the horizontal field of view in radians for a focal length in millimetres.
func CameraAngleX(focalLength float64) float64 {
	return 2 * math.Atan(SensorWidth/(2*focalLength))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
