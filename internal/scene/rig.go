package scene

import "github.com/spencerau/NeRF-to-3DPrint/internal/types"

// DefaultRig is the fixed lighting used for every render.
func DefaultRig() []types.Light {
	return []types.Light{
		{Type: "SUN", Location: [3]float64{10, -10, 10}, Energy: 20},
		{Type: "POINT", Location: [3]float64{0, 0, 10}, Energy: 1500},
		{Type: "AREA", Location: [3]float64{5, 5, 5}, Energy: 1000, Size: 10},
		{Type: "POINT", Location: [3]float64{-5, -5, 5}, Energy: 1000},
		{Type: "POINT", Location: [3]float64{5, -5, 5}, Energy: 1000},
		{Type: "POINT", Location: [3]float64{0, -10, 5}, Energy: 1000},
		{Type: "POINT", Location: [3]float64{0, 10, 5}, Energy: 1000},
	}
}
