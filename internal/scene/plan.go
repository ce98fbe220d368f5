package scene

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/golang/geo/r3"

	"github.com/spencerau/NeRF-to-3DPrint/internal/config"
	"github.com/spencerau/NeRF-to-3DPrint/internal/manifest"
)

// ErrUnsupportedModel is returned for model files the host application cannot import.
var ErrUnsupportedModel = errors.New("unsupported file format")

// Importers the host application uses, keyed by lowercase extension.
var modelImporters = map[string]string{
	".blend": "blend",
	".obj":   "obj",
	".fbx":   "fbx",
	".dae":   "collada",
	".gltf":  "gltf",
	".glb":   "gltf",
}

// ModelImporter returns the importer name for path, or ErrUnsupportedModel.
func ModelImporter(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	imp, ok := modelImporters[ext]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedModel, ext)
	}
	return imp, nil
}

// Plan is the ordered list of camera poses for one render run.
type Plan struct {
	Grid     Grid      `json:"grid"`
	Center   r3.Vector `json:"center"`
	Distance float64   `json:"distance"`
	Poses    []Pose    `json:"poses"`
}

// NewPlan samples the grid around center and assigns each pose its output file.
func NewPlan(cfg config.Render, center r3.Vector) (Plan, error) {
	grid, err := NewGrid(cfg.NumImages)
	if err != nil {
		return Plan{}, err
	}

	plan := Plan{Grid: grid, Center: center, Distance: cfg.CameraDistance}
	outDir := cfg.OutputDir()

	_, err = grid.Sample(cfg.NumImages, func(index int, h, v float64) error {
		pos := CameraPosition(center, h, v, cfg.CameraDistance, ZOffset)
		plan.Poses = append(plan.Poses, Pose{
			Index:    index,
			HAngle:   h,
			VAngle:   v,
			Position: pos,
			Rotation: LookAt(pos, center),
			Path:     filepath.Join(outDir, fmt.Sprintf("r_%d.png", index)),
		})
		return nil
	})
	if err != nil {
		return Plan{}, err
	}
	return plan, nil
}

// Transforms describes the plan as a manifest whose frame paths are already relative to images/.
func (p Plan) Transforms(focalLength float64) manifest.Transforms {
	t := manifest.Transforms{
		CameraAngleX: CameraAngleX(focalLength),
		Frames:       make([]manifest.Frame, 0, len(p.Poses)),
	}
	for _, pose := range p.Poses {
		t.Frames = append(t.Frames, manifest.Frame{
			FilePath:        manifest.FramePath(pose.Index),
			TransformMatrix: CameraToWorld(pose.Position, p.Center),
		})
	}
	return t
}
