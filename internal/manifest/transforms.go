package manifest

import (
	"encoding/json"
	"fmt"
	"os"
)

// Frame is one rendered view in a generated manifest.
type Frame struct {
	FilePath        string        `json:"file_path"`
	TransformMatrix [4][4]float64 `json:"transform_matrix"`
}

// Transforms is the manifest the renderer writes next to its images directory.
type Transforms struct {
	CameraAngleX float64 `json:"camera_angle_x"`
	Frames       []Frame `json:"frames"`
}

// FramePath is the manifest path for a rendered frame index.
func FramePath(index int) string {
	return fmt.Sprintf("%sr_%d.png", ImagePrefix, index)
}

// Write stores t at path, indented the same way RewriteFile indents.
func (t Transforms) Write(path string) error {
	data, err := json.MarshalIndent(t, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode transforms: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write transforms: %w", err)
	}
	return nil
}
