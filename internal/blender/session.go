// Package blender drives a headless Blender instance through an embedded bridge script.
//
// A Session owns the host application's scene for its whole lifetime. All scene
// mutations go through it, one request at a time.
package blender

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/golang/geo/r3"
	"go.uber.org/zap"

	"github.com/spencerau/NeRF-to-3DPrint/internal/scene"
	"github.com/spencerau/NeRF-to-3DPrint/internal/types"
	"github.com/spencerau/NeRF-to-3DPrint/internal/utils"
	"github.com/spencerau/NeRF-to-3DPrint/internal/worker"
)

// ErrNoActiveObject is returned when an import leaves nothing selected.
var ErrNoActiveObject = errors.New("no active object after import")

// Session is the explicit scene context.
type Session struct {
	conn    worker.Caller
	cmd     *utils.SafeCommand
	tmpDir  string
	logger  *zap.SugaredLogger
	model   string
	corners []r3.Vector
}

// NewSession wraps an already connected bridge. Launch is the usual way to get one.
func NewSession(conn worker.Caller, logger *zap.SugaredLogger) *Session {
	return &Session{conn: conn, logger: logger}
}

// Launch starts exe in background mode running the bridge script.
func Launch(ctx context.Context, exe string, logger *zap.SugaredLogger) (*Session, error) {
	tmpDir, err := os.MkdirTemp("", "nerfprep-blender")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}

	script, err := extractBridge(tmpDir)
	if err != nil {
		os.RemoveAll(tmpDir)
		return nil, err
	}

	proc, err := worker.Start(ctx, exe, "-b", "--python", script)
	if err != nil {
		os.RemoveAll(tmpDir)
		return nil, err
	}
	proc.Name = "blender"
	logger.Infow("running command", "cmd", proc.Cmd.String())

	s := NewSession(proc, logger)
	s.cmd = proc.Cmd
	s.tmpDir = tmpDir
	return s, nil
}

// Command is the underlying child process, nil for sessions built with NewSession.
func (s *Session) Command() *utils.SafeCommand {
	return s.cmd
}

// Clear deletes every object in the scene and purges orphaned data.
func (s *Session) Clear() error {
	if err := s.conn.Call("clear", nil, nil); err != nil {
		return fmt.Errorf("failed to clear scene: %w", err)
	}
	return nil
}

// ImportModel loads the model at path, centres its origin on its bounds at the world origin
// and returns its eight world-space bounding box corners.
func (s *Session) ImportModel(path string) ([]r3.Vector, error) {
	importer, err := scene.ModelImporter(path)
	if err != nil {
		return nil, err
	}

	var res types.ImportResult
	args := map[string]string{"path": path, "importer": importer}
	if err := s.conn.Call("import", args, &res); err != nil {
		return nil, fmt.Errorf("failed to import %s: %w", path, err)
	}
	if res.Object == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoActiveObject, path)
	}
	if len(res.Corners) != 8 {
		return nil, fmt.Errorf("import of %s returned %d bounding box corners, want 8", path, len(res.Corners))
	}

	corners := make([]r3.Vector, len(res.Corners))
	for i, c := range res.Corners {
		corners[i] = r3.Vector{X: c[0], Y: c[1], Z: c[2]}
	}
	s.model = res.Object
	s.corners = corners
	s.logger.Infow("model imported", "object", res.Object, "importer", importer)
	return corners, nil
}

// Model is the name of the imported object, empty before ImportModel.
func (s *Session) Model() string {
	return s.model
}

// AddLights places every light of rig.
func (s *Session) AddLights(rig []types.Light) error {
	if err := s.conn.Call("add_lights", map[string]any{"lights": rig}, nil); err != nil {
		return fmt.Errorf("failed to add lights: %w", err)
	}
	return nil
}

// AddCamera adds the scene camera with the given focal length in millimetres.
// When a model has been imported the camera also tracks it.
func (s *Session) AddCamera(focalLength float64) error {
	if err := s.conn.Call("add_camera", map[string]any{"lens": focalLength}, nil); err != nil {
		return fmt.Errorf("failed to add camera: %w", err)
	}
	return nil
}

// ApplyTextures wires textures into every material of the imported model.
func (s *Session) ApplyTextures(textures []scene.Texture) error {
	if len(textures) == 0 {
		return nil
	}
	var res struct {
		Applied int `json:"applied"`
	}
	if err := s.conn.Call("apply_textures", map[string]any{"textures": textures}, &res); err != nil {
		return fmt.Errorf("failed to apply textures: %w", err)
	}
	s.logger.Debugw("textures applied", "links", res.Applied)
	return nil
}

// Configure sets PNG RGBA output over a transparent background at resX by resY pixels.
func (s *Session) Configure(resX, resY int) error {
	args := map[string]int{"resolution_x": resX, "resolution_y": resY}
	if err := s.conn.Call("configure", args, nil); err != nil {
		return fmt.Errorf("failed to configure render: %w", err)
	}
	return nil
}

// RenderFrame moves the camera to pose and writes one still to pose.Path.
func (s *Session) RenderFrame(pose scene.Pose) error {
	frame := types.RenderFrame{
		Index:    pose.Index,
		Location: [3]float64{pose.Position.X, pose.Position.Y, pose.Position.Z},
		Rotation: pose.Rotation,
		Path:     pose.Path,
	}
	if err := s.conn.Call("render", frame, nil); err != nil {
		return fmt.Errorf("failed to render frame %d: %w", pose.Index, err)
	}
	return nil
}

// Close shuts the bridge down and removes the extracted script.
func (s *Session) Close() error {
	err := s.conn.Close()
	if s.tmpDir != "" {
		os.RemoveAll(s.tmpDir)
	}
	return err
}
