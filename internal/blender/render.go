package blender

import (
	"context"
	"fmt"

	"github.com/spencerau/NeRF-to-3DPrint/internal/config"
	"github.com/spencerau/NeRF-to-3DPrint/internal/scene"
	"github.com/spencerau/NeRF-to-3DPrint/internal/utils"
)

// Render runs a full turntable: clear, import, light, camera, textures, then one still per pose.
// onFrame, if set, is called after each frame is written. The first failure aborts the run.
func Render(ctx context.Context, s *Session, cfg config.Render, onFrame func(scene.Pose)) (scene.Plan, error) {
	if _, err := scene.ModelImporter(cfg.ModelPath()); err != nil {
		return scene.Plan{}, err
	}
	if err := utils.EnsureDir(cfg.OutputDir()); err != nil {
		return scene.Plan{}, err
	}

	if err := s.Clear(); err != nil {
		return scene.Plan{}, err
	}
	corners, err := s.ImportModel(cfg.ModelPath())
	if err != nil {
		return scene.Plan{}, err
	}
	if err := s.AddLights(scene.DefaultRig()); err != nil {
		return scene.Plan{}, err
	}
	if err := s.AddCamera(cfg.FocalLength); err != nil {
		return scene.Plan{}, err
	}

	if cfg.TextureDir != "" {
		textures, err := scene.MatchTextures(cfg.TextureDir)
		if err != nil {
			return scene.Plan{}, err
		}
		if err := s.ApplyTextures(textures); err != nil {
			return scene.Plan{}, err
		}
	}

	if err := s.Configure(cfg.ResolutionH, cfg.ResolutionV); err != nil {
		return scene.Plan{}, err
	}

	plan, err := scene.NewPlan(cfg, scene.BoundingBoxCentroid(corners))
	if err != nil {
		return scene.Plan{}, err
	}
	s.logger.Infow("render plan",
		"object", s.Model(),
		"frames", len(plan.Poses),
		"requested", cfg.NumImages,
		"v_step", plan.Grid.VStep,
		"h_step", plan.Grid.HStep,
	)

	for _, pose := range plan.Poses {
		if err := ctx.Err(); err != nil {
			return plan, fmt.Errorf("render interrupted at frame %d: %w", pose.Index, err)
		}
		if err := s.RenderFrame(pose); err != nil {
			return plan, err
		}
		if onFrame != nil {
			onFrame(pose)
		}
	}
	return plan, nil
}
