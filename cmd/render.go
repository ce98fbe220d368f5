package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/golang/geo/r3"
	"github.com/mitchellh/go-homedir"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/spencerau/NeRF-to-3DPrint/internal/blender"
	"github.com/spencerau/NeRF-to-3DPrint/internal/config"
	"github.com/spencerau/NeRF-to-3DPrint/internal/manifest"
	"github.com/spencerau/NeRF-to-3DPrint/internal/scene"
	"github.com/spencerau/NeRF-to-3DPrint/internal/store"
	"github.com/spencerau/NeRF-to-3DPrint/internal/utils"
)

// RenderOptions holds the render command's flags.
type RenderOptions struct {
	Blender    string
	DryRun     bool
	Transforms bool
}

var renderOpts RenderOptions

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render a turntable image dataset of a 3D model with Blender",
	Long: `Renders NUM_IMAGES views of MODEL_DIR/MODEL_NAME on a spherical grid around the model
into EXPORT_DIR/<model>/images/r_<index>.png.

Configuration comes from the environment (or a .env file): EXPORT_DIR, MODEL_DIR,
MODEL_NAME, NUM_IMAGES, IMAGE_RESOLUTION_V, IMAGE_RESOLUTION_H, FOCAL_LENGTH and
CAMERA_DISTANCE are required; TEXTURE_DIR is optional.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := validateRenderOptions(renderOpts); err != nil {
			utils.Die("Invalid render options", err, nil)
		}
		cfg, err := config.LoadRender(os.LookupEnv)
		if err != nil {
			utils.Die("Invalid render configuration", err, nil)
		}
		if renderOpts.DryRun {
			if err := printPlan(os.Stdout, cfg); err != nil {
				utils.Die("Failed to plan render", err, nil)
			}
			return
		}
		runRender(cmd.Context(), cfg, renderOpts)
	},
}

func init() {
	renderCmd.Flags().StringVar(&renderOpts.Blender, "blender", "", "Path to the Blender executable (required unless --dry-run)")
	renderCmd.Flags().BoolVar(&renderOpts.DryRun, "dry-run", false, "Print the camera plan for a model centred at the origin as JSON and exit")
	renderCmd.Flags().BoolVar(&renderOpts.Transforms, "transforms", false, "Also write transforms.json next to the images directory")

	rootCmd.AddCommand(renderCmd)
}

// validateRenderOptions checks flags that depend on each other.
func validateRenderOptions(o RenderOptions) error {
	if o.Blender == "" && !o.DryRun {
		return errors.New("required flag \"blender\" not set (only --dry-run works without it)")
	}
	return nil
}

// printPlan writes the pose plan as indented JSON.
func printPlan(w io.Writer, cfg config.Render) error {
	if _, err := scene.ModelImporter(cfg.ModelPath()); err != nil {
		return err
	}
	plan, err := scene.NewPlan(cfg, r3.Vector{})
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(plan)
}

// transformsPath is where --transforms writes: next to the images directory.
func transformsPath(cfg config.Render) string {
	return filepath.Join(filepath.Dir(cfg.OutputDir()), manifest.DefaultPath)
}

func runRender(ctx context.Context, cfg config.Render, opts RenderOptions) {
	exe, err := homedir.Expand(opts.Blender)
	if err != nil {
		utils.Die("Invalid --blender path", err, nil)
	}
	// Fail before launching anything for formats Blender cannot import
	if _, err := scene.ModelImporter(cfg.ModelPath()); err != nil {
		utils.Die("Unsupported model", err, nil)
	}

	hasCatalog, err := openCatalog(ctx)
	if err != nil {
		utils.Die("Catalog unavailable", err, nil)
	}
	var runID string
	if hasCatalog {
		runID, err = utils.GenerateRunID(store.KindRender, cfg.ModelPath())
		if err != nil {
			utils.Die("Failed to read model", err, nil)
		}
		err = DB.BeginRun(ctx, store.Run{ID: runID, Kind: store.KindRender, Source: cfg.ModelPath(), OutputDir: cfg.OutputDir()})
		if err != nil {
			utils.Die("Failed to register run", err, nil)
		}
	}

	// Failures past this point still close the catalog run
	fail := func(msg string, err error, c *utils.SafeCommand) {
		finishCatalogRun(ctx, runID)
		utils.Die(msg, err, c)
	}

	session, err := blender.Launch(ctx, exe, Logger)
	if err != nil {
		fail("Blender failed to start", err, nil)
	}

	grid, err := scene.NewGrid(cfg.NumImages)
	if err != nil {
		session.Close()
		fail("Invalid render configuration", err, nil)
	}
	bar := progressbar.NewOptions(grid.FrameCount(cfg.NumImages),
		progressbar.OptionSetDescription("Rendering"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
	)

	var recordErr error
	plan, err := blender.Render(ctx, session, cfg, func(p scene.Pose) {
		bar.Add(1)
		if !hasCatalog || recordErr != nil {
			return
		}
		recordErr = DB.AddItem(ctx, store.Item{
			RunID:      runID,
			Kind:       store.KindRender,
			Path:       p.Path,
			FrameIndex: p.Index,
			Position:   []float64{p.Position.X, p.Position.Y, p.Position.Z},
		})
	})
	if err != nil {
		cmd := session.Command()
		session.Close()
		fail("Render failed", err, cmd)
	}
	if err := session.Close(); err != nil {
		Logger.Warnw("blender exited uncleanly", "error", err)
	}
	bar.Finish()
	fmt.Fprintln(os.Stderr)

	if opts.Transforms {
		path := transformsPath(cfg)
		if err := plan.Transforms(cfg.FocalLength).Write(path); err != nil {
			fail("Failed to write transforms", err, nil)
		}
		Logger.Infow("wrote transforms", "path", path)
	}

	if hasCatalog {
		if recordErr != nil {
			Logger.Warnw("catalog is missing frames", "error", recordErr)
		}
		finishCatalogRun(ctx, runID)
	}

	Logger.Infow("render complete",
		"object", session.Model(),
		"frames", len(plan.Poses),
		"requested", cfg.NumImages,
		"output", cfg.OutputDir(),
	)
}
