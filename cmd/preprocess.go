package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/mitchellh/go-homedir"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/spencerau/NeRF-to-3DPrint/internal/detect"
	"github.com/spencerau/NeRF-to-3DPrint/internal/imageproc"
	"github.com/spencerau/NeRF-to-3DPrint/internal/preprocess"
	"github.com/spencerau/NeRF-to-3DPrint/internal/segment"
	"github.com/spencerau/NeRF-to-3DPrint/internal/store"
	"github.com/spencerau/NeRF-to-3DPrint/internal/utils"
)

// PreprocessOptions holds the preprocess command's flags.
type PreprocessOptions struct {
	Images         string
	Output         string
	UseSegment     int
	MaxWidth       int
	MaxHeight      int
	DetectorModel  string
	OnnxRuntimeLib string
	Python         string
	CheckpointDir  string
}

var preprocessOpts PreprocessOptions

var preprocessCmd = &cobra.Command{
	Use:   "preprocess",
	Short: "Convert, downscale and optionally segment a directory of photographs",
	Long: `Processes every .jpg, .jpeg, .png, .heic and .heif file directly inside --images.

HEIC/HEIF files are converted to PNG next to the original. Each image is downscaled to fit
the bounds and written to --output under its own name. With --use_segment 1 objects are
detected and each one is written as <index>_<name> with its background zeroed.`,
	Run: func(cmd *cobra.Command, args []string) {
		opts, err := resolvePreprocessOptions(preprocessOpts)
		if err != nil {
			utils.Die("Invalid preprocess options", err, nil)
		}
		if err := runPreprocess(cmd.Context(), opts); err != nil {
			utils.Die("Preprocessing failed", err, nil)
		}
	},
}

func init() {
	f := preprocessCmd.Flags()
	f.StringVar(&preprocessOpts.Images, "images", "", "Directory containing the input images")
	f.StringVar(&preprocessOpts.Output, "output", "", "Directory for processed images (default: --images)")
	f.IntVar(&preprocessOpts.UseSegment, "use_segment", 1, "1 to detect and segment objects, 0 to only downscale")
	f.IntVar(&preprocessOpts.MaxWidth, "max-width", imageproc.DefaultMaxWidth, "Maximum output width")
	f.IntVar(&preprocessOpts.MaxHeight, "max-height", imageproc.DefaultMaxHeight, "Maximum output height")
	f.StringVar(&preprocessOpts.DetectorModel, "detector-model", detect.DefaultModel, "YOLOv8 ONNX model used for detection")
	f.StringVar(&preprocessOpts.OnnxRuntimeLib, "onnxruntime-lib", "", "Path to the onnxruntime shared library (default: platform lookup)")
	f.StringVar(&preprocessOpts.Python, "python", "python3", "Python interpreter with segment_anything installed")
	f.StringVar(&preprocessOpts.CheckpointDir, "checkpoint-dir", "", "Where the segmentation checkpoint is cached (default: ./models)")

	preprocessCmd.MarkFlagRequired("images")
	rootCmd.AddCommand(preprocessCmd)
}

// resolvePreprocessOptions validates flags, expands ~ and fills defaults.
func resolvePreprocessOptions(o PreprocessOptions) (PreprocessOptions, error) {
	if o.UseSegment != 0 && o.UseSegment != 1 {
		return o, fmt.Errorf("--use_segment must be 0 or 1, got %d", o.UseSegment)
	}
	if o.MaxWidth <= 0 || o.MaxHeight <= 0 {
		return o, fmt.Errorf("bounds must be positive, got %dx%d", o.MaxWidth, o.MaxHeight)
	}

	var err error
	for _, p := range []*string{&o.Images, &o.Output, &o.DetectorModel, &o.OnnxRuntimeLib, &o.CheckpointDir} {
		if *p == "" {
			continue
		}
		if *p, err = homedir.Expand(*p); err != nil {
			return o, err
		}
	}

	info, err := os.Stat(o.Images)
	if err != nil {
		return o, err
	}
	if !info.IsDir() {
		return o, fmt.Errorf("%s is not a directory", o.Images)
	}

	if o.Output == "" {
		o.Output = o.Images
	}
	if o.CheckpointDir == "" {
		if o.CheckpointDir, err = segment.DefaultCheckpointDir(); err != nil {
			return o, err
		}
	}
	return o, nil
}

func runPreprocess(ctx context.Context, opts PreprocessOptions) error {
	fetcher := segment.NewFetcher(opts.CheckpointDir, Logger)
	var segWorker *segment.Worker
	deps := preprocess.Deps{
		NewDetector: func() (detect.Detector, error) {
			return detect.NewYOLO(opts.DetectorModel, opts.OnnxRuntimeLib)
		},
		Checkpoint: fetcher.EnsureCheckpoint,
		NewSegmenter: func(ctx context.Context, checkpoint string) (segment.Segmenter, error) {
			w, err := segment.StartWorker(ctx, opts.Python, checkpoint, Logger)
			if err != nil {
				return nil, err
			}
			segWorker = w
			return w, nil
		},
	}

	p := preprocess.New(preprocess.Options{
		InputDir:   opts.Images,
		OutputDir:  opts.Output,
		UseSegment: opts.UseSegment == 1,
		MaxWidth:   opts.MaxWidth,
		MaxHeight:  opts.MaxHeight,
	}, deps, Logger)
	defer func() {
		if err := p.Close(); err != nil {
			Logger.Warnw("failed to shut down models", "error", err)
		}
	}()

	files, err := p.Inputs()
	if err != nil {
		return err
	}
	if len(files) == 0 {
		Logger.Infow("no images found", "dir", opts.Images)
		return nil
	}

	hasCatalog, err := openCatalog(ctx)
	if err != nil {
		return err
	}
	var runID string
	var recordErr error
	if hasCatalog {
		if runID, err = utils.GenerateRunID(store.KindPreprocess, opts.Images); err != nil {
			return err
		}
		run := store.Run{ID: runID, Kind: store.KindPreprocess, Source: opts.Images, OutputDir: opts.Output}
		if err := DB.BeginRun(ctx, run); err != nil {
			return fmt.Errorf("failed to register run: %w", err)
		}
		p.OnOutput = func(o preprocess.Output) {
			if recordErr != nil {
				return
			}
			recordErr = DB.AddItem(ctx, store.Item{
				RunID:      runID,
				Kind:       store.KindPreprocess,
				Path:       o.Path,
				FrameIndex: o.Object,
			})
		}
	}

	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetDescription("Preprocessing"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
	)
	sum, err := p.Run(ctx, func(string) { bar.Add(1) })
	bar.Finish()
	fmt.Fprintln(os.Stderr)

	if err != nil {
		finishCatalogRun(ctx, runID)
	}

	var fatal *preprocess.FatalError
	if errors.As(err, &fatal) && segWorker != nil {
		c := segWorker.Command()
		p.Close()
		utils.Die("Segmentation failed", err, c)
	}
	if err != nil {
		return err
	}

	if hasCatalog {
		if recordErr != nil {
			Logger.Warnw("catalog is missing items", "error", recordErr)
		}
		finishCatalogRun(ctx, runID)
	}

	Logger.Infow("preprocessing complete",
		"files", sum.Files,
		"written", sum.Outputs,
		"skipped", sum.Skipped,
		"without_objects", sum.Empty,
		"output", opts.Output,
	)
	return nil
}
