// Package preprocess runs the per-file photo pipeline: HEIC conversion, downscaling and,
// optionally, detection plus box-prompted background removal.
package preprocess

import (
	"context"
	"errors"
	"fmt"
	"image"
	"path/filepath"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/spencerau/NeRF-to-3DPrint/internal/detect"
	"github.com/spencerau/NeRF-to-3DPrint/internal/imageproc"
	"github.com/spencerau/NeRF-to-3DPrint/internal/segment"
	"github.com/spencerau/NeRF-to-3DPrint/internal/utils"
	"github.com/spencerau/NeRF-to-3DPrint/internal/worker"
)

// ErrNoDetections marks a file in which the detector found nothing. It is reported, never fatal.
var ErrNoDetections = errors.New("no objects detected")

// Options configures one run.
type Options struct {
	InputDir   string
	OutputDir  string
	UseSegment bool
	MaxWidth   int
	MaxHeight  int
}

// Output is one file written by the pipeline. Object is -1 for the downscaled copy.
type Output struct {
	Source string
	Path   string
	Object int
}

// Deps builds the heavy collaborators. The model builders are only called when segmentation
// is on, at most once per Pipeline, and only once a file actually needs them.
type Deps struct {
	NewDetector  func() (detect.Detector, error)
	Checkpoint   func(ctx context.Context) (string, error)
	NewSegmenter func(ctx context.Context, checkpoint string) (segment.Segmenter, error)

	// ConvertHEIC defaults to imageproc.ConvertHEIC.
	ConvertHEIC func(path string) (string, error)
}

// Pipeline processes a directory of photographs sequentially.
type Pipeline struct {
	opts   Options
	deps   Deps
	logger *zap.SugaredLogger

	// OnOutput, if set, is called for every file written.
	OnOutput func(Output)

	detector  detect.Detector
	segmenter segment.Segmenter
	seq       int
}

// FatalError wraps failures that must stop the whole run, such as a failed checkpoint fetch.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return e.Err.Error() }
func (e *FatalError) Unwrap() error { return e.Err }

// New returns a Pipeline. OutputDir defaults to InputDir and the bounds to 1920x1080.
func New(opts Options, deps Deps, logger *zap.SugaredLogger) *Pipeline {
	if opts.OutputDir == "" {
		opts.OutputDir = opts.InputDir
	}
	if opts.MaxWidth <= 0 {
		opts.MaxWidth = imageproc.DefaultMaxWidth
	}
	if opts.MaxHeight <= 0 {
		opts.MaxHeight = imageproc.DefaultMaxHeight
	}
	if deps.ConvertHEIC == nil {
		deps.ConvertHEIC = imageproc.ConvertHEIC
	}
	return &Pipeline{opts: opts, deps: deps, logger: logger}
}

// Summary counts what a run did.
type Summary struct {
	Files   int
	Skipped int
	Empty   int
	Outputs int
}

// Inputs lists the files Run would visit.
func (p *Pipeline) Inputs() ([]string, error) {
	return imageproc.ListInputs(p.opts.InputDir)
}

// Run processes every accepted file in InputDir. Per-file failures are logged and skipped;
// only a *FatalError or a cancelled context aborts the run. onFile, if set, is called
// after each file regardless of outcome.
func (p *Pipeline) Run(ctx context.Context, onFile func(path string)) (Summary, error) {
	var sum Summary

	files, err := p.Inputs()
	if err != nil {
		return sum, err
	}
	if err := utils.EnsureDir(p.opts.OutputDir); err != nil {
		return sum, err
	}

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		sum.Files++

		n, err := p.ProcessFile(ctx, path)
		sum.Outputs += n
		var fatal *FatalError
		switch {
		case err == nil:
		case errors.As(err, &fatal), errors.Is(err, context.Canceled):
			return sum, err
		case errors.Is(err, ErrNoDetections):
			sum.Empty++
			p.logger.Infow("no objects detected", "file", path)
		default:
			sum.Skipped++
			p.logger.Warnw("skipping file", "file", path, "error", err)
		}
		if onFile != nil {
			onFile(path)
		}
	}
	return sum, nil
}

// ProcessFile runs the pipeline for one file and returns how many files it wrote.
func (p *Pipeline) ProcessFile(ctx context.Context, path string) (int, error) {
	p.seq++
	if imageproc.IsHEIC(path) {
		png, err := p.deps.ConvertHEIC(path)
		if err != nil {
			return 0, err
		}
		p.logger.Debugw("converted", "from", path, "to", png)
		path = png
	}

	img, err := imageproc.Load(path)
	if err != nil {
		return 0, err
	}

	small := imageproc.Downscale(img, p.opts.MaxWidth, p.opts.MaxHeight)
	base := filepath.Base(path)
	dest := filepath.Join(p.opts.OutputDir, base)
	if err := imageproc.Save(small, dest); err != nil {
		return 0, err
	}
	p.logger.Debugw("downscaled",
		"file", base,
		"from", img.Bounds().Size(),
		"to", small.Bounds().Size(),
	)
	p.emit(Output{Source: path, Path: dest, Object: -1})
	written := 1

	if !p.opts.UseSegment {
		return written, nil
	}

	n, err := p.segmentObjects(ctx, path, small)
	return written + n, err
}

func (p *Pipeline) segmentObjects(ctx context.Context, path string, img image.Image) (int, error) {
	base := filepath.Base(path)
	det, err := p.ensureDetector()
	if err != nil {
		return 0, &FatalError{Err: err}
	}
	dets, err := det.Detect(ctx, img)
	if err != nil {
		return 0, fmt.Errorf("detection failed: %w", err)
	}
	if len(dets) == 0 {
		return 0, ErrNoDetections
	}

	seg, err := p.ensureSegmenter(ctx)
	if err != nil {
		return 0, &FatalError{Err: err}
	}

	// Unique per processed file so the segmenter never reuses another image's embedding.
	key := fmt.Sprintf("%d:%s", p.seq, path)
	written := 0
	for i, d := range dets {
		mask, err := seg.Segment(ctx, key, img, d.Box)
		if errors.Is(err, worker.ErrTransport) {
			return written, &FatalError{Err: fmt.Errorf("segmentation worker died: %w", err)}
		}
		if err != nil {
			return written, fmt.Errorf("segmentation of object %d failed: %w", i, err)
		}
		masked, err := imageproc.ApplyMask(img, mask)
		if err != nil {
			return written, err
		}

		dest := filepath.Join(p.opts.OutputDir, fmt.Sprintf("%d_%s", i, base))
		if err := imageproc.Save(masked, dest); err != nil {
			return written, err
		}
		p.emit(Output{Source: path, Path: dest, Object: i})
		written++
	}
	return written, nil
}

func (p *Pipeline) ensureDetector() (detect.Detector, error) {
	if p.detector != nil {
		return p.detector, nil
	}
	if p.deps.NewDetector == nil {
		return nil, errors.New("no detector configured")
	}
	d, err := p.deps.NewDetector()
	if err != nil {
		return nil, fmt.Errorf("failed to load detector: %w", err)
	}
	p.detector = d
	return d, nil
}

func (p *Pipeline) ensureSegmenter(ctx context.Context) (segment.Segmenter, error) {
	if p.segmenter != nil {
		return p.segmenter, nil
	}
	if p.deps.Checkpoint == nil || p.deps.NewSegmenter == nil {
		return nil, errors.New("no segmenter configured")
	}
	ckpt, err := p.deps.Checkpoint(ctx)
	if err != nil {
		return nil, err
	}
	s, err := p.deps.NewSegmenter(ctx, ckpt)
	if err != nil {
		return nil, fmt.Errorf("failed to start segmenter: %w", err)
	}
	p.segmenter = s
	return s, nil
}

func (p *Pipeline) emit(o Output) {
	if p.OnOutput != nil {
		p.OnOutput(o)
	}
}

// Close releases whichever collaborators were created. Calling it twice is safe.
func (p *Pipeline) Close() error {
	var err error
	if p.segmenter != nil {
		err = multierr.Append(err, p.segmenter.Close())
		p.segmenter = nil
	}
	if p.detector != nil {
		err = multierr.Append(err, p.detector.Close())
		p.detector = nil
	}
	return err
}
