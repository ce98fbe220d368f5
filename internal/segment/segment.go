// Package segment produces per-object masks with a box-prompted segmentation model
// running in a Python child process, and manages that model's checkpoint.
package segment

import (
	"context"
	"embed"
	"encoding/base64"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/spencerau/NeRF-to-3DPrint/internal/imageproc"
	"github.com/spencerau/NeRF-to-3DPrint/internal/types"
	"github.com/spencerau/NeRF-to-3DPrint/internal/utils"
	"github.com/spencerau/NeRF-to-3DPrint/internal/worker"
)

//go:embed assets/sam_worker.py
var assets embed.FS

const workerScript = "sam_worker.py"

// Segmenter returns a binary mask (non-zero = object) the size of img for the object inside box.
// key identifies img so an implementation can reuse work across boxes of the same image.
type Segmenter interface {
	Segment(ctx context.Context, key string, img image.Image, box types.Box) (image.Image, error)
	Close() error
}

// Worker is a Segmenter backed by the Python worker.
type Worker struct {
	conn       worker.Caller
	cmd        *utils.SafeCommand
	checkpoint string
	lastKey    string
	tmpDir     string
	logger     *zap.SugaredLogger
}

// NewWorker wraps an already running worker connection.
func NewWorker(conn worker.Caller, checkpoint string, logger *zap.SugaredLogger) *Worker {
	return &Worker{conn: conn, checkpoint: checkpoint, logger: logger}
}

// StartWorker extracts the worker script and runs it with python.
func StartWorker(ctx context.Context, python, checkpoint string, logger *zap.SugaredLogger) (*Worker, error) {
	tmpDir, err := os.MkdirTemp("", "nerfprep-segment")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}

	script := filepath.Join(tmpDir, workerScript)
	if err := extract(script); err != nil {
		os.RemoveAll(tmpDir)
		return nil, err
	}

	logger.Debugw("starting segmentation worker", "python", python, "script", script)
	proc, err := worker.Start(ctx, python, "-u", script)
	if err != nil {
		os.RemoveAll(tmpDir)
		return nil, err
	}
	proc.Name = "segmentation"

	w := NewWorker(proc, checkpoint, logger)
	w.cmd = proc.Cmd
	w.tmpDir = tmpDir
	return w, nil
}

func extract(dest string) error {
	src, err := assets.Open("assets/" + workerScript)
	if err != nil {
		return err
	}
	defer src.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, src); err != nil {
		return fmt.Errorf("failed to extract %s: %w", workerScript, err)
	}
	return nil
}

// Command is the child process, nil for workers built with NewWorker.
func (w *Worker) Command() *utils.SafeCommand {
	return w.cmd
}

// Segment implements Segmenter. The image is only sent when key changes.
func (w *Worker) Segment(ctx context.Context, key string, img image.Image, box types.Box) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	req := types.SegmentRequest{
		Checkpoint: w.checkpoint,
		ImageKey:   key,
		Box:        box,
	}
	if key != w.lastKey {
		data, err := imageproc.EncodePNG(img)
		if err != nil {
			return nil, fmt.Errorf("failed to encode image: %w", err)
		}
		req.ImageB64 = base64.StdEncoding.EncodeToString(data)
	}

	var res types.SegmentResult
	if err := w.conn.Call("segment", req, &res); err != nil {
		w.lastKey = ""
		return nil, err
	}
	w.lastKey = key

	raw, err := base64.StdEncoding.DecodeString(res.MaskB64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode mask payload: %w", err)
	}
	mask, err := imageproc.DecodeMask(raw)
	if err != nil {
		return nil, err
	}

	mb, ib := mask.Bounds(), img.Bounds()
	if mb.Dx() != ib.Dx() || mb.Dy() != ib.Dy() {
		return nil, fmt.Errorf("mask is %dx%d, image is %dx%d", mb.Dx(), mb.Dy(), ib.Dx(), ib.Dy())
	}
	return mask, nil
}

// Close stops the worker and removes the extracted script.
func (w *Worker) Close() error {
	err := w.conn.Close()
	if w.tmpDir != "" {
		os.RemoveAll(w.tmpDir)
	}
	return err
}
