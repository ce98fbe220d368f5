package preprocess

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spencerau/NeRF-to-3DPrint/internal/detect"
	"github.com/spencerau/NeRF-to-3DPrint/internal/imageproc"
	"github.com/spencerau/NeRF-to-3DPrint/internal/logging"
	"github.com/spencerau/NeRF-to-3DPrint/internal/segment"
	"github.com/spencerau/NeRF-to-3DPrint/internal/types"
	"github.com/spencerau/NeRF-to-3DPrint/internal/worker"
)

type fakeDetector struct {
	dets   []types.Detection
	calls  int
	closed bool
}

func (f *fakeDetector) Detect(_ context.Context, _ image.Image) ([]types.Detection, error) {
	f.calls++
	return f.dets, nil
}

func (f *fakeDetector) Close() error {
	f.closed = true
	return nil
}

type fakeSegmenter struct {
	keys   []string
	err    error
	closed bool
}

func (f *fakeSegmenter) Segment(_ context.Context, key string, img image.Image, box types.Box) (image.Image, error) {
	f.keys = append(f.keys, key)
	if f.err != nil {
		return nil, f.err
	}
	return boxMask(img.Bounds(), box), nil
}

// boxMask is foreground inside box.
func boxMask(bounds image.Rectangle, box types.Box) *image.Gray {
	m := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	r := image.Rect(int(box[0]), int(box[1]), int(box[2]), int(box[3])).Intersect(m.Bounds())
	draw.Draw(m, r, image.NewUniform(color.Gray{Y: 255}), image.Point{}, draw.Src)
	return m
}

func (f *fakeSegmenter) Close() error {
	f.closed = true
	return nil
}

type harness struct {
	det         *fakeDetector
	seg         *fakeSegmenter
	detLoads    int
	ckptFetches int
	ckptErr     error
	segStarts   int
	startedWith string
}

func (h *harness) deps() Deps {
	return Deps{
		NewDetector: func() (detect.Detector, error) {
			h.detLoads++
			return h.det, nil
		},
		Checkpoint: func(ctx context.Context) (string, error) {
			h.ckptFetches++
			if h.ckptErr != nil {
				return "", h.ckptErr
			}
			return "/models/sam.pth", nil
		},
		NewSegmenter: func(ctx context.Context, ckpt string) (segment.Segmenter, error) {
			h.segStarts++
			h.startedWith = ckpt
			return h.seg, nil
		},
	}
}

func writeImage(t *testing.T, path string, w, h int) {
	t.Helper()
	require.NoError(t, imaging.Save(imaging.New(w, h, color.NRGBA{R: 200, G: 100, B: 50, A: 255}), path))
}

func TestRun_DownscaleOnly(t *testing.T) {
	in := t.TempDir()
	out := filepath.Join(t.TempDir(), "out")
	writeImage(t, filepath.Join(in, "a.jpg"), 300, 200)
	writeImage(t, filepath.Join(in, "b.png"), 20, 10)
	require.NoError(t, os.WriteFile(filepath.Join(in, "broken.jpg"), []byte("nope"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(in, "notes.txt"), []byte("skip me"), 0o644))

	h := &harness{det: &fakeDetector{}, seg: &fakeSegmenter{}}
	p := New(Options{InputDir: in, OutputDir: out, MaxWidth: 192, MaxHeight: 108}, h.deps(), logging.NewNop())

	var visited []string
	sum, err := p.Run(context.Background(), func(path string) { visited = append(visited, filepath.Base(path)) })
	require.NoError(t, err)

	assert.Equal(t, Summary{Files: 3, Skipped: 1, Outputs: 2}, sum)
	assert.Equal(t, []string{"a.jpg", "b.png", "broken.jpg"}, visited)

	a, err := imageproc.Load(filepath.Join(out, "a.jpg"))
	require.NoError(t, err)
	assert.Equal(t, image.Pt(162, 108), a.Bounds().Size())

	b, err := imageproc.Load(filepath.Join(out, "b.png"))
	require.NoError(t, err)
	assert.Equal(t, image.Pt(20, 10), b.Bounds().Size())

	assert.Zero(t, h.detLoads, "detector is never built without segmentation")
	assert.Zero(t, h.ckptFetches)
}

func TestRun_OutputDefaultsToInput(t *testing.T) {
	in := t.TempDir()
	writeImage(t, filepath.Join(in, "a.png"), 40, 40)

	p := New(Options{InputDir: in}, Deps{}, logging.NewNop())
	_, err := p.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(in, "a.png"))
}

func TestRun_Segment(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	writeImage(t, filepath.Join(in, "a.png"), 40, 20)
	writeImage(t, filepath.Join(in, "b.png"), 40, 20)

	h := &harness{
		det: &fakeDetector{dets: []types.Detection{
			{Box: types.Box{0, 0, 10, 10}, Confidence: 0.9},
			{Box: types.Box{20, 5, 30, 15}, Confidence: 0.5},
		}},
		seg: &fakeSegmenter{},
	}
	p := New(Options{InputDir: in, OutputDir: out, UseSegment: true}, h.deps(), logging.NewNop())

	var outputs []Output
	p.OnOutput = func(o Output) { outputs = append(outputs, o) }

	sum, err := p.Run(context.Background(), nil)
	require.NoError(t, err)
	require.NoError(t, p.Close())

	assert.Equal(t, Summary{Files: 2, Outputs: 6}, sum)
	for _, name := range []string{"a.png", "0_a.png", "1_a.png", "b.png", "0_b.png", "1_b.png"} {
		assert.FileExists(t, filepath.Join(out, name))
	}
	require.Len(t, outputs, 6)
	assert.Equal(t, -1, outputs[0].Object)
	assert.Equal(t, 1, outputs[2].Object)

	// Heavy collaborators are shared by every file.
	assert.Equal(t, 1, h.detLoads)
	assert.Equal(t, 1, h.ckptFetches)
	assert.Equal(t, 1, h.segStarts)
	assert.Equal(t, "/models/sam.pth", h.startedWith)
	assert.True(t, h.det.closed)
	assert.True(t, h.seg.closed)

	// Both boxes of one file share a key, different files do not.
	require.Len(t, h.seg.keys, 4)
	assert.Equal(t, h.seg.keys[0], h.seg.keys[1])
	assert.NotEqual(t, h.seg.keys[1], h.seg.keys[2])

	masked, err := imageproc.Load(filepath.Join(out, "1_a.png"))
	require.NoError(t, err)
	nrgba := imaging.Clone(masked)
	assert.Equal(t, uint8(0), nrgba.NRGBAAt(0, 0).A)
	assert.Equal(t, uint8(255), nrgba.NRGBAAt(25, 10).A)
	assert.Equal(t, image.Pt(40, 20), nrgba.Bounds().Size())
}

func TestRun_NoDetections(t *testing.T) {
	in := t.TempDir()
	writeImage(t, filepath.Join(in, "empty.png"), 16, 16)

	h := &harness{det: &fakeDetector{}, seg: &fakeSegmenter{}}
	p := New(Options{InputDir: in, UseSegment: true}, h.deps(), logging.NewNop())

	sum, err := p.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, Summary{Files: 1, Empty: 1, Outputs: 1}, sum)
	assert.Zero(t, h.ckptFetches, "checkpoint is only fetched once something is detected")
}

func TestRun_CheckpointFailureIsFatal(t *testing.T) {
	in := t.TempDir()
	writeImage(t, filepath.Join(in, "a.png"), 16, 16)
	writeImage(t, filepath.Join(in, "b.png"), 16, 16)

	h := &harness{
		det:     &fakeDetector{dets: []types.Detection{{Box: types.Box{0, 0, 8, 8}}}},
		seg:     &fakeSegmenter{},
		ckptErr: errors.New("dial tcp: no route to host"),
	}
	p := New(Options{InputDir: in, UseSegment: true}, h.deps(), logging.NewNop())

	sum, err := p.Run(context.Background(), nil)
	var fatal *FatalError
	require.ErrorAs(t, err, &fatal)
	assert.ErrorContains(t, err, "no route to host")
	assert.Equal(t, 1, sum.Files, "run stops at the first file")
	assert.Equal(t, 1, h.det.calls)
}

func TestRun_DetectorLoadFailureIsFatal(t *testing.T) {
	in := t.TempDir()
	writeImage(t, filepath.Join(in, "a.png"), 16, 16)

	deps := Deps{NewDetector: func() (detect.Detector, error) { return nil, errors.New("libonnxruntime.so: not found") }}
	p := New(Options{InputDir: in, UseSegment: true}, deps, logging.NewNop())

	_, err := p.Run(context.Background(), nil)
	var fatal *FatalError
	assert.ErrorAs(t, err, &fatal)
}

func TestRun_MissingInputDir(t *testing.T) {
	p := New(Options{InputDir: filepath.Join(t.TempDir(), "nope")}, Deps{}, logging.NewNop())
	_, err := p.Run(context.Background(), nil)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestRun_Cancelled(t *testing.T) {
	in := t.TempDir()
	writeImage(t, filepath.Join(in, "a.png"), 16, 16)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := New(Options{InputDir: in}, Deps{}, logging.NewNop())
	sum, err := p.Run(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, sum.Files)
}

func TestRun_SegmentErrorSkipsFile(t *testing.T) {
	in := t.TempDir()
	writeImage(t, filepath.Join(in, "a.png"), 16, 16)
	writeImage(t, filepath.Join(in, "b.png"), 16, 16)

	h := &harness{
		det: &fakeDetector{dets: []types.Detection{{Box: types.Box{0, 0, 8, 8}}}},
		seg: &fakeSegmenter{err: errors.New("segmentation worker error: bad box")},
	}
	p := New(Options{InputDir: in, UseSegment: true}, h.deps(), logging.NewNop())

	sum, err := p.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, Summary{Files: 2, Skipped: 2, Outputs: 2}, sum)
}

func TestRun_DeadWorkerIsFatal(t *testing.T) {
	in := t.TempDir()
	writeImage(t, filepath.Join(in, "a.png"), 16, 16)
	writeImage(t, filepath.Join(in, "b.png"), 16, 16)

	h := &harness{
		det: &fakeDetector{dets: []types.Detection{{Box: types.Box{0, 0, 8, 8}}}},
		seg: &fakeSegmenter{err: fmt.Errorf("segment: %w", worker.ErrTransport)},
	}
	p := New(Options{InputDir: in, UseSegment: true}, h.deps(), logging.NewNop())

	sum, err := p.Run(context.Background(), nil)
	var fatal *FatalError
	require.ErrorAs(t, err, &fatal)
	assert.ErrorIs(t, err, worker.ErrTransport)
	assert.Equal(t, 1, sum.Files)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
}

func TestRun_HEIC(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	heicPath := filepath.Join(in, "x.heic")
	require.NoError(t, os.WriteFile(heicPath, []byte("ftypheic"), 0o644))

	h := &harness{
		det: &fakeDetector{dets: []types.Detection{{Box: types.Box{0, 0, 10, 10}, Confidence: 0.9}}},
		seg: &fakeSegmenter{},
	}
	deps := h.deps()
	deps.ConvertHEIC = func(path string) (string, error) {
		return imageproc.ConvertHEICWith(path, func(io.Reader) (image.Image, error) {
			return imaging.New(40, 20, color.NRGBA{B: 255, A: 255}), nil
		})
	}
	p := New(Options{InputDir: in, OutputDir: out, UseSegment: true}, deps, logging.NewNop())

	var outputs []Output
	p.OnOutput = func(o Output) { outputs = append(outputs, o) }

	sum, err := p.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, Summary{Files: 1, Outputs: 2}, sum)

	// Converted next to the original, which is kept
	assert.FileExists(t, heicPath)
	assert.FileExists(t, filepath.Join(in, "x.png"))

	// Later stages only see the PNG name
	require.Len(t, outputs, 2)
	assert.Equal(t, filepath.Join(in, "x.png"), outputs[0].Source)
	assert.Equal(t, filepath.Join(out, "x.png"), outputs[0].Path)
	assert.Equal(t, filepath.Join(out, "0_x.png"), outputs[1].Path)
	assert.NoFileExists(t, filepath.Join(out, "x.heic"))
	assert.NoFileExists(t, filepath.Join(out, "0_x.heic"))

	small, err := imageproc.Load(filepath.Join(out, "x.png"))
	require.NoError(t, err)
	assert.Equal(t, image.Pt(40, 20), small.Bounds().Size())

	require.Len(t, h.seg.keys, 1)
	assert.Contains(t, h.seg.keys[0], "x.png")
}

func TestRun_HEICDecodeFailureSkipsFile(t *testing.T) {
	in := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(in, "bad.heic"), []byte("not heic"), 0o644))
	writeImage(t, filepath.Join(in, "good.png"), 16, 16)

	p := New(Options{InputDir: in}, Deps{}, logging.NewNop())
	sum, err := p.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, Summary{Files: 2, Skipped: 1, Outputs: 1}, sum)
	assert.NoFileExists(t, filepath.Join(in, "bad.png"))
}
