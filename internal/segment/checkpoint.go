package segment

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	"github.com/spencerau/NeRF-to-3DPrint/internal/utils"
)

const (
	CheckpointURL  = "https://dl.fbaipublicfiles.com/segment_anything/sam_vit_b_01ec64.pth"
	CheckpointName = "sam_vit_b_01ec64.pth"
)

// DefaultCheckpointDir is <cwd>/models.
func DefaultCheckpointDir() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, "models"), nil
}

// Fetcher downloads the segmentation checkpoint once and reuses it afterwards.
type Fetcher struct {
	URL      string
	Dir      string
	Client   *http.Client
	Progress io.Writer // progress bar destination, defaults to stderr
	Logger   *zap.SugaredLogger
}

// NewFetcher returns a Fetcher for the default checkpoint URL caching into dir.
func NewFetcher(dir string, logger *zap.SugaredLogger) *Fetcher {
	return &Fetcher{
		URL:      CheckpointURL,
		Dir:      dir,
		Client:   http.DefaultClient,
		Progress: os.Stderr,
		Logger:   logger,
	}
}

// Path is where the checkpoint lives once fetched.
func (f *Fetcher) Path() string {
	return filepath.Join(f.Dir, CheckpointName)
}

// EnsureCheckpoint returns the local checkpoint path, downloading it first if absent.
// A failed download leaves nothing behind at Path.
func (f *Fetcher) EnsureCheckpoint(ctx context.Context) (string, error) {
	path := f.Path()
	if utils.FileExists(path) {
		f.Logger.Debugw("checkpoint already cached", "path", path)
		return path, nil
	}

	f.Logger.Infow("checkpoint not found, downloading", "path", path, "url", f.URL)
	if err := utils.EnsureDir(f.Dir); err != nil {
		return "", err
	}
	if err := f.download(ctx, path); err != nil {
		return "", fmt.Errorf("failed to fetch checkpoint: %w", err)
	}
	f.Logger.Infow("checkpoint downloaded", "path", path)
	return path, nil
}

func (f *Fetcher) download(ctx context.Context, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return err
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s from %s", resp.Status, f.URL)
	}

	tmp, err := os.CreateTemp(f.Dir, CheckpointName+".*.part")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	progress := f.Progress
	if progress == nil {
		progress = os.Stderr
	}
	bar := progressbar.NewOptions64(resp.ContentLength,
		progressbar.OptionSetDescription("Downloading "+CheckpointName),
		progressbar.OptionSetWriter(progress),
		progressbar.OptionShowBytes(true),
		progressbar.OptionShowCount(),
	)

	if _, err := io.Copy(io.MultiWriter(tmp, bar), resp.Body); err != nil {
		tmp.Close()
		return err
	}
	bar.Finish()
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dest)
}
