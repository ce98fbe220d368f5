// Package imageproc holds the raster steps of preprocessing: discovery, HEIC conversion,
// loading, area downscaling, saving and mask application.
package imageproc

import (
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/h2non/filetype"
	_ "golang.org/x/image/webp" // mislabelled WebP inputs still decode
)

// Default output bounds.
const (
	DefaultMaxWidth  = 1920
	DefaultMaxHeight = 1080
)

// ErrUnsupportedImage is returned for files that are not images or cannot be decoded.
var ErrUnsupportedImage = errors.New("unsupported image")

var inputExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".heic": true,
	".heif": true,
}

// IsInput reports whether name has one of the accepted input extensions, ignoring case.
func IsInput(name string) bool {
	return inputExtensions[strings.ToLower(filepath.Ext(name))]
}

// IsHEIC reports whether name is a HEIC or HEIF file by extension.
func IsHEIC(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".heic" || ext == ".heif"
}

// ListInputs returns the accepted image files directly inside dir, sorted by name.
// Subdirectories are not descended into; other files are ignored.
func ListInputs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !IsInput(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// sniff checks the file header so non-image payloads fail with ErrUnsupportedImage.
func sniff(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	head := make([]byte, 261)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return err
	}
	if !filetype.IsImage(head[:n]) {
		return fmt.Errorf("%w: %s", ErrUnsupportedImage, filepath.Base(path))
	}
	return nil
}

// Load decodes the image at path. EXIF orientation is not applied.
func Load(path string) (image.Image, error) {
	if err := sniff(path); err != nil {
		return nil, err
	}
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnsupportedImage, filepath.Base(path), err)
	}
	return img, nil
}

// Downscale shrinks img so it fits inside maxW x maxH, keeping its aspect ratio and
// averaging source pixels. Images already within bounds are returned unchanged.
func Downscale(img image.Image, maxW, maxH int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return img
	}

	factor := math.Min(float64(maxW)/float64(w), float64(maxH)/float64(h))
	if factor >= 1 {
		return img
	}

	nw := max(int(float64(w)*factor), 1)
	nh := max(int(float64(h)*factor), 1)
	return imaging.Resize(img, nw, nh, imaging.Box)
}

// Save writes img to path; the format follows the extension.
func Save(img image.Image, path string) error {
	if err := imaging.Save(img, path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}
