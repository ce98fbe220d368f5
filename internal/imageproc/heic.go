package imageproc

import (
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/heic"

	"github.com/spencerau/NeRF-to-3DPrint/internal/utils"
)

// HEICDecoder decodes one HEIC/HEIF stream.
type HEICDecoder func(r io.Reader) (image.Image, error)

// ConvertHEIC decodes a HEIC/HEIF file and writes it as PNG next to the original,
// replacing everything after the last dot with "png". The original is kept.
// It returns the path of the PNG.
func ConvertHEIC(path string) (string, error) {
	return ConvertHEICWith(path, heic.Decode)
}

// ConvertHEICWith is ConvertHEIC with an explicit decoder.
func ConvertHEICWith(path string, decode HEICDecoder) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	img, err := decode(f)
	if err != nil {
		return "", fmt.Errorf("%w: failed to decode %s: %v", ErrUnsupportedImage, path, err)
	}

	pngPath := filepath.Join(filepath.Dir(path), utils.Stem(path)+".png")
	if err := imaging.Save(img, pngPath); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", pngPath, err)
	}
	return pngPath, nil
}
