package imageproc

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"github.com/disintegration/imaging"
)

// DecodeMask reads a PNG mask. Any non-zero luminance counts as foreground.
func DecodeMask(data []byte) (image.Image, error) {
	m, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode mask: %w", err)
	}
	return m, nil
}

// ApplyMask returns a copy of img in which every pixel outside mask is zeroed
// (transparent black). mask must have the same size as img.
func ApplyMask(img image.Image, mask image.Image) (*image.NRGBA, error) {
	ib, mb := img.Bounds(), mask.Bounds()
	if ib.Dx() != mb.Dx() || ib.Dy() != mb.Dy() {
		return nil, fmt.Errorf("mask is %dx%d, image is %dx%d", mb.Dx(), mb.Dy(), ib.Dx(), ib.Dy())
	}

	out := imaging.Clone(img)
	for y := 0; y < ib.Dy(); y++ {
		for x := 0; x < ib.Dx(); x++ {
			g := color.GrayModel.Convert(mask.At(mb.Min.X+x, mb.Min.Y+y)).(color.Gray)
			if g.Y != 0 {
				continue
			}
			i := out.PixOffset(x, y)
			copy(out.Pix[i:i+4], []byte{0, 0, 0, 0})
		}
	}
	return out, nil
}

// EncodePNG renders img as PNG bytes.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
