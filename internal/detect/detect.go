// Package detect finds objects in images with a YOLOv8 model exported to ONNX.
package detect

import (
	"context"
	"image"
	"math"
	"sort"

	"github.com/spencerau/NeRF-to-3DPrint/internal/types"
)

const (
	InputSize     = 640
	NumAnchors    = 8400
	NumClasses    = 80
	ConfThreshold = 0.25
	IoUThreshold  = 0.7
)

// Detector returns the objects found in img, boxes in img's pixel coordinates,
// highest confidence first.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]types.Detection, error)
	Close() error
}

// Decode turns the raw 1x84x8400 output into detections above conf.
// Rows 0-3 hold the box centre and size in input pixels, rows 4-83 the class scores.
func Decode(predictions []float32, origW, origH int, conf float32) []types.Detection {
	scaleX := float64(origW) / InputSize
	scaleY := float64(origH) / InputSize

	var dets []types.Detection
	for i := 0; i < NumAnchors; i++ {
		best, class := float32(0), -1
		for c := 0; c < NumClasses; c++ {
			if s := predictions[(4+c)*NumAnchors+i]; s > best {
				best, class = s, c
			}
		}
		if class < 0 || best < conf {
			continue
		}

		cx := float64(predictions[i])
		cy := float64(predictions[NumAnchors+i])
		w := float64(predictions[2*NumAnchors+i])
		h := float64(predictions[3*NumAnchors+i])

		dets = append(dets, types.Detection{
			Box: types.Box{
				math.Max(0, (cx-w/2)*scaleX),
				math.Max(0, (cy-h/2)*scaleY),
				math.Min(float64(origW), (cx+w/2)*scaleX),
				math.Min(float64(origH), (cy+h/2)*scaleY),
			},
			Confidence: best,
			Class:      class,
		})
	}
	return dets
}

// IOU is the intersection over union of two xyxy boxes.
func IOU(a, b types.Box) float64 {
	x1 := math.Max(a[0], b[0])
	y1 := math.Max(a[1], b[1])
	x2 := math.Min(a[2], b[2])
	y2 := math.Min(a[3], b[3])

	if x2 <= x1 || y2 <= y1 {
		return 0.0
	}

	intersection := (x2 - x1) * (y2 - y1)
	area1 := (a[2] - a[0]) * (a[3] - a[1])
	area2 := (b[2] - b[0]) * (b[3] - b[1])
	return intersection / (area1 + area2 - intersection)
}

// NMS keeps the most confident box of every group overlapping by more than iou,
// regardless of class. The result is sorted by confidence, highest first.
func NMS(dets []types.Detection, iou float64) []types.Detection {
	sorted := make([]types.Detection, len(dets))
	copy(sorted, dets)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})

	var kept []types.Detection
	for _, d := range sorted {
		suppressed := false
		for _, k := range kept {
			if IOU(d.Box, k.Box) > iou {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, d)
		}
	}
	return kept
}
