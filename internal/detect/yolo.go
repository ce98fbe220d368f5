package detect

import (
	"context"
	"fmt"
	"image"
	"os"
	"runtime"

	"github.com/disintegration/imaging"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/spencerau/NeRF-to-3DPrint/internal/types"
)

// DefaultModel is the file name looked up when no model path is given.
const DefaultModel = "yolov8x.onnx"

// YOLO runs a YOLOv8 ONNX export. It is not safe for concurrent use.
type YOLO struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

// NewYOLO loads the onnxruntime shared library (libPath may be empty to use the
// platform default) and opens a session on modelPath.
func NewYOLO(modelPath, libPath string) (*YOLO, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("model file not found: %w", err)
	}

	if !ort.IsInitialized() {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize onnxruntime: %w", err)
		}
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("error creating session options: %w", err)
	}
	defer options.Destroy()

	options.SetIntraOpNumThreads(runtime.NumCPU())
	options.SetInterOpNumThreads(runtime.NumCPU())

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, InputSize, InputSize))
	if err != nil {
		return nil, fmt.Errorf("error creating input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 4+NumClasses, NumAnchors))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("error creating output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{"images"},
		[]string{"output0"},
		[]ort.ArbitraryTensor{inputTensor},
		[]ort.ArbitraryTensor{outputTensor},
		options,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("error creating session: %w", err)
	}

	return &YOLO{session: session, input: inputTensor, output: outputTensor}, nil
}

// Detect implements Detector.
func (y *YOLO) Detect(ctx context.Context, img image.Image) ([]types.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	PrepareInput(img, y.input.GetData())
	if err := y.session.Run(); err != nil {
		return nil, fmt.Errorf("model inference: %w", err)
	}

	b := img.Bounds()
	dets := Decode(y.output.GetData(), b.Dx(), b.Dy(), ConfThreshold)
	return NMS(dets, IoUThreshold), nil
}

// Close releases the session and its tensors.
func (y *YOLO) Close() error {
	if y.session != nil {
		y.session.Destroy()
	}
	if y.input != nil {
		y.input.Destroy()
	}
	if y.output != nil {
		y.output.Destroy()
	}
	return nil
}

// PrepareInput resizes img to the network input and writes it into dst as planar RGB in [0, 1].
func PrepareInput(img image.Image, dst []float32) {
	resized := imaging.Resize(img, InputSize, InputSize, imaging.Linear)
	channelSize := InputSize * InputSize

	for y := 0; y < InputSize; y++ {
		row := y * resized.Stride
		offset := y * InputSize
		for x := 0; x < InputSize; x++ {
			p := resized.Pix[row+x*4 : row+x*4+3]
			i := offset + x
			dst[i] = float32(p[0]) / 255.0
			dst[channelSize+i] = float32(p[1]) / 255.0
			dst[channelSize*2+i] = float32(p[2]) / 255.0
		}
	}
}
