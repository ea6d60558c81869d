// Package onnx runs YOLO-style detection models locally through ONNX
// Runtime, as an alternative to the remote vision-model backends.
package onnx

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"math"
	"os"
	"sort"
	"sync"

	"github.com/nfnt/resize"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/osanchezv/focalcrop/pkg/types"
)

const defaultIoUThreshold = 0.45

// Metadata describes an exported detection model: tensor shapes, the class
// list the model was exported with, and the tensor names.
type Metadata struct {
	InputShape  []int64  `json:"input_shape"`
	OutputShape []int64  `json:"output_shape"`
	Classes     []string `json:"classes"`
	ImageSize   int      `json:"image_size"`
	InputName   string   `json:"input_name,omitempty"`
	OutputName  string   `json:"output_name,omitempty"`
}

func (m *Metadata) applyDefaults() {
	if m.InputName == "" {
		m.InputName = "images"
	}
	if m.OutputName == "" {
		m.OutputName = "output0"
	}
	if m.ImageSize == 0 && len(m.InputShape) == 4 {
		m.ImageSize = int(m.InputShape[3])
	}
}

func (m *Metadata) validate() error {
	if len(m.Classes) == 0 {
		return fmt.Errorf("metadata lists no classes")
	}
	if m.ImageSize <= 0 {
		return fmt.Errorf("metadata has no usable input size")
	}
	if len(m.OutputShape) != 3 {
		return fmt.Errorf("unexpected output shape %v, want [1, 4+classes, anchors]", m.OutputShape)
	}
	if got, want := m.OutputShape[1], int64(4+len(m.Classes)); got != want {
		return fmt.Errorf("output shape %v does not match %d classes", m.OutputShape, len(m.Classes))
	}
	return nil
}

// Detector owns one ONNX Runtime session. The session is created on the
// first Detect call and reused afterwards; SetModel tears it down only
// when the requested model actually changes. Run calls are serialized
// because the session shares its input and output tensors.
type Detector struct {
	mu           sync.Mutex
	modelPath    string
	metadataPath string
	loadedPath   string
	metadata     Metadata
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	iouThreshold float64
}

// NewDetector creates a detector for a model file and its metadata JSON.
// Nothing is loaded until the first Detect call.
func NewDetector(modelPath, metadataPath string) *Detector {
	return &Detector{
		modelPath:    modelPath,
		metadataPath: metadataPath,
		iouThreshold: defaultIoUThreshold,
	}
}

// SetModel switches the detector to a different model. A no-op when the
// path is unchanged, so callers can set it per batch without reloading.
func (d *Detector) SetModel(modelPath, metadataPath string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if modelPath == d.modelPath && metadataPath == d.metadataPath {
		return
	}
	d.closeLocked()
	d.modelPath = modelPath
	d.metadataPath = metadataPath
}

// Warmup loads the model eagerly. Detect loads lazily on first use, so
// this exists for callers that want load errors up front.
func (d *Detector) Warmup() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ensureLoadedLocked()
}

// Detect runs the model on img and returns detections above threshold in
// image pixel coordinates. Prompts override the metadata class names only
// when the counts match; an exported model cannot detect classes it was
// not built with.
func (d *Detector) Detect(ctx context.Context, img image.Image, prompts []string, threshold float64) ([]types.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid image dimensions %dx%d", width, height)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.ensureLoadedLocked(); err != nil {
		return nil, err
	}

	copy(d.inputTensor.GetData(), Preprocess(img, d.metadata.ImageSize))
	if err := d.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	labels := d.labels(prompts)
	dets := DecodeBoxes(d.outputTensor.GetData(), d.metadata.OutputShape, labels, threshold)
	dets = NonMaxSuppression(dets, d.iouThreshold)
	return scaleToImage(dets, d.metadata.ImageSize, width, height), nil
}

// Close releases the session and tensors. The detector reloads on the
// next Detect call if used again.
func (d *Detector) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closeLocked()
}

func (d *Detector) closeLocked() {
	if d.inputTensor != nil {
		d.inputTensor.Destroy()
		d.inputTensor = nil
	}
	if d.outputTensor != nil {
		d.outputTensor.Destroy()
		d.outputTensor = nil
	}
	if d.session != nil {
		d.session.Destroy()
		d.session = nil
	}
	d.loadedPath = ""
}

func (d *Detector) ensureLoadedLocked() error {
	if d.session != nil && d.loadedPath == d.modelPath {
		return nil
	}
	d.closeLocked()

	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	}

	metaFile, err := os.ReadFile(d.metadataPath)
	if err != nil {
		return fmt.Errorf("failed to read metadata: %w", err)
	}
	var metadata Metadata
	if err := json.Unmarshal(metaFile, &metadata); err != nil {
		return fmt.Errorf("failed to parse metadata: %w", err)
	}
	metadata.applyDefaults()
	if err := metadata.validate(); err != nil {
		return err
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.InputShape...))
	if err != nil {
		return fmt.Errorf("failed to create input tensor: %w", err)
	}
	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.OutputShape...))
	if err != nil {
		inputTensor.Destroy()
		return fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(d.modelPath,
		[]string{metadata.InputName}, []string{metadata.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return fmt.Errorf("failed to create ONNX session: %w", err)
	}

	d.metadata = metadata
	d.session = session
	d.inputTensor = inputTensor
	d.outputTensor = outputTensor
	d.loadedPath = d.modelPath
	return nil
}

func (d *Detector) labels(prompts []string) []string {
	if len(prompts) == len(d.metadata.Classes) && len(prompts) > 0 {
		return prompts
	}
	return d.metadata.Classes
}

// Preprocess resizes the image to a size x size square and lays it out as
// CHW float32 values in [0,1].
func Preprocess(img image.Image, size int) []float32 {
	resized := resize.Resize(uint(size), uint(size), img, resize.Lanczos3)

	data := make([]float32, 3*size*size)
	plane := size * size
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			r, g, b, _ := resized.At(x, y).RGBA()
			i := y*size + x
			data[i] = float32(r) / 65535.0
			data[plane+i] = float32(g) / 65535.0
			data[2*plane+i] = float32(b) / 65535.0
		}
	}
	return data
}

// DecodeBoxes turns a YOLO-style [1, 4+C, N] output tensor into detections
// in model-input pixel coordinates. Each anchor carries a center-format box
// followed by per-class scores; the best class wins.
func DecodeBoxes(data []float32, outputShape []int64, labels []string, threshold float64) []types.Detection {
	if len(outputShape) != 3 {
		return nil
	}
	attrs := int(outputShape[1])
	anchors := int(outputShape[2])
	classes := attrs - 4
	if classes <= 0 || len(data) < attrs*anchors {
		return nil
	}

	var dets []types.Detection
	for j := 0; j < anchors; j++ {
		bestClass := 0
		bestScore := float32(0)
		for c := 0; c < classes; c++ {
			if score := data[(4+c)*anchors+j]; score > bestScore {
				bestScore = score
				bestClass = c
			}
		}
		if float64(bestScore) < threshold {
			continue
		}

		cx := float64(data[0*anchors+j])
		cy := float64(data[1*anchors+j])
		w := float64(data[2*anchors+j])
		h := float64(data[3*anchors+j])

		label := ""
		if bestClass < len(labels) {
			label = labels[bestClass]
		}
		dets = append(dets, types.Detection{
			ClassName:  label,
			Confidence: float64(bestScore),
			X1:         int(math.Round(cx - w/2)),
			Y1:         int(math.Round(cy - h/2)),
			X2:         int(math.Round(cx + w/2)),
			Y2:         int(math.Round(cy + h/2)),
		})
	}
	return dets
}

// NonMaxSuppression keeps the most confident detection among overlapping
// same-class boxes.
func NonMaxSuppression(dets []types.Detection, iouThreshold float64) []types.Detection {
	sorted := make([]types.Detection, len(dets))
	copy(sorted, dets)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})

	var kept []types.Detection
	for _, cand := range sorted {
		suppressed := false
		for _, k := range kept {
			if k.ClassName == cand.ClassName && iou(k, cand) > iouThreshold {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, cand)
		}
	}
	return kept
}

func iou(a, b types.Detection) float64 {
	ix1 := maxInt(a.X1, b.X1)
	iy1 := maxInt(a.Y1, b.Y1)
	ix2 := minInt(a.X2, b.X2)
	iy2 := minInt(a.Y2, b.Y2)

	iw := ix2 - ix1
	ih := iy2 - iy1
	if iw <= 0 || ih <= 0 {
		return 0
	}
	inter := float64(iw * ih)
	union := float64(a.Area()+b.Area()) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// scaleToImage maps detections from model-input coordinates back to the
// source image, clamping to its bounds.
func scaleToImage(dets []types.Detection, inputSize, width, height int) []types.Detection {
	sx := float64(width) / float64(inputSize)
	sy := float64(height) / float64(inputSize)

	out := make([]types.Detection, 0, len(dets))
	for _, det := range dets {
		det.X1 = int(math.Round(float64(det.X1) * sx))
		det.X2 = int(math.Round(float64(det.X2) * sx))
		det.Y1 = int(math.Round(float64(det.Y1) * sy))
		det.Y2 = int(math.Round(float64(det.Y2) * sy))
		if det, ok := det.ClampTo(width, height); ok {
			out = append(out, det)
		}
	}
	return out
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
