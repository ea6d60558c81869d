package detection

import (
	"context"
	"fmt"
	"image"
	"math"
	"strings"

	"github.com/osanchezv/focalcrop/pkg/client"
	"github.com/osanchezv/focalcrop/pkg/processing"
	"github.com/osanchezv/focalcrop/pkg/types"
)

// SimpleTestPrompt for testing if the model can see images
const SimpleTestPrompt = `What do you see in this image? Describe it briefly.`

// promptTemplate is the object-list contract sent to vision-model
// backends. The class list and confidence threshold are interpolated.
const promptTemplate = `You are an object locator for photographs.

Find every instance of these classes: %s.

Return JSON only:
{
  "objects": [
    {"label": "string", "confidence": 0.0, "box": {"x": 0.0, "y": 0.0, "w": 0.0, "h": 0.0}}
  ]
}

HARD RULES
- All coordinates are normalized to [0,1] (NOT pixels). x,y is the top-left corner.
- Report only the listed classes, using the class name as the label.
- confidence is in [0,1]; omit objects you believe are below %.2f.
- Each box must tightly enclose its object.
- If none of the classes are present, return {"objects": []}.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// Detector locates prompted object classes through a vision-model backend
// and converts the reported boxes into pixel-space detections.
type Detector struct {
	client  client.VisionClient
	model   string
	proc    *processing.Processor
	format  string
	maxDim  int
	quality int
}

// NewDetector creates a detector over a vision client and model name.
func NewDetector(visionClient client.VisionClient, model string) *Detector {
	return &Detector{
		client:  visionClient,
		model:   model,
		proc:    processing.NewProcessor(),
		format:  "jpg",
		maxDim:  1024,
		quality: 85,
	}
}

// SetPrepareOptions adjusts how images are downscaled and encoded before
// being sent to the backend.
func (d *Detector) SetPrepareOptions(format string, maxDim, quality int) {
	if format != "" {
		d.format = format
	}
	if maxDim > 0 {
		d.maxDim = maxDim
	}
	if quality > 0 {
		d.quality = quality
	}
}

// Detect sends the image to the backend and returns the detections for the
// prompted classes, clamped to the image and filtered to the threshold.
func (d *Detector) Detect(ctx context.Context, img image.Image, prompts []string, threshold float64) ([]types.Detection, error) {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid image dimensions %dx%d", width, height)
	}

	imgB64, err := d.proc.PrepareImageForModel(img, d.format, d.maxDim, d.quality)
	if err != nil {
		return nil, fmt.Errorf("prepare image: %w", err)
	}

	objects, err := d.client.DetectObjects(ctx, d.model, BuildPrompt(prompts, threshold), imgB64)
	if err != nil {
		return nil, err
	}

	return toDetections(objects, width, height, prompts, threshold), nil
}

// Probe asks the backend to describe the image in free text, to verify the
// model actually receives and understands the pixels.
func (d *Detector) Probe(ctx context.Context, img image.Image) (string, error) {
	imgB64, err := d.proc.PrepareImageForModel(img, d.format, d.maxDim, d.quality)
	if err != nil {
		return "", fmt.Errorf("prepare image: %w", err)
	}
	return d.client.SimpleQuery(ctx, d.model, SimpleTestPrompt, imgB64)
}

// BuildPrompt renders the detection prompt for a class list and threshold.
func BuildPrompt(prompts []string, threshold float64) string {
	classes := "any clearly dominant subject"
	if len(prompts) > 0 {
		classes = strings.Join(prompts, ", ")
	}
	return fmt.Sprintf(promptTemplate, classes, threshold)
}

// toDetections converts normalized model boxes to pixel detections.
// Models occasionally answer in pixel coordinates or with labels outside
// the requested classes; both are normalized away here rather than trusted.
func toDetections(objects []types.ModelDetection, width, height int, prompts []string, threshold float64) []types.Detection {
	out := make([]types.Detection, 0, len(objects))
	for _, obj := range objects {
		if obj.Confidence < threshold {
			continue
		}
		label := strings.ToLower(strings.TrimSpace(obj.Label))
		if !matchesPrompt(label, prompts) {
			continue
		}

		box := normalizeBox(obj.Box, width, height)
		det := types.Detection{
			ClassName:  label,
			Confidence: clamp(obj.Confidence, 0, 1),
			X1:         int(math.Round(box.X * float64(width))),
			Y1:         int(math.Round(box.Y * float64(height))),
			X2:         int(math.Round((box.X + box.W) * float64(width))),
			Y2:         int(math.Round((box.Y + box.H) * float64(height))),
		}
		det, ok := det.ClampTo(width, height)
		if !ok {
			continue
		}
		out = append(out, det)
	}
	return out
}

// matchesPrompt accepts labels that contain (or are contained in) one of
// the requested class names, so "tower crane" still matches "crane".
func matchesPrompt(label string, prompts []string) bool {
	if label == "" {
		return false
	}
	if len(prompts) == 0 {
		return true
	}
	for _, p := range prompts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if label == p || strings.Contains(label, p) || strings.Contains(p, label) {
			return true
		}
	}
	return false
}

// clamp ensures a value is within the given bounds
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// normalizeBox ensures box coordinates are within [0,1] bounds
func normalizeBox(b types.Box, imgW, imgH int) types.Box {
	// Convert from pixel coordinates if the values are clearly not normalized
	if b.X > 1 || b.Y > 1 || b.W > 1 || b.H > 1 {
		return types.Box{
			X: clamp(b.X/float64(imgW), 0, 1),
			Y: clamp(b.Y/float64(imgH), 0, 1),
			W: clamp(b.W/float64(imgW), 0, 1),
			H: clamp(b.H/float64(imgH), 0, 1),
		}
	}

	return types.Box{
		X: clamp(b.X, 0, 1),
		Y: clamp(b.Y, 0, 1),
		W: clamp(b.W, 0, 1),
		H: clamp(b.H, 0, 1),
	}
}
