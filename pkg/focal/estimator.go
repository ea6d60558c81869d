// Package focal estimates the point of interest of a photograph. Estimates
// descend through three tiers: object detections, salient regions, and the
// geometric center, each tagged with its provenance and a confidence.
package focal

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/rs/zerolog"

	"github.com/osanchezv/focalcrop/pkg/types"
)

const (
	// Focal coordinates are clamped away from the image edges so that
	// crops planned around them keep context on every side.
	MinFocalCoord = 0.15
	MaxFocalCoord = 0.85

	// MinContourArea is the noise floor for salient regions: contours
	// smaller than this many square pixels are ignored.
	MinContourArea = 100.0

	// SaliencyConfidence is assigned to saliency-derived focal points and
	// EmptyMaskConfidence to the center fallback taken when the saliency
	// mask yields no usable contours. Fixed heuristics, not derived from
	// mask statistics.
	SaliencyConfidence  = 0.5
	EmptyMaskConfidence = 0.3
)

// ObjectSource locates known object classes in an image. Implementations
// return detections in pixel coordinates, already filtered to the given
// confidence threshold.
type ObjectSource interface {
	Detect(ctx context.Context, img image.Image, prompts []string, threshold float64) ([]types.Detection, error)
}

// SaliencySource finds visually salient regions of an image as pixel
// contours.
type SaliencySource interface {
	SalientRegions(img image.Image) ([]types.Contour, error)
}

// Estimator produces one focal point per image, trying object detection
// first, then saliency, then the geometric center. Source failures demote
// to the next tier; they never abort the estimate.
type Estimator struct {
	objects   ObjectSource
	saliency  SaliencySource
	prompts   []string
	threshold float64
	log       zerolog.Logger
}

// NewEstimator creates an estimator over the given sources. Either source
// may be nil, in which case its tier is skipped.
func NewEstimator(objects ObjectSource, saliency SaliencySource, prompts []string, threshold float64) *Estimator {
	return &Estimator{
		objects:   objects,
		saliency:  saliency,
		prompts:   prompts,
		threshold: threshold,
		log:       zerolog.Nop(),
	}
}

// WithLogger returns a copy of the estimator that logs tier fallbacks.
func (e *Estimator) WithLogger(log zerolog.Logger) *Estimator {
	c := *e
	c.log = log
	return &c
}

// Estimate computes the focal point of img. The returned point is always
// usable; an error is returned only for a nil or empty image.
func (e *Estimator) Estimate(ctx context.Context, img image.Image) (types.FocalPoint, error) {
	if img == nil {
		return types.FocalPoint{}, errors.New("nil image")
	}
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= 0 || height <= 0 {
		return types.FocalPoint{}, fmt.Errorf("invalid image dimensions %dx%d", width, height)
	}

	if e.objects != nil {
		detections, err := e.objects.Detect(ctx, img, e.prompts, e.threshold)
		if err != nil {
			e.log.Warn().Err(err).Msg("object detection unavailable, falling back to saliency")
		} else if len(detections) > 0 {
			return FromDetections(detections, width, height)
		}
	}

	if e.saliency != nil {
		contours, err := e.saliency.SalientRegions(img)
		if err != nil {
			e.log.Warn().Err(err).Msg("saliency unavailable, falling back to image center")
			return Center(), nil
		}
		return FromContours(contours, width, height)
	}

	return Center(), nil
}

// FromDetections derives a focal point from object detections. Each
// detection pulls the point toward its center with weight
// confidence * sqrt(area/imageArea), so large confident subjects dominate
// without letting a huge low-confidence box drown out a small sharp one.
// The aggregate confidence is the mean confidence of the contributing
// detections. Boxes are clamped to the image; empty boxes are ignored.
func FromDetections(detections []types.Detection, imageWidth, imageHeight int) (types.FocalPoint, error) {
	if imageWidth <= 0 || imageHeight <= 0 {
		return types.FocalPoint{}, fmt.Errorf("invalid image dimensions %dx%d", imageWidth, imageHeight)
	}

	imageArea := float64(imageWidth) * float64(imageHeight)
	var sumX, sumY, totalWeight, confidenceSum float64
	contributing := 0

	for _, det := range detections {
		det, ok := det.ClampTo(imageWidth, imageHeight)
		if !ok {
			continue
		}
		weight := det.Confidence * math.Sqrt(float64(det.Area())/imageArea)
		sumX += det.CenterX() * weight
		sumY += det.CenterY() * weight
		totalWeight += weight
		confidenceSum += det.Confidence
		contributing++
	}

	if totalWeight == 0 {
		return types.FocalPoint{X: 0.5, Y: 0.5, Confidence: 0, Method: types.MethodCenter}, nil
	}

	return types.FocalPoint{
		X:          clamp(sumX/totalWeight/float64(imageWidth), MinFocalCoord, MaxFocalCoord),
		Y:          clamp(sumY/totalWeight/float64(imageHeight), MinFocalCoord, MaxFocalCoord),
		Confidence: confidenceSum / float64(contributing),
		Method:     types.MethodDetector,
	}, nil
}

// FromContours derives a focal point from salient-region contours as the
// area-weighted mean of their centroids. Contours below MinContourArea are
// discarded; if none survive the image center is returned with
// EmptyMaskConfidence.
func FromContours(contours []types.Contour, imageWidth, imageHeight int) (types.FocalPoint, error) {
	if imageWidth <= 0 || imageHeight <= 0 {
		return types.FocalPoint{}, fmt.Errorf("invalid image dimensions %dx%d", imageWidth, imageHeight)
	}

	var sumX, sumY, totalArea float64
	for _, contour := range contours {
		area := contour.Area()
		if area < MinContourArea {
			continue
		}
		cx, cy := contour.Centroid()
		sumX += cx * area
		sumY += cy * area
		totalArea += area
	}

	if totalArea == 0 {
		return types.FocalPoint{X: 0.5, Y: 0.5, Confidence: EmptyMaskConfidence, Method: types.MethodCenter}, nil
	}

	return types.FocalPoint{
		X:          clamp(sumX/totalArea/float64(imageWidth), MinFocalCoord, MaxFocalCoord),
		Y:          clamp(sumY/totalArea/float64(imageHeight), MinFocalCoord, MaxFocalCoord),
		Confidence: SaliencyConfidence,
		Method:     types.MethodSaliency,
	}, nil
}

// Center returns the geometric-center fallback with zero confidence.
func Center() types.FocalPoint {
	return types.FocalPoint{X: 0.5, Y: 0.5, Confidence: 0, Method: types.MethodCenter}
}

func clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
