// Package focalcrop derives focus-aware crops of photographs in fixed
// output formats.
//
// The package estimates the most interesting point of each image and
// renders crops of exact pixel dimensions centered on it. The focal point
// comes from one of three sources, tried in order: object detection
// through a vision backend, spectral-residual saliency, and the geometric
// image center as the last resort.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"fmt"
//		"log"
//
//		"github.com/osanchezv/focalcrop"
//	)
//
//	func main() {
//		fc := focalcrop.New()
//
//		// Load and inspect an image
//		img, err := fc.LoadImage("photo.jpg")
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		info := fc.Info(img)
//		fmt.Printf("Image: %dx%d (ratio: %.2f)\n", info.Width, info.Height, info.AspectRatio)
//
//		// Find the focal point
//		fp, err := fc.EstimateFocalPoint(context.Background(), img)
//		if err != nil {
//			log.Fatal(err)
//		}
//		fmt.Printf("Focal point: (%.2f, %.2f) via %s\n", fp.X, fp.Y, fp.Method)
//
//		// Render every configured format into the output directory
//		if err := fc.ProcessFile(context.Background(), "photo.jpg", "output"); err != nil {
//			log.Fatal(err)
//		}
//	}
//
// The package consists of four main components:
//
// 1. Focal (pkg/focal): Estimates the focal point through tiered sources
// 2. Cropper (pkg/cropper): Plans and applies focal-centered crop windows
// 3. Processing (pkg/processing): Handles image loading, saving and debug overlays
// 4. Batch (pkg/batch): Processes whole directories on a worker pool
//
// Features:
//
//   - Focal point estimation with detector, saliency and center tiers
//   - Crops that keep the subject in frame for any target dimensions
//   - JPEG, PNG and WebP output with configurable quality
//   - Idempotent batch runs that fill in missing renditions only
//   - CLI tool for directory processing (cmd/focalcrop)
//
// Detection backends live under pkg/ollama, pkg/llamacpp and pkg/onnx,
// and the OpenCV saliency detector under pkg/saliency. None of them are
// linked from this package, so importing it pulls in neither OpenCV nor
// ONNX Runtime. Wire backends in through NewWithSources when detection
// or saliency is wanted; without them every estimate settles on the
// image center, which still produces valid crops.
package focalcrop

import (
	"context"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"strings"

	"github.com/osanchezv/focalcrop/internal/utils"
	"github.com/osanchezv/focalcrop/pkg/cropper"
	"github.com/osanchezv/focalcrop/pkg/focal"
	"github.com/osanchezv/focalcrop/pkg/processing"
	"github.com/osanchezv/focalcrop/pkg/types"
)

// Version of the focalcrop library
const Version = "1.0.0"

// defaultQuality is used when saving through the facade, where no
// encoder settings are exposed.
const defaultQuality = 90

// FocalCrop provides a high-level interface for focal point estimation
// and format-driven cropping.
type FocalCrop struct {
	proc      *processing.Processor
	estimator *focal.Estimator
	formats   []types.FormatSpec
}

// New creates a FocalCrop with the stock output formats and no detection
// backends. Every focal estimate falls through to the image center.
func New() *FocalCrop {
	return NewWithSources(nil, nil, nil, 0)
}

// NewWithSources creates a FocalCrop whose estimates descend through the
// given object and saliency sources. Either source may be nil to skip
// its tier. Prompts and threshold are forwarded to the object source on
// every estimate.
func NewWithSources(objects focal.ObjectSource, saliency focal.SaliencySource, prompts []string, threshold float64) *FocalCrop {
	return &FocalCrop{
		proc:      processing.NewProcessor(),
		estimator: focal.NewEstimator(objects, saliency, prompts, threshold),
		formats:   types.DefaultFormats(),
	}
}

// SetFormats replaces the output formats rendered by ProcessFile.
func (fc *FocalCrop) SetFormats(formats []types.FormatSpec) error {
	if len(formats) == 0 {
		return errors.New("at least one output format is required")
	}
	for _, format := range formats {
		if err := format.Validate(); err != nil {
			return err
		}
	}
	fc.formats = append([]types.FormatSpec(nil), formats...)
	return nil
}

// LoadImage loads an image from a file path or an http(s) URL.
func (fc *FocalCrop) LoadImage(source string) (image.Image, error) {
	return fc.proc.LoadImageSmart(source)
}

// SaveImage saves an image to a file, inferring the encoder from the
// path extension. Unknown extensions are written as JPEG.
func (fc *FocalCrop) SaveImage(img image.Image, path string) error {
	format := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if format == "" {
		format = "jpg"
	}
	return fc.proc.SaveImage(img, path, format, defaultQuality, false)
}

// EstimateFocalPoint computes the focal point of an image.
func (fc *FocalCrop) EstimateFocalPoint(ctx context.Context, img image.Image) (types.FocalPoint, error) {
	return fc.estimator.Estimate(ctx, img)
}

// CropToFormat crops an image to one output format, centered on the
// given focal point.
func (fc *FocalCrop) CropToFormat(img image.Image, format types.FormatSpec, fp types.FocalPoint) (image.Image, error) {
	return cropper.CropToFormat(img, format, fp)
}

// Info returns basic geometry information about an image.
func (fc *FocalCrop) Info(img image.Image) processing.ImageInfo {
	return fc.proc.Info(img)
}

// ProcessImage renders every configured format of an image in memory,
// keyed by format name. The focal point is estimated once and shared
// across formats.
func (fc *FocalCrop) ProcessImage(ctx context.Context, img image.Image) (map[string]image.Image, error) {
	fp, err := fc.EstimateFocalPoint(ctx, img)
	if err != nil {
		return nil, err
	}

	crops := make(map[string]image.Image, len(fc.formats))
	for _, format := range fc.formats {
		cropped, err := cropper.CropToFormat(img, format, fp)
		if err != nil {
			return nil, fmt.Errorf("cropping to %s failed: %w", format.Name, err)
		}
		crops[format.Name] = cropped
	}
	return crops, nil
}

// ProcessFile is a convenience method that loads an image, estimates its
// focal point once and renders every configured format into outputDir.
// Output files keep the input extension and are named from the input
// stem plus each format's suffix.
func (fc *FocalCrop) ProcessFile(ctx context.Context, inputPath, outputDir string) error {
	img, err := fc.LoadImage(inputPath)
	if err != nil {
		return fmt.Errorf("failed to load image: %w", err)
	}

	fp, err := fc.EstimateFocalPoint(ctx, img)
	if err != nil {
		return fmt.Errorf("focal point estimation failed: %w", err)
	}

	if err := utils.EnsureDir(outputDir); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	for _, format := range fc.formats {
		cropped, err := cropper.CropToFormat(img, format, fp)
		if err != nil {
			return fmt.Errorf("cropping to %s failed: %w", format.Name, err)
		}
		outputPath := utils.OutputFilename(inputPath, outputDir, format.OutputSuffix(), "")
		if err := fc.SaveImage(cropped, outputPath); err != nil {
			return fmt.Errorf("failed to save %s: %w", format.Name, err)
		}
	}

	return nil
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
