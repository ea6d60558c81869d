// Package cropper plans and applies focal-point centered crops. A planned
// crop is the largest window of the target aspect ratio that fits inside
// the source image, positioned so the focal point sits as close to the
// window center as the image edges allow.
package cropper

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"

	"github.com/osanchezv/focalcrop/pkg/types"
)

// ErrInvalidDimensions is returned when an image or target dimension is
// zero or negative.
var ErrInvalidDimensions = errors.New("invalid dimensions")

// PlanCrop computes the crop window for rendering an imageWidth x
// imageHeight source at the target dimensions. The window always has the
// target aspect ratio (up to integer rounding), spans the image along its
// constrained axis, and is centered on the focal point, shifted only as
// far as needed to stay inside the image.
func PlanCrop(imageWidth, imageHeight, targetWidth, targetHeight int, fp types.FocalPoint) (types.CropRect, error) {
	if imageWidth <= 0 || imageHeight <= 0 {
		return types.CropRect{}, fmt.Errorf("image %dx%d: %w", imageWidth, imageHeight, ErrInvalidDimensions)
	}
	if targetWidth <= 0 || targetHeight <= 0 {
		return types.CropRect{}, fmt.Errorf("target %dx%d: %w", targetWidth, targetHeight, ErrInvalidDimensions)
	}

	targetRatio := float64(targetWidth) / float64(targetHeight)
	imageRatio := float64(imageWidth) / float64(imageHeight)

	var cropWidth, cropHeight int
	if imageRatio > targetRatio {
		// Image is wider than the target: span the full height.
		cropHeight = imageHeight
		cropWidth = int(math.Round(float64(cropHeight) * targetRatio))
	} else {
		cropWidth = imageWidth
		cropHeight = int(math.Round(float64(cropWidth) / targetRatio))
	}
	cropWidth = minInt(cropWidth, imageWidth)
	cropHeight = minInt(cropHeight, imageHeight)

	x := int(math.Round(fp.PixelX(imageWidth) - float64(cropWidth)/2))
	y := int(math.Round(fp.PixelY(imageHeight) - float64(cropHeight)/2))

	return types.CropRect{
		X:      clampInt(x, 0, imageWidth-cropWidth),
		Y:      clampInt(y, 0, imageHeight-cropHeight),
		Width:  cropWidth,
		Height: cropHeight,
	}, nil
}

// Apply cuts rect out of img and resamples it to exactly
// targetWidth x targetHeight using Lanczos.
func Apply(img image.Image, rect types.CropRect, targetWidth, targetHeight int) (image.Image, error) {
	if targetWidth <= 0 || targetHeight <= 0 {
		return nil, fmt.Errorf("target %dx%d: %w", targetWidth, targetHeight, ErrInvalidDimensions)
	}
	bounds := img.Bounds()
	if !rect.In(bounds.Dx(), bounds.Dy()) {
		return nil, fmt.Errorf("crop window %+v outside %dx%d image", rect, bounds.Dx(), bounds.Dy())
	}

	cropped := imaging.Crop(img, rect.Bounds().Add(bounds.Min))
	return imaging.Resize(cropped, targetWidth, targetHeight, imaging.Lanczos), nil
}

// CropToFormat plans and applies the crop for one output format in a
// single call.
func CropToFormat(img image.Image, format types.FormatSpec, fp types.FocalPoint) (image.Image, error) {
	if err := format.Validate(); err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrInvalidDimensions)
	}
	bounds := img.Bounds()

	rect, err := PlanCrop(bounds.Dx(), bounds.Dy(), format.Width, format.Height, fp)
	if err != nil {
		return nil, err
	}
	return Apply(img, rect, format.Width, format.Height)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
