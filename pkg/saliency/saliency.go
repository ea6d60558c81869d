// Package saliency finds visually prominent regions in an image using
// the spectral residual method, for pictures where object detection
// comes up empty.
package saliency

import (
	"errors"
	"fmt"
	"image"
	"image/draw"

	"gocv.io/x/gocv"

	"github.com/osanchezv/focalcrop/pkg/types"
)

// residualSize is the working resolution for the spectral residual
// transform. Saliency is a coarse property, so the map is computed on
// a small square and scaled back up afterwards.
const residualSize = 64

// smoothKernel is the Gaussian kernel applied to the full-size
// saliency map before thresholding, to merge nearby hotspots into
// contiguous regions.
const smoothKernel = 25

// Detector computes saliency maps and extracts salient regions as
// contours in source-image pixel coordinates.
type Detector struct{}

func NewDetector() *Detector {
	return &Detector{}
}

// SalientRegions returns the outlines of the visually prominent areas
// of img. The returned contours use source pixel coordinates. An image
// with no stand-out regions yields an empty slice, not an error.
func (d *Detector) SalientRegions(img image.Image) ([]types.Contour, error) {
	if img == nil {
		return nil, errors.New("nil image")
	}
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("image has no pixels (%dx%d)", width, height)
	}

	gray, err := grayMat(img)
	if err != nil {
		return nil, err
	}
	defer gray.Close()

	salMap := spectralResidual(gray)
	defer salMap.Close()

	// Scale back to source size so contour coordinates map directly
	// onto the image.
	full := gocv.NewMat()
	defer full.Close()
	gocv.Resize(salMap, &full, image.Point{X: width, Y: height}, 0, 0, gocv.InterpolationLinear)

	smoothed := gocv.NewMat()
	defer smoothed.Close()
	gocv.GaussianBlur(full, &smoothed, image.Point{X: smoothKernel, Y: smoothKernel}, 0, 0, gocv.BorderDefault)

	mask := gocv.NewMat()
	defer mask.Close()
	gocv.Threshold(smoothed, &mask, 0, 255, gocv.ThresholdBinary+gocv.ThresholdOtsu)

	contours := gocv.FindContours(mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	regions := make([]types.Contour, 0, contours.Size())
	for i := 0; i < contours.Size(); i++ {
		points := contours.At(i).ToPoints()
		if len(points) == 0 {
			continue
		}
		regions = append(regions, types.Contour{Points: points})
	}
	return regions, nil
}

// spectralResidual implements Hou & Zhang's saliency measure: the
// difference between the image's log amplitude spectrum and a local
// average of it marks the spectral components that stand out, and
// transforming that residual back to the spatial domain marks the
// corresponding regions. Returns an 8-bit map normalized to 0-255.
func spectralResidual(gray gocv.Mat) gocv.Mat {
	small := gocv.NewMat()
	defer small.Close()
	gocv.Resize(gray, &small, image.Point{X: residualSize, Y: residualSize}, 0, 0, gocv.InterpolationLinear)

	floats := gocv.NewMat()
	defer floats.Close()
	small.ConvertTo(&floats, gocv.MatTypeCV32F)

	spectrum := gocv.NewMat()
	defer spectrum.Close()
	gocv.DFT(floats, &spectrum, gocv.DftComplexOutput)

	planes := gocv.Split(spectrum)
	defer closeAll(planes)

	magnitude := gocv.NewMat()
	defer magnitude.Close()
	gocv.Magnitude(planes[0], planes[1], &magnitude)

	angle := gocv.NewMat()
	defer angle.Close()
	gocv.Phase(planes[0], planes[1], &angle, false)

	// log(1 + magnitude) keeps the empty frequency bins finite.
	magnitude.AddFloat(1)
	logAmplitude := gocv.NewMat()
	defer logAmplitude.Close()
	gocv.Log(magnitude, &logAmplitude)

	averaged := gocv.NewMat()
	defer averaged.Close()
	gocv.Blur(logAmplitude, &averaged, image.Point{X: 3, Y: 3})

	residual := gocv.NewMat()
	defer residual.Close()
	gocv.Subtract(logAmplitude, averaged, &residual)

	residualAmp := gocv.NewMat()
	defer residualAmp.Close()
	gocv.Exp(residual, &residualAmp)

	// Recombine the residual amplitude with the original phase and
	// return to the spatial domain.
	gocv.PolarToCart(residualAmp, angle, &planes[0], &planes[1], false)
	recombined := gocv.NewMat()
	defer recombined.Close()
	gocv.Merge(planes, &recombined)

	spatial := gocv.NewMat()
	defer spatial.Close()
	gocv.DFT(recombined, &spatial, gocv.DftInverse)

	parts := gocv.Split(spatial)
	defer closeAll(parts)

	power := gocv.NewMat()
	defer power.Close()
	gocv.Magnitude(parts[0], parts[1], &power)

	squared := gocv.NewMat()
	defer squared.Close()
	gocv.Multiply(power, power, &squared)

	scaled := gocv.NewMat()
	defer scaled.Close()
	gocv.Normalize(squared, &scaled, 0, 255, gocv.NormMinMax)

	out := gocv.NewMat()
	scaled.ConvertTo(&out, gocv.MatTypeCV8U)
	return out
}

// grayMat converts any image to a dense single-channel Mat.
func grayMat(img image.Image) (gocv.Mat, error) {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	gray, ok := img.(*image.Gray)
	if !ok || bounds.Min != (image.Point{}) || gray.Stride != width {
		converted := image.NewGray(image.Rect(0, 0, width, height))
		draw.Draw(converted, converted.Bounds(), img, bounds.Min, draw.Src)
		gray = converted
	}

	mat, err := gocv.NewMatFromBytes(height, width, gocv.MatTypeCV8UC1, gray.Pix)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("grayscale mat: %w", err)
	}
	return mat, nil
}

func closeAll(mats []gocv.Mat) {
	for i := range mats {
		mats[i].Close()
	}
}
