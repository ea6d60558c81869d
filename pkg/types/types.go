package types

import (
	"fmt"
	"image"
	"math"
	"strings"
)

// Box represents a normalized bounding box with coordinates in [0,1] range.
// It is the wire form used by vision-model backends.
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// ModelDetection is a single object reported by a vision-model backend,
// with its bounding box still in normalized coordinates.
type ModelDetection struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
}

// Detection is an object located in a specific image, in pixel coordinates.
// X1,Y1 is the top-left corner and X2,Y2 the bottom-right corner.
type Detection struct {
	ClassName  string  `json:"class_name"`
	Confidence float64 `json:"confidence"`
	X1         int     `json:"x1"`
	Y1         int     `json:"y1"`
	X2         int     `json:"x2"`
	Y2         int     `json:"y2"`
}

// Valid reports whether the box has positive width and height.
func (d Detection) Valid() bool {
	return d.X2 > d.X1 && d.Y2 > d.Y1
}

// Width returns the box width in pixels.
func (d Detection) Width() int { return d.X2 - d.X1 }

// Height returns the box height in pixels.
func (d Detection) Height() int { return d.Y2 - d.Y1 }

// Area returns the box area in square pixels.
func (d Detection) Area() int { return d.Width() * d.Height() }

// CenterX returns the horizontal box center in pixels.
func (d Detection) CenterX() float64 { return float64(d.X1+d.X2) / 2 }

// CenterY returns the vertical box center in pixels.
func (d Detection) CenterY() float64 { return float64(d.Y1+d.Y2) / 2 }

// ClampTo clamps the box to an imageWidth x imageHeight canvas. The second
// return value reports whether a non-empty box remains after clamping.
func (d Detection) ClampTo(imageWidth, imageHeight int) (Detection, bool) {
	c := d
	c.X1 = clampInt(c.X1, 0, imageWidth)
	c.X2 = clampInt(c.X2, 0, imageWidth)
	c.Y1 = clampInt(c.Y1, 0, imageHeight)
	c.Y2 = clampInt(c.Y2, 0, imageHeight)
	return c, c.Valid()
}

// Method identifies which estimation tier produced a focal point.
type Method string

const (
	// MethodDetector marks focal points derived from object detections.
	MethodDetector Method = "detector"
	// MethodSaliency marks focal points derived from salient regions.
	MethodSaliency Method = "saliency"
	// MethodCenter marks the geometric-center fallback.
	MethodCenter Method = "center"
)

// FocalPoint is the point of interest of an image in normalized [0,1]
// coordinates, together with the confidence and provenance of the estimate.
type FocalPoint struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Confidence float64 `json:"confidence"`
	Method     Method  `json:"method"`
}

// PixelX converts the normalized X coordinate to pixels.
func (fp FocalPoint) PixelX(imageWidth int) float64 { return fp.X * float64(imageWidth) }

// PixelY converts the normalized Y coordinate to pixels.
func (fp FocalPoint) PixelY(imageHeight int) float64 { return fp.Y * float64(imageHeight) }

// FormatSpec names one output rendition: exact pixel dimensions plus the
// filename suffix appended to the input stem.
type FormatSpec struct {
	Name   string `json:"name"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Suffix string `json:"suffix,omitempty"`
}

// DefaultFormats returns the stock output renditions used when no
// formats are configured.
func DefaultFormats() []FormatSpec {
	return []FormatSpec{
		{Name: "xl", Width: 1440, Height: 1080},
		{Name: "md", Width: 632, Height: 474},
		{Name: "sm", Width: 260, Height: 195},
	}
}

// Ratio returns the width/height aspect ratio of the format.
func (f FormatSpec) Ratio() float64 {
	if f.Height == 0 {
		return 0
	}
	return float64(f.Width) / float64(f.Height)
}

// OutputSuffix returns the filename suffix, deriving one from the format
// name when none is configured.
func (f FormatSpec) OutputSuffix() string {
	if f.Suffix != "" {
		return f.Suffix
	}
	return "_" + strings.ToUpper(f.Name)
}

// Validate checks that the format describes a usable output size.
func (f FormatSpec) Validate() error {
	if f.Name == "" && f.Suffix == "" {
		return fmt.Errorf("format needs a name or a suffix")
	}
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("format %q has invalid dimensions %dx%d", f.Name, f.Width, f.Height)
	}
	return nil
}

// CropRect is a crop window in source-image pixel coordinates.
type CropRect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Ratio returns the width/height aspect ratio of the crop window.
func (r CropRect) Ratio() float64 {
	if r.Height == 0 {
		return 0
	}
	return float64(r.Width) / float64(r.Height)
}

// Bounds returns the crop window as an image.Rectangle.
func (r CropRect) Bounds() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// In reports whether the crop window lies fully inside an
// imageWidth x imageHeight canvas.
func (r CropRect) In(imageWidth, imageHeight int) bool {
	return r.X >= 0 && r.Y >= 0 && r.Width > 0 && r.Height > 0 &&
		r.X+r.Width <= imageWidth && r.Y+r.Height <= imageHeight
}

// Contour is a closed pixel-coordinate polygon outlining one salient region.
type Contour struct {
	Points []image.Point
}

// Area returns the enclosed area in square pixels, computed with the
// shoelace formula. Matches the contour-area convention of OpenCV.
func (c Contour) Area() float64 {
	return math.Abs(c.signedArea())
}

// Centroid returns the centroid of the enclosed region. Degenerate contours
// (fewer than three points, or zero area) fall back to the vertex mean.
func (c Contour) Centroid() (float64, float64) {
	n := len(c.Points)
	if n == 0 {
		return 0, 0
	}
	a := c.signedArea()
	if n < 3 || a == 0 {
		var sx, sy float64
		for _, p := range c.Points {
			sx += float64(p.X)
			sy += float64(p.Y)
		}
		return sx / float64(n), sy / float64(n)
	}
	var cx, cy float64
	for i := 0; i < n; i++ {
		p := c.Points[i]
		q := c.Points[(i+1)%n]
		cross := float64(p.X)*float64(q.Y) - float64(q.X)*float64(p.Y)
		cx += (float64(p.X) + float64(q.X)) * cross
		cy += (float64(p.Y) + float64(q.Y)) * cross
	}
	return cx / (6 * a), cy / (6 * a)
}

func (c Contour) signedArea() float64 {
	n := len(c.Points)
	if n < 3 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		p := c.Points[i]
		q := c.Points[(i+1)%n]
		sum += float64(p.X)*float64(q.Y) - float64(q.X)*float64(p.Y)
	}
	return sum / 2
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
