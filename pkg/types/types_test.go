package types

import (
	"image"
	"math"
	"testing"
)

func TestDetectionGeometry(t *testing.T) {
	d := Detection{ClassName: "building", Confidence: 0.9, X1: 400, Y1: 400, X2: 600, Y2: 600}

	if !d.Valid() {
		t.Error("Expected detection to be valid")
	}
	if d.Width() != 200 || d.Height() != 200 {
		t.Errorf("Expected 200x200 box, got %dx%d", d.Width(), d.Height())
	}
	if d.Area() != 40000 {
		t.Errorf("Expected area 40000, got %d", d.Area())
	}
	if d.CenterX() != 500 || d.CenterY() != 500 {
		t.Errorf("Expected center (500,500), got (%v,%v)", d.CenterX(), d.CenterY())
	}
}

func TestDetectionValid(t *testing.T) {
	tests := []struct {
		name string
		det  Detection
		want bool
	}{
		{"normal", Detection{X1: 0, Y1: 0, X2: 10, Y2: 10}, true},
		{"zero width", Detection{X1: 10, Y1: 0, X2: 10, Y2: 10}, false},
		{"inverted x", Detection{X1: 20, Y1: 0, X2: 10, Y2: 10}, false},
		{"inverted y", Detection{X1: 0, Y1: 30, X2: 10, Y2: 10}, false},
	}

	for _, tt := range tests {
		if got := tt.det.Valid(); got != tt.want {
			t.Errorf("%s: Expected Valid()=%v, got %v", tt.name, tt.want, got)
		}
	}
}

func TestDetectionClampTo(t *testing.T) {
	d := Detection{X1: -50, Y1: 10, X2: 150, Y2: 90}
	clamped, ok := d.ClampTo(100, 100)
	if !ok {
		t.Fatal("Expected a non-empty box after clamping")
	}
	if clamped.X1 != 0 || clamped.X2 != 100 {
		t.Errorf("Expected x range [0,100], got [%d,%d]", clamped.X1, clamped.X2)
	}
	if clamped.Y1 != 10 || clamped.Y2 != 90 {
		t.Errorf("Expected y range [10,90], got [%d,%d]", clamped.Y1, clamped.Y2)
	}

	outside := Detection{X1: 200, Y1: 200, X2: 300, Y2: 300}
	if _, ok := outside.ClampTo(100, 100); ok {
		t.Error("Expected box fully outside the image to clamp to empty")
	}
}

func TestFocalPointPixels(t *testing.T) {
	fp := FocalPoint{X: 0.25, Y: 0.75, Confidence: 0.5, Method: MethodSaliency}
	if px := fp.PixelX(800); px != 200 {
		t.Errorf("Expected pixel x 200, got %v", px)
	}
	if py := fp.PixelY(400); py != 300 {
		t.Errorf("Expected pixel y 300, got %v", py)
	}
}

func TestFormatSpec(t *testing.T) {
	f := FormatSpec{Name: "xl", Width: 1440, Height: 1080, Suffix: "_XL"}
	if err := f.Validate(); err != nil {
		t.Errorf("Expected valid format, got error: %v", err)
	}
	if r := f.Ratio(); math.Abs(r-4.0/3.0) > 1e-9 {
		t.Errorf("Expected ratio 4:3, got %v", r)
	}
	if f.OutputSuffix() != "_XL" {
		t.Errorf("Expected suffix _XL, got %s", f.OutputSuffix())
	}

	derived := FormatSpec{Name: "md", Width: 632, Height: 474}
	if derived.OutputSuffix() != "_MD" {
		t.Errorf("Expected derived suffix _MD, got %s", derived.OutputSuffix())
	}

	bad := FormatSpec{Name: "broken", Width: 0, Height: 100}
	if err := bad.Validate(); err == nil {
		t.Error("Expected error for zero width")
	}
}

func TestCropRect(t *testing.T) {
	r := CropRect{X: 10, Y: 20, Width: 200, Height: 100}

	if !r.In(300, 300) {
		t.Error("Expected rect to fit inside 300x300")
	}
	if r.In(150, 300) {
		t.Error("Expected rect to overflow a 150-wide image")
	}
	if got := r.Bounds(); got != image.Rect(10, 20, 210, 120) {
		t.Errorf("Expected bounds (10,20)-(210,120), got %v", got)
	}
	if r.Ratio() != 2.0 {
		t.Errorf("Expected ratio 2.0, got %v", r.Ratio())
	}
}

func TestContourRectangle(t *testing.T) {
	// 100x50 rectangle centered at (300,100).
	c := Contour{Points: []image.Point{
		{X: 250, Y: 75}, {X: 350, Y: 75}, {X: 350, Y: 125}, {X: 250, Y: 125},
	}}

	if a := c.Area(); a != 5000 {
		t.Errorf("Expected area 5000, got %v", a)
	}
	cx, cy := c.Centroid()
	if cx != 300 || cy != 100 {
		t.Errorf("Expected centroid (300,100), got (%v,%v)", cx, cy)
	}
}

func TestContourDegenerate(t *testing.T) {
	line := Contour{Points: []image.Point{{X: 0, Y: 0}, {X: 10, Y: 0}}}
	if a := line.Area(); a != 0 {
		t.Errorf("Expected zero area for a segment, got %v", a)
	}
	cx, cy := line.Centroid()
	if cx != 5 || cy != 0 {
		t.Errorf("Expected vertex-mean centroid (5,0), got (%v,%v)", cx, cy)
	}

	empty := Contour{}
	cx, cy = empty.Centroid()
	if cx != 0 || cy != 0 {
		t.Errorf("Expected (0,0) for empty contour, got (%v,%v)", cx, cy)
	}
}
