package focalcrop

import (
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/osanchezv/focalcrop/pkg/types"
)

// createTestImage creates a simple test image
func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))

	// Bright subject on a dark background
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if x > width/3 && x < 2*width/3 && y > height/3 && y < 2*height/3 {
				img.Set(x, y, color.RGBA{255, 255, 255, 255})
			} else {
				img.Set(x, y, color.RGBA{64, 64, 64, 255})
			}
		}
	}

	return img
}

// stubObjects returns fixed detections for every image.
type stubObjects struct {
	detections []types.Detection
}

func (s *stubObjects) Detect(ctx context.Context, img image.Image, prompts []string, threshold float64) ([]types.Detection, error) {
	return s.detections, nil
}

func TestNew(t *testing.T) {
	fc := New()
	if fc == nil {
		t.Fatal("New() returned nil")
	}

	if fc.proc == nil {
		t.Error("processing component is nil")
	}

	if fc.estimator == nil {
		t.Error("estimator component is nil")
	}

	if len(fc.formats) != 3 {
		t.Errorf("Expected 3 default formats, got %d", len(fc.formats))
	}
}

func TestEstimateFocalPointCenterFallback(t *testing.T) {
	fc := New()
	img := createTestImage(400, 300)

	fp, err := fc.EstimateFocalPoint(context.Background(), img)
	if err != nil {
		t.Fatalf("EstimateFocalPoint failed: %v", err)
	}

	if fp.X != 0.5 || fp.Y != 0.5 {
		t.Errorf("Expected center (0.5, 0.5), got (%f, %f)", fp.X, fp.Y)
	}

	if fp.Method != types.MethodCenter {
		t.Errorf("Expected method %s, got %s", types.MethodCenter, fp.Method)
	}
}

func TestEstimateFocalPointWithDetections(t *testing.T) {
	objects := &stubObjects{
		detections: []types.Detection{
			{ClassName: "person", Confidence: 0.9, X1: 100, Y1: 50, X2: 300, Y2: 250},
		},
	}
	fc := NewWithSources(objects, nil, []string{"person"}, 0.15)
	img := createTestImage(400, 300)

	fp, err := fc.EstimateFocalPoint(context.Background(), img)
	if err != nil {
		t.Fatalf("EstimateFocalPoint failed: %v", err)
	}

	if fp.Method != types.MethodDetector {
		t.Errorf("Expected method %s, got %s", types.MethodDetector, fp.Method)
	}

	// Box center is (200, 150) in a 400x300 image
	if fp.X < 0.49 || fp.X > 0.51 {
		t.Errorf("Expected X near 0.5, got %f", fp.X)
	}

	if fp.Y < 0.49 || fp.Y > 0.51 {
		t.Errorf("Expected Y near 0.5, got %f", fp.Y)
	}
}

func TestCropToFormat(t *testing.T) {
	fc := New()
	img := createTestImage(400, 300)

	format := types.FormatSpec{Name: "square", Width: 100, Height: 100}
	fp := types.FocalPoint{X: 0.5, Y: 0.5, Method: types.MethodCenter}

	result, err := fc.CropToFormat(img, format, fp)
	if err != nil {
		t.Fatalf("CropToFormat failed: %v", err)
	}

	bounds := result.Bounds()
	if bounds.Dx() != 100 || bounds.Dy() != 100 {
		t.Errorf("Expected 100x100, got %dx%d", bounds.Dx(), bounds.Dy())
	}
}

func TestSetFormats(t *testing.T) {
	fc := New()

	formats := []types.FormatSpec{
		{Name: "wide", Width: 640, Height: 360},
	}
	if err := fc.SetFormats(formats); err != nil {
		t.Fatalf("SetFormats failed: %v", err)
	}

	if len(fc.formats) != 1 {
		t.Errorf("Expected 1 format, got %d", len(fc.formats))
	}

	if err := fc.SetFormats(nil); err == nil {
		t.Error("Expected error for empty format list")
	}

	invalid := []types.FormatSpec{{Name: "bad", Width: 0, Height: 100}}
	if err := fc.SetFormats(invalid); err == nil {
		t.Error("Expected error for zero-width format")
	}
}

func TestInfo(t *testing.T) {
	fc := New()
	img := createTestImage(400, 300)

	info := fc.Info(img)

	if info.Width != 400 {
		t.Errorf("Expected width 400, got %d", info.Width)
	}

	if info.Height != 300 {
		t.Errorf("Expected height 300, got %d", info.Height)
	}

	expectedRatio := float64(400) / float64(300)
	if info.AspectRatio != expectedRatio {
		t.Errorf("Expected aspect ratio %f, got %f", expectedRatio, info.AspectRatio)
	}
}

func TestSaveAndLoadImage(t *testing.T) {
	fc := New()
	img := createTestImage(200, 150)

	dir := t.TempDir()
	path := filepath.Join(dir, "test.png")

	if err := fc.SaveImage(img, path); err != nil {
		t.Fatalf("SaveImage failed: %v", err)
	}

	loaded, err := fc.LoadImage(path)
	if err != nil {
		t.Fatalf("LoadImage failed: %v", err)
	}

	bounds := loaded.Bounds()
	if bounds.Dx() != 200 || bounds.Dy() != 150 {
		t.Errorf("Expected 200x150, got %dx%d", bounds.Dx(), bounds.Dy())
	}
}

func TestProcessFile(t *testing.T) {
	fc := New()

	dir := t.TempDir()
	inputPath := filepath.Join(dir, "photo.jpg")
	if err := fc.SaveImage(createTestImage(400, 300), inputPath); err != nil {
		t.Fatalf("Failed to write test input: %v", err)
	}

	outputDir := filepath.Join(dir, "out")
	if err := fc.ProcessFile(context.Background(), inputPath, outputDir); err != nil {
		t.Fatalf("ProcessFile failed: %v", err)
	}

	for _, name := range []string{"photo_XL.jpg", "photo_MD.jpg", "photo_SM.jpg"} {
		path := filepath.Join(outputDir, name)
		if _, err := os.Stat(path); err != nil {
			t.Errorf("Expected output %s to exist: %v", name, err)
		}
	}

	small, err := fc.LoadImage(filepath.Join(outputDir, "photo_SM.jpg"))
	if err != nil {
		t.Fatalf("Failed to load output: %v", err)
	}

	bounds := small.Bounds()
	if bounds.Dx() != 260 || bounds.Dy() != 195 {
		t.Errorf("Expected 260x195, got %dx%d", bounds.Dx(), bounds.Dy())
	}
}

func TestProcessImage(t *testing.T) {
	fc := New()
	img := createTestImage(400, 300)

	crops, err := fc.ProcessImage(context.Background(), img)
	if err != nil {
		t.Fatalf("ProcessImage failed: %v", err)
	}

	if len(crops) != 3 {
		t.Errorf("Expected 3 crops, got %d", len(crops))
	}

	for _, format := range types.DefaultFormats() {
		crop, ok := crops[format.Name]
		if !ok {
			t.Errorf("Missing crop for format %s", format.Name)
			continue
		}
		bounds := crop.Bounds()
		if bounds.Dx() != format.Width || bounds.Dy() != format.Height {
			t.Errorf("Format %s: expected %dx%d, got %dx%d",
				format.Name, format.Width, format.Height, bounds.Dx(), bounds.Dy())
		}
	}
}

func TestGetVersion(t *testing.T) {
	version := GetVersion()
	if version == "" {
		t.Error("Version should not be empty")
	}

	if version != Version {
		t.Errorf("GetVersion() returned %s, expected %s", version, Version)
	}
}

func BenchmarkEstimateFocalPoint(b *testing.B) {
	fc := New()
	img := createTestImage(400, 300)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		fc.EstimateFocalPoint(context.Background(), img)
	}
}

func BenchmarkCropToFormat(b *testing.B) {
	fc := New()
	img := createTestImage(1920, 1080)
	format := types.FormatSpec{Name: "md", Width: 632, Height: 474}
	fp := types.FocalPoint{X: 0.5, Y: 0.5, Method: types.MethodCenter}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		fc.CropToFormat(img, format, fp)
	}
}
