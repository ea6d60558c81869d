package batch

import (
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/disintegration/imaging"

	"github.com/osanchezv/focalcrop/pkg/focal"
	"github.com/osanchezv/focalcrop/pkg/types"
)

type stubObjects struct {
	mu         sync.Mutex
	detections []types.Detection
	calls      int
}

func (s *stubObjects) Detect(ctx context.Context, img image.Image, prompts []string, threshold float64) ([]types.Detection, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.detections, nil
}

func testFormats() []types.FormatSpec {
	return []types.FormatSpec{
		{Name: "big", Width: 40, Height: 30},
		{Name: "thumb", Width: 20, Height: 10},
	}
}

// writeTestImages saves n small JPEG files and returns their paths.
func writeTestImages(t *testing.T, dir string, names ...string) []string {
	t.Helper()
	img := imaging.New(400, 300, color.White)
	paths := make([]string, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		if err := imaging.Save(img, path); err != nil {
			t.Fatalf("failed to write test image: %v", err)
		}
		paths = append(paths, path)
	}
	return paths
}

func newTestProcessor(t *testing.T, objects *stubObjects, outDir string, force bool) *Processor {
	t.Helper()
	estimator := focal.NewEstimator(objects, nil, []string{"person"}, 0.15)
	p, err := NewProcessor(estimator, testFormats(), Options{
		OutputDir: outDir,
		Format:    "jpg",
		Quality:   90,
		Force:     force,
		Workers:   1,
	}, nil)
	if err != nil {
		t.Fatalf("NewProcessor failed: %v", err)
	}
	return p
}

func centeredDetection() []types.Detection {
	return []types.Detection{
		{ClassName: "person", Confidence: 0.9, X1: 150, Y1: 100, X2: 250, Y2: 200},
	}
}

func TestRunProducesAllFormats(t *testing.T) {
	dir := t.TempDir()
	outDir := filepath.Join(dir, "out")
	files := writeTestImages(t, dir, "first.jpg", "second.jpg")

	objects := &stubObjects{detections: centeredDetection()}
	p := newTestProcessor(t, objects, outDir, false)

	summary, err := p.Run(context.Background(), files)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if summary.Total != 2 || summary.Processed != 2 || summary.Skipped != 0 || summary.Failed != 0 {
		t.Errorf("Expected 2/2 processed, got %+v", summary)
	}
	if len(summary.Outputs) != 4 {
		t.Fatalf("Expected 4 outputs, got %d: %v", len(summary.Outputs), summary.Outputs)
	}

	expected := []string{"first_BIG.jpg", "first_THUMB.jpg", "second_BIG.jpg", "second_THUMB.jpg"}
	for _, name := range expected {
		path := filepath.Join(outDir, name)
		if _, err := os.Stat(path); err != nil {
			t.Errorf("Expected output %s to exist: %v", name, err)
		}
	}

	// Outputs must land at the exact format dimensions.
	out, err := imaging.Open(filepath.Join(outDir, "first_BIG.jpg"))
	if err != nil {
		t.Fatalf("failed to open output: %v", err)
	}
	if out.Bounds().Dx() != 40 || out.Bounds().Dy() != 30 {
		t.Errorf("Expected 40x30 output, got %dx%d", out.Bounds().Dx(), out.Bounds().Dy())
	}
}

func TestRunSkipsExistingOutputs(t *testing.T) {
	dir := t.TempDir()
	outDir := filepath.Join(dir, "out")
	files := writeTestImages(t, dir, "photo.jpg")

	objects := &stubObjects{detections: centeredDetection()}
	p := newTestProcessor(t, objects, outDir, false)

	if _, err := p.Run(context.Background(), files); err != nil {
		t.Fatalf("first Run failed: %v", err)
	}
	callsAfterFirst := objects.calls

	summary, err := p.Run(context.Background(), files)
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}

	if summary.Skipped != 1 || summary.Processed != 0 {
		t.Errorf("Expected everything skipped on rerun, got %+v", summary)
	}
	if objects.calls != callsAfterFirst {
		t.Errorf("Expected no detection calls on rerun, got %d extra", objects.calls-callsAfterFirst)
	}
}

func TestRunForceReprocesses(t *testing.T) {
	dir := t.TempDir()
	outDir := filepath.Join(dir, "out")
	files := writeTestImages(t, dir, "photo.jpg")

	objects := &stubObjects{detections: centeredDetection()}
	if _, err := newTestProcessor(t, objects, outDir, false).Run(context.Background(), files); err != nil {
		t.Fatal(err)
	}

	summary, err := newTestProcessor(t, objects, outDir, true).Run(context.Background(), files)
	if err != nil {
		t.Fatalf("forced Run failed: %v", err)
	}
	if summary.Processed != 1 || summary.Skipped != 0 {
		t.Errorf("Expected forced reprocess, got %+v", summary)
	}
}

func TestRunFillsMissingOutputs(t *testing.T) {
	dir := t.TempDir()
	outDir := filepath.Join(dir, "out")
	files := writeTestImages(t, dir, "photo.jpg")

	objects := &stubObjects{detections: centeredDetection()}
	p := newTestProcessor(t, objects, outDir, false)
	if _, err := p.Run(context.Background(), files); err != nil {
		t.Fatal(err)
	}

	// Remove one of the two outputs; the rerun should regenerate only it.
	missing := filepath.Join(outDir, "photo_THUMB.jpg")
	if err := os.Remove(missing); err != nil {
		t.Fatal(err)
	}

	summary, err := p.Run(context.Background(), files)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Processed != 1 {
		t.Errorf("Expected file with missing output processed, got %+v", summary)
	}
	if len(summary.Outputs) != 1 || summary.Outputs[0] != missing {
		t.Errorf("Expected only %s regenerated, got %v", missing, summary.Outputs)
	}
	if _, err := os.Stat(missing); err != nil {
		t.Errorf("Expected regenerated output: %v", err)
	}
}

func TestRunContinuesAfterFailure(t *testing.T) {
	dir := t.TempDir()
	outDir := filepath.Join(dir, "out")
	files := writeTestImages(t, dir, "good.jpg")
	files = append([]string{filepath.Join(dir, "missing.jpg")}, files...)

	objects := &stubObjects{detections: centeredDetection()}
	p := newTestProcessor(t, objects, outDir, false)

	summary, err := p.Run(context.Background(), files)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Failed != 1 || summary.Processed != 1 {
		t.Errorf("Expected 1 failed and 1 processed, got %+v", summary)
	}
}

func TestRunEmptyFileList(t *testing.T) {
	objects := &stubObjects{}
	p := newTestProcessor(t, objects, filepath.Join(t.TempDir(), "out"), false)

	summary, err := p.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Total != 0 || summary.Processed != 0 {
		t.Errorf("Expected empty summary, got %+v", summary)
	}
}

func TestRunParallelWorkers(t *testing.T) {
	dir := t.TempDir()
	outDir := filepath.Join(dir, "out")
	files := writeTestImages(t, dir, "a.jpg", "b.jpg", "c.jpg", "d.jpg", "e.jpg")

	estimator := focal.NewEstimator(&stubObjects{detections: centeredDetection()}, nil, []string{"person"}, 0.15)
	p, err := NewProcessor(estimator, testFormats(), Options{
		OutputDir: outDir,
		Workers:   4,
	}, nil)
	if err != nil {
		t.Fatal(err)
	}

	summary, err := p.Run(context.Background(), files)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Processed != 5 || summary.Failed != 0 {
		t.Errorf("Expected 5 processed with 4 workers, got %+v", summary)
	}
	if len(summary.Outputs) != 10 {
		t.Errorf("Expected 10 outputs, got %d", len(summary.Outputs))
	}
}

func TestNewProcessorValidation(t *testing.T) {
	estimator := focal.NewEstimator(&stubObjects{}, nil, nil, 0.15)

	if _, err := NewProcessor(nil, testFormats(), Options{}, nil); err == nil {
		t.Error("Expected error for nil estimator")
	}
	if _, err := NewProcessor(estimator, nil, Options{}, nil); err == nil {
		t.Error("Expected error for empty formats")
	}
	bad := []types.FormatSpec{{Name: "zero", Width: 0, Height: 10}}
	if _, err := NewProcessor(estimator, bad, Options{}, nil); err == nil {
		t.Error("Expected error for invalid format")
	}
}
