package processing

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/osanchezv/focalcrop/pkg/types"
)

// ErrInvalidImage is returned when a source cannot be decoded into a
// usable image.
var ErrInvalidImage = errors.New("invalid image")

// Processor handles image loading, encoding and debug rendering.
type Processor struct{}

// NewProcessor creates a new image processor
func NewProcessor() *Processor {
	return &Processor{}
}

// LoadImageFromURL downloads and loads an image from a URL
func (p *Processor) LoadImageFromURL(imageURL string) (image.Image, error) {
	// Validate URL
	parsedURL, err := url.Parse(imageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %v", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme: %s (only http and https are supported)", parsedURL.Scheme)
	}

	// Create HTTP client with timeout
	client := &http.Client{
		Timeout: 30 * time.Second,
	}

	// Create request with User-Agent header
	req, err := http.NewRequest("GET", imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("User-Agent", "FocalCrop/1.0 (+https://github.com/osanchezv/focalcrop)")

	// Make request
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %v", err)
	}
	defer resp.Body.Close()

	// Check response status
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: HTTP %d %s", resp.StatusCode, resp.Status)
	}

	// Check content type
	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("URL does not point to an image (Content-Type: %s)", contentType)
	}

	// Read response body
	imageData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %v", err)
	}

	// Decode image from bytes
	return p.decodeImageFromBytes(imageData)
}

// LoadImage loads an image from a file path with WebP support
func (p *Processor) LoadImage(path string) (image.Image, error) {
	// Try imaging.Open (registered decoders)
	if img, err := imaging.Open(path); err == nil {
		return validateDecoded(img, path)
	}

	// Fallback: explicit WebP decode
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	low := strings.ToLower(path)
	if strings.Contains(low, ".webp") {
		if img, err := webp.Decode(f); err == nil {
			return validateDecoded(img, path)
		}
	}
	if _, err := f.Seek(0, 0); err == nil {
		if img, _, err := image.Decode(f); err == nil {
			return validateDecoded(img, path)
		}
	}
	return nil, fmt.Errorf("decode %s: %w", path, ErrInvalidImage)
}

// LoadImageSmart loads an image from either a file path or URL
func (p *Processor) LoadImageSmart(source string) (image.Image, error) {
	// Check if it's a URL
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return p.LoadImageFromURL(source)
	}
	// Otherwise treat as file path
	return p.LoadImage(source)
}

// decodeImageFromBytes decodes an image from byte data with WebP support
func (p *Processor) decodeImageFromBytes(data []byte) (image.Image, error) {
	// Try standard image.Decode first
	reader := bytes.NewReader(data)
	if img, _, err := image.Decode(reader); err == nil {
		return validateDecoded(img, "")
	}

	// Try WebP decode
	reader = bytes.NewReader(data)
	if img, err := webp.Decode(reader); err == nil {
		return validateDecoded(img, "")
	}

	return nil, fmt.Errorf("unknown or unsupported format: %w", ErrInvalidImage)
}

func validateDecoded(img image.Image, path string) (image.Image, error) {
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("empty image %s: %w", path, ErrInvalidImage)
	}
	return img, nil
}

// ImageInfo summarizes a loaded image.
type ImageInfo struct {
	Width       int
	Height      int
	AspectRatio float64
	Pixels      int
}

// Info returns basic geometry information about an image.
func (p *Processor) Info(img image.Image) ImageInfo {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	info := ImageInfo{Width: w, Height: h, Pixels: w * h}
	if h > 0 {
		info.AspectRatio = float64(w) / float64(h)
	}
	return info
}

// PrepareImageForModel converts an image to base64 for sending to vision models
func (p *Processor) PrepareImageForModel(img image.Image, format string, maxDim int, quality int) (string, error) {
	if maxDim > 0 {
		b := img.Bounds()
		w, h := b.Dx(), b.Dy()
		if w > maxDim || h > maxDim {
			if w >= h {
				img = imaging.Resize(img, maxDim, 0, imaging.Lanczos)
			} else {
				img = imaging.Resize(img, 0, maxDim, imaging.Lanczos)
			}
		}
	}

	var buf bytes.Buffer
	switch strings.ToLower(format) {
	case "png":
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		if err := enc.Encode(&buf, img); err != nil {
			return "", err
		}
	default: // jpg
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return "", err
		}
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// SaveImage saves an image to a file with the specified format and quality.
// JPEG output flattens any alpha channel first, since the format cannot
// carry transparency.
func (p *Processor) SaveImage(img image.Image, path, format string, quality int, lossless bool) error {
	switch strings.ToLower(format) {
	case "webp":
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		opts := &webp.Options{Lossless: lossless, Quality: float32(quality)}
		if err := webp.Encode(f, img, opts); err != nil {
			return fmt.Errorf("encode %s: %w", path, err)
		}
		return nil
	case "png":
		if err := imaging.Save(img, path); err != nil {
			return fmt.Errorf("encode %s: %w", path, err)
		}
		return nil
	default: // jpg/jpeg
		if err := imaging.Save(flattenOpaque(img), path, imaging.JPEGQuality(quality)); err != nil {
			return fmt.Errorf("encode %s: %w", path, err)
		}
		return nil
	}
}

// flattenOpaque drops the alpha channel, keeping the stored color values.
func flattenOpaque(img image.Image) *image.NRGBA {
	nrgba := imaging.Clone(img)
	for i := 3; i < len(nrgba.Pix); i += 4 {
		nrgba.Pix[i] = 0xff
	}
	return nrgba
}

// CreateDebugOverlay renders detections, the planned crop window, the focal
// point and the image center onto a copy of the image.
func (p *Processor) CreateDebugOverlay(img image.Image, detections []types.Detection, rect types.CropRect, fp types.FocalPoint) image.Image {
	nrgba := imaging.Clone(img)
	w := nrgba.Bounds().Dx()
	h := nrgba.Bounds().Dy()

	// Colors
	green := color.NRGBA{0, 255, 0, 255}                    // detections
	gold := color.NRGBA{255, 204, 0, 255}                   // crop window
	red := color.NRGBA{255, 0, 0, 255}                      // focal point
	blue := color.NRGBA{0, 170, 255, 255}                   // image center
	stroke := int(math.Max(2, 0.004*float64(minInt(w, h)))) // ~0.4% of min side
	cross := int(math.Max(4, 0.01*float64(minInt(w, h))))   // ~1% of min side

	for _, det := range detections {
		if det.Valid() {
			drawBox(nrgba, det.X1, det.Y1, det.X2, det.Y2, green, stroke)
		}
	}

	if rect.Width > 0 && rect.Height > 0 {
		drawBox(nrgba, rect.X, rect.Y, rect.X+rect.Width, rect.Y+rect.Height, gold, stroke)
	}

	// Focal crosshair
	px := int(fp.PixelX(w) + 0.5)
	py := int(fp.PixelY(h) + 0.5)
	drawHLine(nrgba, py, px-cross, px+cross, red)
	drawVLine(nrgba, px, py-cross, py+cross, red)

	// Image center marker
	ix, iy := w/2, h/2
	drawHLine(nrgba, iy, ix-6, ix+6, blue)
	drawVLine(nrgba, ix, iy-6, iy+6, blue)

	return nrgba
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func drawBox(img *image.NRGBA, x0, y0, x1, y1 int, color color.NRGBA, stroke int) {
	for s := 0; s < stroke; s++ {
		drawHLine(img, y0+s, x0, x1, color)
		drawHLine(img, y1-1-s, x0, x1, color)
		drawVLine(img, x0+s, y0, y1, color)
		drawVLine(img, x1-1-s, y0, y1, color)
	}
}

func drawHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	if y < 0 || y >= img.Bounds().Dy() {
		return
	}
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if x1 <= 0 || x0 >= img.Bounds().Dx() {
		return
	}
	if x0 < 0 {
		x0 = 0
	}
	if x1 > img.Bounds().Dx() {
		x1 = img.Bounds().Dx()
	}
	i := y*img.Stride + x0*4
	for x := x0; x < x1; x++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += 4
	}
}

func drawVLine(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	if x < 0 || x >= img.Bounds().Dx() {
		return
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	if y1 <= 0 || y0 >= img.Bounds().Dy() {
		return
	}
	if y0 < 0 {
		y0 = 0
	}
	if y1 > img.Bounds().Dy() {
		y1 = img.Bounds().Dy()
	}
	i := y0*img.Stride + x*4
	for y := y0; y < y1; y++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += img.Stride
	}
}
