// Package batch runs the focal crop pipeline over many files with a
// bounded worker pool. Outputs that already exist are skipped, so
// re-running over a grown photo folder only touches the new files.
package batch

import (
	"context"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/osanchezv/focalcrop/internal/i18n"
	"github.com/osanchezv/focalcrop/internal/utils"
	"github.com/osanchezv/focalcrop/pkg/cropper"
	"github.com/osanchezv/focalcrop/pkg/focal"
	"github.com/osanchezv/focalcrop/pkg/processing"
	"github.com/osanchezv/focalcrop/pkg/types"
)

// Options configures a batch run.
type Options struct {
	OutputDir string
	Format    string // output encoding: jpg, png or webp
	Quality   int
	Lossless  bool
	Force     bool // re-crop even when outputs exist
	Debug     bool // write crop-window overlay images
	Workers   int
}

// Summary reports the outcome of a batch run. The per-file counters
// cover files that reached a worker; a canceled context leaves the
// remainder uncounted.
type Summary struct {
	Total     int
	Processed int
	Skipped   int
	Failed    int
	Outputs   []string
}

// Processor crops every input image to a set of output formats around
// its estimated focal point.
type Processor struct {
	estimator *focal.Estimator
	proc      *processing.Processor
	formats   []types.FormatSpec

	outputDir string
	format    string
	quality   int
	lossless  bool
	force     bool
	debug     bool
	workers   int

	log      zerolog.Logger
	messages *i18n.Messages
}

// NewProcessor validates the output formats and builds a batch
// processor. A nil messages catalog falls back to English.
func NewProcessor(estimator *focal.Estimator, formats []types.FormatSpec, opts Options, messages *i18n.Messages) (*Processor, error) {
	if estimator == nil {
		return nil, errors.New("nil estimator")
	}
	if len(formats) == 0 {
		return nil, errors.New("no output formats")
	}
	for _, format := range formats {
		if err := format.Validate(); err != nil {
			return nil, fmt.Errorf("format %q: %w", format.Name, err)
		}
	}
	if messages == nil {
		var err error
		messages, err = i18n.New("en")
		if err != nil {
			return nil, err
		}
	}

	outFormat := strings.ToLower(opts.Format)
	if outFormat == "" {
		outFormat = "jpg"
	}
	quality := opts.Quality
	if quality <= 0 {
		quality = 90
	}
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	outputDir := opts.OutputDir
	if outputDir == "" {
		outputDir = "output"
	}

	return &Processor{
		estimator: estimator,
		proc:      processing.NewProcessor(),
		formats:   formats,
		outputDir: outputDir,
		format:    outFormat,
		quality:   quality,
		lossless:  opts.Lossless,
		force:     opts.Force,
		debug:     opts.Debug,
		workers:   workers,
		log:       zerolog.Nop(),
		messages:  messages,
	}, nil
}

// WithLogger returns a copy of the processor that logs progress.
func (p *Processor) WithLogger(log zerolog.Logger) *Processor {
	c := *p
	c.log = log
	return &c
}

// Run processes files through the worker pool. Per-file failures are
// counted in the summary and never abort the batch; the returned error
// covers only setup problems such as an uncreatable output directory.
// Canceling the context stops dispatching new files and lets in-flight
// ones finish.
func (p *Processor) Run(ctx context.Context, files []string) (Summary, error) {
	summary := Summary{Total: len(files)}
	if len(files) == 0 {
		return summary, nil
	}
	if err := utils.EnsureDir(p.outputDir); err != nil {
		return summary, fmt.Errorf("create output directory: %w", err)
	}

	type job struct {
		index int
		path  string
	}

	jobs := make(chan job)
	results := make(chan fileResult)

	var wg sync.WaitGroup
	for w := 0; w < p.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				results <- p.processFile(ctx, j.index, len(files), j.path)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i, file := range files {
			select {
			case jobs <- job{index: i, path: file}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	for res := range results {
		switch {
		case res.skipped:
			summary.Skipped++
		case res.failed:
			summary.Failed++
		default:
			summary.Processed++
		}
		summary.Outputs = append(summary.Outputs, res.outputs...)
	}

	p.log.Info().
		Int("processed", summary.Processed).
		Int("skipped", summary.Skipped).
		Int("failed", summary.Failed).
		Msg(p.messages.T("summary", map[string]interface{}{
			"Processed": summary.Processed,
			"Skipped":   summary.Skipped,
			"Failed":    summary.Failed,
			"Total":     summary.Total,
		}))

	return summary, nil
}

type fileResult struct {
	skipped bool
	failed  bool
	outputs []string
}

type target struct {
	format types.FormatSpec
	path   string
}

// targetsFor pairs each configured format with its output path and
// reports which ones still need to be produced.
func (p *Processor) targetsFor(path string) (all, missing []target) {
	for _, format := range p.formats {
		out := utils.OutputFilename(path, p.outputDir, format.OutputSuffix(), p.format)
		t := target{format: format, path: out}
		all = append(all, t)
		if p.force || !utils.FileExists(out) {
			missing = append(missing, t)
		}
	}
	return all, missing
}

// processFile produces every missing output for one input image. The
// focal point is estimated once and shared by all formats. A panic in
// any stage is contained to this file.
func (p *Processor) processFile(ctx context.Context, index, total int, path string) (result fileResult) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Str("file", path).Interface("panic", r).Msg("recovered while processing")
			result.failed = true
			result.skipped = false
		}
	}()

	name := filepath.Base(path)
	_, missing := p.targetsFor(path)
	if len(missing) == 0 {
		p.log.Info().Msg(fmt.Sprintf("[%d/%d] %s", index+1, total,
			p.messages.T("already_processed", map[string]interface{}{"File": name})))
		result.skipped = true
		return result
	}

	p.log.Info().Msg(fmt.Sprintf("[%d/%d] %s", index+1, total,
		p.messages.T("processing", map[string]interface{}{"File": name})))

	img, err := p.proc.LoadImageSmart(path)
	if err != nil {
		p.log.Error().Err(err).Str("file", path).Msg("load failed")
		result.failed = true
		return result
	}

	fp, err := p.estimator.Estimate(ctx, img)
	if err != nil {
		p.log.Error().Err(err).Str("file", path).Msg("focal point estimation failed")
		result.failed = true
		return result
	}

	p.log.Info().
		Str("method", string(fp.Method)).
		Float64("confidence", fp.Confidence).
		Msg(p.messages.T("focal_point", map[string]interface{}{
			"X":      fmt.Sprintf("%.2f", fp.X),
			"Y":      fmt.Sprintf("%.2f", fp.Y),
			"Method": string(fp.Method),
		}))

	for _, t := range missing {
		cropped, err := cropper.CropToFormat(img, t.format, fp)
		if err != nil {
			p.log.Error().Err(err).Str("file", path).Str("format", t.format.Name).Msg("crop failed")
			result.failed = true
			continue
		}

		if err := p.proc.SaveImage(cropped, t.path, p.format, p.quality, p.lossless); err != nil {
			p.log.Error().Err(err).Msg(p.messages.T("save_failed", map[string]interface{}{
				"Path":  t.path,
				"Error": err,
			}))
			result.failed = true
			continue
		}

		p.log.Info().Msg(p.messages.T("saved", map[string]interface{}{"Path": t.path}))
		result.outputs = append(result.outputs, t.path)

		if p.debug {
			p.writeOverlay(img, t, fp)
		}
	}

	return result
}

// writeOverlay saves a PNG next to the crop showing the planned window
// and focal point on the source image.
func (p *Processor) writeOverlay(img image.Image, t target, fp types.FocalPoint) {
	bounds := img.Bounds()
	rect, err := cropper.PlanCrop(bounds.Dx(), bounds.Dy(), t.format.Width, t.format.Height, fp)
	if err != nil {
		return
	}

	overlay := p.proc.CreateDebugOverlay(img, nil, rect, fp)
	overlayPath := strings.TrimSuffix(t.path, filepath.Ext(t.path)) + "_debug.png"
	if err := p.proc.SaveImage(overlay, overlayPath, "png", 92, false); err != nil {
		p.log.Warn().Err(err).Str("path", overlayPath).Msg("debug overlay save failed")
	}
}
