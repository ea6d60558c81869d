package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/osanchezv/focalcrop/internal/config"
	"github.com/osanchezv/focalcrop/internal/i18n"
	"github.com/osanchezv/focalcrop/internal/logger"
	"github.com/osanchezv/focalcrop/internal/utils"
	"github.com/osanchezv/focalcrop/pkg/batch"
	"github.com/osanchezv/focalcrop/pkg/detection"
	"github.com/osanchezv/focalcrop/pkg/focal"
	"github.com/osanchezv/focalcrop/pkg/llamacpp"
	"github.com/osanchezv/focalcrop/pkg/ollama"
	"github.com/osanchezv/focalcrop/pkg/onnx"
	"github.com/osanchezv/focalcrop/pkg/processing"
	"github.com/osanchezv/focalcrop/pkg/saliency"
)

func main() {
	// .env first so environment overrides see it.
	_ = godotenv.Load()

	var (
		in          string
		out         string
		configPath  string
		writeConfig string
		backend     string
		model       string
		url         string
		prompts     string
		conf        float64
		metadata    string
		ext         string
		quality     int
		lossless    bool
		workers     int
		force       bool
		lang        string
		debug       bool
		probe       bool
		verbose     bool
	)

	flag.StringVar(&in, "in", "", "input image path, directory or URL (jpg/png/webp)")
	flag.StringVar(&out, "out", "", "output directory")
	flag.StringVar(&configPath, "config", "", "config file path (JSON)")
	flag.StringVar(&writeConfig, "write-config", "", "write the resolved config to this path and exit")
	flag.StringVar(&backend, "backend", "", "backend to use: ollama, llamacpp or onnx")
	flag.StringVar(&model, "model", "", "model name, or .onnx path for the onnx backend")
	flag.StringVar(&url, "url", "", "server URL (defaults: ollama=http://localhost:11435/api/chat, llamacpp=http://localhost:8080)")
	flag.StringVar(&prompts, "prompts", "", "comma separated classes to look for")
	flag.Float64Var(&conf, "conf", 0, "detection confidence threshold (0-1)")
	flag.StringVar(&metadata, "metadata", "", "model metadata JSON path (onnx backend)")
	flag.StringVar(&ext, "ext", "", "output format for crops: jpg|png|webp")
	flag.IntVar(&quality, "quality", 0, "JPEG/WebP output quality for crops (1-100)")
	flag.BoolVar(&lossless, "lossless", false, "WebP output lossless mode for crops")
	flag.IntVar(&workers, "workers", 0, "parallel workers")
	flag.BoolVar(&force, "force", false, "reprocess files whose outputs already exist")
	flag.StringVar(&lang, "lang", "", "message language: en|es")
	flag.BoolVar(&debug, "debug", false, "create crop-window overlay images")
	flag.BoolVar(&probe, "probe", false, "send the input to the backend and print what it sees, then exit")
	flag.BoolVar(&verbose, "v", false, "verbose logging")
	flag.Parse()

	appLog := logger.New(verbose)

	cfg := resolveConfig(configPath, appLog)
	cfg.ApplyEnv()

	// Explicit flags win over file and environment.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "out":
			cfg.Output.Dir = out
		case "backend":
			cfg.Detection.Backend = backend
		case "model":
			cfg.Detection.Model = model
		case "url":
			cfg.Detection.ServerURL = url
		case "prompts":
			cfg.Detection.Prompts = splitList(prompts)
		case "conf":
			cfg.Detection.ConfidenceThreshold = conf
		case "metadata":
			cfg.Detection.MetadataPath = metadata
		case "ext":
			cfg.Output.Format = ext
		case "quality":
			cfg.Output.Quality = quality
		case "lossless":
			cfg.Output.Lossless = lossless
		case "workers":
			cfg.Workers = workers
		case "lang":
			cfg.Language = lang
		case "debug":
			cfg.Debug = debug
		}
	})

	if writeConfig != "" {
		if err := cfg.SaveToFile(writeConfig); err != nil {
			appLog.Fatal().Err(err).Msg("failed to write config")
		}
		fmt.Println(writeConfig)
		return
	}

	if err := cfg.Validate(); err != nil {
		appLog.Fatal().Err(err).Msg("invalid configuration")
	}

	messages, err := i18n.New(cfg.Language)
	if err != nil {
		appLog.Fatal().Err(err).Msg("failed to load message catalogs")
	}

	if in == "" {
		appLog.Fatal().Msgf("usage: %s -in input.jpg|dir|URL [-backend ollama|llamacpp|onnx] [-out outdir] [-prompts person,car] [-force]",
			filepath.Base(os.Args[0]))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	objects := buildObjectSource(cfg, appLog, messages)
	if closer, ok := objects.(interface{ Close() }); ok {
		defer closer.Close()
	}
	appLog.Info().Msg(messages.T("using_backend", map[string]interface{}{
		"Backend": cfg.Detection.Backend,
		"Model":   cfg.Detection.Model,
	}))

	if probe {
		runProbe(ctx, objects, cfg, in, appLog)
		return
	}

	files := collectInputs(in, cfg.Output.Dir, appLog)
	if len(files) == 0 {
		appLog.Warn().Msg(messages.T("no_images", map[string]interface{}{"Path": in}))
		return
	}

	estimator := focal.NewEstimator(objects, saliency.NewDetector(),
		cfg.Detection.Prompts, cfg.Detection.ConfidenceThreshold).WithLogger(appLog)

	processor, err := batch.NewProcessor(estimator, cfg.Formats, batch.Options{
		OutputDir: cfg.Output.Dir,
		Format:    cfg.Output.Format,
		Quality:   cfg.Output.Quality,
		Lossless:  cfg.Output.Lossless,
		Force:     force,
		Debug:     cfg.Debug,
		Workers:   cfg.Workers,
	}, messages)
	if err != nil {
		appLog.Fatal().Err(err).Msg("failed to build batch processor")
	}

	summary, err := processor.WithLogger(appLog).Run(ctx, files)
	if err != nil {
		appLog.Fatal().Err(err).Msg("batch run failed")
	}

	fmt.Println(messages.T("summary", map[string]interface{}{
		"Processed": summary.Processed,
		"Skipped":   summary.Skipped,
		"Failed":    summary.Failed,
		"Total":     summary.Total,
	}))
	if summary.Failed > 0 {
		os.Exit(1)
	}
}

// resolveConfig loads the config file when given, falls back to the
// default location when present, and otherwise starts from defaults.
func resolveConfig(path string, appLog zerolog.Logger) *config.Config {
	if path != "" {
		cfg, err := config.LoadFromFile(path)
		if err != nil {
			appLog.Fatal().Err(err).Msgf("failed to load config %s", path)
		}
		return cfg
	}
	if defaultPath := config.GetConfigPath(); utils.FileExists(defaultPath) {
		if cfg, err := config.LoadFromFile(defaultPath); err == nil {
			return cfg
		}
	}
	return config.Default()
}

// buildObjectSource wires the configured detection backend.
func buildObjectSource(cfg *config.Config, appLog zerolog.Logger, messages *i18n.Messages) focal.ObjectSource {
	switch cfg.Detection.Backend {
	case "ollama":
		serverURL := cfg.Detection.ServerURL
		if serverURL == "" {
			serverURL = "http://localhost:11435/api/chat"
		}
		visionClient, err := ollama.NewClient(serverURL)
		if err != nil {
			appLog.Fatal().Err(err).Msg("failed to create Ollama client")
		}
		return detection.NewDetector(visionClient, cfg.Detection.Model)
	case "llamacpp":
		serverURL := cfg.Detection.ServerURL
		if serverURL == "" {
			serverURL = "http://localhost:8080"
		}
		visionClient, err := llamacpp.NewClient(serverURL)
		if err != nil {
			appLog.Fatal().Err(err).Msg("failed to create llama.cpp client")
		}
		return detection.NewDetector(visionClient, cfg.Detection.Model)
	case "onnx":
		detector := onnx.NewDetector(cfg.Detection.Model, cfg.Detection.MetadataPath)
		appLog.Info().Msg(messages.T("loading_model", map[string]interface{}{
			"Model": cfg.Detection.Model,
		}))
		if err := detector.Warmup(); err != nil {
			appLog.Fatal().Err(err).Msg("failed to load onnx model")
		}
		appLog.Info().Msg(messages.T("model_loaded", nil))
		return detector
	default:
		appLog.Fatal().Msgf("unknown backend: %s (use ollama, llamacpp or onnx)", cfg.Detection.Backend)
		return nil
	}
}

// runProbe loads the input image and reports what the backend makes of
// it: a free-text description for the chat backends, raw detections
// for onnx.
func runProbe(ctx context.Context, objects focal.ObjectSource, cfg *config.Config, in string, appLog zerolog.Logger) {
	proc := processing.NewProcessor()
	img, err := proc.LoadImageSmart(in)
	if err != nil {
		appLog.Fatal().Err(err).Msg("failed to load probe image")
	}

	if detector, ok := objects.(*detection.Detector); ok {
		description, err := detector.Probe(ctx, img)
		if err != nil {
			appLog.Fatal().Err(err).Msg("probe failed")
		}
		fmt.Println(description)
		return
	}

	detections, err := objects.Detect(ctx, img, cfg.Detection.Prompts, cfg.Detection.ConfidenceThreshold)
	if err != nil {
		appLog.Fatal().Err(err).Msg("probe failed")
	}
	for _, det := range detections {
		fmt.Printf("%s %.2f [%d,%d %d,%d]\n", det.ClassName, det.Confidence, det.X1, det.Y1, det.X2, det.Y2)
	}
	fmt.Printf("%d detections\n", len(detections))
}

// collectInputs expands a directory into its image files; single files
// and URLs pass through. Files already inside the output directory are
// dropped so re-runs never crop previous crops.
func collectInputs(in, outputDir string, appLog zerolog.Logger) []string {
	if !utils.DirExists(in) {
		return []string{in}
	}

	files, err := utils.ListImageFiles(in)
	if err != nil {
		appLog.Fatal().Err(err).Msgf("failed to list %s", in)
	}

	absOut, err := filepath.Abs(outputDir)
	if err != nil {
		return files
	}
	kept := files[:0]
	for _, file := range files {
		absFile, err := filepath.Abs(file)
		if err != nil || !strings.HasPrefix(absFile, absOut+string(filepath.Separator)) {
			kept = append(kept, file)
		}
	}
	return kept
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	list := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			list = append(list, trimmed)
		}
	}
	return list
}
