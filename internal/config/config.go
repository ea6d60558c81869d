package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/osanchezv/focalcrop/pkg/types"
)

// Config holds the application configuration
type Config struct {
	Formats   []types.FormatSpec `json:"formats"`
	Detection DetectionConfig    `json:"detection"`
	Output    OutputConfig       `json:"output"`
	Workers   int                `json:"workers"`
	Language  string             `json:"language"`
	Debug     bool               `json:"debug"`
}

// DetectionConfig holds configuration for the object detection tier
type DetectionConfig struct {
	Backend             string   `json:"backend"`
	Model               string   `json:"model"`
	ServerURL           string   `json:"server_url"`
	Prompts             []string `json:"prompts"`
	ConfidenceThreshold float64  `json:"confidence_threshold"`
	MetadataPath        string   `json:"metadata_path"`
}

// OutputConfig holds configuration for output generation
type OutputConfig struct {
	Dir      string `json:"dir"`
	Format   string `json:"format"`
	Quality  int    `json:"quality"`
	Lossless bool   `json:"lossless"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Formats: types.DefaultFormats(),
		Detection: DetectionConfig{
			Backend:             "llamacpp",
			Model:               "openbmb/minicpm-v4.5",
			ServerURL:           "",
			Prompts:             []string{"building", "person", "crane"},
			ConfidenceThreshold: 0.15,
			MetadataPath:        "",
		},
		Output: OutputConfig{
			Dir:      "output",
			Format:   "jpg",
			Quality:  90,
			Lossless: false,
		},
		Workers:  4,
		Language: "en",
		Debug:    false,
	}
}

// LoadFromFile loads configuration from a JSON file
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv overrides configuration fields from FOCALCROP_* environment
// variables. Unset or unparseable variables leave the field unchanged.
func (c *Config) ApplyEnv() {
	c.Detection.Backend = getEnv("FOCALCROP_BACKEND", c.Detection.Backend)
	c.Detection.Model = getEnv("FOCALCROP_MODEL", c.Detection.Model)
	c.Detection.ServerURL = getEnv("FOCALCROP_SERVER_URL", c.Detection.ServerURL)
	c.Detection.MetadataPath = getEnv("FOCALCROP_METADATA", c.Detection.MetadataPath)
	c.Detection.ConfidenceThreshold = getEnvAsFloat("FOCALCROP_CONFIDENCE", c.Detection.ConfidenceThreshold)
	if prompts := os.Getenv("FOCALCROP_PROMPTS"); prompts != "" {
		c.Detection.Prompts = splitPrompts(prompts)
	}
	c.Output.Dir = getEnv("FOCALCROP_OUTPUT_DIR", c.Output.Dir)
	c.Output.Format = getEnv("FOCALCROP_OUTPUT_FORMAT", c.Output.Format)
	c.Output.Quality = getEnvAsInt("FOCALCROP_QUALITY", c.Output.Quality)
	c.Workers = getEnvAsInt("FOCALCROP_WORKERS", c.Workers)
	c.Language = getEnv("FOCALCROP_LANG", c.Language)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if len(c.Formats) == 0 {
		return fmt.Errorf("formats cannot be empty")
	}
	for _, format := range c.Formats {
		if err := format.Validate(); err != nil {
			return fmt.Errorf("format %q: %w", format.Name, err)
		}
	}

	switch c.Detection.Backend {
	case "ollama", "llamacpp", "onnx":
	default:
		return fmt.Errorf("detection.backend must be ollama, llamacpp or onnx")
	}

	if c.Detection.ConfidenceThreshold < 0 || c.Detection.ConfidenceThreshold > 1 {
		return fmt.Errorf("detection.confidence_threshold must be between 0 and 1")
	}

	switch strings.ToLower(c.Output.Format) {
	case "jpg", "jpeg", "png", "webp":
	default:
		return fmt.Errorf("output.format must be jpg, png or webp")
	}

	if c.Output.Quality < 1 || c.Output.Quality > 100 {
		return fmt.Errorf("output.quality must be between 1 and 100")
	}

	if c.Workers < 1 {
		return fmt.Errorf("workers must be positive")
	}

	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "focalcrop", "config.json")
}

func splitPrompts(value string) []string {
	parts := strings.Split(value, ",")
	prompts := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			prompts = append(prompts, trimmed)
		}
	}
	return prompts
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
