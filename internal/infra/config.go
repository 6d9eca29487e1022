package infra

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents tool configuration loaded from environment variables,
// optionally overlaid on a YAML defaults file.
type Config struct {
	AppEnv          string
	GeminiAPIKey    string
	GeminiModel     string
	GeminiBaseURL   string
	VideoModel      string
	OutputDir       string
	Destination     string
	Concurrency     int
	RateLimitPerMin int
	WebhookURL      string
	StatusAddr      string
	HTTPTimeout     time.Duration
}

// Defaults mirrors the optional mediabatch.yaml file. Every field is optional;
// values already set from the environment win.
type Defaults struct {
	ImageModel string `yaml:"image_model"`
	VideoModel string `yaml:"video_model"`
	OutputPath string `yaml:"output_path"`
	Batch      struct {
		Concurrency        int `yaml:"concurrency"`
		RateLimitPerMinute int `yaml:"rate_limit_per_minute"`
	} `yaml:"batch"`
	Webhook struct {
		URL string `yaml:"url"`
	} `yaml:"webhook"`
}

// LoadConfig loads configuration from the environment and applies defaults
// where needed. A .env file is honored when present.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		AppEnv:          getEnv("APP_ENV", "production"),
		GeminiAPIKey:    os.Getenv("GEMINI_API_KEY"),
		GeminiModel:     getEnv("GEMINI_MODEL", "gemini-2.5-flash-image-preview"),
		GeminiBaseURL:   getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		VideoModel:      getEnv("VIDEO_MODEL", "veo-3.0-generate-preview"),
		OutputDir:       getEnv("OUTPUT_DIR", "./output"),
		Destination:     os.Getenv("DESTINATION"),
		Concurrency:     getEnvInt("CONCURRENCY", 4),
		RateLimitPerMin: getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
		WebhookURL:      os.Getenv("WEBHOOK_URL"),
		StatusAddr:      os.Getenv("STATUS_ADDR"),
		HTTPTimeout:     time.Second * time.Duration(getEnvInt("HTTP_TIMEOUT_SECONDS", 120)),
	}

	if path := getEnv("MEDIABATCH_CONFIG", "mediabatch.yaml"); path != "" {
		if err := cfg.applyDefaultsFile(path); err != nil {
			return nil, err
		}
	}

	if cfg.Concurrency < 1 || cfg.Concurrency > 50 {
		return nil, fmt.Errorf("CONCURRENCY must be between 1 and 50, got %d", cfg.Concurrency)
	}
	if cfg.RateLimitPerMin < 1 {
		return nil, fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive, got %d", cfg.RateLimitPerMin)
	}

	return cfg, nil
}

// applyDefaultsFile overlays values from a YAML defaults file onto unset
// fields. A missing file is not an error; a malformed one is.
func (c *Config) applyDefaultsFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read defaults file %s: %w", path, err)
	}

	var d Defaults
	if err := yaml.Unmarshal(data, &d); err != nil {
		return fmt.Errorf("parse defaults file %s: %w", path, err)
	}

	if os.Getenv("GEMINI_MODEL") == "" && d.ImageModel != "" {
		c.GeminiModel = d.ImageModel
	}
	if os.Getenv("VIDEO_MODEL") == "" && d.VideoModel != "" {
		c.VideoModel = d.VideoModel
	}
	if os.Getenv("OUTPUT_DIR") == "" && d.OutputPath != "" {
		c.OutputDir = d.OutputPath
	}
	if os.Getenv("CONCURRENCY") == "" && d.Batch.Concurrency > 0 {
		c.Concurrency = d.Batch.Concurrency
	}
	if os.Getenv("RATE_LIMIT_PER_MINUTE") == "" && d.Batch.RateLimitPerMinute > 0 {
		c.RateLimitPerMin = d.Batch.RateLimitPerMinute
	}
	if c.WebhookURL == "" {
		c.WebhookURL = d.Webhook.URL
	}

	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
