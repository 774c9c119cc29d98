package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/nupi-ai/plugin-stt-whisper-coreml/internal/engine"
	"github.com/nupi-ai/plugin-stt-whisper-coreml/internal/models"
)

const (
	// DefaultListenAddr is where the health daemon listens unless configured otherwise.
	DefaultListenAddr      = "127.0.0.1:50051"
	DefaultLanguage        = "auto"
	DefaultLogLevel        = "info"
	DefaultDownloadWorkers = 1
	MaxDownloadWorkers     = 16
)

// Config captures bootstrap configuration from the optional YAML file, the
// JSON payload in WHISPER_COREML_MODULE_CONFIG and environment overrides.
type Config struct {
	ListenAddr string
	LogLevel   string
	// ModelDir is the asset cache; empty selects models.DefaultModelDir.
	ModelDir        string
	Language        string
	Threads         *int
	UseGPU          *bool
	UseStubEngine   bool
	DownloadWorkers int
	// AutoDownload lets the daemon fetch missing assets at startup.
	AutoDownload       bool
	ModelURL           string
	EncoderAPIURL      string
	EncoderDownloadURL string
}

// Validate applies defaults, checks required fields, and rejects out-of-range
// values.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("config: listen address is required")
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	c.LogLevel = strings.ToLower(c.LogLevel)
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.Language == "" {
		c.Language = DefaultLanguage
	}
	c.Language = strings.ToLower(c.Language)
	if !engine.IsSupportedLanguage(c.Language) {
		return fmt.Errorf("config: unsupported language %q", c.Language)
	}
	if c.Threads != nil {
		if *c.Threads < 0 {
			return fmt.Errorf("config: threads must be >= 0, got %d", *c.Threads)
		}
		if *c.Threads == 0 {
			c.Threads = nil
		}
	}
	if c.DownloadWorkers == 0 {
		c.DownloadWorkers = DefaultDownloadWorkers
	}
	if c.DownloadWorkers < 1 || c.DownloadWorkers > MaxDownloadWorkers {
		return fmt.Errorf("config: download_workers must be within 1..%d, got %d", MaxDownloadWorkers, c.DownloadWorkers)
	}
	for name, raw := range map[string]string{
		"model_url":            c.ModelURL,
		"encoder_api_url":      c.EncoderAPIURL,
		"encoder_download_url": c.EncoderDownloadURL,
	} {
		if err := checkURL(name, raw); err != nil {
			return err
		}
	}
	return nil
}

// SlogLevel converts LogLevel for slog handlers. Call after Validate.
func (c Config) SlogLevel() slog.Level {
	level, _ := parseLevel(c.LogLevel)
	return level
}

// EngineOptions maps the engine settings onto engine.Options for modelPath.
func (c Config) EngineOptions(modelPath string) engine.Options {
	opts := engine.Options{
		ModelPath: modelPath,
		Language:  c.Language,
		UseGPU:    c.UseGPU,
	}
	if c.Threads != nil {
		opts.Threads = *c.Threads
	}
	return opts
}

// Sources returns the asset endpoints; unset fields keep the hub defaults.
func (c Config) Sources() models.Sources {
	return models.Sources{
		ModelURL:           c.ModelURL,
		EncoderAPIURL:      c.EncoderAPIURL,
		EncoderDownloadURL: c.EncoderDownloadURL,
	}
}

func parseLevel(raw string) (slog.Level, error) {
	switch raw {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("config: unknown log level %q", raw)
	}
}

func checkURL(name, raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("config: %s: %w", name, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("config: %s must be an absolute http(s) URL, got %q", name, raw)
	}
	return nil
}
