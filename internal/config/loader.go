package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const envPrefix = "WHISPER_COREML_"

// Loader loads configuration from an optional file and environment
// variables. Tests can override Lookup and ReadFile to inject deterministic
// inputs.
type Loader struct {
	Lookup   func(string) (string, bool)
	ReadFile func(string) ([]byte, error)
}

// Load layers defaults, the YAML file named by WHISPER_COREML_CONFIG_FILE,
// the JSON payload in WHISPER_COREML_MODULE_CONFIG and individual
// WHISPER_COREML_* variables, in that order, and validates the result.
func (l Loader) Load() (Config, error) {
	if l.Lookup == nil {
		l.Lookup = os.LookupEnv
	}
	if l.ReadFile == nil {
		l.ReadFile = os.ReadFile
	}

	cfg := Config{
		ListenAddr: DefaultListenAddr,
	}

	if path, ok := l.lookup("CONFIG_FILE"); ok {
		data, err := l.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		var p payload
		if err := yaml.Unmarshal(data, &p); err != nil {
			return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
		}
		p.apply(&cfg)
	}

	if raw, ok := l.lookup("MODULE_CONFIG"); ok {
		var p payload
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return Config{}, fmt.Errorf("config: decode %sMODULE_CONFIG: %w", envPrefix, err)
		}
		p.apply(&cfg)
	}

	if err := l.applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// payload is the shape shared by the YAML file and the JSON blob. Pointer
// fields distinguish "absent" from zero values.
type payload struct {
	ListenAddr         *string `yaml:"listen_addr" json:"listen_addr"`
	LogLevel           *string `yaml:"log_level" json:"log_level"`
	ModelDir           *string `yaml:"model_dir" json:"model_dir"`
	Language           *string `yaml:"language" json:"language"`
	Threads            *int    `yaml:"threads" json:"threads"`
	UseGPU             *bool   `yaml:"use_gpu" json:"use_gpu"`
	UseStubEngine      *bool   `yaml:"use_stub_engine" json:"use_stub_engine"`
	DownloadWorkers    *int    `yaml:"download_workers" json:"download_workers"`
	AutoDownload       *bool   `yaml:"auto_download" json:"auto_download"`
	ModelURL           *string `yaml:"model_url" json:"model_url"`
	EncoderAPIURL      *string `yaml:"encoder_api_url" json:"encoder_api_url"`
	EncoderDownloadURL *string `yaml:"encoder_download_url" json:"encoder_download_url"`
}

func (p payload) apply(cfg *Config) {
	setString(&cfg.ListenAddr, p.ListenAddr)
	setString(&cfg.LogLevel, p.LogLevel)
	setString(&cfg.ModelDir, p.ModelDir)
	setString(&cfg.Language, p.Language)
	setString(&cfg.ModelURL, p.ModelURL)
	setString(&cfg.EncoderAPIURL, p.EncoderAPIURL)
	setString(&cfg.EncoderDownloadURL, p.EncoderDownloadURL)
	if p.Threads != nil {
		cfg.Threads = p.Threads
	}
	if p.UseGPU != nil {
		cfg.UseGPU = p.UseGPU
	}
	if p.UseStubEngine != nil {
		cfg.UseStubEngine = *p.UseStubEngine
	}
	if p.DownloadWorkers != nil {
		cfg.DownloadWorkers = *p.DownloadWorkers
	}
	if p.AutoDownload != nil {
		cfg.AutoDownload = *p.AutoDownload
	}
}

func (l Loader) applyEnv(cfg *Config) error {
	for key, target := range map[string]*string{
		"LISTEN_ADDR":          &cfg.ListenAddr,
		"LOG_LEVEL":            &cfg.LogLevel,
		"MODEL_DIR":            &cfg.ModelDir,
		"LANGUAGE":             &cfg.Language,
		"MODEL_URL":            &cfg.ModelURL,
		"ENCODER_API_URL":      &cfg.EncoderAPIURL,
		"ENCODER_DOWNLOAD_URL": &cfg.EncoderDownloadURL,
	} {
		if value, ok := l.lookup(key); ok {
			*target = value
		}
	}

	if value, ok := l.lookup("THREADS"); ok {
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("config: %sTHREADS: %w", envPrefix, err)
		}
		cfg.Threads = &n
	}
	if value, ok := l.lookup("DOWNLOAD_WORKERS"); ok {
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("config: %sDOWNLOAD_WORKERS: %w", envPrefix, err)
		}
		cfg.DownloadWorkers = n
	}
	if value, ok := l.lookup("USE_GPU"); ok {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("config: %sUSE_GPU: %w", envPrefix, err)
		}
		cfg.UseGPU = &b
	}
	for key, target := range map[string]*bool{
		"USE_STUB_ENGINE": &cfg.UseStubEngine,
		"AUTO_DOWNLOAD":   &cfg.AutoDownload,
	} {
		if value, ok := l.lookup(key); ok {
			b, err := strconv.ParseBool(value)
			if err != nil {
				return fmt.Errorf("config: %s%s: %w", envPrefix, key, err)
			}
			*target = b
		}
	}
	return nil
}

// lookup reads envPrefix+key and ignores blank values.
func (l Loader) lookup(key string) (string, bool) {
	value, ok := l.Lookup(envPrefix + key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}

func setString(target *string, value *string) {
	if value != nil && strings.TrimSpace(*value) != "" {
		*target = strings.TrimSpace(*value)
	}
}
