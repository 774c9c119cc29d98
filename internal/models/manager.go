package models

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/nupi-ai/plugin-stt-whisper-coreml/internal/telemetry"
)

// Sources names the remote endpoints for both assets.
type Sources struct {
	ModelURL           string
	EncoderAPIURL      string
	EncoderDownloadURL string
}

// DefaultSources points at the Hugging Face hub.
func DefaultSources() Sources {
	return Sources{
		ModelURL:           WhisperModel.URL,
		EncoderAPIURL:      CoreMLEncoder.APIURL,
		EncoderDownloadURL: CoreMLEncoder.DownloadURL,
	}
}

// Status is a point-in-time view of the cache directory.
type Status struct {
	Dir            string
	ModelPresent   bool
	EncoderPresent bool
	Ready          bool
}

// Manager provisions the model file and the CoreML encoder under one cache directory.
type Manager struct {
	dir        string
	sources    Sources
	downloader *Downloader
	walker     TreeWalker
	metrics    *telemetry.Recorder
	log        *slog.Logger
}

// ManagerOption customises a Manager.
type ManagerOption func(*Manager)

// WithSources overrides the remote endpoints. Empty fields keep their defaults.
func WithSources(sources Sources) ManagerOption {
	return func(m *Manager) {
		if sources.ModelURL != "" {
			m.sources.ModelURL = sources.ModelURL
		}
		if sources.EncoderAPIURL != "" {
			m.sources.EncoderAPIURL = sources.EncoderAPIURL
		}
		if sources.EncoderDownloadURL != "" {
			m.sources.EncoderDownloadURL = sources.EncoderDownloadURL
		}
	}
}

// WithDownloader replaces the default Downloader.
func WithDownloader(d *Downloader) ManagerOption {
	return func(m *Manager) {
		if d != nil {
			m.downloader = d
		}
	}
}

// WithTreeWalker replaces the hub lister used for the encoder.
func WithTreeWalker(w TreeWalker) ManagerOption {
	return func(m *Manager) {
		m.walker = w
	}
}

// WithRecorder attaches download telemetry.
func WithRecorder(r *telemetry.Recorder) ManagerOption {
	return func(m *Manager) {
		m.metrics = r
	}
}

// NewManager creates the cache directory and returns a Manager rooted there.
// An empty dir selects DefaultModelDir.
func NewManager(dir string, logger *slog.Logger, opts ...ManagerOption) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dir = resolveDir(dir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("models: create models directory: %w", err)
	}

	m := &Manager{
		dir:     dir,
		sources: DefaultSources(),
		log:     logger.With("component", "models.Manager"),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.downloader == nil {
		m.downloader = NewDownloader(logger)
	}
	if m.walker == nil {
		m.walker = NewTreeLister(m.sources.EncoderAPIURL, m.downloader.Client(), logger)
	}
	return m, nil
}

// Dir returns the cache directory.
func (m *Manager) Dir() string {
	return m.dir
}

// ModelPath returns the model file location.
func (m *Manager) ModelPath() string {
	return ModelPath(m.dir)
}

// EncoderPath returns the encoder directory location.
func (m *Manager) EncoderPath() string {
	return EncoderPath(m.dir)
}

// Status re-reads presence from disk on every call.
func (m *Manager) Status() Status {
	model := IsBinModelDownloaded(m.dir)
	encoder := IsEncoderDownloaded(m.dir)
	return Status{
		Dir:            m.dir,
		ModelPresent:   model,
		EncoderPresent: encoder,
		Ready:          model && encoder,
	}
}

// DownloadModel fetches the ggml model file.
func (m *Manager) DownloadModel(ctx context.Context, opts Options) (string, error) {
	metrics := m.metrics.StartDownload(WhisperModel.Filename, telemetry.UnitBytes)
	opts.OnProgress = track(metrics, opts.OnProgress)

	m.log.Info("downloading whisper model", "model", WhisperModel.Name, "size", WhisperModel.SizeLabel)
	path, err := m.downloader.DownloadFile(ctx, m.sources.ModelURL, m.ModelPath(), opts)
	metrics.Finish(err)
	return path, err
}

// DownloadEncoder fetches the CoreML encoder tree.
func (m *Manager) DownloadEncoder(ctx context.Context, opts Options) (string, error) {
	metrics := m.metrics.StartDownload(CoreMLEncoder.Name, telemetry.UnitFiles)
	opts.OnProgress = track(metrics, opts.OnProgress)

	path, err := m.downloader.DownloadTree(ctx, TreeSource{
		Walker:  m.walker,
		BaseURL: m.sources.EncoderDownloadURL,
		Root:    CoreMLEncoder.Name,
	}, m.dir, opts)
	metrics.Finish(err)
	return path, err
}

// DownloadAll fetches the model file and then the encoder.
func (m *Manager) DownloadAll(ctx context.Context, opts Options) error {
	if _, err := m.DownloadModel(ctx, opts); err != nil {
		return err
	}
	if _, err := m.DownloadEncoder(ctx, opts); err != nil {
		return err
	}
	return nil
}

func track(metrics *telemetry.DownloadMetrics, next ProgressFunc) ProgressFunc {
	return func(p Progress) {
		metrics.RecordProgress(p.Downloaded, p.Total)
		if next != nil {
			next(p)
		}
	}
}
