package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nupi-ai/plugin-stt-whisper-coreml/internal/moduleinfo"
)

// stubSpeedup is how many times faster than real time the stub claims to run.
const stubSpeedup = 100

// StubNative produces deterministic transcripts without invoking Whisper.
type StubNative struct {
	mu          sync.Mutex
	log         *slog.Logger
	opts        NativeOptions
	initialized bool
	calls       int
}

// NewStubNative returns a Native that generates placeholder transcripts.
func NewStubNative(logger *slog.Logger) *StubNative {
	if logger == nil {
		logger = slog.Default()
	}
	return &StubNative{
		log: logger.With("component", "engine.stub", "module", moduleinfo.Info.Slug),
	}
}

// Initialize implements Native. An empty model path is refused.
func (s *StubNative) Initialize(opts NativeOptions) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if opts.ModelPath == "" {
		return false, nil
	}
	s.opts = opts
	s.initialized = true
	s.log.Debug("stub initialized", "model_path", opts.ModelPath, "language", opts.Language)
	return true, nil
}

// IsInitialized implements Native.
func (s *StubNative) IsInitialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

// Transcribe implements Native. It returns a single segment spanning the
// whole buffer.
func (s *StubNative) Transcribe(ctx context.Context, samples []float32, sampleRate int) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return Result{}, errors.New("stub: not initialized")
	}

	s.calls++
	resampled := resampleLinear(samples, sampleRate, DefaultSampleRate)
	audioMs := int64(len(resampled)) * 1000 / DefaultSampleRate

	language := s.opts.Language
	if language == autoLanguage {
		language = "en"
	}
	res := Result{
		Language:   language,
		DurationMs: float64(audioMs) / stubSpeedup,
	}
	if len(resampled) == 0 {
		return res, nil
	}

	res.Text = fmt.Sprintf("[stub] call %d: %d samples at %d Hz", s.calls, len(samples), sampleRate)
	res.Segments = []Segment{{StartMs: 0, EndMs: audioMs, Text: res.Text, Confidence: 1}}
	s.log.Debug("stub transcript", "samples", len(samples), "sample_rate", sampleRate)
	return res, nil
}

// Cleanup implements Native.
func (s *StubNative) Cleanup() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initialized = false
	return nil
}

// Version implements Native.
func (s *StubNative) Version() Version {
	return Version{Addon: moduleinfo.Version(), Whisper: "stub", CoreML: "unavailable"}
}
