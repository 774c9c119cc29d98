package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/nupi-ai/plugin-stt-whisper-coreml/internal/telemetry"
)

// DefaultSampleRate is the rate Whisper models are trained on.
const DefaultSampleRate = 16000

// State is the lifecycle position of an Engine.
type State int

const (
	StateUninitialized State = iota
	StateReady
	StateCleaned
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateCleaned:
		return "cleaned"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Engine is one transcription session on top of the Loader's shared backend.
//
// Calls on a single Engine are serialized, except IsReady which never waits
// on a running Initialize or Transcribe. Engines sharing a Loader share the
// backend too, so initializing a second Engine may replace the model loaded
// by the first.
type Engine struct {
	mu      sync.Mutex
	loader  *Loader
	opts    Options
	state   State
	session string
	metrics *telemetry.Recorder
	log     *slog.Logger

	// ready mirrors state == StateReady for lock-free readers.
	ready atomic.Bool
}

// EngineOption customises an Engine.
type EngineOption func(*Engine)

// WithRecorder attaches transcription telemetry.
func WithRecorder(r *telemetry.Recorder) EngineOption {
	return func(e *Engine) {
		e.metrics = r
	}
}

// New returns an uninitialized Engine. Nothing is loaded until Initialize.
// A nil loader selects NewNativeLoader.
func New(loader *Loader, opts Options, logger *slog.Logger, engineOpts ...EngineOption) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if loader == nil {
		loader = NewNativeLoader(logger)
	}
	e := &Engine{
		loader: loader,
		opts:   opts,
		log:    logger.With("component", "engine.Engine"),
	}
	for _, opt := range engineOpts {
		opt(e)
	}
	return e
}

// Initialize loads the model. It is a no-op on a ready Engine.
func (e *Engine) Initialize() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateReady {
		return nil
	}

	native, err := e.loader.Acquire()
	if err != nil {
		return err
	}

	opts := e.opts.resolve()
	ok, err := native.Initialize(opts)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEngineInitFailed, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrEngineInitFailed, opts.ModelPath)
	}

	e.state = StateReady
	e.session = uuid.NewString()
	e.ready.Store(true)
	e.log.Info("engine initialized",
		"session", e.session,
		"model_path", opts.ModelPath,
		"language", opts.Language,
		"threads", opts.Threads,
		"use_gpu", opts.UseGPU,
	)
	return nil
}

// Transcribe recognises mono samples recorded at sampleRate Hz; a
// non-positive rate means DefaultSampleRate. The result is passed through
// from the backend, including its own DurationMs.
func (e *Engine) Transcribe(ctx context.Context, samples []float32, sampleRate int) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateReady {
		return Result{}, fmt.Errorf("%w: call Initialize first", ErrNotInitialized)
	}
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}

	native, err := e.loader.Acquire()
	if err != nil {
		return Result{}, err
	}
	res, err := native.Transcribe(ctx, samples, sampleRate)
	if err != nil {
		return Result{}, fmt.Errorf("engine: transcribe: %w", err)
	}

	audioMillis := float64(len(samples)) * 1000 / float64(sampleRate)
	e.metrics.RecordTranscription(audioMillis, res.DurationMs)
	e.log.Debug("transcription complete",
		"session", e.session,
		"samples", len(samples),
		"sample_rate", sampleRate,
		"duration_ms", res.DurationMs,
		"segments", len(res.Segments),
	)

	return Result{
		Text:       res.Text,
		Language:   res.Language,
		DurationMs: res.DurationMs,
		Segments:   res.Segments,
	}, nil
}

// Cleanup releases the backend model. It never fails; backend errors are
// logged and the Engine is marked cleaned regardless.
func (e *Engine) Cleanup() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateReady {
		return
	}
	e.ready.Store(false)
	if native, err := e.loader.Acquire(); err == nil {
		if err := safeCall(native.Cleanup); err != nil {
			e.log.Warn("native cleanup failed", "session", e.session, "error", err)
		}
	}
	e.state = StateCleaned
	e.log.Info("engine cleaned up", "session", e.session)
}

// IsReady reports whether the Engine is initialized and the backend agrees.
// It does not block behind an in-flight transcription.
func (e *Engine) IsReady() bool {
	if !e.ready.Load() {
		return false
	}
	native, err := e.loader.Acquire()
	if err != nil {
		return false
	}
	var ready bool
	if err := safeCall(func() error {
		ready = native.IsInitialized()
		return nil
	}); err != nil {
		return false
	}
	return ready
}

// Version describes the backend, or UnknownVersion when it cannot be loaded.
// It works in every lifecycle state.
func (e *Engine) Version() Version {
	native, err := e.loader.Acquire()
	if err != nil {
		return UnknownVersion()
	}
	return native.Version()
}

// State returns the lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// SessionID identifies the latest successful Initialize; empty before that.
func (e *Engine) SessionID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session
}

func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("engine: native panic: %v", r)
		}
	}()
	return fn()
}
