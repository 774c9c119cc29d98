// Package benchmark measures transcription speed against real time.
package benchmark

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/nupi-ai/plugin-stt-whisper-coreml/internal/audio"
	"github.com/nupi-ai/plugin-stt-whisper-coreml/internal/engine"
)

const (
	DefaultRuns          = 3
	DefaultWarmupSeconds = 5.0
)

var ErrNoAudio = errors.New("benchmark: no audio samples")

// Transcriber is the subset of *engine.Engine a benchmark drives.
type Transcriber interface {
	Transcribe(ctx context.Context, samples []float32, sampleRate int) (engine.Result, error)
}

// Options tunes a benchmark. Zero values select the defaults.
type Options struct {
	Runs          int
	WarmupSeconds float64
	// OnWarmup is called right before the warm-up transcription.
	OnWarmup func(samples int)
	// OnRun is called after each timed run with its 1-based index.
	OnRun func(run int, took time.Duration)
}

// Report summarises a benchmark. Times are the engine's own DurationMs.
type Report struct {
	AudioSeconds float64
	Samples      int
	Runs         []time.Duration
	Mean         time.Duration
	StdDev       time.Duration
	// RTF is mean processing time divided by audio duration.
	RTF     float64
	Speedup float64
}

// HourEstimate is how long one hour of audio would take at the measured speed.
func (r Report) HourEstimate() time.Duration {
	if r.Speedup <= 0 {
		return 0
	}
	return time.Duration(float64(time.Hour) / r.Speedup)
}

// Run warms the engine on the head of clip and then transcribes the whole
// clip opts.Runs times.
func Run(ctx context.Context, t Transcriber, clip audio.Clip, opts Options, logger *slog.Logger) (Report, error) {
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "benchmark")
	if len(clip.Samples) == 0 || clip.SampleRate <= 0 {
		return Report{}, ErrNoAudio
	}
	if opts.Runs <= 0 {
		opts.Runs = DefaultRuns
	}
	if opts.WarmupSeconds <= 0 {
		opts.WarmupSeconds = DefaultWarmupSeconds
	}

	warm := clip.Head(opts.WarmupSeconds)
	log.Debug("warm-up run", "samples", len(warm.Samples))
	if opts.OnWarmup != nil {
		opts.OnWarmup(len(warm.Samples))
	}
	if _, err := t.Transcribe(ctx, warm.Samples, warm.SampleRate); err != nil {
		return Report{}, fmt.Errorf("benchmark: warm-up: %w", err)
	}

	report := Report{
		AudioSeconds: clip.Seconds(),
		Samples:      len(clip.Samples),
		Runs:         make([]time.Duration, 0, opts.Runs),
	}
	millis := make([]float64, 0, opts.Runs)
	for i := range opts.Runs {
		res, err := t.Transcribe(ctx, clip.Samples, clip.SampleRate)
		if err != nil {
			return Report{}, fmt.Errorf("benchmark: run %d: %w", i+1, err)
		}
		took := msToDuration(res.DurationMs)
		report.Runs = append(report.Runs, took)
		millis = append(millis, res.DurationMs)
		log.Debug("benchmark run", "run", i+1, "duration_ms", res.DurationMs)
		if opts.OnRun != nil {
			opts.OnRun(i+1, took)
		}
	}

	mean, std := stat.MeanStdDev(millis, nil)
	if len(millis) < 2 {
		std = 0
	}
	report.Mean = msToDuration(mean)
	report.StdDev = msToDuration(std)
	report.RTF = mean / 1000 / report.AudioSeconds
	if report.RTF > 0 {
		report.Speedup = 1 / report.RTF
	}
	return report, nil
}

// Write prints the results block.
func (r Report) Write(w io.Writer) {
	rule := "─────────────────────────────"
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "Results")
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Audio duration:    %.1fs\n", r.AudioSeconds)
	fmt.Fprintf(w, "Avg process time:  %.3fs (±%.3fs)\n", r.Mean.Seconds(), r.StdDev.Seconds())
	fmt.Fprintf(w, "Real-time factor:  %.4fx\n", r.RTF)
	fmt.Fprintf(w, "Speed:             %.0fx real-time\n", r.Speedup)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "→ 1 hour of audio in ~%.0f seconds\n", r.HourEstimate().Seconds())
	fmt.Fprintln(w, rule)
}

func msToDuration(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}
