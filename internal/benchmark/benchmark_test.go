package benchmark

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nupi-ai/plugin-stt-whisper-coreml/internal/audio"
	"github.com/nupi-ai/plugin-stt-whisper-coreml/internal/engine"
)

type scriptedTranscriber struct {
	durations []float64
	lengths   []int
	failAt    int
}

func (s *scriptedTranscriber) Transcribe(_ context.Context, samples []float32, _ int) (engine.Result, error) {
	call := len(s.lengths)
	s.lengths = append(s.lengths, len(samples))
	if s.failAt > 0 && call+1 == s.failAt {
		return engine.Result{}, errors.New("backend exploded")
	}
	if call == 0 {
		return engine.Result{DurationMs: 9999}, nil
	}
	return engine.Result{DurationMs: s.durations[call-1]}, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func tenSeconds() audio.Clip {
	return audio.Clip{Samples: make([]float32, 16000*10), SampleRate: 16000}
}

func TestRunComputesRealTimeFactor(t *testing.T) {
	tr := &scriptedTranscriber{durations: []float64{100, 200, 300}}
	var seen []int
	var events []string

	report, err := Run(context.Background(), tr, tenSeconds(), Options{
		OnWarmup: func(samples int) {
			events = append(events, fmt.Sprintf("warm-up %d after %d calls", samples, len(tr.lengths)))
		},
		OnRun: func(run int, _ time.Duration) {
			seen = append(seen, run)
			events = append(events, fmt.Sprintf("run %d", run))
		},
	}, quietLogger())
	require.NoError(t, err)

	assert.Equal(t, []string{"warm-up 80000 after 0 calls", "run 1", "run 2", "run 3"}, events)

	assert.Equal(t, []int{16000 * 5, 160000, 160000, 160000}, tr.lengths, "warm-up uses the first five seconds")
	assert.Equal(t, []int{1, 2, 3}, seen)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond}, report.Runs)
	assert.Equal(t, 200*time.Millisecond, report.Mean)
	assert.Equal(t, 100*time.Millisecond, report.StdDev)
	assert.InDelta(t, 10.0, report.AudioSeconds, 1e-9)
	assert.InDelta(t, 0.02, report.RTF, 1e-9)
	assert.InDelta(t, 50.0, report.Speedup, 1e-9)
	assert.Equal(t, 72*time.Second, report.HourEstimate())
}

func TestRunHonoursRunCountAndShortClips(t *testing.T) {
	tr := &scriptedTranscriber{durations: []float64{40}}
	clip := audio.Clip{Samples: make([]float32, 8000), SampleRate: 16000}

	report, err := Run(context.Background(), tr, clip, Options{Runs: 1}, quietLogger())
	require.NoError(t, err)

	assert.Equal(t, []int{8000, 8000}, tr.lengths, "warm-up is capped at the clip length")
	assert.Len(t, report.Runs, 1)
	assert.Zero(t, report.StdDev)
	assert.InDelta(t, 0.08, report.RTF, 1e-9)
}

func TestRunPropagatesErrors(t *testing.T) {
	t.Run("warm-up", func(t *testing.T) {
		_, err := Run(context.Background(), &scriptedTranscriber{failAt: 1}, tenSeconds(), Options{}, quietLogger())
		assert.ErrorContains(t, err, "warm-up")
	})
	t.Run("timed run", func(t *testing.T) {
		tr := &scriptedTranscriber{durations: []float64{1, 1, 1}, failAt: 3}
		_, err := Run(context.Background(), tr, tenSeconds(), Options{}, quietLogger())
		assert.ErrorContains(t, err, "run 2")
	})
}

func TestRunRejectsEmptyAudio(t *testing.T) {
	_, err := Run(context.Background(), &scriptedTranscriber{}, audio.Clip{SampleRate: 16000}, Options{}, nil)
	assert.ErrorIs(t, err, ErrNoAudio)
}

func TestRunAgainstStubEngine(t *testing.T) {
	eng := engine.New(engine.NewStubLoader(quietLogger()), engine.Options{ModelPath: "/models/ggml.bin"}, quietLogger())
	require.NoError(t, eng.Initialize())
	t.Cleanup(eng.Cleanup)

	report, err := Run(context.Background(), eng, tenSeconds(), Options{Runs: 2}, quietLogger())
	require.NoError(t, err)
	assert.InDelta(t, 100.0, report.Speedup, 1e-6)
}

func TestReportWrite(t *testing.T) {
	var buf bytes.Buffer
	Report{
		AudioSeconds: 10,
		Mean:         200 * time.Millisecond,
		RTF:          0.02,
		Speedup:      50,
	}.Write(&buf)

	out := buf.String()
	assert.Contains(t, out, "Audio duration:    10.0s")
	assert.Contains(t, out, "Real-time factor:  0.0200x")
	assert.Contains(t, out, "Speed:             50x real-time")
	assert.Contains(t, out, "→ 1 hour of audio in ~72 seconds")
}
