//go:build whispercpp

package engine

import (
	"context"
	"io"
	"log/slog"
	"math"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nupi-ai/plugin-stt-whisper-coreml/internal/models"
)

// Set WHISPER_COREML_TEST_MODEL to a ggml model file, or download the default
// model with `whisper-coreml download`.
func testModelPath(tb testing.TB) string {
	tb.Helper()
	if path := os.Getenv("WHISPER_COREML_TEST_MODEL"); path != "" {
		return path
	}
	if models.IsBinModelDownloaded("") {
		return models.ModelPath("")
	}
	tb.Skip("no whisper model available; set WHISPER_COREML_TEST_MODEL")
	return ""
}

func openTestEngine(tb testing.TB, language string) *Engine {
	tb.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	loader := NewLoader(nil, func() (Native, error) { return openNative(logger) })
	eng := New(loader, Options{ModelPath: testModelPath(tb), Language: language}, logger)
	require.NoError(tb, eng.Initialize())
	tb.Cleanup(eng.Cleanup)
	return eng
}

func tone(seconds float64, sampleRate int) []float32 {
	out := make([]float32, int(seconds*float64(sampleRate)))
	for i := range out {
		out[i] = float32(0.1 * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate)))
	}
	return out
}

func TestNativeTranscribesTone(t *testing.T) {
	eng := openTestEngine(t, "en")

	res, err := eng.Transcribe(context.Background(), tone(2, DefaultSampleRate), DefaultSampleRate)
	require.NoError(t, err)
	assert.Equal(t, "en", res.Language)
	assert.Greater(t, res.DurationMs, 0.0)
	assert.True(t, eng.IsReady(), "engine not ready after transcription")
}

func TestNativeResamplesInput(t *testing.T) {
	eng := openTestEngine(t, "en")
	_, err := eng.Transcribe(context.Background(), tone(1, 44100), 44100)
	require.NoError(t, err)
}

func TestNativeRespectsContextCancellation(t *testing.T) {
	eng := openTestEngine(t, "en")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := eng.Transcribe(ctx, tone(1, DefaultSampleRate), DefaultSampleRate)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNativeRejectsEmptyModelPath(t *testing.T) {
	native, err := openNative(slog.Default())
	require.NoError(t, err)

	_, err = native.Initialize(NativeOptions{})
	require.Error(t, err)
	assert.False(t, native.IsInitialized(), "native reports initialized after failure")
}

func TestNativeInitializeFailsForMissingModel(t *testing.T) {
	native, err := openNative(slog.Default())
	require.NoError(t, err)

	ok, err := native.Initialize(NativeOptions{ModelPath: "/nonexistent/ggml.bin"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNativeCleanupClearsReadiness(t *testing.T) {
	native, err := openNative(slog.Default())
	require.NoError(t, err)

	ok, err := native.Initialize(NativeOptions{ModelPath: testModelPath(t), Language: "en"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, native.IsInitialized())

	require.NoError(t, native.Cleanup())
	assert.False(t, native.IsInitialized())
}

func BenchmarkNativeTranscribe(b *testing.B) {
	eng := openTestEngine(b, "en")
	audio := tone(5, DefaultSampleRate)
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, err := eng.Transcribe(ctx, audio, DefaultSampleRate)
		require.NoError(b, err)
	}
}
