package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nupi-ai/plugin-stt-whisper-coreml/internal/models"
)

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func useModelDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("WHISPER_COREML_MODEL_DIR", dir)
	t.Setenv("WHISPER_COREML_LOG_LEVEL", "error")
	return dir
}

func writeTone(t *testing.T, seconds int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tone.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	data := make([]int, 16000*seconds)
	for i := range data {
		if i%40 < 20 {
			data[i] = 8000
		} else {
			data[i] = -8000
		}
	}
	enc := wav.NewEncoder(f, 16000, 16, 1, 1)
	require.NoError(t, enc.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: 16000},
		Data:           data,
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
	return path
}

func TestHelp(t *testing.T) {
	code, out, _ := runCLI(t)
	require.Equal(t, exitOK, code)
	for _, name := range commandOrder {
		assert.Contains(t, out, name)
	}
}

func TestUnknownCommand(t *testing.T) {
	code, _, errOut := runCLI(t, "explode")
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, errOut, "Unknown command: explode")
}

func TestPath(t *testing.T) {
	dir := useModelDir(t)
	code, out, _ := runCLI(t, "path")
	require.Equal(t, exitOK, code)
	assert.Equal(t, dir, strings.TrimSpace(out))
}

func TestStatus(t *testing.T) {
	dir := useModelDir(t)

	_, out, _ := runCLI(t, "status")
	assert.Contains(t, out, models.WhisperModel.Filename+" - Not downloaded")
	assert.Contains(t, out, "Run: whisper-coreml download")

	require.NoError(t, os.WriteFile(models.ModelPath(dir), nil, 0o644))
	require.NoError(t, os.MkdirAll(models.EncoderPath(dir), 0o755))

	code, out, _ := runCLI(t, "status")
	require.Equal(t, exitOK, code)
	assert.Contains(t, out, "All models ready!")
	assert.NotContains(t, out, "Not downloaded")
}

func TestDownloadFromMirror(t *testing.T) {
	dir := useModelDir(t)
	root := models.CoreMLEncoder.Name

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/model.bin":
			_, _ = w.Write([]byte("ggml"))
		case "/api/tree/main/" + root:
			_ = json.NewEncoder(w).Encode([]models.TreeEntry{
				{Type: models.EntryFile, Path: root + "/model.mil", Size: 3},
				{Type: models.EntryDirectory, Path: root + "/weights"},
			})
		case "/api/tree/main/" + root + "/weights":
			_ = json.NewEncoder(w).Encode([]models.TreeEntry{
				{Type: models.EntryFile, Path: root + "/weights/weight.bin", Size: 4},
			})
		case "/resolve/main/" + root + "/model.mil":
			_, _ = w.Write([]byte("mil"))
		case "/resolve/main/" + root + "/weights/weight.bin":
			_, _ = w.Write([]byte("wbin"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	t.Setenv("WHISPER_COREML_MODEL_URL", srv.URL+"/model.bin")
	t.Setenv("WHISPER_COREML_ENCODER_API_URL", srv.URL+"/api")
	t.Setenv("WHISPER_COREML_ENCODER_DOWNLOAD_URL", srv.URL+"/resolve/main")

	code, out, errOut := runCLI(t, "download", "--workers", "2")
	require.Equal(t, exitOK, code, errOut)
	for _, want := range []string{"Step 1/2", "Step 2/2", "Progress: 100% (2/2 files)", "All models ready!"} {
		assert.Contains(t, out, want)
	}
	assert.True(t, models.IsModelDownloaded(dir), "expected both assets on disk")
	got, err := os.ReadFile(filepath.Join(dir, root, "weights", "weight.bin"))
	require.NoError(t, err)
	assert.Equal(t, "wbin", string(got))
}

func TestDownloadRejectsBadWorkers(t *testing.T) {
	useModelDir(t)
	code, _, _ := runCLI(t, "download", "--workers", "99")
	assert.Equal(t, exitUsage, code)
}

func TestTranscribeWithStubEngine(t *testing.T) {
	useModelDir(t)
	t.Setenv("WHISPER_COREML_USE_STUB_ENGINE", "true")
	path := writeTone(t, 2)

	code, out, errOut := runCLI(t, "transcribe", path)
	require.Equal(t, exitOK, code, errOut)
	assert.Contains(t, out, "[00:00.000 -> 00:02.000] [stub]")

	code, out, errOut = runCLI(t, "transcribe", path, "--json", "--language", "de")
	require.Equal(t, exitOK, code, errOut)
	var res transcriptJSON
	require.NoError(t, json.Unmarshal([]byte(out), &res), out)
	assert.Equal(t, "de", res.Language)
	require.Len(t, res.Segments, 1)
	assert.EqualValues(t, 2000, res.Segments[0].EndMs)
}

func TestTranscribeUsage(t *testing.T) {
	useModelDir(t)
	code, _, _ := runCLI(t, "transcribe")
	assert.Equal(t, exitUsage, code)

	code, _, _ = runCLI(t, "transcribe", "a.wav", "--language", "tlh")
	assert.Equal(t, exitFail, code, "unsupported language")
}

func TestBenchmarkWithStubEngine(t *testing.T) {
	useModelDir(t)
	t.Setenv("WHISPER_COREML_USE_STUB_ENGINE", "1")
	path := writeTone(t, 6)

	code, out, errOut := runCLI(t, "benchmark", "--audio", path, "--runs", "2")
	require.Equal(t, exitOK, code, errOut)
	for _, want := range []string{"Audio: 6.0s (96000 samples)", "Run 2:", "Speed:             100x real-time"} {
		assert.Contains(t, out, want)
	}

	warmup := strings.Index(out, "Warm-up run (5.0s)...")
	header := strings.Index(out, "Benchmark (2 runs)...")
	first := strings.Index(out, "Run 1:")
	require.NotEqual(t, -1, warmup, out)
	assert.Less(t, warmup, header, "warm-up is announced before the timed runs")
	assert.Less(t, header, first)
}

func TestVersion(t *testing.T) {
	useModelDir(t)
	t.Setenv("WHISPER_COREML_USE_STUB_ENGINE", "1")
	code, out, _ := runCLI(t, "version")
	require.Equal(t, exitOK, code)
	assert.Contains(t, out, "whisper:")
}

func TestParseInterspersed(t *testing.T) {
	c := &cli{stderr: &bytes.Buffer{}}
	fs := c.newFlagSet("t")
	lang := fs.String("language", "", "")
	pos, err := parseInterspersed(fs, []string{"a.wav", "--language", "fr", "b.wav"})
	require.NoError(t, err)
	assert.Equal(t, "fr", *lang)
	assert.Equal(t, []string{"a.wav", "b.wav"}, pos)
}
