package models

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nupi-ai/plugin-stt-whisper-coreml/internal/telemetry"
)

func newTestManager(t *testing.T, hub *fakeHub, recorder *telemetry.Recorder) *Manager {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/model.bin" {
			_, _ = w.Write([]byte("ggml-weights"))
			return
		}
		hub.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	m, err := NewManager(filepath.Join(t.TempDir(), "models"), discardLogger(),
		WithSources(Sources{
			ModelURL:           srv.URL + "/model.bin",
			EncoderAPIURL:      srv.URL + "/api",
			EncoderDownloadURL: srv.URL + "/resolve/main",
		}),
		WithDownloader(NewDownloader(discardLogger(), WithHTTPClient(srv.Client()))),
		WithRecorder(recorder),
	)
	require.NoError(t, err)
	return m
}

func TestNewManagerCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	m, err := NewManager(dir, nil)
	require.NoError(t, err)
	assert.DirExists(t, dir)
	assert.Equal(t, dir, m.Dir())
	assert.Equal(t, ModelPath(dir), m.ModelPath())
	assert.Equal(t, EncoderPath(dir), m.EncoderPath())
	assert.Equal(t, Status{Dir: dir}, m.Status())
}

func TestWithSourcesKeepsDefaultsForEmptyFields(t *testing.T) {
	m, err := NewManager(t.TempDir(), nil, WithSources(Sources{ModelURL: "https://mirror.test/m.bin"}))
	require.NoError(t, err)
	assert.Equal(t, "https://mirror.test/m.bin", m.sources.ModelURL)
	assert.Equal(t, CoreMLEncoder.APIURL, m.sources.EncoderAPIURL)
	assert.Equal(t, CoreMLEncoder.DownloadURL, m.sources.EncoderDownloadURL)
}

func TestManagerDownloadAll(t *testing.T) {
	hub := newFakeHub()
	hub.encoderTree(CoreMLEncoder.Name)
	recorder := telemetry.NewRecorder(discardLogger())
	m := newTestManager(t, hub, recorder)

	var seen int
	require.NoError(t, m.DownloadAll(context.Background(), Options{
		OnProgress: func(Progress) { seen++ },
	}))
	assert.Positive(t, seen)

	status := m.Status()
	assert.True(t, status.ModelPresent)
	assert.True(t, status.EncoderPresent)
	assert.True(t, status.Ready)
	assert.True(t, IsModelDownloaded(m.Dir()))

	data, err := os.ReadFile(m.ModelPath())
	require.NoError(t, err)
	assert.Equal(t, "ggml-weights", string(data))
	assert.FileExists(t, filepath.Join(m.EncoderPath(), "sub", "b.bin"))

	snapshot := recorder.Snapshot()
	assert.EqualValues(t, 2, snapshot.TotalDownloads)
	assert.Zero(t, snapshot.FailedDownloads)
	assert.Zero(t, snapshot.ActiveDownloads)
	assert.EqualValues(t, len("ggml-weights"), snapshot.TotalBytes)
	assert.EqualValues(t, 3, snapshot.TotalFiles)
}

func TestManagerEncoderFailureIsRecorded(t *testing.T) {
	hub := newFakeHub()
	hub.encoderTree(CoreMLEncoder.Name)
	hub.failing["list:"+CoreMLEncoder.Name] = http.StatusServiceUnavailable
	recorder := telemetry.NewRecorder(discardLogger())
	m := newTestManager(t, hub, recorder)

	err := m.DownloadAll(context.Background(), Options{})
	require.ErrorIs(t, err, ErrTreeFetchFailed)

	status := m.Status()
	assert.True(t, status.ModelPresent)
	assert.False(t, status.EncoderPresent)
	assert.False(t, status.Ready)

	snapshot := recorder.Snapshot()
	assert.EqualValues(t, 2, snapshot.TotalDownloads)
	assert.EqualValues(t, 1, snapshot.FailedDownloads)
}

func TestManagerModelFailureStopsBeforeEncoder(t *testing.T) {
	hub := newFakeHub()
	hub.encoderTree(CoreMLEncoder.Name)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/model.bin" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		hub.ServeHTTP(w, r)
	}))
	defer srv.Close()

	m, err := NewManager(t.TempDir(), discardLogger(),
		WithSources(Sources{
			ModelURL:           srv.URL + "/model.bin",
			EncoderAPIURL:      srv.URL + "/api",
			EncoderDownloadURL: srv.URL + "/resolve/main",
		}),
	)
	require.NoError(t, err)

	err = m.DownloadAll(context.Background(), Options{})
	require.ErrorIs(t, err, ErrDownloadFailed)
	assert.Zero(t, hub.listCalls.Load())
	assert.False(t, m.Status().ModelPresent)
}
