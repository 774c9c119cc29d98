package main

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nupi-ai/plugin-stt-whisper-coreml/internal/config"
	"github.com/nupi-ai/plugin-stt-whisper-coreml/internal/engine"
	"github.com/nupi-ai/plugin-stt-whisper-coreml/internal/models"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPrepareWithStubEngine(t *testing.T) {
	logger := quietLogger()
	cfg := config.Config{UseStubEngine: true, ModelDir: t.TempDir()}
	manager, err := models.NewManager(cfg.ModelDir, logger)
	require.NoError(t, err)
	eng := engine.New(engine.NewStubLoader(logger), cfg.EngineOptions(manager.ModelPath()), logger)
	t.Cleanup(eng.Cleanup)

	require.NoError(t, prepare(context.Background(), cfg, manager, eng, logger))
	assert.True(t, eng.IsReady())
}

func TestPrepareRefusesMissingAssetsWithoutAutoDownload(t *testing.T) {
	logger := quietLogger()
	cfg := config.Config{ModelDir: t.TempDir()}
	manager, err := models.NewManager(cfg.ModelDir, logger)
	require.NoError(t, err)
	loader := engine.NewLoader(nil, func() (engine.Native, error) {
		t.Fatal("backend must not load without assets")
		return nil, nil
	})
	eng := engine.New(loader, cfg.EngineOptions(manager.ModelPath()), logger)

	require.Error(t, prepare(context.Background(), cfg, manager, eng, logger), "missing assets")
	assert.Equal(t, engine.StateUninitialized, eng.State())
}
