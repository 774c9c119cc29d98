package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/nupi-ai/plugin-stt-whisper-coreml/internal/config"
	"github.com/nupi-ai/plugin-stt-whisper-coreml/internal/engine"
	"github.com/nupi-ai/plugin-stt-whisper-coreml/internal/models"
	"github.com/nupi-ai/plugin-stt-whisper-coreml/internal/moduleinfo"
	"github.com/nupi-ai/plugin-stt-whisper-coreml/internal/server"
	"github.com/nupi-ai/plugin-stt-whisper-coreml/internal/telemetry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Loader{}.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	logger.Info("starting adapter",
		"version", moduleinfo.Version(),
		"listen_addr", cfg.ListenAddr,
		"language", cfg.Language,
		"model_dir", cfg.ModelDir,
		"stub_engine", cfg.UseStubEngine,
	)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("adapter terminated with error", "error", err)
		os.Exit(1)
	}
	logger.Info("adapter stopped")
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	recorder := telemetry.NewRecorder(logger)
	defer logTotals(logger, recorder)

	manager, err := models.NewManager(cfg.ModelDir, logger,
		models.WithSources(cfg.Sources()),
		models.WithRecorder(recorder),
	)
	if err != nil {
		return err
	}

	eng := engine.New(
		engine.SelectLoader(cfg.UseStubEngine, logger),
		cfg.EngineOptions(manager.ModelPath()),
		logger,
		engine.WithRecorder(recorder),
	)
	defer eng.Cleanup()

	lis, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return err
	}
	defer lis.Close()

	srv := server.New(eng, logger)

	// Provisioning and model loading run behind a NOT_SERVING health status
	// so the listener is reachable while a 1.5 GB download is in flight.
	go func() {
		if err := prepare(ctx, cfg, manager, eng, logger); err != nil {
			if !errors.Is(err, context.Canceled) {
				logger.Error("engine not ready", "error", err)
			}
			return
		}
		srv.Refresh()
	}()

	return srv.Serve(ctx, lis)
}

func prepare(ctx context.Context, cfg config.Config, manager *models.Manager, eng *engine.Engine, logger *slog.Logger) error {
	if !cfg.UseStubEngine {
		status := manager.Status()
		if !status.Ready {
			if !cfg.AutoDownload {
				logger.Warn("model assets missing and auto_download disabled",
					"model_present", status.ModelPresent,
					"encoder_present", status.EncoderPresent,
					"dir", status.Dir,
				)
				return errors.New("model assets missing")
			}
			if err := manager.DownloadAll(ctx, models.Options{Workers: cfg.DownloadWorkers}); err != nil {
				return err
			}
		}
	}

	if err := eng.Initialize(); err != nil {
		return err
	}
	v := eng.Version()
	logger.Info("engine ready",
		"session_id", eng.SessionID(),
		"addon", v.Addon,
		"whisper", v.Whisper,
		"coreml", v.CoreML,
	)
	return nil
}

func logTotals(logger *slog.Logger, recorder *telemetry.Recorder) {
	snapshot := recorder.Snapshot()
	if snapshot.TotalDownloads == 0 && snapshot.TotalTranscriptions == 0 {
		return
	}
	logger.Info("telemetry totals",
		"total_downloads", snapshot.TotalDownloads,
		"failed_downloads", snapshot.FailedDownloads,
		"total_bytes", snapshot.TotalBytes,
		"total_files", snapshot.TotalFiles,
		"total_transcriptions", snapshot.TotalTranscriptions,
		"total_audio_ms", snapshot.TotalAudioMillis,
		"total_engine_ms", snapshot.TotalEngineMillis,
	)
}

func newLogger(cfg config.Config) *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	})
	return slog.New(handler).With("module", moduleinfo.Info.Slug)
}
