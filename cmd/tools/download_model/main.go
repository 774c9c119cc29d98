package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nupi-ai/plugin-stt-whisper-coreml/internal/config"
	"github.com/nupi-ai/plugin-stt-whisper-coreml/internal/models"
)

// download_model provisions the assets into a fixture directory for the
// whispercpp-tagged engine tests.
func main() {
	var (
		output  = flag.String("dir", "testdata/models", "directory receiving the model file and encoder")
		force   = flag.Bool("force", false, "re-download even if the assets exist")
		workers = flag.Int("workers", 4, "parallel encoder file downloads")
		timeout = flag.Duration("timeout", 60*time.Minute, "overall download deadline")
	)
	flag.Parse()

	if strings.TrimSpace(*output) == "" {
		fmt.Fprintln(os.Stderr, "download_model: --dir must not be empty")
		os.Exit(2)
	}
	if *workers < 1 || *workers > config.MaxDownloadWorkers {
		fmt.Fprintf(os.Stderr, "download_model: --workers must be within 1..%d\n", config.MaxDownloadWorkers)
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	baseDir := filepath.Clean(*output)
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	manager, err := models.NewManager(baseDir, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "download_model: init manager: %v\n", err)
		os.Exit(1)
	}

	if err := manager.DownloadAll(ctx, models.Options{Force: *force, Workers: *workers}); err != nil {
		fmt.Fprintf(os.Stderr, "download_model: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Model ready at %s\nEncoder ready at %s\n", manager.ModelPath(), manager.EncoderPath())
	fmt.Printf("Run engine tests with: WHISPER_COREML_TEST_MODEL=%s go test -tags whispercpp ./internal/engine\n", manager.ModelPath())
}
