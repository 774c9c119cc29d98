package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nupi-ai/plugin-stt-whisper-coreml/internal/config"
	"github.com/nupi-ai/plugin-stt-whisper-coreml/internal/models"
	"github.com/nupi-ai/plugin-stt-whisper-coreml/internal/moduleinfo"
	"github.com/nupi-ai/plugin-stt-whisper-coreml/internal/telemetry"
)

const (
	exitOK    = 0
	exitFail  = 1
	exitUsage = 2
)

var errUsage = errors.New("usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// cli carries what every command needs.
type cli struct {
	cfg      config.Config
	stdout   io.Writer
	stderr   io.Writer
	log      *slog.Logger
	recorder *telemetry.Recorder
}

type command struct {
	summary string
	run     func(ctx context.Context, c *cli, args []string) error
}

var commands = map[string]command{
	"download":   {"download [--force] [--workers N]  Download the Whisper model and CoreML encoder (~1.5GB)", runDownload},
	"status":     {"status                            Check which assets are downloaded", runStatus},
	"path":       {"path                              Print the model directory", runPath},
	"benchmark":  {"benchmark [--audio FILE] [--runs N] Run a performance benchmark", runBenchmark},
	"transcribe": {"transcribe FILE [--language xx] [--json] Transcribe an audio file", runTranscribe},
	"version":    {"version                           Print module and engine versions", runVersion},
}

var commandOrder = []string{"download", "status", "path", "benchmark", "transcribe", "version"}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "--help" || args[0] == "-h" || args[0] == "help" {
		printHelp(stdout)
		return exitOK
	}

	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		printHelp(stderr)
		return exitUsage
	}

	cfg, err := config.Loader{}.Load()
	if err != nil {
		fmt.Fprintf(stderr, "✗ %v\n", err)
		return exitFail
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))

	c := &cli{
		cfg:      cfg,
		stdout:   stdout,
		stderr:   stderr,
		log:      logger,
		recorder: telemetry.NewRecorder(logger),
	}
	if err := cmd.run(ctx, c, args[1:]); err != nil {
		if errors.Is(err, errUsage) || errors.Is(err, flag.ErrHelp) {
			return exitUsage
		}
		fmt.Fprintf(stderr, "\n✗ %v\n", err)
		return exitFail
	}
	return exitOK
}

func printHelp(w io.Writer) {
	fmt.Fprintf(w, "\n%s CLI (%s)\n\nCommands:\n", moduleinfo.Info.Slug, moduleinfo.Version())
	for _, name := range commandOrder {
		fmt.Fprintf(w, "  %s\n", commands[name].summary)
	}
	fmt.Fprintf(w, `
The %s model offers the best speed/quality ratio on the Neural Engine.

Options:
  --help, -h          Show this help message

Configuration is read from %sCONFIG_FILE, %sMODULE_CONFIG
and %s* environment variables.
`, models.WhisperModel.Name, envPrefix, envPrefix, envPrefix)
}

const envPrefix = "WHISPER_COREML_"

// manager builds the asset manager. A non-nil indicator draws progress lines.
func (c *cli) manager(indicator *models.Indicator) (*models.Manager, error) {
	return models.NewManager(c.cfg.ModelDir, c.log,
		models.WithSources(c.cfg.Sources()),
		models.WithRecorder(c.recorder),
		models.WithDownloader(models.NewDownloader(c.log, models.WithIndicator(indicator))),
	)
}

// newFlagSet returns a flag set reporting errors to stderr.
func (c *cli) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	return fs
}

// parseInterspersed lets flags follow positional arguments.
func parseInterspersed(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		args = fs.Args()
		if len(args) == 0 {
			return positional, nil
		}
		positional = append(positional, args[0])
		args = args[1:]
	}
}
