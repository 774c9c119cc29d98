package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/nupi-ai/plugin-stt-whisper-coreml/internal/audio"
	"github.com/nupi-ai/plugin-stt-whisper-coreml/internal/benchmark"
	"github.com/nupi-ai/plugin-stt-whisper-coreml/internal/config"
	"github.com/nupi-ai/plugin-stt-whisper-coreml/internal/engine"
	"github.com/nupi-ai/plugin-stt-whisper-coreml/internal/models"
	"github.com/nupi-ai/plugin-stt-whisper-coreml/internal/moduleinfo"
)

var (
	okMark   = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render("✓")
	failMark = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Render("✗")
	heading  = lipgloss.NewStyle().Bold(true)
)

// benchmarkFixtures are searched when benchmark runs without --audio.
var benchmarkFixtures = []string{
	filepath.Join("test", "fixtures", "brian.ogg"),
	filepath.Join("testdata", "brian.ogg"),
}

func title(text string) string {
	return heading.Render(text) + "\n" + strings.Repeat("=", len([]rune(text)))
}

func runDownload(ctx context.Context, c *cli, args []string) error {
	fs := c.newFlagSet("download")
	force := fs.Bool("force", false, "force re-download even if the assets exist")
	workers := fs.Int("workers", c.cfg.DownloadWorkers, "parallel encoder file downloads")
	if _, err := parseInterspersed(fs, args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	if *workers < 1 || *workers > config.MaxDownloadWorkers {
		fmt.Fprintf(c.stderr, "--workers must be within 1..%d\n", config.MaxDownloadWorkers)
		return errUsage
	}

	m, err := c.manager(models.NewIndicator(c.stdout))
	if err != nil {
		return err
	}
	opts := models.Options{Force: *force, Workers: *workers}

	fmt.Fprintln(c.stdout, title("Whisper CoreML Model Downloader"))
	fmt.Fprintln(c.stdout)
	fmt.Fprintln(c.stdout, "Step 1/2: Downloading Whisper model...")
	if _, err := m.DownloadModel(ctx, opts); err != nil {
		return fmt.Errorf("download failed: %w", err)
	}
	fmt.Fprintln(c.stdout, "\nStep 2/2: Downloading CoreML encoder...")
	if _, err := m.DownloadEncoder(ctx, opts); err != nil {
		return fmt.Errorf("download failed: %w", err)
	}
	fmt.Fprintf(c.stdout, "\n%s All models ready!\n", okMark)
	return nil
}

func runStatus(_ context.Context, c *cli, _ []string) error {
	m, err := c.manager(nil)
	if err != nil {
		return err
	}
	st := m.Status()

	fmt.Fprintln(c.stdout, title("Whisper CoreML Status"))
	fmt.Fprintf(c.stdout, "Model directory: %s\n\n", st.Dir)
	if st.ModelPresent {
		fmt.Fprintf(c.stdout, "%s %s (%s)\n", okMark, models.WhisperModel.Filename, models.WhisperModel.SizeLabel)
	} else {
		fmt.Fprintf(c.stdout, "%s %s - Not downloaded\n", failMark, models.WhisperModel.Filename)
	}
	if st.EncoderPresent {
		fmt.Fprintf(c.stdout, "%s %s\n", okMark, models.CoreMLEncoder.Name)
	} else {
		fmt.Fprintf(c.stdout, "%s %s - Not downloaded\n", failMark, models.CoreMLEncoder.Name)
	}
	fmt.Fprintln(c.stdout)
	if st.Ready {
		fmt.Fprintf(c.stdout, "%s All models ready!\n", okMark)
	} else {
		fmt.Fprintf(c.stdout, "Run: %s download\n", moduleinfo.Info.BinaryName)
	}
	return nil
}

func runPath(_ context.Context, c *cli, _ []string) error {
	dir := c.cfg.ModelDir
	if dir == "" {
		dir = models.DefaultModelDir()
	}
	fmt.Fprintln(c.stdout, dir)
	return nil
}

func runVersion(_ context.Context, c *cli, _ []string) error {
	eng := engine.New(engine.SelectLoader(c.cfg.UseStubEngine, c.log), engine.Options{}, c.log)
	v := eng.Version()
	fmt.Fprintf(c.stdout, "%s %s\n", moduleinfo.Info.Slug, moduleinfo.Version())
	fmt.Fprintf(c.stdout, "addon:   %s\nwhisper: %s\ncoreml:  %s\n", v.Addon, v.Whisper, v.CoreML)
	return nil
}

// openEngine initialises an engine for the cached model. The stub engine
// does not need the assets on disk.
func (c *cli) openEngine(language string) (*engine.Engine, error) {
	loader := engine.SelectLoader(c.cfg.UseStubEngine, c.log)
	if !c.cfg.UseStubEngine {
		if !engine.PlatformSupported() {
			return nil, fmt.Errorf("%w: requires macOS with Apple Silicon", engine.ErrPlatformUnsupported)
		}
		if !models.IsModelDownloaded(c.cfg.ModelDir) {
			return nil, fmt.Errorf("model not downloaded. Run: %s download", moduleinfo.Info.BinaryName)
		}
	}

	opts := c.cfg.EngineOptions(models.ModelPath(c.cfg.ModelDir))
	if language != "" {
		opts.Language = language
	}
	eng := engine.New(loader, opts, c.log, engine.WithRecorder(c.recorder))
	if err := eng.Initialize(); err != nil {
		return nil, err
	}
	return eng, nil
}

func runBenchmark(ctx context.Context, c *cli, args []string) error {
	fs := c.newFlagSet("benchmark")
	audioPath := fs.String("audio", "", "audio file to benchmark with")
	runs := fs.Int("runs", benchmark.DefaultRuns, "number of timed runs")
	if _, err := parseInterspersed(fs, args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	if *runs <= 0 {
		*runs = benchmark.DefaultRuns
	}

	path := *audioPath
	if path == "" {
		path = findFixture()
		if path == "" {
			return errors.New("benchmark audio not found; pass --audio FILE")
		}
	}

	fmt.Fprintln(c.stdout, title("Whisper CoreML Benchmark"))
	fmt.Fprintln(c.stdout)
	fmt.Fprintf(c.stdout, "Chip: %s\n", chipName(ctx))
	fmt.Fprintf(c.stdout, "Model: %s\n", models.WhisperModel.Name)
	fmt.Fprintf(c.stdout, "Go: %s\n\n", runtime.Version())

	fmt.Fprintln(c.stdout, "Loading audio...")
	clip, err := audio.Load(ctx, path)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "Audio: %.1fs (%d samples)\n\n", clip.Seconds(), len(clip.Samples))

	fmt.Fprintln(c.stdout, "Initializing engine...")
	started := time.Now()
	eng, err := c.openEngine("")
	if err != nil {
		return err
	}
	defer eng.Cleanup()
	fmt.Fprintf(c.stdout, "Init time: %.2fs\n\n", time.Since(started).Seconds())

	report, err := benchmark.Run(ctx, eng, clip, benchmark.Options{
		Runs: *runs,
		OnWarmup: func(samples int) {
			fmt.Fprintf(c.stdout, "Warm-up run (%.1fs)...\n", float64(samples)/float64(clip.SampleRate))
		},
		OnRun: func(run int, took time.Duration) {
			if run == 1 {
				fmt.Fprintf(c.stdout, "\nBenchmark (%d runs)...\n\n", *runs)
			}
			fmt.Fprintf(c.stdout, "  Run %d: %.3fs\n", run, took.Seconds())
		},
	}, c.log)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.stdout)
	report.Write(c.stdout)
	return nil
}

type transcriptJSON struct {
	Text       string           `json:"text"`
	Language   string           `json:"language"`
	DurationMs float64          `json:"durationMs"`
	Segments   []engine.Segment `json:"segments"`
}

func runTranscribe(ctx context.Context, c *cli, args []string) error {
	fs := c.newFlagSet("transcribe")
	language := fs.String("language", "", "language code or auto")
	asJSON := fs.Bool("json", false, "print the full result as JSON")
	positional, err := parseInterspersed(fs, args)
	if err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	if len(positional) != 1 {
		fmt.Fprintln(c.stderr, "usage: transcribe FILE [--language xx] [--json]")
		return errUsage
	}
	if *language != "" && !engine.IsSupportedLanguage(*language) {
		return fmt.Errorf("unsupported language %q", *language)
	}

	clip, err := audio.Load(ctx, positional[0])
	if err != nil {
		return err
	}
	eng, err := c.openEngine(*language)
	if err != nil {
		return err
	}
	defer eng.Cleanup()

	res, err := eng.Transcribe(ctx, clip.Samples, clip.SampleRate)
	if err != nil {
		return err
	}

	if *asJSON {
		enc := json.NewEncoder(c.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(transcriptJSON{
			Text:       res.Text,
			Language:   res.Language,
			DurationMs: res.DurationMs,
			Segments:   res.Segments,
		})
	}
	for _, seg := range res.Segments {
		fmt.Fprintf(c.stdout, "[%s -> %s] %s\n", stamp(seg.StartMs), stamp(seg.EndMs), strings.TrimSpace(seg.Text))
	}
	if len(res.Segments) == 0 {
		fmt.Fprintln(c.stdout, strings.TrimSpace(res.Text))
	}
	c.log.Info("transcription finished", "language", res.Language, "duration_ms", res.DurationMs)
	return nil
}

func stamp(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	return fmt.Sprintf("%02d:%02d.%03d", int(d.Minutes()), int(d.Seconds())%60, ms%1000)
}

func findFixture() string {
	for _, candidate := range benchmarkFixtures {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

func chipName(ctx context.Context) string {
	if runtime.GOOS == "darwin" {
		out, err := exec.CommandContext(ctx, "sysctl", "-n", "machdep.cpu.brand_string").Output()
		if err == nil {
			return strings.TrimSpace(string(out))
		}
	}
	return runtime.GOOS + "/" + runtime.GOARCH
}
