package models

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/nupi-ai/plugin-stt-whisper-coreml/internal/moduleinfo"
)

const (
	partSuffix     = ".part"
	readBufferSize = 32 * 1024
)

// Options controls a single download call.
type Options struct {
	// Force re-downloads even when the destination already exists.
	Force bool
	// OnProgress is invoked after every received chunk (model file) or
	// every completed file (encoder tree).
	OnProgress ProgressFunc
	// Workers bounds concurrent file fetches for tree downloads. Values
	// below 2 download sequentially in enumeration order.
	Workers int
}

// Downloader fetches model assets over HTTP.
type Downloader struct {
	client    *http.Client
	log       *slog.Logger
	indicator *Indicator
}

// DownloaderOption customises a Downloader.
type DownloaderOption func(*Downloader)

// WithHTTPClient replaces the default client, which has no timeout so that
// multi-gigabyte transfers are not cut off.
func WithHTTPClient(client *http.Client) DownloaderOption {
	return func(d *Downloader) {
		if client != nil {
			d.client = client
		}
	}
}

// WithIndicator enables the textual progress display.
func WithIndicator(indicator *Indicator) DownloaderOption {
	return func(d *Downloader) {
		d.indicator = indicator
	}
}

// NewDownloader constructs a Downloader.
func NewDownloader(logger *slog.Logger, opts ...DownloaderOption) *Downloader {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Downloader{
		client: &http.Client{Timeout: 0},
		log:    logger.With("component", "models.Downloader"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Client returns the HTTP client used for transfers.
func (d *Downloader) Client() *http.Client {
	return d.client
}

// DownloadFile streams url into destPath and returns destPath.
//
// An existing destination short-circuits without network access unless
// opts.Force is set. The body is streamed into destPath+".part" and renamed
// once complete, so destPath never holds a partial transfer. There is no
// retry; calling again after a failure restarts from scratch.
func (d *Downloader) DownloadFile(ctx context.Context, url, destPath string, opts Options) (string, error) {
	if !opts.Force && exists(destPath) {
		d.log.Debug("model file already present", "path", destPath)
		return destPath, nil
	}

	// A leftover from a crashed or forced run must never pass as complete.
	if err := removeFile(destPath); err != nil {
		return "", fmt.Errorf("models: remove stale %s: %w", destPath, err)
	}
	tmpPath := destPath + partSuffix
	if err := removeFile(tmpPath); err != nil {
		return "", fmt.Errorf("models: remove stale %s: %w", tmpPath, err)
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return "", fmt.Errorf("models: create directory: %w", err)
	}

	d.log.Info("downloading model file", "url", url, "target", destPath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("models: build request: %w", err)
	}
	req.Header.Set("User-Agent", moduleinfo.UserAgent())
	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("models: download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if !successStatus(resp.StatusCode) {
		return "", fmt.Errorf("%w: %s", ErrDownloadFailed, resp.Status)
	}

	total := resp.ContentLength
	if total < 0 {
		total = 0
	}

	written, err := d.stream(resp.Body, tmpPath, total, opts.OnProgress)
	if err != nil {
		_ = removeFile(tmpPath)
		return "", err
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		_ = removeFile(tmpPath)
		return "", fmt.Errorf("models: finalise %s: %w", destPath, err)
	}

	d.indicator.Done()
	d.log.Info("model file downloaded", "path", destPath, "bytes", written, "size", FormatBytes(written))
	return destPath, nil
}

func (d *Downloader) stream(body io.Reader, tmpPath string, total int64, onProgress ProgressFunc) (int64, error) {
	out, err := os.Create(tmpPath)
	if err != nil {
		return 0, fmt.Errorf("models: create %s: %w", tmpPath, err)
	}

	var (
		downloaded int64
		buf        = make([]byte, readBufferSize)
	)
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			if _, err := out.Write(buf[:n]); err != nil {
				out.Close()
				return downloaded, fmt.Errorf("models: write %s: %w", tmpPath, err)
			}
			downloaded += int64(n)
			p := newProgress(downloaded, total)
			if onProgress != nil {
				onProgress(p)
			}
			d.indicator.Bytes(p)
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			out.Close()
			return downloaded, fmt.Errorf("models: read body: %w", readErr)
		}
	}

	if err := out.Close(); err != nil {
		return downloaded, fmt.Errorf("models: close %s: %w", tmpPath, err)
	}
	return downloaded, nil
}

func successStatus(code int) bool {
	return code >= 200 && code < 300
}

func removeFile(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
