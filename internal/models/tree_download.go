package models

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/nupi-ai/plugin-stt-whisper-coreml/internal/moduleinfo"
)

// TreeSource locates a directory-shaped asset on the hub.
type TreeSource struct {
	Walker TreeWalker
	// BaseURL serves raw file bytes at BaseURL + "/" + relative path.
	BaseURL string
	// Root is the remote directory; it is mirrored as destDir/Root.
	Root string
}

// DownloadTree mirrors src.Root into destDir and returns the local mirror path.
//
// An existing mirror short-circuits unless opts.Force is set. Otherwise the
// old mirror is removed, the remote tree is listed once and every file is
// fetched whole. Progress is counted in completed files. Any failure removes
// the partial mirror so that the next call starts from scratch.
func (d *Downloader) DownloadTree(ctx context.Context, src TreeSource, destDir string, opts Options) (string, error) {
	mirror, err := mirrorPath(destDir, src.Root)
	if err != nil {
		return "", fmt.Errorf("%w: invalid root %q", ErrTreeFetchFailed, src.Root)
	}
	if !opts.Force && exists(mirror) {
		d.log.Debug("encoder already present", "path", mirror)
		return mirror, nil
	}

	if err := os.RemoveAll(mirror); err != nil {
		return "", fmt.Errorf("models: remove stale %s: %w", mirror, err)
	}
	if err := os.MkdirAll(mirror, 0o755); err != nil {
		return "", fmt.Errorf("models: create directory: %w", err)
	}

	d.log.Info("fetching encoder file list", "root", src.Root)
	files, err := src.Walker.ListFiles(ctx, src.Root)
	if err != nil {
		_ = os.RemoveAll(mirror)
		return "", err
	}

	var totalSize int64
	for _, f := range files {
		totalSize += f.Size
	}
	d.log.Info("downloading encoder", "files", len(files), "size", FormatBytes(totalSize), "target", mirror)

	if err := d.fetchAll(ctx, src.BaseURL, files, destDir, opts); err != nil {
		_ = os.RemoveAll(mirror)
		return "", err
	}

	d.indicator.Done()
	d.log.Info("encoder downloaded", "path", mirror, "files", len(files))
	return mirror, nil
}

func (d *Downloader) fetchAll(ctx context.Context, baseURL string, files []TreeEntry, destDir string, opts Options) error {
	workers := max(opts.Workers, 1)
	total := int64(len(files))

	var (
		mu        sync.Mutex
		completed int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	launched := 0
	for _, file := range files {
		if gctx.Err() != nil {
			break
		}
		launched++
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := d.fetchFile(gctx, baseURL, file.Path, destDir); err != nil {
				return err
			}

			mu.Lock()
			defer mu.Unlock()
			completed++
			p := newProgress(completed, total)
			if opts.OnProgress != nil {
				opts.OnProgress(p)
			}
			d.indicator.Files(p)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if launched < len(files) {
		// Cancelled between two files: nothing failed, yet the tree is incomplete.
		return fmt.Errorf("%w: %w", ErrFileFetchFailed, context.Cause(ctx))
	}
	return nil
}

func (d *Downloader) fetchFile(ctx context.Context, baseURL, relPath, destDir string) error {
	destPath, err := mirrorPath(destDir, relPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrFileFetchFailed, relPath, err)
	}

	url := strings.TrimRight(baseURL, "/") + "/" + escapePath(relPath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrFileFetchFailed, relPath, err)
	}
	req.Header.Set("User-Agent", moduleinfo.UserAgent())
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrFileFetchFailed, relPath, err)
	}
	defer resp.Body.Close()

	if !successStatus(resp.StatusCode) {
		return fmt.Errorf("%w: %s: %s", ErrFileFetchFailed, relPath, resp.Status)
	}

	tmp, err := os.CreateTemp(filepath.Dir(destPath), ".fetch-*"+partSuffix)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrFileFetchFailed, relPath, err)
	}
	tmpPath := tmp.Name()
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		_ = removeFile(tmpPath)
		return fmt.Errorf("%w: %s: %w", ErrFileFetchFailed, relPath, err)
	}
	if err := tmp.Close(); err != nil {
		_ = removeFile(tmpPath)
		return fmt.Errorf("%w: %s: %w", ErrFileFetchFailed, relPath, err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		_ = removeFile(tmpPath)
		return fmt.Errorf("%w: %s: %w", ErrFileFetchFailed, relPath, err)
	}

	d.log.Debug("fetched encoder file", "path", relPath)
	return nil
}

// mirrorPath maps a remote relative path below destDir and rejects paths
// that would escape it.
func mirrorPath(destDir, relPath string) (string, error) {
	destPath := filepath.Join(destDir, filepath.FromSlash(relPath))
	rel, err := filepath.Rel(destDir, destPath)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s: path escapes %s", ErrFileFetchFailed, relPath, destDir)
	}
	return destPath, nil
}
