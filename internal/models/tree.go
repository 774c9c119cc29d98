package models

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/nupi-ai/plugin-stt-whisper-coreml/internal/moduleinfo"
)

// EntryType tags a node of the remote tree.
type EntryType string

const (
	EntryFile      EntryType = "file"
	EntryDirectory EntryType = "directory"
)

// TreeEntry is one node returned by the hub's tree endpoint.
type TreeEntry struct {
	Type EntryType `json:"type"`
	Path string    `json:"path"`
	Size int64     `json:"size,omitempty"`
}

// TreeWalker enumerates every file below a remote path.
type TreeWalker interface {
	ListFiles(ctx context.Context, root string) ([]TreeEntry, error)
}

// TreeLister walks a Hugging Face repository through its
// `<api>/tree/main/<path>` metadata endpoint.
type TreeLister struct {
	apiURL string
	client *http.Client
	log    *slog.Logger
}

// NewTreeLister returns a lister for the repository API at apiURL
// (for example https://huggingface.co/api/models/<owner>/<repo>).
func NewTreeLister(apiURL string, client *http.Client, logger *slog.Logger) *TreeLister {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TreeLister{
		apiURL: strings.TrimRight(apiURL, "/"),
		client: client,
		log:    logger.With("component", "models.TreeLister"),
	}
}

// ListFiles flattens the tree below root into its files, depth first, in the
// order the endpoint returns children. Any failed listing fails the whole call.
func (l *TreeLister) ListFiles(ctx context.Context, root string) ([]TreeEntry, error) {
	children, err := l.listChildren(ctx, root)
	if err != nil {
		return nil, err
	}

	var files []TreeEntry
	for _, child := range children {
		if child.Type == EntryFile {
			files = append(files, child)
			continue
		}
		if !below(root, child.Path) {
			return nil, fmt.Errorf("%w: %s: directory %q is not below it", ErrTreeFetchFailed, root, child.Path)
		}
		nested, err := l.ListFiles(ctx, child.Path)
		if err != nil {
			return nil, err
		}
		files = append(files, nested...)
	}
	return files, nil
}

func (l *TreeLister) listChildren(ctx context.Context, path string) ([]TreeEntry, error) {
	endpoint := l.apiURL + "/tree/main"
	if path != "" {
		endpoint += "/" + escapePath(path)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrTreeFetchFailed, path, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", moduleinfo.UserAgent())
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrTreeFetchFailed, path, err)
	}
	defer resp.Body.Close()

	if !successStatus(resp.StatusCode) {
		return nil, fmt.Errorf("%w: %s: %s", ErrTreeFetchFailed, path, resp.Status)
	}

	var entries []TreeEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("%w: %s: decode listing: %w", ErrTreeFetchFailed, path, err)
	}
	l.log.Debug("listed tree node", "path", path, "children", len(entries))
	return entries, nil
}

// below reports whether child is a strict descendant of parent. Requiring
// this bounds the recursion of ListFiles by the depth of the remote tree.
func below(parent, child string) bool {
	parent = strings.Trim(parent, "/")
	child = strings.Trim(child, "/")
	for _, segment := range strings.Split(child, "/") {
		if segment == "." || segment == ".." {
			return false
		}
	}
	if parent == "" {
		return child != ""
	}
	return strings.HasPrefix(child, parent+"/") && len(child) > len(parent)+1
}

// escapePath escapes each segment of a slash separated repository path.
func escapePath(path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return strings.Join(segments, "/")
}
