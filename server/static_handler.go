package server

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/moltasthornblom/beam/logger"
	"github.com/moltasthornblom/beam/storage"
)

// objectSource is where renditions live when the local tree is gone.
type objectSource interface {
	Open(ctx context.Context, rel string) (io.ReadCloser, int64, error)
}

// HLSHandler serves rendition trees under /hls/ from the local HLS
// directory, falling back to the object mirror when configured.
type HLSHandler struct {
	root    string
	objects objectSource
}

func NewHLSHandler(root string, objects objectSource) *HLSHandler {
	return &HLSHandler{root: root, objects: objects}
}

// parseHLSPath turns /hls/<filename>/<file> into a clean relative path.
func parseHLSPath(urlPath string) (string, bool) {
	rel := strings.TrimPrefix(path.Clean("/"+strings.TrimPrefix(urlPath, "/hls/")), "/")
	parts := strings.Split(rel, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" || parts[0] == ".." {
		return "", false
	}
	return rel, true
}

func (h *HLSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	rel, ok := parseHLSPath(r.URL.Path)
	if !ok {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", storage.ContentTypeFor(rel))
	if strings.HasSuffix(rel, ".m3u8") {
		// Playlists grow while renditions are encoding.
		w.Header().Set("Cache-Control", "no-cache")
	} else {
		w.Header().Set("Cache-Control", "public, max-age=31536000")
	}

	local := filepath.Join(h.root, filepath.FromSlash(rel))
	f, err := os.Open(local)
	if err == nil {
		defer f.Close()
		info, err := f.Stat()
		if err == nil && info.Mode().IsRegular() {
			http.ServeContent(w, r, info.Name(), info.ModTime(), f)
			return
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		logger.Warn("Failed to open rendition file", logger.String("path", local), logger.ErrorField(err))
	}

	if h.objects == nil {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()
	object, size, err := h.objects.Open(ctx, rel)
	if err != nil {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}
	defer object.Close()

	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(w, object); err != nil {
		logger.Error("Error serving file from MinIO", logger.String("path", rel), logger.ErrorField(err))
	}
}
