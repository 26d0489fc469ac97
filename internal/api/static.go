package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/scb10x/typhoon-scribe/pkg/logger"
)

// StaticFileHandler serves the web UI from a directory on disk.
type StaticFileHandler struct {
	rootDir string
	logger  *logger.Logger
}

// NewStaticFileHandler creates a new static file handler
func NewStaticFileHandler(rootDir string, logger *logger.Logger) *StaticFileHandler {
	return &StaticFileHandler{
		rootDir: rootDir,
		logger:  logger.Named("static"),
	}
}

// ServeHTTP implements the http.Handler interface
func (h *StaticFileHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Clean the path to prevent directory traversal
	upath := r.URL.Path
	if !strings.HasPrefix(upath, "/") {
		upath = "/" + upath
	}
	upath = filepath.Clean(upath)

	// Serve index.html for the root path
	if upath == "/" || upath == "." {
		upath = "/index.html"
	}

	fullPath := filepath.Join(h.rootDir, upath)

	// Ensure the resolved path is still inside the root directory
	absRoot, err := filepath.Abs(h.rootDir)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	// Prefix check is separator-aware so a sibling like "www-backup" never
	// passes for a root of "www"
	absPath, err := filepath.Abs(fullPath)
	if err != nil || (absPath != absRoot && !strings.HasPrefix(absPath, absRoot+string(os.PathSeparator))) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	info, err := os.Stat(fullPath)
	if err != nil || info.IsDir() {
		// Fall back to index.html for client-side routing
		fullPath = filepath.Join(h.rootDir, "index.html")
		if _, err := os.Stat(fullPath); err != nil {
			http.NotFound(w, r)
			return
		}
	}

	// Static assets are small; avoid stale UI after upgrades
	w.Header().Set("Cache-Control", "no-cache")

	h.logger.Debug("Serving static file",
		logger.String("path", r.URL.Path),
		logger.String("file", fullPath))

	http.ServeFile(w, r, fullPath)
}
