// Package site serves the web client at "/".
package site

import (
	"context"
	"embed"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

//go:embed static
var staticFS embed.FS

// Register attaches the web client to mux. A non-empty dir serves a built
// single-page app from disk; otherwise the embedded landing page is served.
func Register(_ context.Context, mux *http.ServeMux, dir string) {
	if mux == nil {
		panic("mux is nil")
	}
	mux.Handle("GET /", NewRootHandler(dir))
}

// RootHandler serves static assets and falls back to index.html for
// client-side routes.
type RootHandler struct {
	files fs.FS
}

// NewRootHandler creates a root handler for dir, or for the embedded page
// when dir is empty.
func NewRootHandler(dir string) *RootHandler {
	if dir == "" {
		sub, err := fs.Sub(staticFS, "static")
		if err != nil {
			panic(err)
		}
		return &RootHandler{files: sub}
	}
	return &RootHandler{files: os.DirFS(filepath.Clean(dir))}
}

// ServeHTTP handles GET / and every path no other route claims.
func (h *RootHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		http.Error(w, "API endpoint not found", http.StatusNotFound)
		return
	}

	name := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
	if name != "" && fs.ValidPath(name) {
		if st, err := fs.Stat(h.files, name); err == nil && !st.IsDir() {
			http.ServeFileFS(w, r, h.files, name)
			return
		}
	}

	if _, err := fs.Stat(h.files, "index.html"); err != nil {
		http.Error(w, "web client build not found", http.StatusServiceUnavailable)
		return
	}
	http.ServeFileFS(w, r, h.files, "index.html")
}
