package routes

import (
	"net/http"
	"path/filepath"
)

func (s *Server) registerStatic(mux *http.ServeMux) {
	fs := http.FileServer(http.Dir(s.settings.StaticDir))
	mux.Handle("/static/", http.StripPrefix("/static/", fs))
	mux.HandleFunc("/{$}", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, filepath.Join(s.settings.StaticDir, "index.html"))
	})
}
