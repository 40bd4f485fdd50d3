package api

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ferhatknd/alan-dal-ders-sub000/internal/viewer"
)

func (s *Server) handleViewerResolve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.URL == "" {
		respondError(w, http.StatusBadRequest, "validation_error", "url is required")
		return
	}
	respondJSON(w, http.StatusOK, s.deps.Viewer.Resolve(r.Context(), req.URL))
}

// handleViewerSplit clamps a requested split-view ratio to the allowed band.
func (s *Server) handleViewerSplit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Ratio float64 `json:"ratio"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	respondJSON(w, http.StatusOK, map[string]float64{
		"ratio": viewer.ClampSplit(req.Ratio),
	})
}

// handleFile streams a stored document through from the backend, so the
// browser never needs direct access to the scraper host.
func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	path := chi.URLParam(r, "*")
	if path == "" {
		respondError(w, http.StatusBadRequest, "validation_error", "file path is required")
		return
	}

	body, contentType, err := s.deps.Upstream.OpenFile(r.Context(), path)
	if err != nil {
		respondUpstreamError(w, err)
		return
	}
	defer body.Close()

	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	if _, err := io.Copy(w, body); err != nil {
		// Client went away mid-download; nothing to answer.
		return
	}
}
