package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/thermoextract/internal/logging"
)

// extractRequest selects tables for a batch extraction. An empty list
// extracts every detected table.
type extractRequest struct {
	Tables []string `json:"tables"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	logging.WithSession(r.Context(), id, "analyze").Info("analyze requested")

	res, err := s.service.Analyze(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

// handleExtract extracts the requested tables in one stage run. Tables that
// fail quality checks are reported per result; the response is still 200.
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req extractRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.respondError(w, r, fmt.Errorf("%w: invalid JSON body: %v", errBadRequest, err))
		return
	}
	logging.WithSession(r.Context(), id, "extract").Info("extract requested", "tables", req.Tables)

	batch, err := s.service.ExtractTables(r.Context(), id, req.Tables)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, batch)
}

// handleExtractTable extracts a single detected table.
func (s *Server) handleExtractTable(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	table, err := url.PathUnescape(chi.URLParam(r, "table"))
	if err != nil {
		s.respondError(w, r, fmt.Errorf("%w: invalid table %q", errBadRequest, chi.URLParam(r, "table")))
		return
	}
	logging.WithSession(r.Context(), id, "extract").Info("extract requested", "table", table)

	res, err := s.service.ExtractTable(r.Context(), id, table)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	logging.WithSession(r.Context(), id, "load").Info("load requested")

	res, err := s.service.Load(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	status := http.StatusCreated
	if res.AlreadyExists {
		status = http.StatusOK
	}
	writeJSON(w, r, status, res)
}
