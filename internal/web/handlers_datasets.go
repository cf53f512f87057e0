package web

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/thermoextract/internal/core"
)

// maxValidateBytes bounds CSV bodies sent for validation.
const maxValidateBytes = 10 << 20

func (s *Server) handleGetDataset(w http.ResponseWriter, r *http.Request) {
	view, err := s.service.GetDataset(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, view)
}

func (s *Server) handleGetAssessment(w http.ResponseWriter, r *http.Request) {
	a, err := s.service.GetAssessment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, a)
}

// handleGetReport serves the stored FAIR report. format=markdown returns the
// narrative report, anything else the JSON document.
func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	rep, err := s.service.GetReport(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	switch strings.ToLower(r.URL.Query().Get("format")) {
	case "md", "markdown":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		_, _ = io.WriteString(w, rep.Markdown)
	default:
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(rep.JSON)
	}
}

func (s *Server) handleListMappings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{"mappings": s.service.Mappings()})
}

func (s *Server) handleGetMapping(w http.ResponseWriter, r *http.Request) {
	m, ok := core.Get(chi.URLParam(r, "key"))
	if !ok {
		s.respondError(w, r, fmt.Errorf("mapping %q: %w", chi.URLParam(r, "key"), core.ErrNotFound))
		return
	}
	writeJSON(w, r, http.StatusOK, m)
}

// validateResponse is the outcome of validating a submitted CSV.
type validateResponse struct {
	Mapping    string                `json:"mapping"`
	Headers    []string              `json:"headers"`
	Stats      core.CSVStats         `json:"stats"`
	Validation core.ValidationResult `json:"validation"`
}

// handleValidateCSV checks a corrected CSV against a mapping without touching
// any session. Issues come back as one row- and field-addressed batch.
func (s *Server) handleValidateCSV(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	m, ok := core.Get(key)
	if !ok {
		s.respondError(w, r, fmt.Errorf("mapping %q: %w", key, core.ErrNotFound))
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxValidateBytes))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	table, err := core.ParseCSV(string(data))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, validateResponse{
		Mapping:    m.Key,
		Headers:    table.Headers,
		Stats:      core.ComputeStats(table),
		Validation: core.ValidateCSV(table, m),
	})
}
