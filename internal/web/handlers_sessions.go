package web

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/thermoextract/internal/core"
)

// multipartOverhead is allowed on top of the PDF size limit for form framing.
const multipartOverhead = 1 << 20

// handleUpload stores a PDF and opens a session. The PDF is sent either as
// the "file" field of a multipart form or as a raw application/pdf body with
// the name in the filename query parameter.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Pipeline.MaxPDFBytes+multipartOverhead)

	filename, body, err := uploadedFile(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	defer body.Close()

	sess, err := s.service.CreateSession(r.Context(), filename, body)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	w.Header().Set("Location", "/api/sessions/"+sess.ID)
	writeJSON(w, r, http.StatusCreated, sess)
}

func uploadedFile(r *http.Request) (string, io.ReadCloser, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch mediaType {
	case "multipart/form-data":
		file, header, err := r.FormFile("file")
		if err != nil {
			var maxBytes *http.MaxBytesError
			if errors.As(err, &maxBytes) {
				return "", nil, fmt.Errorf("%w: upload exceeds %d bytes", core.ErrFileTooLarge, maxBytes.Limit)
			}
			return "", nil, fmt.Errorf("%w: no file provided", errBadRequest)
		}
		return header.Filename, file, nil
	case "application/pdf", "application/octet-stream":
		name := strings.TrimSpace(r.URL.Query().Get("filename"))
		if name == "" {
			name = "upload.pdf"
		}
		return name, r.Body, nil
	}
	return "", nil, fmt.Errorf("%w: unsupported content type %q", errBadRequest, mediaType)
}

// handleListSessions lists the newest sessions, optionally filtered by the
// state query parameter.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	state := core.State(r.URL.Query().Get("state"))
	if state != "" && !knownState(state) {
		s.respondError(w, r, fmt.Errorf("%w: unknown state %q", errBadRequest, state))
		return
	}
	limit := parseIntParam(r, "limit", core.DefaultListLimit)

	sessions, err := s.service.ListSessions(r.Context(), state, limit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if sessions == nil {
		sessions = []*core.ExtractionSession{}
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.service.GetSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, sess)
}

func (s *Server) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	entries, err := s.service.AuditTrail(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if entries == nil {
		entries = []core.AuditEntry{}
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"entries": entries})
}

// handleReset returns a failed session to its last good state.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	sess, err := s.service.Reset(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, sess)
}

func knownState(st core.State) bool {
	for _, s := range core.AllStates {
		if s == st {
			return true
		}
	}
	return false
}

// parseIntParam parses a positive integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}
