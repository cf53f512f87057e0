package web

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/JonMunkholm/thermoextract/internal/core"
)

// readyTimeout bounds each readiness check.
const readyTimeout = 5 * time.Second

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady pings every registered dependency. Any failure makes the
// whole probe fail with 503.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	results := make(map[string]string, len(names))
	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		err := s.checks[name].Ping(ctx)
		cancel()
		if err != nil {
			status = http.StatusServiceUnavailable
			results[name] = err.Error()
			continue
		}
		results[name] = "ok"
	}

	writeJSON(w, r, status, map[string]any{"checks": results})
}

// statusResponse summarizes pipeline load.
type statusResponse struct {
	Stages   core.LimiterStatus `json:"stages"`
	Sessions map[core.State]int `json:"sessions"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	counts, err := s.service.CountByState(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, statusResponse{
		Stages:   s.service.LimiterStatus(),
		Sessions: counts,
	})
}
