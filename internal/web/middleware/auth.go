package middleware

import (
	"crypto/subtle"
	"net/http"
	"strconv"

	"github.com/JonMunkholm/thermoextract/internal/config"
	"github.com/JonMunkholm/thermoextract/internal/core"
	"github.com/JonMunkholm/thermoextract/internal/logging"
)

// APIKeyAuth returns middleware that validates the X-API-Key header against
// the configured keys. When RequireAPIKey is false every request passes.
// Authenticated requests carry the actor "api-key-N" (1-based key position)
// into audit entries, so keys never reach the audit trail.
func APIKeyAuth(cfg config.SecurityConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.RequireAPIKey {
				next.ServeHTTP(w, r)
				return
			}

			log := logging.FromContext(r.Context()).With(
				"path", r.URL.Path,
				"method", r.Method,
				"remote_addr", r.RemoteAddr,
			)

			key := r.Header.Get("X-API-Key")
			if key == "" {
				log.Warn("auth: missing API key")
				writeAuthError(w, http.StatusUnauthorized, "missing API key", "AUTH001")
				return
			}

			n := matchKey(key, cfg.APIKeys)
			if n == 0 {
				log.Warn("auth: invalid API key")
				writeAuthError(w, http.StatusForbidden, "invalid API key", "AUTH002")
				return
			}

			ctx := core.ContextWithActor(r.Context(), "api-key-"+strconv.Itoa(n))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// matchKey returns the 1-based position of key in keys, or 0. Every key is
// compared in constant time whether or not an earlier one matched.
func matchKey(key string, keys []string) int {
	match := 0
	for i, k := range keys {
		if subtle.ConstantTimeCompare([]byte(key), []byte(k)) == 1 && match == 0 {
			match = i + 1
		}
	}
	return match
}

func writeAuthError(w http.ResponseWriter, status int, msg, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + msg + `","code":"` + code + `"}`))
}
