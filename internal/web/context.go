package web

import (
	"net"
	"net/http"

	"github.com/JonMunkholm/thermoextract/internal/core"
)

// withRequestMetadata adds the client address and User-Agent to the request
// context for audit entries. Requests not attributed by APIKeyAuth are
// audited as "api".
func withRequestMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := core.ContextWithRequestInfo(r.Context(), clientIP(r), r.UserAgent())
		if core.ActorFromContext(ctx) == "system" {
			ctx = core.ContextWithActor(ctx, "api")
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// clientIP strips the port from RemoteAddr, which TrustedRealIP has already
// resolved to the client address.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
