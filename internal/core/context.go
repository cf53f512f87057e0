package core

import "context"

type contextKey string

const (
	ctxKeyIPAddress contextKey = "audit_ip"
	ctxKeyUserAgent contextKey = "audit_ua"
	ctxKeyActor     contextKey = "audit_actor"
)

// ContextWithRequestInfo records the caller's address and user agent for
// audit entries written while serving the request.
func ContextWithRequestInfo(ctx context.Context, ip, userAgent string) context.Context {
	ctx = context.WithValue(ctx, ctxKeyIPAddress, ip)
	return context.WithValue(ctx, ctxKeyUserAgent, userAgent)
}

// ContextWithActor records who triggered the operation ("api", "scheduler",
// an API key name).
func ContextWithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, ctxKeyActor, actor)
}

// IPAddressFromContext extracts the caller address from context.
func IPAddressFromContext(ctx context.Context) string {
	return stringValue(ctx, ctxKeyIPAddress)
}

// UserAgentFromContext extracts the User-Agent from context.
func UserAgentFromContext(ctx context.Context) string {
	return stringValue(ctx, ctxKeyUserAgent)
}

// ActorFromContext extracts the actor from context, "system" if unset.
func ActorFromContext(ctx context.Context) string {
	if v := stringValue(ctx, ctxKeyActor); v != "" {
		return v
	}
	return "system"
}

func stringValue(ctx context.Context, key contextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
