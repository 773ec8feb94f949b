package auth

import "context"

type contextKey string

const adminContextKey contextKey = "admin"

// ContextWithAdmin marks the request as authenticated with the admin key.
func ContextWithAdmin(ctx context.Context) context.Context {
	return context.WithValue(ctx, adminContextKey, true)
}

// IsAdmin reports whether AdminAuth accepted the request.
func IsAdmin(ctx context.Context) bool {
	ok, _ := ctx.Value(adminContextKey).(bool)
	return ok
}
