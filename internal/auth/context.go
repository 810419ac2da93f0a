package auth

import "context"

type contextKey struct{}

// WithAdmin marks the request context as having passed the admin check.
func WithAdmin(ctx context.Context) context.Context {
	return context.WithValue(ctx, contextKey{}, true)
}

// IsAdmin reports whether the context passed the admin check.
func IsAdmin(ctx context.Context) bool {
	ok, _ := ctx.Value(contextKey{}).(bool)
	return ok
}
