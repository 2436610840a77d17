package store

import (
	"context"

	"github.com/AnshRaj112/taskverse-backend/internal/models"
)

// Caller is the identity access rules are evaluated against.
type Caller struct {
	UID   string
	Email string
	Role  string
}

// IsAdmin reports whether the caller holds the admin role.
func (c Caller) IsAdmin() bool { return c.Role == models.RoleAdmin }

type callerKey struct{}

type systemKey struct{}

// WithCaller attaches the identity used for rule evaluation.
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// CallerFrom returns the caller attached to ctx, if any.
func CallerFrom(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(Caller)
	return c, ok && c.UID != ""
}

// SystemContext marks trusted server-side code; rules are not evaluated for it.
func SystemContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, systemKey{}, true)
}

// IsSystem reports whether ctx was produced by SystemContext.
func IsSystem(ctx context.Context) bool {
	v, _ := ctx.Value(systemKey{}).(bool)
	return v
}
