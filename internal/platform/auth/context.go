// Package auth implements the authenticated stages of the request pipeline:
// bearer-token authentication, tenant resolution and binding, CSRF checks,
// and the role policy table. Tenant-user and platform-admin requests run
// through parallel, non-shared stages so one principal's token can never be
// accepted on the other's routes.
package auth

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	identityKey contextKey = "identity"
	adminKey    contextKey = "platform_admin"
)

// Identity is the authenticated tenant-user principal attached to the
// request context by the authentication stage.
type Identity struct {
	UserID   uuid.UUID
	TenantID string
	Role     string
	RoleID   string
	Username string
}

// AdminIdentity is the authenticated platform-admin principal.
type AdminIdentity struct {
	AdminID  string
	Username string
}

// WithIdentity attaches a tenant-user identity to the context.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext returns the authenticated tenant user, or nil.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey).(*Identity)
	return id
}

// WithAdmin attaches a platform-admin identity to the context.
func WithAdmin(ctx context.Context, id *AdminIdentity) context.Context {
	return context.WithValue(ctx, adminKey, id)
}

// AdminFromContext returns the authenticated platform admin, or nil.
func AdminFromContext(ctx context.Context) *AdminIdentity {
	id, _ := ctx.Value(adminKey).(*AdminIdentity)
	return id
}
