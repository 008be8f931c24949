package auth

import (
	"github.com/labstack/echo/v4"

	"github.com/carebase/carebase/internal/platform/apperr"
)

// Action names used by the policy table.
const (
	ActionRead   = "read"
	ActionWrite  = "write"
	ActionManage = "manage"
)

// permission keys the policy table by resource and action.
type permission struct {
	Resource string
	Action   string
}

// Policy is a declarative capability table: (resource, action) -> allowed
// roles. Authorization happens once, in RequirePermission, instead of
// ad-hoc role lists inside handlers.
type Policy struct {
	allowed map[permission]map[string]bool
}

// NewPolicy creates an empty policy table.
func NewPolicy() *Policy {
	return &Policy{allowed: make(map[permission]map[string]bool)}
}

// Grant allows the given roles to perform action on resource.
func (p *Policy) Grant(resource, action string, roles ...string) *Policy {
	key := permission{Resource: resource, Action: action}
	if p.allowed[key] == nil {
		p.allowed[key] = make(map[string]bool)
	}
	for _, role := range roles {
		p.allowed[key][role] = true
	}
	return p
}

// Allows reports whether role may perform action on resource. The admin
// role is implicitly allowed everything within its tenant.
func (p *Policy) Allows(role, resource, action string) bool {
	if role == "admin" {
		return true
	}
	return p.allowed[permission{Resource: resource, Action: action}][role]
}

// DefaultPolicy is the capability table for the hospital staff roles.
func DefaultPolicy() *Policy {
	p := NewPolicy()

	p.Grant("patient_record", ActionRead, "physician", "nurse", "registrar")
	p.Grant("patient_record", ActionWrite, "physician", "nurse")
	p.Grant("profile", ActionRead, "physician", "nurse", "registrar", "billing", "patient")
	p.Grant("profile", ActionWrite, "physician", "nurse", "registrar", "billing", "patient")
	p.Grant("staff", ActionManage) // admin only
	p.Grant("billing_record", ActionRead, "billing", "registrar")
	p.Grant("billing_record", ActionWrite, "billing")

	return p
}

// RequirePermission returns the authorization stage for one (resource,
// action) pair. It runs after authentication and reads the role from the
// request identity.
func RequirePermission(policy *Policy, resource, action string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			identity := IdentityFromContext(c.Request().Context())
			if identity == nil {
				return apperr.Auth("missing_token", "authentication required")
			}
			if !policy.Allows(identity.Role, resource, action) {
				return apperr.Forbidden("forbidden", "insufficient permissions")
			}
			return next(c)
		}
	}
}
