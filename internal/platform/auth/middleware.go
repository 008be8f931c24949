package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carebase/carebase/internal/platform/apperr"
	"github.com/carebase/carebase/internal/platform/token"
)

// bearerToken extracts the token from an Authorization: Bearer header.
func bearerToken(c echo.Context) (string, error) {
	header := c.Request().Header.Get("Authorization")
	if header == "" {
		return "", apperr.Auth("missing_token", "authentication required")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", apperr.Auth("invalid_token", "invalid authorization header")
	}
	return parts[1], nil
}

// Authenticate is the tenant-user authentication stage. It validates the
// bearer token and attaches the identity to the request context. Fail
// closed: no handler runs without a valid tenant-user token.
func Authenticate(tokens *token.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, err := bearerToken(c)
			if err != nil {
				return err
			}

			claims, err := tokens.ValidateAccessToken(raw)
			if err != nil {
				return apperr.Auth("invalid_token", "invalid or expired token")
			}

			userID, err := uuid.Parse(claims.Subject)
			if err != nil {
				return apperr.Auth("invalid_token", "invalid or expired token")
			}

			identity := &Identity{
				UserID:   userID,
				TenantID: claims.TenantID,
				Role:     claims.Role,
				RoleID:   claims.RoleID,
				Username: claims.Username,
			}
			c.SetRequest(c.Request().WithContext(WithIdentity(c.Request().Context(), identity)))
			return next(c)
		}
	}
}

// TenantBinder resolves an active tenant and binds its isolated store to the
// request context. Implemented by the tenant domain service.
type TenantBinder interface {
	BindActive(ctx context.Context, tenantID string) (context.Context, func(), error)
}

// ResolveTenant is the tenant-resolution stage. The tenant id comes
// exclusively from the validated access token, never from a client-supplied
// header, so a client cannot point a valid token at another tenant's store.
func ResolveTenant(binder TenantBinder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			identity := IdentityFromContext(c.Request().Context())
			if identity == nil {
				return apperr.Auth("missing_token", "authentication required")
			}

			ctx, release, err := binder.BindActive(c.Request().Context(), identity.TenantID)
			if err != nil {
				return err
			}
			defer release()

			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// VerifyCSRF is the CSRF stage for tenant users. State-mutating methods must
// carry an X-CSRF-Token owned by the authenticated user; reads pass through.
func VerifyCSRF(tokens *token.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !isMutating(c.Request().Method) {
				return next(c)
			}

			identity := IdentityFromContext(c.Request().Context())
			if identity == nil {
				return apperr.Auth("missing_token", "authentication required")
			}

			raw := c.Request().Header.Get("X-CSRF-Token")
			if raw == "" {
				return apperr.Forbidden("csrf_required", "csrf token required")
			}
			if err := tokens.ValidateCSRFToken(c.Request().Context(), raw, identity.UserID); err != nil {
				return apperr.Forbidden("csrf_invalid", "csrf validation failed")
			}
			return next(c)
		}
	}
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}
