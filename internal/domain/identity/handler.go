package identity

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carebase/carebase/internal/platform/apperr"
	"github.com/carebase/carebase/internal/platform/auth"
	"github.com/carebase/carebase/internal/platform/middleware"
	"github.com/carebase/carebase/internal/platform/response"
	"github.com/carebase/carebase/pkg/pagination"
)

const refreshCookieName = "refresh_token"

type Handler struct {
	svc           *Service
	secureCookies bool
}

// NewHandler creates the identity HTTP surface. secureCookies should be true
// whenever the server terminates TLS.
func NewHandler(svc *Service, secureCookies bool) *Handler {
	return &Handler{svc: svc, secureCookies: secureCookies}
}

// RegisterRoutes mounts the auth endpoints. public carries only the outer
// pipeline; authed additionally carries authentication, tenant binding and
// CSRF.
func (h *Handler) RegisterRoutes(public *echo.Group, authed *echo.Group, policy *auth.Policy) {
	public.POST("/auth/login", h.Login)
	public.POST("/auth/refresh", h.Refresh)

	authed.POST("/auth/logout", h.Logout)
	authed.POST("/auth/change-password", h.ChangePassword)
	authed.GET("/auth/me", h.Me)

	staff := authed.Group("", auth.RequirePermission(policy, "staff", auth.ActionManage))
	staff.POST("/users", h.CreateUser)
	staff.GET("/users", h.ListUsers)
	staff.DELETE("/users/:id", h.DeleteUser)
}

func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := middleware.RequireJSONBody(c, &req); err != nil {
		return err
	}

	session, err := h.svc.Login(c.Request().Context(), req, c.RealIP(), c.Request().UserAgent())
	if err != nil {
		return err
	}

	h.setRefreshCookie(c, session.RefreshToken)
	return response.OK(c, "login successful", session)
}

func (h *Handler) Refresh(c echo.Context) error {
	raw := h.refreshCookie(c)
	session, err := h.svc.Refresh(c.Request().Context(), raw, c.RealIP(), c.Request().UserAgent())
	if err != nil {
		h.clearRefreshCookie(c)
		return err
	}

	h.setRefreshCookie(c, session.RefreshToken)
	return response.OK(c, "token refreshed", session)
}

func (h *Handler) Logout(c echo.Context) error {
	identity := auth.IdentityFromContext(c.Request().Context())
	if identity == nil {
		return apperr.Auth("missing_token", "authentication required")
	}

	if err := h.svc.Logout(c.Request().Context(), identity.UserID, h.refreshCookie(c)); err != nil {
		return err
	}
	h.clearRefreshCookie(c)
	return response.OK(c, "logged out", nil)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (h *Handler) ChangePassword(c echo.Context) error {
	identity := auth.IdentityFromContext(c.Request().Context())
	if identity == nil {
		return apperr.Auth("missing_token", "authentication required")
	}

	var req changePasswordRequest
	if err := middleware.RequireJSONBody(c, &req); err != nil {
		return err
	}
	if err := h.svc.ChangePassword(c.Request().Context(), identity.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		return err
	}
	h.clearRefreshCookie(c)
	return response.OK(c, "password changed", nil)
}

func (h *Handler) Me(c echo.Context) error {
	identity := auth.IdentityFromContext(c.Request().Context())
	if identity == nil {
		return apperr.Auth("missing_token", "authentication required")
	}
	profile, err := h.svc.Me(c.Request().Context(), identity.UserID)
	if err != nil {
		return err
	}
	return response.OK(c, "profile", profile)
}

func (h *Handler) CreateUser(c echo.Context) error {
	identity := auth.IdentityFromContext(c.Request().Context())
	if identity == nil {
		return apperr.Auth("missing_token", "authentication required")
	}

	var req CreateUserRequest
	if err := middleware.RequireJSONBody(c, &req); err != nil {
		return err
	}
	u, err := h.svc.CreateUser(c.Request().Context(), identity.TenantID, req)
	if err != nil {
		return err
	}
	return response.Created(c, "user created", u)
}

func (h *Handler) ListUsers(c echo.Context) error {
	p := pagination.FromContext(c)
	users, total, err := h.svc.ListUsers(c.Request().Context(), p.Limit, p.Offset)
	if err != nil {
		return err
	}
	return response.OK(c, "users", pagination.NewResponse(users, total, p))
}

func (h *Handler) DeleteUser(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.Validation("invalid user id", map[string]string{"id": "must be a uuid"})
	}
	if err := h.svc.DeleteUser(c.Request().Context(), id); err != nil {
		return err
	}
	return response.OK(c, "user deleted", nil)
}

func (h *Handler) refreshCookie(c echo.Context) string {
	cookie, err := c.Cookie(refreshCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func (h *Handler) setRefreshCookie(c echo.Context, raw string) {
	c.SetCookie(&http.Cookie{
		Name:     refreshCookieName,
		Value:    raw,
		Path:     "/",
		MaxAge:   int(h.svc.tokens.RefreshTTL() / time.Second),
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) clearRefreshCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}
