package platformadmin

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/carebase/carebase/internal/platform/middleware"
	"github.com/carebase/carebase/internal/platform/response"
)

// pa_refresh_token is deliberately distinct from the tenant cookie so the
// two sessions never shadow each other in the same browser.
const refreshCookieName = "pa_refresh_token"

type Handler struct {
	svc           *Service
	secureCookies bool
}

func NewHandler(svc *Service, secureCookies bool) *Handler {
	return &Handler{svc: svc, secureCookies: secureCookies}
}

// RegisterRoutes mounts login/refresh on the public pipeline and logout on
// the platform-admin pipeline.
func (h *Handler) RegisterRoutes(public *echo.Group, platform *echo.Group) {
	public.POST("/platform/login", h.Login)
	public.POST("/platform/refresh", h.Refresh)

	platform.POST("/platform/logout", h.Logout)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) Login(c echo.Context) error {
	var req loginRequest
	if err := middleware.RequireJSONBody(c, &req); err != nil {
		return err
	}

	session, err := h.svc.Login(c.Request().Context(), req.Username, req.Password, c.RealIP(), c.Request().UserAgent())
	if err != nil {
		return err
	}

	h.setRefreshCookie(c, session.RefreshToken)
	return response.OK(c, "login successful", session)
}

func (h *Handler) Refresh(c echo.Context) error {
	session, err := h.svc.Refresh(c.Request().Context(), h.refreshCookie(c), c.RealIP(), c.Request().UserAgent())
	if err != nil {
		h.clearRefreshCookie(c)
		return err
	}

	h.setRefreshCookie(c, session.RefreshToken)
	return response.OK(c, "token refreshed", session)
}

func (h *Handler) Logout(c echo.Context) error {
	if err := h.svc.Logout(c.Request().Context(), h.refreshCookie(c)); err != nil {
		return err
	}
	h.clearRefreshCookie(c)
	return response.OK(c, "logged out", nil)
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
