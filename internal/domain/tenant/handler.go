package tenant

import (
	"github.com/labstack/echo/v4"

	"github.com/carebase/carebase/internal/platform/middleware"
	"github.com/carebase/carebase/internal/platform/response"
	"github.com/carebase/carebase/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the public registration endpoint and the
// platform-admin lifecycle endpoints. The platform group already carries the
// platform-admin pipeline.
func (h *Handler) RegisterRoutes(public *echo.Group, platform *echo.Group) {
	public.POST("/tenants/register", h.Register)

	platform.GET("/tenants", h.List)
	platform.POST("/tenants/:id/approve", h.Approve)
	platform.POST("/tenants/:id/suspend", h.Suspend)
	platform.POST("/tenants/:id/reactivate", h.Reactivate)
}

func (h *Handler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := middleware.RequireJSONBody(c, &req); err != nil {
		return err
	}
	t, err := h.svc.Register(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return response.Created(c, "tenant registered, pending approval", t)
}

func (h *Handler) List(c echo.Context) error {
	p := pagination.FromContext(c)
	tenants, total, err := h.svc.List(c.Request().Context(), p.Limit, p.Offset)
	if err != nil {
		return err
	}
	return response.OK(c, "tenants", pagination.NewResponse(tenants, total, p))
}

func (h *Handler) Approve(c echo.Context) error {
	t, err := h.svc.Approve(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return response.OK(c, "tenant approved", t)
}

func (h *Handler) Suspend(c echo.Context) error {
	t, err := h.svc.Suspend(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return response.OK(c, "tenant suspended", t)
}

func (h *Handler) Reactivate(c echo.Context) error {
	t, err := h.svc.Reactivate(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return response.OK(c, "tenant reactivated", t)
}
