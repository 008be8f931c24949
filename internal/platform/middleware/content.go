package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/carebase/carebase/internal/platform/apperr"
)

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// ValidateContent returns the content well-formedness stage: mutating
// requests with a body must declare application/json. Size is enforced
// separately by BodyLimit. Runs before authentication so malformed requests
// cost nothing.
func ValidateContent() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !isMutating(req.Method) {
				return next(c)
			}

			if req.ContentLength > 0 || req.Header.Get(echo.HeaderContentType) != "" {
				ct := req.Header.Get(echo.HeaderContentType)
				if ct == "" || !strings.HasPrefix(strings.ToLower(ct), echo.MIMEApplicationJSON) {
					return echo.NewHTTPError(http.StatusUnsupportedMediaType, "content type must be application/json")
				}
			}

			return next(c)
		}
	}
}

// RequireJSONBody binds and validates nothing itself; handlers use echo's
// binder. This helper exists for handlers that need an early empty-body
// rejection with the validation taxonomy.
func RequireJSONBody(c echo.Context, dest interface{}) error {
	if err := c.Bind(dest); err != nil {
		return apperr.Validation("malformed request body", nil)
	}
	return nil
}
