// Package response defines the JSON envelope every endpoint returns and the
// single translation point from the apperr taxonomy to HTTP status codes.
package response

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/carebase/carebase/internal/platform/apperr"
)

// Envelope is the standard response body.
type Envelope struct {
	Status  bool              `json:"status"`
	Message string            `json:"message"`
	Data    interface{}       `json:"data,omitempty"`
	Error   string            `json:"error,omitempty"`
	Errors  map[string]string `json:"errors,omitempty"`
}

// OK writes a 200 success envelope.
func OK(c echo.Context, message string, data interface{}) error {
	return c.JSON(http.StatusOK, Envelope{Status: true, Message: message, Data: data})
}

// Created writes a 201 success envelope.
func Created(c echo.Context, message string, data interface{}) error {
	return c.JSON(http.StatusCreated, Envelope{Status: true, Message: message, Data: data})
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusUnprocessableEntity
	case apperr.KindAuth:
		return http.StatusUnauthorized
	case apperr.KindForbidden, apperr.KindTenant:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// ErrorHandler returns an echo HTTPErrorHandler that maps classified errors
// to their status codes. In production, 5xx messages are replaced with a
// generic one so internals never leak to clients; the original error is
// logged either way.
func ErrorHandler(logger zerolog.Logger, production bool) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		// Plain echo errors (404 route misses, bound middleware) pass through.
		if he, ok := err.(*echo.HTTPError); ok {
			msg, _ := he.Message.(string)
			if msg == "" {
				msg = http.StatusText(he.Code)
			}
			_ = c.JSON(he.Code, Envelope{Status: false, Message: msg, Error: "http_error"})
			return
		}

		ae := apperr.AsError(err)
		status := statusFor(ae.Kind)

		if status >= http.StatusInternalServerError {
			logger.Error().Err(err).
				Str("path", c.Request().URL.Path).
				Str("method", c.Request().Method).
				Msg("request failed")
		}

		message := ae.Message
		if production && status >= http.StatusInternalServerError {
			message = "internal server error"
		}

		_ = c.JSON(status, Envelope{
			Status:  false,
			Message: message,
			Error:   ae.Code,
			Errors:  ae.Fields,
		})
	}
}
