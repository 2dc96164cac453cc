package http

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recordd/internal/apperr"
)

// statusFor maps an error classification to its HTTP status.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindValidation:
		return http.StatusUnprocessableEntity
	case apperr.KindAuthorization:
		return http.StatusForbidden
	case apperr.KindAuthentication:
		return http.StatusUnauthorized
	case apperr.KindExternal:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// codeForStatus classifies raw router errors (404 on unknown routes,
// 405, oversized bodies) that never pass through the error taxonomy.
func codeForStatus(status int) string {
	switch status {
	case http.StatusNotFound:
		return apperr.KindNotFound.String()
	case http.StatusUnauthorized:
		return apperr.KindAuthentication.String()
	case http.StatusForbidden:
		return apperr.KindAuthorization.String()
	case http.StatusUnprocessableEntity, http.StatusBadRequest:
		return apperr.KindValidation.String()
	default:
		return apperr.KindUnknown.String()
	}
}

// handleError is the central error handler. Classified errors map to
// their status and wire code; unclassified errors are logged and
// reported as opaque internal failures.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	body := &ErrorBody{
		Code:    apperr.KindUnknown.String(),
		Message: "internal error",
	}

	var appErr *apperr.Error
	var httpErr *echo.HTTPError
	switch {
	case errors.As(err, &appErr):
		status = statusFor(appErr.Kind())
		body.Code = appErr.Kind().String()
		body.Message = appErr.Detail()
	case errors.As(err, &httpErr):
		status = httpErr.Code
		body.Code = codeForStatus(status)
		body.Message = fmt.Sprintf("%v", httpErr.Message)
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("method", c.Request().Method),
			zap.String("uri", c.Request().RequestURI),
			zap.Int("status", status),
			zap.Error(err))
	}

	if jsonErr := c.JSON(status, Response{Success: false, Error: body}); jsonErr != nil {
		s.logger.Error("failed to write error response", zap.Error(jsonErr))
	}
}
