package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/FilipeAphrody/sentinel-accounts/internal/domain"
)

const (
	statusSuccess        = "success"
	statusError          = "error"
	statusPending        = "pending_2fa"
	statusChangeRequired = "password_change_required"
)

// errorResponse is the body of every failed request.
type errorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// statusFor maps a domain error to its HTTP status code. ok is false for
// errors the boundary does not recognise.
func statusFor(err error) (code int, ok bool) {
	var (
		locked *domain.LockedError
		policy *domain.PolicyError
	)
	switch {
	case errors.As(err, &locked):
		return http.StatusLocked, true
	case errors.As(err, &policy):
		return http.StatusBadRequest, true
	case errors.Is(err, domain.ErrInvalidCredentials),
		errors.Is(err, domain.ErrWrongCurrentPassword),
		errors.Is(err, domain.ErrInvalidTwoFactorCode),
		errors.Is(err, domain.ErrInvalidOrExpiredHandshake),
		errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized, true
	case errors.Is(err, domain.ErrAccountDisabled),
		errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, true
	case errors.Is(err, domain.ErrTwoFactorAlreadyConfigured),
		errors.Is(err, domain.ErrTwoFactorNotConfigured),
		errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, true
	case errors.Is(err, domain.ErrPasswordExpired):
		return http.StatusPreconditionRequired, true
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, true
	}
	return 0, false
}

// respondError writes err as JSON. Unrecognised errors are logged and
// reported as a generic failure.
func respondError(c echo.Context, logger *slog.Logger, err error) error {
	code, ok := statusFor(err)
	if !ok {
		logger.ErrorContext(c.Request().Context(), "request failed",
			"err", err, "method", c.Request().Method, "path", c.Path())
		return c.JSON(http.StatusInternalServerError, errorResponse{Status: statusError, Message: "internal server error"})
	}
	status := statusError
	if code == http.StatusPreconditionRequired {
		status = statusChangeRequired
	}
	return c.JSON(code, errorResponse{Status: status, Message: err.Error()})
}

func badRequest(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, errorResponse{Status: statusError, Message: message})
}

// httpErrorHandler renders echo's own errors (404, 405, bind failures) in
// the same envelope as domain errors.
func httpErrorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		var he *echo.HTTPError
		if errors.As(err, &he) {
			msg, _ := he.Message.(string)
			if msg == "" {
				msg = http.StatusText(he.Code)
			}
			_ = c.JSON(he.Code, errorResponse{Status: statusError, Message: msg})
			return
		}
		_ = respondError(c, logger, err)
	}
}
