package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/weewoocad/accounts/internal/core/domain"
)

// errorResponse is the canonical error envelope for all API errors. Message
// duplicates Error for the browser forms, which display data.message.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// NewHTTPErrorHandler returns an echo.HTTPErrorHandler that:
//   - Maps known domain errors to their appropriate HTTP status codes.
//   - Logs unexpected errors internally without leaking details to the client.
//   - Renders a consistent JSON envelope: {"error": "<message>", "message": "<message>"}.
func NewHTTPErrorHandler(log zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code, msg := resolveError(err, log, c)
		_ = c.JSON(code, errorResponse{Error: msg, Message: msg})
	}
}

func resolveError(err error, log zerolog.Logger, c echo.Context) (int, string) {
	// Echo's own errors (bind failures, 404 from router, etc.)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code, fmt.Sprintf("%v", he.Message)
	}

	// Known domain errors → deterministic HTTP codes.
	switch {
	case errors.Is(err, domain.ErrMissingFields):
		return http.StatusBadRequest, "Missing fields"
	case errors.Is(err, domain.ErrInvalidEmail):
		return http.StatusBadRequest, "Invalid email"
	case errors.Is(err, domain.ErrDuplicateAccount):
		return http.StatusConflict, "Username or email already in use"
	case errors.Is(err, domain.ErrTokenMissing):
		return http.StatusBadRequest, "Token fehlt"
	case errors.Is(err, domain.ErrTokenInvalid):
		return http.StatusBadRequest, "Ungültiger Token"
	case errors.Is(err, domain.ErrTokenExpired):
		return http.StatusBadRequest, "Token abgelaufen"
	case errors.Is(err, domain.ErrAccountNotFound):
		return http.StatusNotFound, "Account nicht gefunden"
	case errors.Is(err, domain.ErrNotConfirmed):
		return http.StatusForbidden, "Bitte bestätige zuerst deine E-Mail"
	case errors.Is(err, domain.ErrInvalidCredential):
		return http.StatusUnauthorized, "Ungültiges Passwort"
	case errors.Is(err, domain.ErrAlreadyConfirmed):
		return http.StatusConflict, "Account bereits bestätigt"
	case errors.Is(err, domain.ErrStorageUnavailable):
		log.Error().
			Err(err).
			Str("method", c.Request().Method).
			Str("path", c.Path()).
			Msg("account storage unavailable")
		return http.StatusServiceUnavailable, "service unavailable"
	}

	// Unexpected error: log the real cause, return a generic message.
	log.Error().
		Err(err).
		Str("method", c.Request().Method).
		Str("path", c.Path()).
		Msg("unhandled error")

	return http.StatusInternalServerError, "internal server error"
}
