package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/clinicbook/clinicbook/internal/platform/apperr"
)

// Kinds for rejections raised by the middleware chain itself.
const (
	kindTooLarge    apperr.Kind = "too_large"
	kindRateLimited apperr.Kind = "rate_limited"
	kindTimeout     apperr.Kind = "timeout"
)

func writeError(c echo.Context, status int, kind apperr.Kind, message string) error {
	if c.Response().Committed {
		return nil
	}
	return c.JSON(status, apperr.Body{Kind: kind, Message: message})
}
