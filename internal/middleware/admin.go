package middleware

import (
	"crypto/subtle"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// AdminKeyHeader carries the shared secret for operator endpoints
const AdminKeyHeader = "X-Admin-Key"

// RequireAdminKey guards operator endpoints with a static key. An empty key
// disables the endpoints entirely.
func RequireAdminKey(key string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if key == "" {
				return forbiddenError(c, "Admin endpoints are disabled")
			}
			provided := c.Request().Header.Get(AdminKeyHeader)
			if provided == "" {
				return unauthorizedError(c, "Missing admin key")
			}
			if subtle.ConstantTimeCompare([]byte(provided), []byte(key)) != 1 {
				log.Warn().Str("path", c.Request().URL.Path).Msg("Rejected admin request with wrong key")
				return forbiddenError(c, "Invalid admin key")
			}
			return next(c)
		}
	}
}
